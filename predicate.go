package smtp

// Predicate reports whether a reply code satisfies a condition. An exchange
// uses two of them: one recognising the reply it waits for and one
// recognising replies it must abort on.
type Predicate func(ReplyCode) bool

// Is matches exactly code.
func Is(code ReplyCode) Predicate {
	return func(c ReplyCode) bool { return c == code }
}

// AtLeast matches every code greater than or equal to code.
func AtLeast(code ReplyCode) Predicate {
	return func(c ReplyCode) bool { return c >= code }
}

// Any matches when at least one of ps matches. Any() matches nothing.
func Any(ps ...Predicate) Predicate {
	return func(c ReplyCode) bool {
		for _, p := range ps {
			if p(c) {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(c ReplyCode) bool { return !p(c) }
}
