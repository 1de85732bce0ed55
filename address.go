package smtp

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Size limits of RFC 5321 §4.5.3.1.
const (
	maxLocalPartLen = 64
	maxDomainLen    = 255
	maxLabelLen     = 63
)

// atextSpecials are the non-alphanumeric atext characters (RFC 5322 §3.2.3).
const atextSpecials = "!#$%&'*+-/=?^_`{|}~"

// Mailbox is an address as local-part@domain (RFC 5321 §4.1.2). The zero
// Mailbox stands for the null reverse-path of bounce messages.
type Mailbox struct {
	LocalPart string
	Domain    string
}

// String returns "local-part@domain", or "" for the zero Mailbox.
func (m Mailbox) String() string {
	if m.IsZero() {
		return ""
	}
	return m.LocalPart + "@" + m.Domain
}

// IsZero reports whether m is the null reverse-path.
func (m Mailbox) IsZero() bool {
	return m.LocalPart == "" && m.Domain == ""
}

// Path returns m in angle brackets as used by MAIL FROM and RCPT TO. The
// zero Mailbox yields "<>".
func (m Mailbox) Path() string {
	return "<" + m.String() + ">"
}

// ParseMailbox parses a bare "local-part@domain" address. The local-part
// may be a dot-atom or a quoted string; the domain a hostname or an
// address literal in brackets.
func ParseMailbox(s string) (Mailbox, error) {
	if s == "" {
		return Mailbox{}, errors.New("smtp: empty address")
	}
	if strings.ContainsAny(s, "\r\n\x00") {
		return Mailbox{}, errors.New("smtp: control character in address")
	}

	// A quoted local-part may itself hold '@'.
	at := strings.LastIndexByte(s, '@')
	switch {
	case at < 0:
		return Mailbox{}, fmt.Errorf("smtp: missing @ in address %q", s)
	case at == 0:
		return Mailbox{}, fmt.Errorf("smtp: empty local-part in %q", s)
	case at == len(s)-1:
		return Mailbox{}, fmt.Errorf("smtp: empty domain in %q", s)
	}

	m := Mailbox{LocalPart: s[:at], Domain: s[at+1:]}
	if err := checkLocalPart(m.LocalPart); err != nil {
		return Mailbox{}, err
	}
	if err := checkDomain(m.Domain); err != nil {
		return Mailbox{}, err
	}
	return m, nil
}

// ParseAddress parses an address given either bare ("user@domain") or as
// a path ("<user@domain>"), ignoring surrounding white space.
func ParseAddress(s string) (Mailbox, error) {
	return ParseMailbox(unbracket(s))
}

// ParseReversePath is ParseAddress for MAIL FROM: it also accepts the null
// reverse-path "<>", returned as the zero Mailbox (RFC 5321 §4.5.5).
func ParseReversePath(s string) (Mailbox, error) {
	if strings.TrimSpace(s) == "<>" {
		return Mailbox{}, nil
	}
	return ParseAddress(s)
}

func unbracket(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>' {
		return s[1 : len(s)-1]
	}
	return s
}

func checkLocalPart(local string) error {
	if len(local) > maxLocalPartLen {
		return fmt.Errorf("smtp: local-part longer than %d bytes", maxLocalPartLen)
	}
	if len(local) >= 2 && local[0] == '"' && local[len(local)-1] == '"' {
		return checkQuoted(local[1 : len(local)-1])
	}

	// Splitting on dots turns leading, trailing and doubled dots into
	// empty atoms.
	for atom := range strings.SplitSeq(local, ".") {
		if atom == "" {
			return fmt.Errorf("smtp: misplaced dot in local-part %q", local)
		}
		if strings.ContainsFunc(atom, func(r rune) bool { return !isAtext(r) }) {
			return fmt.Errorf("smtp: invalid character in local-part %q", local)
		}
	}
	return nil
}

func checkQuoted(s string) error {
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			return errors.New("smtp: unescaped quote in quoted local-part")
		}
	}
	if escaped {
		return errors.New("smtp: trailing backslash in quoted local-part")
	}
	return nil
}

func checkDomain(domain string) error {
	if len(domain) > maxDomainLen {
		return fmt.Errorf("smtp: domain longer than %d bytes", maxDomainLen)
	}
	if strings.HasPrefix(domain, "[") {
		if !strings.HasSuffix(domain, "]") {
			return fmt.Errorf("smtp: unclosed address literal %q", domain)
		}
		return nil
	}
	for label := range strings.SplitSeq(domain, ".") {
		if err := checkLabel(label); err != nil {
			return fmt.Errorf("smtp: domain %q: %w", domain, err)
		}
	}
	return nil
}

// checkLabel accepts letters, digits and inner hyphens, plus any non-ASCII
// rune for internationalized domains (RFC 6531).
func checkLabel(label string) error {
	switch {
	case label == "":
		return errors.New("empty label")
	case len(label) > maxLabelLen:
		return fmt.Errorf("label longer than %d bytes", maxLabelLen)
	case !utf8.ValidString(label):
		return errors.New("invalid UTF-8")
	case label[0] == '-' || label[len(label)-1] == '-':
		return errors.New("label starts or ends with a hyphen")
	}
	if strings.ContainsFunc(label, func(r rune) bool {
		return !isAlnum(r) && r != '-' && r <= unicode.MaxASCII
	}) {
		return errors.New("invalid character")
	}
	return nil
}

func isAtext(r rune) bool {
	return isAlnum(r) || strings.ContainsRune(atextSpecials, r)
}

func isAlnum(r rune) bool {
	return 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9'
}
