package textproto

import (
	"errors"
	"strconv"
)

// maxCodeDigits bounds the digits read as a status code so that absurd
// input cannot overflow an int.
const maxCodeDigits = 9

// Reasons a reply line carries no usable status code.
var (
	ErrNoStatusCode    = errors.New("reply without status code")
	ErrStatusCodeRange = errors.New("status code out of range")
)

// StatusLine is a reply line split into its parts (RFC 5321 §4.2).
type StatusLine struct {
	Code  int    // Leading digits of the line.
	Text  string // Text after the code and its separator.
	Final bool   // False for "code-hyphen" continuation lines.
}

// ParseStatusLine extracts the status code from the leading digits of a
// reply line. The single separator following the code, a space or a
// hyphen, is not part of Text. A line not starting with a digit yields
// ErrNoStatusCode; one whose code has more than nine digits yields
// ErrStatusCodeRange.
func ParseStatusLine(line string) (StatusLine, error) {
	n := 0
	for n < len(line) && line[n] >= '0' && line[n] <= '9' {
		n++
	}
	switch {
	case n == 0:
		return StatusLine{}, ErrNoStatusCode
	case n > maxCodeDigits:
		return StatusLine{}, ErrStatusCodeRange
	}

	code, err := strconv.Atoi(line[:n])
	if err != nil {
		return StatusLine{}, ErrStatusCodeRange
	}

	sl := StatusLine{Code: code, Final: true}
	rest := line[n:]
	if rest == "" {
		return sl, nil
	}
	switch rest[0] {
	case '-':
		sl.Final = false
		rest = rest[1:]
	case ' ':
		rest = rest[1:]
	}
	sl.Text = rest
	return sl, nil
}
