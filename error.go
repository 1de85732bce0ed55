package smtp

import (
	"errors"
	"fmt"
	"strings"
)

// Failure classes of an exchange. Match them with errors.Is; server
// rejections are reported as *SMTPError and matched with errors.As.
var (
	// ErrProtocolViolation reports a reply line without a leading status code.
	ErrProtocolViolation = errors.New("smtp: protocol violation")

	// ErrTooManyReplies reports a server that kept sending irrelevant reply
	// lines past the configured bound.
	ErrTooManyReplies = fmt.Errorf("%w: too many reply lines", ErrProtocolViolation)

	// ErrConnectionClosed reports a transport that ended, failed or timed
	// out before the awaited reply arrived.
	ErrConnectionClosed = errors.New("smtp: connection closed")

	// ErrInvalidUsage reports a programming error on the caller's side: an
	// empty command, a missing predicate, or an operation issued in the
	// wrong session state.
	ErrInvalidUsage = errors.New("smtp: invalid usage")
)

// SMTPError is a reply the server sent in place of the one an exchange was
// waiting for. It carries the reply code, the optional enhanced status
// code and the human-readable text.
type SMTPError struct {
	Code         ReplyCode
	EnhancedCode EnhancedCode
	Message      string
}

// Error implements the error interface.
func (e *SMTPError) Error() string {
	if !e.EnhancedCode.IsZero() {
		return fmt.Sprintf("smtp: %d %s %s", e.Code, e.EnhancedCode, e.Message)
	}
	return fmt.Sprintf("smtp: %d %s", e.Code, e.Message)
}

// Temporary reports whether the error represents a transient failure (4xx).
func (e *SMTPError) Temporary() bool {
	return e.Code.IsTransient()
}

// WireLines returns the error formatted as SMTP wire-protocol reply lines.
// Multi-line messages (containing newlines) are formatted with continuation
// lines using the "code-SP" / "code-hyphen" convention (RFC 5321 §4.2).
func (e *SMTPError) WireLines() []string {
	msg := e.Message
	if msg == "" {
		msg = "Error"
	}

	parts := strings.Split(msg, "\n")
	lines := make([]string, 0, len(parts))
	for i, part := range parts {
		var b strings.Builder
		fmt.Fprintf(&b, "%d", e.Code)
		if i < len(parts)-1 {
			b.WriteByte('-')
		} else {
			b.WriteByte(' ')
		}
		if !e.EnhancedCode.IsZero() {
			fmt.Fprintf(&b, "%s ", e.EnhancedCode)
		}
		b.WriteString(part)
		lines = append(lines, b.String())
	}
	return lines
}

// Errorf creates an SMTPError with a formatted message.
func Errorf(code ReplyCode, enhanced EnhancedCode, format string, args ...any) *SMTPError {
	return &SMTPError{
		Code:         code,
		EnhancedCode: enhanced,
		Message:      fmt.Sprintf(format, args...),
	}
}

// Rejection builds the SMTPError for a reply line's code and text. An
// enhanced status code at the start of text is split off into EnhancedCode.
func Rejection(code ReplyCode, text string) *SMTPError {
	enhanced, rest := ParseEnhancedCode(text)
	return &SMTPError{Code: code, EnhancedCode: enhanced, Message: rest}
}
