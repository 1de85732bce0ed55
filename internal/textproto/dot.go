package textproto

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// readData reads a DATA body up to its lone "." line and undoes the
// dot-stuffing (RFC 5321 §4.5.2). Every line of the result ends in CRLF.
// A stream that ends before the "." line yields io.ErrUnexpectedEOF.
func readData(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}
		line = strings.TrimSuffix(line[:len(line)-1], "\r")
		if line == "." {
			return b.String(), nil
		}
		b.WriteString(strings.TrimPrefix(line, "."))
		b.WriteString("\r\n")
	}
}

// dotWriter dot-stuffs a message body into a buffer: lines starting with
// "." get a second "." and bare LF line endings become CRLF (RFC 5321 §4.5.2).
type dotWriter struct {
	b         *strings.Builder
	beginLine bool
	prevCR    bool
}

func newDotWriter(b *strings.Builder) *dotWriter {
	return &dotWriter{b: b, beginLine: true}
}

func (d *dotWriter) Write(p []byte) (int, error) {
	for _, c := range p {
		if d.beginLine && c == '.' {
			d.b.WriteByte('.')
		}
		if c == '\n' && !d.prevCR {
			d.b.WriteByte('\r')
		}
		d.b.WriteByte(c)

		d.prevCR = c == '\r'
		d.beginLine = c == '\n'
	}
	return len(p), nil
}

// EncodeData returns the payload that ends a DATA transaction: the body,
// dot-stuffed with CRLF line endings, followed by CRLF and the lone "."
// of the end-of-data line. The caller appends the final CRLF.
func EncodeData(body string) string {
	var b strings.Builder
	b.Grow(len(body) + len(body)/64 + 3)

	w := newDotWriter(&b)
	w.Write([]byte(body))
	b.WriteString("\r\n.")
	return b.String()
}
