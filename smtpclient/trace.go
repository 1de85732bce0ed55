package smtpclient

import (
	"io"
	"log/slog"
	"sync"

	"github.com/fatih/color"
)

// Verdict classifies a received line from the point of view of the
// exchange that read it.
type Verdict int

const (
	// VerdictOkay marks a line that matched neither predicate and was skipped.
	VerdictOkay Verdict = iota
	// VerdictGood marks the line that completed the exchange.
	VerdictGood
	// VerdictBad marks the line that failed the exchange.
	VerdictBad
)

func (v Verdict) String() string {
	switch v {
	case VerdictOkay:
		return "okay"
	case VerdictGood:
		return "good"
	case VerdictBad:
		return "bad"
	default:
		return "unknown"
	}
}

// Tracer receives every line of the conversation. Sensitive lines arrive
// already redacted.
type Tracer interface {
	Sent(line string)
	Received(line string, v Verdict)
}

// redacted replaces the text of sensitive commands in traces and logs.
const redacted = "[redacted]"

type slogTracer struct {
	logger *slog.Logger
}

func (t slogTracer) Sent(line string) {
	t.logger.Debug("smtp line sent", "line", line)
}

func (t slogTracer) Received(line string, v Verdict) {
	t.logger.Debug("smtp line received", "line", line, "verdict", v.String())
}

// WriterTracer renders the conversation for a human, one line per event:
//
//	--> sent: EHLO localhost
//	<-- good: 220 mx.example.com ESMTP
//
// It is safe for concurrent use.
type WriterTracer struct {
	mu   sync.Mutex
	w    io.Writer
	sent *color.Color
	okay *color.Color
	good *color.Color
	bad  *color.Color
}

// NewWriterTracer returns a WriterTracer writing to w. When colored is
// false no escape sequences are emitted, whatever the terminal.
func NewWriterTracer(w io.Writer, colored bool) *WriterTracer {
	t := &WriterTracer{
		w:    w,
		sent: color.New(color.FgCyan),
		okay: color.New(color.FgYellow),
		good: color.New(color.FgGreen),
		bad:  color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{t.sent, t.okay, t.good, t.bad} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

// Sent implements Tracer.
func (t *WriterTracer) Sent(line string) {
	t.print(t.sent, "--> sent: "+line)
}

// Received implements Tracer.
func (t *WriterTracer) Received(line string, v Verdict) {
	c := t.okay
	switch v {
	case VerdictGood:
		c = t.good
	case VerdictBad:
		c = t.bad
	}
	t.print(c, "<-- "+v.String()+": "+line)
}

func (t *WriterTracer) print(c *color.Color, s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c.Fprintln(t.w, s)
}
