package smtpclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	smtp "github.com/alexisbouchez/smtpsend"
	"github.com/alexisbouchez/smtpsend/internal/textproto"
)

// Request is one command of a conversation together with the predicates
// that decide its outcome.
type Request struct {
	// Name labels the command in logs, errors and metrics. When empty, the
	// first word of Message is used.
	Name string

	// Message is the command line without its CRLF terminator.
	Message string

	// Success recognises the reply that completes the exchange. It is
	// checked before Failure.
	Success smtp.Predicate

	// Failure recognises a reply that aborts the exchange and the
	// conversation.
	Failure smtp.Predicate

	// Sensitive hides Message from traces and logs.
	Sensitive bool

	// Multiline allows line breaks in Message, as in a DATA payload.
	// Without it a Message holding CR or LF is rejected.
	Multiline bool
}

// Standard returns the Request expecting exactly code and failing on any
// code at or above smtp.DefaultErrorThreshold.
func Standard(message string, code smtp.ReplyCode) Request {
	return Request{
		Message: message,
		Success: smtp.Is(code),
		Failure: smtp.AtLeast(smtp.DefaultErrorThreshold),
	}
}

func (r Request) label() string {
	if r.Name != "" {
		return r.Name
	}
	if r.Sensitive {
		return "SECRET"
	}
	verb, _, _ := strings.Cut(r.Message, " ")
	verb, _, _ = strings.Cut(verb, ":")
	return strings.ToUpper(verb)
}

func (r Request) traceText() string {
	if r.Sensitive {
		return redacted
	}
	return r.Message
}

// Reply is the reply line that completed an exchange.
type Reply struct {
	Line  string         // Raw line without its terminator.
	Code  smtp.ReplyCode // Leading digits of Line.
	Text  string         // Line after the code and its separator.
	Final bool           // False for "code-hyphen" continuation lines.
}

// Exchange writes req.Message followed by CRLF to t in a single write and
// reads reply lines until one satisfies req.Success, which is returned.
//
// Lines satisfying neither predicate are skipped. A line satisfying
// req.Failure fails the exchange with an *smtp.SMTPError. A line without a
// leading status code fails it with smtp.ErrProtocolViolation, and a
// stream that ends, fails or times out first fails it with
// smtp.ErrConnectionClosed. Every failure closes t; success never does.
func Exchange(ctx context.Context, t Transport, req Request, opts ...Option) (Reply, error) {
	return exchange(ctx, t, req, newOptions(opts))
}

func exchange(ctx context.Context, t Transport, req Request, o *options) (reply Reply, err error) {
	name := req.label()
	start := time.Now()
	defer func() { o.metrics.observe(name, err, time.Since(start)) }()

	if t == nil {
		return Reply{}, fmt.Errorf("%w: %s: nil transport", smtp.ErrInvalidUsage, name)
	}
	if req.Message == "" || req.Success == nil || req.Failure == nil {
		t.Close()
		return Reply{}, fmt.Errorf("%w: %s: request needs a message and both predicates", smtp.ErrInvalidUsage, name)
	}
	if !req.Multiline && strings.ContainsAny(req.Message, "\r\n") {
		t.Close()
		return Reply{}, fmt.Errorf("%w: %s: line break in command", smtp.ErrInvalidUsage, name)
	}

	o.trace().Sent(req.traceText())
	if _, err := t.Write([]byte(req.Message + "\r\n")); err != nil {
		t.Close()
		return Reply{}, fmt.Errorf("%w: %s: %w", smtp.ErrConnectionClosed, name, err)
	}

	success := func(r Reply) bool { return req.Success(r.Code) }
	return await(ctx, t, name, success, req.Failure, o)
}

// await reads lines until one satisfies success or failure. It writes
// nothing.
func await(ctx context.Context, t Transport, name string, success func(Reply) bool, failure smtp.Predicate, o *options) (Reply, error) {
	tr := o.trace()
	skipped := 0
	for line, err := range t.Lines(ctx) {
		if err != nil {
			t.Close()
			return Reply{}, fmt.Errorf("%w: %s: %w", smtp.ErrConnectionClosed, name, err)
		}

		sl, perr := textproto.ParseStatusLine(line)
		if perr != nil {
			tr.Received(line, VerdictBad)
			t.Close()
			return Reply{}, fmt.Errorf("%w: %s: %w: %q", smtp.ErrProtocolViolation, name, perr, line)
		}
		r := Reply{Line: line, Code: smtp.ReplyCode(sl.Code), Text: sl.Text, Final: sl.Final}

		if success(r) {
			tr.Received(line, VerdictGood)
			return r, nil
		}
		if failure(r.Code) {
			tr.Received(line, VerdictBad)
			t.Close()
			return Reply{}, smtp.Rejection(r.Code, r.Text)
		}

		tr.Received(line, VerdictOkay)
		skipped++
		if o.maxReplyLines > 0 && skipped > o.maxReplyLines {
			t.Close()
			return Reply{}, fmt.Errorf("%w: %s: skipped %d lines", smtp.ErrTooManyReplies, name, skipped)
		}
	}

	t.Close()
	return Reply{}, fmt.Errorf("%w: %s: stream ended before a reply", smtp.ErrConnectionClosed, name)
}

func (o *options) trace() Tracer {
	if o.tracer != nil {
		return o.tracer
	}
	return slogTracer{logger: o.logger}
}
