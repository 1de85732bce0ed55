package smtpclient

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/emersion/go-sasl"
	"github.com/segmentio/ksuid"

	smtp "github.com/alexisbouchez/smtpsend"
	"github.com/alexisbouchez/smtpsend/internal/textproto"
)

// Session is one submission conversation over an exclusively owned
// Transport. Its methods are safe for concurrent use; they run one at a
// time, so at most one exchange is ever in flight.
type Session struct {
	mu     sync.Mutex
	t      Transport
	o      *options
	id     ksuid.KSUID
	logger *slog.Logger
	state  State
}

// Dial connects to host:port with implicit TLS and greets the server. A
// zero port means DefaultPort (465). The option timeout bounds the whole
// sequence.
func Dial(ctx context.Context, host string, port int, opts ...Option) (*Session, error) {
	o := newOptions(opts)
	if port == 0 {
		port = DefaultPort
	}

	if err := checkLocalName(o.localName); err != nil {
		return nil, err
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	t, err := dialTransport(ctx, host, port, o)
	if err != nil {
		return nil, err
	}
	return newSession(ctx, t, o)
}

// NewSession greets the server on an already open Transport. On failure the
// transport is closed.
func NewSession(ctx context.Context, t Transport, opts ...Option) (*Session, error) {
	return newSession(ctx, t, newOptions(opts))
}

func newSession(ctx context.Context, t Transport, o *options) (*Session, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: new session: nil transport", smtp.ErrInvalidUsage)
	}

	if err := checkLocalName(o.localName); err != nil {
		t.Close()
		return nil, err
	}

	id := ksuid.New()
	so := *o
	so.logger = o.logger.With("session", id.String())

	s := &Session{
		t:      t,
		o:      &so,
		id:     id,
		logger: so.logger,
		state:  StateDisconnected,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.greet(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func checkLocalName(name string) error {
	if strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("%w: local name %q holds a line break", smtp.ErrInvalidUsage, name)
	}
	return nil
}

// ID returns the identifier attached to every log record of the session.
func (s *Session) ID() string {
	return s.id.String()
}

// State returns the current state of the conversation.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// greet sends EHLO and waits for the 220 service-ready reply. With
// WithEHLODrain it then consumes the EHLO reply up to its last line.
func (s *Session) greet(ctx context.Context) error {
	if _, err := s.exchange(ctx, s.standard("EHLO "+s.o.localName, smtp.ReplyServiceReady)); err != nil {
		return s.fail(err)
	}

	if s.o.drainEHLO {
		final := func(r Reply) bool { return r.Code == smtp.ReplyOK && r.Final }
		if _, err := await(ctx, s.t, "EHLO", final, s.failure(), s.o); err != nil {
			return s.fail(err)
		}
	}

	s.state = StateGreeted
	s.logger.Info("smtp session greeted", "local_name", s.o.localName)
	return nil
}

// Authenticate performs AUTH LOGIN: the command, then the base64 username,
// then the base64 password, each awaited before the next is sent. The
// session must be freshly greeted.
func (s *Session) Authenticate(ctx context.Context, username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("authenticate", StateGreeted); err != nil {
		return err
	}
	if username == "" || password == "" {
		return fmt.Errorf("%w: authenticate: empty username or password", smtp.ErrInvalidUsage)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	steps := []Request{
		s.standard("AUTH LOGIN", smtp.ReplyAuthContinue),
		s.credential(smtp.EncodeCredential(username), smtp.ReplyAuthContinue),
		s.credential(smtp.EncodeCredential(password), smtp.ReplyAuthOK),
	}
	for _, req := range steps {
		if _, err := s.exchange(ctx, req); err != nil {
			return s.fail(err)
		}
	}

	s.state = StateAuthenticated
	s.logger.Info("smtp session authenticated", "mechanism", "LOGIN", "username", username)
	return nil
}

// AuthSASL authenticates with any SASL mechanism (RFC 4954). Every step
// accepts 334 to continue and 235 to finish; challenges are passed to c
// and its responses sent back until the server accepts.
func (s *Session) AuthSASL(ctx context.Context, c sasl.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("authenticate", StateGreeted); err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: authenticate: nil SASL client", smtp.ErrInvalidUsage)
	}

	mech, ir, err := c.Start()
	if err != nil {
		return fmt.Errorf("smtp: AUTH: start: %w", err)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	msg := "AUTH " + mech
	if ir != nil {
		msg += " " + smtp.EncodeResponse(ir)
	}
	req := s.authStep(msg, ir != nil)

	for {
		r, err := s.exchange(ctx, req)
		if err != nil {
			return s.fail(err)
		}
		if r.Code == smtp.ReplyAuthOK {
			break
		}

		challenge, err := smtp.DecodeChallenge(r.Text)
		if err != nil {
			return s.abort(fmt.Errorf("smtp: AUTH %s: decoding challenge: %w", mech, err))
		}
		resp, err := c.Next(challenge)
		if err != nil {
			return s.abort(fmt.Errorf("smtp: AUTH %s: %w", mech, err))
		}
		req = s.authStep(smtp.EncodeResponse(resp), true)
	}

	s.state = StateAuthenticated
	s.logger.Info("smtp session authenticated", "mechanism", mech)
	return nil
}

// Submit sends one message: MAIL FROM, one RCPT TO per recipient in order,
// DATA, then the dot-stuffed body followed by the lone "." line. Addresses
// are validated before anything is written. The first failing step aborts
// the submission and the session.
func (s *Session) Submit(ctx context.Context, from string, to []string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.require("submit", StateGreeted, StateAuthenticated); err != nil {
		return err
	}
	if len(to) == 0 {
		return fmt.Errorf("%w: submit: no recipients", smtp.ErrInvalidUsage)
	}
	sender, err := smtp.ParseReversePath(from)
	if err != nil {
		return fmt.Errorf("%w: submit: sender %q: %w", smtp.ErrInvalidUsage, from, err)
	}
	rcpts := make([]smtp.Mailbox, 0, len(to))
	for _, addr := range to {
		m, err := smtp.ParseAddress(addr)
		if err != nil {
			return fmt.Errorf("%w: submit: recipient %q: %w", smtp.ErrInvalidUsage, addr, err)
		}
		rcpts = append(rcpts, m)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.exchange(ctx, s.standard("MAIL FROM:"+sender.Path(), smtp.ReplyOK)); err != nil {
		return s.fail(err)
	}
	s.state = StateEnvelopeOpen

	for _, rcpt := range rcpts {
		if _, err := s.exchange(ctx, s.standard("RCPT TO:"+rcpt.Path(), smtp.ReplyOK)); err != nil {
			return s.fail(err)
		}
	}

	if _, err := s.exchange(ctx, s.standard("DATA", smtp.ReplyStartMailInput)); err != nil {
		return s.fail(err)
	}

	data := s.standard(textproto.EncodeData(body), smtp.ReplyOK)
	data.Name = "BODY"
	data.Multiline = true
	if _, err := s.exchange(ctx, data); err != nil {
		return s.fail(err)
	}

	s.state = StateDataSent
	s.logger.Info("smtp message submitted", "from", sender.String(), "recipients", len(rcpts), "size", len(body))
	return nil
}

// Close sends QUIT, waits for 221 and closes the transport. If QUIT fails
// the transport is closed all the same and the error returned. Closing a
// closed session, including one ended by a fatal error, writes nothing
// and returns nil.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}

	ctx, cancel := s.opContext(context.Background())
	defer cancel()

	_, err := s.exchange(ctx, s.standard("QUIT", smtp.ReplyServiceClosing))
	s.state = StateClosed
	if err != nil {
		return err
	}
	s.logger.Info("smtp session closed")
	return s.t.Close()
}

func (s *Session) exchange(ctx context.Context, req Request) (Reply, error) {
	return exchange(ctx, s.t, req, s.o)
}

// standard is Standard with the session's error threshold.
func (s *Session) standard(message string, code smtp.ReplyCode) Request {
	return Request{Message: message, Success: smtp.Is(code), Failure: s.failure()}
}

func (s *Session) credential(encoded string, code smtp.ReplyCode) Request {
	req := s.standard(encoded, code)
	req.Name = "AUTH"
	req.Sensitive = true
	return req
}

func (s *Session) authStep(message string, sensitive bool) Request {
	return Request{
		Name:      "AUTH",
		Message:   message,
		Success:   smtp.Any(smtp.Is(smtp.ReplyAuthOK), smtp.Is(smtp.ReplyAuthContinue)),
		Failure:   s.failure(),
		Sensitive: sensitive,
	}
}

func (s *Session) failure() smtp.Predicate {
	return smtp.AtLeast(s.o.errorThreshold)
}

// require rejects an operation issued out of order. The state is left as
// it is.
func (s *Session) require(op string, allowed ...State) error {
	if slices.Contains(allowed, s.state) {
		return nil
	}
	return fmt.Errorf("%w: %s in state %s, want one of %v", smtp.ErrInvalidUsage, op, s.state, allowed)
}

// fail records a fatal exchange error. The exchange has already closed the
// transport.
func (s *Session) fail(err error) error {
	s.state = StateClosed
	s.logger.Debug("smtp session failed", "error", err)
	return err
}

// abort ends the session on a failure detected outside an exchange.
func (s *Session) abort(err error) error {
	s.t.Close()
	return s.fail(err)
}

// opContext bounds ctx by the session timeout unless it already has a
// deadline.
func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || s.o.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.o.timeout)
}
