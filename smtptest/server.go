package smtptest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	smtp "github.com/alexisbouchez/smtpsend"
	"github.com/alexisbouchez/smtpsend/internal/textproto"
)

// Server plays a Script to every client that connects.
type Server struct {
	script       Script
	readTimeout  time.Duration
	writeTimeout time.Duration
	tlsConfig    *tls.Config
	logger       *slog.Logger

	listener  net.Listener
	wg        sync.WaitGroup
	quit      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex

	commands []string
	messages []string
	errs     []error
}

// Option configures a Server.
type Option func(*Server)

// NewServer creates a server playing script.
func NewServer(script Script, opts ...Option) *Server {
	s := &Server{
		script:       script,
		readTimeout:  5 * time.Second,
		writeTimeout: 5 * time.Second,
		logger:       slog.New(slog.DiscardHandler),
		quit:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithReadTimeout sets the timeout for reading a client command or body.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.readTimeout = d }
}

// WithWriteTimeout sets the timeout for writing replies.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// WithTLSConfig makes the server speak implicit TLS from the first byte.
func WithTLSConfig(c *tls.Config) Option {
	return func(s *Server) { s.tlsConfig = c }
}

// WithLogger sets the structured logger. The default discards records.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Start listens on a random loopback port, serves in the background and
// returns the listening address.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	s.setListener(ln)
	go s.Serve(ln)
	return ln.Addr().String(), nil
}

// Serve accepts connections on ln until the server is closed.
func (s *Server) Serve(ln net.Listener) error {
	s.setListener(ln)
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	s.logger.Info("smtptest server listening", "addr", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", "err", err)
			continue
		}

		if !s.track() {
			conn.Close()
			return nil
		}
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// track registers a connection handler unless the server is stopping.
// Checking quit under mu orders every Add before the Wait in Close.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.quit:
		return false
	default:
		s.wg.Add(1)
		return true
	}
}

func (s *Server) setListener(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		s.listener = ln
	}
}

// Addr returns the listener's address, or nil if not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting connections, closes the open ones and waits
// for their handlers to return, respecting the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close is Shutdown without a deadline.
func (s *Server) Close() error {
	s.stop()
	s.wg.Wait()
	return nil
}

func (s *Server) stop() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.quit)
		ln := s.listener
		s.mu.Unlock()
		if ln != nil {
			ln.Close()
		}
	})
}

// Commands returns every command line received so far, in order, across
// all connections.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Messages returns every message body received so far, dot-stuffing
// removed, each ending in CRLF.
func (s *Server) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

// Err reports every divergence from the script seen so far.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}

func (s *Server) record(dst *[]string, v string) {
	s.mu.Lock()
	*dst = append(*dst, v)
	s.mu.Unlock()
}

func (s *Server) fail(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

// handleConn plays the script on one connection.
func (s *Server) handleConn(nc net.Conn) {
	conn := textproto.NewConn(nc)
	conn.SetWriteTimeout(s.writeTimeout)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Close the connection on shutdown to unblock reads.
	go func() {
		select {
		case <-s.quit:
			conn.Close()
		case <-ctx.Done():
		}
	}()

	remote := nc.RemoteAddr().String()
	if err := conn.WriteLines(s.script.Greeting...); err != nil {
		s.logger.Debug("failed to send greeting", "err", err, "remote", remote)
		return
	}

	for i, step := range s.script.Steps {
		if step.Body {
			body, err := s.readBody(conn)
			if err != nil {
				s.logger.Debug("reading body", "err", err, "remote", remote)
				return
			}
			s.record(&s.messages, body)
		} else {
			line, err := s.readLine(conn)
			if err != nil {
				return
			}
			s.record(&s.commands, line)
			if step.Expect != "" && line != step.Expect {
				s.fail(fmt.Errorf("smtptest: step %d: got %q, want %q", i, line, step.Expect))
				conn.WriteLines(badSequence("Unexpected command")...)
				return
			}
		}

		replies := step.Replies
		if step.Reject != nil {
			replies = step.Reject.WireLines()
		}
		if err := conn.WriteLines(replies...); err != nil {
			return
		}
		if step.Hangup {
			return
		}
	}

	// Script exhausted: keep recording, refuse everything.
	for {
		line, err := s.readLine(conn)
		if err != nil {
			return
		}
		s.record(&s.commands, line)
		if err := conn.WriteLines(badSequence("Script exhausted")...); err != nil {
			return
		}
	}
}

func badSequence(text string) []string {
	return smtp.Errorf(smtp.ReplyBadSequence, smtp.EnhancedCodeInvalidCommand, "%s", text).WireLines()
}

func (s *Server) readLine(conn *textproto.Conn) (string, error) {
	if s.readTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	return conn.ReadLine(textproto.MaxTextLineLen)
}

func (s *Server) readBody(conn *textproto.Conn) (string, error) {
	if s.readTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	return conn.ReadData()
}
