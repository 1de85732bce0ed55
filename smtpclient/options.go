package smtpclient

import (
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/proxy"

	smtp "github.com/alexisbouchez/smtpsend"
)

// Default values used when the corresponding option is not given.
const (
	DefaultPort          = 465
	DefaultLocalName     = "localhost"
	DefaultTimeout       = 30 * time.Second
	DefaultReadTimeout   = 30 * time.Second
	DefaultMaxReplyLines = 100
)

// Option configures a Session or a single Exchange.
type Option func(*options)

type options struct {
	dialer         *net.Dialer
	proxy          proxy.Dialer
	timeout        time.Duration
	readTimeout    time.Duration
	localName      string
	tlsConfig      *tls.Config
	plaintext      bool
	logger         *slog.Logger
	tracer         Tracer
	metrics        *Metrics
	maxReplyLines  int
	errorThreshold smtp.ReplyCode
	drainEHLO      bool
}

func newOptions(opts []Option) *options {
	o := &options{
		dialer:         &net.Dialer{},
		timeout:        DefaultTimeout,
		readTimeout:    DefaultReadTimeout,
		localName:      DefaultLocalName,
		logger:         slog.Default(),
		maxReplyLines:  DefaultMaxReplyLines,
		errorThreshold: smtp.DefaultErrorThreshold,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithDialer sets a custom net.Dialer for the connection.
func WithDialer(d *net.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithProxy routes the connection through a proxy dialer, typically one
// obtained from proxy.FromURL for a socks5:// address. It takes precedence
// over WithDialer.
func WithProxy(d proxy.Dialer) Option {
	return func(o *options) { o.proxy = d }
}

// WithTimeout bounds dial, TLS handshake and greeting, and each later
// session operation that is given a context without a deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithReadTimeout bounds every wait for a single reply line. Zero disables
// the per-line bound; the context deadline still applies.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) { o.readTimeout = d }
}

// WithLocalName sets the hostname used in EHLO. A name holding CR or LF
// makes Dial and NewSession fail with smtp.ErrInvalidUsage.
func WithLocalName(name string) Option {
	return func(o *options) { o.localName = name }
}

// WithTLSConfig sets the TLS configuration for the implicit TLS connection.
// ServerName defaults to the dialed host.
func WithTLSConfig(c *tls.Config) Option {
	return func(o *options) { o.tlsConfig = c }
}

// WithoutTLS dials a plain TCP connection. Meant for tests and local relays;
// credentials sent over such a connection are readable by anyone on the path.
func WithoutTLS() Option {
	return func(o *options) { o.plaintext = true }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets the sink that receives every line sent and received.
// The default logs them at debug level on the session logger.
func WithTracer(t Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMetrics records exchange counts and latencies in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithMaxReplyLines bounds the number of unmatched reply lines an exchange
// skips before failing with smtp.ErrTooManyReplies. Zero or less removes
// the bound.
func WithMaxReplyLines(n int) Option {
	return func(o *options) { o.maxReplyLines = n }
}

// WithErrorThreshold sets the lowest reply code treated as a rejection by
// the session's standard exchanges. The default is
// smtp.DefaultErrorThreshold (500); 400 also fails on transient replies.
func WithErrorThreshold(code smtp.ReplyCode) Option {
	return func(o *options) { o.errorThreshold = code }
}

// WithEHLODrain makes the greeting also consume the server's EHLO reply
// (the 250 lines) so later exchanges start on a clean stream. Servers that
// send their 220 banner and then answer EHLO need it before Submit without
// authentication.
func WithEHLODrain() Option {
	return func(o *options) { o.drainEHLO = true }
}
