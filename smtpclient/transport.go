package smtpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"iter"
	"net"
	"strconv"

	"golang.org/x/net/proxy"

	"github.com/alexisbouchez/smtpsend/internal/textproto"
)

// Transport is an open, ordered byte stream to the server. A Session owns
// its Transport exclusively.
//
// Write must send p in one call. Lines yields the reply lines still to be
// read, without their line terminators; each call resumes where the
// previous one stopped, so no line is lost between exchanges. The
// sequence ends when the peer closes the stream and yields a non-nil error
// once on any other failure. Close must be safe to call more than once.
type Transport interface {
	Write(p []byte) (int, error)
	Lines(ctx context.Context) iter.Seq2[string, error]
	Close() error
}

var _ Transport = (*textproto.Conn)(nil)

// dialTransport opens the connection to host:port: implicit TLS unless
// plaintext is requested, through the configured proxy if any.
func dialTransport(ctx context.Context, host string, port int, o *options) (*textproto.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	nc, err := dialNet(ctx, addr, o)
	if err != nil {
		return nil, fmt.Errorf("smtp: dial %s: %w", addr, err)
	}

	if !o.plaintext {
		cfg := &tls.Config{}
		if o.tlsConfig != nil {
			cfg = o.tlsConfig.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		tc := tls.Client(nc, cfg)
		if err := tc.HandshakeContext(ctx); err != nil {
			nc.Close()
			return nil, fmt.Errorf("smtp: TLS handshake with %s: %w", addr, err)
		}
		nc = tc
	}

	conn := textproto.NewConn(nc)
	conn.SetReadTimeout(o.readTimeout)
	conn.SetWriteTimeout(o.timeout)
	return conn, nil
}

func dialNet(ctx context.Context, addr string, o *options) (net.Conn, error) {
	if o.proxy == nil {
		return o.dialer.DialContext(ctx, "tcp", addr)
	}
	if cd, ok := o.proxy.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", addr)
	}
	return o.proxy.Dial("tcp", addr)
}
