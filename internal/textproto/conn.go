// Package textproto implements the low-level SMTP wire protocol:
// single-write command lines, a lazy sequence of reply lines, status-line
// parsing, and dot-stuffed DATA bodies. It sits between net.Conn and the
// SMTP client and test server.
package textproto

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"strings"
	"sync"
	"time"
)

// MaxCommandLineLen is the maximum length of an SMTP command line
// including CRLF (RFC 5321 §4.5.3.1.4).
const MaxCommandLineLen = 512

// MaxTextLineLen is the maximum length of a text line in the message body
// including CRLF (RFC 5322 §2.1.1).
const MaxTextLineLen = 1000

// MaxReplyLineLen is a generous limit for reply lines to prevent memory exhaustion.
const MaxReplyLineLen = 2048

// Conn wraps a net.Conn with a persistent buffered reader. Every call to
// Lines reads from the same buffer, so bytes that arrive ahead of time are
// never lost between exchanges.
type Conn struct {
	conn         net.Conn
	r            *bufio.Reader
	readTimeout  time.Duration
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewConn creates a new protocol Conn wrapping the given network connection.
func NewConn(c net.Conn) *Conn {
	return &Conn{
		conn: c,
		r:    bufio.NewReaderSize(c, 4096),
	}
}

// NetConn returns the underlying net.Conn.
func (c *Conn) NetConn() net.Conn {
	return c.conn
}

// SetReadTimeout bounds every wait for a line in Lines. Zero disables it.
func (c *Conn) SetReadTimeout(d time.Duration) {
	c.readTimeout = d
}

// SetWriteTimeout bounds every Write. Zero disables it.
func (c *Conn) SetWriteTimeout(d time.Duration) {
	c.writeTimeout = d
}

// Close closes the underlying connection. Only the first call reaches the
// network connection; later calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// SetReadDeadline sets the read deadline on the underlying connection.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Write sends p to the peer in a single write on the underlying connection.
func (c *Conn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.Write(p)
}

// WriteLine writes a line followed by \r\n.
func (c *Conn) WriteLine(line string) error {
	_, err := c.Write([]byte(line + "\r\n"))
	return err
}

// WriteLines writes multiple lines, each followed by \r\n, in one write.
func (c *Conn) WriteLines(lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	_, err := c.Write([]byte(strings.Join(lines, "\r\n") + "\r\n"))
	return err
}

// ReadLine reads a single \r\n-terminated line from the connection.
// The returned line does NOT include the trailing \r\n.
// Returns an error if the line exceeds maxLen bytes (including \r\n).
func (c *Conn) ReadLine(maxLen int) (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := c.r.ReadLine()
		line = append(line, chunk...)
		if err != nil {
			return "", err
		}
		if !isPrefix {
			break
		}
		if len(line) > maxLen {
			for isPrefix {
				_, isPrefix, err = c.r.ReadLine()
				if err != nil {
					break
				}
			}
			return "", fmt.Errorf("smtp: line too long (%d bytes, max %d)", len(line), maxLen)
		}
	}
	if len(line) > maxLen-2 { // -2 for the \r\n we already consumed
		return "", fmt.Errorf("smtp: line too long (%d bytes, max %d)", len(line)+2, maxLen)
	}
	return string(line), nil
}

// Lines returns the sequence of reply lines still to be read from the
// connection. The sequence ends without an error when the peer closes the
// connection; any other read failure, including a timeout, is yielded once
// as an error and ends the sequence. Cancelling ctx interrupts a pending
// read.
func (c *Conn) Lines(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stop := context.AfterFunc(ctx, func() {
			c.conn.SetReadDeadline(time.Now())
		})
		defer stop()

		for {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			c.armReadDeadline(ctx)
			if ctx.Err() != nil {
				c.conn.SetReadDeadline(time.Now())
			}
			line, err := c.ReadLine(MaxReplyLineLen)
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				} else if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
					err = context.DeadlineExceeded
				}
				yield("", err)
				return
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}

// armReadDeadline applies the earlier of the context deadline and the
// per-line read timeout.
func (c *Conn) armReadDeadline(ctx context.Context) {
	var dl time.Time
	if c.readTimeout > 0 {
		dl = time.Now().Add(c.readTimeout)
	}
	if cdl, ok := ctx.Deadline(); ok && (dl.IsZero() || cdl.Before(dl)) {
		dl = cdl
	}
	c.conn.SetReadDeadline(dl)
}

// ReadData reads a dot-terminated DATA body and returns it with the
// dot-stuffing removed and every line ending in CRLF.
func (c *Conn) ReadData() (string, error) {
	return readData(c.r)
}
