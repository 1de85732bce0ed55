package textproto

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, c *Conn, ctx context.Context) ([]string, error) {
	t.Helper()
	var lines []string
	for line, err := range c.Lines(ctx) {
		if err != nil {
			return lines, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func TestReadLine(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := NewConn(server)

	go func() {
		client.Write([]byte("EHLO example.com\r\n"))
		client.Write([]byte("QUIT\r\n"))
	}()

	line, err := conn.ReadLine(MaxCommandLineLen)
	require.NoError(t, err)
	assert.Equal(t, "EHLO example.com", line)

	line, err = conn.ReadLine(MaxCommandLineLen)
	require.NoError(t, err)
	assert.Equal(t, "QUIT", line)
}

func TestReadLine_TooLong(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := NewConn(server)

	go func() {
		client.Write([]byte(strings.Repeat("A", 600) + "\r\n"))
	}()

	_, err := conn.ReadLine(MaxCommandLineLen)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line too long")
}

// countingConn records how many Write calls reach the network.
type countingConn struct {
	net.Conn
	writes atomic.Int32
}

func (c *countingConn) Write(p []byte) (int, error) {
	c.writes.Add(1)
	return c.Conn.Write(p)
}

func TestWriteLine_SingleWrite(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	cc := &countingConn{Conn: server}
	conn := NewConn(cc)

	done := make(chan error, 1)
	go func() {
		done <- conn.WriteLine("MAIL FROM:<a@example.com>")
	}()

	got, err := NewConn(client).ReadLine(MaxCommandLineLen)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, "MAIL FROM:<a@example.com>", got)
	assert.Equal(t, int32(1), cc.writes.Load())
}

func TestWriteLines_SingleWrite(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	cc := &countingConn{Conn: server}
	conn := NewConn(cc)

	go func() {
		conn.WriteLines("250-first", "250 last")
		conn.Close()
	}()

	data, err := io.ReadAll(client)
	require.NoError(t, err)
	assert.Equal(t, "250-first\r\n250 last\r\n", string(data))
	assert.Equal(t, int32(1), cc.writes.Load())
}

func TestLines_EndsAtEOF(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	conn := NewConn(server)

	go func() {
		client.Write([]byte("250-first\r\n250-second\r\n"))
		client.Write([]byte("250 last\r\n"))
		client.Close()
	}()

	lines, err := collect(t, conn, context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"250-first", "250-second", "250 last"}, lines)
}

func TestLines_ResumesAcrossCalls(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	conn := NewConn(server)

	go func() {
		// Both replies arrive in one segment; the second must survive the
		// first iteration stopping early.
		client.Write([]byte("220 ready\r\n250 ok\r\n"))
		client.Close()
	}()

	for line, err := range conn.Lines(context.Background()) {
		require.NoError(t, err)
		assert.Equal(t, "220 ready", line)
		break
	}

	lines, err := collect(t, conn, context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"250 ok"}, lines)
}

func TestLines_ReadTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := NewConn(server)
	conn.SetReadTimeout(20 * time.Millisecond)

	lines, err := collect(t, conn, context.Background())
	assert.Empty(t, lines)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded), "got %v", err)
}

func TestLines_ContextCancel(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := NewConn(server)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := collect(t, conn, ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLines_ContextDeadline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := NewConn(server)
	conn.SetReadTimeout(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := collect(t, conn, ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLines_LineTooLong(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := NewConn(server)

	go func() {
		client.Write([]byte(strings.Repeat("5", MaxReplyLineLen+10) + "\r\n"))
	}()

	_, err := collect(t, conn, context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line too long")
}

// closeCounter counts Close calls on the network connection.
type closeCounter struct {
	net.Conn
	closes atomic.Int32
}

func (c *closeCounter) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

func TestClose_Idempotent(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	cc := &closeCounter{Conn: server}
	conn := NewConn(cc)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, int32(1), cc.closes.Load())
}

func TestReadData_FromConn(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	conn := NewConn(server)

	go func() {
		client.Write([]byte(EncodeData("Subject: hi\r\n\r\n.dotted") + "\r\nQUIT\r\n"))
		client.Close()
	}()

	body, err := conn.ReadData()
	require.NoError(t, err)
	assert.Equal(t, "Subject: hi\r\n\r\n.dotted\r\n", body)

	line, err := conn.ReadLine(MaxCommandLineLen)
	require.NoError(t, err)
	assert.Equal(t, "QUIT", line)
}
