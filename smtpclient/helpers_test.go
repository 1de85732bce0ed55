package smtpclient

import (
	"context"
	"iter"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeTransport replays canned reply lines and records every write and
// close. Replies are consumed in order regardless of what was written.
type fakeTransport struct {
	mu       sync.Mutex
	replies  []string
	pos      int
	writes   []string
	closes   int
	writeErr error
	readErr  error // yielded once the replies run out, instead of ending
}

func newFake(replies ...string) *fakeTransport {
	return &fakeTransport{replies: replies}
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, string(p))
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return len(p), nil
}

func (f *fakeTransport) Lines(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			f.mu.Lock()
			if f.pos >= len(f.replies) {
				err := f.readErr
				f.mu.Unlock()
				if err != nil {
					yield("", err)
				}
				return
			}
			line := f.replies[f.pos]
			f.pos++
			f.mu.Unlock()

			if !yield(line, nil) {
				return
			}
		}
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeTransport) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeTransport) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// countPrefix counts the writes starting with prefix.
func countPrefix(writes []string, prefix string) int {
	n := 0
	for _, w := range writes {
		if strings.HasPrefix(w, prefix) {
			n++
		}
	}
	return n
}

// recordingTracer keeps every trace event as "<kind> <line>".
type recordingTracer struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingTracer) Sent(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "sent "+line)
}

func (r *recordingTracer) Received(line string, v Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, v.String()+" "+line)
}

func (r *recordingTracer) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

var discardLogger = slog.New(slog.DiscardHandler)

// quiet is the option set used by tests that do not inspect logs.
func quiet(opts ...Option) []Option {
	return append([]Option{WithLogger(discardLogger)}, opts...)
}

// greeted returns a session over a fake transport that has already
// answered EHLO with 220. replies follow the greeting.
func greeted(t *testing.T, replies ...string) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFake(append([]string{"220 mx.test ESMTP"}, replies...)...)
	s, err := NewSession(context.Background(), ft, quiet()...)
	require.NoError(t, err)
	return s, ft
}

// hostPort splits a listener address for Dial.
func hostPort(t testing.TB, addr string) (string, int) {
	t.Helper()
	host, p, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	return host, port
}
