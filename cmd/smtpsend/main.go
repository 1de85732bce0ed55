// Command smtpsend submits one message to an SMTP server over implicit TLS.
//
//	smtpsend --host smtp.example.com --username me --password secret \
//	    --from me@example.com --to you@example.com --body-file message.eml
//
// Every flag can also be given as an SMTPSEND_* environment variable or in
// a config file passed with --config.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/emersion/go-sasl"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"golang.org/x/net/proxy"

	smtp "github.com/alexisbouchez/smtpsend"
	"github.com/alexisbouchez/smtpsend/internal/config"
	"github.com/alexisbouchez/smtpsend/smtpclient"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stderr))
}

// run executes one invocation and returns the process exit code: 0 on
// success, 1 when the submission fails, 2 on a configuration error.
func run(args []string, stdin io.Reader, stderr io.Writer) int {
	cfg, err := config.Load(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "smtpsend:", err)
		return 2
	}

	logger := newLogger(cfg, stderr)

	body, err := cfg.ReadBody(stdin)
	if err != nil {
		logger.Error("cannot read message body", "error", err)
		return 2
	}

	opts, err := clientOptions(cfg, logger, stderr)
	if err != nil {
		logger.Error("invalid client options", "error", err)
		return 2
	}

	reg := prometheus.NewRegistry()
	opts = append(opts, smtpclient.WithMetrics(smtpclient.NewMetrics(reg)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = send(ctx, cfg, body, opts)

	if cfg.MetricsFile != "" {
		if werr := prometheus.WriteToTextfile(cfg.MetricsFile, reg); werr != nil {
			logger.Warn("cannot write metrics file", "path", cfg.MetricsFile, "error", werr)
		}
	}

	if err != nil {
		attrs := []any{"error", err}
		var se *smtp.SMTPError
		if errors.As(err, &se) {
			attrs = append(attrs, "code", int(se.Code), "temporary", se.Temporary())
		}
		logger.Error("submission failed", attrs...)
		return 1
	}

	logger.Info("message submitted", "host", cfg.Host, "from", cfg.From, "recipients", len(cfg.To))
	return 0
}

// send runs the whole conversation: greeting, optional authentication,
// submission and QUIT.
func send(ctx context.Context, cfg *config.Config, body string, opts []smtpclient.Option) (err error) {
	s, err := smtpclient.Dial(ctx, cfg.Host, cfg.Port, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()

	if cfg.Username != "" {
		switch cfg.Auth {
		case "plain":
			err = s.AuthSASL(ctx, sasl.NewPlainClient("", cfg.Username, cfg.Password))
		default:
			err = s.Authenticate(ctx, cfg.Username, cfg.Password)
		}
		if err != nil {
			return err
		}
	}

	return s.Submit(ctx, cfg.From, cfg.To, body)
}

func clientOptions(cfg *config.Config, logger *slog.Logger, stderr io.Writer) ([]smtpclient.Option, error) {
	opts := []smtpclient.Option{
		smtpclient.WithLocalName(cfg.LocalName),
		smtpclient.WithTimeout(cfg.Timeout),
		smtpclient.WithReadTimeout(cfg.ReadTimeout),
		smtpclient.WithErrorThreshold(smtp.ReplyCode(cfg.ErrorThreshold)),
		smtpclient.WithMaxReplyLines(cfg.MaxReplyLines),
		smtpclient.WithLogger(logger),
	}

	if cfg.Plaintext {
		opts = append(opts, smtpclient.WithoutTLS())
	} else if cfg.InsecureSkipVerify {
		opts = append(opts, smtpclient.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}
	if cfg.DrainEHLO {
		opts = append(opts, smtpclient.WithEHLODrain())
	}
	if cfg.Trace {
		opts = append(opts, smtpclient.WithTracer(smtpclient.NewWriterTracer(stderr, useColor(cfg.Color, stderr))))
	}

	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("proxy: %w", err)
		}
		d, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("proxy: %w", err)
		}
		opts = append(opts, smtpclient.WithProxy(d))
	}

	return opts, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	ho := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}

// useColor resolves the --color setting. In auto mode colors are used
// only when w is a terminal and NO_COLOR is unset.
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
