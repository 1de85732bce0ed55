// Package config loads the smtpsend command-line configuration from flags,
// SMTPSEND_* environment variables, an optional config file and defaults,
// in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "smtpsend"

// Config is the complete configuration of one smtpsend run.
type Config struct {
	Host      string `mapstructure:"host" validate:"required,hostname_rfc1123"`
	Port      int    `mapstructure:"port" validate:"min=1,max=65535"`
	LocalName string `mapstructure:"local_name" validate:"required,hostname_rfc1123"`

	Username string `mapstructure:"username" validate:"required_with=Password"`
	Password string `mapstructure:"password" validate:"required_with=Username"`
	Auth     string `mapstructure:"auth" validate:"oneof=login plain"`

	From     string   `mapstructure:"from" validate:"required,email|eq=<>"`
	To       []string `mapstructure:"to" validate:"required,min=1,dive,email"`
	Body     string   `mapstructure:"body"`
	BodyFile string   `mapstructure:"body_file" validate:"excluded_with=Body"`

	Timeout            time.Duration `mapstructure:"timeout" validate:"gt=0"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	ErrorThreshold     int           `mapstructure:"error_threshold" validate:"oneof=400 500"`
	MaxReplyLines      int           `mapstructure:"max_reply_lines" validate:"gte=0"`
	DrainEHLO          bool          `mapstructure:"drain_ehlo"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	Plaintext          bool          `mapstructure:"plaintext"`
	Proxy              string        `mapstructure:"proxy" validate:"omitempty,url"`

	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string `mapstructure:"log_format" validate:"oneof=text json"`
	Color       string `mapstructure:"color" validate:"oneof=auto always never"`
	Trace       bool   `mapstructure:"trace"`
	MetricsFile string `mapstructure:"metrics_file"`
}

// Load parses args (without the program name) and builds the
// configuration. Usage and parse errors are written to out. It returns
// pflag.ErrHelp when help was requested.
func Load(args []string, out io.Writer) (*Config, error) {
	v := viper.New()
	fs := newFlagSet(out)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	setDefaults(v)

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil {
			bindErr = errors.Join(bindErr, err)
		}
	})
	if bindErr != nil {
		return nil, fmt.Errorf("config: binding flags: %w", bindErr)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AllowEmptyEnv(false)
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	cfg.To = splitList(cfg.To)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newFlagSet(out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("smtpsend", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false
	fs.Usage = func() {
		fmt.Fprintln(out, "Usage: smtpsend [flags]")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Submits one message over implicit TLS. Every flag can also be set with")
		fmt.Fprintln(out, "an SMTPSEND_<NAME> environment variable or a key in the --config file.")
		fmt.Fprintln(out)
		fs.PrintDefaults()
	}

	fs.StringP("config", "c", "", "config file (yaml, toml, json, ...)")

	fs.StringP("host", "H", "", "SMTP server host")
	fs.IntP("port", "p", 465, "SMTP server port")
	fs.String("local-name", "localhost", "name announced in EHLO")

	fs.StringP("username", "u", "", "AUTH username")
	fs.String("password", "", "AUTH password")
	fs.String("auth", "login", "AUTH mechanism: login or plain")

	fs.StringP("from", "f", "", "envelope sender")
	fs.StringSliceP("to", "t", nil, "envelope recipient (repeatable or comma separated)")
	fs.StringP("body", "b", "", "message body; read from --body-file or stdin when empty")
	fs.String("body-file", "", "file holding the message body")

	fs.Duration("timeout", 30*time.Second, "bound for dial, greeting and each operation")
	fs.Duration("read-timeout", 30*time.Second, "bound for each reply line")
	fs.Int("error-threshold", 500, "lowest reply code treated as a rejection: 400 or 500")
	fs.Int("max-reply-lines", 100, "unmatched reply lines tolerated per command, 0 for no limit")
	fs.Bool("drain-ehlo", true, "consume the EHLO reply after the greeting")
	fs.Bool("insecure-skip-verify", false, "do not verify the server certificate")
	fs.Bool("plaintext", false, "connect without TLS")
	fs.String("proxy", "", "proxy URL, e.g. socks5://127.0.0.1:1080")

	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "text", "log format: text or json")
	fs.String("color", "auto", "colored trace output: auto, always or never")
	fs.Bool("trace", false, "print the SMTP conversation to stderr")
	fs.String("metrics-file", "", "write Prometheus metrics to this file on exit")

	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 465)
	v.SetDefault("local_name", "localhost")
	v.SetDefault("auth", "login")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("read_timeout", 30*time.Second)
	v.SetDefault("error_threshold", 500)
	v.SetDefault("max_reply_lines", 100)
	v.SetDefault("drain_ehlo", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("color", "auto")
}

// splitList flattens comma separated entries, which environment variables
// and config strings produce, and drops empty ones.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for part := range strings.SplitSeq(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint and reports all violations.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_with":
		return field + " is required with " + fe.Param()
	case "excluded_with":
		return field + " cannot be combined with " + fe.Param()
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s: invalid value %v (%s)", field, fe.Value(), fe.Tag())
	}
}

// ReadBody returns the message body: Body if set, else the contents of
// BodyFile, else everything read from stdin.
func (c *Config) ReadBody(stdin io.Reader) (string, error) {
	switch {
	case c.Body != "":
		return c.Body, nil
	case c.BodyFile != "":
		b, err := os.ReadFile(c.BodyFile)
		if err != nil {
			return "", fmt.Errorf("config: reading body: %w", err)
		}
		return string(b), nil
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("config: reading body from stdin: %w", err)
		}
		return string(b), nil
	}
}
