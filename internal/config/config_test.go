package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var minimal = []string{"--host", "mx.example.com", "--from", "a@example.com", "--to", "b@example.com"}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(minimal, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "mx.example.com", cfg.Host)
	assert.Equal(t, 465, cfg.Port)
	assert.Equal(t, "localhost", cfg.LocalName)
	assert.Equal(t, "login", cfg.Auth)
	assert.Equal(t, []string{"b@example.com"}, cfg.To)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 500, cfg.ErrorThreshold)
	assert.Equal(t, 100, cfg.MaxReplyLines)
	assert.True(t, cfg.DrainEHLO)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "auto", cfg.Color)
	assert.False(t, cfg.Plaintext)
}

func TestLoad_Flags(t *testing.T) {
	args := append([]string{
		"--port", "2525",
		"--local-name", "client.example.com",
		"--to", "c@example.com,d@example.com",
		"--username", "alice",
		"--password", "s3cret",
		"--auth", "plain",
		"--timeout", "5s",
		"--error-threshold", "400",
		"--plaintext",
		"--trace",
	}, minimal...)

	cfg, err := Load(args, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 2525, cfg.Port)
	assert.Equal(t, "client.example.com", cfg.LocalName)
	assert.Equal(t, []string{"c@example.com", "d@example.com", "b@example.com"}, cfg.To)
	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, "plain", cfg.Auth)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 400, cfg.ErrorThreshold)
	assert.True(t, cfg.Plaintext)
	assert.True(t, cfg.Trace)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SMTPSEND_HOST", "env.example.com")
	t.Setenv("SMTPSEND_FROM", "env@example.com")
	t.Setenv("SMTPSEND_TO", "x@example.com, y@example.com")
	t.Setenv("SMTPSEND_PORT", "587")
	t.Setenv("SMTPSEND_READ_TIMEOUT", "2s")

	cfg, err := Load(nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "env.example.com", cfg.Host)
	assert.Equal(t, "env@example.com", cfg.From)
	assert.Equal(t, []string{"x@example.com", "y@example.com"}, cfg.To)
	assert.Equal(t, 587, cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("SMTPSEND_HOST", "env.example.com")

	cfg, err := Load(minimal, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "mx.example.com", cfg.Host)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smtpsend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"host: file.example.com",
		"port: 2465",
		"from: file@example.com",
		"to:",
		"  - one@example.com",
		"  - two@example.com",
		"log_format: json",
	}, "\n")), 0o600))
	t.Setenv("SMTPSEND_PORT", "3465")

	cfg, err := Load([]string{"--config", path}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "file.example.com", cfg.Host)
	assert.Equal(t, 3465, cfg.Port, "environment wins over the file")
	assert.Equal(t, []string{"one@example.com", "two@example.com"}, cfg.To)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_NullSender(t *testing.T) {
	cfg, err := Load([]string{"--host", "mx.example.com", "--from", "<>", "--to", "b@example.com"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "<>", cfg.From)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(append([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}, minimal...), io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: reading")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing host", []string{"--from", "a@example.com", "--to", "b@example.com"}, "Host is required"},
		{"missing recipients", []string{"--host", "mx.example.com", "--from", "a@example.com"}, "To is required"},
		{"bad sender", []string{"--host", "mx.example.com", "--from", "nope", "--to", "b@example.com"}, "From"},
		{"bad recipient", append([]string{"--to", "nope"}, minimal...), "To[0]"},
		{"port range", append([]string{"--port", "70000"}, minimal...), "Port"},
		{"username without password", append([]string{"--username", "alice"}, minimal...), "Password is required with Username"},
		{"threshold", append([]string{"--error-threshold", "450"}, minimal...), "ErrorThreshold must be one of [400 500]"},
		{"auth mechanism", append([]string{"--auth", "cram-md5"}, minimal...), "Auth must be one of"},
		{"body and file", append([]string{"--body", "x", "--body-file", "y"}, minimal...), "BodyFile cannot be combined with Body"},
		{"log format", append([]string{"--log-format", "xml"}, minimal...), "LogFormat"},
		{"proxy", append([]string{"--proxy", "not a url"}, minimal...), "Proxy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args, io.Discard)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_Help(t *testing.T) {
	var out strings.Builder
	_, err := Load([]string{"--help"}, &out)
	require.ErrorIs(t, err, pflag.ErrHelp)
	assert.Contains(t, out.String(), "--local-name")
	assert.Contains(t, out.String(), "SMTPSEND_")
}

func TestLoad_UnknownFlag(t *testing.T) {
	_, err := Load([]string{"--bogus"}, io.Discard)
	require.Error(t, err)
}

func TestReadBody(t *testing.T) {
	t.Run("inline", func(t *testing.T) {
		body, err := (&Config{Body: "inline"}).ReadBody(strings.NewReader("stdin"))
		require.NoError(t, err)
		assert.Equal(t, "inline", body)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "body.eml")
		require.NoError(t, os.WriteFile(path, []byte("from file"), 0o600))

		body, err := (&Config{BodyFile: path}).ReadBody(strings.NewReader("stdin"))
		require.NoError(t, err)
		assert.Equal(t, "from file", body)
	})

	t.Run("stdin", func(t *testing.T) {
		body, err := (&Config{}).ReadBody(strings.NewReader("from stdin"))
		require.NoError(t, err)
		assert.Equal(t, "from stdin", body)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := (&Config{BodyFile: filepath.Join(t.TempDir(), "absent")}).ReadBody(nil)
		require.Error(t, err)
	})
}
