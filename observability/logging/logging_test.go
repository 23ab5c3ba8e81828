package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Service: "proxyd", Env: "test", Output: &buf})
	logger.Info("started", slog.String("contract", "proxy"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "started", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "proxyd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestNewHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Service: "proxyd", Level: "warn", Output: &buf})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.NotZero(t, buf.Len())
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("jwt_secret", "hunter2").Value.String())
	require.Equal(t, "proxy", MaskField("contract", "proxy").Value.String())
	require.Equal(t, "", MaskField("jwt_secret", "").Value.String())
}

func TestHandlerRedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Service: "proxyd", Output: &buf})
	logger.Info("auth", slog.String("Authorization", "Bearer abc"), slog.String("sender", "furya1xyz"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, RedactedValue, line["Authorization"])
	require.Equal(t, "furya1xyz", line["sender"])
}

func TestDSNHidesPassword(t *testing.T) {
	attr := DSN("dsn", "postgres://indexer:s3cret@db:5432/events")
	require.NotContains(t, attr.Value.String(), "s3cret")
	require.Contains(t, attr.Value.String(), "indexer")
	require.Equal(t, "sqlite://events.db", DSN("dsn", "sqlite://events.db").Value.String())
}

func TestTextFormatRedacts(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Service: "proxyctl", Format: "text", Output: &buf})
	logger.Info("minted", slog.String("token", "eyJhbGciOi"))
	require.Contains(t, buf.String(), "minted")
	require.Contains(t, buf.String(), RedactedValue)
	require.NotContains(t, buf.String(), "eyJhbGciOi")
}

func TestRotatingFileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxyd.log")
	out := RotatingFile(path, 1, 2)
	logger := New(Options{Service: "proxyd", Output: out})
	logger.Info("to disk")
	require.NoError(t, out.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(raw, &line))
	require.Equal(t, "to disk", line["message"])
}
