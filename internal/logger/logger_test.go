package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlogLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, slog.LevelDebug)

	tests := []struct {
		name  string
		log   func()
		want  string
		level string
	}{
		{"debug", func() { l.Debug("graph request failed", "status", 404) }, "status=404", "level=DEBUG"},
		{"debugf", func() { l.Debugf("Fetching next page: %s", "https://graph.microsoft.com/v1.0/users?$skiptoken=x") }, "Fetching next page", "level=DEBUG"},
		{"info", func() { l.Info("signed in", "account", "adele@contoso.com") }, "account=adele@contoso.com", "level=INFO"},
		{"infof", func() { l.Infof("Resuming upload from %d bytes", 655360) }, "Resuming upload from 655360 bytes", "level=INFO"},
		{"warn", func() { l.Warn("throttled", "host", "graph.microsoft.com") }, "host=graph.microsoft.com", "level=WARN"},
		{"warnf", func() { l.Warnf("Could not save token cache: %v", "disk full") }, "disk full", "level=WARN"},
		{"error", func() { l.Error("upload failed", "range", "bytes 0-9/10") }, "upload failed", "level=ERROR"},
		{"errorf", func() { l.Errorf("token request failed: %s", "invalid_client") }, "invalid_client", "level=ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			assert.Contains(t, buf.String(), tt.want)
			assert.Contains(t, buf.String(), tt.level)
		})
	}
}

func TestSlogLoggerRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, slog.LevelDebug)

	l.Debug("token reply", "access_token", "eyJ0eXAi", "Refresh_Token", "0.AAA", "expires_in", 3599)
	l.Debug("device code poll", "device_code", "DAQABAAEAAA", "interval", "5s")

	out := buf.String()
	assert.NotContains(t, out, "eyJ0eXAi")
	assert.NotContains(t, out, "0.AAA")
	assert.NotContains(t, out, "DAQABAAEAAA")
	assert.Contains(t, out, "access_token="+Redacted)
	assert.Contains(t, out, "expires_in=3599")
	assert.Contains(t, out, "interval=5s")
}

func TestSlogLoggerKeepsPercentInDumps(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, slog.LevelDebug)

	l.Debugf("Request:\nGET /v1.0/users?$filter=startswith(displayName,'a%20b') HTTP/1.1")
	assert.Contains(t, buf.String(), "a%20b")
	assert.NotContains(t, buf.String(), "%!")
}

func TestWriterLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, slog.LevelWarn)

	l.Infof("token refreshed for %s", "me")
	l.Warnf("throttled, retry after %ds", 3)

	assert.NotContains(t, buf.String(), "token refreshed")
	assert.Contains(t, buf.String(), "throttled, retry after 3s")
}

func TestDefaultLogger(t *testing.T) {
	assert.IsType(t, &SlogLogger{}, NewDefaultLogger(true))
	assert.IsType(t, &SlogLogger{}, NewDefaultLogger(false))

	var l Logger = NoopLogger{}
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Debugf("x %d", 1)
		l.Info("x")
		l.Infof("x %d", 1)
		l.Warn("x")
		l.Warnf("x %d", 1)
		l.Error("x")
		l.Errorf("x %d", 1)
	})
}
