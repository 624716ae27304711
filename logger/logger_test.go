package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineHandlerFormatsAttrs(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	l := slog.New(NewLineHandler(&buf, slog.LevelDebug)).With("room", "room-42")

	l.Info("joined", "user", "u1")

	out := buf.String()
	assert.Contains(t, out, "| INFO  | joined")
	assert.Contains(t, out, " room=room-42")
	assert.Contains(t, out, " user=u1")
}

func TestLineHandlerRespectsLevel(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	l := slog.New(NewLineHandler(&buf, slog.LevelWarn))

	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestLineHandlerGroupPrefixesKeys(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	l := slog.New(NewLineHandler(&buf, slog.LevelInfo)).WithGroup("ws")

	l.Info("frame", "type", "chat_message")

	assert.Contains(t, buf.String(), " ws.type=chat_message")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestRedactToken(t *testing.T) {
	assert.Equal(t, "eyJh****", RedactToken("eyJhbGciOi"))
	assert.Equal(t, "****", RedactToken("abc"))
}
