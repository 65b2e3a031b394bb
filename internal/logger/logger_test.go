package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, level("DEBUG"))
	assert.Equal(t, slog.LevelWarn, level("warn"))
	assert.Equal(t, slog.LevelError, level("error"))
	assert.Equal(t, slog.LevelInfo, level(""))
	assert.Equal(t, slog.LevelInfo, level("verbose"))
}

func TestNew_HandlerByEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	_, isJSON := New("production").Handler().(*slog.JSONHandler)
	assert.True(t, isJSON)

	_, isText := New("development").Handler().(*slog.TextHandler)
	assert.True(t, isText)
}

func TestNew_RespectsLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	l := New("development")
	assert.False(t, l.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, l.Enabled(context.Background(), slog.LevelError))
}
