package logging

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name          string
		logsDir       string
		appName string
		want          string
	}{
		{
			name:          "basic path",
			logsDir:       "locsharelogs",
			appName: "locshare",
			want:          filepath.Join("locsharelogs", "locshare.20260212_213836.log"),
		},
		{
			name:          "relative path with dot",
			logsDir:       "./locsharelogs",
			appName: "locshare",
			want:          filepath.Join(".", "locsharelogs", "locshare.20260212_213836.log"),
		},
		{
			name:          "absolute path",
			logsDir:       filepath.Join("/var", "log", "locshare"),
			appName: "locshare",
			want:          filepath.Join("/var", "log", "locshare", "locshare.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.appName, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestActorContext(t *testing.T) {
	attrs := ActorContext("walker", "abc")()
	assert.Equal(t, []slog.Attr{slog.String("role", "walker"), slog.String("actor", "abc")}, attrs)

	attrs = ActorContext("petter", "")()
	assert.Equal(t, []slog.Attr{slog.String("role", "petter")}, attrs, "petter has no actor id")
}
