package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{" INFO ", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log := New("test", tt.level, false)
			if got := log.GetLevel(); got != tt.want {
				t.Errorf("New(%q).GetLevel() = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}
