package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := SetupLevel("json", tt.level).GetLevel(); got != tt.want {
			t.Errorf("SetupLevel(%q) level = %v, want %v", tt.level, got, tt.want)
		}
	}
}
