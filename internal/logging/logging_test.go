package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Level(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"chatty", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		log := New(tt.in)
		if got := log.Level(); got != tt.want {
			t.Errorf("New(%q) level = %v, want %v", tt.in, got, tt.want)
		}
	}
}
