package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewParsesLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"nonsense", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		l, err := New(tt.level)
		if err != nil {
			t.Fatalf("New(%q): %v", tt.level, err)
		}
		if !l.Core().Enabled(tt.want) || (tt.want > zapcore.DebugLevel && l.Core().Enabled(tt.want-1)) {
			t.Fatalf("New(%q) does not log at exactly %s", tt.level, tt.want)
		}
	}
}

func TestGlobalDefaultsToNop(t *testing.T) {
	if Global() == nil {
		t.Fatal("Global returned nil before SetGlobal")
	}
	l := NewNop()
	SetGlobal(l)
	defer SetGlobal(nil)
	if Global() != l {
		t.Fatal("SetGlobal did not replace the global logger")
	}
}
