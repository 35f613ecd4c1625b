package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		env     string
		level   string
		want    zapcore.Level
		wantErr bool
	}{
		{"local", "", zapcore.DebugLevel, false},
		{"dev", "warn", zapcore.WarnLevel, false},
		{"prod", "", zapcore.InfoLevel, false},
		{"prod", "error", zapcore.ErrorLevel, false},
		{"staging", "", 0, true},
		{"local", "loud", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.env+"/"+tt.level, func(t *testing.T) {
			l, err := NewLogger(tt.env, tt.level)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			if !l.Core().Enabled(tt.want) {
				t.Errorf("level %s should be enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && l.Core().Enabled(tt.want-1) {
				t.Errorf("level %s should be disabled", tt.want-1)
			}
		})
	}
}

func TestNewCLILogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewCLILogger(&buf, false)
	l.Info("hidden")
	l.Warn("shown", zap.String("k", "v"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, `"k": "v"`) {
		t.Errorf("warn line missing: %q", out)
	}

	buf.Reset()
	NewCLILogger(&buf, true).Debug("verbose")
	if !strings.Contains(buf.String(), "verbose") {
		t.Errorf("verbose logger should emit debug: %q", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext should never return nil")
	}

	l := zap.NewExample()
	ctx := ContextWithLogger(context.Background(), l)
	if FromContext(ctx) != l {
		t.Error("FromContext should return the stored logger")
	}
}
