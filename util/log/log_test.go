package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogging(t *testing.T) {
	// Capture the facade's output. The non-release init sets debug level,
	// so every helper below actually writes.
	var buf bytes.Buffer
	SetOutput(&buf)

	tests := []struct {
		name    string
		fn      func()
		message string
		level   string
	}{
		{
			name:    "Print",
			fn:      func() { Print("test print") },
			message: "test print",
			level:   "info",
		},
		{
			name:    "Printf",
			fn:      func() { Printf("test printf %d", 123) },
			message: "test printf 123",
			level:   "info",
		},
		{
			name:    "Println",
			fn:      func() { Println("test println") },
			message: "test println",
			level:   "info",
		},
		{
			name:    "Debug",
			fn:      func() { Debug("test debug") },
			message: "test debug",
			level:   "debug",
		},
		{
			name:    "Debugf",
			fn:      func() { Debugf("test debugf %s", "foo") },
			message: "test debugf foo",
			level:   "debug",
		},
		{
			name:    "Warnf",
			fn:      func() { Warnf("test warnf %s", "bar") },
			message: "test warnf bar",
			level:   "warning",
		},
		{
			name:    "Error",
			fn:      func() { Error("test error") },
			message: "test error",
			level:   "error",
		},
		{
			name:    "Errorf",
			fn:      func() { Errorf("test errorf %d", 7) },
			message: "test errorf 7",
			level:   "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.fn()
			out := buf.String()
			if !strings.Contains(out, tt.message) {
				t.Errorf("Expected log to contain %q, but got %q", tt.message, out)
			}
			if !strings.Contains(out, "level="+tt.level) {
				t.Errorf("Expected log at level %q, but got %q", tt.level, out)
			}
		})
	}
}

// NOTE: Testing Fatal* functions requires a subprocess, which is often overkill for simple wrappers.
