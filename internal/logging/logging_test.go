package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestInitWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	Init(&Config{
		Level:  LevelInfo,
		Format: FormatLogfmt,
		Output: &buf,
		Fields: []interface{}{"run", "abc"},
	})
	defer Init(nil)

	L_debug("hidden")
	L_info("poll finished", "events", 3)
	L_warn("cursor at %d", 7)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered at info level: %q", out)
	}
	for _, want := range []string{"poll finished", "events=3", "run=abc", "cursor at 7"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}
