package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level   string
		format  string
		wantErr bool
	}{
		{"info", "json", false},
		{"DEBUG", "text", false},
		{"trace", "", false},
		{"warn", "JSON", false},
		{"verbose", "json", true},
		{"info", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			_, err := New(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q, %q) error = %v, wantErr %v", tt.level, tt.format, err, tt.wantErr)
			}
		})
	}
}

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOutput("info", "json", &buf)
	if err != nil {
		t.Fatalf("NewWithOutput() error = %v", err)
	}

	logger.Named("store").Info("segment created", "app", "app-1")
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if got, want := entry["@module"], "segmenter.store"; got != want {
		t.Errorf("@module = %v, want %v", got, want)
	}
	if got, want := entry["app"], "app-1"; got != want {
		t.Errorf("app = %v, want %v", got, want)
	}
}
