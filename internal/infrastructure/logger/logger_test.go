package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: " error ", want: LevelError},
		{in: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLevel(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConfig_YAMLLevelByName(t *testing.T) {
	var cfg Config
	if err := yaml.Unmarshal([]byte("level: debug\nformat: json\n"), &cfg); err != nil {
		t.Fatalf("Failed to unmarshal config: %v", err)
	}
	if cfg.Level != LevelDebug {
		t.Errorf("Expected debug level, got %v", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("Expected json format, got %s", cfg.Format)
	}
}

func TestLogrusLogger_WithFieldKeepsLevelControl(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	log := NewLogrusLogger(cfg)

	var buf bytes.Buffer
	log.SetOutput(&buf)

	child := log.WithField("connection_id", "ws-1")
	child.SetLevel(LevelWarn)
	child.Info("dropped")
	child.Warn("kept")

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "dropped") {
		t.Errorf("Info message should be filtered at warn level: %s", out)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(out), &entry); err != nil {
		t.Fatalf("Expected one JSON line, got %q: %v", out, err)
	}
	if entry["message"] != "kept" {
		t.Errorf("Expected message 'kept', got %v", entry["message"])
	}
	if entry["connection_id"] != "ws-1" {
		t.Errorf("Expected connection_id field, got %v", entry["connection_id"])
	}
}
