package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/rickgao/guildfeed/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		logger.Info("dropped")
		logger.Warn("kept", "socket_id", "abc")

		var rec map[string]any
		if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
			t.Fatalf("output is not one JSON record: %q", buf.String())
		}
		if rec["msg"] != "kept" || rec["socket_id"] != "abc" {
			t.Errorf("record = %v", rec)
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		logger.Debug("hello", "n", 1)
		if !strings.Contains(buf.String(), "msg=hello n=1") {
			t.Errorf("output = %q", buf.String())
		}
	})

	t.Run("bad format", func(t *testing.T) {
		if _, err := New(config.LoggingConfig{Level: "info", Format: "xml"}, &bytes.Buffer{}); err == nil {
			t.Error("expected error")
		}
	})
}
