package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		New(&buf, slog.LevelInfo, "json").Info("Claim paid", "amount", 42)

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("output is not JSON: %v: %s", err, buf.String())
		}
		if line["msg"] != "Claim paid" || line["amount"] != float64(42) {
			t.Errorf("line = %v", line)
		}
	})

	t.Run("text filters by level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&buf, slog.LevelWarn, "")
		logger.Info("hidden")
		logger.Warn("shown")

		out := buf.String()
		if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
			t.Errorf("output = %q", out)
		}
	})
}
