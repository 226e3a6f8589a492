package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestWriterLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "monitor"))

	log.Debug("hidden")
	log.Info("round finished", Int("targets", 3), Err(errors.New("x")))
	log.Critical("startup failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if first["message"] != "round finished" || first["comp"] != "monitor" || first["targets"] != float64(3) || first["err"] != "x" {
		t.Fatalf("unexpected entry: %v", first)
	}

	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if second["level"] != "fatal" {
		t.Fatalf("critical level = %v, want fatal", second["level"])
	}
}

func TestZeroAndNopLoggers(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	zero.Info("ignored")
	if Nop().IsZero() {
		t.Fatal("Nop should not be zero")
	}
	Nop().Error("ignored")
}
