package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{JSON: true, Service: "camp-auth", Output: &buf})
	log.Info("hello", "k", "v")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if line["service"] != "camp-auth" {
		t.Errorf("service = %v", line["service"])
	}
	if line["msg"] != "hello" || line["k"] != "v" {
		t.Errorf("line = %v", line)
	}
}

func TestNew_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Output: &buf}).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug line written at info level: %s", buf.String())
	}
	New(Options{Debug: true, Output: &buf}).Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug line missing: %s", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("dropped")
}
