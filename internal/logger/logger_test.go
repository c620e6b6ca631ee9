package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriter_TagsRecords(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "api", "prod")

	log.Debug("hidden")
	log.Info("ticket_purchased", "ticket_id", "t1")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected debug to be filtered in prod, got %d lines", len(lines))
	}
	var rec map[string]any
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["app"] != "api" || rec["env"] != "prod" || rec["msg"] != "ticket_purchased" || rec["ticket_id"] != "t1" {
		t.Fatalf("unexpected record: %v", rec)
	}
}
