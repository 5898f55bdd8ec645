package hermes

import (
	"encoding/json"
	"testing"
)

func TestProgressSubject(t *testing.T) {
	if got := ProgressSubject("abc"); got != "promptvault.import.progress.abc" {
		t.Errorf("ProgressSubject = %q", got)
	}
}

func TestImportFinishedEncoding(t *testing.T) {
	data, err := json.Marshal(ImportFinished{SessionID: "s1", Status: "completed", Imported: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["session_id"] != "s1" || got["imported"] != float64(3) {
		t.Errorf("unexpected payload %s", data)
	}
	if _, ok := got["errors"]; ok {
		t.Errorf("empty errors should be omitted: %s", data)
	}
}
