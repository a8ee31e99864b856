package audit

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEntry_Builder(t *testing.T) {
	entry := NewEntry(OpUpdate, "products").
		WithRecord(42).
		WithUser("alice").
		WithMetadata("request_id", "r-1").
		WithData(map[string]any{"price": 10})

	if entry.ID == "" {
		t.Error("Expected generated ID")
	}
	if entry.RecordID != "42" || entry.ChangedBy != "alice" {
		t.Errorf("Unexpected entry: %+v", entry)
	}
	if entry.Status != StatusSuccess {
		t.Errorf("Expected success status, got %s", entry.Status)
	}
	if entry.Timestamp.Location().String() != "UTC" {
		t.Errorf("Expected UTC timestamp, got %v", entry.Timestamp.Location())
	}

	entry.WithError(errors.New("constraint failed"))
	if entry.Status != StatusFailure || entry.Error != "constraint failed" {
		t.Errorf("WithError did not mark failure: %+v", entry)
	}
}

func TestEntry_WithNilValues(t *testing.T) {
	entry := NewEntry(OpCreate, "t").WithRecord(nil).WithError(nil)
	if entry.RecordID != "" || entry.Status != StatusSuccess {
		t.Errorf("nil record/error must not change entry: %+v", entry)
	}
}

func TestEntry_Summary(t *testing.T) {
	tests := []struct {
		entry *Entry
		want  string
	}{
		{NewEntry(OpCreate, "products").WithRecord(7), "create products id=7"},
		{NewEntry(OpBatch, "products"), "batch products"},
		{NewEntry(OpHardDelete, "products").WithRecord(1).WithDescription("purged"), "purged"},
	}

	for _, tt := range tests {
		if got := tt.entry.Summary(); got != tt.want {
			t.Errorf("Summary() = %q, want %q", got, tt.want)
		}
	}
}

func TestEntry_FilterByLevel(t *testing.T) {
	entry := NewEntry(OpUpdate, "users").
		WithUser("bob").
		WithMetadata("ip", "10.0.0.1").
		WithData(map[string]any{"password": "secret"})

	minimal := entry.FilterByLevel(LevelMinimal)
	if minimal.Metadata != nil || minimal.Data != nil {
		t.Error("Minimal level should not include metadata or data")
	}
	if minimal.ChangedBy != "bob" {
		t.Error("Minimal level should keep the author")
	}

	standard := entry.FilterByLevel(LevelStandard)
	if standard.Data != nil || standard.Metadata == nil {
		t.Errorf("Standard level should keep metadata only: %+v", standard)
	}

	full := entry.FilterByLevel(LevelFull)
	if full.Data["password"] != "secret" {
		t.Error("Full level should include data")
	}

	full.Metadata["ip"] = "changed"
	if entry.Metadata["ip"] != "10.0.0.1" {
		t.Error("Filtered copy must not share maps with the original")
	}
}

func TestEntry_JSON(t *testing.T) {
	entry := NewEntry(OpSoftDelete, "orders").WithRecord("o-9").WithUser("carol")

	data, err := entry.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	var decoded Entry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.ID != entry.ID || decoded.Operation != OpSoftDelete || decoded.RecordID != "o-9" {
		t.Errorf("Decoded entry mismatch: %+v", decoded)
	}
	if strings.Contains(string(data), `"data"`) {
		t.Errorf("Empty data must be omitted: %s", data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", LevelStandard, false},
		{"minimal", LevelMinimal, false},
		{"full", LevelFull, false},
		{"verbose", LevelStandard, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}
