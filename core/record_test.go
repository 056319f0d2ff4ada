package core

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

type priority string

func TestNormalize(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	name := "alice"

	tests := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{7, int64(7)},
		{int32(7), int64(7)},
		{uint8(7), int64(7)},
		{1.5, 1.5},
		{float32(0.5), 0.5},
		{"pending", "pending"},
		{priority("urgent"), "urgent"},
		{true, true},
		{&name, "alice"},
		{(*string)(nil), nil},
		{json.Number("42"), int64(42)},
		{json.Number("4.2"), 4.2},
		{at, "2026-03-01T08:30:00Z"},
	}

	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if err != nil {
			t.Fatalf("Normalize(%v): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Normalize(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeBlob(t *testing.T) {
	got, err := Normalize(map[string]any{"channel": "social"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	blob, ok := got.(json.RawMessage)
	if !ok {
		t.Fatalf("expected json.RawMessage, got %T", got)
	}
	if string(blob) != `{"channel":"social"}` {
		t.Errorf("unexpected blob %s", blob)
	}
}

func TestNormalizeRejectsUnstorableValues(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{"NaN", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"float32 infinity", float32(math.Inf(-1))},
		{"NaN number", json.Number("NaN")},
		{"invalid UTF-8", "a\xffb"},
		{"invalid UTF-8 behind pointer", ptr("\xc3")},
		{"malformed blob", json.RawMessage("{bad")},
		{"empty blob", json.RawMessage{}},
		{"uint64 overflow", uint64(math.MaxUint64)},
		{"NaN inside map", map[string]any{"score": math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if err == nil {
				t.Fatalf("Normalize(%#v) = %#v, want error", tt.in, got)
			}
			if tt.name != "NaN inside map" && !errors.Is(err, ErrInvalidValue) {
				t.Errorf("Expected ErrInvalidValue, got %v", err)
			}
		})
	}

	if got, err := Normalize(uint64(math.MaxInt64)); err != nil || got != int64(math.MaxInt64) {
		t.Errorf("Normalize(MaxInt64) = %v, %v", got, err)
	}
	if got, err := Normalize(json.RawMessage(`{"ok":true}`)); err != nil || string(got.(json.RawMessage)) != `{"ok":true}` {
		t.Errorf("Normalize(valid blob) = %v, %v", got, err)
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestEqual(t *testing.T) {
	if !Equal(int64(3), 3.0) {
		t.Error("int64 and float64 of the same value should be equal")
	}
	if Equal(int64(3), "3") {
		t.Error("int64 and string should not be equal")
	}
	if !Equal(nil, nil) {
		t.Error("nil should equal nil")
	}
	if Equal(nil, "") {
		t.Error("nil should not equal empty string")
	}
	if !Equal(json.RawMessage(`[1]`), json.RawMessage(`[1]`)) {
		t.Error("identical blobs should be equal")
	}
	if Equal(json.RawMessage(`"a"`), "a") {
		t.Error("blob should not equal string")
	}
}

func TestCoerceID(t *testing.T) {
	tests := []struct {
		in   any
		want int64
		ok   bool
	}{
		{int64(5), 5, true},
		{5, 5, true},
		{"12", 12, true},
		{" 12 ", 12, true},
		{4.0, 4, true},
		{4.5, 0, false},
		{"abc", 0, false},
		{nil, 0, false},
	}

	for _, tt := range tests {
		got, ok := CoerceID(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CoerceID(%#v) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRecordAccessors(t *testing.T) {
	record := Record{
		"id":           int64(9),
		"status":       "pending",
		"sla_deadline": "2026-03-02T08:30:00Z",
		"meta":         json.RawMessage(`{"a":1}`),
	}

	if record.ID() != 9 {
		t.Errorf("ID() = %d, want 9", record.ID())
	}
	if record.String("status") != "pending" {
		t.Errorf("String(status) = %q", record.String("status"))
	}
	deadline, ok := record.Time("sla_deadline")
	if !ok || !deadline.Equal(time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)) {
		t.Errorf("Time(sla_deadline) = %v, %v", deadline, ok)
	}
	if _, ok := record.Time("missing"); ok {
		t.Error("Time on a missing field should report false")
	}

	clone := record.Clone()
	clone["status"] = "approved"
	clone["meta"].(json.RawMessage)[0] = '['
	if record.String("status") != "pending" {
		t.Error("Clone shares field map with original")
	}
	if string(record["meta"].(json.RawMessage)) != `{"a":1}` {
		t.Error("Clone shares blob bytes with original")
	}
}
