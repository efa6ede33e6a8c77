package entidb

import "testing"

func TestNewEntityIDIsUnique(t *testing.T) {
	a, b := NewEntityID(), NewEntityID()
	if a == b {
		t.Fatal("expected two generated entity ids to differ")
	}
}

func TestParseEntityIDRoundtrip(t *testing.T) {
	id := NewEntityID()
	parsed, err := ParseEntityID(id.String())
	if err != nil {
		t.Fatalf("ParseEntityID: %v", err)
	}
	if parsed != id {
		t.Fatalf("got %v, want %v", parsed, id)
	}
}

func TestParseEntityIDRejectsGarbage(t *testing.T) {
	if _, err := ParseEntityID("not-a-uuid"); err == nil {
		t.Fatal("expected an error for a malformed entity id")
	}
}
