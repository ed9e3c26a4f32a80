package storage

import "testing"

func TestChangeIDRoundTrip(t *testing.T) {
	id := ChangeID("device-1", 42)
	origin, counter, err := ParseChangeID(id)
	if err != nil {
		t.Fatalf("ParseChangeID failed: %v", err)
	}
	if origin != "device-1" || counter != 42 {
		t.Errorf("Round trip mismatch: %s %d", origin, counter)
	}

	for _, bad := range []string{"", "no-counter", ":5", "dev:", "dev:abc"} {
		if _, _, err := ParseChangeID(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestLastUpdateWithOrigin(t *testing.T) {
	entry := &EntryRecord{
		ID:        "e1",
		CreatedAt: 10,
		Fields: map[string]FieldRecord{
			"site": {UpdatedAt: 20, Origin: "a"},
			"user": {UpdatedAt: 30, Origin: "b"},
		},
	}

	last, origin := entry.LastUpdateWithOrigin()
	if last != 30 || origin != "b" {
		t.Errorf("Expected 30/b, got %d/%s", last, origin)
	}

	// A newer deletion takes over
	entry.Tombstone = true
	entry.DeletedAt = 40
	entry.DeletedBy = "c"
	last, origin = entry.LastUpdateWithOrigin()
	if last != 40 || origin != "c" {
		t.Errorf("Expected 40/c, got %d/%s", last, origin)
	}

	// Timestamp tie resolves by device id ordering
	tie := &EntryRecord{
		ID: "e2",
		Fields: map[string]FieldRecord{
			"site": {UpdatedAt: 50, Origin: "a"},
			"user": {UpdatedAt: 50, Origin: "z"},
		},
	}
	if _, origin := tie.LastUpdateWithOrigin(); origin != "z" {
		t.Errorf("Tie should resolve to the higher device id, got %s", origin)
	}
}
