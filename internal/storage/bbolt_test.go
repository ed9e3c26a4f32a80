package storage

import (
	"bytes"
	"path/filepath"
	"testing"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return s
}

func TestInitializeAndConfig(t *testing.T) {
	s := newTestStorage(t)

	initialized, err := s.IsInitialized()
	if err != nil || !initialized {
		t.Fatalf("Expected initialized storage, got %v %v", initialized, err)
	}

	salt := bytes.Repeat([]byte{0xab}, 32)
	if err := s.SetSalt(salt); err != nil {
		t.Fatalf("SetSalt failed: %v", err)
	}
	got, err := s.GetSalt()
	if err != nil || !bytes.Equal(got, salt) {
		t.Errorf("Salt round trip failed: %v %v", got, err)
	}

	if err := s.SetKDFParams(1<<16, 8, 1); err != nil {
		t.Fatalf("SetKDFParams failed: %v", err)
	}
	n, r, p, err := s.GetKDFParams()
	if err != nil || n != 1<<16 || r != 8 || p != 1 {
		t.Errorf("KDF params round trip failed: %d %d %d %v", n, r, p, err)
	}

	if err := s.SetVaultID("vault-1"); err != nil {
		t.Fatalf("SetVaultID failed: %v", err)
	}
	if id, err := s.GetVaultID(); err != nil || id != "vault-1" {
		t.Errorf("Vault id round trip failed: %q %v", id, err)
	}

	if err := s.SetDeviceID("device-1"); err != nil {
		t.Fatalf("SetDeviceID failed: %v", err)
	}
	if id, err := s.GetDeviceID(); err != nil || id != "device-1" {
		t.Errorf("Device id round trip failed: %q %v", id, err)
	}
}

func TestCounterMonotonic(t *testing.T) {
	s := newTestStorage(t)

	for want := uint64(1); want <= 3; want++ {
		got, err := s.NextCounter()
		if err != nil {
			t.Fatalf("NextCounter failed: %v", err)
		}
		if got != want {
			t.Errorf("Expected counter %d, got %d", want, got)
		}
	}

	current, err := s.CurrentCounter()
	if err != nil || current != 3 {
		t.Errorf("Expected current counter 3, got %d %v", current, err)
	}
}

func TestEntryRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	entry := &EntryRecord{
		ID:        "e1",
		CreatedAt: 1000,
		Fields: map[string]FieldRecord{
			"site": {Blob: []byte{1, 2, 3}, UpdatedAt: 1000, Origin: "device-1"},
		},
	}
	if err := s.PutEntry(entry); err != nil {
		t.Fatalf("PutEntry failed: %v", err)
	}

	got, err := s.GetEntry("e1")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if got == nil || got.ID != "e1" || !bytes.Equal(got.Fields["site"].Blob, []byte{1, 2, 3}) {
		t.Errorf("Entry round trip mismatch: %+v", got)
	}

	if got, err := s.GetEntry("missing"); err != nil || got != nil {
		t.Errorf("Expected nil for missing entry, got %+v %v", got, err)
	}

	if err := s.RemoveEntry("e1"); err != nil {
		t.Fatalf("RemoveEntry failed: %v", err)
	}
	if got, _ := s.GetEntry("e1"); got != nil {
		t.Error("Entry should be gone after RemoveEntry")
	}
}

func TestChangeLogAppendOrderAndDedup(t *testing.T) {
	s := newTestStorage(t)

	recs := []ChangeRecord{
		{ID: "a:1", Origin: "a", Counter: 1, EntryID: "e1", Op: OpCreate, Timestamp: 1},
		{ID: "b:1", Origin: "b", Counter: 1, EntryID: "e2", Op: OpCreate, Timestamp: 2},
		{ID: "a:2", Origin: "a", Counter: 2, EntryID: "e1", Op: OpSet, Field: "user", Timestamp: 3},
	}
	for i := range recs {
		entry := &EntryRecord{ID: recs[i].EntryID, CreatedAt: recs[i].Timestamp}
		if err := s.PutEntryWithChange(entry, &recs[i]); err != nil {
			t.Fatalf("PutEntryWithChange failed: %v", err)
		}
	}

	// Replaying a known record id must not extend the log
	if err := s.PutEntryWithChange(&EntryRecord{ID: "e1"}, &recs[0]); err != nil {
		t.Fatalf("PutEntryWithChange failed: %v", err)
	}

	found, err := s.HasChange("b:1")
	if err != nil || !found {
		t.Errorf("HasChange(b:1) = %v %v", found, err)
	}

	var order []string
	err = s.ForEachChange(func(rec *ChangeRecord) error {
		order = append(order, rec.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachChange failed: %v", err)
	}
	want := []string{"a:1", "b:1", "a:2"}
	if len(order) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Append order broken at %d: got %s want %s", i, order[i], want[i])
		}
	}

	if err := s.RemoveChanges([]string{"a:1", "missing"}); err != nil {
		t.Fatalf("RemoveChanges failed: %v", err)
	}
	if found, _ := s.HasChange("a:1"); found {
		t.Error("a:1 should be gone after RemoveChanges")
	}
	if found, _ := s.HasChange("a:2"); !found {
		t.Error("a:2 should survive RemoveChanges")
	}
}

func TestPutEntryWithChangeAtomic(t *testing.T) {
	s := newTestStorage(t)

	entry := &EntryRecord{ID: "e1", CreatedAt: 1}
	rec := &ChangeRecord{ID: "d:1", Origin: "d", Counter: 1, EntryID: "e1", Op: OpCreate, Timestamp: 1}
	if err := s.PutEntryWithChange(entry, rec); err != nil {
		t.Fatalf("PutEntryWithChange failed: %v", err)
	}

	if got, _ := s.GetEntry("e1"); got == nil {
		t.Error("Entry missing after PutEntryWithChange")
	}
	if found, _ := s.HasChange("d:1"); !found {
		t.Error("Change missing after PutEntryWithChange")
	}

	// Same record id again: entry updates, log stays single
	entry.CreatedAt = 2
	if err := s.PutEntryWithChange(entry, rec); err != nil {
		t.Fatalf("PutEntryWithChange failed: %v", err)
	}
	count := 0
	s.ForEachChange(func(*ChangeRecord) error { count++; return nil })
	if count != 1 {
		t.Errorf("Expected 1 log record, got %d", count)
	}
}

func TestDeviceRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	device := &DeviceRecord{
		ID:     "d1",
		Name:   "phone",
		Paired: true,
		Cursor: map[string]uint64{"a": 3, "b": 1},
	}
	if err := s.PutDevice(device); err != nil {
		t.Fatalf("PutDevice failed: %v", err)
	}

	got, err := s.GetDevice("d1")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if got == nil || got.Name != "phone" || got.Cursor["a"] != 3 {
		t.Errorf("Device round trip mismatch: %+v", got)
	}

	if !got.Covers("a", 3) || got.Covers("a", 4) || got.Covers("c", 1) {
		t.Error("Covers logic wrong")
	}

	if err := s.RemoveDevice("d1"); err != nil {
		t.Fatalf("RemoveDevice failed: %v", err)
	}
	if got, _ := s.GetDevice("d1"); got != nil {
		t.Error("Device should be gone after RemoveDevice")
	}
}

func TestCompactPreservesData(t *testing.T) {
	s := newTestStorage(t)

	if err := s.SetVaultID("vault-1"); err != nil {
		t.Fatalf("SetVaultID failed: %v", err)
	}
	if _, err := s.NextCounter(); err != nil {
		t.Fatalf("NextCounter failed: %v", err)
	}
	rec := &ChangeRecord{ID: "x:1", Origin: "x", Counter: 1, EntryID: "e1", Op: OpCreate}
	if err := s.PutEntryWithChange(&EntryRecord{ID: "e1"}, rec); err != nil {
		t.Fatalf("PutEntryWithChange failed: %v", err)
	}

	if err := s.Compact(); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	if id, err := s.GetVaultID(); err != nil || id != "vault-1" {
		t.Errorf("Vault id lost in compaction: %q %v", id, err)
	}
	if found, _ := s.HasChange("x:1"); !found {
		t.Error("Change log lost in compaction")
	}

	// Counter sequence must survive so record ids never collide
	if counter, err := s.NextCounter(); err != nil || counter != 2 {
		t.Errorf("Counter reset by compaction: %d %v", counter, err)
	}

	// Log sequence likewise
	rec2 := &ChangeRecord{ID: "x:2", Origin: "x", Counter: 2, EntryID: "e1", Op: OpSet, Field: "user"}
	if err := s.PutEntryWithChange(&EntryRecord{ID: "e1"}, rec2); err != nil {
		t.Fatalf("PutEntryWithChange failed: %v", err)
	}
	var order []string
	s.ForEachChange(func(r *ChangeRecord) error { order = append(order, r.ID); return nil })
	if len(order) != 2 || order[0] != "x:1" || order[1] != "x:2" {
		t.Errorf("Append order broken after compaction: %v", order)
	}
}
