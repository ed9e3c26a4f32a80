package sync

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/petalvault/petalvault/internal/frame"
	"github.com/petalvault/petalvault/internal/keys"
	"github.com/petalvault/petalvault/internal/vault"
)

func testWords(t *testing.T) []string {
	t.Helper()
	words, err := keys.NewMnemonic()
	if err != nil {
		t.Fatalf("NewMnemonic failed: %v", err)
	}
	return words
}

func newTestVault(t *testing.T, words []string) *vault.Vault {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.db")
	v, err := vault.Create(path, "test", words, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v
}

func TestExportMergeAck(t *testing.T) {
	words := testWords(t)
	a := newTestVault(t, words)
	b := newTestVault(t, words)

	if _, err := a.AddEntry("mail.example", "alice", "p1", ""); err != nil {
		t.Fatalf("AddEntry failed: %v", err)
	}
	if _, err := a.AddEntry("bank.example", "alice", "p2", ""); err != nil {
		t.Fatalf("AddEntry failed: %v", err)
	}

	engineA := New(a)
	device, err := a.PairDevice("laptop")
	if err != nil {
		t.Fatalf("PairDevice failed: %v", err)
	}

	blob, count, err := engineA.BuildChangeset(device.Name)
	if err != nil {
		t.Fatalf("BuildChangeset failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 records in changeset, got %d", count)
	}

	result, err := New(b).MergeChangeset(blob)
	if err != nil {
		t.Fatalf("MergeChangeset failed: %v", err)
	}
	if result.Applied != 2 || result.Created != 2 {
		t.Errorf("Merge: applied %d created %d, want 2/2", result.Applied, result.Created)
	}
	if result.Origin != a.DeviceID() {
		t.Errorf("Expected origin %s, got %s", a.DeviceID(), result.Origin)
	}

	entries, err := b.Entries(false)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries on the far side, got %d", len(entries))
	}

	// Cursor moves only on explicit ack
	_, count, err = engineA.BuildChangeset(device.Name)
	if err != nil {
		t.Fatalf("BuildChangeset failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Cursor moved without ack: %d records", count)
	}

	if err := engineA.AckDevice(device.Name); err != nil {
		t.Fatalf("AckDevice failed: %v", err)
	}
	_, count, err = engineA.BuildChangeset(device.Name)
	if err != nil {
		t.Fatalf("BuildChangeset failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty changeset after ack, got %d records", count)
	}
}

func TestAckCoversOnlyExportedRecords(t *testing.T) {
	words := testWords(t)
	a := newTestVault(t, words)
	b := newTestVault(t, words)

	if _, err := a.AddEntry("mail.example", "alice", "p1", ""); err != nil {
		t.Fatalf("AddEntry failed: %v", err)
	}
	device, err := a.PairDevice("phone")
	if err != nil {
		t.Fatalf("PairDevice failed: %v", err)
	}

	engineA := New(a)
	if _, count, err := engineA.BuildChangeset(device.Name); err != nil || count != 1 {
		t.Fatalf("BuildChangeset: count %d, err %v", count, err)
	}

	// A record from another device merges in between export and ack
	if _, err := b.AddEntry("late.example", "bob", "p2", ""); err != nil {
		t.Fatalf("AddEntry failed: %v", err)
	}
	deskB, err := b.PairDevice("desk")
	if err != nil {
		t.Fatalf("PairDevice failed: %v", err)
	}
	blobB, _, err := New(b).BuildChangeset(deskB.Name)
	if err != nil {
		t.Fatalf("BuildChangeset failed: %v", err)
	}
	if _, err := engineA.MergeChangeset(blobB); err != nil {
		t.Fatalf("MergeChangeset failed: %v", err)
	}

	if err := engineA.AckDevice(device.Name); err != nil {
		t.Fatalf("AckDevice failed: %v", err)
	}

	// The late record was never in the exported changeset, so it must
	// still be pending for the device
	_, count, err := engineA.BuildChangeset(device.Name)
	if err != nil {
		t.Fatalf("BuildChangeset failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected the unexported record to stay pending, got %d", count)
	}
}

func TestAckWithoutExportFails(t *testing.T) {
	a := newTestVault(t, testWords(t))
	device, err := a.PairDevice("phone")
	if err != nil {
		t.Fatalf("PairDevice failed: %v", err)
	}

	if err := New(a).AckDevice(device.Name); !errors.Is(err, ErrNoPendingExport) {
		t.Errorf("Expected ErrNoPendingExport, got %v", err)
	}
}

func TestChangesetSurvivesFrameTransfer(t *testing.T) {
	words := testWords(t)
	a := newTestVault(t, words)
	b := newTestVault(t, words)

	for i := 0; i < 8; i++ {
		site := fmt.Sprintf("site-%d.example", i)
		if _, err := a.AddEntry(site, "user", "secret", "some long notes to grow the blob"); err != nil {
			t.Fatalf("AddEntry failed: %v", err)
		}
	}
	device, err := a.PairDevice("phone")
	if err != nil {
		t.Fatalf("PairDevice failed: %v", err)
	}
	blob, count, err := New(a).BuildChangeset(device.Name)
	if err != nil {
		t.Fatalf("BuildChangeset failed: %v", err)
	}

	frames, err := frame.Split(blob, "")
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(frames) < 2 {
		t.Fatalf("Expected a multi-frame transfer, got %d frame(s)", len(frames))
	}

	// Frames arrive back to front, as a hurried operator might scan them
	c := frame.NewCollector()
	var received []byte
	for i := len(frames) - 1; i >= 0; i-- {
		text, err := frames[i].Encode()
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		p, err := c.Collect(text)
		if err != nil {
			t.Fatalf("Collect failed on frame %d: %v", i, err)
		}
		if p.Complete() {
			received = p.Blob
		}
	}
	if received == nil {
		t.Fatal("Transfer should complete once every frame arrived")
	}

	result, err := New(b).MergeChangeset(received)
	if err != nil {
		t.Fatalf("MergeChangeset failed: %v", err)
	}
	if result.Applied != count {
		t.Errorf("Expected %d applied records, got %d", count, result.Applied)
	}
	entries, err := b.Entries(false)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 8 {
		t.Errorf("Expected 8 entries after the transfer, got %d", len(entries))
	}
}

func TestMergeForeignPhraseFailsPairing(t *testing.T) {
	a := newTestVault(t, testWords(t))
	c := newTestVault(t, testWords(t)) // different lineage

	if _, err := a.AddEntry("site.example", "u", "p", ""); err != nil {
		t.Fatalf("AddEntry failed: %v", err)
	}
	device, err := a.PairDevice("imposter")
	if err != nil {
		t.Fatalf("PairDevice failed: %v", err)
	}
	blob, _, err := New(a).BuildChangeset(device.ID)
	if err != nil {
		t.Fatalf("BuildChangeset failed: %v", err)
	}

	_, err = New(c).MergeChangeset(blob)
	if !errors.Is(err, ErrDeviceMismatch) {
		t.Errorf("Expected ErrDeviceMismatch, got %v", err)
	}
}

func TestMergeGarbageEnvelope(t *testing.T) {
	v := newTestVault(t, testWords(t))

	// Authentic ciphertext, nonsense inside
	blob, err := v.EncryptValue([]byte("not a zlib stream"))
	if err != nil {
		t.Fatalf("EncryptValue failed: %v", err)
	}

	_, err = New(v).MergeChangeset(blob)
	if !errors.Is(err, ErrBadChangeset) {
		t.Errorf("Expected ErrBadChangeset, got %v", err)
	}
}

func TestPreviewIsReadOnly(t *testing.T) {
	words := testWords(t)
	a := newTestVault(t, words)
	b := newTestVault(t, words)

	if _, err := a.AddEntry("mail.example", "alice", "secret-pass", ""); err != nil {
		t.Fatalf("AddEntry failed: %v", err)
	}
	device, err := a.PairDevice("phone")
	if err != nil {
		t.Fatalf("PairDevice failed: %v", err)
	}
	blob, _, err := New(a).BuildChangeset(device.ID)
	if err != nil {
		t.Fatalf("BuildChangeset failed: %v", err)
	}

	engineB := New(b)
	preview, err := engineB.Preview(blob)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if !strings.Contains(preview, "mail.example") {
		t.Errorf("Preview should mention the new entry, got:\n%s", preview)
	}
	if strings.Contains(preview, "secret-pass") {
		t.Error("Preview must never leak secret values")
	}

	// Nothing merged yet
	entries, err := b.Entries(false)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Preview mutated the vault: %d entries", len(entries))
	}

	if _, err := engineB.MergeChangeset(blob); err != nil {
		t.Fatalf("MergeChangeset failed: %v", err)
	}
	preview, err = engineB.Preview(blob)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if !strings.Contains(preview, "Nothing new") {
		t.Errorf("Expected empty preview after merge, got:\n%s", preview)
	}
}
