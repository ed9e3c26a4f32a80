package sync

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/petalvault/petalvault/internal/crypto"
	"github.com/petalvault/petalvault/internal/storage"
	"github.com/petalvault/petalvault/internal/vault"
)

// EnvelopeVersion is the changeset wire format version
const EnvelopeVersion = 1

var (
	// ErrDeviceMismatch means a changeset failed authentication before any
	// device was ever paired: the far side almost certainly holds a
	// different recovery phrase.
	ErrDeviceMismatch = errors.New("recovery phrase mismatch with the other device")

	ErrBadChangeset = errors.New("malformed changeset")

	// ErrNoPendingExport means AckDevice was called for a device with no
	// changeset built since the engine was created.
	ErrNoPendingExport = errors.New("no export pending for device")
)

// envelope is the plaintext structure inside an encrypted changeset
type envelope struct {
	Version int                    `json:"v"`
	VaultID string                 `json:"vault"`
	Origin  string                 `json:"origin"`
	Records []storage.ChangeRecord `json:"records"`
}

// MergeResult reports what merging one changeset did
type MergeResult struct {
	Origin  string // device that built the changeset
	Records int    // records carried
	Applied int
	Skipped int
	Created int
	Updated int
	Deleted int
}

// Engine builds and merges encrypted changesets on top of an unlocked
// vault. The wire format is JSON, deflated, then sealed under the vault
// master key: only a device holding the same recovery phrase can open
// it, which is the entire trust model of the air gap.
type Engine struct {
	vault *vault.Vault

	// exported holds, per device, the cursor vector covering the records
	// of the last built changeset. Acking applies this snapshot rather
	// than the vault's current vector, so records merged between export
	// and ack are never marked delivered without having been exported.
	exported map[string]map[string]uint64
}

// New returns an engine bound to an unlocked vault
func New(v *vault.Vault) *Engine {
	return &Engine{
		vault:    v,
		exported: make(map[string]map[string]uint64),
	}
}

// BuildChangeset collects all records the given device has not
// acknowledged yet and seals them into a changeset blob. The device
// cursor does not move here; call AckDevice once the operator confirms
// the far side received everything.
func (e *Engine) BuildChangeset(deviceIDOrName string) ([]byte, int, error) {
	device, err := e.vault.FindDevice(deviceIDOrName)
	if err != nil {
		return nil, 0, err
	}

	records, err := e.vault.ChangesSince(device.Cursor)
	if err != nil {
		return nil, 0, err
	}

	vaultID, err := e.vault.ID()
	if err != nil {
		return nil, 0, err
	}

	env := envelope{
		Version: EnvelopeVersion,
		VaultID: vaultID,
		Origin:  e.vault.DeviceID(),
		Records: records,
	}
	data, err := json.Marshal(&env)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to serialize changeset: %w", err)
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(data); err != nil {
		return nil, 0, fmt.Errorf("failed to compress changeset: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, 0, fmt.Errorf("failed to compress changeset: %w", err)
	}

	blob, err := e.vault.EncryptValue(compressed.Bytes())
	if err != nil {
		return nil, 0, err
	}

	snapshot := make(map[string]uint64, len(device.Cursor))
	for origin, counter := range device.Cursor {
		snapshot[origin] = counter
	}
	for i := range records {
		if records[i].Counter > snapshot[records[i].Origin] {
			snapshot[records[i].Origin] = records[i].Counter
		}
	}
	e.exported[device.ID] = snapshot

	return blob, len(records), nil
}

// MergeChangeset opens a changeset blob and applies its records.
// Authentication failure on a vault with no paired devices reads as a
// mnemonic mismatch during pairing; on an established vault it is
// surfaced as-is.
func (e *Engine) MergeChangeset(blob []byte) (*MergeResult, error) {
	env, err := e.open(blob)
	if err != nil {
		return nil, err
	}

	applied, err := e.vault.ApplyChanges(env.Records)
	if err != nil {
		return nil, err
	}

	return &MergeResult{
		Origin:  env.Origin,
		Records: len(env.Records),
		Applied: applied.Applied,
		Skipped: applied.Skipped,
		Created: applied.Created,
		Updated: applied.Updated,
		Deleted: applied.Deleted,
	}, nil
}

// AckDevice records that the device received the last changeset built
// for it. Called after the operator confirms the far side finished
// scanning an export. Only the exported snapshot is acked; anything
// merged here since the export still counts as undelivered.
func (e *Engine) AckDevice(deviceIDOrName string) error {
	device, err := e.vault.FindDevice(deviceIDOrName)
	if err != nil {
		return err
	}
	snapshot, ok := e.exported[device.ID]
	if !ok {
		return ErrNoPendingExport
	}
	if err := e.vault.SetDeviceCursor(device.ID, snapshot); err != nil {
		return err
	}
	delete(e.exported, device.ID)
	return nil
}

// open decrypts, inflates and decodes a changeset blob
func (e *Engine) open(blob []byte) (*envelope, error) {
	compressed, err := e.vault.DecryptValue(blob)
	if err != nil {
		if errors.Is(err, crypto.ErrAuthFailed) {
			paired, perr := e.hasPairedDevice()
			if perr == nil && !paired {
				return nil, fmt.Errorf("%w: %w", ErrDeviceMismatch, err)
			}
		}
		return nil, err
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadChangeset, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadChangeset, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadChangeset, err)
	}
	if env.Version != EnvelopeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadChangeset, env.Version)
	}
	return &env, nil
}

func (e *Engine) hasPairedDevice() (bool, error) {
	devices, err := e.vault.Devices()
	if err != nil {
		return false, err
	}
	for i := range devices {
		if devices[i].Paired {
			return true, nil
		}
	}
	return false, nil
}

// Preview renders what merging a changeset would change, without
// touching any state. Secret values never appear in the output.
func (e *Engine) Preview(blob []byte) (string, error) {
	env, err := e.open(blob)
	if err != nil {
		return "", err
	}

	vector, err := e.vault.KnownVector()
	if err != nil {
		return "", err
	}

	var out strings.Builder
	pending := 0
	for i := range env.Records {
		rec := &env.Records[i]
		if rec.Counter <= vector[rec.Origin] {
			continue
		}
		pending++

		switch rec.Op {
		case storage.OpCreate:
			if err := e.previewCreate(&out, rec); err != nil {
				return "", err
			}
		case storage.OpSet:
			if err := e.previewSet(&out, rec); err != nil {
				return "", err
			}
		case storage.OpDelete:
			e.previewDelete(&out, rec)
		default:
			fmt.Fprintf(&out, "? %s unknown operation %q\n", rec.EntryID, rec.Op)
		}
	}

	if pending == 0 {
		out.WriteString("Nothing new: all records already merged\n")
	} else {
		fmt.Fprintf(&out, "%d pending record(s) from device %s\n", pending, env.Origin)
	}
	return out.String(), nil
}

func (e *Engine) previewCreate(out *strings.Builder, rec *storage.ChangeRecord) error {
	plaintext, err := e.vault.DecryptValue(rec.Blob)
	if err != nil {
		return err
	}
	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return fmt.Errorf("%w: %v", ErrBadChangeset, err)
	}

	fmt.Fprintf(out, "+ %s  %s (user %s)\n", rec.EntryID,
		values[vault.FieldSite], values[vault.FieldUser])
	return nil
}

func (e *Engine) previewSet(out *strings.Builder, rec *storage.ChangeRecord) error {
	if rec.Field == vault.FieldPass {
		fmt.Fprintf(out, "~ %s  pass updated (value hidden)\n", rec.EntryID)
		return nil
	}

	plaintext, err := e.vault.DecryptValue(rec.Blob)
	if err != nil {
		return err
	}
	newValue := string(plaintext)

	oldValue := ""
	if entry, err := e.vault.GetEntry(rec.EntryID); err == nil {
		oldValue = fieldValue(entry, rec.Field)
	} else if err != vault.ErrEntryNotFound {
		return err
	}

	if oldValue == newValue {
		return nil
	}

	fmt.Fprintf(out, "~ %s  %s:\n", rec.EntryID, rec.Field)
	out.WriteString(fieldDiff(oldValue, newValue))
	return nil
}

func (e *Engine) previewDelete(out *strings.Builder, rec *storage.ChangeRecord) {
	site := ""
	if entry, err := e.vault.GetEntry(rec.EntryID); err == nil {
		site = "  " + entry.Site
	}
	fmt.Fprintf(out, "- %s%s (deleted)\n", rec.EntryID, site)
}

// fieldDiff renders a small patch between two field values
func fieldDiff(oldValue, newValue string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldValue, newValue, false)
	patches := dmp.PatchMake(oldValue, diffs)
	if len(patches) == 0 {
		return ""
	}
	return dmp.PatchToText(patches)
}

func fieldValue(entry *vault.Entry, field string) string {
	switch field {
	case vault.FieldSite:
		return entry.Site
	case vault.FieldUser:
		return entry.User
	case vault.FieldPass:
		return entry.Pass
	case vault.FieldNotes:
		return entry.Notes
	}
	return ""
}
