package vault

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/petalvault/petalvault/internal/storage"
)

// ApplyResult summarizes one merge pass over incoming change records
type ApplyResult struct {
	Applied int // records new to this vault
	Skipped int // records already in the log (replay)
	Created int // entries materialized
	Updated int // field values that won merge
	Deleted int // tombstones set

	// Origins maps each originating device seen in the changeset to the
	// highest counter applied for it.
	Origins map[string]uint64
}

// ChangesSince returns all change records strictly newer than the given
// cursor vector, in local append order.
func (v *Vault) ChangesSince(cursor map[string]uint64) ([]storage.ChangeRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return nil, ErrVaultLocked
	}

	var records []storage.ChangeRecord
	err := v.db.ForEachChange(func(rec *storage.ChangeRecord) error {
		if rec.Counter > cursor[rec.Origin] {
			records = append(records, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// KnownVector returns the highest counter present locally per origin device
func (v *Vault) KnownVector() (map[string]uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	vector := make(map[string]uint64)
	err := v.db.ForEachChange(func(rec *storage.ChangeRecord) error {
		if rec.Counter > vector[rec.Origin] {
			vector[rec.Origin] = rec.Counter
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// ApplyChanges merges incoming change records under the vault's single
// writer lock. Records with known ids are skipped; entry fields resolve
// by field-level last-writer-wins with device id breaking timestamp
// ties; tombstones apply when newer than the entry's last update and
// only a strictly newer edit clears one. Applied records are appended to the
// local log so they can be relayed onward, and each origin device seen
// is marked paired (a merged record proves a shared master key).
func (v *Vault) ApplyChanges(records []storage.ChangeRecord) (*ApplyResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return nil, ErrVaultLocked
	}

	result := &ApplyResult{Origins: make(map[string]uint64)}

	for i := range records {
		rec := &records[i]

		// The record id must be the vector-clock element it claims to
		// be, or replay immunity and cursor math fall apart.
		origin, counter, err := storage.ParseChangeID(rec.ID)
		if err != nil {
			return nil, err
		}
		if origin != rec.Origin || counter != rec.Counter {
			return nil, fmt.Errorf("record id %s does not match origin %s counter %d", rec.ID, rec.Origin, rec.Counter)
		}

		known, err := v.db.HasChange(rec.ID)
		if err != nil {
			return nil, err
		}
		if known {
			result.Skipped++
			continue
		}

		entry, err := v.db.GetEntry(rec.EntryID)
		if err != nil {
			return nil, err
		}

		switch rec.Op {
		case storage.OpCreate:
			entry, err = v.applyCreate(entry, rec, result)
		case storage.OpSet:
			entry, err = v.applySet(entry, rec, result)
		case storage.OpDelete:
			entry, err = v.applyDelete(entry, rec, result)
		default:
			return nil, fmt.Errorf("unknown change operation %q in record %s", rec.Op, rec.ID)
		}
		if err != nil {
			return nil, err
		}

		if err := v.db.PutEntryWithChange(entry, rec); err != nil {
			return nil, fmt.Errorf("failed to persist merged record %s: %w", rec.ID, err)
		}

		result.Applied++
		if rec.Counter > result.Origins[rec.Origin] {
			result.Origins[rec.Origin] = rec.Counter
		}
	}

	if err := v.registerOrigins(result.Origins); err != nil {
		return nil, err
	}
	if result.Applied > 0 {
		if err := v.db.UpdateModified(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (v *Vault) applyCreate(entry *storage.EntryRecord, rec *storage.ChangeRecord, result *ApplyResult) (*storage.EntryRecord, error) {
	values, err := v.decryptFieldBundle(rec)
	if err != nil {
		return nil, err
	}

	if entry == nil {
		entry = &storage.EntryRecord{
			ID:        rec.EntryID,
			Fields:    make(map[string]storage.FieldRecord, len(values)),
			CreatedAt: rec.Timestamp,
		}
		result.Created++
	}

	maybeResurrect(entry, rec)
	for field, value := range values {
		if !validField(field) {
			continue
		}
		won, err := v.setFieldIfNewer(entry, field, value, rec)
		if err != nil {
			return nil, err
		}
		if won {
			result.Updated++
		}
	}
	return entry, nil
}

func (v *Vault) applySet(entry *storage.EntryRecord, rec *storage.ChangeRecord, result *ApplyResult) (*storage.EntryRecord, error) {
	if !validField(rec.Field) {
		return nil, fmt.Errorf("record %s: %w", rec.ID, ErrUnknownField)
	}

	plaintext, err := v.enc.Decrypt(rec.Blob)
	if err != nil {
		return nil, err
	}

	if entry == nil {
		entry = &storage.EntryRecord{
			ID:        rec.EntryID,
			Fields:    make(map[string]storage.FieldRecord, 1),
			CreatedAt: rec.Timestamp,
		}
		result.Created++
	}

	maybeResurrect(entry, rec)
	won, err := v.setFieldIfNewer(entry, rec.Field, string(plaintext), rec)
	if err != nil {
		return nil, err
	}
	if won {
		result.Updated++
	}
	return entry, nil
}

// maybeResurrect clears a tombstone when an edit is strictly newer than
// the deletion. Edits older than the deletion leave the tombstone in
// place, so out-of-order changesets cannot undo a delete; both sides of
// a concurrent edit/delete pair resolve it the same way.
func maybeResurrect(entry *storage.EntryRecord, rec *storage.ChangeRecord) {
	if !entry.Tombstone {
		return
	}
	if rec.Timestamp > entry.DeletedAt ||
		(rec.Timestamp == entry.DeletedAt && rec.Origin > entry.DeletedBy) {
		entry.Tombstone = false
		entry.DeletedAt = 0
		entry.DeletedBy = ""
	}
}

func (v *Vault) applyDelete(entry *storage.EntryRecord, rec *storage.ChangeRecord, result *ApplyResult) (*storage.EntryRecord, error) {
	if entry == nil {
		// Deletion of an entry this vault never saw: keep the tombstone
		// so a late-arriving older create cannot resurrect it.
		result.Deleted++
		return &storage.EntryRecord{
			ID:        rec.EntryID,
			Fields:    make(map[string]storage.FieldRecord),
			CreatedAt: rec.Timestamp,
			Tombstone: true,
			DeletedAt: rec.Timestamp,
			DeletedBy: rec.Origin,
		}, nil
	}

	last, lastOrigin := entry.LastUpdateWithOrigin()
	if rec.Timestamp > last || (rec.Timestamp == last && rec.Origin > lastOrigin) {
		if !entry.Tombstone {
			result.Deleted++
		}
		entry.Tombstone = true
		entry.DeletedAt = rec.Timestamp
		entry.DeletedBy = rec.Origin
	}
	return entry, nil
}

// setFieldIfNewer applies field-level last-writer-wins. A strictly
// newer timestamp wins; equal timestamps fall back to device id
// ordering so both sides converge to the same value.
func (v *Vault) setFieldIfNewer(entry *storage.EntryRecord, field, value string, rec *storage.ChangeRecord) (bool, error) {
	current, exists := entry.Fields[field]
	if exists {
		if rec.Timestamp < current.UpdatedAt {
			return false, nil
		}
		if rec.Timestamp == current.UpdatedAt && rec.Origin <= current.Origin {
			return false, nil
		}
	}

	blob, err := v.enc.Encrypt([]byte(value))
	if err != nil {
		return false, fmt.Errorf("failed to encrypt %s from record %s: %w", field, rec.ID, err)
	}
	entry.Fields[field] = storage.FieldRecord{
		Blob:      blob,
		UpdatedAt: rec.Timestamp,
		Origin:    rec.Origin,
	}
	return true, nil
}

// decryptFieldBundle opens a create record's full field map
func (v *Vault) decryptFieldBundle(rec *storage.ChangeRecord) (map[string]string, error) {
	plaintext, err := v.enc.Decrypt(rec.Blob)
	if err != nil {
		return nil, err
	}
	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("malformed field bundle in record %s: %w", rec.ID, err)
	}
	return values, nil
}

// registerOrigins marks every remote origin device as paired and
// advances its cursor for its own records: a device always has what it
// authored. Callers hold the mutex.
func (v *Vault) registerOrigins(origins map[string]uint64) error {
	now := time.Now().UnixMilli()
	for origin, counter := range origins {
		if origin == v.deviceID {
			continue
		}

		device, err := v.db.GetDevice(origin)
		if err != nil {
			return err
		}
		if device == nil {
			device = &storage.DeviceRecord{
				ID:     origin,
				Name:   shortDeviceName(origin),
				Cursor: make(map[string]uint64),
			}
		}
		if !device.Paired {
			device.Paired = true
			device.PairedAt = now
		}
		if counter > device.Cursor[origin] {
			device.Cursor[origin] = counter
		}
		if err := v.db.PutDevice(device); err != nil {
			return err
		}
	}
	return nil
}

func shortDeviceName(id string) string {
	if len(id) > 8 {
		return "device-" + id[:8]
	}
	return "device-" + id
}

// EncryptValue seals a value under the vault master key
func (v *Vault) EncryptValue(plaintext []byte) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return nil, ErrVaultLocked
	}
	return v.enc.Encrypt(plaintext)
}

// DecryptValue opens a value sealed under the vault master key
func (v *Vault) DecryptValue(ciphertext []byte) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return nil, ErrVaultLocked
	}
	return v.enc.Decrypt(ciphertext)
}
