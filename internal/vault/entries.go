package vault

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/petalvault/petalvault/internal/storage"
)

// AddEntry creates a new entry and appends one create change record
// carrying the full field set.
func (v *Vault) AddEntry(site, user, pass, notes string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return "", ErrVaultLocked
	}

	id, err := newEntryID()
	if err != nil {
		return "", err
	}

	values := map[string]string{
		FieldSite:  site,
		FieldUser:  user,
		FieldPass:  pass,
		FieldNotes: notes,
	}

	ts := nowMillis()
	entry := &storage.EntryRecord{
		ID:        id,
		Fields:    make(map[string]storage.FieldRecord, len(Fields)),
		CreatedAt: ts,
	}
	for field, value := range values {
		blob, err := v.enc.Encrypt([]byte(value))
		if err != nil {
			return "", fmt.Errorf("failed to encrypt %s: %w", field, err)
		}
		entry.Fields[field] = storage.FieldRecord{
			Blob:      blob,
			UpdatedAt: ts,
			Origin:    v.deviceID,
		}
	}

	payload, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	blob, err := v.enc.Encrypt(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt change payload: %w", err)
	}

	if err := v.commitMutation(entry, storage.OpCreate, "", blob, ts); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateField sets one field of an entry and appends one change record
func (v *Vault) UpdateField(entryID, field, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return ErrVaultLocked
	}
	if !validField(field) {
		return ErrUnknownField
	}

	entry, err := v.db.GetEntry(entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrEntryNotFound
	}
	if entry.Tombstone {
		return ErrEntryDeleted
	}

	blob, err := v.enc.Encrypt([]byte(value))
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", field, err)
	}

	ts := nowMillis()
	entry.Fields[field] = storage.FieldRecord{
		Blob:      blob,
		UpdatedAt: ts,
		Origin:    v.deviceID,
	}

	return v.commitMutation(entry, storage.OpSet, field, blob, ts)
}

// DeleteEntry marks an entry as deleted. The tombstoned record is
// retained so the deletion propagates to devices that sync later.
func (v *Vault) DeleteEntry(entryID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return ErrVaultLocked
	}

	entry, err := v.db.GetEntry(entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrEntryNotFound
	}

	ts := nowMillis()
	entry.Tombstone = true
	entry.DeletedAt = ts
	entry.DeletedBy = v.deviceID

	return v.commitMutation(entry, storage.OpDelete, "", nil, ts)
}

// commitMutation persists the entry together with its change record in
// one transaction, then bumps the modified timestamp. Callers hold the
// mutex. Counter gaps from a crash between NextCounter and the commit
// are harmless; record ids stay unique.
func (v *Vault) commitMutation(entry *storage.EntryRecord, op, field string, blob []byte, ts int64) error {
	counter, err := v.db.NextCounter()
	if err != nil {
		return fmt.Errorf("failed to advance change counter: %w", err)
	}

	rec := &storage.ChangeRecord{
		ID:        storage.ChangeID(v.deviceID, counter),
		Origin:    v.deviceID,
		Counter:   counter,
		EntryID:   entry.ID,
		Op:        op,
		Field:     field,
		Blob:      blob,
		Timestamp: ts,
	}

	if err := v.db.PutEntryWithChange(entry, rec); err != nil {
		return fmt.Errorf("failed to persist mutation: %w", err)
	}
	return v.db.UpdateModified()
}

// GetEntry returns one decrypted entry
func (v *Vault) GetEntry(entryID string) (*Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return nil, ErrVaultLocked
	}

	rec, err := v.db.GetEntry(entryID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrEntryNotFound
	}
	return v.decryptEntry(rec)
}

// Entries returns all decrypted entries, newest first. Tombstoned
// entries are skipped unless includeDeleted is set.
func (v *Vault) Entries(includeDeleted bool) ([]Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return nil, ErrVaultLocked
	}

	var entries []Entry
	err := v.db.ForEachEntry(func(rec *storage.EntryRecord) error {
		if rec.Tombstone && !includeDeleted {
			return nil
		}
		entry, err := v.decryptEntry(rec)
		if err != nil {
			return err
		}
		entries = append(entries, *entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// SearchEntries returns live entries whose site, user or notes contain
// the filter text (case-insensitive)
func (v *Vault) SearchEntries(filter string) ([]Entry, error) {
	entries, err := v.Entries(false)
	if err != nil {
		return nil, err
	}

	filter = strings.ToLower(filter)
	matched := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Site), filter) ||
			strings.Contains(strings.ToLower(e.User), filter) ||
			strings.Contains(strings.ToLower(e.Notes), filter) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// decryptEntry builds the caller-facing view. Callers hold the mutex.
func (v *Vault) decryptEntry(rec *storage.EntryRecord) (*Entry, error) {
	entry := &Entry{
		ID:        rec.ID,
		CreatedAt: time.UnixMilli(rec.CreatedAt),
		UpdatedAt: time.UnixMilli(rec.LastUpdate()),
		Tombstone: rec.Tombstone,
	}

	for field, fr := range rec.Fields {
		plaintext, err := v.enc.Decrypt(fr.Blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt %s of entry %s: %w", field, rec.ID, err)
		}
		value := string(plaintext)
		switch field {
		case FieldSite:
			entry.Site = value
		case FieldUser:
			entry.User = value
		case FieldPass:
			entry.Pass = value
		case FieldNotes:
			entry.Notes = value
		}
	}
	return entry, nil
}

func validField(field string) bool {
	for _, f := range Fields {
		if f == field {
			return true
		}
	}
	return false
}
