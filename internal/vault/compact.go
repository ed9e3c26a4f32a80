package vault

import (
	"fmt"
	"time"

	"github.com/petalvault/petalvault/internal/storage"
)

// DefaultTombstoneAge is how long deleted entries stay around before
// compaction may purge them. Long enough that any device syncing on a
// sane schedule sees the deletion first.
const DefaultTombstoneAge = 90 * 24 * time.Hour

// CompactResult reports what a compaction pass removed
type CompactResult struct {
	EntriesPurged int
	RecordsPurged int
}

// Compact purges tombstoned entries older than maxAge together with
// their change records, then rewrites the database file to reclaim
// space. An entry is only purged when every paired device's cursor
// covers all of its records, so no device can still be waiting for the
// deletion to arrive.
func (v *Vault) Compact(maxAge time.Duration) (*CompactResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return nil, ErrVaultLocked
	}

	cutoff := time.Now().Add(-maxAge).UnixMilli()

	var devices []storage.DeviceRecord
	err := v.db.ForEachDevice(func(d *storage.DeviceRecord) error {
		if d.Paired {
			devices = append(devices, *d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Group log records by entry so a purge removes an entry's whole
	// history at once.
	byEntry := make(map[string][]storage.ChangeRecord)
	err = v.db.ForEachChange(func(rec *storage.ChangeRecord) error {
		byEntry[rec.EntryID] = append(byEntry[rec.EntryID], *rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &CompactResult{}
	var purgeEntries []string
	var purgeRecords []string

	err = v.db.ForEachEntry(func(entry *storage.EntryRecord) error {
		if !entry.Tombstone || entry.DeletedAt > cutoff {
			return nil
		}
		for _, rec := range byEntry[entry.ID] {
			for _, d := range devices {
				if !d.Covers(rec.Origin, rec.Counter) {
					return nil
				}
			}
		}
		purgeEntries = append(purgeEntries, entry.ID)
		for _, rec := range byEntry[entry.ID] {
			purgeRecords = append(purgeRecords, rec.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, id := range purgeEntries {
		if err := v.db.RemoveEntry(id); err != nil {
			return nil, fmt.Errorf("failed to purge entry %s: %w", id, err)
		}
		result.EntriesPurged++
	}
	if len(purgeRecords) > 0 {
		if err := v.db.RemoveChanges(purgeRecords); err != nil {
			return nil, fmt.Errorf("failed to purge change records: %w", err)
		}
		result.RecordsPurged = len(purgeRecords)
	}

	if err := v.db.Compact(); err != nil {
		return nil, fmt.Errorf("failed to compact database: %w", err)
	}
	return result, nil
}
