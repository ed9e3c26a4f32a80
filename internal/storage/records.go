package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Change operations
const (
	OpCreate = "create"
	OpSet    = "set"
	OpDelete = "delete"
)

// FieldRecord is one independently-encrypted entry field. Keeping the
// ciphertext per field (instead of one blob per entry) is what makes
// field-level merge possible without touching unrelated fields.
type FieldRecord struct {
	Blob      []byte `json:"blob"`
	UpdatedAt int64  `json:"updatedAt"` // unix milliseconds
	Origin    string `json:"origin"`    // device that wrote this value
}

// EntryRecord is a vault entry as persisted. Field plaintext never
// appears here; only ciphertext and merge metadata.
type EntryRecord struct {
	ID        string                 `json:"id"`
	Fields    map[string]FieldRecord `json:"fields"`
	CreatedAt int64                  `json:"createdAt"`
	Tombstone bool                   `json:"tombstone"`
	DeletedAt int64                  `json:"deletedAt,omitempty"`
	DeletedBy string                 `json:"deletedBy,omitempty"`
}

// LastUpdate returns the newest field timestamp, or the deletion time
// if that is newer. This is the entry's "last known update" used when
// deciding whether an incoming tombstone applies.
func (e *EntryRecord) LastUpdate() int64 {
	last := e.CreatedAt
	for _, f := range e.Fields {
		if f.UpdatedAt > last {
			last = f.UpdatedAt
		}
	}
	if e.Tombstone && e.DeletedAt > last {
		last = e.DeletedAt
	}
	return last
}

// LastUpdateWithOrigin returns the newest update timestamp together
// with the device that made it, for timestamp-tie ordering.
func (e *EntryRecord) LastUpdateWithOrigin() (int64, string) {
	last := e.CreatedAt
	origin := ""
	for _, f := range e.Fields {
		if f.UpdatedAt > last || (f.UpdatedAt == last && f.Origin > origin) {
			last = f.UpdatedAt
			origin = f.Origin
		}
	}
	if e.Tombstone && (e.DeletedAt > last || (e.DeletedAt == last && e.DeletedBy > origin)) {
		last = e.DeletedAt
		origin = e.DeletedBy
	}
	return last, origin
}

// ChangeRecord is one immutable change-log element. Its ID combines the
// originating device with that device's monotonic counter, so the log
// forms a set of vector-clock elements: replaying a record with a known
// ID is always a no-op.
type ChangeRecord struct {
	ID        string `json:"id"`
	Origin    string `json:"origin"`
	Counter   uint64 `json:"ctr"`
	EntryID   string `json:"entry"`
	Op        string `json:"op"`
	Field     string `json:"field,omitempty"`
	Blob      []byte `json:"blob,omitempty"`
	Timestamp int64  `json:"ts"` // unix milliseconds
}

// ChangeID builds a record ID from an origin device and counter
func ChangeID(origin string, counter uint64) string {
	return fmt.Sprintf("%s:%d", origin, counter)
}

// ParseChangeID splits a record ID back into origin and counter
func ParseChangeID(id string) (string, uint64, error) {
	idx := strings.LastIndexByte(id, ':')
	if idx <= 0 || idx == len(id)-1 {
		return "", 0, fmt.Errorf("malformed change id %q", id)
	}
	counter, err := strconv.ParseUint(id[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed change id %q: %w", id, err)
	}
	return id[:idx], counter, nil
}

// DeviceRecord is a paired (or pending) sync device. Cursor maps origin
// device ids to the highest counter already delivered to this device.
type DeviceRecord struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Paired   bool              `json:"paired"`
	PairedAt int64             `json:"pairedAt,omitempty"`
	Cursor   map[string]uint64 `json:"cursor"`
}

// Covers reports whether the device's cursor already includes a record
func (d *DeviceRecord) Covers(origin string, counter uint64) bool {
	return d.Cursor[origin] >= counter
}
