package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	ConfigBucket    = []byte("config")    // KDF params, vault identity, counters - unencrypted
	EntriesBucket   = []byte("entries")   // Entry records (field values encrypted)
	ChangeLogBucket = []byte("changelog") // Append-only change records, keyed by local sequence
	ChangeIDsBucket = []byte("changeids") // Record id -> local sequence, replay-immune set
	DevicesBucket   = []byte("devices")   // Paired device registry with cursors
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigSalt     = []byte("salt")
	ConfigKDFN     = []byte("kdf_n")
	ConfigKDFR     = []byte("kdf_r")
	ConfigKDFP     = []byte("kdf_p")
	ConfigVaultID  = []byte("vault_id")
	ConfigName     = []byte("name")
	ConfigDeviceID = []byte("device_id")
	ConfigCounter  = []byte("counter")
	ConfigMnemonic = []byte("mnemonic")
	ConfigKeyCheck = []byte("keycheck")
)

// FilePermSecure keeps the vault file readable by its owner only
const FilePermSecure = 0600

// Storage provides the BBolt-backed vault container
type Storage struct {
	db *bolt.DB
}

// Open opens or creates a vault database
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, FilePermSecure, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Initialize creates the bucket structure for a new vault
func (s *Storage) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, EntriesBucket, ChangeLogBucket, ChangeIDsBucket, DevicesBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if err := config.Put(ConfigVersion, []byte("1")); err != nil {
			return err
		}

		now := time.Now()
		created, _ := now.MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

// IsInitialized checks if the database has been initialized
func (s *Storage) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config != nil && config.Get(ConfigVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

func (s *Storage) setConfig(key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ConfigBucket).Put(key, value)
	})
}

// getConfig copies a config value out of its transaction; nil if absent
func (s *Storage) getConfig(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return fmt.Errorf("config bucket not found")
		}
		if v := config.Get(key); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	return value, err
}

// SetSalt stores the KDF salt
func (s *Storage) SetSalt(salt []byte) error {
	return s.setConfig(ConfigSalt, salt)
}

// GetSalt retrieves the KDF salt
func (s *Storage) GetSalt() ([]byte, error) {
	salt, err := s.getConfig(ConfigSalt)
	if err != nil {
		return nil, err
	}
	if salt == nil {
		return nil, fmt.Errorf("salt not found")
	}
	return salt, nil
}

// SetKDFParams stores the scrypt cost parameters
func (s *Storage) SetKDFParams(n, r, p uint32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		for _, kv := range []struct {
			key []byte
			val uint32
		}{{ConfigKDFN, n}, {ConfigKDFR, r}, {ConfigKDFP, p}} {
			buf := make([]byte, 4)
			binary.BigEndian.PutUint32(buf, kv.val)
			if err := config.Put(kv.key, buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetKDFParams retrieves the scrypt cost parameters
func (s *Storage) GetKDFParams() (n, r, p uint32, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return fmt.Errorf("config bucket not found")
		}
		for _, kv := range []struct {
			key []byte
			dst *uint32
		}{{ConfigKDFN, &n}, {ConfigKDFR, &r}, {ConfigKDFP, &p}} {
			buf := config.Get(kv.key)
			if len(buf) != 4 {
				return fmt.Errorf("kdf parameters not found")
			}
			*kv.dst = binary.BigEndian.Uint32(buf)
		}
		return nil
	})
	return n, r, p, err
}

// SetVaultID stores the vault id
func (s *Storage) SetVaultID(id string) error {
	return s.setConfig(ConfigVaultID, []byte(id))
}

// GetVaultID retrieves the vault id
func (s *Storage) GetVaultID() (string, error) {
	id, err := s.getConfig(ConfigVaultID)
	if err != nil {
		return "", err
	}
	if id == nil {
		return "", fmt.Errorf("vault_id not found")
	}
	return string(id), nil
}

// SetName stores the vault display name
func (s *Storage) SetName(name string) error {
	return s.setConfig(ConfigName, []byte(name))
}

// GetName retrieves the vault display name
func (s *Storage) GetName() (string, error) {
	name, err := s.getConfig(ConfigName)
	if err != nil {
		return "", err
	}
	return string(name), nil
}

// SetDeviceID stores this vault's own device id
func (s *Storage) SetDeviceID(id string) error {
	return s.setConfig(ConfigDeviceID, []byte(id))
}

// GetDeviceID retrieves this vault's own device id
func (s *Storage) GetDeviceID() (string, error) {
	id, err := s.getConfig(ConfigDeviceID)
	if err != nil {
		return "", err
	}
	if id == nil {
		return "", fmt.Errorf("device_id not found")
	}
	return string(id), nil
}

// NextCounter atomically increments and returns the local change counter
func (s *Storage) NextCounter() (uint64, error) {
	var next uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if buf := config.Get(ConfigCounter); len(buf) == 8 {
			next = binary.BigEndian.Uint64(buf)
		}
		next++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, next)
		return config.Put(ConfigCounter, buf)
	})
	return next, err
}

// CurrentCounter returns the local change counter without advancing it
func (s *Storage) CurrentCounter() (uint64, error) {
	buf, err := s.getConfig(ConfigCounter)
	if err != nil {
		return 0, err
	}
	if len(buf) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(buf), nil
}

// StoreWrappedMnemonic stores the password-wrapped recovery phrase blob
func (s *Storage) StoreWrappedMnemonic(data []byte) error {
	return s.setConfig(ConfigMnemonic, data)
}

// GetWrappedMnemonic retrieves the wrapped recovery phrase, nil if none stored
func (s *Storage) GetWrappedMnemonic() ([]byte, error) {
	return s.getConfig(ConfigMnemonic)
}

// StoreKeyCheck stores the encrypted key-verification blob
func (s *Storage) StoreKeyCheck(data []byte) error {
	return s.setConfig(ConfigKeyCheck, data)
}

// GetKeyCheck retrieves the encrypted key-verification blob
func (s *Storage) GetKeyCheck() ([]byte, error) {
	data, err := s.getConfig(ConfigKeyCheck)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("keycheck not found")
	}
	return data, nil
}

// UpdateModified updates the last modified timestamp
func (s *Storage) UpdateModified() error {
	now := time.Now()
	modified, _ := now.MarshalBinary()
	return s.setConfig(ConfigModified, modified)
}

// GetModified retrieves the last modified timestamp
func (s *Storage) GetModified() (time.Time, error) {
	var modified time.Time
	data, err := s.getConfig(ConfigModified)
	if err != nil {
		return modified, err
	}
	if data == nil {
		return modified, fmt.Errorf("modified time not found")
	}
	return modified, modified.UnmarshalBinary(data)
}

// PutEntry stores an entry record
func (s *Storage) PutEntry(entry *EntryRecord) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(EntriesBucket).Put([]byte(entry.ID), data)
	})
}

// GetEntry retrieves an entry record, nil if absent
func (s *Storage) GetEntry(id string) (*EntryRecord, error) {
	var entry *EntryRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		entries := tx.Bucket(EntriesBucket)
		if entries == nil {
			return fmt.Errorf("entries bucket not found")
		}
		data := entries.Get([]byte(id))
		if data == nil {
			return nil
		}
		entry = &EntryRecord{}
		return json.Unmarshal(data, entry)
	})
	return entry, err
}

// ForEachEntry iterates all entry records
func (s *Storage) ForEachEntry(fn func(*EntryRecord) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		entries := tx.Bucket(EntriesBucket)
		if entries == nil {
			return fmt.Errorf("entries bucket not found")
		}
		return entries.ForEach(func(k, v []byte) error {
			var entry EntryRecord
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			return fn(&entry)
		})
	})
}

// RemoveEntry physically deletes an entry record (compaction only;
// logical deletion goes through tombstones)
func (s *Storage) RemoveEntry(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(EntriesBucket).Delete([]byte(id))
	})
}

// PutEntryWithChange persists an entry record and appends its change
// record in a single transaction, so a mutation is never visible
// without its log entry. The change is skipped if its id is known.
func (s *Storage) PutEntryWithChange(entry *EntryRecord, rec *ChangeRecord) error {
	entryData, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	recData, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(EntriesBucket).Put([]byte(entry.ID), entryData); err != nil {
			return err
		}

		ids := tx.Bucket(ChangeIDsBucket)
		if ids.Get([]byte(rec.ID)) != nil {
			return nil
		}

		log := tx.Bucket(ChangeLogBucket)
		seq, err := log.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		if err := log.Put(key, recData); err != nil {
			return err
		}
		return ids.Put([]byte(rec.ID), key)
	})
}

// HasChange reports whether a record id is already in the log
func (s *Storage) HasChange(id string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ids := tx.Bucket(ChangeIDsBucket)
		if ids == nil {
			return fmt.Errorf("changeids bucket not found")
		}
		found = ids.Get([]byte(id)) != nil
		return nil
	})
	return found, err
}

// ForEachChange iterates change records in local append order
func (s *Storage) ForEachChange(fn func(*ChangeRecord) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		log := tx.Bucket(ChangeLogBucket)
		if log == nil {
			return fmt.Errorf("changelog bucket not found")
		}
		return log.ForEach(func(k, v []byte) error {
			var rec ChangeRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			return fn(&rec)
		})
	})
}

// RemoveChanges deletes the given record ids from the log (compaction)
func (s *Storage) RemoveChanges(recordIDs []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		log := tx.Bucket(ChangeLogBucket)
		ids := tx.Bucket(ChangeIDsBucket)
		for _, id := range recordIDs {
			seq := ids.Get([]byte(id))
			if seq == nil {
				continue
			}
			if err := log.Delete(seq); err != nil {
				return err
			}
			if err := ids.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutDevice stores a device record
func (s *Storage) PutDevice(device *DeviceRecord) error {
	data, err := json.Marshal(device)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(DevicesBucket).Put([]byte(device.ID), data)
	})
}

// GetDevice retrieves a device record, nil if absent
func (s *Storage) GetDevice(id string) (*DeviceRecord, error) {
	var device *DeviceRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		devices := tx.Bucket(DevicesBucket)
		if devices == nil {
			return fmt.Errorf("devices bucket not found")
		}
		data := devices.Get([]byte(id))
		if data == nil {
			return nil
		}
		device = &DeviceRecord{}
		return json.Unmarshal(data, device)
	})
	return device, err
}

// ForEachDevice iterates all device records
func (s *Storage) ForEachDevice(fn func(*DeviceRecord) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		devices := tx.Bucket(DevicesBucket)
		if devices == nil {
			return fmt.Errorf("devices bucket not found")
		}
		return devices.ForEach(func(k, v []byte) error {
			var device DeviceRecord
			if err := json.Unmarshal(v, &device); err != nil {
				return err
			}
			return fn(&device)
		})
	})
}

// RemoveDevice deletes a device record
func (s *Storage) RemoveDevice(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(DevicesBucket).Delete([]byte(id))
	})
}

// Compact creates a compacted copy of the database, removing unused space.
// This is useful after tombstone and change-log garbage collection.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	// Create new database
	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	// Copy all buckets
	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				if err := dstBucket.SetSequence(srcBucket.Sequence()); err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// Atomic replace
	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	// Reopen database
	s.db, err = bolt.Open(srcPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}
