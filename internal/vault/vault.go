package vault

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petalvault/petalvault/internal/crypto"
	"github.com/petalvault/petalvault/internal/keys"
	"github.com/petalvault/petalvault/internal/storage"
)

const (
	EntryIDBytes = 8 // Random bytes per entry id (url-safe base64 encoded)

	keyCheckString = "petalvault-key-check"
)

// Entry field names. These are also the wire names inside change records.
const (
	FieldSite  = "site"
	FieldUser  = "user"
	FieldPass  = "pass"
	FieldNotes = "notes"
)

// Fields lists all entry fields in display order
var Fields = []string{FieldSite, FieldUser, FieldPass, FieldNotes}

var (
	ErrNotInitialized    = errors.New("vault not initialized")
	ErrAlreadyExists     = errors.New("vault already exists")
	ErrVaultLocked       = errors.New("vault locked")
	ErrEntryNotFound     = errors.New("entry not found")
	ErrEntryDeleted      = errors.New("entry deleted")
	ErrUnknownField      = errors.New("unknown entry field")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrNoWrappedMnemonic = errors.New("no wrapped mnemonic stored")
)

// Vault is the authoritative store for one vault file: entries, device
// registry and change log. All mutations (including sync merges) run
// under a single mutex so a merge and a manual edit can never interleave.
type Vault struct {
	mu       sync.Mutex
	path     string
	db       *storage.Storage
	master   *keys.MasterKey
	enc      *crypto.Encryptor
	deviceID string
}

// Entry is a decrypted entry view handed to callers
type Entry struct {
	ID        string
	Site      string
	User      string
	Pass      string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Tombstone bool
}

// Create initializes a new vault file and leaves it open (unlocked).
// If wrapPassword is non-nil the mnemonic is stored wrapped under it.
func Create(path, name string, words []string, wrapPassword []byte) (*Vault, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ErrAlreadyExists
	}

	if err := keys.ValidateMnemonic(words); err != nil {
		return nil, err
	}

	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	salt, err := keys.LineageSalt(words)
	if err != nil {
		db.Close()
		return nil, err
	}
	kdf := &crypto.KDF{Salt: salt, N: crypto.DefaultN, R: crypto.DefaultR, P: crypto.DefaultP}
	if err := db.SetSalt(kdf.Salt); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to store salt: %w", err)
	}
	if err := db.SetKDFParams(uint32(kdf.N), uint32(kdf.R), uint32(kdf.P)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to store KDF parameters: %w", err)
	}

	if err := db.SetVaultID(uuid.NewString()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to store vault id: %w", err)
	}
	if err := db.SetName(name); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to store vault name: %w", err)
	}

	deviceID := uuid.NewString()
	if err := db.SetDeviceID(deviceID); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to store device id: %w", err)
	}

	master, err := keys.DeriveMaster(words, kdf)
	if err != nil {
		db.Close()
		return nil, err
	}

	enc := master.Encryptor()
	check, err := enc.Encrypt([]byte(keyCheckString))
	if err != nil {
		master.Destroy()
		db.Close()
		return nil, fmt.Errorf("failed to encrypt key check: %w", err)
	}
	if err := db.StoreKeyCheck(check); err != nil {
		master.Destroy()
		db.Close()
		return nil, fmt.Errorf("failed to store key check: %w", err)
	}

	v := &Vault{
		path:     path,
		db:       db,
		master:   master,
		enc:      enc,
		deviceID: deviceID,
	}

	if wrapPassword != nil {
		if err := v.StoreWrappedMnemonic(words, wrapPassword); err != nil {
			v.Close()
			return nil, err
		}
	}

	return v, nil
}

// Open opens an existing vault file in the locked state
func Open(path string) (*Vault, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, ErrNotInitialized
	}

	db, err := storage.Open(path)
	if err != nil {
		return nil, ErrNotInitialized
	}

	initialized, err := db.IsInitialized()
	if err != nil || !initialized {
		db.Close()
		return nil, ErrNotInitialized
	}

	deviceID, err := db.GetDeviceID()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read device id: %w", err)
	}

	return &Vault{
		path:     path,
		db:       db,
		deviceID: deviceID,
	}, nil
}

// Close releases the database and clears key material
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.lockKeys()
	if v.db != nil {
		err := v.db.Close()
		v.db = nil
		return err
	}
	return nil
}

// Lock discards key material, returning the vault to the locked state
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lockKeys()
}

func (v *Vault) lockKeys() {
	if v.enc != nil {
		v.enc.Destroy()
		v.enc = nil
	}
	if v.master != nil {
		v.master.Destroy()
		v.master = nil
	}
}

// Locked reports whether the vault key is currently unavailable
func (v *Vault) Locked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.enc == nil
}

// UnlockWithMnemonic derives the master key from a recovery phrase and
// verifies it against the vault's key check. A phrase from a different
// vault lineage fails with crypto.ErrAuthFailed.
func (v *Vault) UnlockWithMnemonic(words []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	master, err := v.deriveMaster(words)
	if err != nil {
		return err
	}

	enc := master.Encryptor()
	if err := v.verifyKeyCheck(enc); err != nil {
		enc.Destroy()
		master.Destroy()
		return err
	}

	v.lockKeys()
	v.master = master
	v.enc = enc
	return nil
}

// UnlockWithPassword unwraps the stored mnemonic with the convenience
// password and unlocks with it. Wrong password fails closed.
func (v *Vault) UnlockWithPassword(password []byte) error {
	words, err := v.RevealMnemonic(password)
	if err != nil {
		return err
	}
	return v.UnlockWithMnemonic(words)
}

// RevealMnemonic unwraps and returns the stored recovery phrase
func (v *Vault) RevealMnemonic(password []byte) ([]string, error) {
	wrapped, err := v.wrappedMnemonic()
	if err != nil {
		return nil, err
	}
	if wrapped == nil {
		return nil, ErrNoWrappedMnemonic
	}
	return keys.UnwrapMnemonic(wrapped, password)
}

// HasWrappedMnemonic reports whether a convenience password is set up
func (v *Vault) HasWrappedMnemonic() (bool, error) {
	wrapped, err := v.wrappedMnemonic()
	if err != nil {
		return false, err
	}
	return wrapped != nil, nil
}

// StoreWrappedMnemonic wraps the recovery phrase under a convenience
// password and persists it. The phrase must match this vault's key.
func (v *Vault) StoreWrappedMnemonic(words []string, password []byte) error {
	master, err := v.deriveMaster(words)
	if err != nil {
		return err
	}
	defer master.Destroy()

	enc := master.Encryptor()
	defer enc.Destroy()
	if err := v.verifyKeyCheck(enc); err != nil {
		return err
	}

	wrapped, err := keys.WrapMnemonic(words, password)
	if err != nil {
		return err
	}
	data, err := marshalWrapped(wrapped)
	if err != nil {
		return err
	}
	return v.db.StoreWrappedMnemonic(data)
}

// ChangeWrapPassword re-wraps the stored recovery phrase under a new
// convenience password. The old password must unwrap it first.
func (v *Vault) ChangeWrapPassword(oldPassword, newPassword []byte) error {
	words, err := v.RevealMnemonic(oldPassword)
	if err != nil {
		return err
	}
	return v.StoreWrappedMnemonic(words, newPassword)
}

// Name returns the vault display name (readable while locked)
func (v *Vault) Name() (string, error) {
	return v.db.GetName()
}

// ID returns the vault id (readable while locked)
func (v *Vault) ID() (string, error) {
	return v.db.GetVaultID()
}

// DeviceID returns this vault's own device id
func (v *Vault) DeviceID() string {
	return v.deviceID
}

// Rename changes the vault display name. The name is local metadata and
// is not propagated through the change log.
func (v *Vault) Rename(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return ErrVaultLocked
	}
	if err := v.db.SetName(name); err != nil {
		return fmt.Errorf("failed to rename vault: %w", err)
	}
	return v.db.UpdateModified()
}

// Stats are vault counters readable without the master key
type Stats struct {
	Entries    int    // live entries
	Tombstones int
	Records    int    // change log length
	Devices    int
	Authored   uint64 // mutations this device has made, ever
}

// Stats counts entries, log records and devices. Works while locked;
// only ciphertext is touched.
func (v *Vault) Stats() (*Stats, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := &Stats{}
	err := v.db.ForEachEntry(func(e *storage.EntryRecord) error {
		if e.Tombstone {
			s.Tombstones++
		} else {
			s.Entries++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := v.db.ForEachChange(func(*storage.ChangeRecord) error { s.Records++; return nil }); err != nil {
		return nil, err
	}
	if err := v.db.ForEachDevice(func(*storage.DeviceRecord) error { s.Devices++; return nil }); err != nil {
		return nil, err
	}

	authored, err := v.db.CurrentCounter()
	if err != nil {
		return nil, err
	}
	s.Authored = authored
	return s, nil
}

// Path returns the vault file location
func (v *Vault) Path() string {
	return v.path
}

// Modified returns the last mutation time
func (v *Vault) Modified() (time.Time, error) {
	return v.db.GetModified()
}

func (v *Vault) deriveMaster(words []string) (*keys.MasterKey, error) {
	salt, err := v.db.GetSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to get salt: %w", err)
	}
	n, r, p, err := v.db.GetKDFParams()
	if err != nil {
		return nil, fmt.Errorf("failed to get KDF parameters: %w", err)
	}

	kdf := &crypto.KDF{Salt: salt, N: int(n), R: int(r), P: int(p)}
	return keys.DeriveMaster(words, kdf)
}

func (v *Vault) verifyKeyCheck(enc *crypto.Encryptor) error {
	check, err := v.db.GetKeyCheck()
	if err != nil {
		return fmt.Errorf("failed to read key check: %w", err)
	}
	plaintext, err := enc.Decrypt(check)
	if err != nil {
		return err
	}
	if !crypto.ConstantTimeCompare(plaintext, []byte(keyCheckString)) {
		return crypto.ErrAuthFailed
	}
	return nil
}

// newEntryID generates a short url-safe random entry id
func newEntryID() (string, error) {
	b, err := crypto.GenerateRandom(EntryIDBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
