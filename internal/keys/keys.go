package keys

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"

	"github.com/petalvault/petalvault/internal/crypto"
)

// MnemonicWords is the number of words in a recovery phrase (128-bit entropy)
const MnemonicWords = 12

var ErrBadMnemonic = errors.New("invalid mnemonic phrase")

// MasterKey is the vault's symmetric key derived from the recovery phrase.
// It only ever lives in memory; Destroy must be called when done.
type MasterKey struct {
	key []byte
}

// Encryptor returns an authenticated encryptor bound to this key
func (m *MasterKey) Encryptor() *crypto.Encryptor {
	return crypto.NewEncryptor(m.key)
}

// Destroy clears the key material from memory
func (m *MasterKey) Destroy() {
	crypto.ClearBytes(m.key)
}

// NewMnemonic generates a fresh 12-word recovery phrase
func NewMnemonic() ([]string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return nil, fmt.Errorf("failed to generate entropy: %w", err)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("failed to build mnemonic: %w", err)
	}
	return strings.Fields(phrase), nil
}

// NormalizeMnemonic lowercases and trims a phrase into its word list
func NormalizeMnemonic(phrase string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(phrase)))
}

// ValidateMnemonic checks word count, wordlist membership and checksum
func ValidateMnemonic(words []string) error {
	if len(words) != MnemonicWords {
		return ErrBadMnemonic
	}
	if !bip39.IsMnemonicValid(strings.Join(words, " ")) {
		return ErrBadMnemonic
	}
	return nil
}

// LineageSalt derives the vault KDF salt from the recovery phrase
// itself. Every vault created from the same phrase ends up with the
// same master key, which is what lets paired devices read each other's
// changesets without key material ever leaving either device.
func LineageSalt(words []string) ([]byte, error) {
	if err := ValidateMnemonic(words); err != nil {
		return nil, err
	}

	entropy, err := bip39.EntropyFromMnemonic(strings.Join(words, " "))
	if err != nil {
		return nil, ErrBadMnemonic
	}
	defer crypto.ClearBytes(entropy)

	h := sha256.New()
	h.Write([]byte("petalvault/kdf-salt/v1"))
	h.Write(entropy)
	return h.Sum(nil), nil
}

// DeriveMaster derives the vault master key from a recovery phrase and
// the vault's KDF parameters. The phrase's 128-bit entropy is the KDF
// input secret.
func DeriveMaster(words []string, kdf *crypto.KDF) (*MasterKey, error) {
	if err := ValidateMnemonic(words); err != nil {
		return nil, err
	}

	entropy, err := bip39.EntropyFromMnemonic(strings.Join(words, " "))
	if err != nil {
		return nil, ErrBadMnemonic
	}
	defer crypto.ClearBytes(entropy)

	key, err := kdf.DeriveKey(entropy)
	if err != nil {
		return nil, err
	}

	return &MasterKey{key: key}, nil
}

// WrappedMnemonic is the recovery phrase encrypted under a key derived
// from a user-chosen convenience password. Losing both the phrase and
// the password makes the vault unrecoverable; that is intentional.
type WrappedMnemonic struct {
	Salt []byte `json:"salt"`
	N    int    `json:"n"`
	R    int    `json:"r"`
	P    int    `json:"p"`
	Blob []byte `json:"blob"`
}

// WrapMnemonic encrypts the recovery phrase with a password-derived key.
// The wrap key uses its own random salt, independent of the vault KDF.
func WrapMnemonic(words []string, password []byte) (*WrappedMnemonic, error) {
	if err := ValidateMnemonic(words); err != nil {
		return nil, err
	}

	kdf, err := crypto.NewKDF()
	if err != nil {
		return nil, err
	}

	key, err := kdf.DeriveKey(password)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(key)

	enc := crypto.NewEncryptor(key)
	blob, err := enc.Encrypt([]byte(strings.Join(words, " ")))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt mnemonic: %w", err)
	}

	return &WrappedMnemonic{
		Salt: kdf.Salt,
		N:    kdf.N,
		R:    kdf.R,
		P:    kdf.P,
		Blob: blob,
	}, nil
}

// UnwrapMnemonic decrypts a wrapped recovery phrase. A wrong password
// fails tag verification and returns crypto.ErrAuthFailed.
func UnwrapMnemonic(w *WrappedMnemonic, password []byte) ([]string, error) {
	kdf := &crypto.KDF{Salt: w.Salt, N: w.N, R: w.R, P: w.P}

	key, err := kdf.DeriveKey(password)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(key)

	enc := crypto.NewEncryptor(key)
	plaintext, err := enc.Decrypt(w.Blob)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(plaintext)

	words := NormalizeMnemonic(string(plaintext))
	if err := ValidateMnemonic(words); err != nil {
		return nil, err
	}
	return words, nil
}
