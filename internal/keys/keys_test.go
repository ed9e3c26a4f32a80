package keys

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/petalvault/petalvault/internal/crypto"
)

func testKDF(salt []byte) *crypto.KDF {
	return &crypto.KDF{Salt: salt, N: 1 << 10, R: 8, P: 1}
}

func TestNewMnemonic(t *testing.T) {
	words, err := NewMnemonic()
	if err != nil {
		t.Fatalf("NewMnemonic failed: %v", err)
	}
	if len(words) != MnemonicWords {
		t.Errorf("Expected %d words, got %d", MnemonicWords, len(words))
	}
	if err := ValidateMnemonic(words); err != nil {
		t.Errorf("Fresh mnemonic should validate: %v", err)
	}

	other, err := NewMnemonic()
	if err != nil {
		t.Fatalf("NewMnemonic failed: %v", err)
	}
	if strings.Join(words, " ") == strings.Join(other, " ") {
		t.Error("Two generated phrases should differ")
	}
}

func TestNormalizeMnemonic(t *testing.T) {
	words := NormalizeMnemonic("  Abandon ABILITY   able\n")
	if len(words) != 3 || words[0] != "abandon" || words[1] != "ability" || words[2] != "able" {
		t.Errorf("Normalize mismatch: %v", words)
	}
}

func TestValidateMnemonic(t *testing.T) {
	cases := []struct {
		name   string
		phrase string
		ok     bool
	}{
		{"valid", "legal winner thank year wave sausage worth useful legal winner thank yellow", true},
		{"bad checksum", "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", false},
		{"wrong count", "legal winner thank", false},
		{"foreign word", "legal winner thank year wave sausage worth useful legal winner thank qwerty", false},
	}

	for _, tc := range cases {
		err := ValidateMnemonic(strings.Fields(tc.phrase))
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrBadMnemonic) {
			t.Errorf("%s: expected ErrBadMnemonic, got %v", tc.name, err)
		}
	}
}

func TestDeriveMasterDeterministic(t *testing.T) {
	words, err := NewMnemonic()
	if err != nil {
		t.Fatalf("NewMnemonic failed: %v", err)
	}
	salt, _ := crypto.GenerateRandom(crypto.SaltSize)

	m1, err := DeriveMaster(words, testKDF(salt))
	if err != nil {
		t.Fatalf("DeriveMaster failed: %v", err)
	}
	defer m1.Destroy()

	m2, err := DeriveMaster(words, testKDF(salt))
	if err != nil {
		t.Fatalf("DeriveMaster failed: %v", err)
	}
	defer m2.Destroy()

	// Same phrase and salt must derive the same key: a blob sealed by
	// one derivation opens under the other
	plaintext := []byte("cross-derivation check")
	blob, err := m1.Encryptor().Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	opened, err := m2.Encryptor().Decrypt(blob)
	if err != nil {
		t.Fatalf("Independently derived key should open the blob: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("Round trip mismatch: %q", opened)
	}

	if _, err := DeriveMaster([]string{"nope"}, testKDF(salt)); !errors.Is(err, ErrBadMnemonic) {
		t.Errorf("Expected ErrBadMnemonic, got %v", err)
	}
}

func TestLineageSalt(t *testing.T) {
	words, err := NewMnemonic()
	if err != nil {
		t.Fatalf("NewMnemonic failed: %v", err)
	}

	s1, err := LineageSalt(words)
	if err != nil {
		t.Fatalf("LineageSalt failed: %v", err)
	}
	s2, err := LineageSalt(words)
	if err != nil {
		t.Fatalf("LineageSalt failed: %v", err)
	}
	if !bytes.Equal(s1, s2) {
		t.Error("Lineage salt must be deterministic per phrase")
	}

	other, err := NewMnemonic()
	if err != nil {
		t.Fatalf("NewMnemonic failed: %v", err)
	}
	s3, err := LineageSalt(other)
	if err != nil {
		t.Fatalf("LineageSalt failed: %v", err)
	}
	if bytes.Equal(s1, s3) {
		t.Error("Different phrases must give different salts")
	}
}

func TestWrapUnwrapMnemonic(t *testing.T) {
	words, err := NewMnemonic()
	if err != nil {
		t.Fatalf("NewMnemonic failed: %v", err)
	}
	password := []byte("daily-driver")

	wrapped, err := WrapMnemonic(words, password)
	if err != nil {
		t.Fatalf("WrapMnemonic failed: %v", err)
	}

	unwrapped, err := UnwrapMnemonic(wrapped, password)
	if err != nil {
		t.Fatalf("UnwrapMnemonic failed: %v", err)
	}
	if strings.Join(unwrapped, " ") != strings.Join(words, " ") {
		t.Errorf("Unwrap mismatch: %v", unwrapped)
	}

	// Wrong password must fail authentication, never return garbage
	if _, err := UnwrapMnemonic(wrapped, []byte("wrong")); !errors.Is(err, crypto.ErrAuthFailed) {
		t.Errorf("Expected ErrAuthFailed, got %v", err)
	}
}
