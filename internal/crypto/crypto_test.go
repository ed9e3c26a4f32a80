package crypto

import (
	"bytes"
	"testing"
)

// Low-cost parameters keep KDF tests fast; production uses DefaultN
func testKDF(salt []byte) *KDF {
	return &KDF{Salt: salt, N: 1 << 10, R: 8, P: 1}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateRandom(KeySize)
	if err != nil {
		t.Fatalf("GenerateRandom failed: %v", err)
	}
	enc := NewEncryptor(key)

	plaintext := []byte("the quick brown fox")
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Error("Ciphertext contains plaintext")
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("Round trip mismatch: got %q", decrypted)
	}
}

func TestEncryptNonceUnique(t *testing.T) {
	key, _ := GenerateRandom(KeySize)
	enc := NewEncryptor(key)

	c1, err := enc.Encrypt([]byte("same"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	c2, err := enc.Encrypt([]byte("same"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Equal(c1, c2) {
		t.Error("Two encryptions of the same plaintext must differ")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key1, _ := GenerateRandom(KeySize)
	key2, _ := GenerateRandom(KeySize)

	ciphertext, err := NewEncryptor(key1).Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := NewEncryptor(key2).Decrypt(ciphertext); err != ErrAuthFailed {
		t.Errorf("Expected ErrAuthFailed, got %v", err)
	}
}

func TestDecryptTampered(t *testing.T) {
	key, _ := GenerateRandom(KeySize)
	enc := NewEncryptor(key)

	ciphertext, err := enc.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Flip one bit anywhere in the body
	ciphertext[len(ciphertext)/2] ^= 0x01
	if _, err := enc.Decrypt(ciphertext); err != ErrAuthFailed {
		t.Errorf("Expected ErrAuthFailed for tampered data, got %v", err)
	}
}

func TestDecryptTooShort(t *testing.T) {
	key, _ := GenerateRandom(KeySize)
	enc := NewEncryptor(key)

	if _, err := enc.Decrypt([]byte("short")); err != ErrInvalidCiphertext {
		t.Errorf("Expected ErrInvalidCiphertext, got %v", err)
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, _ := GenerateRandom(SaltSize)
	secret := []byte("correct horse battery staple")

	key1, err := testKDF(salt).DeriveKey(secret)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	key2, err := testKDF(salt).DeriveKey(secret)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	if !bytes.Equal(key1, key2) {
		t.Error("Same secret and salt must derive the same key")
	}

	otherSalt, _ := GenerateRandom(SaltSize)
	key3, err := testKDF(otherSalt).DeriveKey(secret)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	if bytes.Equal(key1, key3) {
		t.Error("Different salts must derive different keys")
	}
}

func TestClearBytes(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	ClearBytes(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("Byte %d not cleared: %d", i, v)
		}
	}
}
