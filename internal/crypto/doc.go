// Package crypto provides cryptographic operations for petalvault.
//
// Encryption uses AES-256-GCM with:
//   - 32-byte key derived via scrypt
//   - 12-byte random nonce per encryption operation
//   - Authenticated encryption prevents tampering
//
// Key derivation uses scrypt with:
//   - 32-byte random salt (stored unencrypted)
//   - N=65536, r=8, p=1 (memory-hard cost parameters)
//
// A wrong key never yields garbage plaintext: GCM tag verification
// fails and Decrypt returns ErrAuthFailed.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Encryptor.Destroy() when done with encryption operations
package crypto
