// Package storage provides the BBolt database interface for petalvault.
//
// Database structure uses five buckets:
//   - config: KDF parameters, vault identity, local counter (unencrypted)
//   - entries: entry records; field values are ciphertext, merge
//     metadata (timestamps, tombstones) is plaintext
//   - changelog: append-only change records keyed by local sequence
//   - changeids: record id set, makes change replay a no-op
//   - devices: paired device registry with per-device cursors
//
// The unencrypted config bucket lets petalvault status report vault
// name and KDF settings without requiring the key.
//
// BBolt provides ACID transactions, file locking, and corruption detection.
package storage
