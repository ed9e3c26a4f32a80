// Package vault implements the encrypted password vault: entry CRUD,
// the append-only change log behind device sync, the device registry
// and tombstone compaction. All state lives in a single bbolt file;
// every mutation runs under one mutex and lands durably (entry plus its
// change record in one transaction) before the call returns.
//
// A vault is created from a 12-word recovery phrase and opens in the
// locked state. Unlocking derives the master key from the phrase (or
// from the stored password-wrapped copy of it) and verifies it against
// a key check blob, so a wrong phrase fails cleanly instead of
// producing garbage.
package vault
