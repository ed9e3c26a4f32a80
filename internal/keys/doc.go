// Package keys manages the vault's key material.
//
// The master key is derived from a 12-word BIP39 recovery phrase: the
// phrase's 128-bit entropy is fed through scrypt together with a salt
// derived from the phrase itself, so every vault created from the same
// phrase shares one master key. The master key is never persisted.
//
// The phrase itself may optionally be stored, but only wrapped: it is
// encrypted under a separate key derived (with an independent salt)
// from a user-chosen convenience password. Recovering a vault without
// either the phrase or the wrap password is impossible by design.
package keys
