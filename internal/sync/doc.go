// Package sync turns the vault change log into encrypted changeset
// blobs and merges blobs coming back from other devices. A changeset is
// the unit carried over the air gap: JSON records, zlib-deflated,
// sealed with AES-GCM under the shared master key. Framing for QR
// transport is a separate concern (package frame).
package sync
