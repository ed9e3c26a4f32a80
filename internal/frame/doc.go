// Package frame splits changeset blobs into QR-sized frames and
// reassembles them on the scanning side. Frames may arrive in any
// order, duplicated, or interleaved across sessions; each frame is
// checksummed individually and the whole blob is verified against a
// sha256 aggregate carried by frame 0.
package frame
