package frame

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"sort"
	"sync"

	"github.com/google/uuid"
)

const (
	// Version is the frame wire format version
	Version = 1

	// ChunkSize keeps each frame small enough for a comfortably
	// scannable QR code at low error correction.
	ChunkSize = 512
)

var (
	// ErrMalformedFrame marks a frame that failed schema or checksum
	// validation. Recoverable: the operator just re-scans the code.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrAggregateCorrupted means every frame arrived but the
	// reassembled blob fails its integrity hash. Fatal for the
	// session; the export must be restarted.
	ErrAggregateCorrupted = errors.New("reassembled changeset failed integrity check")
)

// Frame is one QR-sized piece of a changeset blob. Payload is carried
// base64-encoded by the JSON layer; the checksum covers the header
// fields, the aggregate and the raw payload so a misdecoded code is
// caught per frame. Frame 0 additionally carries the sha256 of the
// whole blob.
type Frame struct {
	Version   int    `json:"v"`
	Session   string `json:"s"`
	Index     int    `json:"i"`
	Total     int    `json:"n"`
	Payload   []byte `json:"p"`
	Checksum  uint32 `json:"c"`
	Aggregate string `json:"a,omitempty"`
}

// Split cuts a blob into frames for one transfer session. An empty
// session id gets a fresh random one.
func Split(blob []byte, sessionID string) ([]Frame, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	total := (len(blob) + ChunkSize - 1) / ChunkSize
	if total == 0 {
		total = 1
	}

	aggregate := sha256.Sum256(blob)
	frames := make([]Frame, 0, total)
	for i := 0; i < total; i++ {
		start := i * ChunkSize
		end := start + ChunkSize
		if end > len(blob) {
			end = len(blob)
		}

		f := Frame{
			Version: Version,
			Session: sessionID,
			Index:   i,
			Total:   total,
			Payload: blob[start:end],
		}
		if i == 0 {
			f.Aggregate = hex.EncodeToString(aggregate[:])
		}
		f.Checksum = f.checksum()
		frames = append(frames, f)
	}
	return frames, nil
}

// Encode serializes the frame to the compact JSON put inside a QR code
func (f *Frame) Encode() (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("failed to encode frame: %w", err)
	}
	return string(data), nil
}

// Decode parses and validates one scanned frame text
func Decode(raw string) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedFrame, f.Version)
	}
	if f.Session == "" || f.Total < 1 || f.Index < 0 || f.Index >= f.Total {
		return nil, fmt.Errorf("%w: bad header %d/%d", ErrMalformedFrame, f.Index, f.Total)
	}
	if f.Checksum != f.checksum() {
		return nil, fmt.Errorf("%w: checksum mismatch on frame %d", ErrMalformedFrame, f.Index)
	}
	return &f, nil
}

func (f *Frame) checksum() uint32 {
	h := crc32.NewIEEE()
	fmt.Fprintf(h, "%d|%s|%d|%d|%s|", f.Version, f.Session, f.Index, f.Total, f.Aggregate)
	h.Write(f.Payload)
	return h.Sum32()
}

// Progress reports the state of one session after a scan
type Progress struct {
	Session  string
	Received int
	Total    int
	Missing  []int  // indexes still outstanding, ascending
	Blob     []byte // non-nil once the session completed and verified
}

// Complete reports whether the blob has been fully reassembled
func (p *Progress) Complete() bool {
	return p.Blob != nil
}

type session struct {
	total     int
	aggregate string
	chunks    map[int][]byte
}

// Collector reassembles changeset blobs from frames scanned in any
// order. Sessions are isolated by id, so codes from two different
// exports can be scanned interleaved without corrupting either.
type Collector struct {
	mu       sync.Mutex
	sessions map[string]*session
}

// NewCollector returns an empty frame collector
func NewCollector() *Collector {
	return &Collector{sessions: make(map[string]*session)}
}

// Collect ingests one scanned frame text. Duplicates are no-ops. When
// the last outstanding frame arrives the whole blob is verified against
// the aggregate hash; on mismatch the session is discarded and
// ErrAggregateCorrupted returned.
func (c *Collector) Collect(raw string) (*Progress, error) {
	f, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[f.Session]
	if !ok {
		s = &session{total: f.Total, chunks: make(map[int][]byte)}
		c.sessions[f.Session] = s
	}
	if s.total != f.Total {
		return nil, fmt.Errorf("%w: frame count changed mid-session", ErrMalformedFrame)
	}

	if existing, ok := s.chunks[f.Index]; ok {
		if !bytes.Equal(existing, f.Payload) {
			return nil, fmt.Errorf("%w: conflicting payload for frame %d", ErrMalformedFrame, f.Index)
		}
	} else {
		s.chunks[f.Index] = f.Payload
	}
	if f.Index == 0 {
		s.aggregate = f.Aggregate
	}

	progress := &Progress{
		Session:  f.Session,
		Received: len(s.chunks),
		Total:    s.total,
	}
	if len(s.chunks) < s.total {
		for i := 0; i < s.total; i++ {
			if _, ok := s.chunks[i]; !ok {
				progress.Missing = append(progress.Missing, i)
			}
		}
		sort.Ints(progress.Missing)
		return progress, nil
	}

	blob := make([]byte, 0, s.total*ChunkSize)
	for i := 0; i < s.total; i++ {
		blob = append(blob, s.chunks[i]...)
	}

	sum := sha256.Sum256(blob)
	if hex.EncodeToString(sum[:]) != s.aggregate {
		delete(c.sessions, f.Session)
		return nil, ErrAggregateCorrupted
	}

	delete(c.sessions, f.Session)
	progress.Blob = blob
	return progress, nil
}

// Abandon discards a partial session without side effects
func (c *Collector) Abandon(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}
