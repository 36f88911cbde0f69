// Package digest implements a fixed-width content digest and its
// streaming hasher. It is grounded on
// github.com/oneconcern/datamon/pkg/cafs's Key type, but flattened from its
// two-level BLAKE2b tree hash to a single-pass whole-object digest: kyla's
// content objects are never chunked, so there is no tree to build.
package digest

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"

	blake2b "github.com/minio/blake2b-simd"
)

// Size is the width of a Digest in bytes (256 bits).
const Size = 32

// Digest is a fixed-width content digest. Equality and ordering are
// bytewise; String renders lowercase hex, which also doubles as the
// on-disk filename for loose objects.
type Digest [Size]byte

// Null is the digest of the empty byte sequence.
var Null = Sum(nil)

// Sum hashes data in one pass and returns its Digest.
func Sum(data []byte) Digest {
	h := newHash()
	_, _ = h.Write(data)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// SumReader streams r through the hasher and returns its Digest. It never
// buffers the full contents.
func SumReader(r io.Reader) (Digest, error) {
	h := newHash()
	if _, err := io.Copy(h, r); err != nil {
		return Digest{}, fmt.Errorf("digest: hashing stream: %w", err)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// Hasher is a streaming digest accumulator for callers that interleave
// writes with other work (e.g. the builder streaming a source file into
// it with io.Copy while counting its size).
type Hasher struct {
	h hash.Hash
}

// NewHasher returns a ready-to-write Hasher.
func NewHasher() *Hasher {
	return &Hasher{h: newHash()}
}

// Write implements io.Writer.
func (w *Hasher) Write(p []byte) (int, error) {
	return w.h.Write(p)
}

// Sum returns the Digest of everything written so far. It does not reset
// the hasher.
func (w *Hasher) Sum() Digest {
	var d Digest
	copy(d[:], w.h.Sum(nil))
	return d
}

func newHash() hash.Hash {
	return blake2b.New256()
}

// Parse decodes a lowercase-hex digest string.
func Parse(s string) (Digest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("digest: decoding %q: %w", s, err)
	}
	if len(b) != Size {
		return Digest{}, fmt.Errorf("digest: %q has %d bytes, want %d", s, len(b), Size)
	}
	var d Digest
	copy(d[:], b)
	return d, nil
}

// FromBytes copies a raw hash value into a Digest, returning an error if
// its length is not Size.
func FromBytes(b []byte) (Digest, error) {
	if len(b) != Size {
		return Digest{}, fmt.Errorf("digest: got %d bytes, want %d", len(b), Size)
	}
	var d Digest
	copy(d[:], b)
	return d, nil
}

// String renders the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsNull reports whether d is the digest of the empty byte sequence.
func (d Digest) IsNull() bool {
	return d == Null
}

// Equal reports bytewise equality.
func (d Digest) Equal(other Digest) bool {
	return d == other
}

// Less orders digests bytewise. It does not consider object size; the
// size ordering validate uses comes from the catalog query.
func (d Digest) Less(other Digest) bool {
	return bytes.Compare(d[:], other[:]) < 0
}

// MarshalJSON renders the digest as a hex-quoted string.
func (d Digest) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON parses a hex-quoted string into d.
func (d *Digest) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
