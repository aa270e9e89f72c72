package digest

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Size is the length in bytes of a content digest.
const Size = 32

// HexLen is the length of a digest rendered as hex.
const HexLen = Size * 2

// Digest is a BLAKE3-256 content address. Equal digests imply
// bit-identical content.
type Digest [Size]byte

// Sum computes the content digest of b.
func Sum(b []byte) Digest {
	return Digest(blake3.Sum256(b))
}

// Parse parses a 64-character hex digest string. Upper case is
// accepted and canonicalized to lower case.
func Parse(s string) (Digest, error) {
	if len(s) != HexLen {
		return Digest{}, fmt.Errorf("invalid digest %q: expected %d hex characters, got %d", s, HexLen, len(s))
	}

	raw, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return Digest{}, fmt.Errorf("invalid digest %q: %w", s, err)
	}

	var d Digest
	copy(d[:], raw)
	return d, nil
}

// String returns the digest as 64 lowercase hex characters.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is the zero value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalText implements encoding.TextMarshaler so digests embed
// cleanly in JSON payloads.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
