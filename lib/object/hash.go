// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/meridian-quant/meridian/lib/codec"
	"github.com/meridian-quant/meridian/lib/schema"
)

// Hash is a 32-byte BLAKE3 digest of an object's canonical bytes. It
// is the sole identity of a stored artifact: same bytes, same hash,
// same object.
type Hash [32]byte

// objectDomainKey is the BLAKE3 keyed-hash domain key for stored
// objects. It is a fixed protocol constant; changing it invalidates
// every existing object hash. The bytes are the ASCII domain name,
// zero-padded to the 32 bytes keyed mode requires; readable ASCII
// keeps the key inspectable in hex dumps without weakening anything
// (keyed mode treats the key as opaque).
var objectDomainKey = [32]byte{
	'm', 'e', 'r', 'i', 'd', 'i', 'a', 'n', '.', 'o', 'b', 'j', 'e', 'c', 't',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashBytes computes the object-domain keyed hash of raw canonical
// bytes. Hashes are always computed on uncompressed bytes, so the
// on-disk compression choice never affects identity.
func HashBytes(data []byte) Hash {
	hasher, err := blake3.NewKeyed(objectDomainKey[:])
	if err != nil {
		// NewKeyed fails only for a wrong key length, which the
		// fixed-size array rules out.
		panic("object: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// HashArtifact canonically encodes an artifact and hashes the result.
// This is the identity every committed artifact is addressed by.
func HashArtifact(a *schema.Artifact) (Hash, []byte, error) {
	raw, err := codec.Marshal(a)
	if err != nil {
		return Hash{}, nil, fmt.Errorf("encoding artifact: %w", err)
	}
	return HashBytes(raw), raw, nil
}

// FormatHash returns the 64-character hex encoding of a hash. This is
// the canonical form used in metadata, cross-artifact references,
// logs, and CLI output.
func FormatHash(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing object hash: %w", err)
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("object hash is %d bytes, want 32", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// FormatRef returns the short human-facing reference for a hash: the
// "obj-" prefix followed by the first 12 hex characters.
func FormatRef(hash Hash) string {
	return "obj-" + hex.EncodeToString(hash[:6])
}

// String implements fmt.Stringer using the full hex form.
func (h Hash) String() string {
	return FormatHash(h)
}

// IsZero reports whether the hash is the all-zero value. The zero hash
// is never a valid object identity.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText encodes the hash as hex, so Hash fields serialize as
// readable strings in CBOR, JSON, and YAML.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(FormatHash(h)), nil
}

// UnmarshalText parses the hex form produced by MarshalText.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
