// Package hash provides the fixed-width identifiers (UInt160/UInt256) and
// the cryptography façade (§4.2): hashing, ECDSA, murmur32 and Merkle
// roots. Algorithms are opaque behind these contracts — callers never
// reach for crypto/* or a curve library directly.
package hash

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
)

// Uint160Size and Uint256Size are the fixed byte widths of the two
// identifier types used throughout the node for script hashes,
// addresses, transaction IDs, block hashes and Merkle roots.
const (
	Uint160Size = 20
	Uint256Size = 32
)

// Uint160 is a 20-byte value type, immutable once constructed.
type Uint160 [Uint160Size]byte

// Uint256 is a 32-byte value type, immutable once constructed.
type Uint256 [Uint256Size]byte

var (
	Uint160Zero Uint160
	Uint256Zero Uint256
)

// BytesLE returns the little-endian byte representation, the canonical
// wire order for both identifier types.
func (u Uint160) BytesLE() []byte { b := make([]byte, Uint160Size); copy(b, u[:]); return b }
func (u Uint256) BytesLE() []byte { b := make([]byte, Uint256Size); copy(b, u[:]); return b }

// reversed returns a big-endian copy of b, used only for hex display.
func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// String renders the big-endian "0x"-prefixed hex form conventionally
// used for display — a presentation concern only, distinct from the
// little-endian wire order.
func (u Uint160) String() string { return "0x" + hex.EncodeToString(reversed(u[:])) }
func (u Uint256) String() string { return "0x" + hex.EncodeToString(reversed(u[:])) }

// Uint160FromBytes reads a little-endian 20-byte slice.
func Uint160FromBytes(b []byte) (Uint160, error) {
	var u Uint160
	if len(b) != Uint160Size {
		return u, fmt.Errorf("uint160: expected %d bytes, got %d", Uint160Size, len(b))
	}
	copy(u[:], b)
	return u, nil
}

// Uint256FromBytes reads a little-endian 32-byte slice.
func Uint256FromBytes(b []byte) (Uint256, error) {
	var u Uint256
	if len(b) != Uint256Size {
		return u, fmt.Errorf("uint256: expected %d bytes, got %d", Uint256Size, len(b))
	}
	copy(u[:], b)
	return u, nil
}

// Uint160FromHex parses the conventional big-endian "0x..." display form.
func Uint160FromHex(s string) (Uint160, error) {
	b, err := decodeHexDisplay(s, Uint160Size)
	if err != nil {
		return Uint160{}, err
	}
	return Uint160FromBytes(reversed(b))
}

// Uint256FromHex parses the conventional big-endian "0x..." display form.
func Uint256FromHex(s string) (Uint256, error) {
	b, err := decodeHexDisplay(s, Uint256Size)
	if err != nil {
		return Uint256{}, err
	}
	return Uint256FromBytes(reversed(b))
}

func decodeHexDisplay(s string, size int) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("hash: expected %d bytes, got %d", size, len(b))
	}
	return b, nil
}

// Less gives Uint160/Uint256 a total order, used by Store's lexicographic
// key comparisons and by deterministic set iteration (e.g. sorted signer
// lists).
func (u Uint160) Less(v Uint160) bool { return bytes.Compare(u[:], v[:]) < 0 }
func (u Uint256) Less(v Uint256) bool { return bytes.Compare(u[:], v[:]) < 0 }

// Equal reports byte-wise equality; defined for readability at call sites
// that would otherwise compare arrays directly.
func (u Uint160) Equal(v Uint160) bool { return u == v }
func (u Uint256) Equal(v Uint256) bool { return u == v }

var errEmptyHex = errors.New("hash: empty hex string")
