package hash

import (
	stdecdsa "crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/twmb/murmur3"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // deprecated upstream, still the canonical RIPEMD-160 implementation
)

// Curve selects the elliptic curve used by ECDSASign/ECDSAVerify. Neo N3
// uses secp256r1 for standard accounts; secp256k1 is accepted for
// interoperability with externally-owned secp256k1 keys (e.g. bridged
// assets), per §4.2.
type Curve int

const (
	CurveSecp256r1 Curve = iota
	CurveSecp256k1
)

// Sha256 is the single-round SHA-256 primitive.
func Sha256(b []byte) [32]byte { return sha256.Sum256(b) }

// Ripemd160 is the RIPEMD-160 primitive.
func Ripemd160(b []byte) [20]byte {
	h := ripemd160.New()
	h.Write(b) //nolint:errcheck // ripemd160.digest.Write never errors
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Hash256 is sha256(sha256(b)), used for block/transaction hashing and
// the P2P message checksum.
func Hash256(b []byte) Uint256 {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return Uint256(second)
}

// Hash160 is ripemd160(sha256(b)), used to derive script hashes
// (UInt160 account identifiers) from verification scripts.
func Hash160(b []byte) Uint160 {
	first := sha256.Sum256(b)
	return Uint160(Ripemd160(first[:]))
}

// Murmur32 is used by the P2P bloom-filter machinery (FilterLoad/FilterAdd).
func Murmur32(b []byte, seed uint32) uint32 {
	return murmur3.SeedSum32(seed, b)
}

// ECDSASign produces a signature over msg's SHA-256 digest using the
// given curve and private key scalar. The result is the raw r||s
// concatenation (64 bytes), the form used by witness invocation scripts.
func ECDSASign(curve Curve, priv []byte, msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	switch curve {
	case CurveSecp256k1:
		pk := secp256k1.PrivKeyFromBytes(priv)
		sig := dcrecdsa.Sign(pk, digest[:])
		rb := sig.R().Bytes()
		sb := sig.S().Bytes()
		out := make([]byte, 64)
		copy(out[:32], rb[:])
		copy(out[32:], sb[:])
		return out, nil
	case CurveSecp256r1:
		pk, err := p256FromScalar(priv)
		if err != nil {
			return nil, err
		}
		r, s, err := stdecdsa.Sign(rand.Reader, pk, digest[:])
		if err != nil {
			return nil, err
		}
		return encodeRS(r, s), nil
	default:
		return nil, errors.New("hash: unsupported curve")
	}
}

// ECDSAVerify reports whether sig (raw r||s, 64 bytes) is a valid
// signature over msg's SHA-256 digest under pub (compressed or
// uncompressed point encoding) for the given curve.
func ECDSAVerify(curve Curve, pub []byte, msg []byte, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	digest := sha256.Sum256(msg)
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])

	switch curve {
	case CurveSecp256k1:
		pk, err := secp256k1.ParsePubKey(pub)
		if err != nil {
			return false
		}
		rr, rs := secp256k1.ModNScalar{}, secp256k1.ModNScalar{}
		if rr.SetByteSlice(r.Bytes()) || rs.SetByteSlice(s.Bytes()) {
			return false // overflowed the group order
		}
		dsig := dcrecdsa.NewSignature(&rr, &rs)
		return dsig.Verify(digest[:], pk)
	case CurveSecp256r1:
		x, y, err := p256PointFromBytes(pub)
		if err != nil {
			return false
		}
		pk := &stdecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		return stdecdsa.Verify(pk, digest[:], r, s)
	default:
		return false
	}
}

// ECDSAPublicKey derives the compressed public key point for a private
// key scalar, the form validator configs and witness scripts use.
func ECDSAPublicKey(curve Curve, priv []byte) ([]byte, error) {
	switch curve {
	case CurveSecp256k1:
		pk := secp256k1.PrivKeyFromBytes(priv)
		return pk.PubKey().SerializeCompressed(), nil
	case CurveSecp256r1:
		pk, err := p256FromScalar(priv)
		if err != nil {
			return nil, err
		}
		return elliptic.MarshalCompressed(elliptic.P256(), pk.X, pk.Y), nil
	default:
		return nil, errors.New("hash: unsupported curve")
	}
}

func p256FromScalar(priv []byte) (*stdecdsa.PrivateKey, error) {
	curve := elliptic.P256()
	d := new(big.Int).SetBytes(priv)
	x, y := curve.ScalarBaseMult(priv)
	return &stdecdsa.PrivateKey{
		PublicKey: stdecdsa.PublicKey{Curve: curve, X: x, Y: y},
		D:         d,
	}, nil
}

func encodeRS(r, s *big.Int) []byte {
	out := make([]byte, 64)
	r.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out
}

func p256PointFromBytes(b []byte) (*big.Int, *big.Int, error) {
	curve := elliptic.P256()
	x, y := elliptic.UnmarshalCompressed(curve, b)
	if x == nil {
		x, y = elliptic.Unmarshal(curve, b)
	}
	if x == nil {
		return nil, nil, errors.New("hash: invalid secp256r1 public key encoding")
	}
	return x, y, nil
}
