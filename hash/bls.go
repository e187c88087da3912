package hash

import (
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// BLS12-381 group element façade used by the native CryptoLib contract
// (§4.2, §4.6). Only the operation contracts are exposed; the underlying
// representation is gnark-crypto's.

type G1 = bls12381.G1Affine
type G2 = bls12381.G2Affine
type GT = bls12381.GT
type Scalar = fr.Element

// G1Add adds two G1 points.
func G1Add(a, b G1) G1 {
	var out G1
	out.Add(&a, &b)
	return out
}

// G1ScalarMul multiplies a G1 point by a scalar.
func G1ScalarMul(p G1, s Scalar) G1 {
	var out G1
	var bi big.Int
	s.BigInt(&bi)
	out.ScalarMultiplication(&p, &bi)
	return out
}

// Pairing computes e(a, b) in GT.
func Pairing(a G1, b G2) (GT, error) {
	return bls12381.Pair([]G1{a}, []G2{b})
}

// HashToG1 hashes msg to a point on G1 under the given domain separation
// tag, used by the native CryptoLib's curve-hashing helpers.
func HashToG1(msg, dst []byte) (G1, error) {
	return bls12381.HashToG1(msg, dst)
}
