package hash

import (
	"crypto/elliptic"
	"testing"
)

func TestMerkleRootEmpty(t *testing.T) {
	if got := MerkleRoot(nil); got != Uint256Zero {
		t.Fatalf("empty merkle root = %v, want zero", got)
	}
}

func TestMerkleRootSingle(t *testing.T) {
	leaf := Hash256([]byte("leaf"))
	if got := MerkleRoot([]Uint256{leaf}); got != leaf {
		t.Fatalf("single-leaf merkle root = %v, want %v", got, leaf)
	}
}

func TestMerkleRootOddDuplicatesLast(t *testing.T) {
	a := Hash256([]byte("a"))
	b := Hash256([]byte("b"))
	c := Hash256([]byte("c"))

	withThree := MerkleRoot([]Uint256{a, b, c})
	withDup := MerkleRoot([]Uint256{a, b, c, c})
	if withThree != withDup {
		t.Fatalf("odd-length merkle root should duplicate the last leaf: %v != %v", withThree, withDup)
	}
}

func TestHash160Hash256Deterministic(t *testing.T) {
	msg := []byte("neo n3 core")
	if Hash256(msg) != Hash256(msg) {
		t.Fatal("Hash256 not deterministic")
	}
	if Hash160(msg) != Hash160(msg) {
		t.Fatal("Hash160 not deterministic")
	}
}

func TestUint256HexRoundTrip(t *testing.T) {
	u := Hash256([]byte("round trip"))
	s := u.String()
	back, err := Uint256FromHex(s)
	if err != nil {
		t.Fatalf("Uint256FromHex: %v", err)
	}
	if back != u {
		t.Fatalf("round trip mismatch: %v != %v", back, u)
	}
}

func TestECDSASignVerifySecp256r1(t *testing.T) {
	scalar := Hash256([]byte("a test private scalar"))
	priv := scalar[:]
	msg := []byte("transaction payload")

	sig, err := ECDSASign(CurveSecp256r1, priv, msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Derive the matching public key via the same scalar multiplication
	// ECDSASign uses internally, then confirm verification accepts it
	// and rejects a tampered message.
	pk, err := p256FromScalar(priv)
	if err != nil {
		t.Fatalf("p256FromScalar: %v", err)
	}
	pub := elliptic.MarshalCompressed(elliptic.P256(), pk.X, pk.Y)

	if !ECDSAVerify(CurveSecp256r1, pub, msg, sig) {
		t.Fatal("expected valid signature to verify")
	}
	if ECDSAVerify(CurveSecp256r1, pub, []byte("different payload"), sig) {
		t.Fatal("expected tampered message to fail verification")
	}
}
