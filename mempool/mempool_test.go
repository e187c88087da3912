package mempool

import (
	"testing"

	"github.com/n3node/core/ledger"
)

func txWithFee(nonce uint32, networkFee int64, validUntil uint32) *ledger.Transaction {
	return &ledger.Transaction{
		Version:         0,
		Nonce:           nonce,
		NetworkFee:      networkFee,
		ValidUntilBlock: validUntil,
		Script:          []byte{byte(nonce)},
	}
}

// TestEviction reproduces §8 scenario 3 literally: capacity 2, admit A
// (fee-per-byte 100) and B (200), then C (150) evicts A, then D (50) is
// rejected outright.
func TestEviction(t *testing.T) {
	mp := New(2, nil)

	sizeOf := func(tx *ledger.Transaction) int64 { return int64(tx.Size()) }

	a := txWithFee(1, 0, 1000)
	a.NetworkFee = 100 * sizeOf(a)
	if r := mp.TryAdd(a, 0); r != Added {
		t.Fatalf("add A: got %v", r)
	}

	b := txWithFee(2, 0, 1000)
	b.NetworkFee = 200 * sizeOf(b)
	if r := mp.TryAdd(b, 0); r != Added {
		t.Fatalf("add B: got %v", r)
	}

	c := txWithFee(3, 0, 1000)
	c.NetworkFee = 150 * sizeOf(c)
	if r := mp.TryAdd(c, 0); r != Added {
		t.Fatalf("add C: got %v", r)
	}
	if mp.Contains(a.Hash()) {
		t.Fatal("A should have been evicted")
	}
	if !mp.Contains(b.Hash()) || !mp.Contains(c.Hash()) {
		t.Fatal("B and C should remain")
	}

	sorted := mp.GetSorted(10)
	if len(sorted) != 2 || sorted[0].Hash() != b.Hash() || sorted[1].Hash() != c.Hash() {
		t.Fatalf("expected proposal order [B, C], got %d entries", len(sorted))
	}

	d := txWithFee(4, 0, 1000)
	d.NetworkFee = 50 * sizeOf(d)
	if r := mp.TryAdd(d, 0); r != InsufficientFee {
		t.Fatalf("add D: expected InsufficientFee, got %v", r)
	}
	if mp.Len() != 2 {
		t.Fatalf("pool should be unchanged, has %d entries", mp.Len())
	}
}

func TestAlreadyExistsIsIdempotent(t *testing.T) {
	mp := New(10, nil)
	tx := txWithFee(1, 1000, 1000)
	if r := mp.TryAdd(tx, 0); r != Added {
		t.Fatalf("first add: got %v", r)
	}
	if r := mp.TryAdd(tx, 0); r != AlreadyExists {
		t.Fatalf("second add: got %v", r)
	}
	if mp.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", mp.Len())
	}
}

func TestExpiredRejected(t *testing.T) {
	mp := New(10, nil)
	tx := txWithFee(1, 1000, 5)
	if r := mp.TryAdd(tx, 10); r != Expired {
		t.Fatalf("expected Expired, got %v", r)
	}
}

func TestReVerifyAfterBlockRemovesIncludedAndExpired(t *testing.T) {
	mp := New(10, nil)
	included := txWithFee(1, 1000, 100)
	expired := txWithFee(2, 1000, 5)
	surviving := txWithFee(3, 1000, 100)
	for _, tx := range []*ledger.Transaction{included, expired, surviving} {
		if r := mp.TryAdd(tx, 0); r != Added {
			t.Fatalf("add %d: got %v", tx.Nonce, r)
		}
	}

	block := &ledger.Block{Transactions: []*ledger.Transaction{included}}
	block.Header.Index = 10
	mp.ReVerifyAfterBlock(block)

	if mp.Contains(included.Hash()) {
		t.Fatal("included tx should be removed")
	}
	if mp.Contains(expired.Hash()) {
		t.Fatal("expired tx should be removed")
	}
	if !mp.Contains(surviving.Hash()) {
		t.Fatal("surviving tx should remain")
	}
}
