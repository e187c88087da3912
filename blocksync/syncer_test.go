package blocksync

import (
	"testing"
	"time"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/ledger"
	"github.com/n3node/core/p2p"
	"github.com/n3node/core/smartcontract"
	"github.com/n3node/core/smartcontract/native"
	"github.com/n3node/core/store"
	"github.com/n3node/core/vm"
)

func haltingScript() []byte {
	return []byte{byte(vm.OpPushTrue), byte(vm.OpRet)}
}

// fixedCommittee is every test block's witness AND next-committee
// script: a witness that always verifies true regardless of invocation
// script, named consistently across a whole test chain so precheck's
// committee check (this script hashes to the previous block's
// NextConsensus) holds without real validator keys.
var fixedCommittee = haltingScript()

func signedBlock(index uint32, prevHash hash.Uint256) *ledger.Block {
	b := &ledger.Block{}
	b.Header.Version = 0
	b.Header.Index = index
	b.Header.PrevHash = prevHash
	b.Header.Timestamp = uint64(index) * 15000
	b.Header.NextConsensus = smartcontract.ScriptHash(fixedCommittee)
	b.Header.Witness.VerificationScript = fixedCommittee
	b.Header.MerkleRoot = b.ComputeMerkleRoot()
	return b
}

func newTestChain(t *testing.T) *ledger.Blockchain {
	t.Helper()
	bc, err := ledger.Open(store.NewMemory(), native.NewSet())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	return bc
}

// chain builds n sequential blocks atop genesis, for seeding a "tall"
// peer's chain ahead of a fresh one.
func buildChain(t *testing.T, bc *ledger.Blockchain, n int) []*ledger.Block {
	t.Helper()
	blocks := make([]*ledger.Block, 0, n)
	prev := hash.Uint256{}
	for i := uint32(1); i <= uint32(n); i++ {
		b := signedBlock(i, prev)
		if _, err := bc.Persist(b); err != nil {
			t.Fatalf("seed Persist(%d): %v", i, err)
		}
		blocks = append(blocks, b)
		prev = b.Header.Hash()
	}
	return blocks
}

func TestOrphanBufferAppliesOutOfOrderArrival(t *testing.T) {
	bc := newTestChain(t)
	syncer := NewSyncer(bc, nil, DefaultConfig())

	b1 := signedBlock(1, hash.Uint256{})
	b2 := signedBlock(2, b1.Header.Hash())
	b3 := signedBlock(3, b2.Header.Hash())

	// Arrives out of order: 3, then 2 (buffered as orphans since 1
	// hasn't landed yet), then 1 — which should cascade-apply 2 and 3.
	syncer.ingest(b3)
	syncer.ingest(b2)
	if bc.Height() != 0 {
		t.Fatalf("height = %d before block 1 arrives, want 0", bc.Height())
	}
	syncer.ingest(b1)

	if bc.Height() != 3 {
		t.Fatalf("height = %d after cascade apply, want 3", bc.Height())
	}
	if bc.CurrentHash() != b3.Header.Hash() {
		t.Fatal("current hash mismatch after cascade apply")
	}
}

func TestOrphanBufferEvictsOldestWhenFull(t *testing.T) {
	ob := newOrphanBuffer(2)
	b1 := signedBlock(1, hash.Uint256{})
	b2 := signedBlock(2, hash.Uint256{1})
	b3 := signedBlock(3, hash.Uint256{2})

	ob.add(b1)
	ob.add(b2)
	ob.add(b3) // evicts b1

	if ob.has(1) {
		t.Fatal("expected index 1 to be evicted")
	}
	if !ob.has(2) || !ob.has(3) {
		t.Fatal("expected indices 2 and 3 to remain buffered")
	}
	if ob.len() != 2 {
		t.Fatalf("len = %d, want 2", ob.len())
	}
}

func TestTwoNodeHeaderAndBlockSync(t *testing.T) {
	tallChain := newTestChain(t)
	blocks := buildChain(t, tallChain, 5)

	shortChain := newTestChain(t)

	tallSyncer := NewSyncer(tallChain, nil, DefaultConfig())
	tallNode := p2p.NewNode(p2p.Config{
		Magic:          42,
		UserAgent:      "/tall/",
		ListenAddress:  "127.0.0.1:0",
		MaxConnections: 4,
	}, tallSyncer)
	tallSyncer.SetNode(tallNode)
	if err := tallNode.ListenAndServe(); err != nil {
		t.Fatalf("ListenAndServe: %v", err)
	}
	defer tallNode.Close()

	shortSyncer := NewSyncer(shortChain, nil, DefaultConfig())
	shortNode := p2p.NewNode(p2p.Config{
		Magic:          42,
		UserAgent:      "/short/",
		ListenAddress:  "127.0.0.1:0",
		MaxConnections: 4,
		SeedNodes:      []string{tallNode.ListenAddress()},
	}, shortSyncer)
	shortSyncer.SetNode(shortNode)
	if err := shortNode.ListenAndServe(); err != nil {
		t.Fatalf("ListenAndServe: %v", err)
	}
	defer shortNode.Close()

	shortNode.DialSeeds()
	tallSyncer.Start()
	defer tallSyncer.Stop()
	shortSyncer.Start()
	defer shortSyncer.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if shortChain.Height() == uint32(len(blocks)) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if shortChain.Height() != uint32(len(blocks)) {
		t.Fatalf("short chain height = %d, want %d (status=%v)", shortChain.Height(), len(blocks), shortSyncer.Status())
	}
	if shortChain.CurrentHash() != blocks[len(blocks)-1].Header.Hash() {
		t.Fatal("short chain tip hash mismatch after sync")
	}
}
