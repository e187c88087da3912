package ledger

import (
	"math/big"
	"testing"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/smartcontract"
	"github.com/n3node/core/smartcontract/native"
	"github.com/n3node/core/store"
	"github.com/n3node/core/vm"
)

func haltingScript() []byte {
	return []byte{byte(vm.OpPushTrue), byte(vm.OpRet)}
}

func faultingScript() []byte {
	return []byte{byte(vm.OpAbort)}
}

// seedGasBalance mints amount of GAS to account directly against bc's
// backing engine, outside the apply pipeline, so a fee-burn test can
// start from a known balance.
func seedGasBalance(t *testing.T, bc *Blockchain, account hash.Uint160, amount int64) {
	t.Helper()
	snap, err := bc.engine.NewSnapshot()
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	defer snap.Release()

	cache := store.NewCache(bc.engine, snap)
	eng := smartcontract.Create(smartcontract.TriggerApplication, cache, 0, 0, 0)
	bc.natives.RegisterAll(eng)
	if err := bc.natives.GAS.Mint(eng, account, big.NewInt(amount)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := cache.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

// gasBalance reads account's current GAS balance against bc's backing
// engine, the same way seedGasBalance writes it.
func gasBalance(t *testing.T, bc *Blockchain, account hash.Uint160) *big.Int {
	t.Helper()
	snap, err := bc.engine.NewSnapshot()
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	defer snap.Release()

	cache := store.NewCache(bc.engine, snap)
	eng := smartcontract.Create(smartcontract.TriggerApplication, cache, 0, 0, 0)
	bc.natives.RegisterAll(eng)
	return bc.natives.GAS.BalanceOf(eng, account)
}

// feePayingTx builds a transaction with one global-scope signer whose
// witness is a trivially-halting verification script (CheckWitness only
// inspects scope bits and whether the script itself evaluates true —
// see smartcontract.VerifyWitness — so no real key pair is needed here).
func feePayingTx(script []byte, account hash.Uint160, systemFee, networkFee int64) *Transaction {
	return &Transaction{
		Script:          script,
		SystemFee:       systemFee,
		NetworkFee:      networkFee,
		ValidUntilBlock: 1000,
		Signers:         []Signer{{Account: account, Scopes: ScopeGlobal}},
		Witnesses:       []Witness{{VerificationScript: haltingScript()}},
	}
}

func signedBlock(index uint32, prevHash hash.Uint256, txs []*Transaction) *Block {
	b := &Block{Transactions: txs}
	b.Header.Version = 0
	b.Header.Index = index
	b.Header.PrevHash = prevHash
	b.Header.Timestamp = uint64(index) * 15000
	// A nonzero verification script is enough to pass precheck's
	// "witness present" gate without a real multisig; tests care about
	// the apply pipeline, not consensus-signature mechanics.
	b.Header.Witness.VerificationScript = []byte{byte(vm.OpPushTrue), byte(vm.OpRet)}
	b.Header.MerkleRoot = b.ComputeMerkleRoot()
	return b
}

func newTestChain(t *testing.T) *Blockchain {
	t.Helper()
	eng := store.NewMemory()
	bc, err := Open(eng, native.NewSet())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return bc
}

func TestPersistGenesisAdvancesHeight(t *testing.T) {
	bc := newTestChain(t)
	block := signedBlock(1, hash.Uint256{}, nil)

	if _, err := bc.Persist(block); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if bc.Height() != 1 {
		t.Fatalf("height = %d, want 1", bc.Height())
	}
	if bc.CurrentHash() != block.Header.Hash() {
		t.Fatalf("current hash mismatch")
	}
}

func TestPersistRejectsWrongHeight(t *testing.T) {
	bc := newTestChain(t)
	block := signedBlock(5, hash.Uint256{}, nil)
	if _, err := bc.Persist(block); err == nil {
		t.Fatal("expected height-mismatch rejection")
	}
}

func TestPersistRejectsPrevHashMismatch(t *testing.T) {
	bc := newTestChain(t)
	first := signedBlock(1, hash.Uint256{}, nil)
	if _, err := bc.Persist(first); err != nil {
		t.Fatalf("Persist first: %v", err)
	}

	bad := signedBlock(2, hash.Uint256{0xAA}, nil)
	if _, err := bc.Persist(bad); err == nil {
		t.Fatal("expected prev-hash mismatch rejection")
	}
}

func TestPersistAppliesTransactionAndRecordsLocation(t *testing.T) {
	bc := newTestChain(t)
	tx := &Transaction{Script: haltingScript(), ValidUntilBlock: 1000}
	block := signedBlock(1, hash.Uint256{}, []*Transaction{tx})

	logs, err := bc.Persist(block)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	// OnPersist + 1 tx + PostPersist.
	if len(logs) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(logs))
	}
	if logs[1].VMState != "HALT" {
		t.Fatalf("tx state = %s, want HALT", logs[1].VMState)
	}

	idx, pos, ok := bc.GetTransactionLocation(tx.Hash())
	if !ok || idx != 1 || pos != 0 {
		t.Fatalf("GetTransactionLocation = (%d, %d, %v), want (1, 0, true)", idx, pos, ok)
	}

	got, ok := bc.GetBlock(block.Header.Hash())
	if !ok {
		t.Fatal("GetBlock: not found")
	}
	if got.Header.Index != 1 || len(got.Transactions) != 1 {
		t.Fatalf("decoded block mismatch: index=%d txs=%d", got.Header.Index, len(got.Transactions))
	}
}

func TestPersistRejectsDuplicateTransactionInBlock(t *testing.T) {
	bc := newTestChain(t)
	tx := &Transaction{Script: haltingScript(), ValidUntilBlock: 1000}
	block := signedBlock(1, hash.Uint256{}, []*Transaction{tx, tx})
	if _, err := bc.Persist(block); err == nil {
		t.Fatal("expected duplicate-transaction rejection")
	}
}

func TestPersistRejectsBadMerkleRoot(t *testing.T) {
	bc := newTestChain(t)
	tx := &Transaction{Script: haltingScript(), ValidUntilBlock: 1000}
	block := signedBlock(1, hash.Uint256{}, []*Transaction{tx})
	block.Header.MerkleRoot = hash.Uint256{0x01}
	if _, err := bc.Persist(block); err == nil {
		t.Fatal("expected merkle-root mismatch rejection")
	}
}

func TestPersistBurnsFeesOnHalt(t *testing.T) {
	bc := newTestChain(t)
	account := hash.Uint160{0x01}
	seedGasBalance(t, bc, account, 1000)

	tx := feePayingTx(haltingScript(), account, 60, 40)
	block := signedBlock(1, hash.Uint256{}, []*Transaction{tx})
	if _, err := bc.Persist(block); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	got := gasBalance(t, bc, account)
	if got.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("balance after HALT = %s, want 900 (1000 - 60 - 40)", got)
	}
}

func TestPersistBurnsFeesOnFault(t *testing.T) {
	bc := newTestChain(t)
	account := hash.Uint160{0x02}
	seedGasBalance(t, bc, account, 1000)

	tx := feePayingTx(faultingScript(), account, 60, 40)
	block := signedBlock(1, hash.Uint256{}, []*Transaction{tx})
	logs, err := bc.Persist(block)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if logs[1].VMState != vm.StateFault.String() {
		t.Fatalf("tx state = %s, want %s", logs[1].VMState, vm.StateFault.String())
	}

	got := gasBalance(t, bc, account)
	if got.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("balance after FAULT = %s, want 900 (fee still charged despite FAULT)", got)
	}
}

func TestOpenRecoversHeightAcrossReopens(t *testing.T) {
	eng := store.NewMemory()
	natives := native.NewSet()
	bc, err := Open(eng, natives)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	block := signedBlock(1, hash.Uint256{}, nil)
	if _, err := bc.Persist(block); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reopened, err := Open(eng, native.NewSet())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Height() != 1 {
		t.Fatalf("reopened height = %d, want 1", reopened.Height())
	}
	if reopened.CurrentHash() != block.Header.Hash() {
		t.Fatal("reopened current hash mismatch")
	}
}
