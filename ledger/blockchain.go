package ledger

import (
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/n3node/core/errkind"
	"github.com/n3node/core/hash"
	"github.com/n3node/core/smartcontract"
	"github.com/n3node/core/smartcontract/native"
	"github.com/n3node/core/store"
	"github.com/n3node/core/vm"
	"github.com/n3node/core/wire"
)

// ApplicationLogEntry records one transaction's or trigger's execution
// outcome, the audit trail RPC's getapplicationlog surfaces.
type ApplicationLogEntry struct {
	Trigger       smartcontract.Trigger
	TxHash        hash.Uint256 // zero for OnPersist/PostPersist entries
	VMState       string
	GasConsumed   int64
	Notifications []smartcontract.Notification
	FaultMessage  string
}

// Event is published on the blockchain's event channel as each block
// lands, mirroring the committing/committed/persisted trio of the
// apply pipeline. The channel (Events) is buffered; when it is full the
// oldest event is dropped to make room.
type Event struct {
	Kind  EventKind
	Block *Block
}

type EventKind int

const (
	EventCommitting EventKind = iota
	EventCommitted
	EventBlockPersisted
)

// GasPolicy names the engine limits the apply pipeline enforces; these
// are not tunable per call so that every node applies an identical
// block identically.
const (
	maxVerificationGas = 20 * 100_000_000
	maxBlockSystemGas  = 9000 * 100_000_000
)

// Blockchain owns the apply pipeline of §4.8: height/current-hash
// bookkeeping, per-block pre-checks, the cache-over-snapshot execution
// of OnPersist/per-transaction/PostPersist, and the single atomic
// commit that makes a block's effects visible. It implements
// mempool.Verifier so the mempool can ask it to check a transaction
// against current chain state before admission.
type Blockchain struct {
	mu sync.RWMutex

	engine store.Engine
	natives *native.Set

	height      uint32
	currentHash hash.Uint256
	headers     map[hash.Uint256]*Header // accepted ahead of bodies, per header-first sync

	events chan Event
}

// Open wires a Blockchain over a persistent engine, registering the
// fixed native-contract set and recovering height/current-hash from
// LedgerContract's own bookkeeping (or genesis defaults on an empty
// store).
func Open(eng store.Engine, natives *native.Set) (*Blockchain, error) {
	bc := &Blockchain{
		engine:  eng,
		natives: natives,
		headers: make(map[hash.Uint256]*Header),
		events:  make(chan Event, 64),
	}

	snap, err := eng.NewSnapshot()
	if err != nil {
		return nil, errkind.Wrap("ledger.Open", errkind.StorageError, err)
	}
	defer snap.Release()

	probe := smartcontract.Create(smartcontract.TriggerApplication, store.NewCache(nil, snap), 0, 0, 0)
	natives.RegisterAll(probe)
	if idx, h, ok := natives.Ledger.CurrentBlock(probe); ok {
		bc.height = idx
		bc.currentHash = h
	}
	return bc, nil
}

func (bc *Blockchain) Events() <-chan Event { return bc.events }

func (bc *Blockchain) publish(ev Event) {
	select {
	case bc.events <- ev:
	default:
		<-bc.events
		bc.events <- ev
	}
}

// Height returns the index of the most recently persisted block, or 0
// before genesis.
func (bc *Blockchain) Height() uint32 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.height
}

func (bc *Blockchain) CurrentHash() hash.Uint256 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.currentHash
}

// AddHeader records a header ahead of its body, the header-first
// acceptance §4.8 and C10 rely on: a header is accepted when it is the
// next height or links to a recorded header or the current tip,
// independent of whether its transactions have arrived yet. Its witness
// is not checked here; precheck verifies it when the block is persisted.
func (bc *Blockchain) AddHeader(h *Header) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if h.Index != bc.height+1 && bc.headers[h.PrevHash] == nil && h.PrevHash != bc.currentHash {
		return errkind.New("ledger.AddHeader", errkind.BlockRejected, errkind.ReasonPrevHashMismatch)
	}
	bc.headers[h.Hash()] = h
	return nil
}

func (bc *Blockchain) Header(h hash.Uint256) (*Header, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	hdr, ok := bc.headers[h]
	return hdr, ok
}

// precheck validates a block's linkage and witness before any engine
// run is attempted, per §4.8's block pre-check list.
func (bc *Blockchain) precheck(block *Block) error {
	bc.mu.RLock()
	height, current := bc.height, bc.currentHash
	bc.mu.RUnlock()

	if block.Header.Index != height+1 {
		return errkind.New("ledger.precheck", errkind.BlockRejected, errkind.ReasonHeightMismatch)
	}
	if height > 0 && block.Header.PrevHash != current {
		return errkind.New("ledger.precheck", errkind.BlockRejected, errkind.ReasonPrevHashMismatch)
	}
	if block.ComputeMerkleRoot() != block.Header.MerkleRoot {
		return errkind.New("ledger.precheck", errkind.BlockRejected, errkind.ReasonMerkleMismatch)
	}
	if len(block.Header.Witness.VerificationScript) == 0 {
		return errkind.New("ledger.precheck", errkind.BlockRejected, errkind.ReasonWitnessFail)
	}
	if height > 0 {
		prevHeader, ok := bc.previousHeader(block.Header.PrevHash)
		if !ok {
			return errkind.New("ledger.precheck", errkind.BlockRejected, errkind.ReasonPrevHashMismatch)
		}
		if smartcontract.ScriptHash(block.Header.Witness.VerificationScript) != prevHeader.NextConsensus {
			return errkind.New("ledger.precheck", errkind.BlockRejected, errkind.ReasonWitnessFail)
		}
		ok, err := smartcontract.VerifyWitness(block.Header.Hash(), block.Header.Witness.InvocationScript, block.Header.Witness.VerificationScript)
		if err != nil || !ok {
			return errkind.New("ledger.precheck", errkind.BlockRejected, errkind.ReasonWitnessFail)
		}
	}
	var totalSystemFee int64
	seen := make(map[hash.Uint256]bool, len(block.Transactions))
	for _, tx := range block.Transactions {
		h := tx.Hash()
		if seen[h] {
			return errkind.New("ledger.precheck", errkind.BlockRejected, errkind.ReasonDuplicateInBlock)
		}
		seen[h] = true
		totalSystemFee += tx.SystemFee
	}
	if totalSystemFee > maxBlockSystemGas {
		return errkind.New("ledger.precheck", errkind.BlockRejected, errkind.ReasonPolicyViolation)
	}
	return nil
}

// previousHeader resolves prevHash's header whether it is still only
// header-indexed (header-first sync, ahead of its body) or already
// persisted, so precheck can validate a block's witness against the
// committee the previous block actually named.
func (bc *Blockchain) previousHeader(prevHash hash.Uint256) (*Header, bool) {
	if hdr, ok := bc.Header(prevHash); ok {
		return hdr, true
	}
	if block, ok := bc.GetBlock(prevHash); ok {
		return &block.Header, true
	}
	return nil, false
}

// Persist runs the full apply pipeline for block and, on success,
// commits it as the new chain tip. It mirrors the teacher's own
// applyBlock: pre-check, process every transaction, then persist —
// generalized into engine runs instead of direct map mutation, and
// made atomic via a single top-level Cache.Commit rather than a
// best-effort WAL append.
func (bc *Blockchain) Persist(block *Block) ([]ApplicationLogEntry, error) {
	if err := bc.precheck(block); err != nil {
		return nil, err
	}
	bc.publish(Event{Kind: EventCommitting, Block: block})

	snap, err := bc.engine.NewSnapshot()
	if err != nil {
		return nil, errkind.Wrap("ledger.Persist", errkind.StorageError, err)
	}
	defer snap.Release()

	root := store.NewCache(bc.engine, snap)
	logs := make([]ApplicationLogEntry, 0, len(block.Transactions)+2)

	onPersistEng := smartcontract.Create(smartcontract.TriggerOnPersist, root, 0, block.Header.Index, block.Header.Timestamp)
	bc.natives.RegisterAll(onPersistEng)
	onPersistEng.SetPrimaryAccount(primaryAccount(block))
	onPersistEng.SetPersistingFees(feeSettlements(block))
	if err := bc.natives.OnPersist(onPersistEng); err != nil {
		return nil, errkind.Wrap("ledger.Persist", errkind.StorageError, err)
	}
	logs = append(logs, ApplicationLogEntry{Trigger: smartcontract.TriggerOnPersist, VMState: "HALT"})

	raw := encodeBlock(block)
	blockHash := block.Header.Hash()

	for _, tx := range block.Transactions {
		entry, err := bc.applyTransaction(root, block, tx)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}

	postPersistEng := smartcontract.Create(smartcontract.TriggerPostPersist, root, 0, block.Header.Index, block.Header.Timestamp)
	bc.natives.RegisterAll(postPersistEng)
	postPersistEng.SetPrimaryAccount(primaryAccount(block))
	if err := bc.natives.PostPersist(postPersistEng); err != nil {
		return nil, errkind.Wrap("ledger.Persist", errkind.StorageError, err)
	}
	logs = append(logs, ApplicationLogEntry{Trigger: smartcontract.TriggerPostPersist, VMState: "HALT"})

	if err := bc.natives.Ledger.SetCurrentBlock(postPersistEng, block.Header.Index, blockHash); err != nil {
		return nil, errkind.Wrap("ledger.Persist", errkind.StorageError, err)
	}
	if err := bc.natives.Ledger.PutBlock(postPersistEng, blockHash, raw); err != nil {
		return nil, errkind.Wrap("ledger.Persist", errkind.StorageError, err)
	}
	for i, tx := range block.Transactions {
		if err := bc.natives.Ledger.PutTransaction(postPersistEng, tx.Hash(), block.Header.Index, uint32(i)); err != nil {
			return nil, errkind.Wrap("ledger.Persist", errkind.StorageError, err)
		}
	}

	if err := root.Commit(); err != nil {
		return nil, errkind.Wrap("ledger.Persist", errkind.StorageError, err)
	}

	bc.mu.Lock()
	bc.height = block.Header.Index
	bc.currentHash = blockHash
	delete(bc.headers, blockHash)
	bc.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"height": block.Header.Index,
		"hash":   blockHash.String(),
		"txs":    len(block.Transactions),
	}).Info("block persisted")

	bc.publish(Event{Kind: EventCommitted, Block: block})
	bc.publish(Event{Kind: EventBlockPersisted, Block: block})
	return logs, nil
}

// applyTransaction runs one transaction's script under a nested cache:
// committed into root on HALT, discarded on FAULT, per §4.8's
// "per-transaction nested cache" rule — one bad transaction never
// poisons the rest of the block.
func (bc *Blockchain) applyTransaction(root *store.Cache, block *Block, tx *Transaction) (ApplicationLogEntry, error) {
	txCache := root.NewChild()
	eng := smartcontract.Create(smartcontract.TriggerApplication, txCache, tx.SystemFee, block.Header.Index, block.Header.Timestamp)
	bc.natives.RegisterAll(eng)
	eng.SetPrimaryAccount(primaryAccount(block))

	signers := make([]smartcontract.Signer, len(tx.Signers))
	for i, s := range tx.Signers {
		signers[i] = smartcontract.Signer{
			Account:          s.Account,
			Scopes:           byte(s.Scopes),
			AllowedContracts: s.AllowedContracts,
			AllowedGroups:    s.AllowedGroups,
		}
	}
	witnesses := make([]smartcontract.Witness, len(tx.Witnesses))
	for i, w := range tx.Witnesses {
		witnesses[i] = smartcontract.Witness{InvocationScript: w.InvocationScript, VerificationScript: w.VerificationScript}
	}
	if err := eng.SetContainer(tx.Hash(), signers, witnesses); err != nil {
		txCache.Discard()
		return ApplicationLogEntry{}, errkind.WrapReason("ledger.applyTransaction", errkind.BlockRejected, errkind.ReasonWitnessFail, err)
	}
	for _, s := range signers {
		if !eng.CheckWitness(s.Account) {
			txCache.Discard()
			return ApplicationLogEntry{}, errkind.New("ledger.applyTransaction", errkind.BlockRejected, errkind.ReasonWitnessFail)
		}
	}

	eng.LoadScript(hash.Uint160{}, tx.Script, smartcontract.All)
	state := eng.Execute()

	entry := ApplicationLogEntry{
		Trigger:       smartcontract.TriggerApplication,
		TxHash:        tx.Hash(),
		VMState:       state.String(),
		GasConsumed:   eng.VM.GasConsumed(),
		Notifications: eng.Notifications(),
	}

	if state == vm.StateFault {
		if f := eng.VM.FaultException(); f != nil {
			entry.FaultMessage = f.Error()
		}
		txCache.Discard()
		return entry, nil
	}

	if err := txCache.Commit(); err != nil {
		return ApplicationLogEntry{}, errkind.Wrap("ledger.applyTransaction", errkind.StorageError, err)
	}
	return entry, nil
}

// VerifyTransaction implements mempool.Verifier: runs the transaction's
// script under Trigger=Verification against a throwaway cache over the
// current snapshot, rejecting anything that would FAULT or whose
// witnesses don't check out. Nothing it touches is ever committed.
func (bc *Blockchain) VerifyTransaction(tx *Transaction, currentHeight uint32) error {
	snap, err := bc.engine.NewSnapshot()
	if err != nil {
		return errkind.Wrap("ledger.VerifyTransaction", errkind.StorageError, err)
	}
	defer snap.Release()

	cache := store.NewCache(nil, snap)
	eng := smartcontract.Create(smartcontract.TriggerVerification, cache, maxVerificationGas, currentHeight, 0)
	bc.natives.RegisterAll(eng)

	signers := make([]smartcontract.Signer, len(tx.Signers))
	for i, s := range tx.Signers {
		signers[i] = smartcontract.Signer{Account: s.Account, Scopes: byte(s.Scopes), AllowedContracts: s.AllowedContracts, AllowedGroups: s.AllowedGroups}
	}
	witnesses := make([]smartcontract.Witness, len(tx.Witnesses))
	for i, w := range tx.Witnesses {
		witnesses[i] = smartcontract.Witness{InvocationScript: w.InvocationScript, VerificationScript: w.VerificationScript}
	}
	if err := eng.SetContainer(tx.Hash(), signers, witnesses); err != nil {
		return errkind.WrapReason("ledger.VerifyTransaction", errkind.InvalidTransaction, errkind.ReasonWitnessFail, err)
	}
	for _, s := range signers {
		if !eng.CheckWitness(s.Account) {
			return errkind.New("ledger.VerifyTransaction", errkind.InvalidTransaction, errkind.ReasonWitnessFail)
		}
	}

	eng.LoadScript(hash.Uint160{}, tx.Script, smartcontract.ReadOnly|smartcontract.AllowNotify)
	if state := eng.Execute(); state == vm.StateFault {
		return errkind.New("ledger.VerifyTransaction", errkind.InvalidTransaction, errkind.ReasonScriptInvalid)
	}
	return nil
}

// GetBlock and GetTransaction serve RPC/P2P inventory requests directly
// from LedgerContract's own storage, avoiding a second index.
func (bc *Blockchain) GetBlock(h hash.Uint256) (*Block, bool) {
	snap, err := bc.engine.NewSnapshot()
	if err != nil {
		return nil, false
	}
	defer snap.Release()
	eng := smartcontract.Create(smartcontract.TriggerApplication, store.NewCache(nil, snap), 0, 0, 0)
	bc.natives.RegisterAll(eng)
	raw, ok := bc.natives.Ledger.GetBlock(eng, h)
	if !ok {
		return nil, false
	}
	block := new(Block)
	if err := block.DecodeWire(wire.NewReader(raw)); err != nil {
		return nil, false
	}
	return block, true
}

func (bc *Blockchain) GetTransactionLocation(h hash.Uint256) (blockIndex, position uint32, ok bool) {
	snap, err := bc.engine.NewSnapshot()
	if err != nil {
		return 0, 0, false
	}
	defer snap.Release()
	eng := smartcontract.Create(smartcontract.TriggerApplication, store.NewCache(nil, snap), 0, 0, 0)
	bc.natives.RegisterAll(eng)
	return bc.natives.Ledger.GetTransactionLocation(eng, h)
}

func encodeBlock(b *Block) []byte {
	w := wire.NewWriter()
	b.EncodeWire(w)
	return w.Bytes()
}

// primaryAccount derives the block's proposer account from its header
// witness, the account GASToken.PostPersist credits the block reward
// to, per §4.6.
func primaryAccount(block *Block) hash.Uint160 {
	if len(block.Header.Witness.VerificationScript) == 0 {
		return hash.Uint160{}
	}
	return smartcontract.ScriptHash(block.Header.Witness.VerificationScript)
}

// feeSettlements builds one FeeSettlement per transaction naming at
// least one signer: SystemFee plus NetworkFee owed by the first signer,
// the §8 fee-conservation obligation GASToken.OnPersist settles before
// any transaction script runs, so it applies identically whether the
// transaction goes on to HALT or FAULT.
func feeSettlements(block *Block) []smartcontract.FeeSettlement {
	fees := make([]smartcontract.FeeSettlement, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		if len(tx.Signers) == 0 {
			continue
		}
		total := tx.SystemFee + tx.NetworkFee
		if total <= 0 {
			continue
		}
		fees = append(fees, smartcontract.FeeSettlement{
			Payer:  tx.Signers[0].Account,
			Amount: big.NewInt(total),
		})
	}
	return fees
}
