// Package mempool implements the bounded, fee-ordered pending-transaction
// set of §4.7: a mutex-guarded map plus an ordered index, mirroring the
// teacher's own TxPool (core/txpool_addtx.go, core/txpool_snapshot.go) —
// a single lock held only for the duration of one operation, callers
// never see the internal slice directly.
package mempool

import (
	"sort"
	"sync"
	"time"

	"github.com/n3node/core/hash"
	"github.com/n3node/core/ledger"
)

// AddResult is the outcome of a Mempool.TryAdd call, per §4.7.
type AddResult int

const (
	Added AddResult = iota
	AlreadyExists
	InvalidTransaction
	Expired
	PoolFull
	InsufficientFee
)

func (r AddResult) String() string {
	switch r {
	case Added:
		return "Added"
	case AlreadyExists:
		return "AlreadyExists"
	case InvalidTransaction:
		return "InvalidTransaction"
	case Expired:
		return "Expired"
	case PoolFull:
		return "PoolFull"
	case InsufficientFee:
		return "InsufficientFee"
	default:
		return "Unknown"
	}
}

// RemovalReason explains why a transaction left the pool (§4.7).
type RemovalReason int

const (
	ReasonExpired RemovalReason = iota
	ReasonIncludedInBlock
	ReasonPolicyFail
	ReasonCapacityExceeded
	ReasonInvalid
)

// Event is emitted on TransactionAdded/TransactionRemoved (§4.7); callers
// subscribe via Mempool.Events(), a buffered channel.
type Event struct {
	Added   bool
	Removed bool
	Tx      *ledger.Transaction
	Reason  RemovalReason
}

// entry is one pool member: the transaction plus its ordering key and
// arrival time (§3 "Mempool entry").
type entry struct {
	tx        *ledger.Transaction
	feePerByte int64
	arrived   time.Time
}

// Verifier validates a transaction against current chain state before
// it is admitted; ledger.Blockchain supplies the real implementation
// (witness checks and a run of the transaction's script in the
// application engine under Trigger=Verification) so mempool itself stays free of smartcontract
// and store dependencies.
type Verifier interface {
	VerifyTransaction(tx *ledger.Transaction, currentHeight uint32) error
}

// Mempool is the bounded pending-transaction set described in §4.7.
type Mempool struct {
	mu       sync.RWMutex
	capacity int
	verifier Verifier
	byHash   map[hash.Uint256]*entry

	events chan Event
}

// New builds an empty pool with the given capacity; verifier may be nil
// for tests that only exercise ordering/eviction.
func New(capacity int, verifier Verifier) *Mempool {
	return &Mempool{
		capacity: capacity,
		verifier: verifier,
		byHash:   make(map[hash.Uint256]*entry),
		events:   make(chan Event, 256),
	}
}

// Events returns the channel Added/Removed notifications are published
// on; a full channel drops the oldest-unread notification rather than
// blocking TryAdd, since it is a diagnostic stream, not the source of
// truth for pool membership.
func (m *Mempool) Events() <-chan Event { return m.events }

func (m *Mempool) publish(ev Event) {
	select {
	case m.events <- ev:
	default:
		<-m.events
		m.events <- ev
	}
}

// ordered returns the pool's entries sorted by (fee-per-byte desc,
// arrival asc), the tie-break and eviction order fixed by §3/§4.7.
// Callers must hold at least a read lock.
func (m *Mempool) ordered() []*entry {
	out := make([]*entry, 0, len(m.byHash))
	for _, e := range m.byHash {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].feePerByte != out[j].feePerByte {
			return out[i].feePerByte > out[j].feePerByte
		}
		return out[i].arrived.Before(out[j].arrived)
	})
	return out
}

func (m *Mempool) lowest() *entry {
	ordered := m.ordered()
	if len(ordered) == 0 {
		return nil
	}
	return ordered[len(ordered)-1]
}

// TryAdd attempts to admit tx at currentHeight, per §4.7's full decision
// table: existence/expiry/verifier rejection, then capacity-based
// eviction or rejection by comparative fee-per-byte.
func (m *Mempool) TryAdd(tx *ledger.Transaction, currentHeight uint32) AddResult {
	h := tx.Hash()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byHash[h]; exists {
		return AlreadyExists
	}
	if tx.ValidUntilBlock <= currentHeight {
		return Expired
	}
	if m.verifier != nil {
		if err := m.verifier.VerifyTransaction(tx, currentHeight); err != nil {
			return InvalidTransaction
		}
	}

	e := &entry{tx: tx, feePerByte: tx.FeePerByte(), arrived: time.Now()}

	if len(m.byHash) >= m.capacity {
		low := m.lowest()
		if low == nil || e.feePerByte <= low.feePerByte {
			return InsufficientFee
		}
		delete(m.byHash, low.tx.Hash())
		m.publish(Event{Removed: true, Tx: low.tx, Reason: ReasonCapacityExceeded})
	}

	m.byHash[h] = e
	m.publish(Event{Added: true, Tx: tx})
	return Added
}

// Remove drops hash with reason, a no-op if absent (block apply and
// re-verification call this unconditionally).
func (m *Mempool) Remove(h hash.Uint256, reason RemovalReason) {
	m.mu.Lock()
	e, ok := m.byHash[h]
	if ok {
		delete(m.byHash, h)
	}
	m.mu.Unlock()
	if ok {
		m.publish(Event{Removed: true, Tx: e.tx, Reason: reason})
	}
}

func (m *Mempool) Contains(h hash.Uint256) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byHash[h]
	return ok
}

func (m *Mempool) Get(h hash.Uint256) (*ledger.Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byHash[h]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

func (m *Mempool) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byHash)
}

// GetSorted returns up to max transactions in proposal order (§4.7), a
// snapshot consistent with a single point in time per §5's ordering
// guarantee — concurrent TryAdd/Remove calls are not reflected in an
// already-returned slice.
func (m *Mempool) GetSorted(max int) []*ledger.Transaction {
	m.mu.RLock()
	ordered := m.ordered()
	m.mu.RUnlock()

	if max > 0 && len(ordered) > max {
		ordered = ordered[:max]
	}
	out := make([]*ledger.Transaction, len(ordered))
	for i, e := range ordered {
		out[i] = e.tx
	}
	return out
}

// ReVerifyAfterBlock drops every transaction the persisted block
// included and every transaction whose valid-until-block has now
// passed, per §4.7.
func (m *Mempool) ReVerifyAfterBlock(persisted *ledger.Block) {
	included := make(map[hash.Uint256]bool, len(persisted.Transactions))
	for _, tx := range persisted.Transactions {
		included[tx.Hash()] = true
	}
	height := persisted.Header.Index

	m.mu.Lock()
	var toRemove []*entry
	for h, e := range m.byHash {
		switch {
		case included[h]:
			toRemove = append(toRemove, e)
			delete(m.byHash, h)
		case e.tx.ValidUntilBlock <= height:
			toRemove = append(toRemove, e)
			delete(m.byHash, h)
		}
	}
	m.mu.Unlock()

	for _, e := range toRemove {
		reason := ReasonExpired
		if included[e.tx.Hash()] {
			reason = ReasonIncludedInBlock
		}
		m.publish(Event{Removed: true, Tx: e.tx, Reason: reason})
	}
}
