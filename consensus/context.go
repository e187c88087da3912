package consensus

import (
	"github.com/n3node/core/hash"
	"github.com/n3node/core/ledger"
)

// Phase tracks where this validator is within the current (height,
// view), the state §4.11's "Consensus state" data model calls out.
type Phase int

const (
	PhaseInitial Phase = iota
	PhaseRequestSent
	PhaseRequestReceived
	PhaseCommitSent
	PhaseViewChanging
)

// viewContext holds everything collected for one (blockIndex, view)
// pair. A ChangeView discards this and starts a fresh one at the next
// view; height advancing to a new block always starts a fresh one too.
// The one thing that survives a view change within the same height is
// the node's own Commit, tracked separately on Service per the safety
// invariant (§4.11: a validator that Commits in view v never Commits a
// different block at height h in a later view).
type viewContext struct {
	blockIndex   uint32
	viewNumber   byte
	primaryIndex byte
	phase        Phase

	prepareRequest     *Payload
	prepareRequestHash hash.Uint256
	haveRequest        bool

	transactionHashes []hash.Uint256
	receivedTx        map[hash.Uint256]*ledger.Transaction

	prepareResponses map[byte]*Payload
	commits          map[byte]*Payload
	changeViews      map[byte]*Payload

	timestamp uint64
	nonce     uint64

	// assembledBlock is the deterministic candidate every honest
	// participant reconstructs from the same PrepareRequest; it is what
	// gets signed (Commit) and, once M signatures are in hand, what
	// Persist receives with its witness attached.
	assembledBlock *ledger.Block
}

func newViewContext(blockIndex uint32, view byte, primaryIndex byte) *viewContext {
	return &viewContext{
		blockIndex:       blockIndex,
		viewNumber:       view,
		primaryIndex:     primaryIndex,
		phase:            PhaseInitial,
		receivedTx:       make(map[hash.Uint256]*ledger.Transaction),
		prepareResponses: make(map[byte]*Payload),
		commits:          make(map[byte]*Payload),
		changeViews:      make(map[byte]*Payload),
	}
}

// haveAllTransactions reports whether every hash the PrepareRequest
// named has arrived, either from the primary's own pool selection or
// from a mempool lookup; there is no per-hash fetch.
func (v *viewContext) haveAllTransactions() bool {
	if !v.haveRequest {
		return false
	}
	for _, h := range v.transactionHashes {
		if _, ok := v.receivedTx[h]; !ok {
			return false
		}
	}
	return true
}

func (v *viewContext) orderedTransactions() []*ledger.Transaction {
	out := make([]*ledger.Transaction, len(v.transactionHashes))
	for i, h := range v.transactionHashes {
		out[i] = v.receivedTx[h]
	}
	return out
}
