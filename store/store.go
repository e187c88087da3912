// Package store implements the ordered key-value layer (§4.1): a
// persistent engine, point-in-time snapshots, and a transactional cache
// that composes over either. Keys are compared lexicographically as raw
// bytes; all persisted state — block/tx indices, native-contract
// storage, everything under a contract-id prefix — goes through this
// package and nothing else touches disk directly.
package store

import (
	"errors"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("store: key not found")

// Direction controls iteration order for Find.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Reader is the read-only surface shared by Snapshot, Cache and Engine.
type Reader interface {
	// Get returns ErrNotFound if the key is absent.
	Get(key []byte) ([]byte, error)
	// Find returns a lazy, single-pass iterator over keys sharing
	// prefix, in the given direction, reflecting state at call time.
	Find(prefix []byte, dir Direction) Iterator
}

// Writer is the mutating surface; Cache is the only implementation most
// callers use directly (the Engine is only written to via WriteBatch so
// that top-level commits stay atomic).
type Writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Iterator is a lazy, single-pass, finite sequence of (key, value)
// pairs. Call Next before the first Key/Value access; Release when
// done (or let it exhaust naturally).
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Snapshot is an immutable, point-in-time view of an Engine.
type Snapshot interface {
	Reader
	Release()
}

// BatchOp is a single mutation queued in a Batch.
type BatchOp struct {
	Key     []byte
	Value   []byte
	Delete  bool
}

// Batch collects mutations for an atomic WriteBatch call.
type Batch struct {
	Ops []BatchOp
}

func (b *Batch) Put(key, value []byte) {
	b.Ops = append(b.Ops, BatchOp{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
}

func (b *Batch) Delete(key []byte) {
	b.Ops = append(b.Ops, BatchOp{Key: append([]byte(nil), key...), Delete: true})
}

// Engine is the ground-truth ordered KV store backing the ledger.
// Implementations: Memory (tests, ephemeral nodes) and LevelDB
// (embedded LSM-tree, persistent nodes).
type Engine interface {
	Reader
	// WriteBatch commits a batch of mutations atomically: either all
	// are visible afterward or none are.
	WriteBatch(b *Batch) error
	// NewSnapshot returns a point-in-time immutable view.
	NewSnapshot() (Snapshot, error)
	Close() error
}
