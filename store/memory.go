package store

import (
	"bytes"
	"sort"
	"sync"
)

// Memory is a pure in-memory Engine, used for tests and ephemeral nodes
// (§4.1). Each NewSnapshot call copies the current key-to-value map
// (the value slices are shared and never mutated in place), so later
// writes to the engine never change a snapshot already handed out.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory constructs an empty in-memory engine.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Find(prefix []byte, dir Direction) Iterator {
	snap := m.snapshotData()
	return newMemIterator(snap, prefix, dir)
}

func (m *Memory) WriteBatch(b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range b.Ops {
		if op.Delete {
			delete(m.data, string(op.Key))
			continue
		}
		v := make([]byte, len(op.Value))
		copy(v, op.Value)
		m.data[string(op.Key)] = v
	}
	return nil
}

func (m *Memory) NewSnapshot() (Snapshot, error) {
	return &memSnapshot{data: m.snapshotData()}, nil
}

func (m *Memory) Close() error { return nil }

// snapshotData takes a deep-enough copy (values are copy-on-write by
// convention: callers never mutate slices returned from Get/iteration).
func (m *Memory) snapshotData() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

type memSnapshot struct {
	data map[string][]byte
}

func (s *memSnapshot) Get(key []byte) ([]byte, error) {
	v, ok := s.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *memSnapshot) Find(prefix []byte, dir Direction) Iterator {
	return newMemIterator(s.data, prefix, dir)
}

func (s *memSnapshot) Release() {}

type memIterator struct {
	keys []string
	data map[string][]byte
	idx  int
}

func newMemIterator(data map[string][]byte, prefix []byte, dir Direction) *memIterator {
	keys := make([]string, 0, len(data))
	for k := range data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	if dir == Forward {
		sort.Strings(keys)
	} else {
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	}
	return &memIterator{keys: keys, data: data, idx: -1}
}

func (it *memIterator) Next() bool {
	it.idx++
	return it.idx < len(it.keys)
}

func (it *memIterator) Key() []byte {
	if it.idx < 0 || it.idx >= len(it.keys) {
		return nil
	}
	return []byte(it.keys[it.idx])
}

func (it *memIterator) Value() []byte {
	if it.idx < 0 || it.idx >= len(it.keys) {
		return nil
	}
	return it.data[it.keys[it.idx]]
}

func (it *memIterator) Release()     {}
func (it *memIterator) Error() error { return nil }
