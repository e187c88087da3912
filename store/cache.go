package store

import (
	"bytes"
	"sort"
	"sync"
)

// EntryState classifies how a cache-tracked key relates to its parent,
// per §4.1.
type EntryState int

const (
	Unchanged EntryState = iota
	Added
	Changed
	Deleted
)

type entry struct {
	value []byte
	state EntryState
}

// Cache wraps a Reader (a Snapshot, an Engine's snapshot, or another
// Cache) and tracks every touched key's diff state. Reads consult the
// cache first, then the parent; writes only ever mutate the cache.
// Caches compose — NewChild layers a fresh Cache over this one — so
// execution can nest a cache per transaction and commit it into the
// parent on HALT or drop it on FAULT.
type Cache struct {
	mu      sync.Mutex
	parent  Reader
	eng     Engine // set only on the root cache, used by Commit to flush atomically
	entries map[string]*entry
}

// NewCache creates a root cache over a snapshot, flushing to eng on Commit.
func NewCache(eng Engine, snap Reader) *Cache {
	return &Cache{parent: snap, eng: eng, entries: make(map[string]*entry)}
}

// NewChild layers a nested cache over c; its Commit merges back into c
// rather than touching the engine.
func (c *Cache) NewChild() *Cache {
	return &Cache{parent: c, entries: make(map[string]*entry)}
}

func (c *Cache) Get(key []byte) ([]byte, error) {
	c.mu.Lock()
	if e, ok := c.entries[string(key)]; ok {
		defer c.mu.Unlock()
		if e.state == Deleted {
			return nil, ErrNotFound
		}
		out := make([]byte, len(e.value))
		copy(out, e.value)
		return out, nil
	}
	c.mu.Unlock()
	return c.parent.Get(key)
}

func (c *Cache) existsUpstream(key string) bool {
	_, err := c.parent.Get([]byte(key))
	return err == nil
}

func (c *Cache) Put(key, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := string(key)
	v := make([]byte, len(value))
	copy(v, value)

	state := Changed
	if e, ok := c.entries[k]; ok {
		if e.state == Added {
			state = Added
		}
	} else if !c.existsUpstream(k) {
		state = Added
	}
	c.entries[k] = &entry{value: v, state: state}
	return nil
}

func (c *Cache) Delete(key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := string(key)
	if e, ok := c.entries[k]; ok && e.state == Added {
		delete(c.entries, k)
		return nil
	}
	if c.existsUpstream(k) {
		c.entries[k] = &entry{state: Deleted}
	} else {
		delete(c.entries, k)
	}
	return nil
}

// Discard drops every tracked mutation without touching the parent —
// the FAULT / cancellation path.
func (c *Cache) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Commit atomically applies the tracked diff to the parent: into the
// engine (via a single WriteBatch) for a root cache, or merged directly
// into the parent cache's own entries for a nested one.
func (c *Cache) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eng != nil {
		batch := new(Batch)
		for k, e := range c.entries {
			if e.state == Deleted {
				batch.Delete([]byte(k))
			} else {
				batch.Put([]byte(k), e.value)
			}
		}
		if err := c.eng.WriteBatch(batch); err != nil {
			return err
		}
		c.entries = make(map[string]*entry)
		return nil
	}

	parent, ok := c.parent.(*Cache)
	if !ok {
		return nil // root-less, nothing to merge into
	}
	for k, e := range c.entries {
		if e.state == Deleted {
			if err := parent.Delete([]byte(k)); err != nil {
				return err
			}
			continue
		}
		if err := parent.Put([]byte(k), e.value); err != nil {
			return err
		}
	}
	c.entries = make(map[string]*entry)
	return nil
}

// Diff returns the current tracked entries, primarily for tests and for
// the blockchain apply pipeline's application-log bookkeeping.
func (c *Cache) Diff() map[string]EntryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]EntryState, len(c.entries))
	for k, e := range c.entries {
		out[k] = e.state
	}
	return out
}

// Find returns a lazy iterator merging the cache overlay (as it stood
// at call time) with the parent's Find, preferring overlay values and
// skipping keys marked Deleted.
func (c *Cache) Find(prefix []byte, dir Direction) Iterator {
	c.mu.Lock()
	overlay := make(map[string]*entry, len(c.entries))
	for k, e := range c.entries {
		if bytes.HasPrefix([]byte(k), prefix) {
			overlay[k] = e
		}
	}
	c.mu.Unlock()

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	if dir == Forward {
		sort.Strings(keys)
	} else {
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	}

	return &cacheIterator{
		overlay:    overlay,
		overlayKey: keys,
		parentIt:   c.parent.Find(prefix, dir),
		dir:        dir,
		idx:        -1,
	}
}

// cacheIterator performs a merge-join between the sorted overlay keys
// and the parent's own ordered iterator, letting the overlay shadow the
// parent on key collisions and skipping Deleted entries entirely.
type cacheIterator struct {
	overlay    map[string]*entry
	overlayKey []string
	idx        int

	parentIt    Iterator
	parentValid bool
	parentDone  bool
	dir         Direction

	curKey, curVal []byte
}

func less(dir Direction, a, b string) bool {
	if dir == Forward {
		return a < b
	}
	return a > b
}

func (it *cacheIterator) advanceParent() {
	if it.parentDone {
		it.parentValid = false
		return
	}
	it.parentValid = it.parentIt.Next()
	if !it.parentValid {
		it.parentDone = true
	}
}

func (it *cacheIterator) Next() bool {
	if !it.parentValid && !it.parentDone {
		it.advanceParent()
	}
	for {
		// Advance the overlay cursor candidate.
		var overlayKey string
		haveOverlay := it.idx+1 < len(it.overlayKey)
		if haveOverlay {
			overlayKey = it.overlayKey[it.idx+1]
		}

		switch {
		case !haveOverlay && !it.parentValid:
			return false
		case !haveOverlay:
			// Only parent remains.
			it.curKey = append([]byte(nil), it.parentIt.Key()...)
			it.curVal = append([]byte(nil), it.parentIt.Value()...)
			it.advanceParent()
			return true
		case !it.parentValid || less(it.dir, overlayKey, string(it.parentIt.Key())):
			it.idx++
			e := it.overlay[overlayKey]
			if e.state == Deleted {
				continue
			}
			it.curKey = []byte(overlayKey)
			it.curVal = append([]byte(nil), e.value...)
			return true
		case overlayKey == string(it.parentIt.Key()):
			// Overlay shadows parent; consume both, skip if deleted.
			it.idx++
			e := it.overlay[overlayKey]
			it.advanceParent()
			if e.state == Deleted {
				continue
			}
			it.curKey = []byte(overlayKey)
			it.curVal = append([]byte(nil), e.value...)
			return true
		default:
			// Parent key comes first.
			it.curKey = append([]byte(nil), it.parentIt.Key()...)
			it.curVal = append([]byte(nil), it.parentIt.Value()...)
			it.advanceParent()
			return true
		}
	}
}

func (it *cacheIterator) Key() []byte   { return it.curKey }
func (it *cacheIterator) Value() []byte { return it.curVal }
func (it *cacheIterator) Release()      { it.parentIt.Release() }
func (it *cacheIterator) Error() error  { return it.parentIt.Error() }
