package store

import (
	"bytes"
	"testing"
)

func TestMemoryGetPutDelete(t *testing.T) {
	m := NewMemory()
	b := new(Batch)
	b.Put([]byte("a"), []byte("1"))
	if err := m.WriteBatch(b); err != nil {
		t.Fatal(err)
	}
	v, err := m.Get([]byte("a"))
	if err != nil || !bytes.Equal(v, []byte("1")) {
		t.Fatalf("got %q, %v", v, err)
	}

	b2 := new(Batch)
	b2.Delete([]byte("a"))
	if err := m.WriteBatch(b2); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get([]byte("a")); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	m := NewMemory()
	b := new(Batch)
	b.Put([]byte("k"), []byte("v1"))
	_ = m.WriteBatch(b)

	snap, _ := m.NewSnapshot()
	defer snap.Release()

	b2 := new(Batch)
	b2.Put([]byte("k"), []byte("v2"))
	_ = m.WriteBatch(b2)

	v, err := snap.Get([]byte("k"))
	if err != nil || !bytes.Equal(v, []byte("v1")) {
		t.Fatalf("snapshot should see pre-mutation value, got %q, %v", v, err)
	}

	live, _ := m.Get([]byte("k"))
	if !bytes.Equal(live, []byte("v2")) {
		t.Fatalf("live engine should see the new value, got %q", live)
	}
}

func TestCacheReadThroughAndOverlay(t *testing.T) {
	m := NewMemory()
	b := new(Batch)
	b.Put([]byte("x"), []byte("base"))
	_ = m.WriteBatch(b)

	snap, _ := m.NewSnapshot()
	defer snap.Release()

	c := NewCache(m, snap)
	if v, err := c.Get([]byte("x")); err != nil || !bytes.Equal(v, []byte("base")) {
		t.Fatalf("expected read-through, got %q, %v", v, err)
	}

	_ = c.Put([]byte("x"), []byte("overlay"))
	if v, _ := c.Get([]byte("x")); !bytes.Equal(v, []byte("overlay")) {
		t.Fatalf("expected overlay value, got %q", v)
	}

	// Underlying snapshot must be unaffected until Commit.
	if v, _ := snap.Get([]byte("x")); !bytes.Equal(v, []byte("base")) {
		t.Fatalf("snapshot mutated before commit: %q", v)
	}

	if err := c.Commit(); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.Get([]byte("x")); !bytes.Equal(v, []byte("overlay")) {
		t.Fatalf("expected engine to see committed value, got %q", v)
	}
}

func TestNestedCacheDiscardDoesNotAffectParent(t *testing.T) {
	m := NewMemory()
	snap, _ := m.NewSnapshot()
	defer snap.Release()

	root := NewCache(m, snap)
	_ = root.Put([]byte("a"), []byte("root-value"))

	child := root.NewChild()
	_ = child.Put([]byte("a"), []byte("child-value"))
	_ = child.Put([]byte("b"), []byte("child-only"))
	child.Discard()

	if v, _ := root.Get([]byte("a")); !bytes.Equal(v, []byte("root-value")) {
		t.Fatalf("discarding child must not affect parent: got %q", v)
	}
	if _, err := root.Get([]byte("b")); err != ErrNotFound {
		t.Fatal("discarded child's key must not leak into parent")
	}
}

func TestNestedCacheCommitMergesIntoParent(t *testing.T) {
	m := NewMemory()
	snap, _ := m.NewSnapshot()
	defer snap.Release()

	root := NewCache(m, snap)
	child := root.NewChild()
	_ = child.Put([]byte("a"), []byte("from-child"))
	if err := child.Commit(); err != nil {
		t.Fatal(err)
	}

	if v, _ := root.Get([]byte("a")); !bytes.Equal(v, []byte("from-child")) {
		t.Fatalf("expected child commit visible in parent, got %q", v)
	}
	// Not yet visible in the engine until root commits.
	if _, err := m.Get([]byte("a")); err != ErrNotFound {
		t.Fatal("root engine must not see child's writes before root.Commit")
	}
}

func TestFindReflectsOverlayAndIsStableAfterCall(t *testing.T) {
	m := NewMemory()
	b := new(Batch)
	b.Put([]byte("p/1"), []byte("one"))
	b.Put([]byte("p/3"), []byte("three"))
	_ = m.WriteBatch(b)

	snap, _ := m.NewSnapshot()
	defer snap.Release()
	c := NewCache(m, snap)
	_ = c.Put([]byte("p/2"), []byte("two"))
	_ = c.Delete([]byte("p/3"))

	it := c.Find([]byte("p/"), Forward)
	// Mutate after Find was called; must not affect the already-created iterator.
	_ = c.Put([]byte("p/4"), []byte("four"))

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	want := []string{"p/1", "p/2"}
	if len(keys) != len(want) {
		t.Fatalf("got keys %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("got keys %v, want %v", keys, want)
		}
	}
}
