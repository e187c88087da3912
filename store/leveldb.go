package store

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is the persistent Engine backing long-lived nodes: an
// embedded LSM-tree ordered KV store, grounded on the actual storage
// engine neo-go uses (github.com/syndtr/goleveldb) rather than a
// hand-rolled file format.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if absent) a LevelDB engine rooted at dir.
func OpenLevelDB(dir string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if errors.Is(err, ldberrors.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (l *LevelDB) Find(prefix []byte, dir Direction) Iterator {
	it := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	return newLevelIterator(it, dir)
}

func (l *LevelDB) WriteBatch(b *Batch) error {
	batch := new(leveldb.Batch)
	for _, op := range b.Ops {
		if op.Delete {
			batch.Delete(op.Key)
			continue
		}
		batch.Put(op.Key, op.Value)
	}
	return l.db.Write(batch, nil)
}

func (l *LevelDB) NewSnapshot() (Snapshot, error) {
	snap, err := l.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return &levelSnapshot{snap: snap}, nil
}

func (l *LevelDB) Close() error { return l.db.Close() }

type levelSnapshot struct {
	snap *leveldb.Snapshot
}

func (s *levelSnapshot) Get(key []byte) ([]byte, error) {
	v, err := s.snap.Get(key, nil)
	if errors.Is(err, ldberrors.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *levelSnapshot) Find(prefix []byte, dir Direction) Iterator {
	it := s.snap.NewIterator(util.BytesPrefix(prefix), nil)
	return newLevelIterator(it, dir)
}

func (s *levelSnapshot) Release() { s.snap.Release() }

// levelIterator adapts goleveldb's bidirectional cursor iterator to the
// store.Iterator single-pass contract, including Backward iteration
// which goleveldb exposes via Last/Prev rather than a direction flag.
type levelIterator struct {
	it      iterator.Iterator
	dir     Direction
	started bool
}

func newLevelIterator(it iterator.Iterator, dir Direction) *levelIterator {
	return &levelIterator{it: it, dir: dir}
}

func (it *levelIterator) Next() bool {
	if !it.started {
		it.started = true
		if it.dir == Forward {
			return it.it.First()
		}
		return it.it.Last()
	}
	if it.dir == Forward {
		return it.it.Next()
	}
	return it.it.Prev()
}

func (it *levelIterator) Key() []byte   { return it.it.Key() }
func (it *levelIterator) Value() []byte { return it.it.Value() }
func (it *levelIterator) Release()      { it.it.Release() }
func (it *levelIterator) Error() error  { return it.it.Error() }
