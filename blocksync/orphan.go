package blocksync

import "github.com/n3node/core/ledger"

// orphanBuffer holds blocks that arrived ahead of local height, keyed
// by index, capped in count with oldest-first eviction — exactly
// §4.10's "orphans, capped in count (oldest-evicted)" rule.
type orphanBuffer struct {
	cap    int
	blocks map[uint32]*ledger.Block
	order  []uint32
}

func newOrphanBuffer(capacity int) *orphanBuffer {
	if capacity <= 0 {
		capacity = 256
	}
	return &orphanBuffer{cap: capacity, blocks: make(map[uint32]*ledger.Block)}
}

// add buffers block, evicting the oldest entry if the buffer is full.
// A block already present at that index is left untouched.
func (o *orphanBuffer) add(block *ledger.Block) {
	idx := block.Header.Index
	if _, exists := o.blocks[idx]; exists {
		return
	}
	if len(o.blocks) >= o.cap {
		oldest := o.order[0]
		o.order = o.order[1:]
		delete(o.blocks, oldest)
	}
	o.blocks[idx] = block
	o.order = append(o.order, idx)
}

// take removes and returns the orphan at idx, if buffered — the scan
// step C10 runs after every successful apply.
func (o *orphanBuffer) take(idx uint32) (*ledger.Block, bool) {
	block, ok := o.blocks[idx]
	if !ok {
		return nil, false
	}
	delete(o.blocks, idx)
	for i, v := range o.order {
		if v == idx {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	return block, true
}

func (o *orphanBuffer) has(idx uint32) bool {
	_, ok := o.blocks[idx]
	return ok
}

func (o *orphanBuffer) len() int { return len(o.blocks) }
