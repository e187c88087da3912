package p2p

import (
	"math"

	"github.com/twmb/murmur3"
)

// BloomFilter implements the FilterLoad/FilterAdd/FilterClear trio of
// §4.9 ("Filtering"): an SPV-style peer narrows the transactions it is
// sent to ones matching elements it has loaded, without revealing which
// elements those are beyond what the false-positive rate leaks.
// Wired to github.com/twmb/murmur3, the hash family Bitcoin-derived
// bloom filters (and neo-go's own) use for this exact purpose.
type BloomFilter struct {
	bits    []byte
	hashFns uint32
	tweak   uint32
}

// NewBloomFilter sizes a filter for n expected elements at false
// positive rate p, using the standard bloom-filter parameter formulas.
func NewBloomFilter(n int, p float64, tweak uint32) *BloomFilter {
	if n <= 0 {
		n = 1
	}
	m := int(math.Ceil(-1 * float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m <= 0 {
		m = 8
	}
	k := uint32(math.Round(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 50 {
		k = 50
	}
	return &BloomFilter{
		bits:    make([]byte, (m+7)/8),
		hashFns: k,
		tweak:   tweak,
	}
}

func (f *BloomFilter) hash(seed uint32, data []byte) uint32 {
	return murmur3.SeedSum32(seed, data) % uint32(len(f.bits)*8)
}

// Add records data as a member, per FilterAdd.
func (f *BloomFilter) Add(data []byte) {
	for i := uint32(0); i < f.hashFns; i++ {
		seed := i*0xFBA4C795 + f.tweak
		bit := f.hash(seed, data)
		f.bits[bit/8] |= 1 << (bit % 8)
	}
}

// Contains reports whether data may be a member (false positives are
// possible by design; false negatives are not).
func (f *BloomFilter) Contains(data []byte) bool {
	for i := uint32(0); i < f.hashFns; i++ {
		seed := i*0xFBA4C795 + f.tweak
		bit := f.hash(seed, data)
		if f.bits[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}

// Clear resets the filter to empty, per FilterClear.
func (f *BloomFilter) Clear() {
	for i := range f.bits {
		f.bits[i] = 0
	}
}
