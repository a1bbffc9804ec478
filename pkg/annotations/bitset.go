package annotations

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// BitSet is a sparse set of arena indices backed by a Roaring bitmap.
// Bits are only ever added.
type BitSet struct {
	bitmap *roaring.Bitmap
	mu     sync.RWMutex
}

// NewBitSet creates an empty bitset.
func NewBitSet() *BitSet {
	return &BitSet{bitmap: roaring.New()}
}

// Set adds index and reports whether it was absent before.
func (b *BitSet) Set(index uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bitmap.CheckedAdd(index)
}

// IsSet checks whether index is in the set.
func (b *BitSet) IsSet(index uint32) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bitmap.Contains(index)
}

// Count returns the number of set indices.
func (b *BitSet) Count() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bitmap.GetCardinality()
}

// SetBatch adds multiple indices.
func (b *BitSet) SetBatch(indices []uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bitmap.AddMany(indices)
}

// Indices returns the set indices in ascending order.
func (b *BitSet) Indices() []uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bitmap.ToArray()
}

// Equal reports whether both sets hold the same indices.
func (b *BitSet) Equal(other *BitSet) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	return b.bitmap.Equals(other.bitmap)
}
