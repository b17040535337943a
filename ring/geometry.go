package ring

import "fmt"

// cacheLine is the assumed cache-line size that the header and every
// consumer tail entry are padded to, so independent consumers never
// share a cache line with each other or with the producer's header.
const cacheLine = 64

// HeaderSize is the fixed, cache-line-padded size in bytes of the region
// header.
const HeaderSize = cacheLine

// TailEntrySize is the fixed, cache-line-padded size in bytes of one
// consumer's tail entry.
const TailEntrySize = cacheLine

// Geometry is the tuple that identifies a region's shape: slot capacity,
// bytes per slot, and consumer count. Two regions are compatible iff
// their geometries and derived total sizes are equal.
type Geometry struct {
	Capacity     uint32
	ElementSize  uint32
	NumConsumers uint32
}

// TotalSize returns the number of bytes a region with this geometry
// occupies: the header, the cache-line-padded tail array, and the slot
// array, consistently using TailEntrySize for every tail entry (not the
// bare size of the atomic counter it wraps).
func (g Geometry) TotalSize() uint64 {
	return uint64(HeaderSize) +
		uint64(g.NumConsumers)*uint64(TailEntrySize) +
		uint64(g.Capacity)*uint64(g.ElementSize)
}

// tailsOffset is the byte offset of the consumer tail array from the
// start of the region.
func (g Geometry) tailsOffset() uint64 {
	return uint64(HeaderSize)
}

// slotsOffset is the byte offset of the slot array from the start of the
// region.
func (g Geometry) slotsOffset() uint64 {
	return g.tailsOffset() + uint64(g.NumConsumers)*uint64(TailEntrySize)
}

func (g Geometry) validate() error {
	if g.Capacity < 2 {
		return fmt.Errorf("capacity must be >= 2, got %d", g.Capacity)
	}
	if g.ElementSize < 1 {
		return fmt.Errorf("element_size must be >= 1, got %d", g.ElementSize)
	}
	if g.NumConsumers < 1 {
		return fmt.Errorf("num_consumers must be >= 1, got %d", g.NumConsumers)
	}
	return nil
}

// equal reports whether two geometries describe the same on-region
// layout, including the size that layout derives to.
func (g Geometry) equal(other Geometry) bool {
	return g.Capacity == other.Capacity &&
		g.ElementSize == other.ElementSize &&
		g.NumConsumers == other.NumConsumers &&
		g.TotalSize() == other.TotalSize()
}
