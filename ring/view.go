package ring

import (
	"sync/atomic"
	"unsafe"
)

// headerView is a typed, atomic accessor over the 64-byte header at the
// front of a mapped region. It is computed from a base pointer rather
// than declared as a Go struct overlaying the mapping, per the
// offset-based-accessor approach: the header is followed by a
// num_consumers-dependent tail array and a capacity-dependent slot array,
// neither of which a fixed Go struct can express as a trailing member.
type headerView struct {
	base unsafe.Pointer
}

func (h headerView) headPtr() *uint32         { return (*uint32)(h.base) }
func (h headerView) capacityPtr() *uint32     { return (*uint32)(unsafe.Pointer(uintptr(h.base) + 4)) }
func (h headerView) elementSizePtr() *uint32  { return (*uint32)(unsafe.Pointer(uintptr(h.base) + 8)) }
func (h headerView) numConsumersPtr() *uint32 { return (*uint32)(unsafe.Pointer(uintptr(h.base) + 12)) }

// Head returns the producer's next-write position. Callers on the
// producer side read it relaxed (see Ring.Push); this accessor is also
// used by consumers and diagnostics, for whom it is an acquire load.
func (h headerView) Head() uint32 { return atomic.LoadUint32(h.headPtr()) }

// SetHead publishes the producer's next-write position with release
// semantics: it must only be called after the slot at the old head has
// been fully written.
func (h headerView) SetHead(v uint32) { atomic.StoreUint32(h.headPtr(), v) }

// Capacity returns the number of slots in the region.
func (h headerView) Capacity() uint32 { return atomic.LoadUint32(h.capacityPtr()) }

func (h headerView) setCapacity(v uint32) { atomic.StoreUint32(h.capacityPtr(), v) }

// ElementSize returns the number of bytes per slot.
func (h headerView) ElementSize() uint32 { return atomic.LoadUint32(h.elementSizePtr()) }

func (h headerView) setElementSize(v uint32) { atomic.StoreUint32(h.elementSizePtr(), v) }

// NumConsumers returns the number of consumer tail slots in the region.
func (h headerView) NumConsumers() uint32 { return atomic.LoadUint32(h.numConsumersPtr()) }

func (h headerView) setNumConsumers(v uint32) { atomic.StoreUint32(h.numConsumersPtr(), v) }

// geometry reads back the geometry currently stored in the header.
func (h headerView) geometry() Geometry {
	return Geometry{
		Capacity:     h.Capacity(),
		ElementSize:  h.ElementSize(),
		NumConsumers: h.NumConsumers(),
	}
}

// tailView is a typed, atomic accessor over one consumer's 64-byte,
// cache-line-isolated tail entry.
type tailView struct {
	base unsafe.Pointer
}

func (t tailView) tailPtr() *uint32 { return (*uint32)(t.base) }

// Tail returns this consumer's next-read position.
func (t tailView) Tail() uint32 { return atomic.LoadUint32(t.tailPtr()) }

// SetTail publishes this consumer's next-read position with release
// semantics: it must only be called after the slot at the old tail has
// been fully read.
func (t tailView) SetTail(v uint32) { atomic.StoreUint32(t.tailPtr(), v) }

// tailView for consumer i, computed from the region base and geometry.
func tailAt(base unsafe.Pointer, geo Geometry, i uint32) tailView {
	off := geo.tailsOffset() + uint64(i)*uint64(TailEntrySize)
	return tailView{base: unsafe.Pointer(uintptr(base) + uintptr(off))}
}

// slotAt returns a byte slice view of slot idx, computed from the region
// base and geometry.
func slotAt(base unsafe.Pointer, geo Geometry, idx uint32) []byte {
	off := geo.slotsOffset() + uint64(idx)*uint64(geo.ElementSize)
	ptr := unsafe.Pointer(uintptr(base) + uintptr(off))
	return unsafe.Slice((*byte)(ptr), geo.ElementSize)
}
