// Package ring implements the fixed-capacity, single-producer/
// multi-consumer lock-free broadcast ring buffer: the shared-memory
// layout (header, per-consumer tail array, slot array), the wait-free
// push/pop algorithm, and the create-or-attach rendezvous protocol that
// lets independent processes map the same named region safely.
package ring

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/ismaelliang/ring-buffer/internal/shmseg"
	"github.com/ismaelliang/ring-buffer/shmerr"
)

// Ring is a handle on a mapped region. Each process that calls
// CreateOrAttach gets its own Ring; all of them observe the same
// underlying memory.
type Ring struct {
	region  *shmseg.Region
	name    string
	geo     Geometry
	header  headerView
	base    unsafe.Pointer
	creator bool
}

func newRing(region *shmseg.Region, name string, geo Geometry, creator bool) *Ring {
	base := unsafe.Pointer(&region.Mem[0])
	return &Ring{
		region:  region,
		name:    name,
		geo:     geo,
		header:  headerView{base: base},
		base:    base,
		creator: creator,
	}
}

// CreateOrAttach implements the rendezvous protocol of spec §4.3: it
// creates a fresh region, attaches to a compatible existing one, or
// replaces an incompatible one, according to forceRecreate/noCreate.
func CreateOrAttach(name string, geo Geometry, forceRecreate, noCreate bool) (*Ring, error) {
	if forceRecreate && noCreate {
		return nil, fmt.Errorf("force_recreate and no_create are both set: %w", shmerr.ErrInvalidArgument)
	}
	if err := geo.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shmerr.ErrInvalidArgument, err)
	}

	if noCreate {
		return attachNoCreate(name, geo)
	}

	if forceRecreate {
		if err := shmseg.Remove(name); err != nil {
			return nil, fmt.Errorf("%s: %w", name, shmerr.ErrIoError)
		}
		return createOrInit(name, geo)
	}

	if shmseg.Exists(name) {
		compatible, err := IsHeaderCompatible(name, geo)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, shmerr.ErrIoError)
		}
		if compatible {
			region, err := shmseg.OpenReadWrite(name, geo.TotalSize())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, shmerr.ErrIoError)
			}
			return newRing(region, name, geo, false), nil
		}
		if err := shmseg.Remove(name); err != nil {
			return nil, fmt.Errorf("%s: %w", name, shmerr.ErrIoError)
		}
	}
	return createOrInit(name, geo)
}

func attachNoCreate(name string, geo Geometry) (*Ring, error) {
	if !shmseg.Exists(name) {
		return nil, fmt.Errorf("%s: %w", name, shmerr.ErrNotFound)
	}
	compatible, err := IsHeaderCompatible(name, geo)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, shmerr.ErrIoError)
	}
	if !compatible {
		return nil, fmt.Errorf("%s: %w", name, shmerr.ErrIncompatibleGeometry)
	}
	region, err := shmseg.OpenReadWrite(name, geo.TotalSize())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, shmerr.ErrIoError)
	}
	return newRing(region, name, geo, false), nil
}

// createOrInit opens (creating if absent) the region at the requested
// geometry's size and initializes the header only if it is still the
// zero sentinel, resolving the create/create race described in spec §4.3:
// whichever process's CreateOrOpen call observes capacity == 0 first
// performs the one-time initialization; the other attaches to what was
// just written.
func createOrInit(name string, geo Geometry) (*Ring, error) {
	region, err := shmseg.CreateOrOpen(name, geo.TotalSize())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, shmerr.ErrIoError)
	}
	r := newRing(region, name, geo, true)
	if r.header.Capacity() == 0 {
		r.initHeader()
	} else if !r.header.geometry().equal(geo) {
		region.Close()
		return nil, fmt.Errorf("%s: %w", name, shmerr.ErrIncompatibleGeometry)
	} else {
		r.creator = false
	}
	return r, nil
}

// initHeader zero-initializes head and every consumer tail, then
// publishes the geometry. Capacity is written last so that any other
// process racing to initialize this region observes capacity == 0 until
// the rest of the header and every tail are already zeroed.
func (r *Ring) initHeader() {
	r.header.SetHead(0)
	for i := uint32(0); i < r.geo.NumConsumers; i++ {
		tailAt(r.base, r.geo, i).SetTail(0)
	}
	r.header.setElementSize(r.geo.ElementSize)
	r.header.setNumConsumers(r.geo.NumConsumers)
	r.header.setCapacity(r.geo.Capacity)
}

// IsHeaderCompatible reports whether the named region exists, has the
// requested total size, and has a header matching geo exactly. It is
// side-effect free: it never creates, mutates, or unlinks the region.
func IsHeaderCompatible(name string, geo Geometry) (bool, error) {
	size, err := shmseg.Stat(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if uint64(size) != geo.TotalSize() {
		return false, nil
	}
	region, err := shmseg.OpenReadOnly(name, geo.TotalSize())
	if err != nil {
		if errors.Is(err, shmseg.ErrSizeMismatch) || errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer region.Close()
	h := headerView{base: unsafe.Pointer(&region.Mem[0])}
	return h.geometry().equal(geo), nil
}

// Close unmaps the region. If this handle created the region, it also
// unlinks the name from the namespace; an attaching handle leaves the
// name in place for other processes still using it.
func (r *Ring) Close() error {
	err := r.region.Close()
	if r.creator {
		if unlinkErr := shmseg.Remove(r.name); unlinkErr != nil && err == nil {
			err = unlinkErr
		}
	}
	return err
}

// Capacity returns the number of slots in the ring.
func (r *Ring) Capacity() uint32 { return r.geo.Capacity }

// ElementSize returns the number of bytes per slot.
func (r *Ring) ElementSize() uint32 { return r.geo.ElementSize }

// NumConsumers returns the number of consumer tail slots in the ring.
func (r *Ring) NumConsumers() uint32 { return r.geo.NumConsumers }

// Push is producer-only. It returns false if the ring is full; the
// caller never sees an error for that condition. See spec §4.1 for the
// memory-ordering argument.
func (r *Ring) Push(src []byte) (bool, error) {
	if uint32(len(src)) != r.geo.ElementSize {
		return false, fmt.Errorf("push: expected %d bytes, got %d: %w", r.geo.ElementSize, len(src), shmerr.ErrInvalidArgument)
	}
	head := r.header.Head() // relaxed: producer is the sole writer
	minTail := r.minTail()  // acquire: gates reading each consumer's backlog
	nextHead := (head + 1) % r.geo.Capacity
	if nextHead == minTail {
		return false, nil
	}
	copy(slotAt(r.base, r.geo, head), src)
	r.header.SetHead(nextHead) // release: publishes the slot just written
	return true, nil
}

// Pop is consumer-i-only. It returns false if the ring is empty for this
// consumer; the caller never sees an error for that condition.
func (r *Ring) Pop(consumerID uint32, dst []byte) (bool, error) {
	if consumerID >= r.geo.NumConsumers {
		return false, fmt.Errorf("pop: consumer %d, num_consumers %d: %w", consumerID, r.geo.NumConsumers, shmerr.ErrOutOfRange)
	}
	if uint32(len(dst)) < r.geo.ElementSize {
		return false, fmt.Errorf("pop: need at least %d bytes, got %d: %w", r.geo.ElementSize, len(dst), shmerr.ErrInvalidArgument)
	}
	tv := tailAt(r.base, r.geo, consumerID)
	tail := tv.Tail()       // relaxed: this consumer is the sole writer
	head := r.header.Head() // acquire: gates reading the slot's payload
	if tail == head {
		return false, nil
	}
	copy(dst, slotAt(r.base, r.geo, tail))
	tv.SetTail((tail + 1) % r.geo.Capacity) // release: frees the slot for the producer
	return true, nil
}

// Empty reports whether consumer i has nothing left to pop.
func (r *Ring) Empty(consumerID uint32) (bool, error) {
	if consumerID >= r.geo.NumConsumers {
		return false, fmt.Errorf("empty: consumer %d, num_consumers %d: %w", consumerID, r.geo.NumConsumers, shmerr.ErrOutOfRange)
	}
	return tailAt(r.base, r.geo, consumerID).Tail() == r.header.Head(), nil
}

// Full reports whether the producer has no room to push.
func (r *Ring) Full() bool {
	head := r.header.Head()
	return (head+1)%r.geo.Capacity == r.minTail()
}

// Size returns the number of unconsumed messages pending for consumer i.
func (r *Ring) Size(consumerID uint32) (uint32, error) {
	if consumerID >= r.geo.NumConsumers {
		return 0, fmt.Errorf("size: consumer %d, num_consumers %d: %w", consumerID, r.geo.NumConsumers, shmerr.ErrOutOfRange)
	}
	head := r.header.Head()
	tail := tailAt(r.base, r.geo, consumerID).Tail()
	return (head - tail + r.geo.Capacity) % r.geo.Capacity, nil
}

// minTail scans every consumer tail with an acquire load and returns the
// slowest one, the position the producer may not advance past.
func (r *Ring) minTail() uint32 {
	head := r.header.Head()
	min := tailAt(r.base, r.geo, 0).Tail()
	maxLag := (head - min + r.geo.Capacity) % r.geo.Capacity
	for i := uint32(1); i < r.geo.NumConsumers; i++ {
		t := tailAt(r.base, r.geo, i).Tail()
		if lag := (head - t + r.geo.Capacity) % r.geo.Capacity; lag > maxLag {
			min, maxLag = t, lag
		}
	}
	return min
}
