package ring

import (
	"fmt"
	"unsafe"

	"github.com/ismaelliang/ring-buffer/internal/shmseg"
	"github.com/ismaelliang/ring-buffer/shmerr"
)

// ConsumerSnapshot is one consumer's tail position and backlog at the
// moment Inspect ran.
type ConsumerSnapshot struct {
	Tail    uint32
	Pending uint32
}

// Snapshot is a point-in-time, read-only view of a region's geometry and
// counters, gathered without the caller knowing the region's geometry in
// advance. It is inherently racy against a live producer/consumer: by
// the time Inspect returns, Head and every Tail may already be stale.
type Snapshot struct {
	Name       string
	Geometry   Geometry
	Head       uint32
	Consumers  []ConsumerSnapshot
	HeaderSize uint64
	TailsSize  uint64
	SlotsSize  uint64
	TotalSize  uint64
}

// Inspect opens a named region read-only and reads back its geometry and
// current counters. Unlike every other entry point in this package,
// Inspect does not require the caller to already know the region's
// geometry: it first maps just the HeaderSize-byte header to discover
// capacity, element_size and num_consumers, then remaps the full region
// now that its size can be computed.
func Inspect(name string) (Snapshot, error) {
	headerRegion, err := shmseg.OpenPrefixReadOnly(name, uint64(HeaderSize))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", name, shmerr.ErrNotFound)
	}
	h := headerView{base: unsafe.Pointer(&headerRegion.Mem[0])}
	geo := h.geometry()
	headerRegion.Close()

	if err := geo.validate(); err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", name, shmerr.ErrIncompatibleGeometry)
	}

	region, err := shmseg.OpenPrefixReadOnly(name, geo.TotalSize())
	if err != nil {
		return Snapshot{}, fmt.Errorf("%s: %w", name, shmerr.ErrIoError)
	}
	defer region.Close()

	base := unsafe.Pointer(&region.Mem[0])
	full := headerView{base: base}

	snap := Snapshot{
		Name:       name,
		Geometry:   geo,
		Head:       full.Head(),
		Consumers:  make([]ConsumerSnapshot, geo.NumConsumers),
		HeaderSize: uint64(HeaderSize),
		TailsSize:  uint64(geo.NumConsumers) * uint64(TailEntrySize),
		SlotsSize:  uint64(geo.Capacity) * uint64(geo.ElementSize),
		TotalSize:  geo.TotalSize(),
	}
	for i := uint32(0); i < geo.NumConsumers; i++ {
		tail := tailAt(base, geo, i).Tail()
		pending := (snap.Head - tail + geo.Capacity) % geo.Capacity
		snap.Consumers[i] = ConsumerSnapshot{Tail: tail, Pending: pending}
	}
	return snap, nil
}
