package ring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ismaelliang/ring-buffer/shmerr"
)

func uniqueName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("ring-test-%s-%d", t.Name(), time.Now().UnixNano())
}

func openRing(t *testing.T, geo Geometry) *Ring {
	t.Helper()
	r, err := CreateOrAttach(uniqueName(t), geo, false, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// Scenario 1: capacity 64, N=1, round-trip 10 messages in order.
func TestPushPopRoundTrip(t *testing.T) {
	r := openRing(t, Geometry{Capacity: 64, ElementSize: 8, NumConsumers: 1})

	for i := 0; i < 10; i++ {
		buf := make([]byte, 8)
		buf[0] = byte(i)
		ok, err := r.Push(buf)
		require.NoError(t, err)
		require.True(t, ok)
	}
	for i := 0; i < 10; i++ {
		buf := make([]byte, 8)
		ok, err := r.Pop(0, buf)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, byte(i), buf[0])
	}
	empty, err := r.Empty(0)
	require.NoError(t, err)
	require.True(t, empty)
}

// Scenario: capacity-2 wraparound. Produce 1, pop 1, produce 1 again wraps
// head to 0, pop wraps tail to 0. No spurious full.
func TestCapacityTwoWraparound(t *testing.T) {
	r := openRing(t, Geometry{Capacity: 2, ElementSize: 4, NumConsumers: 1})

	ok, err := r.Push([]byte{1, 0, 0, 0})
	require.NoError(t, err)
	require.True(t, ok)

	buf := make([]byte, 4)
	ok, err = r.Pop(0, buf)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, byte(1), buf[0])

	ok, err = r.Push([]byte{2, 0, 0, 0})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.Pop(0, buf)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, byte(2), buf[0])
}

// Scenario 2: capacity 4, N=1. Fill to failure; K must equal 3 (ring
// reserves one slot). Pop one; next produce succeeds.
func TestFillToCapacityMinusOne(t *testing.T) {
	r := openRing(t, Geometry{Capacity: 4, ElementSize: 4, NumConsumers: 1})

	k := 0
	for {
		ok, err := r.Push([]byte{byte(k), 0, 0, 0})
		require.NoError(t, err)
		if !ok {
			break
		}
		k++
	}
	require.Equal(t, 3, k)

	require.True(t, r.Full())

	buf := make([]byte, 4)
	ok, err := r.Pop(0, buf)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.Push([]byte{9, 0, 0, 0})
	require.NoError(t, err)
	require.True(t, ok)
}

// Scenario 3: capacity 64, N=2. One message pushed; both consumers observe
// it independently and in full.
func TestBroadcastToMultipleConsumers(t *testing.T) {
	r := openRing(t, Geometry{Capacity: 64, ElementSize: 8, NumConsumers: 2})

	ok, err := r.Push([]byte("MULTI!!!"))
	require.NoError(t, err)
	require.True(t, ok)

	for _, c := range []uint32{0, 1} {
		buf := make([]byte, 8)
		ok, err := r.Pop(c, buf)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "MULTI!!!", string(buf))
	}

	// Produce succeeds again only once both consumers have made room; with
	// a generous capacity this is immediate.
	ok, err = r.Push([]byte("SECOND!!"))
	require.NoError(t, err)
	require.True(t, ok)
}

// With N consumers, the producer cannot advance past the slowest.
func TestProduceGatedBySlowestConsumer(t *testing.T) {
	r := openRing(t, Geometry{Capacity: 4, ElementSize: 4, NumConsumers: 2})

	// Fill to capacity-1 without either consumer reading.
	for i := 0; i < 3; i++ {
		ok, err := r.Push([]byte{byte(i), 0, 0, 0})
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := r.Push([]byte{9, 0, 0, 0})
	require.NoError(t, err)
	require.False(t, ok)

	buf := make([]byte, 4)
	// Consumer 0 drains everything; consumer 1 still hasn't, so the
	// producer must stay gated.
	for i := 0; i < 3; i++ {
		ok, err := r.Pop(0, buf)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err = r.Push([]byte{9, 0, 0, 0})
	require.NoError(t, err)
	require.False(t, ok, "push must stay gated by consumer 1's untouched backlog")

	for i := 0; i < 3; i++ {
		ok, err := r.Pop(1, buf)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err = r.Push([]byte{9, 0, 0, 0})
	require.NoError(t, err)
	require.True(t, ok)
}

// Scenario 4: capacity 64, N=1, two goroutines. Producer pushes 50
// messages tagged with their index; consumer observes all 50 in order.
func TestConcurrentProducerConsumer(t *testing.T) {
	r := openRing(t, Geometry{Capacity: 64, ElementSize: 8, NumConsumers: 1})

	const n = 50
	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < n; i++ {
			buf := make([]byte, 8)
			buf[0] = byte(i)
			for {
				ok, err := r.Push(buf)
				if err != nil {
					return err
				}
				if ok {
					break
				}
				time.Sleep(time.Microsecond)
			}
		}
		return nil
	})

	seen := make([]byte, 0, n)
	g.Go(func() error {
		buf := make([]byte, 8)
		for len(seen) < n {
			ok, err := r.Pop(0, buf)
			if err != nil {
				return err
			}
			if !ok {
				time.Sleep(time.Microsecond)
				continue
			}
			seen = append(seen, buf[0])
		}
		return nil
	})

	require.NoError(t, g.Wait())
	require.Len(t, seen, n)
	for i, v := range seen {
		require.Equal(t, byte(i), v)
	}
}

func TestNoCreateAttachNotFound(t *testing.T) {
	_, err := CreateOrAttach(uniqueName(t), Geometry{Capacity: 4, ElementSize: 4, NumConsumers: 1}, false, true)
	require.ErrorIs(t, err, shmerr.ErrNotFound)
}

func TestForceRecreateAndNoCreateConflict(t *testing.T) {
	_, err := CreateOrAttach(uniqueName(t), Geometry{Capacity: 4, ElementSize: 4, NumConsumers: 1}, true, true)
	require.ErrorIs(t, err, shmerr.ErrInvalidArgument)
}

func TestGeometryMismatchWithoutForceRecreateUnlinksAndRecreates(t *testing.T) {
	name := uniqueName(t)
	r1, err := CreateOrAttach(name, Geometry{Capacity: 4, ElementSize: 4, NumConsumers: 1}, false, false)
	require.NoError(t, err)
	// Simulate the creator exiting without tearing down: detach this
	// handle's mapping but leave the region linked, as an attaching
	// process would see it.
	require.NoError(t, r1.region.Close())

	r2, err := CreateOrAttach(name, Geometry{Capacity: 8, ElementSize: 4, NumConsumers: 1}, false, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r2.Close() })
	require.EqualValues(t, 8, r2.Capacity())
}

func TestGeometryMismatchWithNoCreateIsIncompatible(t *testing.T) {
	name := uniqueName(t)
	r1, err := CreateOrAttach(name, Geometry{Capacity: 4, ElementSize: 4, NumConsumers: 1}, false, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r1.Close() })

	_, err = CreateOrAttach(name, Geometry{Capacity: 8, ElementSize: 4, NumConsumers: 1}, false, true)
	require.ErrorIs(t, err, shmerr.ErrIncompatibleGeometry)
}

func TestIsHeaderCompatible(t *testing.T) {
	name := uniqueName(t)
	geo := Geometry{Capacity: 1024, ElementSize: 32, NumConsumers: 1}
	r, err := CreateOrAttach(name, geo, false, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	ok, err := IsHeaderCompatible(name, geo)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = IsHeaderCompatible(name, Geometry{Capacity: 1025, ElementSize: 32, NumConsumers: 1})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = IsHeaderCompatible(name, Geometry{Capacity: 1024, ElementSize: 33, NumConsumers: 1})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = IsHeaderCompatible(name, Geometry{Capacity: 1024, ElementSize: 32, NumConsumers: 2})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCloseUnlinksOnlyForCreator(t *testing.T) {
	name := uniqueName(t)
	geo := Geometry{Capacity: 4, ElementSize: 4, NumConsumers: 1}

	creator, err := CreateOrAttach(name, geo, false, false)
	require.NoError(t, err)

	attacher, err := CreateOrAttach(name, geo, false, false)
	require.NoError(t, err)

	require.NoError(t, attacher.Close())
	exists, err := IsHeaderCompatible(name, geo)
	require.NoError(t, err)
	require.True(t, exists, "attacher's Close must not unlink the region")

	require.NoError(t, creator.Close())
	_, err = CreateOrAttach(name, geo, false, true)
	require.ErrorIs(t, err, shmerr.ErrNotFound, "creator's Close must unlink the region")
}
