// Package queue implements the message-framing layer described in spec
// §4.2: it wraps a Ring, adds a typed, sequenced, timestamped header in
// front of each payload, validates payload size, and forwards to the
// Ring's raw slot push/pop.
package queue

import (
	"fmt"
	"math"
	"time"

	"github.com/ismaelliang/ring-buffer/msgtype"
	"github.com/ismaelliang/ring-buffer/ring"
	"github.com/ismaelliang/ring-buffer/shmerr"
)

// Queue frames payloads with a msgtype.Header and pushes them into a
// Ring. next_seq is process-local, per spec §4.2: it is not coordinated
// across producers, and it restarts at 0 whenever a new Queue is opened
// over the same region.
type Queue struct {
	ring       *ring.Ring
	maxPayload uint32
	nextSeq    uint64
}

// elementSize is the number of bytes a single framed slot occupies: the
// fixed message header plus the maximum payload this Queue will carry.
func elementSize(maxPayload uint32) uint64 {
	return uint64(msgtype.HeaderSize) + uint64(maxPayload)
}

// Open creates or attaches to a named region sized for capacity slots of
// maxPayload-sized payloads and numConsumers independent readers,
// delegating region lifecycle to ring.CreateOrAttach.
func Open(name string, capacity, maxPayload, numConsumers uint32, forceRecreate, noCreate bool) (*Queue, error) {
	if maxPayload == 0 {
		return nil, fmt.Errorf("max_payload must be > 0: %w", shmerr.ErrInvalidArgument)
	}
	es := elementSize(maxPayload)
	if es > math.MaxUint32 {
		return nil, fmt.Errorf("element_size %d exceeds 32-bit range: %w", es, shmerr.ErrOverflow)
	}
	geo := ring.Geometry{Capacity: capacity, ElementSize: uint32(es), NumConsumers: numConsumers}
	r, err := ring.CreateOrAttach(name, geo, forceRecreate, noCreate)
	if err != nil {
		return nil, err
	}
	return &Queue{ring: r, maxPayload: maxPayload}, nil
}

// Close unmaps the underlying region, unlinking it if this Queue created
// it.
func (q *Queue) Close() error { return q.ring.Close() }

// clockEpoch anchors frame timestamps: each one is the monotonic time in
// nanoseconds elapsed since this process initialized the package.
var clockEpoch = time.Now()

// Produce stages a framed record — {type, payload_size, timestamp,
// sequence_num} followed by payload — and pushes it into the ring.
// When the ring is full, Produce returns false, leaves next_seq
// unadvanced, and commits nothing.
func (q *Queue) Produce(typ msgtype.Type, payload []byte) (bool, error) {
	if uint32(len(payload)) > q.maxPayload {
		return false, fmt.Errorf("payload %d bytes exceeds max_payload %d: %w", len(payload), q.maxPayload, shmerr.ErrInvalidArgument)
	}
	frame := make([]byte, q.ring.ElementSize())
	msgtype.Encode(frame, msgtype.Header{
		Type:        typ,
		PayloadSize: uint32(len(payload)),
		Timestamp:   uint64(time.Since(clockEpoch)),
		SequenceNum: q.nextSeq,
	})
	copy(frame[msgtype.HeaderSize:], payload)

	ok, err := q.ring.Push(frame)
	if err != nil {
		return false, err
	}
	if ok {
		q.nextSeq++
	}
	return ok, nil
}

// Consume pops the next frame for consumerID into outBuf, which must be
// at least ElementSize bytes: msgtype.HeaderSize of header followed by
// the payload, left-aligned at offset msgtype.HeaderSize.
func (q *Queue) Consume(consumerID uint32, outBuf []byte) (bool, error) {
	return q.ring.Pop(consumerID, outBuf)
}

// Empty reports whether consumerID has nothing left to consume.
func (q *Queue) Empty(consumerID uint32) (bool, error) { return q.ring.Empty(consumerID) }

// Full reports whether the next Produce would return false.
func (q *Queue) Full() bool { return q.ring.Full() }

// Capacity returns the number of slots in the underlying ring.
func (q *Queue) Capacity() uint32 { return q.ring.Capacity() }

// Size returns the number of unconsumed messages pending for consumerID.
func (q *Queue) Size(consumerID uint32) (uint32, error) { return q.ring.Size(consumerID) }

// MaxPayloadSize returns the maximum payload size this Queue was opened
// with.
func (q *Queue) MaxPayloadSize() uint32 { return q.maxPayload }

// ElementSize returns the number of bytes per slot (msgtype.HeaderSize +
// max payload).
func (q *Queue) ElementSize() uint32 { return q.ring.ElementSize() }

// DecodeFrame splits a buffer filled by Consume into its header and
// payload slice. The returned payload aliases buf; copy it before the
// buffer is reused for another Consume call.
func DecodeFrame(buf []byte) (msgtype.Header, []byte) {
	h := msgtype.Decode(buf)
	return h, buf[msgtype.HeaderSize : msgtype.HeaderSize+uint64(h.PayloadSize)]
}

// IsHeaderCompatible opens the named region read-only and reports
// whether it exists with exactly this geometry. It is side-effect free.
func IsHeaderCompatible(name string, capacity, maxPayload, numConsumers uint32) (bool, error) {
	es := elementSize(maxPayload)
	if es > math.MaxUint32 {
		return false, fmt.Errorf("element_size %d exceeds 32-bit range: %w", es, shmerr.ErrOverflow)
	}
	geo := ring.Geometry{Capacity: capacity, ElementSize: uint32(es), NumConsumers: numConsumers}
	return ring.IsHeaderCompatible(name, geo)
}
