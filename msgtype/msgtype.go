// Package msgtype defines the framed-message header the queue package
// places in front of every payload, and the open enumeration of message
// types applications tag payloads with.
package msgtype

import "encoding/binary"

// Type tags a framed message's payload. It is an open enumeration:
// applications may define additional values beyond the ones below.
type Type uint32

const (
	Unknown Type = iota
	MarketData
	OrderUpdate
	Heartbeat
)

func (t Type) String() string {
	switch t {
	case Unknown:
		return "UNKNOWN"
	case MarketData:
		return "MARKET_DATA"
	case OrderUpdate:
		return "ORDER_UPDATE"
	case Heartbeat:
		return "HEARTBEAT"
	default:
		return "TYPE(?)"
	}
}

// HeaderSize is the fixed on-wire size of Header in bytes.
const HeaderSize = 24

// Header is the fixed envelope the queue package writes in front of
// every payload:
//
//	offset 0   type:          u32
//	offset 4   payload_size:  u32
//	offset 8   timestamp:     u64 (nanoseconds, monotonic, producer-local epoch)
//	offset 16  sequence_num:  u64
type Header struct {
	Type        Type
	PayloadSize uint32
	Timestamp   uint64
	SequenceNum uint64
}

// Encode writes h's on-wire representation into dst, which must be at
// least HeaderSize bytes.
func Encode(dst []byte, h Header) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(h.Type))
	binary.LittleEndian.PutUint32(dst[4:8], h.PayloadSize)
	binary.LittleEndian.PutUint64(dst[8:16], h.Timestamp)
	binary.LittleEndian.PutUint64(dst[16:24], h.SequenceNum)
}

// Decode parses a Header from the front of src, which must be at least
// HeaderSize bytes.
func Decode(src []byte) Header {
	return Header{
		Type:        Type(binary.LittleEndian.Uint32(src[0:4])),
		PayloadSize: binary.LittleEndian.Uint32(src[4:8]),
		Timestamp:   binary.LittleEndian.Uint64(src[8:16]),
		SequenceNum: binary.LittleEndian.Uint64(src[16:24]),
	}
}
