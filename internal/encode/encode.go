// Package encode serializes log messages into the entry record format the
// region stores.
package encode

import (
	"encoding/binary"
	"time"

	"github.com/firmcore/bootlog/internal/region"
)

// DefaultMaxPayload caps a single message. Larger payloads are truncated,
// never rejected and never allocated in full.
const DefaultMaxPayload = 512

// Clock supplies monotonic ticks for entry timestamps. Ticks are relative to
// the phase that created the clock; ordering across phase boundaries comes
// from the entry's phase tag, not from comparing raw ticks.
type Clock struct {
	start time.Time
}

// NewClock starts a monotonic tick source at the current instant.
func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

// Ticks returns nanoseconds elapsed since the clock started.
func (c *Clock) Ticks() uint64 {
	return uint64(time.Since(c.start))
}

// Encoder builds entry records. It is stateless apart from the clock read
// and the configured payload cap.
type Encoder struct {
	clock      *Clock
	maxPayload int
}

// New returns an encoder. maxPayload <= 0 selects DefaultMaxPayload; values
// above the length field's range are clamped to it.
func New(clock *Clock, maxPayload int) *Encoder {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	if maxPayload > region.MaxPayload {
		maxPayload = region.MaxPayload
	}
	return &Encoder{clock: clock, maxPayload: maxPayload}
}

// EncodedSize returns the on-region size of an entry carrying n payload
// bytes after truncation.
func (e *Encoder) EncodedSize(n int) int {
	if n > e.maxPayload {
		n = e.maxPayload
	}
	return region.EntryHeaderSize + n
}

// Encode appends one entry record to dst and returns the extended slice.
// The timestamp is sampled here, at encode time. Payloads over the cap are
// truncated and the record flagged; truncation is not an error.
func (e *Encoder) Encode(dst []byte, level uint32, phase uint8, payload []byte) []byte {
	var flags uint8
	if len(payload) > e.maxPayload {
		payload = payload[:e.maxPayload]
		flags |= region.FlagTruncated
	}

	var hdr [region.EntryHeaderSize]byte
	binary.LittleEndian.PutUint16(hdr[0:], region.EntrySignature)
	hdr[2] = flags
	hdr[3] = phase
	binary.LittleEndian.PutUint32(hdr[4:], level)
	binary.LittleEndian.PutUint64(hdr[8:], e.clock.Ticks())
	binary.LittleEndian.PutUint16(hdr[16:], uint16(len(payload)))

	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}
