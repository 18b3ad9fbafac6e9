// Package ring implements the reservation protocol over a located region's
// circular payload area.
package ring

import (
	"github.com/firmcore/bootlog/internal/region"
	"github.com/firmcore/bootlog/internal/spinlock"
)

// Ring serializes byte-range reservations within a region's payload area.
// All mutation of the shared region goes through Reserve; nothing else
// touches the header's write offset.
type Ring struct {
	h  *region.Handle
	lk spinlock.Lock
}

// New wraps a located region. A nil handle yields a ring whose operations
// report region.ErrNotLocated, which callers treat as "mirror only".
func New(h *region.Handle) *Ring {
	return &Ring{h: h}
}

// Window is a claimed byte range of the payload area. The bytes belong
// exclusively to the reserving caller; no later reservation overlaps them
// until the ring wraps past this offset.
type Window struct {
	Offset uint32
	Bytes  []byte
}

// Reserve claims n bytes of the payload area and publishes the advanced
// write offset. When the range would run past the end of the payload area
// the entry is placed at the start instead: the ring overwrites oldest
// history rather than refusing the write, so exhaustion never surfaces as
// an error. Only the offset update runs under the lock; the caller copies
// payload bytes into the window afterwards, outside the critical section.
func (r *Ring) Reserve(n int) (Window, error) {
	if r == nil || r.h == nil {
		return Window{}, region.ErrNotLocated
	}
	capacity := r.h.PayloadCapacity()
	if n <= 0 || uint32(n) > capacity {
		return Window{}, region.ErrEntryTooLarge
	}

	r.lk.Acquire()
	off := r.h.WriteOffset()
	end := off + uint32(n)
	if end > capacity {
		// Wrap: the entry starts at the payload base. The bytes between
		// the old offset and the end of the area are dead and are never
		// decoded as part of any entry.
		off = 0
		end = uint32(n)
		r.h.BumpGeneration()
	}
	r.h.SetWriteOffset(end)
	r.h.IncEntryCount()
	r.lk.Release()

	return Window{Offset: off, Bytes: r.h.Payload()[off:end]}, nil
}

// Append reserves space for an encoded entry and copies it in. Entries too
// large for the payload area are dropped; the encoder's truncation cap makes
// that unreachable with any sanely sized region.
func (r *Ring) Append(encoded []byte) error {
	w, err := r.Reserve(len(encoded))
	if err != nil {
		return err
	}
	copy(w.Bytes, encoded)
	return nil
}

// Handle returns the located region this ring writes to, or nil.
func (r *Ring) Handle() *region.Handle {
	if r == nil {
		return nil
	}
	return r.h
}
