// Package region defines the shared log region layout: a fixed header at the
// base of the block followed by a circular payload area of length-delimited
// entry records. The layout is little-endian and byte-stable within a header
// version; downstream readers parse it directly.
package region

import (
	"encoding/binary"
	"errors"
)

// Region header, 48 bytes at the base of the block.
//
// Offset  Size  Field
// 0       4     signature "BLOG"
// 4       2     version
// 6       2     header size
// 8       4     total region size (header included)
// 12      4     write offset, relative to the payload area
// 16      4     generation (wrap count)
// 20      4     entry count
// 24      8     reserved
// 32      16    boot session id
const (
	HeaderSignature uint32 = 0x474F4C42 // "BLOG" in memory order
	HeaderVersion   uint16 = 1
	HeaderSize             = 48

	offSignature  = 0
	offVersion    = 4
	offHeaderSize = 6
	offRegionSize = 8
	offWriteOff   = 12
	offGeneration = 16
	offEntryCount = 20
	offBootID     = 32
)

// Entry record header, 20 bytes, followed by the payload.
//
// Offset  Size  Field
// 0       2     signature "EL"
// 2       1     flags (bit 0: payload truncated)
// 3       1     phase tag
// 4       4     debug level
// 8       8     timestamp ticks
// 16      2     payload length
// 18      2     reserved
const (
	EntrySignature  uint16 = 0x4C45 // "EL" in memory order
	EntryHeaderSize        = 20

	// FlagTruncated marks an entry whose payload was cut to fit the
	// length field or the encoder's cap.
	FlagTruncated uint8 = 0x01

	// MaxPayload is the largest payload the length field can carry.
	MaxPayload = 0xFFFF
)

var (
	ErrUninitialized      = errors.New("region: memory addressable but header not initialized")
	ErrBadSignature       = errors.New("region: invalid header signature")
	ErrBadVersion         = errors.New("region: unsupported header version")
	ErrSizeMismatch       = errors.New("region: header size field does not match block")
	ErrTooSmall           = errors.New("region: block smaller than header")
	ErrAlreadyInitialized = errors.New("region: header already valid, refusing to re-initialize")
	ErrNotLocated         = errors.New("region: not located")
	ErrEntryTooLarge      = errors.New("region: entry larger than payload area")
	ErrBadEntry           = errors.New("region: invalid entry record")
)

// Handle is a phase-local view of a located region. It owns no memory: the
// underlying block is the cooperatively-owned shared region and is only ever
// mutated through the ring's reservation protocol. Header mutators on Handle
// assume the caller holds the reservation lock.
type Handle struct {
	buf []byte
}

// Attach validates the header at the base of buf and wraps it. It never
// writes: an invalid or blank header is reported, not repaired.
func Attach(buf []byte) (*Handle, error) {
	if err := Validate(buf); err != nil {
		return nil, err
	}
	return &Handle{buf: buf}, nil
}

// Validate checks the header at the base of buf. A header of all zero bytes
// reports ErrUninitialized so the first phase can tell "blank memory" apart
// from "corrupt or foreign memory".
func Validate(buf []byte) error {
	if len(buf) < HeaderSize+EntryHeaderSize {
		return ErrTooSmall
	}
	sig := binary.LittleEndian.Uint32(buf[offSignature:])
	if sig != HeaderSignature {
		if isBlank(buf[:HeaderSize]) {
			return ErrUninitialized
		}
		return ErrBadSignature
	}
	if binary.LittleEndian.Uint16(buf[offVersion:]) != HeaderVersion {
		return ErrBadVersion
	}
	if binary.LittleEndian.Uint32(buf[offRegionSize:]) != uint32(len(buf)) {
		return ErrSizeMismatch
	}
	return nil
}

// Initialize writes a fresh header into blank memory and returns a handle.
// This runs at most once per boot, in whichever phase first finds the block
// blank: a block that already carries a valid header is never re-initialized,
// so prior history within the boot survives phase transitions.
func Initialize(buf []byte, bootID [16]byte) (*Handle, error) {
	switch err := Validate(buf); {
	case err == nil:
		return nil, ErrAlreadyInitialized
	case errors.Is(err, ErrUninitialized):
		// The only state Initialize is allowed to act on.
	default:
		return nil, err
	}
	binary.LittleEndian.PutUint32(buf[offSignature:], HeaderSignature)
	binary.LittleEndian.PutUint16(buf[offVersion:], HeaderVersion)
	binary.LittleEndian.PutUint16(buf[offHeaderSize:], HeaderSize)
	binary.LittleEndian.PutUint32(buf[offRegionSize:], uint32(len(buf)))
	binary.LittleEndian.PutUint32(buf[offWriteOff:], 0)
	binary.LittleEndian.PutUint32(buf[offGeneration:], 0)
	binary.LittleEndian.PutUint32(buf[offEntryCount:], 0)
	copy(buf[offBootID:offBootID+16], bootID[:])
	return &Handle{buf: buf}, nil
}

func isBlank(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Size returns the total region size, header included.
func (h *Handle) Size() uint32 { return uint32(len(h.buf)) }

// PayloadCapacity returns the size of the circular payload area.
func (h *Handle) PayloadCapacity() uint32 { return uint32(len(h.buf) - HeaderSize) }

// Payload returns the circular payload area.
func (h *Handle) Payload() []byte { return h.buf[HeaderSize:] }

// BootID returns the boot session id stamped at first initialization.
func (h *Handle) BootID() [16]byte {
	var id [16]byte
	copy(id[:], h.buf[offBootID:offBootID+16])
	return id
}

// WriteOffset returns the current write offset into the payload area.
func (h *Handle) WriteOffset() uint32 {
	return binary.LittleEndian.Uint32(h.buf[offWriteOff:])
}

// SetWriteOffset publishes a new write offset. Reservation lock required.
func (h *Handle) SetWriteOffset(off uint32) {
	binary.LittleEndian.PutUint32(h.buf[offWriteOff:], off)
}

// Generation returns the wrap count.
func (h *Handle) Generation() uint32 {
	return binary.LittleEndian.Uint32(h.buf[offGeneration:])
}

// BumpGeneration increments the wrap count. Reservation lock required.
func (h *Handle) BumpGeneration() {
	binary.LittleEndian.PutUint32(h.buf[offGeneration:], h.Generation()+1)
}

// EntryCount returns the number of reservations made since initialization.
func (h *Handle) EntryCount() uint32 {
	return binary.LittleEndian.Uint32(h.buf[offEntryCount:])
}

// IncEntryCount bumps the reservation counter. Reservation lock required.
func (h *Handle) IncEntryCount() {
	binary.LittleEndian.PutUint32(h.buf[offEntryCount:], h.EntryCount()+1)
}

// Entry is a decoded log record.
type Entry struct {
	Level   uint32
	Phase   uint8
	Flags   uint8
	Ticks   uint64
	Payload []byte
	Offset  uint32 // payload-area offset the record was stored at
}

// Truncated reports whether the payload was cut during encoding.
func (e Entry) Truncated() bool { return e.Flags&FlagTruncated != 0 }

// DecodeEntry parses one entry record at the start of b. It returns the
// decoded entry and the total record size consumed.
func DecodeEntry(b []byte, off uint32) (Entry, int, error) {
	if len(b) < EntryHeaderSize {
		return Entry{}, 0, ErrBadEntry
	}
	if binary.LittleEndian.Uint16(b[0:]) != EntrySignature {
		return Entry{}, 0, ErrBadEntry
	}
	n := int(binary.LittleEndian.Uint16(b[16:]))
	total := EntryHeaderSize + n
	if total > len(b) {
		return Entry{}, 0, ErrBadEntry
	}
	return Entry{
		Flags:   b[2],
		Phase:   b[3],
		Level:   binary.LittleEndian.Uint32(b[4:]),
		Ticks:   binary.LittleEndian.Uint64(b[8:]),
		Payload: b[EntryHeaderSize:total],
		Offset:  off,
	}, total, nil
}

// Entries scans the payload area and returns the complete records,
// oldest-first, best-effort. Records strictly behind the write offset are
// complete by the reservation protocol; once the ring has wrapped, the
// overwritten remains of older entries around the write offset are skipped
// by resynchronizing on the next decodable record. A reader racing a live
// writer may still observe a torn record near the write offset.
func (h *Handle) Entries() []Entry {
	wo := h.WriteOffset()
	var out []Entry
	if h.Generation() > 0 {
		out = h.scanTail(wo, h.PayloadCapacity(), out)
	}
	return h.scanRange(0, wo, out)
}

// scanRange walks back-to-back records in [from, to). Everything here was
// written since the last wrap, so the first decode failure ends the walk.
func (h *Handle) scanRange(from, to uint32, out []Entry) []Entry {
	p := h.Payload()
	off := from
	for off+EntryHeaderSize <= to {
		e, n, err := DecodeEntry(p[off:to], off)
		if err != nil {
			break
		}
		out = append(out, e)
		off += uint32(n)
	}
	return out
}

// scanTail walks the pre-wrap records in [from, to). A wrap rarely lands on
// an old record boundary, so the walk starts inside the partially
// overwritten remains of an older entry; on decode failure it advances one
// byte at a time until a record decodes cleanly, then resumes record-wise.
// Resynchronization is heuristic: payload bytes that happen to form a valid
// record can be misread. Complete records behind the write offset survive.
func (h *Handle) scanTail(from, to uint32, out []Entry) []Entry {
	p := h.Payload()
	off := from
	for off+EntryHeaderSize <= to {
		e, n, err := DecodeEntry(p[off:to], off)
		if err != nil {
			off++
			continue
		}
		out = append(out, e)
		off += uint32(n)
	}
	return out
}
