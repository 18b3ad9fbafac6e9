// Package mirror forwards every log message to the raw hardware debug
// channel. It is the only path guaranteed to carry output produced before
// the shared region exists, and it keeps emitting after location succeeds.
package mirror

import "io"

// Port is the byte-level hardware transmission primitive: it accepts raw
// bytes and a level and transmits them with no acknowledgment. Transmission
// failure is invisible to callers.
type Port interface {
	Emit(level uint32, p []byte)
}

// SerialPort writes to a physical debug channel exposed as an io.Writer
// (a serial device file, a console). Output below the configured level mask
// is suppressed; write errors are dropped, fire-and-forget.
type SerialPort struct {
	w    io.Writer
	mask uint32
}

// NewSerialPort wraps w. mask filters by debug level: a message is emitted
// when level AND mask is non-zero. A zero mask emits everything.
func NewSerialPort(w io.Writer, mask uint32) *SerialPort {
	return &SerialPort{w: w, mask: mask}
}

// Emit transmits p if the level passes the mask.
func (s *SerialPort) Emit(level uint32, p []byte) {
	if s == nil || s.w == nil {
		return
	}
	if s.mask != 0 && level&s.mask == 0 {
		return
	}
	s.w.Write(p)
}

// Nop is a Port that discards everything, for platforms with no debug
// channel wired up.
type Nop struct{}

func (Nop) Emit(uint32, []byte) {}
