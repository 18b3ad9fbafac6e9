// Package bootlog is a boot-firmware logging core: one shared circular log
// region that every boot phase appends to, producing a single time-ordered
// diagnostic record of the whole boot.
//
// Each phase builds its own Logger. The first Log call locates the shared
// region (hand-off record first, then the fixed placement from the platform
// parameters) and caches the result for the life of the phase. Every message
// is also forwarded to the raw hardware debug channel, which is the only
// output path before the region exists. Logging never fails loudly: a region
// that cannot be located degrades the logger to mirror-only output.
package bootlog

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/firmcore/bootlog/internal/encode"
	"github.com/firmcore/bootlog/internal/handoff"
	"github.com/firmcore/bootlog/internal/locator"
	"github.com/firmcore/bootlog/internal/mirror"
	"github.com/firmcore/bootlog/internal/platform"
	"github.com/firmcore/bootlog/internal/region"
	"github.com/firmcore/bootlog/internal/ring"
	"github.com/firmcore/bootlog/internal/snapshot"
)

// ErrNotLocated reports that the shared region could not be resolved from
// any discovery source. Log absorbs it; Snapshot returns it.
var ErrNotLocated = region.ErrNotLocated

// Port is the byte-level hardware transmission primitive. It accepts raw
// bytes and a level word and transmits them over the physical debug channel;
// there is no acknowledgment and no visible failure.
type Port interface {
	Emit(level uint32, p []byte)
}

// Config describes one phase's view of the platform.
//
// MemoryDevice, BaseAddress and RegionSize pin the shared region to a fixed
// placement inside the platform memory device; leaving them zero means the
// region is only discoverable through the hand-off record at HandoffPath.
// MirrorMask filters the hardware mirror (zero passes everything); the
// shared region always receives every message regardless of the mask.
type Config struct {
	Phase        Phase
	MemoryDevice string
	BaseAddress  int64
	RegionSize   uint32
	HandoffPath  string
	MirrorMask   uint32
	MaxPayload   int

	// Mirror overrides the hardware channel. When nil, MirrorWriter is
	// wrapped in a serial port honoring MirrorMask; with both unset the
	// mirror is a no-op.
	Mirror       Port
	MirrorWriter io.Writer

	// mapRegion overrides how placements are turned into live memory
	// windows. Tests inject byte-slice regions here.
	mapRegion locator.MapFunc
}

// ParseConfig builds a Config for the given phase from a platform parameter
// blob (see internal/platform for the format).
func ParseConfig(params []byte, phase Phase) (Config, error) {
	p, err := platform.Parse(params)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Phase:        phase,
		MemoryDevice: p.Device,
		BaseAddress:  p.Base,
		RegionSize:   p.Size,
		HandoffPath:  p.HandoffPath,
		MirrorMask:   p.MirrorMask,
		MaxPayload:   p.MaxPayload,
	}, nil
}

// Logger is a phase-local instance of the logging core. It owns nothing
// shared except through the located region handle; discard it with the
// phase. Safe for concurrent use.
type Logger struct {
	phase Phase
	port  Port
	enc   *encode.Encoder
	loc   *locator.Locator

	handoffPath string

	mu        sync.Mutex
	ring      *ring.Ring
	published bool
}

// New builds the logger for one phase. No I/O happens here; location is
// deferred to the first Log call so a logger can be constructed before the
// region's memory exists.
func New(cfg Config) *Logger {
	port := cfg.Mirror
	if port == nil {
		if cfg.MirrorWriter != nil {
			port = mirror.NewSerialPort(cfg.MirrorWriter, cfg.MirrorMask)
		} else {
			port = mirror.Nop{}
		}
	}
	params := platform.Params{
		Device:      cfg.MemoryDevice,
		Base:        cfg.BaseAddress,
		Size:        cfg.RegionSize,
		HandoffPath: cfg.HandoffPath,
		MirrorMask:  cfg.MirrorMask,
		MaxPayload:  cfg.MaxPayload,
	}
	return &Logger{
		phase:       cfg.Phase,
		port:        port,
		enc:         encode.New(encode.NewClock(), cfg.MaxPayload),
		loc:         locator.New(params, cfg.mapRegion),
		handoffPath: cfg.HandoffPath,
	}
}

// Log appends one message to the shared region and mirrors it to the
// hardware channel. Fire-and-forget: truncation, an unlocated region, and
// mirror failure are all absorbed here, never surfaced to the caller.
func (l *Logger) Log(level uint32, msg []byte) {
	// The mirror fires exactly once per call, located or not.
	l.port.Emit(level, msg)

	r := l.locate()
	if r == nil {
		return
	}
	dst := make([]byte, 0, l.enc.EncodedSize(len(msg)))
	r.Append(l.enc.Encode(dst, level, uint8(l.phase), msg))
}

// Logf formats and logs, printf-style.
func (l *Logger) Logf(level uint32, format string, args ...any) {
	l.Log(level, fmt.Appendf(nil, format, args...))
}

// Snapshot extracts the located region into a portable, compressed file for
// out-of-band analysis. Unlike Log it reports failure: extraction is a
// diagnostic-host operation, not a boot-path one. An unlocated region is
// region.ErrNotLocated, the same degradation Log absorbs silently.
func (l *Logger) Snapshot(filename string) error {
	r := l.locate()
	if r == nil {
		return ErrNotLocated
	}
	return snapshot.Write(filename, r.Handle())
}

// Located reports whether the shared region has been resolved yet.
func (l *Logger) Located() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring != nil
}

// locate resolves the region on first use, running the first-boot
// initialization path if the placement is addressable but blank, and
// publishes the hand-off record after the first success. Returns nil while
// the region stays unreachable; the caller degrades to mirror-only.
func (l *Logger) locate() *ring.Ring {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ring != nil {
		return l.ring
	}
	h, err := l.loc.Locate()
	if errors.Is(err, region.ErrUninitialized) {
		h, err = l.loc.Bootstrap([16]byte(uuid.New()))
	}
	if err != nil {
		return nil
	}
	l.ring = ring.New(h)
	l.publishLocked(h)
	return l.ring
}

// publishLocked writes the hand-off record for the next phase, at most once
// per phase. Publication failure is not retried; the next phase falls back
// to its fixed placement.
func (l *Logger) publishLocked(h *region.Handle) {
	if l.published || l.handoffPath == "" {
		return
	}
	l.published = true
	pl, ok := l.loc.Placement()
	if !ok || pl.Device == "" {
		return
	}
	id := h.BootID()
	handoff.Publish(l.handoffPath, handoff.Record{
		Device: pl.Device,
		Base:   pl.Base,
		Size:   pl.Size,
		BootID: id[:],
		Phase:  uint8(l.phase),
	})
}
