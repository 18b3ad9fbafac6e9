// Package locator resolves the shared log region once per phase. Discovery
// order: a hand-off record published by an earlier phase, then the fixed
// placement from the platform parameters. The locator validates what it
// finds and never fabricates a header; first-boot initialization of blank
// memory is a separate, explicit path.
package locator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/firmcore/bootlog/internal/handoff"
	"github.com/firmcore/bootlog/internal/platform"
	"github.com/firmcore/bootlog/internal/region"
)

// MapFunc maps size bytes at base within a platform memory device and
// returns the live window. The default maps with mmap; tests and embedded
// hosts inject their own.
type MapFunc func(device string, base int64, size uint32) ([]byte, error)

// Placement names where a region lives inside the platform memory device.
type Placement struct {
	Device string
	Base   int64
	Size   uint32
}

// Locator caches the first successful location for the life of the phase.
// After a success it never re-validates or re-maps; the raw pointer is
// discarded with the phase, not carried across it.
type Locator struct {
	params platform.Params
	mapFn  MapFunc

	mu        sync.Mutex
	handle    *region.Handle
	placement Placement

	// Blank-but-addressable candidate held for Bootstrap.
	cand          []byte
	candPlacement Placement
}

// New builds a locator over the platform parameters. A nil mapFn selects
// the mmap-backed default.
func New(params platform.Params, mapFn MapFunc) *Locator {
	if mapFn == nil {
		mapFn = mapDevice
	}
	return &Locator{params: params, mapFn: mapFn}
}

// Locate resolves the region. Idempotent: after the first success every
// call returns the identical handle without re-validating. Failures are
// region.ErrNotLocated (no source yielded a region) or
// region.ErrUninitialized (the fixed placement is addressable but blank,
// see Bootstrap).
func (l *Locator) Locate() (*region.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locateLocked()
}

func (l *Locator) locateLocked() (*region.Handle, error) {
	if l.handle != nil {
		return l.handle, nil
	}

	// Source 1: hand-off record from a prior phase.
	if l.params.HandoffPath != "" {
		if rec, err := handoff.Discover(l.params.HandoffPath); err == nil {
			pl := Placement{Device: rec.Device, Base: rec.Base, Size: rec.Size}
			if h, err := l.attach(pl); err == nil {
				l.handle, l.placement = h, pl
				return h, nil
			}
			// A record pointing at invalid memory is ignored; the
			// fixed placement below may still work.
		}
	}

	// Source 2: fixed placement from configuration.
	if l.params.HasFixedRegion() {
		pl := Placement{Device: l.params.Device, Base: l.params.Base, Size: l.params.Size}
		h, err := l.attach(pl)
		switch {
		case err == nil:
			l.handle, l.placement = h, pl
			return h, nil
		case errors.Is(err, region.ErrUninitialized):
			return nil, region.ErrUninitialized
		}
	}

	return nil, region.ErrNotLocated
}

func (l *Locator) attach(pl Placement) (*region.Handle, error) {
	buf, err := l.window(pl)
	if err != nil {
		return nil, fmt.Errorf("locator: map %s+%#x: %w", pl.Device, pl.Base, err)
	}
	h, err := region.Attach(buf)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// window maps a placement, reusing the candidate mapping when Bootstrap
// follows a Locate on the same placement.
func (l *Locator) window(pl Placement) ([]byte, error) {
	if l.cand != nil && pl == l.candPlacement {
		return l.cand, nil
	}
	buf, err := l.mapFn(pl.Device, pl.Base, pl.Size)
	if err == nil {
		l.cand, l.candPlacement = buf, pl
	}
	return buf, err
}

// Bootstrap runs the first-boot path: it initializes a header in the blank
// block the preceding Locate found and caches the result. Bootstrap only
// ever follows a Locate that reported region.ErrUninitialized; a block that
// became valid in the meantime is attached, not re-initialized.
func (l *Locator) Bootstrap(bootID [16]byte) (*region.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle != nil {
		return l.handle, nil
	}
	if l.cand == nil {
		return nil, region.ErrNotLocated
	}
	h, err := region.Initialize(l.cand, bootID)
	if errors.Is(err, region.ErrAlreadyInitialized) {
		h, err = region.Attach(l.cand)
	}
	if err != nil {
		return nil, err
	}
	l.handle, l.placement = h, l.candPlacement
	return h, nil
}

// Placement returns where the located region lives, for hand-off
// publication. ok is false until a Locate or Bootstrap has succeeded.
func (l *Locator) Placement() (Placement, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.placement, l.handle != nil
}
