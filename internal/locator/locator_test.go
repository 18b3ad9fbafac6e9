package locator

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/firmcore/bootlog/internal/handoff"
	"github.com/firmcore/bootlog/internal/platform"
	"github.com/firmcore/bootlog/internal/region"
)

var bootID = [16]byte{0xAA, 0xBB}

// fakeDevices maps device names to backing memory, standing in for the
// platform memory device in place of mmap.
type fakeDevices map[string][]byte

func (d fakeDevices) mapFn(device string, base int64, size uint32) ([]byte, error) {
	buf, ok := d[device]
	if !ok {
		return nil, errors.New("no such device")
	}
	if base < 0 || base+int64(size) > int64(len(buf)) {
		return nil, errors.New("window out of range")
	}
	return buf[base : base+int64(size)], nil
}

func initialized(t *testing.T, size int) []byte {
	t.Helper()
	buf := make([]byte, size)
	if _, err := region.Initialize(buf, bootID); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return buf
}

func TestLocate_NothingConfigured(t *testing.T) {
	l := New(platform.Params{}, fakeDevices{}.mapFn)
	if _, err := l.Locate(); !errors.Is(err, region.ErrNotLocated) {
		t.Errorf("got %v, want ErrNotLocated", err)
	}
}

func TestLocate_MissingHandoffNoFixedRegion(t *testing.T) {
	l := New(platform.Params{HandoffPath: filepath.Join(t.TempDir(), "none")}, fakeDevices{}.mapFn)
	if _, err := l.Locate(); !errors.Is(err, region.ErrNotLocated) {
		t.Errorf("got %v, want ErrNotLocated", err)
	}
}

func TestLocate_FixedRegion(t *testing.T) {
	devs := fakeDevices{"ram": initialized(t, region.HeaderSize+512)}
	l := New(platform.Params{Device: "ram", Size: region.HeaderSize + 512}, devs.mapFn)

	h, err := l.Locate()
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if h.BootID() != bootID {
		t.Error("located wrong region")
	}

	// Idempotent: the second call returns the identical handle.
	h2, err := l.Locate()
	if err != nil {
		t.Fatalf("second Locate: %v", err)
	}
	if h != h2 {
		t.Error("Locate not idempotent: handles differ")
	}

	pl, ok := l.Placement()
	if !ok || pl.Device != "ram" || pl.Size != region.HeaderSize+512 {
		t.Errorf("Placement = %+v, %v", pl, ok)
	}
}

func TestLocate_BlankThenBootstrap(t *testing.T) {
	devs := fakeDevices{"ram": make([]byte, region.HeaderSize+512)}
	l := New(platform.Params{Device: "ram", Size: region.HeaderSize + 512}, devs.mapFn)

	if _, err := l.Locate(); !errors.Is(err, region.ErrUninitialized) {
		t.Fatalf("Locate over blank memory: got %v, want ErrUninitialized", err)
	}

	h, err := l.Bootstrap(bootID)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if h.BootID() != bootID {
		t.Error("bootstrap did not stamp boot id")
	}

	// Once bootstrapped, Locate serves the cached handle.
	h2, err := l.Locate()
	if err != nil || h2 != h {
		t.Errorf("Locate after Bootstrap: %v, same=%v", err, h2 == h)
	}
}

func TestBootstrap_WithoutCandidate(t *testing.T) {
	l := New(platform.Params{}, fakeDevices{}.mapFn)
	if _, err := l.Bootstrap(bootID); !errors.Is(err, region.ErrNotLocated) {
		t.Errorf("got %v, want ErrNotLocated", err)
	}
}

func TestBootstrap_RacedInitialization(t *testing.T) {
	// Another context initialized the block between Locate and Bootstrap;
	// Bootstrap must attach, not re-initialize.
	devs := fakeDevices{"ram": make([]byte, region.HeaderSize+512)}
	l := New(platform.Params{Device: "ram", Size: region.HeaderSize + 512}, devs.mapFn)
	if _, err := l.Locate(); !errors.Is(err, region.ErrUninitialized) {
		t.Fatalf("Locate: %v", err)
	}

	if _, err := region.Initialize(devs["ram"], bootID); err != nil {
		t.Fatalf("out-of-band Initialize: %v", err)
	}

	other := [16]byte{0x11}
	h, err := l.Bootstrap(other)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if h.BootID() != bootID {
		t.Error("Bootstrap re-initialized an already-valid header")
	}
}

func TestLocate_PrefersHandoff(t *testing.T) {
	devs := fakeDevices{
		"early": initialized(t, region.HeaderSize+256),
		"fixed": initialized(t, region.HeaderSize+512),
	}
	path := filepath.Join(t.TempDir(), "handoff")
	err := handoff.Publish(path, handoff.Record{
		Device: "early",
		Size:   region.HeaderSize + 256,
		BootID: bootID[:],
		Phase:  1,
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	l := New(platform.Params{
		Device:      "fixed",
		Size:        region.HeaderSize + 512,
		HandoffPath: path,
	}, devs.mapFn)

	h, err := l.Locate()
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if h.Size() != region.HeaderSize+256 {
		t.Errorf("located region size %d: hand-off record should win over fixed placement", h.Size())
	}
}

func TestLocate_BadHandoffFallsBack(t *testing.T) {
	devs := fakeDevices{"fixed": initialized(t, region.HeaderSize+512)}
	path := filepath.Join(t.TempDir(), "handoff")
	err := handoff.Publish(path, handoff.Record{
		Device: "gone", // device no longer addressable in this phase
		Size:   region.HeaderSize + 256,
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	l := New(platform.Params{
		Device:      "fixed",
		Size:        region.HeaderSize + 512,
		HandoffPath: path,
	}, devs.mapFn)

	h, err := l.Locate()
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if h.Size() != region.HeaderSize+512 {
		t.Errorf("expected fallback to fixed placement, got size %d", h.Size())
	}
}
