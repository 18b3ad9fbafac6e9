package snapshot

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/firmcore/bootlog/internal/encode"
	"github.com/firmcore/bootlog/internal/region"
	"github.com/firmcore/bootlog/internal/ring"
)

func populatedRegion(t *testing.T) *region.Handle {
	t.Helper()
	h, err := region.Initialize(make([]byte, region.HeaderSize+4096), [16]byte{7})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r := ring.New(h)
	enc := encode.New(encode.NewClock(), 0)
	for _, msg := range []string{"memory init done", "pci enumeration", "boot device found"} {
		if err := r.Append(enc.Encode(nil, 0x40, 1, []byte(msg))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return h
}

func TestSnapshot_Roundtrip(t *testing.T) {
	h := populatedRegion(t)
	path := filepath.Join(t.TempDir(), "boot.snap")

	if err := Write(path, h); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	want := h.Entries()
	if len(got) != len(want) {
		t.Fatalf("decoded %d entries, want %d", len(got), len(want))
	}
	for i := range got {
		if !bytes.Equal(got[i].Payload, want[i].Payload) {
			t.Errorf("entry %d payload = %q, want %q", i, got[i].Payload, want[i].Payload)
		}
		if got[i].Ticks != want[i].Ticks || got[i].Level != want[i].Level || got[i].Phase != want[i].Phase {
			t.Errorf("entry %d header mismatch", i)
		}
	}
}

func TestSnapshot_EmptyRegion(t *testing.T) {
	h, err := region.Initialize(make([]byte, region.HeaderSize+256), [16]byte{7})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "empty.snap")
	if err := Write(path, h); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("decoded %d entries from empty region", len(got))
	}
}

func TestSnapshot_NotLocated(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "x.snap"), nil)
	if !errors.Is(err, region.ErrNotLocated) {
		t.Errorf("got %v, want ErrNotLocated", err)
	}
}

func TestSnapshot_DigestMismatch(t *testing.T) {
	h := populatedRegion(t)
	path := filepath.Join(t.TempDir(), "boot.snap")
	if err := Write(path, h); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(Magic)+6] ^= 0x01 // flip a bit inside the compressed block
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Read(path); !errors.Is(err, ErrDigest) {
		t.Errorf("got %v, want ErrDigest", err)
	}
}

func TestSnapshot_BadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.snap")
	if err := os.WriteFile(path, []byte("DEFINITELYNOTASNAPSHOT"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("got %v, want ErrInvalidMagic", err)
	}
}
