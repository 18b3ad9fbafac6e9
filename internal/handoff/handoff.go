// Package handoff publishes and discovers the phase-to-phase record that
// carries the shared region's location forward across a boot. The record is
// a small CBOR document at a platform-discoverable path; its format is
// stable for the duration of a boot.
package handoff

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// Magic identifies a hand-off record produced by this core.
const Magic = "BOOTLOG-HANDOFF"

// Version of the record format.
const Version uint16 = 1

var (
	ErrNotFound  = errors.New("handoff: no record")
	ErrBadRecord = errors.New("handoff: invalid record")
)

// Record locates the shared region for the next phase. Base and Size are in
// bytes within the platform memory device.
type Record struct {
	Magic   string `cbor:"magic"`
	Version uint16 `cbor:"version"`
	Device  string `cbor:"device"`
	Base    int64  `cbor:"base"`
	Size    uint32 `cbor:"size"`
	BootID  []byte `cbor:"boot_id"`
	Phase   uint8  `cbor:"phase"`
}

// Publish writes the record at path. The write goes through a temp file and
// rename so a reader never observes a half-written record and the discovery
// path stays usable for unrelated consumers. Called at most once per phase.
func Publish(path string, rec Record) error {
	rec.Magic = Magic
	rec.Version = Version
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("handoff: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("handoff: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("handoff: publish: %w", err)
	}
	return nil
}

// Discover reads and validates the record at path. A missing file is
// ErrNotFound; anything unparseable or from a different producer is
// ErrBadRecord.
func Discover(path string) (Record, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("handoff: read: %w", err)
	}
	var rec Record
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return Record{}, ErrBadRecord
	}
	if rec.Magic != Magic || rec.Version != Version {
		return Record{}, ErrBadRecord
	}
	if rec.Device == "" || rec.Size == 0 {
		return Record{}, ErrBadRecord
	}
	return rec, nil
}
