// Package snapshot extracts a located region into a portable file for
// post-boot analysis. The region itself is volatile; a snapshot is the
// out-of-band copy a diagnostic host pulls before power-off.
//
// File layout: magic, one zstd-compressed block of length-framed entry
// records, then a fixed footer with the entry count, tick range, and a
// BLAKE2b-256 digest of the compressed block.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"github.com/firmcore/bootlog/internal/region"
)

var Magic = []byte("BOOTSNP1")

var (
	ErrInvalidMagic = errors.New("snapshot: invalid file magic")
	ErrDigest       = errors.New("snapshot: digest mismatch")
)

const footerSize = 4 + 8 + 8 + blake2b.Size256

// Write captures the region's complete entries into filename.
func Write(filename string, h *region.Handle) error {
	if h == nil {
		return region.ErrNotLocated
	}
	entries := h.Entries()

	// Frame each record as [len u32][entry bytes] inside the block.
	raw := new(bytes.Buffer)
	var minTicks, maxTicks uint64
	for i, e := range entries {
		if i == 0 || e.Ticks < minTicks {
			minTicks = e.Ticks
		}
		if e.Ticks > maxTicks {
			maxTicks = e.Ticks
		}
		rec := encodeEntry(e)
		binary.Write(raw, binary.LittleEndian, uint32(len(rec)))
		raw.Write(rec)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	defer enc.Close()
	compressed := enc.EncodeAll(raw.Bytes(), make([]byte, 0, raw.Len()))

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(Magic); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(compressed))); err != nil {
		return err
	}
	if _, err := f.Write(compressed); err != nil {
		return err
	}

	digest := blake2b.Sum256(compressed)
	if err := binary.Write(f, binary.LittleEndian, uint32(len(entries))); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, minTicks); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, maxTicks); err != nil {
		return err
	}
	_, err = f.Write(digest[:])
	return err
}

// Read verifies and decodes a snapshot file.
func Read(filename string) ([]region.Entry, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, Magic) {
		return nil, ErrInvalidMagic
	}

	var size uint32
	if err := binary.Read(f, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	compressed := make([]byte, size)
	if _, err := io.ReadFull(f, compressed); err != nil {
		return nil, err
	}

	footer := make([]byte, footerSize)
	if _, err := io.ReadFull(f, footer); err != nil {
		return nil, err
	}
	count := binary.LittleEndian.Uint32(footer[0:4])
	digest := blake2b.Sum256(compressed)
	if !bytes.Equal(digest[:], footer[20:]) {
		return nil, ErrDigest
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, err
	}

	entries := make([]region.Entry, 0, count)
	buf := bytes.NewReader(raw)
	for buf.Len() > 0 {
		var n uint32
		if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
			return entries, fmt.Errorf("snapshot: frame length: %w", err)
		}
		rec := make([]byte, n)
		if _, err := io.ReadFull(buf, rec); err != nil {
			return entries, fmt.Errorf("snapshot: frame body: %w", err)
		}
		e, _, err := region.DecodeEntry(rec, 0)
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
	if uint32(len(entries)) != count {
		return entries, fmt.Errorf("snapshot: entry count mismatch: footer %d, decoded %d", count, len(entries))
	}
	return entries, nil
}

// encodeEntry re-serializes a decoded entry in the region's record format.
func encodeEntry(e region.Entry) []byte {
	rec := make([]byte, region.EntryHeaderSize+len(e.Payload))
	binary.LittleEndian.PutUint16(rec[0:], region.EntrySignature)
	rec[2] = e.Flags
	rec[3] = e.Phase
	binary.LittleEndian.PutUint32(rec[4:], e.Level)
	binary.LittleEndian.PutUint64(rec[8:], e.Ticks)
	binary.LittleEndian.PutUint16(rec[16:], uint16(len(e.Payload)))
	copy(rec[region.EntryHeaderSize:], e.Payload)
	return rec
}
