package locator

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapDevice is the default MapFunc: it maps [base, base+size) of the
// platform memory device read-write and shared, so every phase that maps
// the same placement sees the same bytes. The mapping is never unmapped;
// the region's lifetime is the boot, not any single phase.
func mapDevice(device string, base int64, size uint32) ([]byte, error) {
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// mmap offsets must be page aligned; map from the enclosing page and
	// slice down to the requested window.
	page := int64(unix.Getpagesize())
	aligned := base &^ (page - 1)
	skew := int(base - aligned)

	buf, err := unix.Mmap(int(f.Fd()), aligned, skew+int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return buf[skew : skew+int(size)], nil
}
