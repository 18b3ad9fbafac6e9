// Package platform parses the configuration parameters the host platform
// supplies to the logging core.
package platform

import (
	"fmt"

	"github.com/valyala/fastjson"
)

// Params is the platform configuration consumed by the core. Device and
// Base name the shared region's location inside the platform memory device;
// an empty Device (or zero Size) means "no fixed address, use the hand-off
// record". MirrorMask is the level mask below which the hardware mirror
// suppresses output (zero passes everything).
type Params struct {
	Device      string
	Base        int64
	Size        uint32
	HandoffPath string
	MirrorMask  uint32
	MaxPayload  int
}

// HasFixedRegion reports whether the parameters pin the region to a fixed
// location, making the hand-off record an optimization rather than the only
// discovery source.
func (p Params) HasFixedRegion() bool {
	return p.Device != "" && p.Size != 0
}

var pool fastjson.ParserPool

// Parse reads a JSON parameter blob:
//
//	{
//	  "memory_device": "/dev/shm/bootlog",
//	  "base_address": 0,
//	  "region_size": 65536,
//	  "handoff_path": "/run/bootlog.handoff",
//	  "mirror_mask": 2147483715,
//	  "max_payload": 512
//	}
//
// Absent fields default to zero values; an empty blob is valid and yields
// hand-off-only discovery with an unfiltered mirror.
func Parse(data []byte) (Params, error) {
	if len(data) == 0 {
		return Params{}, nil
	}
	p := pool.Get()
	defer pool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return Params{}, fmt.Errorf("platform: parse params: %w", err)
	}
	return Params{
		Device:      string(v.GetStringBytes("memory_device")),
		Base:        v.GetInt64("base_address"),
		Size:        uint32(v.GetUint64("region_size")),
		HandoffPath: string(v.GetStringBytes("handoff_path")),
		MirrorMask:  uint32(v.GetUint64("mirror_mask")),
		MaxPayload:  v.GetInt("max_payload"),
	}, nil
}
