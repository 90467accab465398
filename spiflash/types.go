package spiflash

import (
	"strings"
	"time"
)

type JEDECID struct {
	Manufacturer uint8
	MemoryType   uint8
	Capacity     uint8
}

func (id JEDECID) Bytes() [3]byte {
	return [3]byte{id.Manufacturer, id.MemoryType, id.Capacity}
}

// Geometry describes a supported flash part. The sector is the region erased
// by OpSectorErase, which is the 64KiB block erase on the Winbond parts.
type Geometry struct {
	Name string
	ID   JEDECID

	PageSize   uint32
	SectorSize uint32
	Capacity   uint32

	/* Rated maximum duration of one page program and one sector erase */
	ProgramTime time.Duration
	EraseTime   time.Duration
}

var devices = []Geometry{
	{Name: "W25Q128JV", ID: JEDECID{0xEF, 0x40, 0x18}, PageSize: 256, SectorSize: 64 * 1024, Capacity: 16 * 1024 * 1024, ProgramTime: 3 * time.Millisecond, EraseTime: 2 * time.Second},
	{Name: "W25Q64JV", ID: JEDECID{0xEF, 0x40, 0x17}, PageSize: 256, SectorSize: 64 * 1024, Capacity: 8 * 1024 * 1024, ProgramTime: 3 * time.Millisecond, EraseTime: 2 * time.Second},
	{Name: "W25Q32JV", ID: JEDECID{0xEF, 0x40, 0x16}, PageSize: 256, SectorSize: 64 * 1024, Capacity: 4 * 1024 * 1024, ProgramTime: 3 * time.Millisecond, EraseTime: 2 * time.Second},
	{Name: "W25X20", ID: JEDECID{0xEF, 0x30, 0x12}, PageSize: 256, SectorSize: 64 * 1024, Capacity: 256 * 1024, ProgramTime: 3 * time.Millisecond, EraseTime: time.Second},
}

// W25Q128JV is the default geometry.
var W25Q128JV = devices[0]

func Lookup(id JEDECID) (Geometry, bool) {
	for _, m := range devices {
		if m.ID == id {
			return m, true
		}
	}
	return Geometry{}, false
}

func GeometryByName(name string) (Geometry, bool) {
	for _, m := range devices {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Geometry{}, false
}

func Devices() []Geometry {
	return append([]Geometry(nil), devices...)
}

func isPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

func (g Geometry) validate() bool {
	return isPowerOfTwo(g.PageSize) && isPowerOfTwo(g.SectorSize) &&
		g.PageSize <= g.SectorSize && g.SectorSize <= g.Capacity &&
		g.Capacity <= maxAddressable && g.Capacity%g.SectorSize == 0
}
