package c64

import "fmt"

const (
	basicROMSize  = 0x2000
	kernalROMSize = 0x2000
	charROMSize   = 0x1000
)

// ROM is a fixed-size read-only image. Writes never reach it; the bus
// discards them into the RAM underneath the ROM window.
type ROM struct {
	name string
	data []uint8
}

func newROM(name string, data []uint8, size int) (*ROM, error) {
	if len(data) != size {
		return nil, fmt.Errorf("%s rom: expected %d bytes, got %d", name, size, len(data))
	}
	r := &ROM{
		name: name,
		data: make([]uint8, size),
	}
	copy(r.data, data)
	return r, nil
}

// Read8 expects an offset relative to the start of the ROM window.
func (r *ROM) Read8(offset uint16) uint8 {
	return r.data[int(offset)%len(r.data)]
}
