package c64

// ReadWriter is the bus handle passed to every chip that can master or
// answer the bus.
type ReadWriter interface {
	Read8(addr uint16) uint8
	Write8(addr uint16, data uint8)
}

// processorPort is the 6510 on-chip I/O port at $0000/$0001. The low
// three output bits drive the PLA bank lines. The latch reads back the
// last written value; bits configured as inputs float high on a stock
// machine because the bank lines are pulled up.
type processorPort struct {
	ddr  uint8
	data uint8
}

func (p processorPort) lines() uint8 {
	return p.data | ^p.ddr
}

func (p processorPort) bank() bankConfig {
	lines := p.lines()
	return bankConfig{
		loram:  lines&0x01 != 0,
		hiram:  lines&0x02 != 0,
		charen: lines&0x04 != 0,
	}
}

// Memory layout of the I/O window at $D000-$DFFF:
//
//	$D000-$D3FF: VIC-II registers, mirrored every 64 bytes
//	$D400-$D7FF: SID registers, mirrored every 32 bytes
//	$D800-$DBFF: colour RAM (4-bit wide)
//	$DC00-$DCFF: CIA 1, registers mirrored every 16 bytes
//	$DD00-$DDFF: CIA 2, registers mirrored every 16 bytes
//	$DE00-$DFFF: expansion port, open bus here (no cartridge)
type Bus struct {
	ram      [0x10000]uint8
	colorRAM [0x400]uint8

	basic   *ROM
	kernal  *ROM
	charROM *ROM

	port processorPort

	vic  *VIC
	cia1 *CIA
	cia2 *CIA

	// The SID's audio path is an external collaborator; the bus keeps
	// only its register latch so software that polls or programs it
	// behaves.
	sid [0x20]uint8
}

func (b *Bus) reset() {
	// DDR and data register power-on values; all three bank lines end
	// up high, the standard BASIC/KERNAL/IO configuration.
	b.port.ddr = 0x2f
	b.port.data = 0x37
}

func (b *Bus) Read8(addr uint16) uint8 {
	switch addr {
	case 0x0000:
		return b.port.ddr
	case 0x0001:
		return b.port.data
	}

	switch b.port.bank().resolve(addr, false) {
	case bankBasic:
		return b.basic.Read8(addr - 0xa000)
	case bankKernal:
		return b.kernal.Read8(addr - 0xe000)
	case bankCharROM:
		return b.charROM.Read8(addr - 0xd000)
	case bankIO:
		return b.readIO(addr)
	}
	return b.ram[addr]
}

func (b *Bus) Write8(addr uint16, data uint8) {
	switch addr {
	case 0x0000:
		b.port.ddr = data
		return
	case 0x0001:
		b.port.data = data
		return
	}

	if b.port.bank().resolve(addr, true) == bankIO {
		b.writeIO(addr, data)
		return
	}
	// ROM targets decode to RAM on writes: the overlay is read-only
	// and the store lands underneath it.
	b.ram[addr] = data
}

// Peek8 reads without bus side effects, for monitors and debuggers.
// Chip registers whose reads acknowledge state are not touched; the
// I/O window reads as open bus.
func (b *Bus) Peek8(addr uint16) uint8 {
	switch addr {
	case 0x0000:
		return b.port.ddr
	case 0x0001:
		return b.port.data
	}
	switch b.port.bank().resolve(addr, false) {
	case bankBasic:
		return b.basic.Read8(addr - 0xa000)
	case bankKernal:
		return b.kernal.Read8(addr - 0xe000)
	case bankCharROM:
		return b.charROM.Read8(addr - 0xd000)
	case bankIO:
		return 0xff
	}
	return b.ram[addr]
}

func (b *Bus) readIO(addr uint16) uint8 {
	switch {
	case addr < 0xd400:
		return b.vic.readRegister(addr & 0x3f)
	case addr < 0xd800:
		return b.sid[addr&0x1f]
	case addr < 0xdc00:
		// upper nibble is open bus on real hardware
		return b.colorRAM[addr&0x3ff] & 0x0f
	case addr < 0xdd00:
		return b.cia1.readRegister(addr & 0x0f)
	case addr < 0xde00:
		return b.cia2.readRegister(addr & 0x0f)
	}
	// expansion port, no cartridge
	return 0xff
}

func (b *Bus) writeIO(addr uint16, data uint8) {
	switch {
	case addr < 0xd400:
		b.vic.writeRegister(addr&0x3f, data)
	case addr < 0xd800:
		b.sid[addr&0x1f] = data
	case addr < 0xdc00:
		b.colorRAM[addr&0x3ff] = data & 0x0f
	case addr < 0xdd00:
		b.cia1.writeRegister(addr&0x0f, data)
	case addr < 0xde00:
		b.cia2.writeRegister(addr&0x0f, data)
	}
}

// vicRead serves the VIC's own fetches. The VIC sees 16 KB at a time,
// selected by the inverted low bits of CIA 2 port A, and reads the
// character ROM instead of RAM at $1000/$9000 in banks 0 and 2.
func (b *Bus) vicRead(addr uint16) uint8 {
	bank := uint16(^b.cia2.portAOut()) & 0x03
	full := bank<<14 | addr&0x3fff
	if full&0x7000 == 0x1000 {
		return b.charROM.Read8(full & 0x0fff)
	}
	return b.ram[full]
}

// vicColor serves the VIC's colour RAM fetches, which bypass banking.
func (b *Bus) vicColor(offset uint16) uint8 {
	return b.colorRAM[offset&0x3ff] & 0x0f
}
