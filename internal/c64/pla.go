package c64

// The PLA decides, for every bus access, which physical store answers:
// RAM, one of the three ROMs, or the I/O block. The decode is a pure
// function of the address and the three bank-control lines held in the
// processor port at $0001. The cartridge lines (EXROM/GAME) are fixed
// inactive here, which reduces the original truth table to the five
// targets below.
//
// $A000-$BFFF: BASIC ROM when LORAM and HIRAM are both set.
// $D000-$DFFF: I/O when CHAREN is set and at least one of LORAM/HIRAM
// is set, character ROM when CHAREN is clear and at least one of
// LORAM/HIRAM is set, RAM otherwise.
// $E000-$FFFF: KERNAL ROM when HIRAM is set.
// Everything else: RAM.
//
// ROM is a read-only overlay: a write decoded to a ROM target lands in
// the RAM underneath instead, so the PLA never returns a ROM target for
// a write.
type bankTarget uint8

const (
	bankRAM bankTarget = iota
	bankBasic
	bankKernal
	bankCharROM
	bankIO
)

func (t bankTarget) String() string {
	switch t {
	case bankRAM:
		return "RAM"
	case bankBasic:
		return "BASIC"
	case bankKernal:
		return "KERNAL"
	case bankCharROM:
		return "CHAROM"
	case bankIO:
		return "IO"
	}
	return "???"
}

// bankConfig mirrors the low three bits of the processor port.
type bankConfig struct {
	loram  bool
	hiram  bool
	charen bool
}

func (b bankConfig) resolve(addr uint16, write bool) bankTarget {
	switch {
	case addr >= 0xe000:
		if b.hiram && !write {
			return bankKernal
		}
	case addr >= 0xd000:
		// I/O and character ROM share the window. RAM shows through
		// only when both ROM banks are switched out.
		if !b.loram && !b.hiram {
			return bankRAM
		}
		if b.charen {
			return bankIO
		}
		if !write {
			return bankCharROM
		}
	case addr >= 0xa000 && addr < 0xc000:
		if b.loram && b.hiram && !write {
			return bankBasic
		}
	}
	return bankRAM
}
