package c64

import (
	"errors"
	"fmt"
)

const stackStartAddr = uint16(0x100)

const (
	vectorNMI   = uint16(0xfffa)
	vectorReset = uint16(0xfffc)
	vectorIRQ   = uint16(0xfffe)
)

const (
	flagC = uint8(1 << iota) // Carry
	flagZ                    // Zero
	flagI                    // Interrupt Disable
	flagD                    // Decimal Mode
	flagB                    // Break Command
	flagU                    // Unused, reads as set
	flagV                    // Overflow
	flagN                    // Negative
)

// ErrCPUJammed reports that the CPU fetched one of the twelve JAM
// opcodes, which lock up the real chip until reset. Surfaced as an
// error because continuing would silently diverge from the hardware.
var ErrCPUJammed = errors.New("cpu jammed")

type addrMode uint8

const (
	addrModeIMM  addrMode = iota + 1 // Immediate
	addrModeZP                       // Zero Page
	addrModeZPX                      // Zero Page X
	addrModeZPY                      // Zero Page Y
	addrModeABS                      // Absolute
	addrModeABSX                     // Absolute X
	addrModeABSY                     // Absolute Y
	addrModeIND                      // Indirect
	addrModeINDX                     // Indirect X
	addrModeINDY                     // Indirect Y
	addrModeREL                      // Relative
	addrModeACC                      // Accumulator
	addrModeIMP                      // Implied
)

func (mode addrMode) String() string {
	switch mode {
	case addrModeIMM:
		return "IMM"
	case addrModeZP:
		return "ZP"
	case addrModeZPX:
		return "ZPX"
	case addrModeZPY:
		return "ZPY"
	case addrModeABS:
		return "ABS"
	case addrModeABSX:
		return "ABSX"
	case addrModeABSY:
		return "ABSY"
	case addrModeIND:
		return "IND"
	case addrModeINDX:
		return "INDX"
	case addrModeINDY:
		return "INDY"
	case addrModeREL:
		return "REL"
	case addrModeACC:
		return "ACC"
	case addrModeIMP:
		return "IMP"
	}
	return "???"
}

type instr struct {
	name   string
	mode   addrMode
	fn     func()
	cycles uint8
	jam    bool
}

// CPU is the 6510 execution engine. Each instruction occupies exactly
// its documented number of Tic calls: the first call decodes and
// applies the instruction, the remaining calls count down the cycles
// the real chip spends on its bus sequence. The countdown freezes while
// the VIC steals the bus, so bad-line and sprite DMA costs land on the
// CPU exactly.
type CPU struct {
	a  uint8
	x  uint8
	y  uint8
	p  uint8
	sp uint8
	pc uint16

	mem    ReadWriter
	instrs [0x100]instr

	// cycles is the micro-step counter: cycles left in the current
	// instruction or interrupt sequence
	cycles      uint8
	totalCycles uint64

	addrMode     addrMode
	operandAddr  uint16
	operandValue uint8
	pageCrossed  bool

	irqLine    bool
	nmiLine    bool
	nmiPending bool
}

func isSameSign(a, b uint8) bool {
	return (a^b)&0x80 == 0
}

func isDiffPage(a, b uint16) bool {
	return a&0xff00 != b&0xff00
}

func NewCPU(mem ReadWriter) *CPU {
	c := &CPU{
		mem: mem,
	}
	c.initInstructions()
	return c
}

func (c CPU) read8(addr uint16) uint8 {
	return c.mem.Read8(addr)
}

func (c CPU) read16(addr uint16) uint16 {
	return uint16(c.read8(addr)) | uint16(c.read8(addr+1))<<8
}

func (c *CPU) write8(addr uint16, data uint8) {
	c.mem.Write8(addr, data)
}

func (c CPU) getFlag(flag uint8) bool {
	return c.p&flag > 0
}

func (c *CPU) setFlag(flag uint8, v bool) {
	if v {
		c.p |= flag
		return
	}
	c.p &= ^flag
}

func (c *CPU) setFlagsZN(value uint8) {
	c.setFlag(flagZ, value == 0)
	c.setFlag(flagN, value&flagN > 0)
}

func (c *CPU) stackPop8() uint8 {
	c.sp++
	return c.read8(stackStartAddr | uint16(c.sp))
}

func (c *CPU) stackPop16() uint16 {
	lo := uint16(c.stackPop8())
	hi := uint16(c.stackPop8())
	return lo | hi<<8
}

func (c *CPU) stackPush8(data uint8) {
	c.write8(stackStartAddr|uint16(c.sp), data)
	c.sp--
}

func (c *CPU) stackPush16(data uint16) {
	lo := uint8(data & 0xff)
	hi := uint8(data >> 8)
	c.stackPush8(hi)
	c.stackPush8(lo)
}

// Reset puts the CPU into its documented power-on state and loads the
// program counter from the reset vector. The seven start-up cycles the
// real chip spends before the first fetch are honoured.
func (c *CPU) Reset() {
	c.a = 0
	c.x = 0
	c.y = 0
	c.p = 0x00 | flagU | flagI
	c.sp = 0xfd
	c.pc = c.read16(vectorReset)
	c.cycles = 7
	c.totalCycles = 7
	c.irqLine = false
	c.nmiLine = false
	c.nmiPending = false
}

// SetIRQ drives the maskable interrupt line. Level sensitive: it is
// sampled at the next instruction boundary and honoured when the
// interrupt-disable flag is clear.
func (c *CPU) SetIRQ(level bool) {
	c.irqLine = level
}

// SetNMI drives the non-maskable interrupt line. Edge triggered: only
// a low-to-high transition arms the interrupt, and it cannot be masked.
func (c *CPU) SetNMI(level bool) {
	if level && !c.nmiLine {
		c.nmiPending = true
	}
	c.nmiLine = level
}

// interrupt runs the hardware interrupt acknowledge sequence: push the
// return address and status (break flag clear, distinguishing it from
// BRK), set interrupt-disable, fetch the vector. Seven cycles.
func (c *CPU) interrupt(vector uint16) {
	c.stackPush16(c.pc)
	c.stackPush8(c.p&^flagB | flagU)
	c.setFlag(flagI, true)
	c.pc = c.read16(vector)
	c.cycles = 7
}

// Tic advances the CPU by one clock cycle. The caller must not invoke
// it on cycles where the bus is stolen; the in-flight instruction then
// simply resumes on the next granted cycle.
func (c *CPU) Tic() error {
	if c.cycles > 0 {
		c.cycles--
		return nil
	}

	// instruction boundary: this is the only point where the interrupt
	// lines are honoured, NMI ahead of IRQ when both are pending
	if c.nmiPending {
		c.nmiPending = false
		c.interrupt(vectorNMI)
		c.totalCycles += uint64(c.cycles)
		c.cycles--
		return nil
	}
	if c.irqLine && !c.getFlag(flagI) {
		c.interrupt(vectorIRQ)
		c.totalCycles += uint64(c.cycles)
		c.cycles--
		return nil
	}

	opcode := c.read8(c.pc)
	instr := c.instrs[opcode]
	if instr.jam {
		return fmt.Errorf("opcode %02X at PC %04X: %w", opcode, c.pc, ErrCPUJammed)
	}
	if instr.fn == nil {
		return fmt.Errorf("cpu: opcode %02X at PC %04X has no behaviour", opcode, c.pc)
	}
	c.pc++

	c.fetch(instr.mode)
	instr.fn()
	c.cycles += instr.cycles
	c.totalCycles += uint64(c.cycles)

	c.addrMode = 0
	c.operandAddr = 0
	c.operandValue = 0
	c.pageCrossed = false

	// this call is the instruction's first cycle
	c.cycles--
	return nil
}

// TotalCycles reports the number of cycles consumed since reset,
// including the cycles of the instruction currently in flight.
func (c *CPU) TotalCycles() uint64 {
	return c.totalCycles
}

// CPUState is a point-in-time register snapshot for debuggers and
// external monitors.
type CPUState struct {
	A  uint8
	X  uint8
	Y  uint8
	P  uint8
	SP uint8
	PC uint16

	Cycles uint64
}

func (s CPUState) StatusString() string {
	flags := []byte("nv-bdizc")
	for i, bit := range []uint8{flagN, flagV, flagU, flagB, flagD, flagI, flagZ, flagC} {
		if s.P&bit != 0 {
			flags[i] ^= 0x20
		}
	}
	return string(flags)
}

func (c *CPU) State() CPUState {
	return CPUState{
		A:      c.a,
		X:      c.x,
		Y:      c.y,
		P:      c.p,
		SP:     c.sp,
		PC:     c.pc,
		Cycles: c.totalCycles,
	}
}

// mnemonic names the opcode for front-end labelling; the core has no
// disassembler.
func (c *CPU) mnemonic(opcode uint8) string {
	in := c.instrs[opcode]
	if in.name == "" {
		return "???"
	}
	return fmt.Sprintf("%s {%s}", in.name, in.mode)
}

// fetch resolves the operand for the current instruction.
func (c *CPU) fetch(addrMode addrMode) {
	c.addrMode = addrMode
	c.pageCrossed = false
	c.operandAddr = 0
	c.operandValue = 0

	switch addrMode {
	case addrModeIMM:
		c.operandAddr = c.pc
		c.pc++
		c.operandValue = c.read8(c.operandAddr)

	case addrModeZP:
		c.operandAddr = uint16(c.read8(c.pc))
		c.pc++
		c.operandValue = c.read8(c.operandAddr)

	case addrModeZPX:
		c.operandAddr = uint16(c.read8(c.pc) + c.x)
		c.pc++
		c.operandValue = c.read8(c.operandAddr)

	case addrModeZPY:
		c.operandAddr = uint16(c.read8(c.pc) + c.y)
		c.pc++
		c.operandValue = c.read8(c.operandAddr)

	case addrModeABS:
		c.operandAddr = c.read16(c.pc)
		c.pc += 2
		c.operandValue = c.read8(c.operandAddr)

	case addrModeABSX:
		baseAddr := c.read16(c.pc)
		c.pc += 2
		c.operandAddr = baseAddr + uint16(c.x)
		c.operandValue = c.read8(c.operandAddr)
		c.pageCrossed = isDiffPage(baseAddr, c.operandAddr)

	case addrModeABSY:
		baseAddr := c.read16(c.pc)
		c.pc += 2
		c.operandAddr = baseAddr + uint16(c.y)
		c.operandValue = c.read8(c.operandAddr)
		c.pageCrossed = isDiffPage(baseAddr, c.operandAddr)

	case addrModeIND:
		addr := c.read16(c.pc)
		c.pc += 2

		lo := addr
		hi := addr + 1
		if lo&0xff == 0xff { // the 6502 page-wrap bug is real behaviour
			hi = (lo & 0xff00) | uint16((lo+1)&0x00ff)
		}
		c.operandAddr = uint16(c.read8(lo)) | uint16(c.read8(hi))<<8
		c.operandValue = c.read8(c.operandAddr)

	case addrModeINDX:
		addr := uint16(c.read8(c.pc))
		addr = addr + uint16(c.x)
		c.pc++
		lo := uint16(c.read8(addr & 0x00ff))
		hi := uint16(c.read8((addr + 1) & 0x00ff))
		c.operandAddr = lo | hi<<8
		c.operandValue = c.read8(c.operandAddr)

	case addrModeINDY:
		addr := uint16(c.read8(c.pc))
		c.pc++
		lo := uint16(c.read8(addr))
		hi := uint16(c.read8((addr + 1) & 0x00ff))
		addr = lo | hi<<8
		c.operandAddr = addr + uint16(c.y)
		c.operandValue = c.read8(c.operandAddr)
		c.pageCrossed = isDiffPage(addr, c.operandAddr)

	case addrModeREL:
		c.operandAddr = uint16(c.read8(c.pc))
		c.pc++
		if c.operandAddr&0x80 > 0 {
			c.operandAddr |= 0xff00 // sign extend
		}

	case addrModeACC:
		c.operandValue = c.a

	case addrModeIMP:
	}
}

func (c *CPU) adc() {
	if c.getFlag(flagD) {
		c.adcDecimal()
	} else {
		c.adcBinary(c.operandValue)
	}
	if c.pageCrossed {
		c.cycles++
	}
}

func (c *CPU) adcBinary(value uint8) {
	r16 := uint16(c.a) + uint16(value)
	if c.getFlag(flagC) {
		r16++
	}
	r8 := uint8(r16)
	c.setFlag(flagC, r16 > 0xff)
	c.setFlagsZN(r8)
	c.setFlag(flagV, isSameSign(c.a, value) && !isSameSign(c.a, r8))
	c.a = r8
}

// adcDecimal adds in BCD. The carry flag is valid; N, V and Z reflect
// what the silicon actually computes, which is a mix of the decimal
// and binary results.
func (c *CPU) adcDecimal() {
	value := c.operandValue
	carry := uint8(0)
	if c.getFlag(flagC) {
		carry = 1
	}

	al := c.a&0x0f + value&0x0f + carry
	if al >= 0x0a {
		al = (al+0x06)&0x0f + 0x10
	}
	au := uint16(c.a&0xf0) + uint16(value&0xf0) + uint16(al)
	if au >= 0xa0 {
		au += 0x60
	}
	ag := int16(int8(c.a&0xf0)) + int16(int8(value&0xf0)) + int16(int8(al))
	bin := c.a + value + carry

	c.setFlag(flagN, ag&0x80 != 0)
	c.setFlag(flagV, ag < -128 || ag > 127)
	c.setFlag(flagC, au > 0xff)
	c.setFlag(flagZ, bin == 0)
	c.a = uint8(au)
}

func (c *CPU) sbc() {
	if c.getFlag(flagD) {
		c.sbcDecimal()
	} else {
		c.adcBinary(^c.operandValue)
	}
	if c.pageCrossed {
		c.cycles++
	}
}

// sbcDecimal subtracts in BCD. All flags reflect the binary
// subtraction; only the accumulator takes the decimal result.
func (c *CPU) sbcDecimal() {
	value := c.operandValue
	carry := int8(0)
	if c.getFlag(flagC) {
		carry = 1
	}

	al := int8(c.a&0x0f) - int8(value&0x0f) + carry - 1
	if al < 0 {
		al = (al-0x06)&0x0f - 0x10
	}
	a := int16(int8(c.a&0xf0)) - int16(int8(value&0xf0)) + int16(al)
	if a < 0 {
		a -= 0x60
	}

	c.adcBinary(^value)
	c.a = uint8(a)
}

func (c *CPU) and() {
	c.a &= c.operandValue
	c.setFlagsZN(c.a)
	if c.pageCrossed {
		c.cycles++
	}
}

func (c *CPU) asl() {
	c.setFlag(flagC, c.operandValue&0x80 > 0)
	r8 := c.operandValue << 1
	c.setFlagsZN(r8)
	if c.addrMode == addrModeACC {
		c.a = r8
	} else {
		c.write8(c.operandAddr, r8)
	}
}

func (c *CPU) jmpIf(condition bool) {
	if !condition {
		return
	}
	c.cycles++
	addr := c.pc + c.operandAddr
	if isDiffPage(c.pc, addr) {
		c.cycles++
	}
	c.pc = addr
}

func (c *CPU) bcc() {
	c.jmpIf(!c.getFlag(flagC))
}

func (c *CPU) bcs() {
	c.jmpIf(c.getFlag(flagC))
}

func (c *CPU) beq() {
	c.jmpIf(c.getFlag(flagZ))
}

func (c *CPU) bit() {
	m := c.a & c.operandValue
	c.setFlag(flagZ, m == 0)
	c.setFlag(flagN, c.operandValue&flagN > 0)
	c.setFlag(flagV, c.operandValue&flagV > 0)
}

func (c *CPU) bmi() {
	c.jmpIf(c.getFlag(flagN))
}

func (c *CPU) bne() {
	c.jmpIf(!c.getFlag(flagZ))
}

func (c *CPU) bpl() {
	c.jmpIf(!c.getFlag(flagN))
}

// brk is the software interrupt: same sequence as a hardware IRQ but
// the pushed status carries the break flag and the return address
// skips the padding byte.
func (c *CPU) brk() {
	c.pc++
	c.stackPush16(c.pc)
	c.stackPush8(c.p | flagB | flagU)
	c.setFlag(flagI, true)
	c.pc = c.read16(vectorIRQ)
}

func (c *CPU) bvc() {
	c.jmpIf(!c.getFlag(flagV))
}

func (c *CPU) bvs() {
	c.jmpIf(c.getFlag(flagV))
}

func (c *CPU) clc() {
	c.setFlag(flagC, false)
}

func (c *CPU) cld() {
	c.setFlag(flagD, false)
}

func (c *CPU) cli() {
	c.setFlag(flagI, false)
}

func (c *CPU) clv() {
	c.setFlag(flagV, false)
}

func (c *CPU) cmp() {
	c.setFlag(flagC, c.a >= c.operandValue)
	c.setFlagsZN(c.a - c.operandValue)
	if c.pageCrossed {
		c.cycles++
	}
}

func (c *CPU) cpx() {
	c.setFlag(flagC, c.x >= c.operandValue)
	c.setFlagsZN(c.x - c.operandValue)
}

func (c *CPU) cpy() {
	c.setFlag(flagC, c.y >= c.operandValue)
	c.setFlagsZN(c.y - c.operandValue)
}

func (c *CPU) dec() {
	r := c.operandValue - 1
	c.setFlagsZN(r)
	c.write8(c.operandAddr, r)
}

func (c *CPU) dex() {
	c.x--
	c.setFlagsZN(c.x)
}

func (c *CPU) dey() {
	c.y--
	c.setFlagsZN(c.y)
}

func (c *CPU) eor() {
	c.a ^= c.operandValue
	c.setFlagsZN(c.a)
	if c.pageCrossed {
		c.cycles++
	}
}

func (c *CPU) inc() {
	r := c.operandValue + 1
	c.setFlagsZN(r)
	c.write8(c.operandAddr, r)
}

func (c *CPU) inx() {
	c.x++
	c.setFlagsZN(c.x)
}

func (c *CPU) iny() {
	c.y++
	c.setFlagsZN(c.y)
}

func (c *CPU) jmp() {
	c.pc = c.operandAddr
}

func (c *CPU) jsr() {
	// pc has moved past the operand; the pushed address is the last
	// byte of the JSR instruction
	c.pc--
	c.stackPush16(c.pc)
	c.pc = c.operandAddr
}

func (c *CPU) lda() {
	c.a = c.operandValue
	c.setFlagsZN(c.a)
	if c.pageCrossed {
		c.cycles++
	}
}

func (c *CPU) ldx() {
	c.x = c.operandValue
	c.setFlagsZN(c.x)
	if c.pageCrossed {
		c.cycles++
	}
}

func (c *CPU) ldy() {
	c.y = c.operandValue
	c.setFlagsZN(c.y)
	if c.pageCrossed {
		c.cycles++
	}
}

func (c *CPU) lsr() {
	c.setFlag(flagC, c.operandValue&0x1 > 0)
	r := c.operandValue >> 1
	c.setFlagsZN(r)
	if c.addrMode == addrModeACC {
		c.a = r
	} else {
		c.write8(c.operandAddr, r)
	}
}

func (c *CPU) nop() {
	// multi-byte NOPs pay the indexed page-cross penalty
	if c.pageCrossed {
		c.cycles++
	}
}

func (c *CPU) ora() {
	c.a |= c.operandValue
	c.setFlagsZN(c.a)
	if c.pageCrossed {
		c.cycles++
	}
}

func (c *CPU) pha() {
	c.stackPush8(c.a)
}

func (c *CPU) php() {
	c.stackPush8(c.p | flagB | flagU)
}

func (c *CPU) pla() {
	c.a = c.stackPop8()
	c.setFlagsZN(c.a)
}

func (c *CPU) plp() {
	c.p = (c.stackPop8() | flagU) & ^flagB
}

func (c *CPU) rol() {
	r := c.operandValue << 1
	if c.getFlag(flagC) {
		r |= 0x1
	}
	c.setFlag(flagC, c.operandValue&0x80 > 0)
	c.setFlagsZN(r)
	if c.addrMode == addrModeACC {
		c.a = r
	} else {
		c.write8(c.operandAddr, r)
	}
}

func (c *CPU) ror() {
	r := c.operandValue >> 1
	if c.getFlag(flagC) {
		r |= 0x80
	}
	c.setFlag(flagC, c.operandValue&0x1 > 0)
	c.setFlagsZN(r)
	if c.addrMode == addrModeACC {
		c.a = r
	} else {
		c.write8(c.operandAddr, r)
	}
}

func (c *CPU) rti() {
	c.p = (c.stackPop8() | flagU) & ^flagB
	c.pc = c.stackPop16()
}

func (c *CPU) rts() {
	c.pc = c.stackPop16()
	c.pc++
}

func (c *CPU) sec() {
	c.setFlag(flagC, true)
}

func (c *CPU) sed() {
	c.setFlag(flagD, true)
}

func (c *CPU) sei() {
	c.setFlag(flagI, true)
}

func (c *CPU) sta() {
	c.write8(c.operandAddr, c.a)
}

func (c *CPU) stx() {
	c.write8(c.operandAddr, c.x)
}

func (c *CPU) sty() {
	c.write8(c.operandAddr, c.y)
}

func (c *CPU) tax() {
	c.x = c.a
	c.setFlagsZN(c.x)
}

func (c *CPU) tay() {
	c.y = c.a
	c.setFlagsZN(c.y)
}

func (c *CPU) tsx() {
	c.x = c.sp
	c.setFlagsZN(c.x)
}

func (c *CPU) txa() {
	c.a = c.x
	c.setFlagsZN(c.a)
}

func (c *CPU) txs() {
	c.sp = c.x
}

func (c *CPU) tya() {
	c.a = c.y
	c.setFlagsZN(c.a)
}

// Illegal opcodes with stable, software-relied-upon behaviour follow.
// Each combines two documented operations the way the decode PLA of the
// real chip shorts them together.

func (c *CPU) lax() {
	c.a = c.operandValue
	c.x = c.operandValue
	c.setFlagsZN(c.a)
	if c.pageCrossed {
		c.cycles++
	}
}

func (c *CPU) sax() {
	c.write8(c.operandAddr, c.a&c.x)
}

func (c *CPU) dcp() {
	c.operandValue--
	c.write8(c.operandAddr, c.operandValue)
	c.pageCrossed = false
	c.cmp()
}

func (c *CPU) isc() {
	c.operandValue++
	c.write8(c.operandAddr, c.operandValue)
	c.pageCrossed = false
	c.sbc()
}

func (c *CPU) slo() {
	c.setFlag(flagC, c.operandValue&0x80 > 0)
	r := c.operandValue << 1
	c.write8(c.operandAddr, r)
	c.a |= r
	c.setFlagsZN(c.a)
}

func (c *CPU) rla() {
	carry := c.operandValue&0x80 > 0
	r := c.operandValue << 1
	if c.getFlag(flagC) {
		r |= 0x1
	}
	c.write8(c.operandAddr, r)
	c.a &= r
	c.setFlag(flagC, carry)
	c.setFlagsZN(c.a)
}

func (c *CPU) sre() {
	c.setFlag(flagC, c.operandValue&0x1 > 0)
	r := c.operandValue >> 1
	c.write8(c.operandAddr, r)
	c.a ^= r
	c.setFlagsZN(c.a)
}

func (c *CPU) rra() {
	r := c.operandValue >> 1
	if c.getFlag(flagC) {
		r |= 0x80
	}
	c.setFlag(flagC, c.operandValue&0x1 > 0)
	c.operandValue = r
	c.write8(c.operandAddr, c.operandValue)
	c.pageCrossed = false
	c.adc()
}

func (c *CPU) anc() {
	c.a &= c.operandValue
	c.setFlag(flagC, c.a&0x80 > 0)
	c.setFlagsZN(c.a)
}

func (c *CPU) alr() {
	c.a &= c.operandValue
	c.setFlag(flagC, c.a&0x1 > 0)
	c.a >>= 1
	c.setFlagsZN(c.a)
}

func (c *CPU) arr() {
	c.a &= c.operandValue
	r := c.a >> 1
	if c.getFlag(flagC) {
		r |= 0x80
	}
	c.a = r
	c.setFlagsZN(c.a)
	c.setFlag(flagC, c.a&0x40 > 0)
	c.setFlag(flagV, (c.a>>6^c.a>>5)&0x1 > 0)
}

func (c *CPU) axs() {
	r := c.a & c.x
	c.setFlag(flagC, r >= c.operandValue)
	c.x = r - c.operandValue
	c.setFlagsZN(c.x)
}

func (c *CPU) las() {
	r := c.operandValue & c.sp
	c.a = r
	c.x = r
	c.sp = r
	c.setFlagsZN(r)
	if c.pageCrossed {
		c.cycles++
	}
}
