package c64

// unstableNop stands in for the unstable store-class illegals (AHX,
// TAS, SHX, SHY, XAA, LXA) whose results depend on analog chip
// conditions. They decode for operand consumption and cycle count but
// perform no architectural effect.
func (c *CPU) unstableNop() {}

func (c *CPU) initInstructions() {
	c.instrs[0x00] = instr{name: "BRK", mode: addrModeIMP, fn: c.brk, cycles: 7}
	c.instrs[0x01] = instr{name: "ORA", mode: addrModeINDX, fn: c.ora, cycles: 6}
	c.instrs[0x02] = instr{name: "JAM", mode: addrModeIMP, jam: true}
	c.instrs[0x03] = instr{name: "SLO", mode: addrModeINDX, fn: c.slo, cycles: 8}
	c.instrs[0x04] = instr{name: "NOP", mode: addrModeZP, fn: c.nop, cycles: 3}
	c.instrs[0x05] = instr{name: "ORA", mode: addrModeZP, fn: c.ora, cycles: 3}
	c.instrs[0x06] = instr{name: "ASL", mode: addrModeZP, fn: c.asl, cycles: 5}
	c.instrs[0x07] = instr{name: "SLO", mode: addrModeZP, fn: c.slo, cycles: 5}
	c.instrs[0x08] = instr{name: "PHP", mode: addrModeIMP, fn: c.php, cycles: 3}
	c.instrs[0x09] = instr{name: "ORA", mode: addrModeIMM, fn: c.ora, cycles: 2}
	c.instrs[0x0a] = instr{name: "ASL", mode: addrModeACC, fn: c.asl, cycles: 2}
	c.instrs[0x0b] = instr{name: "ANC", mode: addrModeIMM, fn: c.anc, cycles: 2}
	c.instrs[0x0c] = instr{name: "NOP", mode: addrModeABS, fn: c.nop, cycles: 4}
	c.instrs[0x0d] = instr{name: "ORA", mode: addrModeABS, fn: c.ora, cycles: 4}
	c.instrs[0x0e] = instr{name: "ASL", mode: addrModeABS, fn: c.asl, cycles: 6}
	c.instrs[0x0f] = instr{name: "SLO", mode: addrModeABS, fn: c.slo, cycles: 6}
	c.instrs[0x10] = instr{name: "BPL", mode: addrModeREL, fn: c.bpl, cycles: 2}
	c.instrs[0x11] = instr{name: "ORA", mode: addrModeINDY, fn: c.ora, cycles: 5}
	c.instrs[0x12] = instr{name: "JAM", mode: addrModeIMP, jam: true}
	c.instrs[0x13] = instr{name: "SLO", mode: addrModeINDY, fn: c.slo, cycles: 8}
	c.instrs[0x14] = instr{name: "NOP", mode: addrModeZPX, fn: c.nop, cycles: 4}
	c.instrs[0x15] = instr{name: "ORA", mode: addrModeZPX, fn: c.ora, cycles: 4}
	c.instrs[0x16] = instr{name: "ASL", mode: addrModeZPX, fn: c.asl, cycles: 6}
	c.instrs[0x17] = instr{name: "SLO", mode: addrModeZPX, fn: c.slo, cycles: 6}
	c.instrs[0x18] = instr{name: "CLC", mode: addrModeIMP, fn: c.clc, cycles: 2}
	c.instrs[0x19] = instr{name: "ORA", mode: addrModeABSY, fn: c.ora, cycles: 4}
	c.instrs[0x1a] = instr{name: "NOP", mode: addrModeIMP, fn: c.nop, cycles: 2}
	c.instrs[0x1b] = instr{name: "SLO", mode: addrModeABSY, fn: c.slo, cycles: 7}
	c.instrs[0x1c] = instr{name: "NOP", mode: addrModeABSX, fn: c.nop, cycles: 4}
	c.instrs[0x1d] = instr{name: "ORA", mode: addrModeABSX, fn: c.ora, cycles: 4}
	c.instrs[0x1e] = instr{name: "ASL", mode: addrModeABSX, fn: c.asl, cycles: 7}
	c.instrs[0x1f] = instr{name: "SLO", mode: addrModeABSX, fn: c.slo, cycles: 7}
	c.instrs[0x20] = instr{name: "JSR", mode: addrModeABS, fn: c.jsr, cycles: 6}
	c.instrs[0x21] = instr{name: "AND", mode: addrModeINDX, fn: c.and, cycles: 6}
	c.instrs[0x22] = instr{name: "JAM", mode: addrModeIMP, jam: true}
	c.instrs[0x23] = instr{name: "RLA", mode: addrModeINDX, fn: c.rla, cycles: 8}
	c.instrs[0x24] = instr{name: "BIT", mode: addrModeZP, fn: c.bit, cycles: 3}
	c.instrs[0x25] = instr{name: "AND", mode: addrModeZP, fn: c.and, cycles: 3}
	c.instrs[0x26] = instr{name: "ROL", mode: addrModeZP, fn: c.rol, cycles: 5}
	c.instrs[0x27] = instr{name: "RLA", mode: addrModeZP, fn: c.rla, cycles: 5}
	c.instrs[0x28] = instr{name: "PLP", mode: addrModeIMP, fn: c.plp, cycles: 4}
	c.instrs[0x29] = instr{name: "AND", mode: addrModeIMM, fn: c.and, cycles: 2}
	c.instrs[0x2a] = instr{name: "ROL", mode: addrModeACC, fn: c.rol, cycles: 2}
	c.instrs[0x2b] = instr{name: "ANC", mode: addrModeIMM, fn: c.anc, cycles: 2}
	c.instrs[0x2c] = instr{name: "BIT", mode: addrModeABS, fn: c.bit, cycles: 4}
	c.instrs[0x2d] = instr{name: "AND", mode: addrModeABS, fn: c.and, cycles: 4}
	c.instrs[0x2e] = instr{name: "ROL", mode: addrModeABS, fn: c.rol, cycles: 6}
	c.instrs[0x2f] = instr{name: "RLA", mode: addrModeABS, fn: c.rla, cycles: 6}
	c.instrs[0x30] = instr{name: "BMI", mode: addrModeREL, fn: c.bmi, cycles: 2}
	c.instrs[0x31] = instr{name: "AND", mode: addrModeINDY, fn: c.and, cycles: 5}
	c.instrs[0x32] = instr{name: "JAM", mode: addrModeIMP, jam: true}
	c.instrs[0x33] = instr{name: "RLA", mode: addrModeINDY, fn: c.rla, cycles: 8}
	c.instrs[0x34] = instr{name: "NOP", mode: addrModeZPX, fn: c.nop, cycles: 4}
	c.instrs[0x35] = instr{name: "AND", mode: addrModeZPX, fn: c.and, cycles: 4}
	c.instrs[0x36] = instr{name: "ROL", mode: addrModeZPX, fn: c.rol, cycles: 6}
	c.instrs[0x37] = instr{name: "RLA", mode: addrModeZPX, fn: c.rla, cycles: 6}
	c.instrs[0x38] = instr{name: "SEC", mode: addrModeIMP, fn: c.sec, cycles: 2}
	c.instrs[0x39] = instr{name: "AND", mode: addrModeABSY, fn: c.and, cycles: 4}
	c.instrs[0x3a] = instr{name: "NOP", mode: addrModeIMP, fn: c.nop, cycles: 2}
	c.instrs[0x3b] = instr{name: "RLA", mode: addrModeABSY, fn: c.rla, cycles: 7}
	c.instrs[0x3c] = instr{name: "NOP", mode: addrModeABSX, fn: c.nop, cycles: 4}
	c.instrs[0x3d] = instr{name: "AND", mode: addrModeABSX, fn: c.and, cycles: 4}
	c.instrs[0x3e] = instr{name: "ROL", mode: addrModeABSX, fn: c.rol, cycles: 7}
	c.instrs[0x3f] = instr{name: "RLA", mode: addrModeABSX, fn: c.rla, cycles: 7}
	c.instrs[0x40] = instr{name: "RTI", mode: addrModeIMP, fn: c.rti, cycles: 6}
	c.instrs[0x41] = instr{name: "EOR", mode: addrModeINDX, fn: c.eor, cycles: 6}
	c.instrs[0x42] = instr{name: "JAM", mode: addrModeIMP, jam: true}
	c.instrs[0x43] = instr{name: "SRE", mode: addrModeINDX, fn: c.sre, cycles: 8}
	c.instrs[0x44] = instr{name: "NOP", mode: addrModeZP, fn: c.nop, cycles: 3}
	c.instrs[0x45] = instr{name: "EOR", mode: addrModeZP, fn: c.eor, cycles: 3}
	c.instrs[0x46] = instr{name: "LSR", mode: addrModeZP, fn: c.lsr, cycles: 5}
	c.instrs[0x47] = instr{name: "SRE", mode: addrModeZP, fn: c.sre, cycles: 5}
	c.instrs[0x48] = instr{name: "PHA", mode: addrModeIMP, fn: c.pha, cycles: 3}
	c.instrs[0x49] = instr{name: "EOR", mode: addrModeIMM, fn: c.eor, cycles: 2}
	c.instrs[0x4a] = instr{name: "LSR", mode: addrModeACC, fn: c.lsr, cycles: 2}
	c.instrs[0x4b] = instr{name: "ALR", mode: addrModeIMM, fn: c.alr, cycles: 2}
	c.instrs[0x4c] = instr{name: "JMP", mode: addrModeABS, fn: c.jmp, cycles: 3}
	c.instrs[0x4d] = instr{name: "EOR", mode: addrModeABS, fn: c.eor, cycles: 4}
	c.instrs[0x4e] = instr{name: "LSR", mode: addrModeABS, fn: c.lsr, cycles: 6}
	c.instrs[0x4f] = instr{name: "SRE", mode: addrModeABS, fn: c.sre, cycles: 6}
	c.instrs[0x50] = instr{name: "BVC", mode: addrModeREL, fn: c.bvc, cycles: 2}
	c.instrs[0x51] = instr{name: "EOR", mode: addrModeINDY, fn: c.eor, cycles: 5}
	c.instrs[0x52] = instr{name: "JAM", mode: addrModeIMP, jam: true}
	c.instrs[0x53] = instr{name: "SRE", mode: addrModeINDY, fn: c.sre, cycles: 8}
	c.instrs[0x54] = instr{name: "NOP", mode: addrModeZPX, fn: c.nop, cycles: 4}
	c.instrs[0x55] = instr{name: "EOR", mode: addrModeZPX, fn: c.eor, cycles: 4}
	c.instrs[0x56] = instr{name: "LSR", mode: addrModeZPX, fn: c.lsr, cycles: 6}
	c.instrs[0x57] = instr{name: "SRE", mode: addrModeZPX, fn: c.sre, cycles: 6}
	c.instrs[0x58] = instr{name: "CLI", mode: addrModeIMP, fn: c.cli, cycles: 2}
	c.instrs[0x59] = instr{name: "EOR", mode: addrModeABSY, fn: c.eor, cycles: 4}
	c.instrs[0x5a] = instr{name: "NOP", mode: addrModeIMP, fn: c.nop, cycles: 2}
	c.instrs[0x5b] = instr{name: "SRE", mode: addrModeABSY, fn: c.sre, cycles: 7}
	c.instrs[0x5c] = instr{name: "NOP", mode: addrModeABSX, fn: c.nop, cycles: 4}
	c.instrs[0x5d] = instr{name: "EOR", mode: addrModeABSX, fn: c.eor, cycles: 4}
	c.instrs[0x5e] = instr{name: "LSR", mode: addrModeABSX, fn: c.lsr, cycles: 7}
	c.instrs[0x5f] = instr{name: "SRE", mode: addrModeABSX, fn: c.sre, cycles: 7}
	c.instrs[0x60] = instr{name: "RTS", mode: addrModeIMP, fn: c.rts, cycles: 6}
	c.instrs[0x61] = instr{name: "ADC", mode: addrModeINDX, fn: c.adc, cycles: 6}
	c.instrs[0x62] = instr{name: "JAM", mode: addrModeIMP, jam: true}
	c.instrs[0x63] = instr{name: "RRA", mode: addrModeINDX, fn: c.rra, cycles: 8}
	c.instrs[0x64] = instr{name: "NOP", mode: addrModeZP, fn: c.nop, cycles: 3}
	c.instrs[0x65] = instr{name: "ADC", mode: addrModeZP, fn: c.adc, cycles: 3}
	c.instrs[0x66] = instr{name: "ROR", mode: addrModeZP, fn: c.ror, cycles: 5}
	c.instrs[0x67] = instr{name: "RRA", mode: addrModeZP, fn: c.rra, cycles: 5}
	c.instrs[0x68] = instr{name: "PLA", mode: addrModeIMP, fn: c.pla, cycles: 4}
	c.instrs[0x69] = instr{name: "ADC", mode: addrModeIMM, fn: c.adc, cycles: 2}
	c.instrs[0x6a] = instr{name: "ROR", mode: addrModeACC, fn: c.ror, cycles: 2}
	c.instrs[0x6b] = instr{name: "ARR", mode: addrModeIMM, fn: c.arr, cycles: 2}
	c.instrs[0x6c] = instr{name: "JMP", mode: addrModeIND, fn: c.jmp, cycles: 5}
	c.instrs[0x6d] = instr{name: "ADC", mode: addrModeABS, fn: c.adc, cycles: 4}
	c.instrs[0x6e] = instr{name: "ROR", mode: addrModeABS, fn: c.ror, cycles: 6}
	c.instrs[0x6f] = instr{name: "RRA", mode: addrModeABS, fn: c.rra, cycles: 6}
	c.instrs[0x70] = instr{name: "BVS", mode: addrModeREL, fn: c.bvs, cycles: 2}
	c.instrs[0x71] = instr{name: "ADC", mode: addrModeINDY, fn: c.adc, cycles: 5}
	c.instrs[0x72] = instr{name: "JAM", mode: addrModeIMP, jam: true}
	c.instrs[0x73] = instr{name: "RRA", mode: addrModeINDY, fn: c.rra, cycles: 8}
	c.instrs[0x74] = instr{name: "NOP", mode: addrModeZPX, fn: c.nop, cycles: 4}
	c.instrs[0x75] = instr{name: "ADC", mode: addrModeZPX, fn: c.adc, cycles: 4}
	c.instrs[0x76] = instr{name: "ROR", mode: addrModeZPX, fn: c.ror, cycles: 6}
	c.instrs[0x77] = instr{name: "RRA", mode: addrModeZPX, fn: c.rra, cycles: 6}
	c.instrs[0x78] = instr{name: "SEI", mode: addrModeIMP, fn: c.sei, cycles: 2}
	c.instrs[0x79] = instr{name: "ADC", mode: addrModeABSY, fn: c.adc, cycles: 4}
	c.instrs[0x7a] = instr{name: "NOP", mode: addrModeIMP, fn: c.nop, cycles: 2}
	c.instrs[0x7b] = instr{name: "RRA", mode: addrModeABSY, fn: c.rra, cycles: 7}
	c.instrs[0x7c] = instr{name: "NOP", mode: addrModeABSX, fn: c.nop, cycles: 4}
	c.instrs[0x7d] = instr{name: "ADC", mode: addrModeABSX, fn: c.adc, cycles: 4}
	c.instrs[0x7e] = instr{name: "ROR", mode: addrModeABSX, fn: c.ror, cycles: 7}
	c.instrs[0x7f] = instr{name: "RRA", mode: addrModeABSX, fn: c.rra, cycles: 7}
	c.instrs[0x80] = instr{name: "NOP", mode: addrModeIMM, fn: c.nop, cycles: 2}
	c.instrs[0x81] = instr{name: "STA", mode: addrModeINDX, fn: c.sta, cycles: 6}
	c.instrs[0x82] = instr{name: "NOP", mode: addrModeIMM, fn: c.nop, cycles: 2}
	c.instrs[0x83] = instr{name: "SAX", mode: addrModeINDX, fn: c.sax, cycles: 6}
	c.instrs[0x84] = instr{name: "STY", mode: addrModeZP, fn: c.sty, cycles: 3}
	c.instrs[0x85] = instr{name: "STA", mode: addrModeZP, fn: c.sta, cycles: 3}
	c.instrs[0x86] = instr{name: "STX", mode: addrModeZP, fn: c.stx, cycles: 3}
	c.instrs[0x87] = instr{name: "SAX", mode: addrModeZP, fn: c.sax, cycles: 3}
	c.instrs[0x88] = instr{name: "DEY", mode: addrModeIMP, fn: c.dey, cycles: 2}
	c.instrs[0x89] = instr{name: "NOP", mode: addrModeIMM, fn: c.nop, cycles: 2}
	c.instrs[0x8a] = instr{name: "TXA", mode: addrModeIMP, fn: c.txa, cycles: 2}
	c.instrs[0x8b] = instr{name: "XAA", mode: addrModeIMM, fn: c.unstableNop, cycles: 2}
	c.instrs[0x8c] = instr{name: "STY", mode: addrModeABS, fn: c.sty, cycles: 4}
	c.instrs[0x8d] = instr{name: "STA", mode: addrModeABS, fn: c.sta, cycles: 4}
	c.instrs[0x8e] = instr{name: "STX", mode: addrModeABS, fn: c.stx, cycles: 4}
	c.instrs[0x8f] = instr{name: "SAX", mode: addrModeABS, fn: c.sax, cycles: 4}
	c.instrs[0x90] = instr{name: "BCC", mode: addrModeREL, fn: c.bcc, cycles: 2}
	c.instrs[0x91] = instr{name: "STA", mode: addrModeINDY, fn: c.sta, cycles: 6}
	c.instrs[0x92] = instr{name: "JAM", mode: addrModeIMP, jam: true}
	c.instrs[0x93] = instr{name: "AHX", mode: addrModeINDY, fn: c.unstableNop, cycles: 6}
	c.instrs[0x94] = instr{name: "STY", mode: addrModeZPX, fn: c.sty, cycles: 4}
	c.instrs[0x95] = instr{name: "STA", mode: addrModeZPX, fn: c.sta, cycles: 4}
	c.instrs[0x96] = instr{name: "STX", mode: addrModeZPY, fn: c.stx, cycles: 4}
	c.instrs[0x97] = instr{name: "SAX", mode: addrModeZPY, fn: c.sax, cycles: 4}
	c.instrs[0x98] = instr{name: "TYA", mode: addrModeIMP, fn: c.tya, cycles: 2}
	c.instrs[0x99] = instr{name: "STA", mode: addrModeABSY, fn: c.sta, cycles: 5}
	c.instrs[0x9a] = instr{name: "TXS", mode: addrModeIMP, fn: c.txs, cycles: 2}
	c.instrs[0x9b] = instr{name: "TAS", mode: addrModeABSY, fn: c.unstableNop, cycles: 5}
	c.instrs[0x9c] = instr{name: "SHY", mode: addrModeABSX, fn: c.unstableNop, cycles: 5}
	c.instrs[0x9d] = instr{name: "STA", mode: addrModeABSX, fn: c.sta, cycles: 5}
	c.instrs[0x9e] = instr{name: "SHX", mode: addrModeABSY, fn: c.unstableNop, cycles: 5}
	c.instrs[0x9f] = instr{name: "AHX", mode: addrModeABSY, fn: c.unstableNop, cycles: 5}
	c.instrs[0xa0] = instr{name: "LDY", mode: addrModeIMM, fn: c.ldy, cycles: 2}
	c.instrs[0xa1] = instr{name: "LDA", mode: addrModeINDX, fn: c.lda, cycles: 6}
	c.instrs[0xa2] = instr{name: "LDX", mode: addrModeIMM, fn: c.ldx, cycles: 2}
	c.instrs[0xa3] = instr{name: "LAX", mode: addrModeINDX, fn: c.lax, cycles: 6}
	c.instrs[0xa4] = instr{name: "LDY", mode: addrModeZP, fn: c.ldy, cycles: 3}
	c.instrs[0xa5] = instr{name: "LDA", mode: addrModeZP, fn: c.lda, cycles: 3}
	c.instrs[0xa6] = instr{name: "LDX", mode: addrModeZP, fn: c.ldx, cycles: 3}
	c.instrs[0xa7] = instr{name: "LAX", mode: addrModeZP, fn: c.lax, cycles: 3}
	c.instrs[0xa8] = instr{name: "TAY", mode: addrModeIMP, fn: c.tay, cycles: 2}
	c.instrs[0xa9] = instr{name: "LDA", mode: addrModeIMM, fn: c.lda, cycles: 2}
	c.instrs[0xaa] = instr{name: "TAX", mode: addrModeIMP, fn: c.tax, cycles: 2}
	c.instrs[0xab] = instr{name: "LXA", mode: addrModeIMM, fn: c.unstableNop, cycles: 2}
	c.instrs[0xac] = instr{name: "LDY", mode: addrModeABS, fn: c.ldy, cycles: 4}
	c.instrs[0xad] = instr{name: "LDA", mode: addrModeABS, fn: c.lda, cycles: 4}
	c.instrs[0xae] = instr{name: "LDX", mode: addrModeABS, fn: c.ldx, cycles: 4}
	c.instrs[0xaf] = instr{name: "LAX", mode: addrModeABS, fn: c.lax, cycles: 4}
	c.instrs[0xb0] = instr{name: "BCS", mode: addrModeREL, fn: c.bcs, cycles: 2}
	c.instrs[0xb1] = instr{name: "LDA", mode: addrModeINDY, fn: c.lda, cycles: 5}
	c.instrs[0xb2] = instr{name: "JAM", mode: addrModeIMP, jam: true}
	c.instrs[0xb3] = instr{name: "LAX", mode: addrModeINDY, fn: c.lax, cycles: 5}
	c.instrs[0xb4] = instr{name: "LDY", mode: addrModeZPX, fn: c.ldy, cycles: 4}
	c.instrs[0xb5] = instr{name: "LDA", mode: addrModeZPX, fn: c.lda, cycles: 4}
	c.instrs[0xb6] = instr{name: "LDX", mode: addrModeZPY, fn: c.ldx, cycles: 4}
	c.instrs[0xb7] = instr{name: "LAX", mode: addrModeZPY, fn: c.lax, cycles: 4}
	c.instrs[0xb8] = instr{name: "CLV", mode: addrModeIMP, fn: c.clv, cycles: 2}
	c.instrs[0xb9] = instr{name: "LDA", mode: addrModeABSY, fn: c.lda, cycles: 4}
	c.instrs[0xba] = instr{name: "TSX", mode: addrModeIMP, fn: c.tsx, cycles: 2}
	c.instrs[0xbb] = instr{name: "LAS", mode: addrModeABSY, fn: c.las, cycles: 4}
	c.instrs[0xbc] = instr{name: "LDY", mode: addrModeABSX, fn: c.ldy, cycles: 4}
	c.instrs[0xbd] = instr{name: "LDA", mode: addrModeABSX, fn: c.lda, cycles: 4}
	c.instrs[0xbe] = instr{name: "LDX", mode: addrModeABSY, fn: c.ldx, cycles: 4}
	c.instrs[0xbf] = instr{name: "LAX", mode: addrModeABSY, fn: c.lax, cycles: 4}
	c.instrs[0xc0] = instr{name: "CPY", mode: addrModeIMM, fn: c.cpy, cycles: 2}
	c.instrs[0xc1] = instr{name: "CMP", mode: addrModeINDX, fn: c.cmp, cycles: 6}
	c.instrs[0xc2] = instr{name: "NOP", mode: addrModeIMM, fn: c.nop, cycles: 2}
	c.instrs[0xc3] = instr{name: "DCP", mode: addrModeINDX, fn: c.dcp, cycles: 8}
	c.instrs[0xc4] = instr{name: "CPY", mode: addrModeZP, fn: c.cpy, cycles: 3}
	c.instrs[0xc5] = instr{name: "CMP", mode: addrModeZP, fn: c.cmp, cycles: 3}
	c.instrs[0xc6] = instr{name: "DEC", mode: addrModeZP, fn: c.dec, cycles: 5}
	c.instrs[0xc7] = instr{name: "DCP", mode: addrModeZP, fn: c.dcp, cycles: 5}
	c.instrs[0xc8] = instr{name: "INY", mode: addrModeIMP, fn: c.iny, cycles: 2}
	c.instrs[0xc9] = instr{name: "CMP", mode: addrModeIMM, fn: c.cmp, cycles: 2}
	c.instrs[0xca] = instr{name: "DEX", mode: addrModeIMP, fn: c.dex, cycles: 2}
	c.instrs[0xcb] = instr{name: "AXS", mode: addrModeIMM, fn: c.axs, cycles: 2}
	c.instrs[0xcc] = instr{name: "CPY", mode: addrModeABS, fn: c.cpy, cycles: 4}
	c.instrs[0xcd] = instr{name: "CMP", mode: addrModeABS, fn: c.cmp, cycles: 4}
	c.instrs[0xce] = instr{name: "DEC", mode: addrModeABS, fn: c.dec, cycles: 6}
	c.instrs[0xcf] = instr{name: "DCP", mode: addrModeABS, fn: c.dcp, cycles: 6}
	c.instrs[0xd0] = instr{name: "BNE", mode: addrModeREL, fn: c.bne, cycles: 2}
	c.instrs[0xd1] = instr{name: "CMP", mode: addrModeINDY, fn: c.cmp, cycles: 5}
	c.instrs[0xd2] = instr{name: "JAM", mode: addrModeIMP, jam: true}
	c.instrs[0xd3] = instr{name: "DCP", mode: addrModeINDY, fn: c.dcp, cycles: 8}
	c.instrs[0xd4] = instr{name: "NOP", mode: addrModeZPX, fn: c.nop, cycles: 4}
	c.instrs[0xd5] = instr{name: "CMP", mode: addrModeZPX, fn: c.cmp, cycles: 4}
	c.instrs[0xd6] = instr{name: "DEC", mode: addrModeZPX, fn: c.dec, cycles: 6}
	c.instrs[0xd7] = instr{name: "DCP", mode: addrModeZPX, fn: c.dcp, cycles: 6}
	c.instrs[0xd8] = instr{name: "CLD", mode: addrModeIMP, fn: c.cld, cycles: 2}
	c.instrs[0xd9] = instr{name: "CMP", mode: addrModeABSY, fn: c.cmp, cycles: 4}
	c.instrs[0xda] = instr{name: "NOP", mode: addrModeIMP, fn: c.nop, cycles: 2}
	c.instrs[0xdb] = instr{name: "DCP", mode: addrModeABSY, fn: c.dcp, cycles: 7}
	c.instrs[0xdc] = instr{name: "NOP", mode: addrModeABSX, fn: c.nop, cycles: 4}
	c.instrs[0xdd] = instr{name: "CMP", mode: addrModeABSX, fn: c.cmp, cycles: 4}
	c.instrs[0xde] = instr{name: "DEC", mode: addrModeABSX, fn: c.dec, cycles: 7}
	c.instrs[0xdf] = instr{name: "DCP", mode: addrModeABSX, fn: c.dcp, cycles: 7}
	c.instrs[0xe0] = instr{name: "CPX", mode: addrModeIMM, fn: c.cpx, cycles: 2}
	c.instrs[0xe1] = instr{name: "SBC", mode: addrModeINDX, fn: c.sbc, cycles: 6}
	c.instrs[0xe2] = instr{name: "NOP", mode: addrModeIMM, fn: c.nop, cycles: 2}
	c.instrs[0xe3] = instr{name: "ISC", mode: addrModeINDX, fn: c.isc, cycles: 8}
	c.instrs[0xe4] = instr{name: "CPX", mode: addrModeZP, fn: c.cpx, cycles: 3}
	c.instrs[0xe5] = instr{name: "SBC", mode: addrModeZP, fn: c.sbc, cycles: 3}
	c.instrs[0xe6] = instr{name: "INC", mode: addrModeZP, fn: c.inc, cycles: 5}
	c.instrs[0xe7] = instr{name: "ISC", mode: addrModeZP, fn: c.isc, cycles: 5}
	c.instrs[0xe8] = instr{name: "INX", mode: addrModeIMP, fn: c.inx, cycles: 2}
	c.instrs[0xe9] = instr{name: "SBC", mode: addrModeIMM, fn: c.sbc, cycles: 2}
	c.instrs[0xea] = instr{name: "NOP", mode: addrModeIMP, fn: c.nop, cycles: 2}
	c.instrs[0xeb] = instr{name: "SBC", mode: addrModeIMM, fn: c.sbc, cycles: 2}
	c.instrs[0xec] = instr{name: "CPX", mode: addrModeABS, fn: c.cpx, cycles: 4}
	c.instrs[0xed] = instr{name: "SBC", mode: addrModeABS, fn: c.sbc, cycles: 4}
	c.instrs[0xee] = instr{name: "INC", mode: addrModeABS, fn: c.inc, cycles: 6}
	c.instrs[0xef] = instr{name: "ISC", mode: addrModeABS, fn: c.isc, cycles: 6}
	c.instrs[0xf0] = instr{name: "BEQ", mode: addrModeREL, fn: c.beq, cycles: 2}
	c.instrs[0xf1] = instr{name: "SBC", mode: addrModeINDY, fn: c.sbc, cycles: 5}
	c.instrs[0xf2] = instr{name: "JAM", mode: addrModeIMP, jam: true}
	c.instrs[0xf3] = instr{name: "ISC", mode: addrModeINDY, fn: c.isc, cycles: 8}
	c.instrs[0xf4] = instr{name: "NOP", mode: addrModeZPX, fn: c.nop, cycles: 4}
	c.instrs[0xf5] = instr{name: "SBC", mode: addrModeZPX, fn: c.sbc, cycles: 4}
	c.instrs[0xf6] = instr{name: "INC", mode: addrModeZPX, fn: c.inc, cycles: 6}
	c.instrs[0xf7] = instr{name: "ISC", mode: addrModeZPX, fn: c.isc, cycles: 6}
	c.instrs[0xf8] = instr{name: "SED", mode: addrModeIMP, fn: c.sed, cycles: 2}
	c.instrs[0xf9] = instr{name: "SBC", mode: addrModeABSY, fn: c.sbc, cycles: 4}
	c.instrs[0xfa] = instr{name: "NOP", mode: addrModeIMP, fn: c.nop, cycles: 2}
	c.instrs[0xfb] = instr{name: "ISC", mode: addrModeABSY, fn: c.isc, cycles: 7}
	c.instrs[0xfc] = instr{name: "NOP", mode: addrModeABSX, fn: c.nop, cycles: 4}
	c.instrs[0xfd] = instr{name: "SBC", mode: addrModeABSX, fn: c.sbc, cycles: 4}
	c.instrs[0xfe] = instr{name: "INC", mode: addrModeABSX, fn: c.inc, cycles: 7}
	c.instrs[0xff] = instr{name: "ISC", mode: addrModeABSX, fn: c.isc, cycles: 7}
}
