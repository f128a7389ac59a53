package c64

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMachine builds a machine around synthetic ROM images whose
// kernal vectors point into RAM: reset at $0801, IRQ at $0900, NMI at
// $0950.
func newTestMachine(t *testing.T, std Standard) *C64 {
	t.Helper()

	kernal := make([]uint8, kernalROMSize)
	kernal[0x1ffa] = 0x50
	kernal[0x1ffb] = 0x09
	kernal[0x1ffc] = 0x01
	kernal[0x1ffd] = 0x08
	kernal[0x1ffe] = 0x00
	kernal[0x1fff] = 0x09

	m, err := New(Config{
		Standard:  std,
		BasicROM:  make([]uint8, basicROMSize),
		KernalROM: kernal,
		CharROM:   patternROM(charROMSize, 0),
	})
	require.NoError(t, err)
	return m
}

// loadProgram pokes code into RAM and restarts the machine through the
// reset vector so execution begins at it.
func loadProgram(m *C64, addr uint16, prog ...uint8) {
	copy(m.bus.ram[addr:], prog)
	m.Reset()
}

func Test_C64_NewValidatesROMs(t *testing.T) {
	_, err := New(Config{
		BasicROM:  make([]uint8, 10),
		KernalROM: make([]uint8, kernalROMSize),
		CharROM:   make([]uint8, charROMSize),
	})
	assert.Error(t, err)
}

func Test_C64_Geometry(t *testing.T) {
	pal := newTestMachine(t, StandardPAL)
	w, h := pal.FrameSize()
	assert.Equal(t, 63, w)
	assert.Equal(t, 312, h)

	ntsc := newTestMachine(t, StandardNTSC)
	w, h = ntsc.FrameSize()
	assert.Equal(t, 65, w)
	assert.Equal(t, 263, h)
}

func Test_C64_BorderColorLoop(t *testing.T) {
	m := newTestMachine(t, StandardPAL)

	// LDA #$01; loop: STA $D020; JMP loop
	loadProgram(m, 0x0801,
		0xa9, 0x01,
		0x8d, 0x20, 0xd0,
		0x4c, 0x03, 0x08,
	)

	require.NoError(t, m.RunCycles(1_000_000))

	assert.Equal(t, uint8(0xf1), m.bus.Read8(0xd020), "register readback")

	// more than a full frame has elapsed; every border pixel carries
	// the written colour
	found := false
	for _, px := range m.Frame() {
		if px.Border {
			assert.Equal(t, uint8(0x01), px.Color)
			found = true
			break
		}
	}
	assert.True(t, found, "frame contains border pixels")

	// the loop never leaves its three instructions
	pc := m.cpu.pc
	assert.True(t, pc >= 0x0803 && pc <= 0x0808, "pc %04X", pc)
}

func Test_C64_TimerIRQTiming(t *testing.T) {
	m := newTestMachine(t, StandardPAL)

	// program a 100-cycle continuous timer on CIA 1, unmask it, enable
	// interrupts and spin; the handler counts into $0340
	loadProgram(m, 0x0801,
		0x78,                         // SEI
		0xa9, 0x64, 0x8d, 0x04, 0xdc, // LDA #$64; STA $DC04
		0xa9, 0x00, 0x8d, 0x05, 0xdc, // LDA #$00; STA $DC05
		0xa9, 0x81, 0x8d, 0x0d, 0xdc, // LDA #$81; STA $DC0D
		0xa9, 0x01, 0x8d, 0x0e, 0xdc, // LDA #$01; STA $DC0E
		0x58,             // CLI
		0x4c, 0x16, 0x08, // loop: JMP loop
	)
	copy(m.bus.ram[0x0900:], []uint8{
		0xad, 0x0d, 0xdc, // LDA $DC0D, acknowledges the source
		0xee, 0x40, 0x03, // INC $0340
		0x40, // RTI
	})

	// the timer starts on the cycle after the control register write
	budget := 10_000
	for !m.cia1.timerA.running {
		require.NoError(t, m.Tic())
		budget--
		require.Positive(t, budget, "timer never started")
	}
	start := m.ticCounter

	for !m.cia1.IRQ() {
		require.NoError(t, m.Tic())
		budget--
		require.Positive(t, budget, "interrupt never raised")
	}
	assert.Equal(t, uint64(100), m.ticCounter-start, "underflow after exactly the programmed count")

	// the CPU takes the interrupt and runs the handler
	for m.bus.ram[0x0340] == 0 {
		require.NoError(t, m.Tic())
		budget--
		require.Positive(t, budget, "handler never ran")
	}

	// continuous mode keeps firing
	require.NoError(t, m.RunCycles(500))
	assert.GreaterOrEqual(t, m.bus.ram[0x0340], uint8(3))
}

func Test_C64_CIA2DrivesNMI(t *testing.T) {
	m := newTestMachine(t, StandardPAL)

	// interrupts stay disabled; NMI must get through anyway
	loadProgram(m, 0x0801,
		0x78,             // SEI
		0x4c, 0x02, 0x08, // loop: JMP loop
	)
	copy(m.bus.ram[0x0950:], []uint8{
		0xad, 0x0d, 0xdd, // LDA $DD0D
		0xee, 0x41, 0x03, // INC $0341
		0x40, // RTI
	})

	require.NoError(t, m.RunCycles(20)) // let the reset sequence finish

	m.bus.Write8(0xdc0d, 0x00) // keep cia 1 quiet
	m.bus.Write8(0xdd04, 50)
	m.bus.Write8(0xdd05, 0)
	m.bus.Write8(0xdd0d, 0x81)
	m.bus.Write8(0xdd0e, 0x01)

	require.NoError(t, m.RunCycles(200))
	assert.True(t, m.bus.ram[0x0341] >= 1, "nmi handler ran despite SEI")
}

func Test_C64_ResetIsRepeatable(t *testing.T) {
	m := newTestMachine(t, StandardPAL)
	loadProgram(m, 0x0801,
		0xa9, 0x01,
		0x8d, 0x20, 0xd0,
		0x4c, 0x03, 0x08,
	)

	require.NoError(t, m.RunCycles(5000))
	first := m.DebugInfo()

	m.Reset()
	require.NoError(t, m.RunCycles(5000))
	second := m.DebugInfo()

	assert.Equal(t, first, second)
}

func Test_C64_BadLineStallsCPU(t *testing.T) {
	m := newTestMachine(t, StandardPAL)
	loadProgram(m, 0x0801,
		0x4c, 0x01, 0x08, // loop: JMP loop
	)

	// display off: every cycle reaches the CPU
	require.NoError(t, m.RunCycles(25_000))
	blank := m.cpu.totalCycles

	// display on: the character fetches on bad lines steal the bus
	m.Reset()
	m.bus.Write8(0xd011, 0x1b)
	require.NoError(t, m.RunCycles(25_000))
	display := m.cpu.totalCycles

	assert.Less(t, display, blank)
	// 25 bad lines per frame at 43 stolen cycles each, over a frame
	// and a quarter
	assert.InDelta(t, 1290, float64(blank-display), 300)
}

func Test_C64_KeyboardMatrix(t *testing.T) {
	m := newTestMachine(t, StandardPAL)

	m.SetKey(1, 2, true)

	// select row 1 by driving it low on port a
	m.bus.Write8(0xdc02, 0xff)
	m.bus.Write8(0xdc00, ^uint8(1<<1))
	assert.Equal(t, ^uint8(1<<2), m.bus.Read8(0xdc01))

	// deselect the row: no key visible
	m.bus.Write8(0xdc00, 0xff)
	assert.Equal(t, uint8(0xff), m.bus.Read8(0xdc01))

	m.SetKey(1, 2, false)
	m.bus.Write8(0xdc00, ^uint8(1<<1))
	assert.Equal(t, uint8(0xff), m.bus.Read8(0xdc01))
}

func Test_C64_Joystick(t *testing.T) {
	m := newTestMachine(t, StandardPAL)

	m.SetJoystick(2, 0x10) // fire on control port 2
	assert.Equal(t, ^uint8(0x10), m.bus.Read8(0xdc00))

	m.SetJoystick(1, 0x01)
	m.bus.Write8(0xdc00, 0xff) // no keyboard rows selected
	assert.Equal(t, ^uint8(0x01), m.bus.Read8(0xdc01))
}

func Test_C64_StepInstruction(t *testing.T) {
	m := newTestMachine(t, StandardPAL)
	loadProgram(m, 0x0801,
		0xa9, 0x01, // LDA #$01
		0xea, // NOP
	)

	require.NoError(t, m.StepInstruction()) // finish the reset cycles
	require.NoError(t, m.StepInstruction())
	assert.True(t, m.Paused())
	assert.Equal(t, uint8(0x01), m.cpu.a)
}
