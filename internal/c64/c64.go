package c64

import "fmt"

// Standard selects the video timing the machine is built for.
type Standard uint8

const (
	StandardPAL Standard = iota
	StandardNTSC
)

func (s Standard) String() string {
	if s == StandardNTSC {
		return "NTSC"
	}
	return "PAL"
}

func (s Standard) cyclesPerLine() uint16 {
	if s == StandardNTSC {
		return 65
	}
	return 63
}

func (s Standard) linesPerFrame() uint16 {
	if s == StandardNTSC {
		return 263
	}
	return 312
}

// ClockHz is the master clock rate in cycles per second.
func (s Standard) ClockHz() int {
	if s == StandardNTSC {
		return 1022727
	}
	return 985248
}

// Config carries everything New needs: the video standard and the three
// ROM images the board sockets expect.
type Config struct {
	Standard Standard

	BasicROM  []uint8
	KernalROM []uint8
	CharROM   []uint8
}

// C64 is the assembled machine: one CPU, one VIC, two CIAs and the bus
// that ties them together. Tic advances everything by one master clock
// cycle in board order.
type C64 struct {
	standard Standard

	bus  *Bus
	cpu  *CPU
	vic  *VIC
	cia1 *CIA
	cia2 *CIA

	frame  []Pixel
	frameW int
	frameH int

	// keyboard matrix: keys[row] has a bit set per held key in that row
	keys [8]uint8
	joy1 uint8
	joy2 uint8

	paused bool

	ticCounter uint64
}

func New(cfg Config) (*C64, error) {
	basic, err := newROM("basic", cfg.BasicROM, basicROMSize)
	if err != nil {
		return nil, err
	}
	kernal, err := newROM("kernal", cfg.KernalROM, kernalROMSize)
	if err != nil {
		return nil, err
	}
	charROM, err := newROM("chargen", cfg.CharROM, charROMSize)
	if err != nil {
		return nil, err
	}

	m := &C64{
		standard: cfg.Standard,
		bus: &Bus{
			basic:   basic,
			kernal:  kernal,
			charROM: charROM,
		},
	}
	m.frameW = int(cfg.Standard.cyclesPerLine())
	m.frameH = int(cfg.Standard.linesPerFrame())
	m.frame = make([]Pixel, m.frameW*m.frameH)

	cyclesPerTenth := cfg.Standard.ClockHz() / 10
	m.vic = newVIC(m.bus, cfg.Standard.cyclesPerLine(), cfg.Standard.linesPerFrame())
	m.cia1 = newCIA(cyclesPerTenth)
	m.cia2 = newCIA(cyclesPerTenth)
	m.cpu = NewCPU(m.bus)

	m.bus.vic = m.vic
	m.bus.cia1 = m.cia1
	m.bus.cia2 = m.cia2

	// CIA 1 port A drives the keyboard rows and reads joystick 2,
	// port B reads the selected columns and joystick 1
	m.cia1.portA.in = func() uint8 { return ^m.joy2 }
	m.cia1.portB.in = m.scanKeyboard

	m.Reset()
	return m, nil
}

// Reset drives the reset line: every chip returns to its power-on
// state and the CPU restarts through the reset vector. RAM contents
// survive, as they do on the real board.
func (m *C64) Reset() {
	m.bus.reset()
	m.vic.reset()
	m.cia1.reset()
	m.cia2.reset()
	m.cpu.Reset()
	m.ticCounter = 0
}

// Tic advances the machine by one master clock cycle. The VIC goes
// first so bus ownership and the cycle's pixel are settled, then the
// CIAs count, then the interrupt lines are resampled, and the CPU runs
// only if the VIC left the bus available.
func (m *C64) Tic() error {
	m.vic.Tic()
	m.cia1.Tic()
	m.cia2.Tic()

	m.cpu.SetIRQ(m.vic.IRQ() || m.cia1.IRQ())
	m.cpu.SetNMI(m.cia2.IRQ())

	px := m.vic.Pixel()
	m.frame[int(m.vic.raster)*m.frameW+int(m.vic.cycle)-1] = px

	if m.vic.BA() {
		if err := m.cpu.Tic(); err != nil {
			return err
		}
	}
	m.ticCounter++
	return nil
}

// RunCycles advances the machine by n master clock cycles.
func (m *C64) RunCycles(n int) error {
	for i := 0; i < n; i++ {
		if err := m.Tic(); err != nil {
			return fmt.Errorf("cycle %d: %w", m.ticCounter, err)
		}
	}
	return nil
}

// RunFrame advances the machine to the start of the next video frame.
// A no-op while paused.
func (m *C64) RunFrame() error {
	if m.paused {
		return nil
	}
	start := m.vic.frame
	for m.vic.frame == start {
		if err := m.Tic(); err != nil {
			return err
		}
	}
	return nil
}

// StepInstruction advances to the next CPU instruction boundary and
// pauses the machine there.
func (m *C64) StepInstruction() error {
	for {
		if err := m.Tic(); err != nil {
			return err
		}
		if m.vic.BA() && m.cpu.cycles == 0 {
			break
		}
	}
	m.paused = true
	return nil
}

func (m *C64) TogglePause() {
	m.paused = !m.paused
}

func (m *C64) Paused() bool {
	return m.paused
}

// Frame returns the current frame buffer, one pixel per cycle. The
// buffer is row-major, FrameSize wide per raster line, and is
// overwritten in place as the beam advances.
func (m *C64) Frame() []Pixel {
	return m.frame
}

func (m *C64) FrameSize() (w, h int) {
	return m.frameW, m.frameH
}

// LastPixel returns the output of the most recent cycle.
func (m *C64) LastPixel() Pixel {
	return m.vic.Pixel()
}

// IRQLine reports the state of the CPU's maskable interrupt input, the
// wired-or of the VIC and CIA 1 outputs.
func (m *C64) IRQLine() bool {
	return m.vic.IRQ() || m.cia1.IRQ()
}

// NMILine reports the state of the CPU's non-maskable interrupt input,
// driven by CIA 2.
func (m *C64) NMILine() bool {
	return m.cia2.IRQ()
}

// SetKey presses or releases the key at the given matrix position.
func (m *C64) SetKey(row, col int, down bool) {
	if row < 0 || row > 7 || col < 0 || col > 7 {
		return
	}
	if down {
		m.keys[row] |= 1 << uint(col)
	} else {
		m.keys[row] &^= 1 << uint(col)
	}
}

// SetJoystick sets the state of the joystick on the given control port
// (1 or 2). Bits 0-4 are up, down, left, right, fire; set means active.
func (m *C64) SetJoystick(port int, mask uint8) {
	switch port {
	case 1:
		m.joy1 = mask & 0x1f
	case 2:
		m.joy2 = mask & 0x1f
	}
}

// scanKeyboard models the matrix seen from CIA 1 port B: every row
// driven low on port A pulls its pressed keys' column lines low.
// Joystick 1 shares the port and pulls lines low regardless of rows.
func (m *C64) scanKeyboard() uint8 {
	rows := m.cia1.portA.out()
	cols := uint8(0xff)
	for row := 0; row < 8; row++ {
		if rows&(1<<uint(row)) == 0 {
			cols &^= m.keys[row]
		}
	}
	return cols &^ m.joy1
}

// DebugInfo is a point-in-time snapshot for monitors and front-ends.
type DebugInfo struct {
	CPU CPUState

	Raster uint16
	Cycle  uint16
	Frame  uint64
	BA     bool

	Instr string
}

func (m *C64) DebugInfo() DebugInfo {
	return DebugInfo{
		CPU:    m.cpu.State(),
		Raster: m.vic.raster,
		Cycle:  m.vic.cycle,
		Frame:  m.vic.frame,
		BA:     m.vic.BA(),
		Instr:  m.cpu.mnemonic(m.bus.Peek8(m.cpu.pc)),
	}
}
