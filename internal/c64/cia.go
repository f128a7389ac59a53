package c64

// icr status/mask bits
const (
	ciaICRTimerA   = uint8(1 << 0)
	ciaICRTimerB   = uint8(1 << 1)
	ciaICRAlarm    = uint8(1 << 2)
	ciaICRSerial   = uint8(1 << 3)
	ciaICRFlag     = uint8(1 << 4)
	ciaICRSetClear = uint8(1 << 7)
	ciaICRUsedBits = uint8(0x1f)
)

// timer input sources
type ciaTimerInput uint8

const (
	ciaInputClock     ciaTimerInput = iota // system clock, phi2
	ciaInputCNT                            // external CNT pin edges
	ciaInputTimerA                         // timer A underflows (timer B only)
	ciaInputTimerACNT                      // timer A underflows while CNT high
)

// ciaTimer is one 16-bit down-counter. A counter loaded with N
// underflows on the Nth clocked decrement: the underflow cycle sets the
// status bit and either reloads from the latch (continuous) or stops
// (one-shot).
type ciaTimer struct {
	latch   uint16
	counter uint16
	running bool
	oneShot bool
	input   ciaTimerInput
}

// tick advances the timer by one input event and reports underflow.
func (t *ciaTimer) tick() bool {
	if !t.running {
		return false
	}
	t.counter--
	if t.counter != 0 {
		return false
	}
	t.counter = t.latch
	if t.oneShot {
		t.running = false
	}
	return true
}

// load copies the latch into the counter (force-load, or a high-byte
// write while the timer is stopped).
func (t *ciaTimer) load() {
	t.counter = t.latch
}

// ciaPort is one 8-bit parallel port. Pins configured as inputs read
// from the external world through the in callback (keyboard matrix,
// joystick, VIC bank pull-ups); pins configured as outputs read back
// the latch.
type ciaPort struct {
	data uint8
	ddr  uint8
	in   func() uint8
}

func (p ciaPort) out() uint8 {
	return p.data | ^p.ddr
}

func (p ciaPort) read() uint8 {
	ext := uint8(0xff)
	if p.in != nil {
		ext = p.in()
	}
	return (p.data | ^p.ddr) & ext
}

// todClock is the free-running time-of-day counter. It has no timing
// interplay with the rest of the chip beyond counting mains-frequency
// tenths of a second, so it is modelled as plain register state driven
// by a cycle divider.
type todClock struct {
	tenths  uint8
	seconds uint8
	minutes uint8
	hours   uint8

	divider        int
	cyclesPerTenth int
}

func (tod *todClock) tick() {
	tod.divider++
	if tod.divider < tod.cyclesPerTenth {
		return
	}
	tod.divider = 0
	tod.tenths = bcdInc(tod.tenths, 0x09)
	if tod.tenths != 0 {
		return
	}
	tod.seconds = bcdInc(tod.seconds, 0x59)
	if tod.seconds != 0 {
		return
	}
	tod.minutes = bcdInc(tod.minutes, 0x59)
	if tod.minutes != 0 {
		return
	}
	tod.hours = bcdInc(tod.hours&0x1f, 0x12) | tod.hours&0x80
}

func bcdInc(v, wrap uint8) uint8 {
	if v == wrap {
		return 0
	}
	if v&0x0f == 0x09 {
		return (v & 0xf0) + 0x10
	}
	return v + 1
}

// CIA is one 6526 complex interface adapter. The machine instantiates
// two: CIA 1 drives the maskable interrupt line and scans the keyboard,
// CIA 2 drives the non-maskable line and selects the VIC bank. That
// routing is hard wiring on the board, not chip state, so it lives in
// the machine.
type CIA struct {
	timerA ciaTimer
	timerB ciaTimer

	icrStatus uint8
	icrMask   uint8

	portA ciaPort
	portB ciaPort

	tod todClock

	// serial shift register latch; the serial line itself is an
	// external collaborator
	sdr uint8
}

func newCIA(cyclesPerTenth int) *CIA {
	c := &CIA{}
	c.tod.cyclesPerTenth = cyclesPerTenth
	c.reset()
	return c
}

func (c *CIA) reset() {
	c.timerA = ciaTimer{latch: 0xffff, counter: 0xffff}
	c.timerB = ciaTimer{latch: 0xffff, counter: 0xffff}
	c.icrStatus = 0
	c.icrMask = 0
	c.portA.data = 0xff
	c.portA.ddr = 0
	c.portB.data = 0xff
	c.portB.ddr = 0
	c.tod.divider = 0
}

// Tic advances the chip by one system clock cycle.
func (c *CIA) Tic() {
	underA := false
	if c.timerA.input == ciaInputClock {
		underA = c.timerA.tick()
	}
	if underA {
		c.icrStatus |= ciaICRTimerA
	}

	underB := false
	switch c.timerB.input {
	case ciaInputClock:
		underB = c.timerB.tick()
	case ciaInputTimerA, ciaInputTimerACNT:
		if underA {
			underB = c.timerB.tick()
		}
	}
	if underB {
		c.icrStatus |= ciaICRTimerB
	}

	c.tod.tick()
}

// IRQ reports the chip's interrupt output: any unmasked status bit
// drives the line. Recomputed from live state on every call.
func (c *CIA) IRQ() bool {
	return c.icrStatus&c.icrMask&ciaICRUsedBits != 0
}

func (c *CIA) portAOut() uint8 {
	return c.portA.out()
}

func (c *CIA) readRegister(reg uint16) uint8 {
	switch reg {
	case 0x00:
		return c.portA.read()
	case 0x01:
		return c.portB.read()
	case 0x02:
		return c.portA.ddr
	case 0x03:
		return c.portB.ddr
	case 0x04:
		return uint8(c.timerA.counter)
	case 0x05:
		return uint8(c.timerA.counter >> 8)
	case 0x06:
		return uint8(c.timerB.counter)
	case 0x07:
		return uint8(c.timerB.counter >> 8)
	case 0x08:
		return c.tod.tenths
	case 0x09:
		return c.tod.seconds
	case 0x0a:
		return c.tod.minutes
	case 0x0b:
		return c.tod.hours
	case 0x0c:
		return c.sdr
	case 0x0d:
		// reading the interrupt control register acknowledges every
		// pending source: status clears, bit 7 reports whether the
		// line was being driven
		v := c.icrStatus
		if c.IRQ() {
			v |= 0x80
		}
		c.icrStatus = 0
		return v
	case 0x0e:
		return c.controlA()
	case 0x0f:
		return c.controlB()
	}
	return 0
}

func (c *CIA) writeRegister(reg uint16, data uint8) {
	switch reg {
	case 0x00:
		c.portA.data = data
	case 0x01:
		c.portB.data = data
	case 0x02:
		c.portA.ddr = data
	case 0x03:
		c.portB.ddr = data
	case 0x04:
		c.timerA.latch = c.timerA.latch&0xff00 | uint16(data)
	case 0x05:
		c.timerA.latch = c.timerA.latch&0x00ff | uint16(data)<<8
		if !c.timerA.running {
			c.timerA.load()
		}
	case 0x06:
		c.timerB.latch = c.timerB.latch&0xff00 | uint16(data)
	case 0x07:
		c.timerB.latch = c.timerB.latch&0x00ff | uint16(data)<<8
		if !c.timerB.running {
			c.timerB.load()
		}
	case 0x08:
		c.tod.tenths = data & 0x0f
	case 0x09:
		c.tod.seconds = data & 0x7f
	case 0x0a:
		c.tod.minutes = data & 0x7f
	case 0x0b:
		c.tod.hours = data & 0x9f
	case 0x0c:
		c.sdr = data
	case 0x0d:
		// bit 7 selects whether the written bits set or clear the mask
		if data&ciaICRSetClear != 0 {
			c.icrMask |= data & ciaICRUsedBits
		} else {
			c.icrMask &^= data & ciaICRUsedBits
		}
	case 0x0e:
		c.timerA.running = data&0x01 != 0
		c.timerA.oneShot = data&0x08 != 0
		if data&0x20 != 0 {
			c.timerA.input = ciaInputCNT
		} else {
			c.timerA.input = ciaInputClock
		}
		if data&0x10 != 0 {
			c.timerA.load()
		}
	case 0x0f:
		c.timerB.running = data&0x01 != 0
		c.timerB.oneShot = data&0x08 != 0
		c.timerB.input = ciaTimerInput(data >> 5 & 0x03)
		if data&0x10 != 0 {
			c.timerB.load()
		}
	}
}

func (c *CIA) controlA() uint8 {
	var v uint8
	if c.timerA.running {
		v |= 0x01
	}
	if c.timerA.oneShot {
		v |= 0x08
	}
	if c.timerA.input == ciaInputCNT {
		v |= 0x20
	}
	return v
}

func (c *CIA) controlB() uint8 {
	var v uint8
	if c.timerB.running {
		v |= 0x01
	}
	if c.timerB.oneShot {
		v |= 0x08
	}
	v |= uint8(c.timerB.input) << 5
	return v
}
