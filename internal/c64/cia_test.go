package c64

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_CIA_TimerUnderflowAfterExactlyN(t *testing.T) {
	c := newCIA(98524)

	// latch 100, unmask timer A, start continuous
	c.writeRegister(0x04, 100)
	c.writeRegister(0x05, 0)
	c.writeRegister(0x0d, ciaICRSetClear|ciaICRTimerA)
	c.writeRegister(0x0e, 0x01)

	for i := 0; i < 99; i++ {
		c.Tic()
		assert.False(t, c.IRQ(), "cycle %d", i)
	}
	c.Tic()
	assert.True(t, c.IRQ(), "underflow on the 100th cycle")
}

func Test_CIA_OneShotStops(t *testing.T) {
	c := newCIA(98524)

	c.writeRegister(0x04, 3)
	c.writeRegister(0x05, 0)
	c.writeRegister(0x0e, 0x09) // start, one-shot

	for i := 0; i < 3; i++ {
		c.Tic()
	}
	assert.NotZero(t, c.icrStatus&ciaICRTimerA)
	assert.False(t, c.timerA.running)
	assert.Equal(t, uint16(3), c.timerA.counter, "latch reloaded")
	assert.Zero(t, c.readRegister(0x0e)&0x01, "start bit reads back clear")
}

func Test_CIA_ContinuousReloads(t *testing.T) {
	c := newCIA(98524)

	c.writeRegister(0x04, 5)
	c.writeRegister(0x05, 0)
	c.writeRegister(0x0e, 0x01)

	underflows := 0
	for i := 0; i < 15; i++ {
		c.readRegister(0x0d) // keep acknowledging
		c.Tic()
		if c.icrStatus&ciaICRTimerA != 0 {
			underflows++
		}
	}
	assert.Equal(t, 3, underflows)
	assert.True(t, c.timerA.running)
}

func Test_CIA_ICRSemantics(t *testing.T) {
	t.Run("read acknowledges all sources", func(t *testing.T) {
		c := newCIA(98524)
		c.icrStatus = ciaICRTimerA | ciaICRTimerB
		c.icrMask = ciaICRTimerA

		v := c.readRegister(0x0d)
		assert.Equal(t, ciaICRTimerA|ciaICRTimerB|0x80, v, "bit 7 mirrors the line")
		assert.Zero(t, c.icrStatus)
		assert.False(t, c.IRQ())
	})

	t.Run("masked sources do not drive the line", func(t *testing.T) {
		c := newCIA(98524)
		c.icrStatus = ciaICRTimerB
		assert.False(t, c.IRQ())

		v := c.readRegister(0x0d)
		assert.Equal(t, ciaICRTimerB, v, "bit 7 stays clear")
	})

	t.Run("mask set and clear", func(t *testing.T) {
		c := newCIA(98524)
		c.writeRegister(0x0d, ciaICRSetClear|ciaICRTimerA|ciaICRTimerB)
		assert.Equal(t, ciaICRTimerA|ciaICRTimerB, c.icrMask)

		c.writeRegister(0x0d, ciaICRTimerB)
		assert.Equal(t, ciaICRTimerA, c.icrMask, "only the written bits clear")
	})
}

func Test_CIA_TimerBChainsFromA(t *testing.T) {
	c := newCIA(98524)

	c.writeRegister(0x04, 2) // timer A underflows every 2 cycles
	c.writeRegister(0x05, 0)
	c.writeRegister(0x06, 3) // timer B counts those underflows
	c.writeRegister(0x07, 0)
	c.writeRegister(0x0e, 0x01)
	c.writeRegister(0x0f, 0x41) // start, input = timer A underflow

	// timer B needs 3 underflows of A, each 2 cycles apart
	for i := 0; i < 5; i++ {
		c.Tic()
	}
	assert.Zero(t, c.icrStatus&ciaICRTimerB)
	c.Tic()
	assert.NotZero(t, c.icrStatus&ciaICRTimerB)
}

func Test_CIA_ForceLoad(t *testing.T) {
	c := newCIA(98524)

	c.writeRegister(0x04, 0x34)
	c.writeRegister(0x05, 0x12)
	assert.Equal(t, uint16(0x1234), c.timerA.counter, "high write loads while stopped")

	c.writeRegister(0x0e, 0x01)
	c.Tic()
	assert.Equal(t, uint16(0x1233), c.timerA.counter)

	c.writeRegister(0x0e, 0x11) // force load while running
	assert.Equal(t, uint16(0x1234), c.timerA.counter)
}

func Test_CIA_PortDirection(t *testing.T) {
	c := newCIA(98524)
	ext := uint8(0xff)
	c.portB.in = func() uint8 { return ext }

	c.writeRegister(0x03, 0x0f) // low nybble output
	c.writeRegister(0x01, 0x05)

	// input pins float high, output pins read back the latch
	assert.Equal(t, uint8(0xf5), c.readRegister(0x01))

	// reads return pin state: an external device can pull a driven
	// output low, which is what the keyboard matrix scan relies on
	ext = 0xa0
	assert.Equal(t, uint8(0xa0), c.readRegister(0x01))
}

func Test_CIA_TODCounts(t *testing.T) {
	c := newCIA(10)

	c.tod.tenths = 0x09
	c.tod.seconds = 0x59
	for i := 0; i < 10; i++ {
		c.Tic()
	}
	assert.Equal(t, uint8(0x00), c.tod.tenths)
	assert.Equal(t, uint8(0x00), c.tod.seconds)
	assert.Equal(t, uint8(0x01), c.tod.minutes)
}
