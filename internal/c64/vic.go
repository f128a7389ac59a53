package c64

// vicBus is the VIC's private view of memory: 16 KB windows of RAM with
// the character ROM shadowed in, plus the colour RAM nybbles. Supplied
// by the Bus; the VIC never touches CPU-visible banking.
type vicBus interface {
	vicRead(addr uint16) uint8
	vicColor(offset uint16) uint8
}

// Pixel is the chip's output for one cycle: a palette index, or the
// border colour with the Border flag as sentinel.
type Pixel struct {
	Color  uint8
	Border bool
}

// display window geometry, in raster lines and line cycles (1-based)
const (
	firstDisplayLine  = 0x30
	lastDisplayLine   = 0xf7
	firstDisplayCycle = 16
	lastDisplayCycle  = 55

	// on a bad line the chip takes the bus for the character pointer
	// fetches; BA is held low from three cycles before the first fetch
	badLineBAFirst = 12
	badLineBALast  = 54

	// each sprite's pointer/data fetch occupies two fixed cycles; the
	// slot for sprite n starts at cycle 56+2n (wrapping into the next
	// line on short rasters)
	spriteSlotBase = 56
)

// ctrl1 is register $D011.
type vicCtrl1 struct {
	yscroll uint8
	rsel    bool
	den     bool
	bmm     bool
	ecm     bool
}

func (c *vicCtrl1) write(data uint8) {
	c.yscroll = data & 0x07
	c.rsel = data&0x08 != 0
	c.den = data&0x10 != 0
	c.bmm = data&0x20 != 0
	c.ecm = data&0x40 != 0
}

func (c vicCtrl1) read() uint8 {
	v := c.yscroll
	if c.rsel {
		v |= 0x08
	}
	if c.den {
		v |= 0x10
	}
	if c.bmm {
		v |= 0x20
	}
	if c.ecm {
		v |= 0x40
	}
	return v
}

// ctrl2 is register $D016.
type vicCtrl2 struct {
	xscroll uint8
	csel    bool
	mcm     bool
}

func (c *vicCtrl2) write(data uint8) {
	c.xscroll = data & 0x07
	c.csel = data&0x08 != 0
	c.mcm = data&0x10 != 0
}

func (c vicCtrl2) read() uint8 {
	v := c.xscroll | 0xc0
	if c.csel {
		v |= 0x08
	}
	if c.mcm {
		v |= 0x10
	}
	return v
}

// interrupt status/enable bits ($D019/$D01A)
const (
	vicIRQRaster   = uint8(1 << 0)
	vicIRQSprBg    = uint8(1 << 1)
	vicIRQSprSpr   = uint8(1 << 2)
	vicIRQLightpen = uint8(1 << 3)
)

type vicSprite struct {
	x          uint16
	y          uint8
	enabled    bool
	expandX    bool
	expandY    bool
	multicolor bool
	behind     bool
	color      uint8
}

// width reports the sprite's horizontal span in pixels.
func (s vicSprite) width() uint16 {
	if s.expandX {
		return 48
	}
	return 24
}

// height reports the sprite's vertical span in raster lines.
func (s vicSprite) height() uint16 {
	if s.expandY {
		return 42
	}
	return 21
}

// coversLine reports whether the sprite occupies the given raster line.
func (s vicSprite) coversLine(raster uint16) bool {
	top := uint16(s.y)
	return s.enabled && raster >= top && raster < top+s.height()
}

// coversX reports whether the sprite's span intersects the 8-pixel
// group starting at screen coordinate x.
func (s vicSprite) coversX(x uint16) bool {
	return s.x < x+8 && x < s.x+s.width()
}

// VIC is the 6569/6567 video interface chip. Its raster line and line
// cycle counters are the timing reference for the whole machine; every
// Tic it resolves whether the coming cycle belongs to the CPU or to its
// own fetches (BA), produces one pixel, and updates its interrupt
// latches.
type VIC struct {
	mem vicBus

	cyclesPerLine uint16
	linesPerFrame uint16

	raster uint16
	cycle  uint16 // 1-based cycle within the line
	frame  uint64

	ctrl1 vicCtrl1
	ctrl2 vicCtrl2

	rasterCompare uint16

	// $D018: video matrix and character generator base addresses,
	// relative to the current VIC bank
	matrixBase uint16
	charBase   uint16

	irqStatus uint8
	irqEnable uint8

	sprites [8]vicSprite

	borderColor uint8
	bgColor     [4]uint8
	spriteExtra [2]uint8

	collisionMM uint8 // sprite-sprite, $D01E, cleared on read
	collisionMD uint8 // sprite-background, $D01F, cleared on read

	// den latched during the first display line decides whether the
	// frame displays at all (and with it, bad lines)
	denSeen bool

	ba        bool
	lastPixel Pixel
}

func newVIC(mem vicBus, cyclesPerLine, linesPerFrame uint16) *VIC {
	v := &VIC{
		mem:           mem,
		cyclesPerLine: cyclesPerLine,
		linesPerFrame: linesPerFrame,
	}
	v.reset()
	return v
}

func (v *VIC) reset() {
	v.raster = 0
	v.cycle = 1
	v.frame = 0
	v.ctrl1 = vicCtrl1{}
	v.ctrl2 = vicCtrl2{}
	v.rasterCompare = 0
	v.matrixBase = 0x0400
	v.charBase = 0x1000
	v.irqStatus = 0
	v.irqEnable = 0
	v.sprites = [8]vicSprite{}
	v.borderColor = 0
	v.bgColor = [4]uint8{}
	v.collisionMM = 0
	v.collisionMD = 0
	v.denSeen = false
	v.ba = true
	v.lastPixel = Pixel{Border: true}
}

// badLineNow evaluates the bad-line predicate from live register state.
// It is re-checked every cycle, so writes to $D011 mid-line create or
// remove the condition at the exact cycle of the write.
func (v *VIC) badLineNow() bool {
	return v.denSeen &&
		v.raster >= firstDisplayLine && v.raster <= lastDisplayLine &&
		uint8(v.raster)&0x07 == v.ctrl1.yscroll
}

// spriteSlot returns the line cycle at which sprite n's fetch begins.
// The later sprites' slots fall past the end of the line and wrap onto
// the first cycles of the following raster line.
func (v *VIC) spriteSlot(n int) uint16 {
	return (spriteSlotBase+uint16(2*n)-1)%v.cyclesPerLine + 1
}

// spriteDMALine returns the raster line whose data sprite n's slot
// fetches when it fires on the current line. A wrapped slot serves the
// line just finished.
func (v *VIC) spriteDMALine(n int) uint16 {
	if spriteSlotBase+uint16(2*n) <= v.cyclesPerLine {
		return v.raster
	}
	return (v.raster + v.linesPerFrame - 1) % v.linesPerFrame
}

// resolveBA decides bus ownership for the current cycle: low while the
// chip fetches character pointers on a bad line and during each active
// sprite's two-cycle data slot.
func (v *VIC) resolveBA() bool {
	if v.badLineNow() && v.cycle >= badLineBAFirst && v.cycle <= badLineBALast {
		return false
	}
	for n := 0; n < 8; n++ {
		slot := v.spriteSlot(n)
		if v.cycle != slot && v.cycle != slot+1 {
			continue
		}
		if v.sprites[n].coversLine(v.spriteDMALine(n)) {
			return false
		}
	}
	return true
}

// Tic advances the chip by one cycle. It must run before the CPU's
// share of the same master cycle so that a stolen cycle is already
// resolved when the CPU would touch the bus.
func (v *VIC) Tic() {
	v.cycle++
	if v.cycle > v.cyclesPerLine {
		v.cycle = 1
		v.raster++
		if v.raster >= v.linesPerFrame {
			v.raster = 0
			v.frame++
			v.denSeen = false
		}
		if v.raster == v.rasterCompare {
			v.triggerIRQ(vicIRQRaster)
		}
	}

	// den is sampled throughout the first display line; once seen, the
	// frame is a display frame
	if v.raster == firstDisplayLine && v.ctrl1.den {
		v.denSeen = true
	}

	v.ba = v.resolveBA()
	v.lastPixel = v.renderPixel()
}

// BA reports bus availability for the current cycle. Low means the CPU
// is denied the bus.
func (v *VIC) BA() bool {
	return v.ba
}

// Pixel returns the output produced by the current cycle.
func (v *VIC) Pixel() Pixel {
	return v.lastPixel
}

// IRQ reports the chip's interrupt output, recomputed from the live
// status and enable latches.
func (v *VIC) IRQ() bool {
	return v.irqStatus&v.irqEnable&0x0f != 0
}

func (v *VIC) triggerIRQ(bit uint8) {
	v.irqStatus |= bit
}

// inDisplayWindow reports whether the current cycle falls inside the
// text window; rsel/csel shave one character row/column off each edge.
func (v *VIC) inDisplayWindow() bool {
	top, bottom := uint16(firstDisplayLine), uint16(lastDisplayLine)
	if !v.ctrl1.rsel {
		top += 4
		bottom -= 4
	}
	left, right := uint16(firstDisplayCycle), uint16(lastDisplayCycle)
	if !v.ctrl2.csel {
		left++
		right--
	}
	return v.raster >= top && v.raster <= bottom &&
		v.cycle >= left && v.cycle <= right
}

// renderPixel produces the palette value for this cycle: the leading
// pixel of the 8-pixel group the cycle generates, or the border colour.
// Sprite coverage and the collision latches are resolved here at the
// same group granularity.
func (v *VIC) renderPixel() Pixel {
	if !v.denSeen || !v.inDisplayWindow() {
		return Pixel{Color: v.borderColor, Border: true}
	}

	row := (v.raster - firstDisplayLine) >> 3
	col := v.cycle - firstDisplayCycle
	line := (v.raster - firstDisplayLine) & 0x07
	cell := row*40 + col

	code := v.mem.vicRead(v.matrixBase + cell)
	var data uint8
	if v.ctrl1.bmm {
		data = v.mem.vicRead(v.charBase&0x2000 + cell<<3 + line)
	} else {
		glyph := uint16(code)
		if v.ctrl1.ecm {
			glyph &= 0x3f
		}
		data = v.mem.vicRead(v.charBase + glyph<<3 + line)
	}

	foreground := data&0x80 != 0
	color := v.bgColor[0]
	if foreground {
		if v.ctrl1.bmm {
			color = code >> 4
		} else {
			color = v.mem.vicColor(cell)
		}
	}

	// sprite resolution for this group: lowest-numbered sprite wins;
	// collision latches record every overlap regardless of priority.
	// The interrupts fire only when a collision hits an empty latch, so
	// they re-arm once the latch has been read clear
	x := col * 8
	covering := -1
	for n := 0; n < 8; n++ {
		s := &v.sprites[n]
		if !s.coversLine(v.raster) || !s.coversX(x) {
			continue
		}
		if covering >= 0 {
			if v.collisionMM == 0 {
				v.triggerIRQ(vicIRQSprSpr)
			}
			v.collisionMM |= 1<<uint(n) | 1<<uint(covering)
		} else {
			covering = n
		}
		if foreground {
			if v.collisionMD == 0 {
				v.triggerIRQ(vicIRQSprBg)
			}
			v.collisionMD |= 1 << uint(n)
		}
	}
	if covering >= 0 {
		s := &v.sprites[covering]
		if !s.behind || !foreground {
			color = s.color
		}
	}

	return Pixel{Color: color & 0x0f}
}

func (v *VIC) readRegister(reg uint16) uint8 {
	switch {
	case reg <= 0x0f:
		n := reg >> 1
		if reg&1 == 0 {
			return uint8(v.sprites[n].x)
		}
		return v.sprites[n].y
	}

	switch reg {
	case 0x10:
		var msb uint8
		for n := 0; n < 8; n++ {
			if v.sprites[n].x&0x100 != 0 {
				msb |= 1 << uint(n)
			}
		}
		return msb
	case 0x11:
		// bit 7 reads back the live raster counter, not the compare
		v8 := v.ctrl1.read()
		if v.raster&0x100 != 0 {
			v8 |= 0x80
		}
		return v8
	case 0x12:
		return uint8(v.raster)
	case 0x15:
		return v.spriteBits(func(s *vicSprite) bool { return s.enabled })
	case 0x16:
		return v.ctrl2.read()
	case 0x17:
		return v.spriteBits(func(s *vicSprite) bool { return s.expandY })
	case 0x18:
		return uint8(v.matrixBase>>6) | uint8(v.charBase>>10) | 0x01
	case 0x19:
		v8 := v.irqStatus | 0x70
		if v.IRQ() {
			v8 |= 0x80
		}
		return v8
	case 0x1a:
		return v.irqEnable | 0xf0
	case 0x1b:
		return v.spriteBits(func(s *vicSprite) bool { return s.behind })
	case 0x1c:
		return v.spriteBits(func(s *vicSprite) bool { return s.multicolor })
	case 0x1d:
		return v.spriteBits(func(s *vicSprite) bool { return s.expandX })
	case 0x1e:
		// reading acknowledges the collision latch
		c := v.collisionMM
		v.collisionMM = 0
		return c
	case 0x1f:
		c := v.collisionMD
		v.collisionMD = 0
		return c
	case 0x20:
		return v.borderColor | 0xf0
	case 0x21, 0x22, 0x23, 0x24:
		return v.bgColor[reg-0x21] | 0xf0
	case 0x25, 0x26:
		return v.spriteExtra[reg-0x25] | 0xf0
	}
	if reg >= 0x27 && reg <= 0x2e {
		return v.sprites[reg-0x27].color | 0xf0
	}
	return 0xff
}

func (v *VIC) writeRegister(reg uint16, data uint8) {
	switch {
	case reg <= 0x0f:
		n := reg >> 1
		if reg&1 == 0 {
			v.sprites[n].x = v.sprites[n].x&0x100 | uint16(data)
		} else {
			v.sprites[n].y = data
		}
		return
	}

	switch reg {
	case 0x10:
		for n := 0; n < 8; n++ {
			if data&(1<<uint(n)) != 0 {
				v.sprites[n].x |= 0x100
			} else {
				v.sprites[n].x &^= 0x100
			}
		}
	case 0x11:
		v.ctrl1.write(data)
		v.rasterCompare = v.rasterCompare&0x00ff | uint16(data&0x80)<<1
		v.checkRasterCompare()
	case 0x12:
		v.rasterCompare = v.rasterCompare&0x0100 | uint16(data)
		v.checkRasterCompare()
	case 0x15:
		v.setSpriteBits(data, func(s *vicSprite, on bool) { s.enabled = on })
	case 0x16:
		v.ctrl2.write(data)
	case 0x17:
		v.setSpriteBits(data, func(s *vicSprite, on bool) { s.expandY = on })
	case 0x18:
		v.matrixBase = uint16(data&0xf0) << 6
		v.charBase = uint16(data&0x0e) << 10
	case 0x19:
		// writing ones acknowledges the corresponding sources
		v.irqStatus &^= data & 0x0f
	case 0x1a:
		v.irqEnable = data & 0x0f
	case 0x1b:
		v.setSpriteBits(data, func(s *vicSprite, on bool) { s.behind = on })
	case 0x1c:
		v.setSpriteBits(data, func(s *vicSprite, on bool) { s.multicolor = on })
	case 0x1d:
		v.setSpriteBits(data, func(s *vicSprite, on bool) { s.expandX = on })
	case 0x20:
		v.borderColor = data & 0x0f
	case 0x21, 0x22, 0x23, 0x24:
		v.bgColor[reg-0x21] = data & 0x0f
	case 0x25, 0x26:
		v.spriteExtra[reg-0x25] = data & 0x0f
	}
	if reg >= 0x27 && reg <= 0x2e {
		v.sprites[reg-0x27].color = data & 0x0f
	}
}

// checkRasterCompare fires the raster interrupt when a register write
// moves the compare value onto the line currently being drawn.
func (v *VIC) checkRasterCompare() {
	if v.rasterCompare == v.raster {
		v.triggerIRQ(vicIRQRaster)
	}
}

func (v *VIC) spriteBits(get func(*vicSprite) bool) uint8 {
	var bits uint8
	for n := 0; n < 8; n++ {
		if get(&v.sprites[n]) {
			bits |= 1 << uint(n)
		}
	}
	return bits
}

func (v *VIC) setSpriteBits(data uint8, set func(*vicSprite, bool)) {
	for n := 0; n < 8; n++ {
		set(&v.sprites[n], data&(1<<uint(n)) != 0)
	}
}
