package ui

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/breadbin64/breadbin/internal/c64"
)

// Tab - show debug info
// F12 - pause
// F11 - one instruction and stop
// arrows + right Ctrl - joystick on control port 2

// palette is the 16 fixed colours, in the usual Pepto shades.
var palette = [16]color.RGBA{
	{0x00, 0x00, 0x00, 0xff},
	{0xff, 0xff, 0xff, 0xff},
	{0x68, 0x37, 0x2b, 0xff},
	{0x70, 0xa4, 0xb2, 0xff},
	{0x6f, 0x3d, 0x86, 0xff},
	{0x58, 0x8d, 0x43, 0xff},
	{0x35, 0x28, 0x79, 0xff},
	{0xb8, 0xc7, 0x6f, 0xff},
	{0x6f, 0x4f, 0x25, 0xff},
	{0x43, 0x39, 0x00, 0xff},
	{0x9a, 0x67, 0x59, 0xff},
	{0x44, 0x44, 0x44, 0xff},
	{0x6c, 0x6c, 0x6c, 0xff},
	{0x9a, 0xd2, 0x84, 0xff},
	{0x6c, 0x5e, 0xb5, 0xff},
	{0x95, 0x95, 0x95, 0xff},
}

// keymap takes host keys to keyboard matrix positions (row, column).
var keymap = map[ebiten.Key][2]int{
	ebiten.KeyBackspace: {0, 0},
	ebiten.KeyEnter:     {0, 1},
	ebiten.KeyF7:        {0, 3},
	ebiten.KeyF1:        {0, 4},
	ebiten.KeyF3:        {0, 5},
	ebiten.KeyF5:        {0, 6},

	ebiten.KeyDigit3:    {1, 0},
	ebiten.KeyW:         {1, 1},
	ebiten.KeyA:         {1, 2},
	ebiten.KeyDigit4:    {1, 3},
	ebiten.KeyZ:         {1, 4},
	ebiten.KeyS:         {1, 5},
	ebiten.KeyE:         {1, 6},
	ebiten.KeyShiftLeft: {1, 7},

	ebiten.KeyDigit5: {2, 0},
	ebiten.KeyR:      {2, 1},
	ebiten.KeyD:      {2, 2},
	ebiten.KeyDigit6: {2, 3},
	ebiten.KeyC:      {2, 4},
	ebiten.KeyF:      {2, 5},
	ebiten.KeyT:      {2, 6},
	ebiten.KeyX:      {2, 7},

	ebiten.KeyDigit7: {3, 0},
	ebiten.KeyY:      {3, 1},
	ebiten.KeyG:      {3, 2},
	ebiten.KeyDigit8: {3, 3},
	ebiten.KeyB:      {3, 4},
	ebiten.KeyH:      {3, 5},
	ebiten.KeyU:      {3, 6},
	ebiten.KeyV:      {3, 7},

	ebiten.KeyDigit9: {4, 0},
	ebiten.KeyI:      {4, 1},
	ebiten.KeyJ:      {4, 2},
	ebiten.KeyDigit0: {4, 3},
	ebiten.KeyM:      {4, 4},
	ebiten.KeyK:      {4, 5},
	ebiten.KeyO:      {4, 6},
	ebiten.KeyN:      {4, 7},

	ebiten.KeyP:          {5, 1},
	ebiten.KeyL:          {5, 2},
	ebiten.KeyMinus:      {5, 3},
	ebiten.KeyPeriod:     {5, 4},
	ebiten.KeySemicolon:  {5, 5},
	ebiten.KeyComma:      {5, 7},
	ebiten.KeyShiftRight: {6, 4},
	ebiten.KeyEqual:      {6, 5},
	ebiten.KeySlash:      {6, 6},

	ebiten.KeyDigit1:      {7, 0},
	ebiten.KeyControlLeft: {7, 2},
	ebiten.KeyDigit2:      {7, 3},
	ebiten.KeySpace:       {7, 4},
	ebiten.KeyQ:           {7, 6},
	ebiten.KeyEscape:      {7, 7},
}

type UI struct {
	machine *c64.C64

	screen *ebiten.Image
	buf    []byte

	showDebug bool
}

func New(machine *c64.C64) *UI {
	w, h := machine.FrameSize()
	return &UI{
		machine: machine,
		screen:  ebiten.NewImage(w, h),
		buf:     make([]byte, w*h*4),
	}
}

func (ui *UI) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyTab) {
		ui.showDebug = !ui.showDebug
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		ui.machine.TogglePause()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		return ui.machine.StepInstruction()
	}

	for key, pos := range keymap {
		ui.machine.SetKey(pos[0], pos[1], ebiten.IsKeyPressed(key))
	}
	ui.machine.SetJoystick(2, joystickMask())

	return ui.machine.RunFrame()
}

func joystickMask() uint8 {
	var mask uint8
	if ebiten.IsKeyPressed(ebiten.KeyArrowUp) {
		mask |= 0x01
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowDown) {
		mask |= 0x02
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		mask |= 0x04
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		mask |= 0x08
	}
	if ebiten.IsKeyPressed(ebiten.KeyControlRight) {
		mask |= 0x10
	}
	return mask
}

func (ui *UI) Draw(screen *ebiten.Image) {
	frame := ui.machine.Frame()
	for i, px := range frame {
		c := palette[px.Color&0x0f]
		ui.buf[i*4+0] = c.R
		ui.buf[i*4+1] = c.G
		ui.buf[i*4+2] = c.B
		ui.buf[i*4+3] = 0xff
	}
	ui.screen.WritePixels(ui.buf)

	op := &ebiten.DrawImageOptions{}
	// one frame pixel is one bus cycle: eight real pixels wide, two
	// window pixels tall
	op.GeoM.Scale(cycleScaleX, cycleScaleY)
	screen.DrawImage(ui.screen, op)

	if ui.showDebug {
		ui.drawDebug(screen)
	}
}

func (ui *UI) drawDebug(screen *ebiten.Image) {
	info := ui.machine.DebugInfo()

	var sb strings.Builder
	fmt.Fprintf(&sb, " FPS: %0.0f\n", ebiten.ActualFPS())
	fmt.Fprintf(&sb, " STATUS: %s\n", info.CPU.StatusString())
	fmt.Fprintf(&sb, " PC: %04X  %s\n", info.CPU.PC, info.Instr)
	fmt.Fprintf(&sb, " A: $%02X", info.CPU.A)
	fmt.Fprintf(&sb, " X: $%02X", info.CPU.X)
	fmt.Fprintf(&sb, " Y: $%02X\n", info.CPU.Y)
	fmt.Fprintf(&sb, " SP: $%02X\n", info.CPU.SP)
	fmt.Fprintf(&sb, " CYC: %d\n", info.CPU.Cycles)
	fmt.Fprintf(&sb, " RASTER: %d/%d FRAME: %d\n", info.Raster, info.Cycle, info.Frame)
	fmt.Fprintf(&sb, " BA: %v\n", info.BA)
	if ui.machine.Paused() {
		sb.WriteString(" PAUSED\n")
	}

	vector.DrawFilledRect(screen, 0, 0, 220, 120, color.RGBA{50, 50, 50, 200}, false)
	ebitenutil.DebugPrintAt(screen, sb.String(), 0, 0)
}

const (
	cycleScaleX = 8
	cycleScaleY = 2
)

func (ui *UI) Layout(_, _ int) (int, int) {
	w, h := ui.machine.FrameSize()
	return w * cycleScaleX, h * cycleScaleY
}

func RunUI(ui *UI) error {
	w, h := ui.Layout(0, 0)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(w, h)
	ebiten.SetWindowTitle("breadbin")
	ebiten.SetTPS(50)
	return ebiten.RunGame(ui)
}
