package c64

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_PLA_Resolve(t *testing.T) {
	all := bankConfig{loram: true, hiram: true, charen: true}

	type testArgs struct {
		name   string
		cfg    bankConfig
		addr   uint16
		write  bool
		target bankTarget
	}

	tests := []testArgs{
		{name: "zero page is always ram", cfg: all, addr: 0x0002, target: bankRAM},
		{name: "basic visible with loram and hiram", cfg: all, addr: 0xa000, target: bankBasic},
		{name: "basic hidden without loram", cfg: bankConfig{hiram: true, charen: true}, addr: 0xa000, target: bankRAM},
		{name: "basic hidden without hiram", cfg: bankConfig{loram: true, charen: true}, addr: 0xa000, target: bankRAM},
		{name: "kernal visible with hiram", cfg: bankConfig{hiram: true}, addr: 0xe000, target: bankKernal},
		{name: "kernal top byte", cfg: all, addr: 0xffff, target: bankKernal},
		{name: "kernal hidden without hiram", cfg: bankConfig{loram: true, charen: true}, addr: 0xe000, target: bankRAM},
		{name: "io window with charen", cfg: all, addr: 0xd020, target: bankIO},
		{name: "char rom without charen", cfg: bankConfig{loram: true, hiram: true}, addr: 0xd020, target: bankCharROM},
		{name: "d000 is ram when fully banked out", cfg: bankConfig{}, addr: 0xd020, target: bankRAM},
		{name: "middle ram untouched", cfg: all, addr: 0x8000, target: bankRAM},
		{name: "c000 block always ram", cfg: all, addr: 0xc000, target: bankRAM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.target, tt.cfg.resolve(tt.addr, tt.write))
		})
	}
}

func Test_PLA_WritesFallThroughROM(t *testing.T) {
	all := bankConfig{loram: true, hiram: true, charen: true}

	assert.Equal(t, bankRAM, all.resolve(0xa000, true), "basic window")
	assert.Equal(t, bankRAM, all.resolve(0xe000, true), "kernal window")

	// the io window accepts writes
	assert.Equal(t, bankIO, all.resolve(0xd020, true))

	// char rom window also decodes writes to ram
	noCharen := bankConfig{loram: true, hiram: true}
	assert.Equal(t, bankRAM, noCharen.resolve(0xd020, true))
}
