package c64

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type memMock struct {
	mock.Mock
}

func (m *memMock) Read8(addr uint16) uint8 {
	args := m.Called(addr)
	return args.Get(0).(uint8)
}

func (m *memMock) Write8(addr uint16, data uint8) {
	m.Called(addr, data)
}

// testRAM is a flat 64 KB memory for running small programs without the
// full bus.
type testRAM [0x10000]uint8

func (r *testRAM) Read8(addr uint16) uint8 {
	return r[addr]
}

func (r *testRAM) Write8(addr uint16, data uint8) {
	r[addr] = data
}

// newTestCPU returns a CPU at an instruction boundary with the given
// program loaded at pc, reset start-up already behind it.
func newTestCPU(program ...uint8) (*CPU, *testRAM) {
	ram := &testRAM{}
	pc := uint16(0x0800)
	copy(ram[pc:], program)
	cpu := NewCPU(ram)
	cpu.pc = pc
	cpu.sp = 0xfd
	cpu.p = flagU | flagI
	cpu.cycles = 0
	return cpu, ram
}

// stepInstr runs the CPU to the next instruction boundary and reports
// how many cycles the instruction took.
func stepInstr(t *testing.T, cpu *CPU) int {
	t.Helper()
	n := 0
	for {
		assert.NoError(t, cpu.Tic())
		n++
		if cpu.cycles == 0 {
			return n
		}
	}
}

func Test_CPU_Reset(t *testing.T) {
	mem := &memMock{}
	mem.On("Read8", vectorReset).Return(uint8(0x34)).Once()
	mem.On("Read8", vectorReset+1).Return(uint8(0x12)).Once()

	cpu := NewCPU(mem)
	cpu.Reset()

	assert.Equal(t, uint16(0x1234), cpu.pc)
	assert.Equal(t, uint8(0xfd), cpu.sp)
	assert.Equal(t, flagU|flagI, cpu.p)
	assert.Equal(t, uint8(0), cpu.a)
	assert.Equal(t, uint8(0), cpu.x)
	assert.Equal(t, uint8(0), cpu.y)
	assert.Equal(t, uint8(7), cpu.cycles)
	mem.AssertExpectations(t)
}

func Test_CPU_InstructionCycles(t *testing.T) {
	type testArgs struct {
		name    string
		program []uint8
		cycles  int
	}

	tests := []testArgs{
		{name: "LDA immediate", program: []uint8{0xa9, 0x01}, cycles: 2},
		{name: "LDA zeropage", program: []uint8{0xa5, 0x10}, cycles: 3},
		{name: "LDA absolute", program: []uint8{0xad, 0x00, 0x20}, cycles: 4},
		{name: "STA absolute", program: []uint8{0x8d, 0x00, 0x20}, cycles: 4},
		{name: "STA absolute,X never short", program: []uint8{0x9d, 0x00, 0x20}, cycles: 5},
		{name: "JMP absolute", program: []uint8{0x4c, 0x00, 0x08}, cycles: 3},
		{name: "NOP", program: []uint8{0xea}, cycles: 2},
		{name: "BRK", program: []uint8{0x00}, cycles: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu, _ := newTestCPU(tt.program...)
			assert.Equal(t, tt.cycles, stepInstr(t, cpu))
		})
	}
}

func Test_CPU_PageCrossPenalty(t *testing.T) {
	t.Run("LDA absolute,X within page", func(t *testing.T) {
		cpu, _ := newTestCPU(0xbd, 0x00, 0x20) // LDA $2000,X
		cpu.x = 0x10
		assert.Equal(t, 4, stepInstr(t, cpu))
	})

	t.Run("LDA absolute,X across page", func(t *testing.T) {
		cpu, _ := newTestCPU(0xbd, 0xf0, 0x20) // LDA $20F0,X
		cpu.x = 0x20
		assert.Equal(t, 5, stepInstr(t, cpu))
	})

	t.Run("branch taken same page", func(t *testing.T) {
		cpu, _ := newTestCPU(0xd0, 0x02) // BNE +2
		cpu.setFlag(flagZ, false)
		assert.Equal(t, 3, stepInstr(t, cpu))
	})

	t.Run("branch not taken", func(t *testing.T) {
		cpu, _ := newTestCPU(0xd0, 0x02)
		cpu.setFlag(flagZ, true)
		assert.Equal(t, 2, stepInstr(t, cpu))
	})
}

func Test_ADC_Decimal(t *testing.T) {
	type testArgs struct {
		initA        uint8
		operandValue uint8
		carryIn      bool
		expectedA    uint8
		expectedC    bool
	}

	testDo := func(t *testing.T, in testArgs) {
		cpu := NewCPU(nil)
		cpu.a = in.initA
		cpu.operandValue = in.operandValue
		cpu.setFlag(flagD, true)
		cpu.setFlag(flagC, in.carryIn)

		cpu.adc()

		assert.Equal(t, in.expectedA, cpu.a, "A register")
		assert.Equal(t, in.expectedC, cpu.getFlag(flagC), "carry")
	}

	t.Run("12 + 34 = 46", func(t *testing.T) {
		testDo(t, testArgs{initA: 0x12, operandValue: 0x34, expectedA: 0x46})
	})

	t.Run("58 + 46 + carry = 05 with carry out", func(t *testing.T) {
		testDo(t, testArgs{initA: 0x58, operandValue: 0x46, carryIn: true, expectedA: 0x05, expectedC: true})
	})

	t.Run("99 + 01 wraps to 00 with carry out", func(t *testing.T) {
		testDo(t, testArgs{initA: 0x99, operandValue: 0x01, expectedA: 0x00, expectedC: true})
	})

	t.Run("low nibble adjust only", func(t *testing.T) {
		testDo(t, testArgs{initA: 0x09, operandValue: 0x01, expectedA: 0x10})
	})

	t.Run("binary mode unaffected by operands", func(t *testing.T) {
		cpu := NewCPU(nil)
		cpu.a = 0x09
		cpu.operandValue = 0x01
		cpu.adc()
		assert.Equal(t, uint8(0x0a), cpu.a)
	})
}

func Test_SBC_Decimal(t *testing.T) {
	type testArgs struct {
		initA        uint8
		operandValue uint8
		carryIn      bool
		expectedA    uint8
		expectedC    bool
	}

	testDo := func(t *testing.T, in testArgs) {
		cpu := NewCPU(nil)
		cpu.a = in.initA
		cpu.operandValue = in.operandValue
		cpu.setFlag(flagD, true)
		cpu.setFlag(flagC, in.carryIn)

		cpu.sbc()

		assert.Equal(t, in.expectedA, cpu.a, "A register")
		assert.Equal(t, in.expectedC, cpu.getFlag(flagC), "carry")
	}

	t.Run("46 - 12 = 34", func(t *testing.T) {
		testDo(t, testArgs{initA: 0x46, operandValue: 0x12, carryIn: true, expectedA: 0x34, expectedC: true})
	})

	t.Run("40 - 13 = 27 with low borrow", func(t *testing.T) {
		testDo(t, testArgs{initA: 0x40, operandValue: 0x13, carryIn: true, expectedA: 0x27, expectedC: true})
	})

	t.Run("12 - 21 borrows", func(t *testing.T) {
		testDo(t, testArgs{initA: 0x12, operandValue: 0x21, carryIn: true, expectedA: 0x91, expectedC: false})
	})

	t.Run("00 - 01 wraps to 99", func(t *testing.T) {
		testDo(t, testArgs{initA: 0x00, operandValue: 0x01, carryIn: true, expectedA: 0x99, expectedC: false})
	})
}

func Test_CPU_IRQ(t *testing.T) {
	// NOP at 0x0800, handler address in the IRQ vector
	setup := func() (*CPU, *testRAM) {
		cpu, ram := newTestCPU(0xea, 0xea, 0xea)
		ram[vectorIRQ] = 0x00
		ram[vectorIRQ+1] = 0x90
		return cpu, ram
	}

	t.Run("masked while I is set", func(t *testing.T) {
		cpu, _ := setup()
		cpu.SetIRQ(true)
		stepInstr(t, cpu)
		assert.Equal(t, uint16(0x0801), cpu.pc)
	})

	t.Run("taken at instruction boundary", func(t *testing.T) {
		cpu, ram := setup()
		cpu.setFlag(flagI, false)
		cpu.SetIRQ(true)

		// the line is already high at the boundary, so the acknowledge
		// sequence runs before the next opcode is fetched
		n := stepInstr(t, cpu)
		assert.Equal(t, 7, n, "interrupt acknowledge sequence")
		assert.Equal(t, uint16(0x9000), cpu.pc)
		assert.True(t, cpu.getFlag(flagI))

		// pushed status has the break flag clear
		pushedP := ram[uint16(0x100)|uint16(cpu.sp+1)]
		assert.Zero(t, pushedP&flagB)
		pushedPC := uint16(ram[uint16(0x100)|uint16(cpu.sp+2)]) |
			uint16(ram[uint16(0x100)|uint16(cpu.sp+3)])<<8
		assert.Equal(t, uint16(0x0800), pushedPC)
	})

	t.Run("asserted mid-instruction waits for the boundary", func(t *testing.T) {
		cpu, _ := setup()
		cpu.setFlag(flagI, false)

		assert.NoError(t, cpu.Tic()) // first cycle of the NOP
		cpu.SetIRQ(true)
		assert.NoError(t, cpu.Tic()) // NOP finishes undisturbed
		assert.Equal(t, uint16(0x0801), cpu.pc)

		n := stepInstr(t, cpu)
		assert.Equal(t, 7, n, "serviced at the next boundary")
		assert.Equal(t, uint16(0x9000), cpu.pc)
	})

	t.Run("level sensitive, line dropped before boundary", func(t *testing.T) {
		cpu, _ := setup()
		cpu.setFlag(flagI, false)
		cpu.SetIRQ(true)
		cpu.SetIRQ(false)
		stepInstr(t, cpu)
		stepInstr(t, cpu)
		assert.Equal(t, uint16(0x0802), cpu.pc)
	})
}

func Test_CPU_NMI(t *testing.T) {
	setup := func() (*CPU, *testRAM) {
		cpu, ram := newTestCPU(0xea, 0xea, 0xea)
		ram[vectorNMI] = 0x00
		ram[vectorNMI+1] = 0xa0
		ram[vectorIRQ] = 0x00
		ram[vectorIRQ+1] = 0x90
		return cpu, ram
	}

	t.Run("edge triggered and unmaskable", func(t *testing.T) {
		cpu, _ := setup()
		cpu.SetNMI(true) // I flag is set, the edge still gets through
		n := stepInstr(t, cpu)
		assert.Equal(t, 7, n)
		assert.Equal(t, uint16(0xa000), cpu.pc)
	})

	t.Run("level held high does not retrigger", func(t *testing.T) {
		cpu, ram := setup()
		ram[0xa000] = 0xea
		cpu.SetNMI(true)
		stepInstr(t, cpu) // acknowledge sequence
		assert.Equal(t, uint16(0xa000), cpu.pc)
		cpu.SetNMI(true)  // still high, no new edge
		stepInstr(t, cpu) // NOP inside the handler
		assert.Equal(t, uint16(0xa001), cpu.pc)
	})

	t.Run("wins over simultaneous IRQ", func(t *testing.T) {
		cpu, _ := setup()
		cpu.setFlag(flagI, false)
		cpu.SetIRQ(true)
		cpu.SetNMI(true)
		stepInstr(t, cpu)
		assert.Equal(t, uint16(0xa000), cpu.pc)
	})
}

func Test_CPU_Jam(t *testing.T) {
	cpu, _ := newTestCPU(0x02)
	err := cpu.Tic()
	assert.ErrorIs(t, err, ErrCPUJammed)

	// the CPU stays at the jammed instruction
	assert.Equal(t, uint16(0x0800), cpu.pc)
	assert.True(t, errors.Is(cpu.Tic(), ErrCPUJammed))
}

func Test_CPU_BRK(t *testing.T) {
	cpu, ram := newTestCPU(0x00, 0xff) // BRK with padding byte
	ram[vectorIRQ] = 0x00
	ram[vectorIRQ+1] = 0x90

	stepInstr(t, cpu)

	assert.Equal(t, uint16(0x9000), cpu.pc)
	// pushed status carries the break flag, return address skips the
	// padding byte
	pushedP := ram[uint16(0x100)|uint16(cpu.sp+1)]
	assert.NotZero(t, pushedP&flagB)
	pushedPC := uint16(ram[uint16(0x100)|uint16(cpu.sp+2)]) |
		uint16(ram[uint16(0x100)|uint16(cpu.sp+3)])<<8
	assert.Equal(t, uint16(0x0802), pushedPC)
}

func Test_CPU_IndirectJumpPageWrap(t *testing.T) {
	cpu, ram := newTestCPU(0x6c, 0xff, 0x20) // JMP ($20FF)
	ram[0x20ff] = 0x34
	ram[0x2000] = 0x12 // high byte from the same page, not $2100

	stepInstr(t, cpu)
	assert.Equal(t, uint16(0x1234), cpu.pc)
}

// Test_CPU_SingleStepSuite replays the per-opcode JSON suites
// (github.com/SingleStepTests/65x02) when pointed at a local checkout.
// Register and memory results are compared per case. Not compared:
// per-cycle bus traces (instructions apply on their first cycle), the
// status register (the suite pins analog flag results for a few
// illegals), and the opcodes this core deliberately treats as no-ops.
func Test_CPU_SingleStepSuite(t *testing.T) {
	dir := os.Getenv("SINGLE_STEP_TEST_DIR")
	if dir == "" {
		t.Skip("skipping test because SINGLE_STEP_TEST_DIR is not set")
	}

	type cpuState struct {
		PC  uint16     `json:"pc"`
		S   uint8      `json:"s"`
		A   uint8      `json:"a"`
		X   uint8      `json:"x"`
		Y   uint8      `json:"y"`
		P   uint8      `json:"p"`
		RAM [][]uint16 `json:"ram"`
	}
	type testInstance struct {
		Name    string   `json:"name"`
		Initial cpuState `json:"initial"`
		Final   cpuState `json:"final"`
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		file := file
		t.Run(file.Name(), func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join(dir, file.Name()))
			if err != nil {
				t.Fatal(err)
			}
			var tests []testInstance
			if err := json.Unmarshal(data, &tests); err != nil {
				t.Fatal(err)
			}

			unstable := map[string]bool{
				"8b": true, "93": true, "9b": true, "9c": true,
				"9e": true, "9f": true, "ab": true,
			}
			for _, test := range tests {
				op := strings.ToLower(strings.SplitN(test.Name, " ", 2)[0])
				if unstable[op] {
					continue
				}
				ram := &testRAM{}
				for _, addrVal := range test.Initial.RAM {
					ram[addrVal[0]] = uint8(addrVal[1])
				}

				cpu := NewCPU(ram)
				cpu.pc = test.Initial.PC
				cpu.sp = test.Initial.S
				cpu.a = test.Initial.A
				cpu.x = test.Initial.X
				cpu.y = test.Initial.Y
				cpu.p = test.Initial.P

				if err := cpu.Tic(); errors.Is(err, ErrCPUJammed) {
					continue
				}
				for cpu.cycles > 0 {
					assert.NoError(t, cpu.Tic())
				}

				if !assert.Equal(t, test.Final.PC, cpu.pc, "%s: PC", test.Name) {
					return
				}
				assert.Equal(t, test.Final.S, cpu.sp, "%s: SP", test.Name)
				assert.Equal(t, test.Final.A, cpu.a, "%s: A", test.Name)
				assert.Equal(t, test.Final.X, cpu.x, "%s: X", test.Name)
				assert.Equal(t, test.Final.Y, cpu.y, "%s: Y", test.Name)
				for _, addrVal := range test.Final.RAM {
					assert.Equal(t, uint8(addrVal[1]), ram[addrVal[0]],
						"%s: ram %04X", test.Name, addrVal[0])
				}
			}
		})
	}
}

func Test_CPU_Program(t *testing.T) {
	// LDX #$05; loop: DEX; BNE loop; STX $40
	cpu, ram := newTestCPU(
		0xa2, 0x05,
		0xca,
		0xd0, 0xfd,
		0x86, 0x40,
	)

	for cpu.pc != 0x0807 {
		stepInstr(t, cpu)
	}
	assert.Equal(t, uint8(0), ram[0x40])
	assert.Equal(t, uint8(0), cpu.x)
	assert.True(t, cpu.getFlag(flagZ))
}
