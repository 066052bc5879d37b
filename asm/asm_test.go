package asm_test

import (
	"bytes"
	"strings"
	"testing"

	"vm32/asm"
	"vm32/isa"
	"vm32/vm"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func assembleAndRun(t *testing.T, src string) *vm.VM {
	t.Helper()
	rom, err := asm.Assemble(src, false)
	assert(t, err == nil, "Assemble failed: %v", err)

	header, err := isa.ParseHeader(rom)
	assert(t, err == nil, "ParseHeader failed: %v", err)

	v := vm.New(rom, header.EntryPoint, vm.DefaultSyscalls{}, &bytes.Buffer{}, strings.NewReader(""))
	err = vm.RunProgram(v)
	assert(t, err == nil, "RunProgram failed: %v", err)
	return v
}

// S1: Minimal.
func TestMinimalProgram(t *testing.T) {
	rom, err := asm.Assemble("_START:\nBRK\n", false)
	assert(t, err == nil, "Assemble failed: %v", err)

	header, err := isa.ParseHeader(rom)
	assert(t, err == nil, "ParseHeader failed: %v", err)
	assert(t, header.EntryPoint == isa.HeaderBytes, "entry_point = %d, want %d", header.EntryPoint, isa.HeaderBytes)
	assert(t, rom[isa.HeaderBytes] == byte(isa.Brk), "byte 16 = %d, want BRK", rom[isa.HeaderBytes])
	for i := isa.HeaderBytes + 1; i < len(rom); i++ {
		assert(t, rom[i] == isa.PadByte, "byte %d = %#x, want pad", i, rom[i])
	}
}

// S2: Fibonacci via the assembler: LDA 0xA; JSR Fibonacci; BRK -> A == 55.
func TestFibonacciEndToEnd(t *testing.T) {
	src := `
_START:
LDA 0xA
JSR Fibonacci
BRK

Fibonacci:
LDY A
LDA 0x0
LDX 0x1
Loop:
CMP Y 0x0
BEQ Done
CLC
ADD X
STA $0x0000
LDA X
LDX $0x0000
DEC Y
JMP Loop
Done:
RET
`
	v := assembleAndRun(t, src)
	assert(t, v.A == 55, "fib(10) = %d, want 55", v.A)
}

// S3: Indexed load with stride.
func TestIndexedLoadEndToEnd(t *testing.T) {
	src := `
.dd 0x1, 0x2, 0x3, 0x4
_START:
STRIDE 0x4
LDX 0x2
LDA $0x0000 X
BRK
`
	v := assembleAndRun(t, src)
	assert(t, v.A == 3, "A = %d, want 3", v.A)
}

// S4: Macro expanded inside a .repeat.
func TestMacroAndRepeat(t *testing.T) {
	src := `
.macro incr
INC A
.endmacro

_START:
LDA 0x0
.repeat 5
incr
.endrepeat
BRK
`
	v := assembleAndRun(t, src)
	assert(t, v.A == 5, "A = %d, want 5", v.A)
}

// S5: Relative anonymous labels: a backward branch loops on the nearest
// preceding "@:", a forward jump skips dead code to reach the nearest
// following one.
func TestRelativeAnonymousLabelsBackward(t *testing.T) {
	src := `
_START:
LDX 0x0
@:
INC X
CMP X 0x3
BNE @-
BRK
`
	v := assembleAndRun(t, src)
	assert(t, v.X == 3, "X = %d, want 3", v.X)
}

func TestRelativeAnonymousLabelsForward(t *testing.T) {
	src := `
_START:
JMP @+
BRK
@:
LDA 0x9
BRK
`
	v := assembleAndRun(t, src)
	assert(t, v.A == 9, "A = %d, want 9 (jumped past the dead BRK)", v.A)
}

// S6: Forward branch.
func TestForwardBranchEndToEnd(t *testing.T) {
	src := `
_START:
LDA 0x0
CMP A 0x0
BEQ Done
LDA 0x63
Done:
BRK
`
	v := assembleAndRun(t, src)
	assert(t, v.A == 0, "A = %d, want 0", v.A)
}

func TestDuplicateLabelIsRejected(t *testing.T) {
	_, err := asm.Assemble("Foo:\nBRK\nFoo:\nBRK\n", false)
	assert(t, err != nil, "expected a duplicate-label error")
}

func TestDuplicateStartIsRejected(t *testing.T) {
	_, err := asm.Assemble("_START:\nBRK\n_START:\nBRK\n", false)
	assert(t, err != nil, "expected a duplicate _START error")
}

func TestUnresolvedLabelIsRejected(t *testing.T) {
	_, err := asm.Assemble("_START:\nJMP Nowhere\nBRK\n", false)
	assert(t, err != nil, "expected an unresolved-label error")
}

func TestDebugModeEmitsLabelFrames(t *testing.T) {
	rom, err := asm.Assemble("_START:\nBRK\n", true)
	assert(t, err == nil, "Assemble failed: %v", err)
	header, err := isa.ParseHeader(rom)
	assert(t, err == nil, "ParseHeader failed: %v", err)
	assert(t, header.DebugMode, "expected debug_mode set")
	assert(t, isa.Opcode(rom[isa.HeaderBytes]) == isa.DebugMetadataSignal,
		"expected a debug metadata frame opening right after the header")
}
