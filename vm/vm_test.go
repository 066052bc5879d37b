package vm

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"vm32/isa"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

// asmBuf is a minimal byte-level instruction builder used only by these
// tests, standing in for the assembler package this package is tested
// independently of.
type asmBuf struct{ b []byte }

func (a *asmBuf) op(o isa.Opcode) *asmBuf {
	a.b = append(a.b, byte(o))
	return a
}

func (a *asmBuf) lit32(v uint32) *asmBuf {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	a.b = append(a.b, buf[:]...)
	return a
}

func (a *asmBuf) addr16(v uint16) *asmBuf {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	a.b = append(a.b, buf[:]...)
	return a
}

func (a *asmBuf) u8(v byte) *asmBuf {
	a.b = append(a.b, v)
	return a
}

func romWithCode(entryPoint uint16, code []byte) []byte {
	rom := isa.NewRom()
	h := isa.Header{LanguageVersion: 1, EntryPoint: entryPoint}
	hb := h.Serialize()
	copy(rom, hb[:])
	copy(rom[entryPoint:], code)
	return rom
}

func newTestVM(entryPoint uint16, code []byte) *VM {
	rom := romWithCode(entryPoint, code)
	return New(rom, entryPoint, DefaultSyscalls{}, &bytes.Buffer{}, strings.NewReader(""))
}

func runToHalt(t *testing.T, v *VM) {
	t.Helper()
	err := RunProgram(v)
	assert(t, err == nil, "RunProgram failed: %v", err)
}

// Invariant 3: CLC; ADD_LIT k; SEC; SUB_LIT k returns A to its starting
// value (SEC so the subtraction takes no borrow).
func TestAddSubLitRoundTrip(t *testing.T) {
	var a asmBuf
	a.op(isa.LdaLit).lit32(41).
		op(isa.Clc).
		op(isa.AddLit).lit32(17).
		op(isa.Sec).
		op(isa.SubLit).lit32(17).
		op(isa.Brk)

	v := newTestVM(isa.HeaderBytes, a.b)
	runToHalt(t, v)
	assert(t, v.A == 41, "A = %d, want 41", v.A)
}

// Invariant 4: INC_A;DEC_A and CLC;ADD_LIT 0 are both no-ops on A.
func TestIncDecAndAddZeroAreNoops(t *testing.T) {
	var a asmBuf
	a.op(isa.LdaLit).lit32(123).
		op(isa.IncA).
		op(isa.DecA).
		op(isa.Clc).
		op(isa.AddLit).lit32(0).
		op(isa.Brk)

	v := newTestVM(isa.HeaderBytes, a.b)
	runToHalt(t, v)
	assert(t, v.A == 123, "A = %d, want 123", v.A)
}

// Invariant 5: JSR addr; ...; RET restores PC to the instruction
// immediately following the JSR when the callee's stack effect balances.
func TestJsrRetReturnsToCallSite(t *testing.T) {
	entry := isa.HeaderBytes

	// JSR_ADDR callee; BRK   (callee immediately follows, consists of RET)
	jsrLen := 1 + 2
	brkAt := entry + jsrLen
	calleeAt := brkAt + 1

	var a asmBuf
	a.op(isa.JsrAddr).addr16(uint16(calleeAt))
	a.op(isa.Brk)
	a.op(isa.Ret)

	v := newTestVM(uint16(entry), a.b)
	runToHalt(t, v)
	assert(t, v.PC == uint16(brkAt), "PC after halt = %d, want %d (the instruction after JSR)", v.PC, brkAt)
}

// S2: Fibonacci: LDA 10; JSR Fibonacci; BRK halts with A == 55.
func TestFibonacciSubroutine(t *testing.T) {
	entry := uint16(isa.HeaderBytes)

	var a asmBuf
	a.op(isa.LdaLit).lit32(10)     // entry: LDA 10
	a.op(isa.JsrAddr)              // placeholder, patched below
	jsrOperandAt := len(a.b)
	a.addr16(0)
	a.op(isa.Brk)

	fibonacciAt := uint16(int(entry) + len(a.b))
	binary.LittleEndian.PutUint16(a.b[jsrOperandAt:], fibonacciAt)

	a.op(isa.LdyA)       // Y = n
	a.op(isa.LdaLit).lit32(0) // A = a = 0
	a.op(isa.LdxLit).lit32(1) // X = b = 1

	loopAt := uint16(int(entry) + len(a.b))

	a.op(isa.CmpYLit).lit32(0)
	a.op(isa.Beq) // placeholder for Done
	beqOperandAt := len(a.b)
	a.addr16(0)

	a.op(isa.Clc)
	a.op(isa.AddX)         // A = a + b
	a.op(isa.StaAddr).addr16(0) // WRAM[0] = newB
	a.op(isa.LdaX)         // A = oldB = newA
	a.op(isa.LdxAddr).addr16(0) // X = newB
	a.op(isa.DecY)
	a.op(isa.JmpAddr).addr16(loopAt)

	doneAt := uint16(int(entry) + len(a.b))
	binary.LittleEndian.PutUint16(a.b[beqOperandAt:], doneAt)

	a.op(isa.Ret)

	v := newTestVM(entry, a.b)
	runToHalt(t, v)
	assert(t, v.A == 55, "fib(10) = %d, want 55", v.A)
}

// S3: Indexed load with stride: data 1,2,3,4 at WRAM $0000;
// STRIDE 4; LDX 2; LDA $0000,X; BRK -> A == 3.
func TestIndexedLoadWithStride(t *testing.T) {
	entry := uint16(32) // leave room for a 16-byte data region after the header

	rom := isa.NewRom()
	h := isa.Header{LanguageVersion: 1, EntryPoint: entry}
	hb := h.Serialize()
	copy(rom, hb[:])

	data := rom[isa.HeaderBytes:entry]
	for i, val := range []uint32{1, 2, 3, 4} {
		binary.LittleEndian.PutUint32(data[i*4:], val)
	}

	var a asmBuf
	a.op(isa.StrideLit).u8(4)
	a.op(isa.LdxLit).lit32(2)
	a.op(isa.LdaAddrX).addr16(0)
	a.op(isa.Brk)
	copy(rom[entry:], a.b)

	v := New(rom, entry, DefaultSyscalls{}, &bytes.Buffer{}, strings.NewReader(""))
	runToHalt(t, v)
	assert(t, v.A == 3, "A = %d, want 3", v.A)
}

// S6: Forward branch: LDA 0; CMP A 0; BEQ Done; LDA 99; Done: BRK -> A == 0.
func TestForwardBranch(t *testing.T) {
	entry := uint16(isa.HeaderBytes)

	var a asmBuf
	a.op(isa.LdaLit).lit32(0)
	a.op(isa.CmpALit).lit32(0)
	a.op(isa.Beq)
	beqOperandAt := len(a.b)
	a.addr16(0)
	a.op(isa.LdaLit).lit32(99)

	doneAt := uint16(int(entry) + len(a.b))
	binary.LittleEndian.PutUint16(a.b[beqOperandAt:], doneAt)
	a.op(isa.Brk)

	v := newTestVM(entry, a.b)
	runToHalt(t, v)
	assert(t, v.A == 0, "A = %d, want 0", v.A)
}

func TestStackOverflowIsFatal(t *testing.T) {
	entry := uint16(isa.HeaderBytes)
	var a asmBuf
	a.op(isa.LdaLit).lit32(1)
	loopAt := uint16(int(entry) + len(a.b))
	a.op(isa.PushA)
	a.op(isa.JmpAddr).addr16(loopAt)

	v := newTestVM(entry, a.b)
	err := RunProgram(v)
	assert(t, err == ErrStackOverflow, "expected ErrStackOverflow, got %v", err)
}

func TestUnknownOpcodeIsPanic(t *testing.T) {
	entry := uint16(isa.HeaderBytes)
	rom := romWithCode(entry, []byte{0xFE})
	v := New(rom, entry, DefaultSyscalls{}, &bytes.Buffer{}, strings.NewReader(""))
	err := RunProgram(v)
	assert(t, err == ErrPanic, "expected ErrPanic, got %v", err)
}

func TestPrintUintSyscall(t *testing.T) {
	entry := uint16(isa.HeaderBytes)
	var a asmBuf
	a.op(isa.LdxLit).lit32(42)
	a.op(isa.LdaLit).lit32(SyscallPrintUint)
	a.op(isa.Systemcall)
	a.op(isa.LdaLit).lit32(SyscallExit)
	a.op(isa.Systemcall)

	var out bytes.Buffer
	v := New(romWithCode(entry, a.b), entry, DefaultSyscalls{}, &out, strings.NewReader(""))
	runToHalt(t, v)
	assert(t, out.String() == "42", "stdout = %q, want %q", out.String(), "42")
}
