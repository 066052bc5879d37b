// Package vm implements the byte-addressed machine state and bytecode
// interpreter: ROM, working RAM, stack, registers, flags, and the
// fetch-decode-execute loop that drives them.
package vm

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"vm32/isa"
)

// StackSize is the fixed capacity of the combined data/return stack.
const StackSize = 65536

var (
	ErrProgramFinished   = errors.New("vm: ran out of instructions")
	ErrPanic             = errors.New("vm: PANIC opcode executed")
	ErrIllegalRegister   = errors.New("vm: illegal register write")
	ErrStackOverflow     = errors.New("vm: stack overflow")
	ErrStackUnderflow    = errors.New("vm: stack underflow")
	ErrBadMetadata       = errors.New("vm: malformed debug metadata frame")
	ErrUnknownSyscall    = errors.New("vm: unknown syscall")
	ErrIO                = errors.New("vm: input/output error")
)

// Syscalls is supplied by the embedder and dispatched on SYSTEMCALL, keyed
// by the value in the accumulator. It is the one place the interpreter
// crosses into host I/O.
type Syscalls interface {
	// Dispatch handles the syscall currently selected by v.A. It returns
	// quit=true when the VM should halt (syscall 0, exit).
	Dispatch(v *VM) (quit bool, err error)
}

// VM holds the entire machine state for one run. Every execution owns its
// own VM; there is no state shared across runs.
type VM struct {
	Rom  [isa.RomSize]byte
	Wram [isa.RomSize]byte

	Stack         [StackSize]byte
	StackPointer  uint32

	A, X, Y uint32
	PC      uint16

	Carry, Zero, Negative, Overflow bool

	Stride uint8

	Syscalls Syscalls

	// OnNop is invoked whenever the NOP opcode executes. The interpreter
	// core leaves NOP otherwise inert; the Runner sets this to sleep 200ms,
	// the Debugger leaves it nil.
	OnNop func()

	Stdout *bufio.Writer
	Stdin  *bufio.Reader

	// Quit is set once the program has asked to stop (BRK, SYSTEMCALL exit,
	// or a fatal error). Errcode is nil on a graceful BRK/exit.
	Quit    bool
	Errcode error
}

// New returns a VM with rom loaded at address 0 and entry_point set as the
// initial PC. The ROM's data region (header..entry_point) is mirrored into
// WRAM starting at address 0, so a `.db`/`.dw`/`.dd` literal the assembler
// placed right after the header is addressable at the same offset from 0
// that it occupies in the data region, matching where source labels point.
// stdout/stdin default to the given streams.
func New(rom []byte, entryPoint uint16, syscalls Syscalls, stdout io.Writer, stdin io.Reader) *VM {
	v := &VM{PC: entryPoint, Syscalls: syscalls}
	copy(v.Rom[:], rom)
	if int(entryPoint) > isa.HeaderBytes {
		copy(v.Wram[:], v.Rom[isa.HeaderBytes:entryPoint])
	}
	v.Stdout = bufio.NewWriter(stdout)
	v.Stdin = bufio.NewReader(stdin)
	return v
}

// Register selects one of the three general-purpose registers for the
// handful of operations (loads, pushes, increments) that are parameterized
// over which register they touch.
type Register int

const (
	RegA Register = iota
	RegX
	RegY
)

func (v *VM) reg(r Register) *uint32 {
	switch r {
	case RegX:
		return &v.X
	case RegY:
		return &v.Y
	default:
		return &v.A
	}
}

// readWram32 reads a little-endian u32 from WRAM at addr, wrapping modulo
// 2^16 on the address the same way every multi-byte WRAM access does.
func (v *VM) readWram32(addr uint16) uint32 {
	if int(addr)+4 <= len(v.Wram) {
		return binary.LittleEndian.Uint32(v.Wram[addr:])
	}
	var buf [4]byte
	for i := 0; i < 4; i++ {
		buf[i] = v.Wram[int(addr+uint16(i))%len(v.Wram)]
	}
	return binary.LittleEndian.Uint32(buf[:])
}

func (v *VM) writeWram32(addr uint16, val uint32) {
	if int(addr)+4 <= len(v.Wram) {
		binary.LittleEndian.PutUint32(v.Wram[addr:], val)
		return
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], val)
	for i := 0; i < 4; i++ {
		v.Wram[int(addr+uint16(i))%len(v.Wram)] = buf[i]
	}
}

func (v *VM) readRom16(addr uint16) uint16 {
	return binary.LittleEndian.Uint16(v.Rom[addr:])
}

func (v *VM) readRom32(addr uint16) uint32 {
	return binary.LittleEndian.Uint32(v.Rom[addr:])
}

// pushU32 writes a 4-byte little-endian value to the stack and advances SP.
func (v *VM) pushU32(val uint32) error {
	if int(v.StackPointer)+4 > len(v.Stack) {
		return ErrStackOverflow
	}
	binary.LittleEndian.PutUint32(v.Stack[v.StackPointer:], val)
	v.StackPointer += 4
	return nil
}

func (v *VM) popU32() (uint32, error) {
	if v.StackPointer < 4 {
		return 0, ErrStackUnderflow
	}
	v.StackPointer -= 4
	return binary.LittleEndian.Uint32(v.Stack[v.StackPointer:]), nil
}

// pushU16 is used for JSR/RET return addresses; the data and return
// stacks share one buffer and one stack pointer (see DESIGN.md).
func (v *VM) pushU16(val uint16) error {
	if int(v.StackPointer)+2 > len(v.Stack) {
		return ErrStackOverflow
	}
	binary.LittleEndian.PutUint16(v.Stack[v.StackPointer:], val)
	v.StackPointer += 2
	return nil
}

func (v *VM) popU16() (uint16, error) {
	if v.StackPointer < 2 {
		return 0, ErrStackUnderflow
	}
	v.StackPointer -= 2
	return binary.LittleEndian.Uint16(v.Stack[v.StackPointer:]), nil
}
