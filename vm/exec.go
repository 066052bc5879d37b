package vm

import "vm32/isa"

// Step executes exactly one instruction at the current PC. It is the unit
// both the Runner's tight loop and the Debugger's single-step mode build
// on top of.
//
// This is considered a tight loop: every opcode is dispatched from this one
// switch, which leans on small helpers only for memory reads, flag updates
// and the ALU.
func (v *VM) Step() {
	if v.Quit {
		return
	}

	op := isa.Decode(v.Rom[v.PC])
	pcIncrement := uint16(isa.InstructionByteLength(op))
	romPC := v.PC

	switch op {
	case isa.Panic:
		v.fail(ErrPanic)
		return
	case isa.Brk:
		v.Quit = true
		return
	case isa.Nop:
		if v.OnNop != nil {
			v.OnNop()
		}
	case isa.Clc:
		v.Carry = false
	case isa.Sec:
		v.Carry = true
	case isa.StrideLit:
		v.Stride = v.Rom[romPC+1]
	case isa.Systemcall:
		quit, err := v.dispatchSyscall()
		if err != nil {
			v.fail(err)
			return
		}
		if quit {
			v.Quit = true
			return
		}
	case isa.DebugMetadataSignal:
		length, err := isa.FrameLength(v.Rom[romPC:])
		if err != nil {
			v.fail(ErrBadMetadata)
			return
		}
		v.PC = romPC + uint16(length)
		return

	case isa.LdaLit:
		v.A = v.readRom32(romPC + 1)
	case isa.LdxLit:
		v.X = v.readRom32(romPC + 1)
	case isa.LdyLit:
		v.Y = v.readRom32(romPC + 1)
	case isa.LdaAddr:
		v.A = v.readWram32(v.readRom16(romPC + 1))
	case isa.LdxAddr:
		v.X = v.readWram32(v.readRom16(romPC + 1))
	case isa.LdyAddr:
		v.Y = v.readWram32(v.readRom16(romPC + 1))

	case isa.LdaX:
		v.A = v.X
	case isa.LdaY:
		v.A = v.Y
	case isa.LdxA:
		v.X = v.A
	case isa.LdxY:
		v.X = v.Y
	case isa.LdyA:
		v.Y = v.A
	case isa.LdyX:
		v.Y = v.X

	case isa.LdaAddrX:
		v.A = v.readWram32(v.indexedAddr(romPC+1, v.X))
	case isa.LdaAddrY:
		v.A = v.readWram32(v.indexedAddr(romPC+1, v.Y))

	case isa.LeaAddr:
		v.A = uint32(v.readRom16(romPC + 1))
	case isa.LexAddr:
		v.X = uint32(v.readRom16(romPC + 1))
	case isa.LeyAddr:
		v.Y = uint32(v.readRom16(romPC + 1))

	case isa.StaAddr:
		v.writeWram32(v.readRom16(romPC+1), v.A)
	case isa.StxAddr:
		v.writeWram32(v.readRom16(romPC+1), v.X)
	case isa.StyAddr:
		v.writeWram32(v.readRom16(romPC+1), v.Y)

	case isa.JmpAddr:
		v.PC = v.readRom16(romPC + 1)
		return
	case isa.JsrAddr:
		ret := romPC + pcIncrement
		if err := v.pushU16(ret); err != nil {
			v.fail(err)
			return
		}
		v.PC = v.readRom16(romPC + 1)
		return
	case isa.Ret:
		ret, err := v.popU16()
		if err != nil {
			v.fail(err)
			return
		}
		v.PC = ret
		return

	case isa.CmpALit:
		v.setCompareFlags(v.A, v.readRom32(romPC+1))
	case isa.CmpAAddr:
		v.setCompareFlags(v.A, v.readWram32(v.readRom16(romPC+1)))
	case isa.CmpAX:
		v.setCompareFlags(v.A, v.X)
	case isa.CmpAY:
		v.setCompareFlags(v.A, v.Y)
	case isa.CmpXLit:
		v.setCompareFlags(v.X, v.readRom32(romPC+1))
	case isa.CmpXAddr:
		v.setCompareFlags(v.X, v.readWram32(v.readRom16(romPC+1)))
	case isa.CmpXA:
		v.setCompareFlags(v.X, v.A)
	case isa.CmpXY:
		v.setCompareFlags(v.X, v.Y)
	case isa.CmpYLit:
		v.setCompareFlags(v.Y, v.readRom32(romPC+1))
	case isa.CmpYAddr:
		v.setCompareFlags(v.Y, v.readWram32(v.readRom16(romPC+1)))
	case isa.CmpYA:
		v.setCompareFlags(v.Y, v.A)
	case isa.CmpYX:
		v.setCompareFlags(v.Y, v.X)

	case isa.Bcs:
		if v.Carry {
			v.PC = v.readRom16(romPC + 1)
			return
		}
	case isa.Bcc:
		if !v.Carry {
			v.PC = v.readRom16(romPC + 1)
			return
		}
	case isa.Beq:
		if v.Zero {
			v.PC = v.readRom16(romPC + 1)
			return
		}
	case isa.Bne:
		if !v.Zero {
			v.PC = v.readRom16(romPC + 1)
			return
		}
	case isa.Bmi:
		if v.Negative {
			v.PC = v.readRom16(romPC + 1)
			return
		}
	case isa.Bpl:
		if !v.Negative {
			v.PC = v.readRom16(romPC + 1)
			return
		}
	case isa.Bvs:
		if v.Overflow {
			v.PC = v.readRom16(romPC + 1)
			return
		}
	case isa.Bvc:
		if !v.Overflow {
			v.PC = v.readRom16(romPC + 1)
			return
		}

	case isa.AddLit:
		v.addToA(v.readRom32(romPC + 1))
	case isa.AddAddr:
		v.addToA(v.readWram32(v.readRom16(romPC + 1)))
	case isa.AddX:
		v.addToA(v.X)
	case isa.AddY:
		v.addToA(v.Y)

	case isa.SubLit:
		v.subFromA(v.readRom32(romPC + 1))
	case isa.SubAddr:
		v.subFromA(v.readWram32(v.readRom16(romPC + 1)))
	case isa.SubX:
		v.subFromA(v.X)
	case isa.SubY:
		v.subFromA(v.Y)

	case isa.IncA:
		v.A = v.incDec(v.A, 1)
	case isa.IncX:
		v.X = v.incDec(v.X, 1)
	case isa.IncY:
		v.Y = v.incDec(v.Y, 1)
	case isa.IncAddr:
		addr := v.readRom16(romPC + 1)
		v.writeWram32(addr, v.incDec(v.readWram32(addr), 1))
	case isa.DecA:
		v.A = v.incDec(v.A, ^uint32(0))
	case isa.DecX:
		v.X = v.incDec(v.X, ^uint32(0))
	case isa.DecY:
		v.Y = v.incDec(v.Y, ^uint32(0))
	case isa.DecAddr:
		addr := v.readRom16(romPC + 1)
		v.writeWram32(addr, v.incDec(v.readWram32(addr), ^uint32(0)))

	case isa.PushA:
		if err := v.pushU32(v.A); err != nil {
			v.fail(err)
			return
		}
	case isa.PushX:
		if err := v.pushU32(v.X); err != nil {
			v.fail(err)
			return
		}
	case isa.PushY:
		if err := v.pushU32(v.Y); err != nil {
			v.fail(err)
			return
		}
	case isa.PopA:
		val, err := v.popU32()
		if err != nil {
			v.fail(err)
			return
		}
		v.A = val
	case isa.PopX:
		val, err := v.popU32()
		if err != nil {
			v.fail(err)
			return
		}
		v.X = val
	case isa.PopY:
		val, err := v.popU32()
		if err != nil {
			v.fail(err)
			return
		}
		v.Y = val

	default:
		v.fail(ErrPanic)
		return
	}

	v.PC = romPC + pcIncrement
}

func (v *VM) fail(err error) {
	v.Quit = true
	v.Errcode = err
}

// indexedAddr computes addr + (low16(index) * stride), wrapping modulo
// 2^16 the way every WRAM address computation does.
func (v *VM) indexedAddr(operandAt uint16, index uint32) uint16 {
	base := v.readRom16(operandAt)
	offset := uint16(index) * uint16(v.Stride)
	return base + offset
}

func (v *VM) setCompareFlags(l, r uint32) {
	v.Zero, v.Negative, v.Carry, v.Overflow = compare(l, r)
}

func (v *VM) addToA(operand uint32) {
	result, carry, zero, negative, overflow := addWithCarry(v.A, operand, v.Carry)
	v.A = result
	v.Carry, v.Zero, v.Negative, v.Overflow = carry, zero, negative, overflow
}

func (v *VM) subFromA(operand uint32) {
	result, carry, zero, negative, overflow := subWithBorrow(v.A, operand, !v.Carry)
	v.A = result
	v.Carry, v.Zero, v.Negative, v.Overflow = carry, zero, negative, overflow
}

// incDec adds delta (1, or ^uint32(0) for -1) to val, touching only the
// zero/negative flags; carry and overflow are deliberately left alone,
// the contract that distinguishes INC/DEC from ADD/SUB by one.
func (v *VM) incDec(val, delta uint32) uint32 {
	result := val + delta
	v.Zero = result == 0
	v.Negative = result&0x80000000 != 0
	return result
}

func (v *VM) dispatchSyscall() (quit bool, err error) {
	if v.Syscalls == nil {
		return false, ErrUnknownSyscall
	}
	return v.Syscalls.Dispatch(v)
}
