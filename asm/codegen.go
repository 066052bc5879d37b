package asm

import (
	"encoding/binary"

	"vm32/isa"
)

// itemKind tags one planned unit of ROM output built from the expanded
// token stream: an instruction, a run of literal data bytes, a named
// label, or an anonymous label.
type itemKind int

const (
	itemInstr itemKind = iota
	itemData
	itemLabel
	itemAnonLabel
)

type item struct {
	kind itemKind
	pos  Position

	op       isa.Opcode
	operands []Token // 0, 1 or 2 tokens depending on op

	data []byte

	name string // label name (itemLabel) or optional anon name (itemAnonLabel)

	address    uint16
	debugFrame []byte // non-nil when this item is preceded by a debug metadata frame
}

// plan converts the expanded token stream into a flat item list, resolving
// which concrete Opcode variant each mnemonic+operand shape selects. This
// runs once; both codegen passes walk the resulting items.
func plan(tokens []Token) ([]item, error) {
	var items []item

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		switch tok.Kind {
		case KStatementEnd, KEOF:
			continue

		case KLabelDef:
			items = append(items, item{kind: itemLabel, pos: tok.Pos, name: tok.Ident})

		case KAnonLabelDef:
			items = append(items, item{kind: itemAnonLabel, pos: tok.Pos, name: tok.Ident})

		case KDataBytes, KDataWords, KDataDwords:
			items = append(items, item{kind: itemData, pos: tok.Pos, data: encodeDataDirective(tok)})

		case KOpcode:
			op, n, err := matchInstruction(tokens, i)
			if err != nil {
				return nil, err
			}
			items = append(items, item{
				kind:     itemInstr,
				pos:      tok.Pos,
				op:       op,
				operands: tokens[i+1 : i+1+n],
			})
			i += n

		case KIdent:
			return nil, posErr(tok.Pos, ErrUnknownIdentifier, tok.Ident)

		default:
			return nil, posErr(tok.Pos, ErrStrayChar, "unexpected token in instruction stream")
		}
	}

	return items, nil
}

func encodeDataDirective(tok Token) []byte {
	var out []byte
	switch tok.Kind {
	case KDataBytes:
		for _, v := range tok.Values {
			out = append(out, byte(v))
		}
	case KDataWords:
		for _, v := range tok.Values {
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], uint16(v))
			out = append(out, b[:]...)
		}
	case KDataDwords:
		for _, v := range tok.Values {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], v)
			out = append(out, b[:]...)
		}
	}
	out = append(out, tok.Bytes...)
	return out
}

func isAddrLike(k Kind) bool {
	return k == KAddr || k == KIdent || k == KRelLabelRef
}

// matchInstruction looks at the KOpcode token at tokens[i] plus however
// many following tokens it needs, and returns the concrete Opcode variant
// selected plus how many trailing tokens were consumed as operands.
func matchInstruction(tokens []Token, i int) (isa.Opcode, int, error) {
	tok := tokens[i]
	name := tok.Ident
	next := func(off int) Token {
		if i+off < len(tokens) {
			return tokens[i+off]
		}
		return Token{Kind: KEOF}
	}

	switch name {
	case "PANIC", "BRK", "NOP", "CLC", "SEC", "RET", "SYSTEMCALL":
		return tok.Opcode, 0, nil

	case "STRIDE":
		if next(1).Kind != KLit {
			return 0, 0, posErr(tok.Pos, ErrStrayChar, "STRIDE expects a literal operand")
		}
		return isa.StrideLit, 1, nil

	case "LDA", "LDX", "LDY":
		return matchLoad(tok, name, next)

	case "LEA":
		return isa.LeaAddr, 1, requireAddrLike(tok, next(1))
	case "LEX":
		return isa.LexAddr, 1, requireAddrLike(tok, next(1))
	case "LEY":
		return isa.LeyAddr, 1, requireAddrLike(tok, next(1))

	case "STA":
		return isa.StaAddr, 1, requireAddrLike(tok, next(1))
	case "STX":
		return isa.StxAddr, 1, requireAddrLike(tok, next(1))
	case "STY":
		return isa.StyAddr, 1, requireAddrLike(tok, next(1))

	case "JMP":
		return isa.JmpAddr, 1, requireAddrLike(tok, next(1))
	case "JSR":
		return isa.JsrAddr, 1, requireAddrLike(tok, next(1))

	case "BCS":
		return isa.Bcs, 1, requireAddrLike(tok, next(1))
	case "BCC":
		return isa.Bcc, 1, requireAddrLike(tok, next(1))
	case "BEQ":
		return isa.Beq, 1, requireAddrLike(tok, next(1))
	case "BNE":
		return isa.Bne, 1, requireAddrLike(tok, next(1))
	case "BMI":
		return isa.Bmi, 1, requireAddrLike(tok, next(1))
	case "BPL":
		return isa.Bpl, 1, requireAddrLike(tok, next(1))
	case "BVS":
		return isa.Bvs, 1, requireAddrLike(tok, next(1))
	case "BVC":
		return isa.Bvc, 1, requireAddrLike(tok, next(1))

	case "CMP":
		return matchCompare(tok, next)

	case "ADD":
		return matchAccumulatorOp(tok, next, isa.AddLit, isa.AddAddr, isa.AddX, isa.AddY)
	case "SUB":
		return matchAccumulatorOp(tok, next, isa.SubLit, isa.SubAddr, isa.SubX, isa.SubY)

	case "INC":
		return matchIncDec(tok, next, isa.IncA, isa.IncX, isa.IncY, isa.IncAddr)
	case "DEC":
		return matchIncDec(tok, next, isa.DecA, isa.DecX, isa.DecY, isa.DecAddr)

	case "PUSH":
		return matchRegisterOnly(tok, next, isa.PushA, isa.PushX, isa.PushY)
	case "POP":
		return matchRegisterOnly(tok, next, isa.PopA, isa.PopX, isa.PopY)
	}

	return 0, 0, posErr(tok.Pos, ErrUnknownIdentifier, name)
}

func requireAddrLike(tok, operand Token) error {
	if !isAddrLike(operand.Kind) {
		return posErr(tok.Pos, ErrStrayChar, "expected an address operand after "+tok.Ident)
	}
	return nil
}

func matchLoad(tok Token, name string, next func(int) Token) (isa.Opcode, int, error) {
	op1 := next(1)
	switch {
	case op1.Kind == KLit:
		switch name {
		case "LDA":
			return isa.LdaLit, 1, nil
		case "LDX":
			return isa.LdxLit, 1, nil
		default:
			return isa.LdyLit, 1, nil
		}

	case op1.Kind == KRegister:
		return registerToRegister(tok, name, op1.Register)

	case isAddrLike(op1.Kind):
		op2 := next(2)
		if name == "LDA" && op2.Kind == KRegister && op2.Register == RegX {
			return isa.LdaAddrX, 2, nil
		}
		if name == "LDA" && op2.Kind == KRegister && op2.Register == RegY {
			return isa.LdaAddrY, 2, nil
		}
		switch name {
		case "LDA":
			return isa.LdaAddr, 1, nil
		case "LDX":
			return isa.LdxAddr, 1, nil
		default:
			return isa.LdyAddr, 1, nil
		}
	}

	return 0, 0, posErr(tok.Pos, ErrStrayChar, "malformed operand for "+name)
}

func registerToRegister(tok Token, name string, src Register) (isa.Opcode, int, error) {
	switch name {
	case "LDA":
		switch src {
		case RegX:
			return isa.LdaX, 1, nil
		case RegY:
			return isa.LdaY, 1, nil
		}
	case "LDX":
		switch src {
		case RegA:
			return isa.LdxA, 1, nil
		case RegY:
			return isa.LdxY, 1, nil
		}
	case "LDY":
		switch src {
		case RegA:
			return isa.LdyA, 1, nil
		case RegX:
			return isa.LdyX, 1, nil
		}
	}
	return 0, 0, posErr(tok.Pos, ErrStrayChar, "no register-to-register form for "+name)
}

func matchCompare(tok Token, next func(int) Token) (isa.Opcode, int, error) {
	lhs := next(1)
	if lhs.Kind != KRegister {
		return 0, 0, posErr(tok.Pos, ErrStrayChar, "CMP expects a register as its first operand")
	}
	rhs := next(2)

	switch {
	case rhs.Kind == KLit:
		switch lhs.Register {
		case RegA:
			return isa.CmpALit, 2, nil
		case RegX:
			return isa.CmpXLit, 2, nil
		default:
			return isa.CmpYLit, 2, nil
		}
	case isAddrLike(rhs.Kind):
		switch lhs.Register {
		case RegA:
			return isa.CmpAAddr, 2, nil
		case RegX:
			return isa.CmpXAddr, 2, nil
		default:
			return isa.CmpYAddr, 2, nil
		}
	case rhs.Kind == KRegister:
		switch {
		case lhs.Register == RegA && rhs.Register == RegX:
			return isa.CmpAX, 2, nil
		case lhs.Register == RegA && rhs.Register == RegY:
			return isa.CmpAY, 2, nil
		case lhs.Register == RegX && rhs.Register == RegA:
			return isa.CmpXA, 2, nil
		case lhs.Register == RegX && rhs.Register == RegY:
			return isa.CmpXY, 2, nil
		case lhs.Register == RegY && rhs.Register == RegA:
			return isa.CmpYA, 2, nil
		case lhs.Register == RegY && rhs.Register == RegX:
			return isa.CmpYX, 2, nil
		}
	}
	return 0, 0, posErr(tok.Pos, ErrStrayChar, "malformed CMP operands")
}

func matchAccumulatorOp(tok Token, next func(int) Token, litOp, addrOp, xOp, yOp isa.Opcode) (isa.Opcode, int, error) {
	op1 := next(1)
	switch {
	case op1.Kind == KLit:
		return litOp, 1, nil
	case isAddrLike(op1.Kind):
		return addrOp, 1, nil
	case op1.Kind == KRegister && op1.Register == RegX:
		return xOp, 1, nil
	case op1.Kind == KRegister && op1.Register == RegY:
		return yOp, 1, nil
	}
	return 0, 0, posErr(tok.Pos, ErrStrayChar, "malformed operand for "+tok.Ident)
}

func matchIncDec(tok Token, next func(int) Token, aOp, xOp, yOp, addrOp isa.Opcode) (isa.Opcode, int, error) {
	op1 := next(1)
	switch {
	case op1.Kind == KRegister:
		switch op1.Register {
		case RegA:
			return aOp, 1, nil
		case RegX:
			return xOp, 1, nil
		default:
			return yOp, 1, nil
		}
	case isAddrLike(op1.Kind):
		return addrOp, 1, nil
	}
	return 0, 0, posErr(tok.Pos, ErrStrayChar, "malformed operand for "+tok.Ident)
}

func matchRegisterOnly(tok Token, next func(int) Token, aOp, xOp, yOp isa.Opcode) (isa.Opcode, int, error) {
	op1 := next(1)
	if op1.Kind != KRegister {
		return 0, 0, posErr(tok.Pos, ErrStrayChar, tok.Ident+" expects a register operand")
	}
	switch op1.Register {
	case RegA:
		return aOp, 1, nil
	case RegX:
		return xOp, 1, nil
	default:
		return yOp, 1, nil
	}
}
