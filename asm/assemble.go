package asm

import (
	"encoding/binary"

	"vm32/isa"
)

// Assemble runs the full pipeline: lex, preprocess, plan, two-pass
// codegen, turning source text into a 65,536-byte ROM image.
func Assemble(source string, debugMode bool) ([]byte, error) {
	raw, err := Lex(source)
	if err != nil {
		return nil, err
	}

	expanded, symtab, err := Preprocess(raw)
	if err != nil {
		return nil, err
	}

	items, err := plan(expanded)
	if err != nil {
		return nil, err
	}

	return generate(items, symtab, debugMode)
}

// generate runs codegen's two passes over items: Pass A assigns every
// label and instruction its ROM address (and reserves debug metadata frame
// space ahead of named labels); Pass B resolves operands and emits bytes.
func generate(items []item, symtab *SymbolTable, debugMode bool) ([]byte, error) {
	pc := uint16(isa.HeaderBytes)
	defaultEntry := pc
	sawNonData := false
	var anon []*AnonLabel

	for idx := range items {
		it := &items[idx]

		if it.kind == itemData {
			it.address = pc
			pc += uint16(len(it.data))
			if !sawNonData {
				defaultEntry = pc
			}
			if int(pc) > isa.RomSize {
				return nil, posErr(it.pos, ErrROMOverflow, "")
			}
			continue
		}

		if !sawNonData {
			defaultEntry = pc
			sawNonData = true
		}

		switch it.kind {
		case itemLabel:
			if debugMode {
				frame, err := isa.EncodeLabelFrame(it.name)
				if err != nil {
					return nil, posErr(it.pos, ErrROMOverflow, err.Error())
				}
				it.debugFrame = frame
				pc += uint16(len(frame))
			}
			it.address = pc
			symtab.Labels[it.name].Address = pc
			symtab.Labels[it.name].Resolved = true

		case itemAnonLabel:
			if debugMode && it.name != "" {
				frame, err := isa.EncodeLabelFrame(it.name)
				if err != nil {
					return nil, posErr(it.pos, ErrROMOverflow, err.Error())
				}
				it.debugFrame = frame
				pc += uint16(len(frame))
			}
			it.address = pc
			anon = append(anon, &AnonLabel{Name: it.name, Address: pc, StreamIdx: idx})

		case itemInstr:
			it.address = pc
			pc += uint16(isa.InstructionByteLength(it.op))
		}

		if int(pc) > isa.RomSize {
			return nil, posErr(it.pos, ErrROMOverflow, "")
		}
	}

	symtab.Anon = anon

	entryPoint := defaultEntry
	if start, ok := symtab.Labels["_START"]; ok {
		if !start.Resolved {
			return nil, posErr(start.DefinedAt, ErrUnresolvedLabel, "_START")
		}
		entryPoint = start.Address
	}

	rom := isa.NewRom()
	header := isa.Header{LanguageVersion: 1, EntryPoint: entryPoint, DebugMode: debugMode}
	hb := header.Serialize()
	copy(rom, hb[:])

	for idx, it := range items {
		if it.debugFrame != nil {
			copy(rom[int(it.address)-len(it.debugFrame):], it.debugFrame)
		}
		switch it.kind {
		case itemData:
			copy(rom[it.address:], it.data)
		case itemInstr:
			if err := emitInstruction(rom, it, idx, symtab); err != nil {
				return nil, err
			}
		}
	}

	return rom, nil
}

func emitInstruction(rom []byte, it item, idx int, symtab *SymbolTable) error {
	rom[it.address] = byte(it.op)

	// CMP's first operand token is the register being compared; the value
	// operand that gets encoded follows it.
	var operand Token
	if len(it.operands) > 0 {
		operand = it.operands[0]
	}
	if len(it.operands) == 2 && it.operands[0].Kind == KRegister {
		operand = it.operands[1]
	}

	switch isa.OperandKindOf(it.op) {
	case isa.OperandLit32:
		binary.LittleEndian.PutUint32(rom[it.address+1:], operand.Lit)
	case isa.OperandAddr16:
		addr, err := resolveAddrOperand(operand, idx, symtab)
		if err != nil {
			return err
		}
		if int(it.address)+3 > isa.RomSize {
			return posErr(it.pos, ErrAddressOutOfRange, "")
		}
		binary.LittleEndian.PutUint16(rom[it.address+1:], addr)
	case isa.OperandStride8:
		rom[it.address+1] = byte(operand.Lit)
	}
	return nil
}

func resolveAddrOperand(tok Token, idx int, symtab *SymbolTable) (uint16, error) {
	switch tok.Kind {
	case KAddr:
		return tok.Addr, nil
	case KIdent:
		label, ok := symtab.Labels[tok.Ident]
		if !ok || !label.Resolved {
			return 0, posErr(tok.Pos, ErrUnresolvedLabel, tok.Ident)
		}
		return label.Address, nil
	case KRelLabelRef:
		return resolveRelativeLabel(tok, idx, symtab)
	}
	return 0, posErr(tok.Pos, ErrStrayChar, "expected an address-like operand")
}

func resolveRelativeLabel(tok Token, idx int, symtab *SymbolTable) (uint16, error) {
	matched := 0
	if tok.Dir == '-' {
		for i := len(symtab.Anon) - 1; i >= 0; i-- {
			if symtab.Anon[i].StreamIdx < idx {
				matched++
				if matched == tok.Count {
					return symtab.Anon[i].Address, nil
				}
			}
		}
	} else {
		for i := 0; i < len(symtab.Anon); i++ {
			if symtab.Anon[i].StreamIdx > idx {
				matched++
				if matched == tok.Count {
					return symtab.Anon[i].Address, nil
				}
			}
		}
	}
	return 0, posErr(tok.Pos, ErrBadRelativeRef, "")
}
