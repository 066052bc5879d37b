package asm

const maxMacroRecursion = 64

// Preprocess runs both preprocessor passes over raw, turning it into the
// fully expanded token stream the code generator consumes, plus the
// symbol table populated along the way.
func Preprocess(raw []Token) ([]Token, *SymbolTable, error) {
	symtab := newSymbolTable()

	stripped, err := stripPass(raw, symtab)
	if err != nil {
		return nil, nil, err
	}

	expanded, err := expandPass(stripped, symtab, 0)
	if err != nil {
		return nil, nil, err
	}

	return expanded, symtab, nil
}

// stripPass is the preprocessor's first pass: it removes macro and define
// declarations from the stream (recording them in the symbol table) and
// registers every label definition, while passing everything else through
// unchanged.
func stripPass(raw []Token, symtab *SymbolTable) ([]Token, error) {
	var out []Token

	for i := 0; i < len(raw); i++ {
		tok := raw[i]

		switch tok.Kind {
		case KMacroBegin:
			body, next, err := captureMacroBody(raw, i+1)
			if err != nil {
				return nil, err
			}
			if err := symtab.declareMacro(tok.Ident, body, tok.Pos); err != nil {
				return nil, err
			}
			i = next

		case KDefine:
			if err := symtab.declareDefine(tok.Ident, *tok.DefineValue, tok.Pos); err != nil {
				return nil, err
			}

		case KLabelDef:
			if err := symtab.declareLabel(tok.Ident, tok.Pos); err != nil {
				return nil, err
			}
			out = append(out, tok)

		case KMacroEnd:
			// Only reached if a MACRO_END appears with no matching
			// MACRO_BEGIN; captureMacroBody consumes matched ones.
			return nil, posErr(tok.Pos, ErrStrayChar, ".endmacro without .macro")

		default:
			out = append(out, tok)
		}
	}

	return out, nil
}

// captureMacroBody collects tokens from start until the matching
// MACRO_END, returning the body (exclusive of both directive tokens) and
// the index of the MACRO_END token consumed.
func captureMacroBody(raw []Token, start int) ([]Token, int, error) {
	var body []Token
	depth := 0
	for i := start; i < len(raw); i++ {
		switch raw[i].Kind {
		case KMacroBegin:
			depth++
			body = append(body, raw[i])
		case KMacroEnd:
			if depth == 0 {
				return body, i, nil
			}
			depth--
			body = append(body, raw[i])
		default:
			body = append(body, raw[i])
		}
	}
	return nil, 0, posErr(raw[start-1].Pos, ErrUnknownIdentifier, ".macro without matching .endmacro")
}

// expandPass is the preprocessor's second pass: it splices in macro
// bodies, substitutes defines, and unrolls .repeat blocks. depth tracks
// macro expansion nesting so self- or mutually-recursive macros are
// rejected instead of looping forever.
func expandPass(in []Token, symtab *SymbolTable, depth int) ([]Token, error) {
	if depth > maxMacroRecursion {
		return nil, posErr(Position{}, ErrMacroRecursionDeep, "")
	}

	var out []Token

	for i := 0; i < len(in); i++ {
		tok := in[i]

		switch tok.Kind {
		case KIdent:
			if body, ok := symtab.Macros[tok.Ident]; ok {
				expandedBody, err := expandPass(body, symtab, depth+1)
				if err != nil {
					return nil, err
				}
				out = append(out, expandedBody...)
				continue
			}
			if value, ok := symtab.Defines[tok.Ident]; ok {
				out = append(out, value)
				continue
			}
			out = append(out, tok)

		case KRepeatBegin:
			body, next, err := captureRepeatBody(in, i+1)
			if err != nil {
				return nil, err
			}
			expandedBody, err := expandPass(body, symtab, depth)
			if err != nil {
				return nil, err
			}
			for n := 0; n < tok.Count; n++ {
				out = append(out, expandedBody...)
			}
			i = next

		case KRepeatEnd:
			return nil, posErr(tok.Pos, ErrStrayChar, ".endrepeat without .repeat")

		default:
			out = append(out, tok)
		}
	}

	return out, nil
}

func captureRepeatBody(in []Token, start int) ([]Token, int, error) {
	var body []Token
	depth := 0
	for i := start; i < len(in); i++ {
		switch in[i].Kind {
		case KRepeatBegin:
			depth++
			body = append(body, in[i])
		case KRepeatEnd:
			if depth == 0 {
				return body, i, nil
			}
			depth--
			body = append(body, in[i])
		default:
			body = append(body, in[i])
		}
	}
	return nil, 0, posErr(in[start-1].Pos, ErrBadRepeatCount, ".repeat without matching .endrepeat")
}
