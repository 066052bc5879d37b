// Package disasm turns a ROM image back into a human-readable listing. It
// is an external consumer of isa: it never writes ROM bytes, only reads
// them.
package disasm

import (
	"fmt"
	"strings"

	"vm32/isa"
)

// Columns toggles which of the four output columns are shown. Render
// honors Addr, Bytes and Instr; Header is left to the caller, which prints
// RenderHeader when it is set. The zero value renders every row empty.
type Columns struct {
	Header bool
	Addr   bool
	Bytes  bool
	Instr  bool
}

// AllColumns is the --log=all shorthand: every column on.
func AllColumns() Columns {
	return Columns{Header: true, Addr: true, Bytes: true, Instr: true}
}

// Line is one decoded unit of the listing: either a single instruction or
// a debug metadata frame (rendered as a label comment, not an instruction).
type Line struct {
	Addr    uint16
	Raw     []byte
	Text    string // mnemonic + operand, or "; label NAME" for a debug frame
	IsLabel bool
}

// Disassemble walks rom from its entry point to the first PadByte run,
// producing one Line per instruction (plus one per debug metadata frame,
// when present). It pre-scans in debug mode to build an address to label
// name map, so ROM-space operands can be annotated by name instead of by
// raw address.
func Disassemble(rom []byte, header isa.Header) ([]Line, error) {
	labels, err := scanLabels(rom, header)
	if err != nil {
		return nil, err
	}

	var lines []Line
	pc := header.EntryPoint

	for int(pc) < isa.RomSize && rom[pc] != isa.PadByte {
		ln, next, err := DecodeOne(rom, pc, labels)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ln)
		pc = next
	}

	return lines, nil
}

// DecodeOne decodes exactly one Line starting at pc (an instruction, or a
// debug metadata frame) and returns the address the next Line starts at.
// labels may be nil; a nil map just means every ROM-space operand prints
// as "???" (see formatInstruction).
func DecodeOne(rom []byte, pc uint16, labels map[uint16]string) (Line, uint16, error) {
	op := isa.Decode(rom[pc])

	if op == isa.DebugMetadataSignal {
		length, err := isa.FrameLength(rom[pc:])
		if err != nil {
			return Line{}, 0, fmt.Errorf("disasm: %w at address %#04x", err, pc)
		}
		name, _, err := isa.DecodeLabelFrame(rom[pc:])
		if err != nil {
			return Line{}, 0, fmt.Errorf("disasm: %w at address %#04x", err, pc)
		}
		return Line{
			Addr:    pc,
			Raw:     rom[pc : pc+uint16(length)],
			Text:    "; label " + name,
			IsLabel: true,
		}, pc + uint16(length), nil
	}

	n := uint16(isa.InstructionByteLength(op))
	if int(pc)+int(n) > isa.RomSize {
		return Line{}, 0, fmt.Errorf("disasm: instruction at %#04x overruns ROM", pc)
	}

	return Line{
		Addr: pc,
		Raw:  rom[pc : pc+n],
		Text: formatInstruction(rom, pc, op, labels),
	}, pc + n, nil
}

// scanLabels walks every debug metadata frame in rom, building a map from
// the address immediately following each frame (the address the label
// names) to its label text. Returns an empty map when header.DebugMode is
// false: an unscanned ROM annotates operands with "???" instead.
func scanLabels(rom []byte, header isa.Header) (map[uint16]string, error) {
	labels := make(map[uint16]string)
	if !header.DebugMode {
		return labels, nil
	}

	pc := header.EntryPoint
	for int(pc) < isa.RomSize && rom[pc] != isa.PadByte {
		op := isa.Decode(rom[pc])

		if op == isa.DebugMetadataSignal {
			length, err := isa.FrameLength(rom[pc:])
			if err != nil {
				return nil, fmt.Errorf("disasm: %w at address %#04x", err, pc)
			}
			name, _, err := isa.DecodeLabelFrame(rom[pc:])
			if err != nil {
				return nil, fmt.Errorf("disasm: %w at address %#04x", err, pc)
			}
			labels[pc+uint16(length)] = name
			pc += uint16(length)
			continue
		}

		pc += uint16(isa.InstructionByteLength(op))
	}

	return labels, nil
}

// formatInstruction renders one decoded instruction as "MNEMONIC operand".
// ROM-space address operands (JMP/JSR/Bxx) resolve through labels when
// known, falling back to "???" per spec.
func formatInstruction(rom []byte, pc uint16, op isa.Opcode, labels map[uint16]string) string {
	var b strings.Builder
	b.WriteString(op.String())

	switch isa.OperandKindOf(op) {
	case isa.OperandLit32:
		lit := readU32(rom, pc+1)
		fmt.Fprintf(&b, " 0x%X", lit)

	case isa.OperandAddr16:
		addr := readU16(rom, pc+1)
		if isa.AddressSpaceOf(op) == isa.AddrROM {
			if name, ok := labels[addr]; ok {
				fmt.Fprintf(&b, " %s", name)
			} else {
				fmt.Fprintf(&b, " ??? ($%04X)", addr)
			}
		} else {
			fmt.Fprintf(&b, " $%04X", addr)
		}

	case isa.OperandStride8:
		fmt.Fprintf(&b, " 0x%X", rom[pc+1])
	}

	return b.String()
}

func readU16(rom []byte, at uint16) uint16 {
	return uint16(rom[at]) | uint16(rom[at+1])<<8
}

func readU32(rom []byte, at uint16) uint32 {
	return uint32(rom[at]) | uint32(rom[at+1])<<8 | uint32(rom[at+2])<<16 | uint32(rom[at+3])<<24
}

// Render writes lines to a single string, one per output line, honoring
// which columns cols selects. A disabled column is simply omitted from
// each row rather than left blank, matching spec's column-toggle flags.
func Render(lines []Line, cols Columns) string {
	var b strings.Builder
	for _, ln := range lines {
		var parts []string
		if cols.Addr {
			parts = append(parts, fmt.Sprintf("%04X", ln.Addr))
		}
		if cols.Bytes {
			parts = append(parts, formatBytes(ln.Raw))
		}
		if cols.Instr {
			parts = append(parts, ln.Text)
		}
		b.WriteString(strings.Join(parts, "  "))
		b.WriteByte('\n')
	}
	return b.String()
}

func formatBytes(raw []byte) string {
	parts := make([]string, len(raw))
	for i, b := range raw {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// RenderHeader formats the ROM header summary line shown when Columns.Header
// is set.
func RenderHeader(header isa.Header) string {
	return fmt.Sprintf("language_version=%d entry_point=$%04X debug_mode=%v",
		header.LanguageVersion, header.EntryPoint, header.DebugMode)
}
