package disasm_test

import (
	"strings"
	"testing"

	"vm32/asm"
	"vm32/disasm"
	"vm32/isa"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestDisassembleMinimalProgram(t *testing.T) {
	rom, err := asm.Assemble("_START:\nBRK\n", false)
	assert(t, err == nil, "Assemble failed: %v", err)

	header, err := isa.ParseHeader(rom)
	assert(t, err == nil, "ParseHeader failed: %v", err)

	lines, err := disasm.Disassemble(rom, header)
	assert(t, err == nil, "Disassemble failed: %v", err)
	assert(t, len(lines) == 1, "got %d lines, want 1", len(lines))
	assert(t, lines[0].Text == "BRK", "text = %q, want BRK", lines[0].Text)
	assert(t, lines[0].Addr == isa.HeaderBytes, "addr = %#x, want %#x", lines[0].Addr, isa.HeaderBytes)
}

func TestDisassembleResolvesForwardLabel(t *testing.T) {
	src := `
_START:
JMP Done
BRK
Done:
BRK
`
	rom, err := asm.Assemble(src, true)
	assert(t, err == nil, "Assemble failed: %v", err)

	header, err := isa.ParseHeader(rom)
	assert(t, err == nil, "ParseHeader failed: %v", err)
	assert(t, header.DebugMode, "expected debug_mode")

	lines, err := disasm.Disassemble(rom, header)
	assert(t, err == nil, "Disassemble failed: %v", err)

	var jmpLine *disasm.Line
	for i := range lines {
		if strings.HasPrefix(lines[i].Text, "JMP") {
			jmpLine = &lines[i]
		}
	}
	assert(t, jmpLine != nil, "expected a JMP line in the listing")
	assert(t, strings.Contains(jmpLine.Text, "Done"), "JMP operand = %q, want it to name Done", jmpLine.Text)
	assert(t, !strings.Contains(jmpLine.Text, "???"), "JMP operand unexpectedly unresolved: %q", jmpLine.Text)
}

func TestDisassembleUnresolvedLabelIsQuestionMarks(t *testing.T) {
	src := "_START:\nJMP Done\nBRK\nDone:\nBRK\n"
	rom, err := asm.Assemble(src, false) // no debug metadata -> no label map
	assert(t, err == nil, "Assemble failed: %v", err)

	header, err := isa.ParseHeader(rom)
	assert(t, err == nil, "ParseHeader failed: %v", err)

	lines, err := disasm.Disassemble(rom, header)
	assert(t, err == nil, "Disassemble failed: %v", err)

	assert(t, strings.Contains(lines[0].Text, "???"), "expected an unresolved JMP operand, got %q", lines[0].Text)
}

func TestRenderHonorsColumnToggles(t *testing.T) {
	rom, err := asm.Assemble("_START:\nBRK\n", false)
	assert(t, err == nil, "Assemble failed: %v", err)
	header, _ := isa.ParseHeader(rom)
	lines, err := disasm.Disassemble(rom, header)
	assert(t, err == nil, "Disassemble failed: %v", err)

	instrOnly := disasm.Render(lines, disasm.Columns{Instr: true})
	assert(t, strings.TrimSpace(instrOnly) == "BRK", "instrOnly = %q", instrOnly)

	all := disasm.Render(lines, disasm.AllColumns())
	assert(t, strings.Contains(all, "0010"), "expected the address column in %q", all)
	assert(t, strings.Contains(all, "01"), "expected the raw byte column in %q", all)
	assert(t, strings.Contains(all, "BRK"), "expected the instruction column in %q", all)
}
