package isa

import (
	"encoding/binary"
	"errors"
)

// RomSize is the fixed capacity of a ROM image, in bytes.
const RomSize = 65536

// HeaderBytes is the size of the serialized header at the front of every
// ROM image.
const HeaderBytes = 16

// PadByte fills unused ROM space past the end of the instruction stream.
const PadByte byte = 0xCC

// magic identifies a well-formed vm32 ROM. Chosen to read as ASCII "VM32"
// in a hex dump.
var magic = [4]byte{'V', 'M', '3', '2'}

const languageVersion = 1

var (
	ErrWrongMagic       = errors.New("isa: wrong ROM magic number")
	ErrVersionMismatch  = errors.New("isa: unsupported language version")
	ErrHeaderTruncated  = errors.New("isa: header shorter than 16 bytes")
	ErrEntryOutOfBounds = errors.New("isa: entry point outside ROM")
)

// Header is the 16-byte prologue of every ROM image.
type Header struct {
	LanguageVersion uint8
	EntryPoint      uint16
	DebugMode       bool
}

// ParseHeader reads the first 16 bytes of b as a Header. b must be at least
// HeaderBytes long.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderBytes {
		return Header{}, ErrHeaderTruncated
	}
	if b[0] != magic[0] || b[1] != magic[1] || b[2] != magic[2] || b[3] != magic[3] {
		return Header{}, ErrWrongMagic
	}
	h := Header{
		LanguageVersion: b[4],
		EntryPoint:      binary.LittleEndian.Uint16(b[5:7]),
		DebugMode:       b[7] != 0,
	}
	if h.LanguageVersion != languageVersion {
		return Header{}, ErrVersionMismatch
	}
	return h, nil
}

// Serialize writes h out as the 16-byte header. The trailing reserved bytes
// are always zero.
func (h Header) Serialize() [HeaderBytes]byte {
	var b [HeaderBytes]byte
	copy(b[0:4], magic[:])
	b[4] = languageVersion
	binary.LittleEndian.PutUint16(b[5:7], h.EntryPoint)
	if h.DebugMode {
		b[7] = 1
	}
	// b[8:16] reserved, left zero.
	return b
}

// NewRom returns a ROM image of exactly RomSize bytes, tail-padded with
// PadByte, ready for a code generator to fill in from the front.
func NewRom() []byte {
	rom := make([]byte, RomSize)
	for i := range rom {
		rom[i] = PadByte
	}
	return rom
}
