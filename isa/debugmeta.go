package isa

import "errors"

// DebugMetadataType identifies the payload shape of a debug metadata
// frame. Only LabelName exists today; the type byte leaves room to grow.
type DebugMetadataType byte

const (
	LabelName DebugMetadataType = 0
)

var (
	ErrBadMetadataFrame = errors.New("isa: malformed debug metadata frame")
)

// FrameLength inspects bytes starting at an opening DebugMetadataSignal and
// returns the total frame length, including both signal bytes. Layout:
//
//	[0]  DebugMetadataSignal (open)
//	[1]  DebugMetadataType
//	[2]  payload length N
//	[3:3+N] payload
//	[3+N]   DebugMetadataSignal (close)
func FrameLength(frame []byte) (int, error) {
	if len(frame) < 4 || Opcode(frame[0]) != DebugMetadataSignal {
		return 0, ErrBadMetadataFrame
	}
	n := int(frame[2])
	total := 4 + n
	if len(frame) < total {
		return 0, ErrBadMetadataFrame
	}
	if Opcode(frame[total-1]) != DebugMetadataSignal {
		return 0, ErrBadMetadataFrame
	}
	return total, nil
}

// EncodeLabelFrame returns the bytes of a LABEL_NAME debug metadata frame
// for the given label name.
func EncodeLabelFrame(name string) ([]byte, error) {
	if len(name) > 255 {
		return nil, errors.New("isa: label name too long for debug metadata")
	}
	frame := make([]byte, 4+len(name))
	frame[0] = byte(DebugMetadataSignal)
	frame[1] = byte(LabelName)
	frame[2] = byte(len(name))
	copy(frame[3:], name)
	frame[3+len(name)] = byte(DebugMetadataSignal)
	return frame, nil
}

// DecodeLabelFrame parses a LABEL_NAME frame previously produced by
// EncodeLabelFrame, returning the label name and the frame's total length.
func DecodeLabelFrame(frame []byte) (name string, length int, err error) {
	length, err = FrameLength(frame)
	if err != nil {
		return "", 0, err
	}
	if DebugMetadataType(frame[1]) != LabelName {
		return "", length, errors.New("isa: unsupported debug metadata type")
	}
	n := int(frame[2])
	return string(frame[3 : 3+n]), length, nil
}
