package insts

import "errors"

// DecoderError is the outcome of the last Decode call.
type DecoderError uint8

// Decoder errors.
const (
	// DecoderErrorNone means the last instruction decoded successfully.
	DecoderErrorNone DecoderError = iota
	// DecoderErrorInvalidInstruction means the bytes do not form a valid
	// instruction in the current mode and option set.
	DecoderErrorInvalidInstruction
	// DecoderErrorNoMoreBytes means the input ended mid-instruction.
	DecoderErrorNoMoreBytes
	// DecoderErrorInternalError means the opcode tables are inconsistent.
	DecoderErrorInternalError
)

func (e DecoderError) Error() string {
	switch e {
	case DecoderErrorNone:
		return "no error"
	case DecoderErrorInvalidInstruction:
		return "invalid instruction"
	case DecoderErrorNoMoreBytes:
		return "no more bytes"
	}

	return "internal decoder error"
}

// Errors returned by the API.
var (
	ErrInvalidBitness       = errors.New("bitness must be 16, 32 or 64")
	ErrInvalidOperandIndex  = errors.New("operand index out of range")
	ErrInvalidDeclareLength = errors.New("invalid declare data length")
	ErrInvalidPosition      = errors.New("position out of range")
	ErrNotDeclareData       = errors.New("instruction is not a declare data pseudo instruction")
	ErrUnknownCode          = errors.New("unknown code")
)
