package insts

import (
	"fmt"
	"iter"
)

// Decoder decodes x86 instructions from a byte slice. A Decoder is not safe
// for concurrent use; create one per goroutine over shared input.
type Decoder struct {
	data     []byte
	pos      int
	ip       uint64
	bitness  int
	codeSize CodeSize
	options  DecoderOptions
	lastErr  DecoderError

	start int
	limit int
	st    decodeState
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithIP sets the address of the first byte of data.
func WithIP(ip uint64) DecoderOption {
	return func(d *Decoder) {
		d.ip = ip
	}
}

// WithOptions sets the decoder option bitset.
func WithOptions(opts DecoderOptions) DecoderOption {
	return func(d *Decoder) {
		d.options = opts
	}
}

// NewDecoder creates a decoder for the given bitness (16, 32 or 64).
func NewDecoder(bitness int, data []byte, opts ...DecoderOption) (*Decoder, error) {
	cs := codeSizeFromBits(bitness)
	if cs == CodeSizeUnknown {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBitness, bitness)
	}

	d := &Decoder{
		data:     data,
		bitness:  bitness,
		codeSize: cs,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// MustNewDecoder is like NewDecoder but panics on error.
func MustNewDecoder(bitness int, data []byte, opts ...DecoderOption) *Decoder {
	d, err := NewDecoder(bitness, data, opts...)
	if err != nil {
		panic(err)
	}

	return d
}

// Bitness returns 16, 32 or 64.
func (d *Decoder) Bitness() int { return d.bitness }

// Options returns the option bitset.
func (d *Decoder) Options() DecoderOptions { return d.options }

// IP returns the address of the next instruction.
func (d *Decoder) IP() uint64 { return d.ip }

// SetIP changes the address of the next instruction.
func (d *Decoder) SetIP(ip uint64) { d.ip = ip }

// Position returns the offset of the next byte to decode.
func (d *Decoder) Position() int { return d.pos }

// SetPosition moves the cursor. The IP is not changed.
func (d *Decoder) SetPosition(pos int) error {
	if pos < 0 || pos > len(d.data) {
		return fmt.Errorf("%w: %d", ErrInvalidPosition, pos)
	}

	d.pos = pos

	return nil
}

// Accept moves the decoder past inst as if Decode had just returned it.
// inst must start at the current IP and fit in the remaining input.
func (d *Decoder) Accept(inst *Instruction) error {
	if inst.IP() != d.ip {
		return fmt.Errorf("%w: instruction at 0x%x, decoder at 0x%x", ErrInvalidPosition, inst.IP(), d.ip)
	}

	end := d.pos + inst.Len()
	if inst.Len() == 0 || end > len(d.data) {
		return fmt.Errorf("%w: %d", ErrInvalidPosition, end)
	}

	d.pos = end
	d.ip = inst.NextIP()
	d.lastErr = DecoderErrorNone

	return nil
}

// CanDecode reports whether any input remains.
func (d *Decoder) CanDecode() bool { return d.pos < len(d.data) }

// LastError returns the outcome of the last Decode call.
func (d *Decoder) LastError() DecoderError { return d.lastErr }

// Decode decodes the next instruction.
func (d *Decoder) Decode() Instruction {
	var inst Instruction
	d.DecodeOut(&inst)

	return inst
}

// Instructions returns an iterator that decodes until the input ends.
func (d *Decoder) Instructions() iter.Seq[Instruction] {
	return func(yield func(Instruction) bool) {
		for d.CanDecode() {
			if !yield(d.Decode()) {
				return
			}
		}
	}
}

// DecodeOut decodes the next instruction into inst, overwriting it. On
// failure inst has CodeInvalid and the cursor moves past at least one byte.
func (d *Decoder) DecodeOut(inst *Instruction) {
	*inst = Instruction{}

	ip := d.ip
	d.start = d.pos
	d.limit = min(len(d.data), d.start+MaxInstructionLength)
	d.st = decodeState{}

	d.decodeOne(inst)

	d.finish(inst, ip)
}

func (d *Decoder) finish(inst *Instruction, ip uint64) {
	length := d.pos - d.start

	var err DecoderError

	switch {
	case d.st.failed&failNoMoreBytes != 0:
		err = DecoderErrorNoMoreBytes
	case d.st.failed&failInternal != 0:
		err = DecoderErrorInternalError
	case d.st.failed != 0:
		err = DecoderErrorInvalidInstruction
	}

	if err != DecoderErrorNone {
		*inst = Instruction{}

		if length == 0 && d.start < len(d.data) {
			length = 1
		}
	}

	inst.ip = ip
	inst.length = uint8(length)
	inst.codeSize = d.codeSize

	if err == DecoderErrorNone && inst.IsIPRelativeMemoryOperand() {
		inst.memDispl += inst.NextIP()
		if inst.memBase == EIP {
			inst.memDispl = uint64(uint32(inst.memDispl))
		}
	}

	d.pos = d.start + length
	d.ip = inst.NextIP()
	d.lastErr = err
}

func (d *Decoder) is64() bool { return d.bitness == 64 }

func (d *Decoder) mode() modeMask {
	switch d.bitness {
	case 16:
		return mode16
	case 32:
		return mode32
	}

	return mode64
}

// readByte returns the next byte. Past the end of the data it flags
// NoMoreBytes; past the 15-byte limit it flags the instruction invalid.
func (d *Decoder) readByte() uint32 {
	if d.pos >= d.limit {
		if d.limit < len(d.data) {
			d.st.failed |= failInvalid
		} else {
			d.st.failed |= failNoMoreBytes
		}

		return 0
	}

	b := d.data[d.pos]
	d.pos++

	return uint32(b)
}

func (d *Decoder) readUint16() uint32 {
	lo := d.readByte()
	return lo | d.readByte()<<8
}

func (d *Decoder) readUint32() uint32 {
	lo := d.readUint16()
	return lo | d.readUint16()<<16
}

func (d *Decoder) readUint64() uint64 {
	lo := uint64(d.readUint32())
	return lo | uint64(d.readUint32())<<32
}

// peekByte returns the next byte without consuming it.
func (d *Decoder) peekByte() (uint32, bool) {
	if d.pos >= d.limit {
		return 0, false
	}

	return uint32(d.data[d.pos]), true
}

func (d *Decoder) decodeOne(inst *Instruction) {
	d.scanPrefixes()
	if d.st.failed != 0 {
		return
	}

	b := d.readByte()
	if d.st.failed != 0 {
		return
	}

	switch b {
	case 0x0F:
		d.decodeLegacy0F(inst)
		return
	case 0xC5:
		if d.vexFollows() {
			d.decodeVEX2(inst)
			return
		}
	case 0xC4:
		if d.vexFollows() {
			d.decodeVEX3(inst, EncodingVEX)
			return
		}
	case 0x8F:
		if next, ok := d.peekByte(); ok && next&0x1F >= 8 {
			d.decodeVEX3(inst, EncodingXOP)
			return
		}
	case 0x62:
		if d.vexFollows() {
			d.decodeEVEX(inst)
			return
		}
	case 0x9B:
		if d.options&OptionNoFwaitFusion == 0 && d.decodeFwait(inst) {
			return
		}
	}

	d.decodeLegacy(inst, TableNormal, b)
}

// vexFollows reports whether C4, C5 or 62 starts a VEX or EVEX prefix
// rather than LES, LDS or BOUND. Outside 64-bit mode the next byte must
// have mod=3.
func (d *Decoder) vexFollows() bool {
	if d.is64() {
		return true
	}

	next, ok := d.peekByte()

	return !ok || next >= 0xC0
}

// decodeFwait handles a 9B that may fuse with the following x87 control
// instruction. It returns false if 9B decodes as WAIT on its own.
func (d *Decoder) decodeFwait(inst *Instruction) bool {
	if d.st.prefixCount() != 0 {
		return false
	}

	saved := d.pos
	outer := d.st

	d.st = decodeState{}
	d.decodeOne(inst)

	if d.st.failed == 0 {
		if twin := inst.code.info().fwaitTwin; twin != CodeInvalid {
			inst.code = twin
			return true
		}
	}

	*inst = Instruction{}
	d.pos = saved
	d.st = outer

	return false
}
