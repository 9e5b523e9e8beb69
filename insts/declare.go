package insts

import (
	"encoding/binary"
	"fmt"
)

// NewDeclareByte creates a "db" pseudo instruction holding 1 to 16 bytes.
func NewDeclareByte(data []byte) (Instruction, error) {
	return newDeclare(CodeDeclareByte, data, 1)
}

// NewDeclareWord creates a "dw" pseudo instruction holding 1 to 8 words.
func NewDeclareWord(words []uint16) (Instruction, error) {
	buf := make([]byte, 0, 2*len(words))
	for _, w := range words {
		buf = binary.LittleEndian.AppendUint16(buf, w)
	}

	return newDeclare(CodeDeclareWord, buf, 2)
}

// NewDeclareDword creates a "dd" pseudo instruction holding 1 to 4 dwords.
func NewDeclareDword(dwords []uint32) (Instruction, error) {
	buf := make([]byte, 0, 4*len(dwords))
	for _, v := range dwords {
		buf = binary.LittleEndian.AppendUint32(buf, v)
	}

	return newDeclare(CodeDeclareDword, buf, 4)
}

// NewDeclareQword creates a "dq" pseudo instruction holding 1 or 2 qwords.
func NewDeclareQword(qwords []uint64) (Instruction, error) {
	buf := make([]byte, 0, 8*len(qwords))
	for _, v := range qwords {
		buf = binary.LittleEndian.AppendUint64(buf, v)
	}

	return newDeclare(CodeDeclareQword, buf, 8)
}

// MustDeclareByte is like NewDeclareByte but panics on error.
func MustDeclareByte(data []byte) Instruction { return mustDeclare(NewDeclareByte(data)) }

// MustDeclareWord is like NewDeclareWord but panics on error.
func MustDeclareWord(words []uint16) Instruction { return mustDeclare(NewDeclareWord(words)) }

// MustDeclareDword is like NewDeclareDword but panics on error.
func MustDeclareDword(dwords []uint32) Instruction { return mustDeclare(NewDeclareDword(dwords)) }

// MustDeclareQword is like NewDeclareQword but panics on error.
func MustDeclareQword(qwords []uint64) Instruction { return mustDeclare(NewDeclareQword(qwords)) }

func mustDeclare(inst Instruction, err error) Instruction {
	if err != nil {
		panic(err)
	}

	return inst
}

func newDeclare(code Code, data []byte, elem int) (Instruction, error) {
	if len(data) == 0 || len(data) > 16 {
		return Instruction{}, fmt.Errorf("%w: %d bytes", ErrInvalidDeclareLength, len(data))
	}

	inst := Instruction{code: code}
	copy(inst.declData[:], data)
	inst.declLen = uint8(len(data) / elem)
	inst.length = uint8(len(data))

	return inst, nil
}

func declareElemSize(c Code) int {
	switch c {
	case CodeDeclareByte:
		return 1
	case CodeDeclareWord:
		return 2
	case CodeDeclareDword:
		return 4
	case CodeDeclareQword:
		return 8
	}

	return 0
}

// DeclareDataLen returns the number of elements of a declare data
// instruction.
func (i *Instruction) DeclareDataLen() int { return int(i.declLen) }

// DeclareBytes returns the raw data of a declare data instruction.
func (i *Instruction) DeclareBytes() []byte {
	n := int(i.declLen) * declareElemSize(i.code)
	return append([]byte(nil), i.declData[:n]...)
}

func (i *Instruction) declareSlot(code Code, index int) (int, error) {
	if i.code != code {
		return 0, fmt.Errorf("%w: %s", ErrNotDeclareData, i.code)
	}

	size := declareElemSize(code)
	if index < 0 || index >= 16/size {
		return 0, fmt.Errorf("%w: %d", ErrInvalidOperandIndex, index)
	}

	return index * size, nil
}

// TryDeclareByteValue returns byte element index of a db instruction.
func (i *Instruction) TryDeclareByteValue(index int) (uint8, error) {
	off, err := i.declareSlot(CodeDeclareByte, index)
	if err != nil {
		return 0, err
	}

	return i.declData[off], nil
}

// TrySetDeclareByteValue changes byte element index of a db instruction.
func (i *Instruction) TrySetDeclareByteValue(index int, v uint8) error {
	off, err := i.declareSlot(CodeDeclareByte, index)
	if err != nil {
		return err
	}

	i.declData[off] = v

	return nil
}

// TryDeclareWordValue returns word element index of a dw instruction.
func (i *Instruction) TryDeclareWordValue(index int) (uint16, error) {
	off, err := i.declareSlot(CodeDeclareWord, index)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(i.declData[off:]), nil
}

// TrySetDeclareWordValue changes word element index of a dw instruction.
func (i *Instruction) TrySetDeclareWordValue(index int, v uint16) error {
	off, err := i.declareSlot(CodeDeclareWord, index)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint16(i.declData[off:], v)

	return nil
}

// TryDeclareDwordValue returns dword element index of a dd instruction.
func (i *Instruction) TryDeclareDwordValue(index int) (uint32, error) {
	off, err := i.declareSlot(CodeDeclareDword, index)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(i.declData[off:]), nil
}

// TrySetDeclareDwordValue changes dword element index of a dd instruction.
func (i *Instruction) TrySetDeclareDwordValue(index int, v uint32) error {
	off, err := i.declareSlot(CodeDeclareDword, index)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint32(i.declData[off:], v)

	return nil
}

// TryDeclareQwordValue returns qword element index of a dq instruction.
func (i *Instruction) TryDeclareQwordValue(index int) (uint64, error) {
	off, err := i.declareSlot(CodeDeclareQword, index)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(i.declData[off:]), nil
}

// TrySetDeclareQwordValue changes qword element index of a dq instruction.
func (i *Instruction) TrySetDeclareQwordValue(index int, v uint64) error {
	off, err := i.declareSlot(CodeDeclareQword, index)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint64(i.declData[off:], v)

	return nil
}

// SetDeclareDataLen changes the element count of a declare data
// instruction.
func (i *Instruction) SetDeclareDataLen(n int) error {
	size := declareElemSize(i.code)
	if size == 0 {
		return fmt.Errorf("%w: %s", ErrNotDeclareData, i.code)
	}

	if n < 1 || n*size > 16 {
		return fmt.Errorf("%w: %d elements", ErrInvalidDeclareLength, n)
	}

	i.declLen = uint8(n)
	i.length = uint8(n * size)

	return nil
}

func (i *Instruction) validateDeclare() error {
	size := declareElemSize(i.code)
	if i.declLen == 0 || int(i.declLen)*size > 16 {
		return fmt.Errorf("%w: %d elements", ErrInvalidDeclareLength, i.declLen)
	}

	if i.opCnt != 0 {
		return fmt.Errorf("declare data with %d operands", i.opCnt)
	}

	return nil
}
