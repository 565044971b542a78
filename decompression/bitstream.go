package decompression

import (
	"bytes"
	"github.com/32bitkid/bitreader"
	"github.com/pkg/errors"
	"math"
)

// BitStreamReader reads an in-memory buffer one bit, or one byte, at a
// time, most significant bit first. Reads past the end of the buffer are
// not errors: they yield false or 0.
type BitStreamReader struct {
	bits    bitreader.BitReader
	bitSize uint32
	pos     uint32
}

// NewBitStreamReader wraps buf. Bit positions are 32-bit, so buf may be at
// most math.MaxUint32/8 bytes long.
func NewBitStreamReader(buf []byte) (*BitStreamReader, error) {
	if err := verifyBitStreamSize(uint64(len(buf))); err != nil {
		return nil, err
	}

	return &BitStreamReader{
		bits:    bitreader.NewReader(bytes.NewReader(buf)),
		bitSize: uint32(len(buf)) << 3,
	}, nil
}

func verifyBitStreamSize(n uint64) error {
	if n > math.MaxUint32/8 {
		return errors.Wrapf(ErrInvalidArgument, "bit stream cannot support a buffer size of %d", n)
	}
	return nil
}

func (bs *BitStreamReader) ReadNextBit() bool {
	if bs.EndOfStream() {
		return false
	}

	bit, err := bs.bits.Read1()
	bs.pos++
	if err != nil {
		return false
	}
	return bit
}

// ReadNext8Bits reads the next 8 bits regardless of byte alignment. When
// fewer than 8 bits remain, the remaining bits are returned in the high end
// of the result.
func (bs *BitStreamReader) ReadNext8Bits() uint8 {
	if bs.EndOfStream() {
		return 0
	}

	n := uint(8)
	if remaining := bs.bitSize - bs.pos; remaining < 8 {
		n = uint(remaining)
	}

	value, err := bs.bits.Read8(n)
	bs.pos += 8
	if err != nil {
		return 0
	}
	return value << (8 - n)
}

func (bs *BitStreamReader) EndOfStream() bool {
	return bs.pos >= bs.bitSize
}

// BitReadPos returns the number of bits consumed so far.
func (bs *BitStreamReader) BitReadPos() uint32 {
	return bs.pos
}
