// Package decompression decodes the payloads stored in Outpost 2 volume
// (.vol) archives.
//
// Volume entries carry a 16-bit compression tag. Only uncompressed and LZH
// entries occur in practice; LZH combines an adaptive Huffman coder with a
// 4096 byte sliding window of back-references.
package decompression

import (
	"fmt"
	"github.com/pkg/errors"
	"io"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrUnsupportedMethod = errors.New("unsupported compression method")
)

type Method uint16

const (
	MethodNone Method = 0x100
	MethodRLE  Method = 0x101
	MethodLZ   Method = 0x102
	MethodLZH  Method = 0x103
)

func (m Method) String() string {
	switch m {
	case MethodNone:
		return "Method(None)"
	case MethodRLE:
		return "Method(RLE)"
	case MethodLZ:
		return "Method(LZ)"
	case MethodLZH:
		return "Method(LZH)"
	}
	return fmt.Sprintf("Method(0x%04X)", uint16(m))
}

type Decompressor = func(src io.Reader, dst io.Writer, compressedSize uint32) error

type LUT map[Method]Decompressor

// Decompress looks up the decompressor for method and runs it.
func (lut LUT) Decompress(method Method, src io.Reader, dst io.Writer, compressedSize uint32) error {
	decompressor, ok := lut[method]
	if !ok {
		return errors.Wrapf(ErrUnsupportedMethod, "%v", method)
	}
	return decompressor(src, dst, compressedSize)
}

func DecompressNone(src io.Reader, dst io.Writer, compressedSize uint32) error {
	lr := io.LimitReader(src, int64(compressedSize))
	n, err := io.Copy(dst, lr)
	if err != nil {
		return err
	}
	if n != int64(compressedSize) {
		return fmt.Errorf("read aborted early. expected(%d) != actual(%d)", compressedSize, n)
	}
	return nil
}

func DecompressLZH(src io.Reader, dst io.Writer, compressedSize uint32) error {
	payload := make([]byte, compressedSize)
	if _, err := io.ReadFull(src, payload); err != nil {
		return err
	}

	bits, err := NewBitStreamReader(payload)
	if err != nil {
		return err
	}

	_, err = NewHuffLZ(bits).WriteTo(dst)
	return err
}

func DecompressRLE(src io.Reader, dst io.Writer, compressedSize uint32) error {
	return errors.New("not implemented: RLE decompression")
}

func DecompressLZ(src io.Reader, dst io.Writer, compressedSize uint32) error {
	return errors.New("not implemented: LZ decompression")
}

var Decompressors = LUT{
	MethodNone: DecompressNone,
	MethodRLE:  DecompressRLE,
	MethodLZ:   DecompressLZ,
	MethodLZH:  DecompressLZH,
}
