package bitmap

import (
	"encoding/binary"
	"github.com/pkg/errors"
)

var fileSignature = [2]byte{'B', 'M'}

type BmpHeader struct {
	Signature   [2]byte
	Size        uint32
	Reserved1   uint16
	Reserved2   uint16
	PixelOffset uint32
}

func NewBmpHeader(fileSize, pixelOffset uint32) BmpHeader {
	return BmpHeader{
		Signature:   fileSignature,
		Size:        fileSize,
		PixelOffset: pixelOffset,
	}
}

func (h BmpHeader) VerifyFileSignature() error {
	if h.Signature != fileSignature {
		return errors.Wrapf(ErrFormat, "file signature %q is not %q", h.Signature[:], fileSignature[:])
	}
	return nil
}

type Compression uint32

const (
	CompressionNone Compression = iota
	CompressionRLE8
	CompressionRLE4
	CompressionBitfields
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "Compression(None)"
	case CompressionRLE8:
		return "Compression(RLE8)"
	case CompressionRLE4:
		return "Compression(RLE4)"
	case CompressionBitfields:
		return "Compression(Bitfields)"
	}
	return "Compression(UNKNOWN)"
}

// ImageHeader is the 40 byte BITMAPINFOHEADER. A positive Height means rows
// are stored bottom-up.
type ImageHeader struct {
	HeaderSize          uint32
	Width               int32
	Height              int32
	Planes              uint16
	BitCount            uint16
	Compression         Compression
	ImageSize           uint32
	XResolution         uint32
	YResolution         uint32
	UsedColorMapEntries uint32
	ImportantColorCount uint32
}

var (
	bmpHeaderSize   = binary.Size(BmpHeader{})
	imageHeaderSize = binary.Size(ImageHeader{})
	colorSize       = binary.Size(Color{})
)

var validBitCounts = []uint16{1, 4, 8, 16, 24, 32}

func NewImageHeader(width, height int32, bitCount uint16) (ImageHeader, error) {
	if err := VerifyValidBitCount(bitCount); err != nil {
		return ImageHeader{}, err
	}
	return ImageHeader{
		HeaderSize: uint32(imageHeaderSize),
		Width:      width,
		Height:     height,
		Planes:     1,
		BitCount:   bitCount,
	}, nil
}

func IsValidBitCount(bitCount uint16) bool {
	for _, valid := range validBitCounts {
		if bitCount == valid {
			return true
		}
	}
	return false
}

func VerifyValidBitCount(bitCount uint16) error {
	if !IsValidBitCount(bitCount) {
		return errors.Wrapf(ErrFormat, "a bit count of %d is not supported", bitCount)
	}
	return nil
}

// IsIndexed reports whether pixels of bitCount bits are palette indices.
func IsIndexed(bitCount uint16) bool { return bitCount <= 8 }

// CalcPixelByteWidth is the number of bytes holding one row of pixels,
// excluding padding.
func CalcPixelByteWidth(bitCount uint16, width int32) int {
	return (int(width)*int(bitCount) + 7) / 8
}

// CalculatePitch is the number of bytes in one row of pixels, including
// padding to a 4 byte boundary.
func CalculatePitch(bitCount uint16, width int32) int {
	return (CalcPixelByteWidth(bitCount, width) + 3) &^ 3
}

func CalcMaxIndexedPaletteSize(bitCount uint16) (int, error) {
	if !IsIndexed(bitCount) {
		return 0, errors.Wrapf(ErrFormat, "a bit count of %d has no palette", bitCount)
	}
	return 1 << bitCount, nil
}

func (h ImageHeader) Pitch() int          { return CalculatePitch(h.BitCount, h.Width) }
func (h ImageHeader) PixelByteWidth() int { return CalcPixelByteWidth(h.BitCount, h.Width) }

func (h ImageHeader) AbsHeight() int {
	if h.Height < 0 {
		return -int(h.Height)
	}
	return int(h.Height)
}

func (h ImageHeader) MaxIndexedPaletteSize() (int, error) {
	return CalcMaxIndexedPaletteSize(h.BitCount)
}

func (h ImageHeader) Validate() error {
	if h.HeaderSize != uint32(imageHeaderSize) {
		return errors.Wrapf(ErrFormat, "image header size must be %d, not %d", imageHeaderSize, h.HeaderSize)
	}
	if h.Planes != 1 {
		return errors.Wrapf(ErrFormat, "only single plane images are supported, this image has %d", h.Planes)
	}
	if err := VerifyValidBitCount(h.BitCount); err != nil {
		return err
	}
	if h.Width < 0 {
		return errors.Wrapf(ErrFormat, "negative image width %d", h.Width)
	}
	if !IsIndexed(h.BitCount) {
		return nil
	}

	maxPalette, _ := h.MaxIndexedPaletteSize()
	if h.UsedColorMapEntries > uint32(maxPalette) {
		return errors.Wrapf(ErrFormat, "%d used color map entries exceed the %d possible", h.UsedColorMapEntries, maxPalette)
	}
	if h.ImportantColorCount > uint32(maxPalette) {
		return errors.Wrapf(ErrFormat, "%d important colors exceed the %d possible", h.ImportantColorCount, maxPalette)
	}
	return nil
}
