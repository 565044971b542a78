package sprite

import (
	"encoding/binary"
	"github.com/32bitkid/op2/archive"
	"github.com/32bitkid/op2/bitmap"
	"github.com/pkg/errors"
	"io"
)

// PaletteSize is the number of colors in every sprite and tileset palette.
const PaletteSize = 256

var (
	TagPalette        = archive.NewTag("CPAL")
	TagPaletteSection = archive.NewTag("PPAL")
	TagHead           = archive.NewTag("head")
	TagData           = archive.NewTag("data")
)

var paletteDataSize = uint32(PaletteSize * binary.Size(bitmap.Color{}))

// PaletteHeader precedes each palette in a sprite index.
type PaletteHeader struct {
	Overall           SectionHeader
	Head              SectionHeader
	RemainingTagCount uint32
	Data              SectionHeader
}

var paletteHeaderSize = binary.Size(PaletteHeader{})

func NewPaletteHeader() PaletteHeader {
	h := PaletteHeader{
		Head:              SectionHeader{TagHead, 4},
		RemainingTagCount: 1,
		Data:              SectionHeader{TagData, paletteDataSize},
	}
	h.Overall = SectionHeader{TagPaletteSection, h.overallLength()}
	return h
}

func (h PaletteHeader) overallLength() uint32 {
	return uint32(sectionHeaderSize) + h.Head.TotalLength() + 4 + h.Data.TotalLength()
}

func (h PaletteHeader) Validate() error {
	if err := h.Overall.Validate(TagPaletteSection); err != nil {
		return err
	}
	if err := h.Head.Validate(TagHead); err != nil {
		return err
	}
	if err := h.Data.Validate(TagData); err != nil {
		return err
	}
	if h.Overall.Length != h.overallLength() {
		return errors.Wrap(ErrFormat, "lengths defined in palette headers do not match")
	}
	if h.Data.Length != paletteDataSize {
		return errors.Wrapf(ErrFormat, "palette data is %d bytes, expected %d", h.Data.Length, paletteDataSize)
	}
	return nil
}

// Sprite and tileset palettes store red where a bitmap stores blue.
func swapRedAndBlue(p bitmap.Palette) bitmap.Palette {
	swapped := make(bitmap.Palette, len(p))
	for i, c := range p {
		c.Red, c.Blue = c.Blue, c.Red
		swapped[i] = c
	}
	return swapped
}

func readPalette(r io.Reader) (bitmap.Palette, error) {
	p := make(bitmap.Palette, PaletteSize)
	if err := read(r, p, "palette"); err != nil {
		return nil, err
	}
	return swapRedAndBlue(p), nil
}

// writePalette pads p with black to a full palette.
func writePalette(w io.Writer, p bitmap.Palette) error {
	if len(p) > PaletteSize {
		return errors.Wrapf(ErrInvalidArgument, "a palette of %d colors exceeds %d", len(p), PaletteSize)
	}
	full := make(bitmap.Palette, PaletteSize)
	copy(full, p)
	return binary.Write(w, binary.LittleEndian, swapRedAndBlue(full))
}
