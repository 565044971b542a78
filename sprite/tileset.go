package sprite

import (
	"bufio"
	"encoding/binary"
	"github.com/32bitkid/op2/archive"
	"github.com/32bitkid/op2/bitmap"
	"github.com/pkg/errors"
	"io"
	"math"
)

var TagTileset = archive.NewTag("PBMP")

const (
	TileSize = 32

	tilesetBitDepth = 8
	tilesetTagCount = 2
	tilesetFlags    = 8
)

// TilesetHeader follows the PBMP signature of a custom tileset.
type TilesetHeader struct {
	Section  SectionHeader
	TagCount uint32
	// Width is always TileSize, Height a multiple of it. Rows are stored
	// top-down.
	PixelWidth  uint32
	PixelHeight uint32
	BitDepth    uint32
	Flags       uint32
}

// tilesetPaletteHeader mirrors PaletteHeader without the data section.
type tilesetPaletteHeader struct {
	PPAL     SectionHeader
	Head     SectionHeader
	TagCount uint32
}

var (
	tilesetHeaderSize        = binary.Size(TilesetHeader{})
	tilesetPaletteHeaderSize = binary.Size(tilesetPaletteHeader{})
)

func NewTilesetHeader(heightInTiles uint32) TilesetHeader {
	return TilesetHeader{
		Section:     SectionHeader{TagHead, uint32(tilesetHeaderSize - sectionHeaderSize)},
		TagCount:    tilesetTagCount,
		PixelWidth:  TileSize,
		PixelHeight: heightInTiles * TileSize,
		BitDepth:    tilesetBitDepth,
		Flags:       tilesetFlags,
	}
}

func (h TilesetHeader) Validate() error {
	if err := h.Section.Validate(TagHead); err != nil {
		return err
	}
	if expected := uint32(tilesetHeaderSize - sectionHeaderSize); h.Section.Length != expected {
		return errors.Wrapf(ErrFormat, "tileset header section size reads %d, expected %d", h.Section.Length, expected)
	}
	if h.PixelWidth != TileSize {
		return errors.Wrapf(ErrFormat, "tileset pixel width reads %d, expected %d", h.PixelWidth, TileSize)
	}
	if h.PixelHeight%TileSize != 0 {
		return errors.Wrapf(ErrFormat, "tileset pixel height reads %d, it must be a multiple of %d", h.PixelHeight, TileSize)
	}
	if h.PixelHeight > math.MaxUint32/TileSize {
		return errors.Wrapf(ErrFormat, "tileset pixel height %d is too large", h.PixelHeight)
	}
	if h.BitDepth != tilesetBitDepth {
		return errors.Wrapf(ErrFormat, "tileset bit depth reads %d, expected %d", h.BitDepth, tilesetBitDepth)
	}
	if h.TagCount != tilesetTagCount {
		return errors.Wrapf(ErrFormat, "tileset header tag count reads %d, expected %d", h.TagCount, tilesetTagCount)
	}
	return nil
}

func newTilesetPaletteHeader() tilesetPaletteHeader {
	return tilesetPaletteHeader{
		PPAL:     NewPaletteHeader().Overall,
		Head:     SectionHeader{TagHead, 4},
		TagCount: 1,
	}
}

func (h tilesetPaletteHeader) validate() error {
	if h != newTilesetPaletteHeader() {
		return errors.Wrapf(ErrFormat, "tileset palette header %+v does not match %+v", h, newTilesetPaletteHeader())
	}
	return nil
}

// pbmpLength is the length recorded in the signature section.
func pbmpLength(pixelHeight uint32) uint32 {
	return uint32(len(TagTileset)+tilesetHeaderSize+tilesetPaletteHeaderSize) +
		uint32(len(TagData)) + paletteDataSize +
		uint32(len(TagData)) + tilePixelLength(pixelHeight) - 16
}

func tilePixelLength(pixelHeight uint32) uint32 { return TileSize * pixelHeight }

// PeekIsCustomTileset reports whether r starts with the PBMP signature
// without consuming it.
func PeekIsCustomTileset(r *bufio.Reader) bool {
	b, err := r.Peek(len(TagTileset))
	if err != nil {
		return false
	}
	return archive.Tag(b) == TagTileset
}

// ReadTileset reads either a custom or a standard bitmap tileset.
func ReadTileset(r io.Reader) (*bitmap.File, error) {
	br := bufio.NewReader(r)
	if PeekIsCustomTileset(br) {
		return ReadCustomTileset(br)
	}

	f, err := bitmap.ReadIndexed(br)
	if err != nil {
		return nil, errors.WithMessage(err, "reading tileset as a standard bitmap")
	}
	if err := ValidateTileset(f); err != nil {
		return nil, err
	}
	return f, nil
}

// ReadCustomTileset reads the PBMP layout into a top-down 8-bit bitmap.
func ReadCustomTileset(r io.Reader) (*bitmap.File, error) {
	var signature SectionHeader
	if err := read(r, &signature, "tileset signature"); err != nil {
		return nil, err
	}
	if err := signature.Validate(TagTileset); err != nil {
		return nil, err
	}
	if signature.Length == 0 {
		return nil, errors.Wrap(ErrFormat, "tileset file length reads 0")
	}

	var h TilesetHeader
	if err := read(r, &h, "tileset header"); err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}

	var ppal tilesetPaletteHeader
	if err := read(r, &ppal, "tileset palette header"); err != nil {
		return nil, err
	}
	if err := ppal.validate(); err != nil {
		return nil, err
	}

	var paletteHeader SectionHeader
	if err := read(r, &paletteHeader, "tileset palette header"); err != nil {
		return nil, err
	}
	if err := verifyDataSection(paletteHeader, paletteDataSize); err != nil {
		return nil, err
	}
	palette, err := readPalette(r)
	if err != nil {
		return nil, err
	}

	var pixelHeader SectionHeader
	if err := read(r, &pixelHeader, "tileset pixel header"); err != nil {
		return nil, err
	}
	if err := verifyDataSection(pixelHeader, tilePixelLength(h.PixelHeight)); err != nil {
		return nil, err
	}
	pixels, err := bitmap.ReadFull(r, int(pixelHeader.Length))
	if err != nil {
		return nil, unexpected(err, "tileset pixels")
	}

	f, err := bitmap.CreateDefaultIndexed(tilesetBitDepth, TileSize, -int32(h.PixelHeight))
	if err != nil {
		return nil, err
	}
	f.Palette = palette
	f.Pixels = pixels
	return f, nil
}

func verifyDataSection(h SectionHeader, length uint32) error {
	if err := h.Validate(TagData); err != nil {
		return err
	}
	if h.Length != length {
		return errors.Wrapf(ErrFormat, "data section length reads %d, expected %d", h.Length, length)
	}
	return nil
}

// ValidateTileset checks that f is an 8-bit bitmap, TileSize pixels wide and
// a whole number of tiles high.
func ValidateTileset(f *bitmap.File) error {
	h := f.ImageHeader
	if h.BitCount != tilesetBitDepth {
		return errors.Wrapf(ErrFormat, "tileset bit depth reads %d, expected %d", h.BitCount, tilesetBitDepth)
	}
	if h.Width != TileSize {
		return errors.Wrapf(ErrFormat, "tileset pixel width reads %d, expected %d", h.Width, TileSize)
	}
	if h.Height%TileSize != 0 {
		return errors.Wrapf(ErrFormat, "tileset pixel height reads %d, it must be a multiple of %d", h.Height, TileSize)
	}
	return nil
}

// WriteCustomTileset writes f in the PBMP layout. Bottom-up bitmaps are
// flipped on the way out; f is not modified.
func WriteCustomTileset(w io.Writer, f *bitmap.File) error {
	if err := ValidateTileset(f); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}

	height := uint32(f.ImageHeader.AbsHeight())
	pixels := f.Pixels
	if f.ImageHeader.Height > 0 {
		pixels = flipRows(pixels, f.ImageHeader.Pitch())
	}

	bw := bufio.NewWriter(w)
	headers := []interface{}{
		SectionHeader{TagTileset, pbmpLength(height)},
		NewTilesetHeader(height / TileSize),
		newTilesetPaletteHeader(),
		SectionHeader{TagData, paletteDataSize},
	}
	for _, v := range headers {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := writePalette(bw, f.Palette); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, SectionHeader{TagData, tilePixelLength(height)}); err != nil {
		return err
	}
	if _, err := bw.Write(pixels); err != nil {
		return err
	}
	return bw.Flush()
}

func flipRows(pixels []byte, pitch int) []byte {
	flipped := make([]byte, len(pixels))
	rows := len(pixels) / pitch
	for row := 0; row < rows; row++ {
		copy(flipped[(rows-1-row)*pitch:], pixels[row*pitch:(row+1)*pitch])
	}
	return flipped
}
