package sprite

import (
	"bytes"
	"encoding/binary"
	"github.com/32bitkid/op2/bitmap"
	"github.com/pkg/errors"
	"image/color"
	"io"
	"math"
)

// masterPixelOffset is where pixels start in the master bitmap, which
// always carries a full 8-bit palette.
var masterPixelOffset = int64(binary.Size(bitmap.BmpHeader{}) + binary.Size(bitmap.ImageHeader{}) + PaletteSize*binary.Size(bitmap.Color{}))

// playerColorCount is the number of leading palette entries replaced by a
// player's colors.
const playerColorCount = 24

var (
	Transparent = color.NRGBA{}
	ShadowColor = color.NRGBA{A: 127}
)

// Image is a single sprite cut out of the master bitmap. Rows are stored
// top-down.
type Image struct {
	*bitmap.File
	Meta ImageMeta
}

// Loader extracts images from the master bitmap using the locations in an
// ArtFile.
type Loader struct {
	art    *ArtFile
	master io.ReaderAt
}

func NewLoader(master io.ReaderAt, art *ArtFile) *Loader {
	return &Loader{art: art, master: master}
}

func (l *Loader) Image(index int) (*Image, error) {
	if err := l.art.VerifyImageIndexInBounds(index); err != nil {
		return nil, err
	}
	meta := l.art.ImageMetas[index]
	if int(meta.PaletteIndex) >= len(l.art.Palettes) {
		return nil, errors.Wrapf(ErrFormat, "image %d palette index %d is out of range of %d palettes", index, meta.PaletteIndex, len(l.art.Palettes))
	}
	if meta.Height > math.MaxInt32 || meta.Width > math.MaxInt32 {
		return nil, errors.Wrapf(ErrFormat, "image %d is too large (%dx%d) for a bitmap", index, meta.Width, meta.Height)
	}

	bitCount := meta.BitCount()
	width, height := int32(meta.Width), int32(meta.Height)

	// Read before allocating the image, the metadata is not trusted.
	size := bitmap.CalculatePitch(bitCount, width) * int(height)
	section := io.NewSectionReader(l.master, masterPixelOffset+int64(meta.PixelDataOffset), int64(size))
	pixels, err := bitmap.ReadFull(section, size)
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "reading pixels of image %d: %v", index, err)
	}

	// Sprites are stored in raster order, which a bitmap marks with a
	// negative height.
	f, err := bitmap.CreateDefaultIndexed(bitCount, width, -height)
	if err != nil {
		return nil, err
	}
	copy(f.Palette, l.art.Palettes[meta.PaletteIndex])
	f.Pixels = pixels

	return &Image{File: f, Meta: meta}, nil
}

// WriteImage writes image index as a standalone bitmap.
func (l *Loader) WriteImage(w io.Writer, index int) error {
	img, err := l.Image(index)
	if err != nil {
		return err
	}
	return img.File.Write(w)
}

// ImageBytes returns image index encoded as a standalone bitmap.
func (l *Loader) ImageBytes(index int) ([]byte, error) {
	var buf bytes.Buffer
	if err := l.WriteImage(&buf, index); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EnginePixel is the color the game draws at x, y. Index 0 is transparent
// and index 1 of a shadow is translucent black.
func (img *Image) EnginePixel(x, y int) (color.NRGBA, error) {
	index, err := img.PixelIndex(x, y)
	if err != nil {
		return color.NRGBA{}, err
	}
	switch {
	case index == 0:
		return Transparent, nil
	case index == 1 && img.Meta.Type.Shadow():
		return ShadowColor, nil
	}
	return opaque(img.Palette, index), nil
}

// PlayerPixel is EnginePixel with the first palette entries of game
// graphics taken from a player's palette.
func (img *Image) PlayerPixel(x, y int, player bitmap.Palette) (color.NRGBA, error) {
	index, err := img.PixelIndex(x, y)
	if err != nil {
		return color.NRGBA{}, err
	}
	if index == 0 {
		return Transparent, nil
	}
	if index < playerColorCount && index < len(player) && !img.Meta.Type.Shadow() && img.Meta.Type.GameGraphic() {
		return opaque(player, index), nil
	}
	return opaque(img.Palette, index), nil
}

func opaque(p bitmap.Palette, index int) color.NRGBA {
	if index >= len(p) {
		return color.NRGBA{A: 0xFF}
	}
	c := p[index]
	return color.NRGBA{R: c.Red, G: c.Green, B: c.Blue, A: 0xFF}
}
