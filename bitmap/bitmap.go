// Package bitmap reads and writes the indexed Windows bitmaps Outpost 2
// uses for tilesets and interface art, and converts them to and from
// image.Paletted.
package bitmap

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"github.com/pkg/errors"
	"image"
	"image/color"
	"io"
)

var (
	ErrFormat          = errors.New("invalid bitmap format")
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Sizes read from a header only preallocate up to this many bytes.
const maxPrealloc = 1 << 20

// File is an indexed bitmap. Pixels holds every row including its padding,
// in file order.
type File struct {
	BmpHeader   BmpHeader
	ImageHeader ImageHeader
	Palette     Palette
	Pixels      []byte
}

// CreateDefaultIndexed returns a blank bitmap with a full, black palette.
func CreateDefaultIndexed(bitCount uint16, width, height int32) (*File, error) {
	imageHeader, err := NewImageHeader(width, height, bitCount)
	if err != nil {
		return nil, err
	}
	paletteSize, err := imageHeader.MaxIndexedPaletteSize()
	if err != nil {
		return nil, err
	}

	f := &File{
		ImageHeader: imageHeader,
		Palette:     make(Palette, paletteSize),
		Pixels:      make([]byte, imageHeader.Pitch()*imageHeader.AbsHeight()),
	}
	pixelOffset := bmpHeaderSize + imageHeaderSize + paletteSize*colorSize
	f.BmpHeader = NewBmpHeader(uint32(pixelOffset+len(f.Pixels)), uint32(pixelOffset))
	return f, nil
}

func ReadIndexed(r io.Reader) (*File, error) {
	br := bufio.NewReader(r)
	f := &File{}

	if err := binary.Read(br, binary.LittleEndian, &f.BmpHeader); err != nil {
		return nil, errors.Wrapf(ErrFormat, "reading bmp header: %v", err)
	}
	if err := f.BmpHeader.VerifyFileSignature(); err != nil {
		return nil, err
	}

	if err := binary.Read(br, binary.LittleEndian, &f.ImageHeader); err != nil {
		return nil, errors.Wrapf(ErrFormat, "reading image header: %v", err)
	}
	if err := f.ImageHeader.Validate(); err != nil {
		return nil, err
	}
	if err := verifyIndexed(f.ImageHeader.BitCount); err != nil {
		return nil, err
	}

	paletteSize := int(f.ImageHeader.UsedColorMapEntries)
	if paletteSize == 0 {
		paletteSize, _ = f.ImageHeader.MaxIndexedPaletteSize()
	}
	f.Palette = make(Palette, paletteSize)
	if err := binary.Read(br, binary.LittleEndian, f.Palette); err != nil {
		return nil, errors.Wrapf(ErrFormat, "reading palette: %v", err)
	}

	consumed := bmpHeaderSize + imageHeaderSize + paletteSize*colorSize
	if int64(f.BmpHeader.PixelOffset) < int64(consumed) || f.BmpHeader.Size < f.BmpHeader.PixelOffset {
		return nil, errors.Wrapf(ErrFormat, "pixel offset %d and file size %d are inconsistent", f.BmpHeader.PixelOffset, f.BmpHeader.Size)
	}
	if _, err := io.CopyN(io.Discard, br, int64(f.BmpHeader.PixelOffset)-int64(consumed)); err != nil {
		return nil, errors.Wrapf(ErrFormat, "seeking to pixels: %v", err)
	}

	pixelsSize := int(f.BmpHeader.Size - f.BmpHeader.PixelOffset)
	if err := verifyPixelSize(f.ImageHeader.BitCount, f.ImageHeader.Width, f.ImageHeader.Height, pixelsSize); err != nil {
		return nil, err
	}
	pixels, err := ReadFull(br, pixelsSize)
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "reading pixels: %v", err)
	}
	f.Pixels = pixels

	return f, nil
}

// ReadFull reads exactly n bytes. The buffer grows as data arrives, so a
// size taken from an untrusted header costs nothing when the stream is
// short.
func ReadFull(r io.Reader, n int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(min(n, maxPrealloc))
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteIndexed writes an uncompressed indexed bitmap. A short palette is
// padded with black to the full size for bitCount. Row padding bytes are
// written as zero.
func WriteIndexed(w io.Writer, bitCount uint16, width, height int32, palette Palette, pixels []byte) error {
	if err := verifyIndexed(bitCount); err != nil {
		return err
	}
	maxSize, err := CalcMaxIndexedPaletteSize(bitCount)
	if err != nil {
		return err
	}
	if len(palette) > maxSize {
		return errors.Wrapf(ErrFormat, "%d palette entries exceed the %d possible for a bit count of %d", len(palette), maxSize, bitCount)
	}
	if err := verifyPixelSize(bitCount, width, height, len(pixels)); err != nil {
		return err
	}

	imageHeader, err := NewImageHeader(width, height, bitCount)
	if err != nil {
		return err
	}

	full := make(Palette, maxSize)
	copy(full, palette)

	pixelOffset := bmpHeaderSize + imageHeaderSize + maxSize*colorSize
	bmpHeader := NewBmpHeader(uint32(pixelOffset+len(pixels)), uint32(pixelOffset))

	bw := bufio.NewWriter(w)
	for _, v := range []interface{}{bmpHeader, imageHeader, full} {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	pitch := imageHeader.Pitch()
	rowWidth := imageHeader.PixelByteWidth()
	padding := make([]byte, pitch-rowWidth)
	for row := 0; row < len(pixels); row += pitch {
		if _, err := bw.Write(pixels[row : row+rowWidth]); err != nil {
			return err
		}
		if _, err := bw.Write(padding); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (f *File) Write(w io.Writer) error {
	if f.ImageHeader.Compression != CompressionNone {
		return errors.Wrapf(ErrFormat, "unable to write %v bitmaps", f.ImageHeader.Compression)
	}
	if err := f.Validate(); err != nil {
		return err
	}
	return WriteIndexed(w, f.ImageHeader.BitCount, f.ImageHeader.Width, f.ImageHeader.Height, f.Palette, f.Pixels)
}

func (f *File) Validate() error {
	if err := f.BmpHeader.VerifyFileSignature(); err != nil {
		return err
	}
	if err := f.ImageHeader.Validate(); err != nil {
		return err
	}
	if err := verifyIndexed(f.ImageHeader.BitCount); err != nil {
		return err
	}
	if maxSize, _ := f.ImageHeader.MaxIndexedPaletteSize(); len(f.Palette) > maxSize {
		return errors.Wrapf(ErrFormat, "too many colors (%d) in the indexed palette", len(f.Palette))
	}
	return verifyPixelSize(f.ImageHeader.BitCount, f.ImageHeader.Width, f.ImageHeader.Height, len(f.Pixels))
}

// Image unpacks the pixels into a top-down image.Paletted.
func (f *File) Image() *image.Paletted {
	h := f.ImageHeader
	width, height := int(h.Width), h.AbsHeight()
	bits := int(h.BitCount)

	// Every index a pixel can hold needs an entry.
	pal := f.Palette.ColorPalette()
	for len(pal) < 1<<bits {
		pal = append(pal, Black)
	}
	img := image.NewPaletted(image.Rect(0, 0, width, height), pal)

	for y := 0; y < height; y++ {
		src := f.scanLine(y)
		for x := 0; x < width; x++ {
			img.Pix[y*img.Stride+x] = unpack(src, x, bits)
		}
	}
	return img
}

// PixelIndex returns the palette index of the pixel at x, y, counting rows
// from the top of the image.
func (f *File) PixelIndex(x, y int) (int, error) {
	h := f.ImageHeader
	if x < 0 || x >= int(h.Width) || y < 0 || y >= h.AbsHeight() {
		return 0, errors.Wrapf(ErrIndexOutOfRange, "pixel (%d, %d) is outside a %dx%d image", x, y, h.Width, h.AbsHeight())
	}
	return int(unpack(f.scanLine(y), x, int(h.BitCount))), nil
}

// scanLine returns row y counted from the top, whatever the storage order.
func (f *File) scanLine(y int) []byte {
	h := f.ImageHeader
	row := y
	if h.Height > 0 {
		row = h.AbsHeight() - 1 - y
	}
	pitch := h.Pitch()
	return f.Pixels[row*pitch : (row+1)*pitch]
}

func unpack(row []byte, x, bits int) byte {
	bit := x * bits
	shift := 8 - bits - bit%8
	return row[bit/8] >> shift & byte(1<<bits-1)
}

// FromImage builds an 8-bit bitmap from img, mapping each pixel to its
// nearest palette entry.
func FromImage(img image.Image, palette Palette) (*File, error) {
	if len(palette) == 0 || len(palette) > 256 {
		return nil, errors.Wrapf(ErrFormat, "a palette of %d colors cannot index an 8-bit bitmap", len(palette))
	}

	bounds := img.Bounds()
	f, err := CreateDefaultIndexed(8, int32(bounds.Dx()), int32(bounds.Dy()))
	if err != nil {
		return nil, err
	}
	copy(f.Palette, palette)

	nearest := make(map[color.RGBA64]byte)
	pitch := f.ImageHeader.Pitch()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := bounds.Dy() - 1 - (y - bounds.Min.Y)
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.RGBA64Model.Convert(img.At(x, y)).(color.RGBA64)
			index, ok := nearest[c]
			if !ok {
				index = byte(palette.NearestIndex(c))
				nearest[c] = index
			}
			f.Pixels[row*pitch+x-bounds.Min.X] = index
		}
	}
	return f, nil
}

func verifyIndexed(bitCount uint16) error {
	if !IsIndexed(bitCount) {
		return errors.Wrapf(ErrFormat, "unable to read or write a bitmap with a bit count of %d, it must be 8 or less", bitCount)
	}
	return nil
}

func verifyPixelSize(bitCount uint16, width, height int32, size int) error {
	abs := int(height)
	if abs < 0 {
		abs = -abs
	}
	if expected := CalculatePitch(bitCount, width) * abs; size != expected {
		return errors.Wrapf(ErrFormat, "%d bytes of pixels do not match the %d expected for the image dimensions", size, expected)
	}
	return nil
}
