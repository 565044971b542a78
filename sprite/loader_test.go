package sprite

import (
	"bytes"
	"github.com/32bitkid/op2/bitmap"
	"github.com/pkg/errors"
	"image/color"
	"testing"
)

// sampleMaster builds a master bitmap holding the images of sampleArt: a
// 3x2 8-bit image at offset 0 and a 5x1 shadow at offset 8.
func sampleMaster(t *testing.T) *bytes.Reader {
	t.Helper()
	pixels := make([]byte, 32)
	copy(pixels, []byte{0, 1, 2, 0, 5, 23, 30, 0})
	pixels[8] = 0x40

	var buf bytes.Buffer
	if err := bitmap.WriteIndexed(&buf, 8, 8, -4, nil, pixels); err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestMasterPixelOffset(t *testing.T) {
	if masterPixelOffset != 1078 {
		t.Fatalf("expected(1078) != actual(%d)", masterPixelOffset)
	}
}

func TestLoaderImage(t *testing.T) {
	l := NewLoader(sampleMaster(t), sampleArt())

	img, err := l.Image(0)
	if err != nil {
		t.Fatal(err)
	}
	if h := img.ImageHeader; h.Width != 3 || h.Height != -2 || h.BitCount != 8 {
		t.Fatalf("unexpected header %+v", h)
	}
	expected := [][]int{{0, 1, 2}, {5, 23, 30}}
	for y, row := range expected {
		for x, index := range row {
			actual, err := img.PixelIndex(x, y)
			if err != nil {
				t.Fatal(err)
			}
			if actual != index {
				t.Fatalf("(%d,%d): expected(%d) != actual(%d)", x, y, index, actual)
			}
		}
	}

	shadow, err := l.Image(1)
	if err != nil {
		t.Fatal(err)
	}
	if h := shadow.ImageHeader; h.Width != 5 || h.Height != -1 || h.BitCount != 1 {
		t.Fatalf("unexpected header %+v", h)
	}
	if len(shadow.Palette) != 2 || shadow.Palette[1] != bitmap.White {
		t.Fatalf("unexpected palette %v", shadow.Palette)
	}
	for x, index := range []int{0, 1, 0, 0, 0} {
		if actual, _ := shadow.PixelIndex(x, 0); actual != index {
			t.Fatalf("(%d,0): expected(%d) != actual(%d)", x, index, actual)
		}
	}
}

func TestLoaderImageRejects(t *testing.T) {
	l := NewLoader(sampleMaster(t), sampleArt())
	for _, index := range []int{-1, 2} {
		if _, err := l.Image(index); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("%d: expected ErrIndexOutOfRange, got %v", index, err)
		}
	}

	a := sampleArt()
	a.ImageMetas[0].PixelDataOffset = 1000
	if _, err := NewLoader(sampleMaster(t), a).Image(0); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}

	a = sampleArt()
	a.ImageMetas[0].Height = 1 << 31
	if _, err := NewLoader(sampleMaster(t), a).Image(0); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestLoaderImageBytes(t *testing.T) {
	l := NewLoader(sampleMaster(t), sampleArt())
	b, err := l.ImageBytes(0)
	if err != nil {
		t.Fatal(err)
	}

	f, err := bitmap.ReadIndexed(bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	if f.ImageHeader.Height != -2 {
		t.Fatalf("expected(-2) != actual(%d)", f.ImageHeader.Height)
	}
	if !bytes.Equal(f.Pixels, []byte{0, 1, 2, 0, 5, 23, 30, 0}) {
		t.Fatalf("unexpected pixels %v", f.Pixels)
	}
	if f.Palette[1] != (bitmap.Color{Red: 0x10, Green: 0x20, Blue: 0x30}) {
		t.Fatalf("unexpected color %+v", f.Palette[1])
	}
}

func TestEnginePixel(t *testing.T) {
	l := NewLoader(sampleMaster(t), sampleArt())
	img, _ := l.Image(0)
	shadow, _ := l.Image(1)

	cases := []struct {
		name     string
		img      *Image
		x, y     int
		expected color.NRGBA
	}{
		{"transparent", img, 0, 0, Transparent},
		{"palette", img, 1, 0, color.NRGBA{0x10, 0x20, 0x30, 0xFF}},
		{"unset palette entry", img, 2, 1, color.NRGBA{A: 0xFF}},
		{"shadow", shadow, 1, 0, ShadowColor},
		{"shadow transparent", shadow, 0, 0, Transparent},
	}
	for _, c := range cases {
		actual, err := c.img.EnginePixel(c.x, c.y)
		if err != nil {
			t.Fatal(err)
		}
		if actual != c.expected {
			t.Fatalf("%s: expected(%v) != actual(%v)", c.name, c.expected, actual)
		}
	}

	if _, err := img.EnginePixel(3, 0); !errors.Is(err, bitmap.ErrIndexOutOfRange) {
		t.Fatalf("expected bitmap.ErrIndexOutOfRange, got %v", err)
	}
}

func TestPlayerPixel(t *testing.T) {
	player := make(bitmap.Palette, playerColorCount)
	player[1] = bitmap.Color{Red: 0xAA}
	player[23] = bitmap.Color{Green: 0xBB}

	l := NewLoader(sampleMaster(t), sampleArt())
	img, _ := l.Image(0)
	shadow, _ := l.Image(1)

	cases := []struct {
		name     string
		img      *Image
		x, y     int
		expected color.NRGBA
	}{
		{"transparent", img, 0, 0, Transparent},
		{"player color", img, 1, 0, color.NRGBA{0xAA, 0, 0, 0xFF}},
		{"last player color", img, 1, 1, color.NRGBA{0, 0xBB, 0, 0xFF}},
		{"beyond player colors", img, 2, 1, color.NRGBA{A: 0xFF}},
		{"shadow keeps palette", shadow, 1, 0, color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF}},
	}
	for _, c := range cases {
		actual, err := c.img.PlayerPixel(c.x, c.y, player)
		if err != nil {
			t.Fatal(err)
		}
		if actual != c.expected {
			t.Fatalf("%s: expected(%v) != actual(%v)", c.name, c.expected, actual)
		}
	}

	// Menu graphics never take player colors.
	img.Meta.Type = 0
	if actual, _ := img.PlayerPixel(1, 0, player); actual != (color.NRGBA{0x10, 0x20, 0x30, 0xFF}) {
		t.Fatalf("unexpected color %v", actual)
	}
}
