package sprite

import (
	"bytes"
	"encoding/binary"
	"github.com/32bitkid/op2/bitmap"
	"github.com/pkg/errors"
	"reflect"
	"testing"
)

func TestStructSizes(t *testing.T) {
	cases := []struct {
		name     string
		expected int
		actual   int
	}{
		{"section header", 8, sectionHeaderSize},
		{"palette header", 28, paletteHeaderSize},
		{"image meta", 20, imageMetaSize},
		{"animation header", 32, animationHeaderSize},
		{"layer", 8, layerSize},
		{"unknown container", 16, binary.Size(UnknownContainer{})},
		{"tileset header", 28, tilesetHeaderSize},
		{"tileset palette header", 20, tilesetPaletteHeaderSize},
	}
	for _, c := range cases {
		if c.actual != c.expected {
			t.Fatalf("%s: expected(%d) != actual(%d)", c.name, c.expected, c.actual)
		}
	}
}

func TestNewPaletteHeader(t *testing.T) {
	h := NewPaletteHeader()
	if h.Overall.Length != 1048 {
		t.Fatalf("expected(1048) != actual(%d)", h.Overall.Length)
	}
	if err := h.Validate(); err != nil {
		t.Fatal(err)
	}

	h.Head.Length = 8
	if err := h.Validate(); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestLayerMetadata(t *testing.T) {
	m := NewLayerMetadata(5, true)
	if m != 0x85 {
		t.Fatalf("expected(0x85) != actual(0x%02X)", uint8(m))
	}
	if m.Count() != 5 || !m.ReadOptionalData() {
		t.Fatalf("unexpected fields %d %v", m.Count(), m.ReadOptionalData())
	}
	if m := NewLayerMetadata(MaxLayers, false); m.Count() != MaxLayers || m.ReadOptionalData() {
		t.Fatalf("unexpected fields %d %v", m.Count(), m.ReadOptionalData())
	}
}

func TestImageType(t *testing.T) {
	meta := ImageMeta{Type: ImageGameGraphic | ImageTruckBed}
	if !meta.Type.GameGraphic() || meta.Type.Shadow() || !meta.Type.TruckBed() {
		t.Fatalf("unexpected flags 0x%04X", uint16(meta.Type))
	}
	if meta.BitCount() != 8 {
		t.Fatalf("expected(8) != actual(%d)", meta.BitCount())
	}
	meta.Type |= ImageShadow
	if meta.BitCount() != 1 {
		t.Fatalf("expected(1) != actual(%d)", meta.BitCount())
	}
}

func samplePalette(c bitmap.Color) bitmap.Palette {
	p := make(bitmap.Palette, PaletteSize)
	p[1] = c
	return p
}

func sampleArt() *ArtFile {
	return &ArtFile{
		Palettes: []bitmap.Palette{
			samplePalette(bitmap.Color{Red: 0x10, Green: 0x20, Blue: 0x30}),
			samplePalette(bitmap.White),
		},
		ImageMetas: []ImageMeta{
			{ScanLineByteWidth: 4, PixelDataOffset: 0, Height: 2, Width: 3, Type: ImageGameGraphic},
			{ScanLineByteWidth: 8, PixelDataOffset: 8, Height: 1, Width: 5, Type: ImageShadow, PaletteIndex: 1},
		},
		Animations: []Animation{{
			Unknown:           1,
			SelectionRect:     Rect{-8, -8, 8, 8},
			PixelDisplacement: Point32{3, -4},
			Unknown2:          0x3C,
			Frames: []Frame{
				{
					LayerMetadata: NewLayerMetadata(1, true),
					Optional1:     1,
					Optional2:     2,
					Layers:        []Layer{{BitmapIndex: 0, PixelOffset: Point16{-1, 2}}},
				},
				{
					LayerMetadata:   NewLayerMetadata(2, false),
					UnknownBitfield: NewLayerMetadata(0, true),
					Optional3:       3,
					Optional4:       4,
					Layers: []Layer{
						{BitmapIndex: 1, Unknown: 9, FrameIndex: 1},
						{BitmapIndex: 0, FrameIndex: 1, PixelOffset: Point16{5, 5}},
					},
				},
			},
			UnknownContainers: []UnknownContainer{{1, 2, 3, 4}},
		}},
		UnknownAnimationCount: 7,
	}
}

func writeArt(t *testing.T, a *ArtFile) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := a.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// Offsets into the encoding of sampleArt.
var (
	firstColorOffset = sectionHeaderSize + paletteHeaderSize
	metaOffset       = sectionHeaderSize + 2*(paletteHeaderSize+int(paletteDataSize)) + 4
	countsOffset     = metaOffset + 2*imageMetaSize
)

func TestArtRoundTrip(t *testing.T) {
	expected := sampleArt()
	b := writeArt(t, expected)

	actual, err := ReadArt(bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected(%+v) != actual(%+v)", expected, actual)
	}
}

func TestArtLayout(t *testing.T) {
	b := writeArt(t, sampleArt())

	if tag := string(b[:4]); tag != "CPAL" {
		t.Fatalf("expected(CPAL) != actual(%s)", tag)
	}
	if count := binary.LittleEndian.Uint32(b[4:]); count != 2 {
		t.Fatalf("expected(2) != actual(%d)", count)
	}

	// Palette entries are stored red first.
	color := b[firstColorOffset+4 : firstColorOffset+8]
	if !bytes.Equal(color, []byte{0x10, 0x20, 0x30, 0}) {
		t.Fatalf("unexpected color bytes % X", color)
	}

	var counts animationCounts
	if err := binary.Read(bytes.NewReader(b[countsOffset:]), binary.LittleEndian, &counts); err != nil {
		t.Fatal(err)
	}
	if expected := (animationCounts{Animations: 1, Frames: 2, Layers: 3, Unknown: 7}); counts != expected {
		t.Fatalf("expected(%+v) != actual(%+v)", expected, counts)
	}
}

func TestReadArtRejects(t *testing.T) {
	valid := writeArt(t, sampleArt())

	cases := map[string]func([]byte) []byte{
		"section tag":       func(b []byte) []byte { b[0] = 'X'; return b },
		"palette header":    func(b []byte) []byte { b[sectionHeaderSize+4]++; return b },
		"palette data size": func(b []byte) []byte { b[sectionHeaderSize+paletteHeaderSize-4]++; return b },
		"scan line width":   func(b []byte) []byte { b[metaOffset] = 5; return b },
		"palette index":     func(b []byte) []byte { b[metaOffset+18] = 2; return b },
		"frame total":       func(b []byte) []byte { b[countsOffset+4] = 9; return b },
		"layer total":       func(b []byte) []byte { b[countsOffset+8] = 9; return b },
		"unknown total":     func(b []byte) []byte { b[countsOffset+12] = 9; return b },
		"truncated":         func(b []byte) []byte { return b[:len(b)-1] },
		"empty":             func(b []byte) []byte { return nil },
	}
	for name, mutate := range cases {
		b := mutate(append([]byte(nil), valid...))
		if _, err := ReadArt(bytes.NewReader(b)); !errors.Is(err, ErrFormat) {
			t.Fatalf("%s: expected ErrFormat, got %v", name, err)
		}
	}
}

func TestWriteArtRejects(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(a *ArtFile)
		expected error
	}{
		{"layer count", func(a *ArtFile) { a.Animations[0].Frames[0].Layers = nil }, ErrInvalidArgument},
		{"scan line width", func(a *ArtFile) { a.ImageMetas[0].ScanLineByteWidth = 3 }, ErrFormat},
		{"palette index", func(a *ArtFile) { a.Palettes = a.Palettes[:1] }, ErrFormat},
		{"palette size", func(a *ArtFile) { a.Palettes[0] = append(a.Palettes[0], bitmap.Black) }, ErrInvalidArgument},
	}
	for _, c := range cases {
		a := sampleArt()
		c.mutate(a)
		var buf bytes.Buffer
		if err := a.Write(&buf); !errors.Is(err, c.expected) {
			t.Fatalf("%s: expected %v, got %v", c.name, c.expected, err)
		}
	}
}

func TestWriteArtPadsPalettes(t *testing.T) {
	a := sampleArt()
	a.Palettes[1] = bitmap.Palette{bitmap.Black, bitmap.White}

	actual, err := ReadArt(bytes.NewReader(writeArt(t, a)))
	if err != nil {
		t.Fatal(err)
	}
	if len(actual.Palettes[1]) != PaletteSize {
		t.Fatalf("expected(%d) != actual(%d)", PaletteSize, len(actual.Palettes[1]))
	}
	if actual.Palettes[1][1] != bitmap.White || actual.Palettes[1][2] != bitmap.Black {
		t.Fatalf("unexpected palette %v", actual.Palettes[1][:3])
	}
}

func TestVerifyImageIndexInBounds(t *testing.T) {
	a := sampleArt()
	for _, index := range []int{0, 1} {
		if err := a.VerifyImageIndexInBounds(index); err != nil {
			t.Fatalf("%d: %v", index, err)
		}
	}
	for _, index := range []int{-1, 2} {
		if err := a.VerifyImageIndexInBounds(index); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("%d: expected ErrIndexOutOfRange, got %v", index, err)
		}
	}
}
