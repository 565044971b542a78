package sprite

import (
	"bufio"
	"encoding/binary"
	"github.com/32bitkid/op2/bitmap"
	"github.com/pkg/errors"
	"io"
)

// ArtFile is the sprite index (.prt): the palettes, the location of every
// image within the master bitmap, and the animations built from them.
type ArtFile struct {
	Palettes   []bitmap.Palette
	ImageMetas []ImageMeta
	Animations []Animation

	// UnknownAnimationCount is carried through unchanged.
	UnknownAnimationCount uint32
}

// animationCounts follows the image metadata and totals every animation.
type animationCounts struct {
	Animations uint32
	Frames     uint32
	Layers     uint32
	Unknown    uint32
}

func ReadArt(r io.Reader) (*ArtFile, error) {
	br := bufio.NewReader(r)
	a := &ArtFile{}

	if err := a.readPalettes(br); err != nil {
		return nil, err
	}

	metas, err := readCountedSlice[ImageMeta](br, "image metadata")
	if err != nil {
		return nil, err
	}
	a.ImageMetas = metas
	if err := a.validateImageMetas(); err != nil {
		return nil, err
	}

	if err := a.readAnimations(br); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *ArtFile) readPalettes(r io.Reader) error {
	var section SectionHeader
	if err := read(r, &section, "palette section"); err != nil {
		return err
	}
	if err := section.Validate(TagPalette); err != nil {
		return err
	}

	// The palette section length is a count of palettes.
	a.Palettes = make([]bitmap.Palette, 0, min(section.Length, maxPrealloc))
	for i := uint32(0); i < section.Length; i++ {
		var h PaletteHeader
		if err := read(r, &h, "palette header"); err != nil {
			return err
		}
		if err := h.Validate(); err != nil {
			return err
		}
		p, err := readPalette(r)
		if err != nil {
			return err
		}
		a.Palettes = append(a.Palettes, p)
	}
	return nil
}

func (a *ArtFile) readAnimations(r io.Reader) error {
	var counts animationCounts
	if err := read(r, &counts, "animation counts"); err != nil {
		return err
	}
	a.UnknownAnimationCount = counts.Unknown

	a.Animations = make([]Animation, 0, min(counts.Animations, maxPrealloc))
	for i := uint32(0); i < counts.Animations; i++ {
		animation, err := readAnimation(r)
		if err != nil {
			return err
		}
		a.Animations = append(a.Animations, animation)
	}

	if actual := a.counts(); actual != counts {
		return errors.Wrapf(ErrFormat, "animation totals %+v do not match the recorded %+v", actual, counts)
	}
	return nil
}

func (a *ArtFile) counts() animationCounts {
	c := animationCounts{
		Animations: uint32(len(a.Animations)),
		Unknown:    a.UnknownAnimationCount,
	}
	for _, animation := range a.Animations {
		c.Frames += uint32(len(animation.Frames))
		for _, f := range animation.Frames {
			c.Layers += uint32(len(f.Layers))
		}
	}
	return c
}

// Validate checks every image against its palette and every frame against
// its recorded layer count.
func (a *ArtFile) Validate() error {
	if err := a.validateImageMetas(); err != nil {
		return err
	}
	for i, animation := range a.Animations {
		for j, f := range animation.Frames {
			if err := f.validate(); err != nil {
				return errors.WithMessagef(err, "animation %d frame %d", i, j)
			}
		}
	}
	return nil
}

func (a *ArtFile) validateImageMetas() error {
	for i, m := range a.ImageMetas {
		if m.ScanLineByteWidth != ScanLineByteWidthFor(m.Width) {
			return errors.Wrapf(ErrFormat, "image %d scan line width %d must be its width %d rounded up to 4 bytes", i, m.ScanLineByteWidth, m.Width)
		}
		if int(m.PaletteIndex) >= len(a.Palettes) {
			return errors.Wrapf(ErrFormat, "image %d palette index %d is out of range of %d palettes", i, m.PaletteIndex, len(a.Palettes))
		}
	}
	return nil
}

func (a *ArtFile) VerifyImageIndexInBounds(index int) error {
	if index < 0 || index >= len(a.ImageMetas) {
		return errors.Wrapf(ErrIndexOutOfRange, "an index of %d exceeds the range of %d images", index, len(a.ImageMetas))
	}
	return nil
}

func (a *ArtFile) Write(w io.Writer) error {
	if err := a.Validate(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)

	section := SectionHeader{TagPalette, uint32(len(a.Palettes))}
	if err := binary.Write(bw, binary.LittleEndian, section); err != nil {
		return err
	}
	for _, p := range a.Palettes {
		if err := binary.Write(bw, binary.LittleEndian, NewPaletteHeader()); err != nil {
			return err
		}
		if err := writePalette(bw, p); err != nil {
			return err
		}
	}

	if err := binary.Write(bw, binary.LittleEndian, uint32(len(a.ImageMetas))); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, a.ImageMetas); err != nil {
		return err
	}

	if err := binary.Write(bw, binary.LittleEndian, a.counts()); err != nil {
		return err
	}
	for _, animation := range a.Animations {
		if err := animation.write(bw); err != nil {
			return err
		}
	}
	return bw.Flush()
}
