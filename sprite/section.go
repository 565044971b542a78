// Package sprite reads and writes the Outpost 2 sprite index (.prt), cuts
// individual images out of the game's master bitmap, and converts tilesets
// between the custom PBMP layout and standard bitmaps.
package sprite

import (
	"encoding/binary"
	"github.com/32bitkid/op2/archive"
	"github.com/pkg/errors"
	"io"
)

var (
	ErrFormat          = errors.New("invalid sprite format")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Counts read from a file only preallocate up to this many elements.
const maxPrealloc = 4096

// SectionHeader starts a tagged section. Length excludes the header.
type SectionHeader struct {
	Tag    archive.Tag
	Length uint32
}

var sectionHeaderSize = binary.Size(SectionHeader{})

func (h SectionHeader) Validate(tag archive.Tag) error {
	if h.Tag != tag {
		return errors.Wrapf(ErrFormat, "the tag %q should read as %q", h.Tag, tag)
	}
	return nil
}

// TotalLength is the section length plus its tag.
func (h SectionHeader) TotalLength() uint32 { return h.Length + uint32(len(h.Tag)) }

func read(r io.Reader, v interface{}, what string) error {
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		return unexpected(err, what)
	}
	return nil
}

func unexpected(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Wrapf(ErrFormat, "reading %s: %v", what, err)
	}
	return err
}

func readSlice[T any](r io.Reader, count uint32, what string) ([]T, error) {
	s := make([]T, 0, min(count, maxPrealloc))
	for i := uint32(0); i < count; i++ {
		var v T
		if err := read(r, &v, what); err != nil {
			return nil, err
		}
		s = append(s, v)
	}
	return s, nil
}

func readCountedSlice[T any](r io.Reader, what string) ([]T, error) {
	var count uint32
	if err := read(r, &count, what+" count"); err != nil {
		return nil, err
	}
	return readSlice[T](r, count, what)
}
