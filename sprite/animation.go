package sprite

import (
	"encoding/binary"
	"github.com/pkg/errors"
	"io"
)

type Rect struct {
	X1, Y1, X2, Y2 int32
}

func (r Rect) Width() int32  { return r.X2 - r.X1 }
func (r Rect) Height() int32 { return r.Y2 - r.Y1 }

type Point32 struct {
	X, Y int32
}

type Point16 struct {
	X, Y int16
}

// Animation is a sequence of frames, each composed of layered images.
type Animation struct {
	Unknown       uint32
	SelectionRect Rect
	// PixelDisplacement points from the image origin to the tile center.
	PixelDisplacement Point32
	Unknown2          uint32

	Frames            []Frame
	UnknownContainers []UnknownContainer
}

// animationHeader is the fixed portion of an Animation on disk.
type animationHeader struct {
	Unknown           uint32
	SelectionRect     Rect
	PixelDisplacement Point32
	Unknown2          uint32
}

type UnknownContainer struct {
	Unknown1, Unknown2, Unknown3, Unknown4 uint32
}

// LayerMetadata packs a 7 bit count with a flag for two optional bytes.
type LayerMetadata uint8

const (
	layerCountMask   LayerMetadata = 0x7F
	layerOptionalBit LayerMetadata = 0x80

	// MaxLayers is the most layers a frame can record.
	MaxLayers = int(layerCountMask)
)

func NewLayerMetadata(count int, optional bool) LayerMetadata {
	m := LayerMetadata(count) & layerCountMask
	if optional {
		m |= layerOptionalBit
	}
	return m
}

func (m LayerMetadata) Count() int             { return int(m & layerCountMask) }
func (m LayerMetadata) ReadOptionalData() bool { return m&layerOptionalBit != 0 }

type Frame struct {
	LayerMetadata LayerMetadata
	// UnknownBitfield only uses the optional data flag.
	UnknownBitfield LayerMetadata

	// Optional1 and Optional2 are present when LayerMetadata asks for them,
	// Optional3 and Optional4 when UnknownBitfield does.
	Optional1, Optional2, Optional3, Optional4 uint8

	Layers []Layer
}

type Layer struct {
	BitmapIndex uint16
	Unknown     uint8
	FrameIndex  uint8
	PixelOffset Point16
}

var (
	animationHeaderSize = binary.Size(animationHeader{})
	layerSize           = binary.Size(Layer{})
)

func readAnimation(r io.Reader) (Animation, error) {
	var h animationHeader
	if err := read(r, &h, "animation"); err != nil {
		return Animation{}, err
	}
	a := Animation{
		Unknown:           h.Unknown,
		SelectionRect:     h.SelectionRect,
		PixelDisplacement: h.PixelDisplacement,
		Unknown2:          h.Unknown2,
	}

	var frameCount uint32
	if err := read(r, &frameCount, "frame count"); err != nil {
		return Animation{}, err
	}
	a.Frames = make([]Frame, 0, min(frameCount, maxPrealloc))
	for i := uint32(0); i < frameCount; i++ {
		f, err := readFrame(r)
		if err != nil {
			return Animation{}, err
		}
		a.Frames = append(a.Frames, f)
	}

	containers, err := readCountedSlice[UnknownContainer](r, "unknown container")
	if err != nil {
		return Animation{}, err
	}
	a.UnknownContainers = containers
	return a, nil
}

func readFrame(r io.Reader) (Frame, error) {
	var f Frame
	if err := read(r, &f.LayerMetadata, "layer metadata"); err != nil {
		return Frame{}, err
	}
	if err := read(r, &f.UnknownBitfield, "frame bitfield"); err != nil {
		return Frame{}, err
	}

	var optional [2]uint8
	if f.LayerMetadata.ReadOptionalData() {
		if err := read(r, &optional, "optional frame data"); err != nil {
			return Frame{}, err
		}
		f.Optional1, f.Optional2 = optional[0], optional[1]
	}
	if f.UnknownBitfield.ReadOptionalData() {
		if err := read(r, &optional, "optional frame data"); err != nil {
			return Frame{}, err
		}
		f.Optional3, f.Optional4 = optional[0], optional[1]
	}

	layers, err := readSlice[Layer](r, uint32(f.LayerMetadata.Count()), "layer")
	if err != nil {
		return Frame{}, err
	}
	f.Layers = layers
	return f, nil
}

func (a Animation) write(w io.Writer) error {
	h := animationHeader{
		Unknown:           a.Unknown,
		SelectionRect:     a.SelectionRect,
		PixelDisplacement: a.PixelDisplacement,
		Unknown2:          a.Unknown2,
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(a.Frames))); err != nil {
		return err
	}
	for _, f := range a.Frames {
		if err := f.write(w); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(a.UnknownContainers))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, a.UnknownContainers)
}

func (f Frame) validate() error {
	if f.LayerMetadata.Count() != len(f.Layers) {
		return errors.Wrapf(ErrInvalidArgument, "recorded layer count %d must match the %d layers", f.LayerMetadata.Count(), len(f.Layers))
	}
	return nil
}

func (f Frame) write(w io.Writer) error {
	if err := f.validate(); err != nil {
		return err
	}

	b := []byte{byte(f.LayerMetadata), byte(f.UnknownBitfield)}
	if f.LayerMetadata.ReadOptionalData() {
		b = append(b, f.Optional1, f.Optional2)
	}
	if f.UnknownBitfield.ReadOptionalData() {
		b = append(b, f.Optional3, f.Optional4)
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, f.Layers)
}
