package sprite

import "encoding/binary"

// ImageType is a bitfield describing how the engine draws an image.
type ImageType uint16

const (
	// Set for in-game graphics, clear for menu graphics.
	ImageGameGraphic ImageType = 1 << 0
	ImageShadow      ImageType = 1 << 2
	ImageTruckBed    ImageType = 1 << 6
)

func (t ImageType) GameGraphic() bool { return t&ImageGameGraphic != 0 }
func (t ImageType) Shadow() bool      { return t&ImageShadow != 0 }
func (t ImageType) TruckBed() bool    { return t&ImageTruckBed != 0 }

// ImageMeta locates one image within the master bitmap.
type ImageMeta struct {
	// ScanLineByteWidth is Width rounded up to a four byte boundary.
	ScanLineByteWidth uint32
	// PixelDataOffset is relative to the start of the master bitmap's pixels.
	PixelDataOffset uint32
	Height          uint32
	Width           uint32
	Type            ImageType
	PaletteIndex    uint16
}

var imageMetaSize = binary.Size(ImageMeta{})

// BitCount is 1 for shadows, which only use the first two palette entries,
// and 8 otherwise.
func (m ImageMeta) BitCount() uint16 {
	if m.Type.Shadow() {
		return 1
	}
	return 8
}

// ScanLineByteWidthFor is the scan line width an image of the given pixel
// width must record.
func ScanLineByteWidthFor(width uint32) uint32 { return (width + 3) &^ 3 }
