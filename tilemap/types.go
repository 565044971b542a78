package tilemap

import "encoding/binary"

const (
	// MinVersionTag is the oldest version tag the game loads.
	MinVersionTag uint32 = 0x1010
	// CurrentVersionTag is the tag of the maps shipped with the game.
	CurrentVersionTag uint32 = 0x1011
)

// Header opens both map and saved game files.
type Header struct {
	VersionTag     uint32
	SavedGame      int32
	LgWidthInTiles uint32
	HeightInTiles  uint32
	TilesetCount   uint32
}

func (h Header) WidthInTiles() uint32 { return 1 << h.LgWidthInTiles }

func (h Header) TileCount() uint64 { return uint64(h.HeightInTiles) << h.LgWidthInTiles }

// Rect is the visible area of a map. Maps that wrap around the world use
// X1 = -1 and X2 = math.MaxInt32.
type Rect struct {
	X1, Y1, X2, Y2 int32
}

func (r Rect) Width() int32  { return r.X2 - r.X1 }
func (r Rect) Height() int32 { return r.Y2 - r.Y1 }

// TilesetSource names a tile set bitmap (well00XX) and how many tiles it holds.
type TilesetSource struct {
	Filename string
	NumTiles uint32
}

const maxTilesetFilenameLength = 8

func (s TilesetSource) IsEmpty() bool { return s.NumTiles == 0 || s.Filename == "" }

// TileMapping holds the graphics shared by every cell with the same mapping index.
type TileMapping struct {
	TilesetIndex     uint16
	TileGraphicIndex uint16
	AnimationCount   uint16
	AnimationDelay   uint16
}

type Range16 struct {
	Start, End uint16
}

// TerrainType describes the tiles of one terrain over a range of tile
// mappings. Unknown and Flat fields are preserved as read.
type TerrainType struct {
	TileMappingRange          Range16
	BulldozedTileMappingIndex uint16
	RubbleTileMappingIndex    uint16
	TubeTileMappings          [6]uint16

	// Lava, microbe, full strength, damaged and heavily damaged walls.
	WallTileMappingIndexes [5][16]uint16

	LavaTileMappingIndex     uint16
	Flat1, Flat2, Flat3      uint16
	TubeTileMappingIndexes   [16]uint16
	ScorchedTileMappingIndex uint16
	ScorchedRange            [3]Range16
	Unknown                  [15]int16
}

// TileGroup is a reusable block of tile mappings, like a large rock or a
// cliff, listed row by row.
type TileGroup struct {
	Name           string
	Width          uint32
	Height         uint32
	MappingIndices []uint32
}

var (
	headerSize      = binary.Size(Header{})
	tileMappingSize = binary.Size(TileMapping{})
	terrainTypeSize = binary.Size(TerrainType{})
)
