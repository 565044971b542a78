// Package tilemap reads and writes Outpost 2 maps (.map) and the map
// portion of saved games (.op2).
//
// Tiles are stored in 32 cell wide columns: all rows of the first 32
// columns come first, then the next 32 columns, and so on.
package tilemap

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"github.com/pkg/errors"
	"io"
	"math/bits"
)

var (
	ErrFormat          = errors.New("invalid map format")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrInvalidArgument = errors.New("invalid argument")
)

var tilesetMarker = [10]byte{'T', 'I', 'L', 'E', ' ', 'S', 'E', 'T', 0x1A, 0}

// savedGamePreamble is skipped before the map portion of a saved game.
const savedGamePreamble = 0x1E025

const (
	maxTileCount = 1 << 24

	// Tiles are grouped in columns this wide.
	columnWidth = 32

	// Counts read from a file only preallocate up to this many elements.
	maxPrealloc = 4096
)

type Map struct {
	VersionTag uint32
	SavedGame  bool

	// Width is a power of two.
	Width  uint32
	Height uint32

	Tiles          []Tile
	ClipRect       Rect
	TilesetSources []TilesetSource
	TileMappings   []TileMapping
	TerrainTypes   []TerrainType

	// TileGroups are only present in map files.
	TileGroups []TileGroup

	// Units are only present in saved games.
	Units *SavedGameUnits
}

// New returns an empty map of the given size with every tile zeroed. The
// width must be a power of two of at least 32.
func New(width, height uint32) (*Map, error) {
	if bits.OnesCount32(width) != 1 || width < columnWidth {
		return nil, errors.Wrapf(ErrInvalidArgument, "map width %d is not a power of two of at least %d", width, columnWidth)
	}
	if uint64(width)*uint64(height) > maxTileCount {
		return nil, errors.Wrapf(ErrInvalidArgument, "map of %dx%d tiles is too large", width, height)
	}
	return &Map{
		VersionTag: CurrentVersionTag,
		Width:      width,
		Height:     height,
		Tiles:      make([]Tile, width*height),
	}, nil
}

// TileIndex maps a cell to its position in Tiles.
func (m *Map) TileIndex(x, y int) (int, error) {
	if x < 0 || y < 0 || x >= int(m.Width) || y >= int(m.Height) {
		return 0, errors.Wrapf(ErrIndexOutOfRange, "cell (%d,%d) is outside the %dx%d map", x, y, m.Width, m.Height)
	}
	i := ((x>>5)*int(m.Height)+y)*columnWidth + x&(columnWidth-1)
	if i >= len(m.Tiles) {
		return 0, errors.Wrapf(ErrIndexOutOfRange, "cell (%d,%d) is tile %d of %d", x, y, i, len(m.Tiles))
	}
	return i, nil
}

func (m *Map) Tile(x, y int) (Tile, error) {
	i, err := m.TileIndex(x, y)
	if err != nil {
		return 0, err
	}
	return m.Tiles[i], nil
}

func (m *Map) SetTile(x, y int, t Tile) error {
	i, err := m.TileIndex(x, y)
	if err != nil {
		return err
	}
	m.Tiles[i] = t
	return nil
}

func (m *Map) SetCellType(x, y int, c CellType) error {
	if c > CellTube5 {
		return errors.Wrapf(ErrInvalidArgument, "improper %v", c)
	}
	t, err := m.Tile(x, y)
	if err != nil {
		return err
	}
	return m.SetTile(x, y, t.WithCellType(c))
}

func (m *Map) SetMappingIndex(x, y int, index uint16) error {
	if index >= 1<<mappingIndexBits {
		return errors.Wrapf(ErrInvalidArgument, "tile mapping index %d does not fit in a tile", index)
	}
	t, err := m.Tile(x, y)
	if err != nil {
		return err
	}
	return m.SetTile(x, y, t.WithMappingIndex(index))
}

// TileMapping returns the mapping drawn at a cell.
func (m *Map) TileMapping(x, y int) (TileMapping, error) {
	t, err := m.Tile(x, y)
	if err != nil {
		return TileMapping{}, err
	}
	i := int(t.MappingIndex())
	if i >= len(m.TileMappings) {
		return TileMapping{}, errors.Wrapf(ErrIndexOutOfRange, "cell (%d,%d) uses tile mapping %d of %d", x, y, i, len(m.TileMappings))
	}
	return m.TileMappings[i], nil
}

// TrimTilesetSources drops sources without a filename or tiles.
func (m *Map) TrimTilesetSources() {
	kept := m.TilesetSources[:0]
	for _, s := range m.TilesetSources {
		if !s.IsEmpty() {
			kept = append(kept, s)
		}
	}
	m.TilesetSources = kept
}

// Read parses a map file.
func Read(r io.Reader) (*Map, error) {
	br := bufio.NewReader(r)

	m, err := readMapBeginning(br)
	if err != nil {
		return nil, err
	}
	for i := 0; i < 2; i++ {
		if err := readVersionTag(br, m.VersionTag); err != nil {
			return nil, err
		}
	}

	if m.TileGroups, err = readTileGroups(br); err != nil {
		return nil, err
	}
	return m, nil
}

// ReadSavedGame parses the map and unit table of a saved game. Data after
// the unit table is not read.
func ReadSavedGame(r io.ReadSeeker) (*Map, error) {
	if _, err := r.Seek(savedGamePreamble, io.SeekCurrent); err != nil {
		return nil, err
	}
	br := bufio.NewReader(r)

	m, err := readMapBeginning(br)
	if err != nil {
		return nil, err
	}
	if err := readVersionTag(br, m.VersionTag); err != nil {
		return nil, err
	}
	if m.Units, err = readSavedGameUnits(br); err != nil {
		return nil, unexpected(err, "saved game units")
	}
	if err := readVersionTag(br, m.VersionTag); err != nil {
		return nil, err
	}
	return m, nil
}

func readMapBeginning(r io.Reader) (*Map, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, unexpected(err, "header")
	}
	if err := checkVersionTag(h.VersionTag); err != nil {
		return nil, err
	}
	if h.LgWidthInTiles >= 32 || h.TileCount() > maxTileCount {
		return nil, errors.Wrapf(ErrFormat, "map of 2^%d by %d tiles is too large", h.LgWidthInTiles, h.HeightInTiles)
	}

	m := &Map{
		VersionTag: h.VersionTag,
		SavedGame:  h.SavedGame != 0,
		Width:      h.WidthInTiles(),
		Height:     h.HeightInTiles,
		Tiles:      make([]Tile, h.TileCount()),
	}
	if err := binary.Read(r, binary.LittleEndian, m.Tiles); err != nil {
		return nil, unexpected(err, "tiles")
	}
	if err := binary.Read(r, binary.LittleEndian, &m.ClipRect); err != nil {
		return nil, unexpected(err, "clip rect")
	}

	var err error
	if m.TilesetSources, err = readTilesetSources(r, h.TilesetCount); err != nil {
		return nil, err
	}

	var marker [10]byte
	if err := binary.Read(r, binary.LittleEndian, &marker); err != nil {
		return nil, unexpected(err, "tile set marker")
	}
	if marker != tilesetMarker {
		return nil, errors.Wrap(ErrFormat, "'TILE SET' string not found")
	}

	if m.TileMappings, err = readCountedSlice[TileMapping](r); err != nil {
		return nil, unexpected(err, "tile mappings")
	}
	if m.TerrainTypes, err = readCountedSlice[TerrainType](r); err != nil {
		return nil, unexpected(err, "terrain types")
	}
	return m, nil
}

func readTilesetSources(r io.Reader, count uint32) ([]TilesetSource, error) {
	sources := make([]TilesetSource, 0, min(count, maxPrealloc))
	for i := uint32(0); i < count; i++ {
		name, err := readString(r, maxTilesetFilenameLength)
		if err != nil {
			return nil, errors.WithMessagef(err, "tile set source %d", i)
		}

		source := TilesetSource{Filename: name}
		if name != "" {
			if err := binary.Read(r, binary.LittleEndian, &source.NumTiles); err != nil {
				return nil, unexpected(err, "tile set source")
			}
		}
		sources = append(sources, source)
	}
	return sources, nil
}

func readTileGroups(r io.Reader) ([]TileGroup, error) {
	var counts [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &counts); err != nil {
		return nil, unexpected(err, "tile group count")
	}

	groups := make([]TileGroup, 0, min(counts[0], maxPrealloc))
	for i := uint32(0); i < counts[0]; i++ {
		var size [2]uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, unexpected(err, "tile group size")
		}
		n := uint64(size[0]) * uint64(size[1])
		if n > maxTileCount {
			return nil, errors.Wrapf(ErrFormat, "tile group %d of %dx%d tiles is too large", i, size[0], size[1])
		}

		indices, err := readSlice[uint32](r, uint32(n))
		if err != nil {
			return nil, unexpected(err, "tile group mappings")
		}
		name, err := readString(r, maxPrealloc)
		if err != nil {
			return nil, errors.WithMessagef(err, "tile group %d", i)
		}

		groups = append(groups, TileGroup{
			Name:           name,
			Width:          size[0],
			Height:         size[1],
			MappingIndices: indices,
		})
	}
	return groups, nil
}

func readVersionTag(r io.Reader, expected uint32) error {
	var tag uint32
	if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
		return unexpected(err, "version tag")
	}
	if err := checkVersionTag(tag); err != nil {
		return err
	}
	if tag != expected {
		return errors.Wrapf(ErrFormat, "mismatched version tags 0x%X and 0x%X", expected, tag)
	}
	return nil
}

func checkVersionTag(tag uint32) error {
	if tag < MinVersionTag {
		return errors.Wrapf(ErrFormat, "version tag 0x%X is below 0x%X", tag, MinVersionTag)
	}
	return nil
}

// readString reads a uint32 length prefixed ASCII string.
func readString(r io.Reader, maxLength uint32) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", unexpected(err, "string length")
	}
	if length > maxLength {
		return "", errors.Wrapf(ErrFormat, "string of %d characters is longer than %d", length, maxLength)
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", unexpected(err, "string")
	}
	return string(b), nil
}

func readCountedSlice[T any](r io.Reader) ([]T, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	return readSlice[T](r, count)
}

func readSlice[T any](r io.Reader, count uint32) ([]T, error) {
	s := make([]T, 0, min(count, maxPrealloc))
	for i := uint32(0); i < count; i++ {
		var v T
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, err
		}
		s = append(s, v)
	}
	return s, nil
}

func unexpected(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.Wrapf(ErrFormat, "reading %s: %v", what, err)
	}
	return err
}

// Write stores the map in map file layout.
func (m *Map) Write(w io.Writer) error {
	h, err := m.header()
	if err != nil {
		return err
	}
	for _, s := range m.TilesetSources {
		if len(s.Filename) > maxTilesetFilenameLength {
			return errors.Wrapf(ErrInvalidArgument, "tile set name %q is longer than %d characters", s.Filename, maxTilesetFilenameLength)
		}
	}
	for _, g := range m.TileGroups {
		if uint64(len(g.MappingIndices)) != uint64(g.Width)*uint64(g.Height) {
			return errors.Wrapf(ErrInvalidArgument, "tile group %q has %d mappings for %dx%d tiles", g.Name, len(g.MappingIndices), g.Width, g.Height)
		}
	}

	var buf bytes.Buffer
	le := binary.LittleEndian

	binary.Write(&buf, le, h)
	binary.Write(&buf, le, m.Tiles)
	binary.Write(&buf, le, m.ClipRect)
	for _, s := range m.TilesetSources {
		writeString(&buf, s.Filename)
		if s.Filename != "" {
			binary.Write(&buf, le, s.NumTiles)
		}
	}
	buf.Write(tilesetMarker[:])
	binary.Write(&buf, le, uint32(len(m.TileMappings)))
	binary.Write(&buf, le, m.TileMappings)
	binary.Write(&buf, le, uint32(len(m.TerrainTypes)))
	binary.Write(&buf, le, m.TerrainTypes)
	binary.Write(&buf, le, [2]uint32{m.VersionTag, m.VersionTag})

	// The second count is undocumented. Shipped maps store count-1.
	groups := uint32(len(m.TileGroups))
	binary.Write(&buf, le, [2]uint32{groups, uint32(max(int(groups)-1, 0))})
	for _, g := range m.TileGroups {
		binary.Write(&buf, le, [2]uint32{g.Width, g.Height})
		binary.Write(&buf, le, g.MappingIndices)
		writeString(&buf, g.Name)
	}

	_, err = buf.WriteTo(w)
	return err
}

func (m *Map) header() (Header, error) {
	if err := checkVersionTag(m.VersionTag); err != nil {
		return Header{}, errors.Wrap(ErrInvalidArgument, err.Error())
	}
	if bits.OnesCount32(m.Width) != 1 {
		return Header{}, errors.Wrapf(ErrInvalidArgument, "map width %d is not a power of two", m.Width)
	}
	if uint64(len(m.Tiles)) != uint64(m.Width)*uint64(m.Height) {
		return Header{}, errors.Wrapf(ErrInvalidArgument, "map has %d tiles, expected %dx%d", len(m.Tiles), m.Width, m.Height)
	}

	h := Header{
		VersionTag:     m.VersionTag,
		LgWidthInTiles: uint32(bits.TrailingZeros32(m.Width)),
		HeightInTiles:  m.Height,
		TilesetCount:   uint32(len(m.TilesetSources)),
	}
	if m.SavedGame {
		h.SavedGame = 1
	}
	return h, nil
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}
