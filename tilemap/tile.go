package tilemap

import "fmt"

type CellType uint8

const (
	CellFastPassible1 CellType = iota
	CellImpassible2
	CellSlowPassible1
	CellSlowPassible2
	CellMediumPassible1
	CellMediumPassible2
	CellImpassible1
	CellFastPassible2
	CellNorthCliffs
	CellCliffsHighSide
	CellCliffsLowSide
	CellVentsAndFumaroles
	cellPad12
	cellPad13
	cellPad14
	cellPad15
	cellPad16
	cellPad17
	cellPad18
	cellPad19
	cellPad20
	CellDozedArea
	CellRubble
	CellNormalWall
	CellMicrobeWall
	CellLavaWall
	CellTube0
	CellTube1
	CellTube2
	CellTube3
	CellTube4
	CellTube5
)

var cellTypeNames = [...]string{
	CellFastPassible1:     "FastPassible1",
	CellImpassible2:       "Impassible2",
	CellSlowPassible1:     "SlowPassible1",
	CellSlowPassible2:     "SlowPassible2",
	CellMediumPassible1:   "MediumPassible1",
	CellMediumPassible2:   "MediumPassible2",
	CellImpassible1:       "Impassible1",
	CellFastPassible2:     "FastPassible2",
	CellNorthCliffs:       "NorthCliffs",
	CellCliffsHighSide:    "CliffsHighSide",
	CellCliffsLowSide:     "CliffsLowSide",
	CellVentsAndFumaroles: "VentsAndFumaroles",
	CellDozedArea:         "DozedArea",
	CellRubble:            "Rubble",
	CellNormalWall:        "NormalWall",
	CellMicrobeWall:       "MicrobeWall",
	CellLavaWall:          "LavaWall",
	CellTube0:             "Tube0",
	CellTube1:             "Tube1",
	CellTube2:             "Tube2",
	CellTube3:             "Tube3",
	CellTube4:             "Tube4",
	CellTube5:             "Tube5",
}

func (c CellType) String() string {
	if int(c) < len(cellTypeNames) && cellTypeNames[c] != "" {
		return "CellType(" + cellTypeNames[c] + ")"
	}
	return fmt.Sprintf("CellType(%d)", uint8(c))
}

// Tile is the 32-bit packed description of one map cell.
//
//	bits  0-4   cell type
//	bits  5-15  tile mapping index
//	bits 16-26  unit index
//	bit  27     lava
//	bit  28     lava possible
//	bit  29     expansion
//	bit  30     microbe
//	bit  31     wall or building
type Tile uint32

const (
	cellTypeShift     = 0
	cellTypeBits      = 5
	mappingIndexShift = 5
	mappingIndexBits  = 11
	unitIndexShift    = 16
	unitIndexBits     = 11
	lavaBit           = 27
	lavaPossibleBit   = 28
	expansionBit      = 29
	microbeBit        = 30
	wallOrBuildingBit = 31
)

func (t Tile) field(shift, bits uint) uint32 {
	return uint32(t) >> shift & (1<<bits - 1)
}

func (t Tile) withField(shift, bits uint, v uint32) Tile {
	mask := uint32(1<<bits-1) << shift
	return Tile(uint32(t)&^mask | v<<shift&mask)
}

func (t Tile) flag(bit uint) bool { return t.field(bit, 1) == 1 }

func (t Tile) withFlag(bit uint, on bool) Tile {
	var v uint32
	if on {
		v = 1
	}
	return t.withField(bit, 1, v)
}

func (t Tile) CellType() CellType { return CellType(t.field(cellTypeShift, cellTypeBits)) }

func (t Tile) WithCellType(c CellType) Tile {
	return t.withField(cellTypeShift, cellTypeBits, uint32(c))
}

// MappingIndex selects the TileMapping drawn for this cell.
func (t Tile) MappingIndex() uint16 { return uint16(t.field(mappingIndexShift, mappingIndexBits)) }

func (t Tile) WithMappingIndex(i uint16) Tile {
	return t.withField(mappingIndexShift, mappingIndexBits, uint32(i))
}

// UnitIndex is the unit occupying the cell.
func (t Tile) UnitIndex() uint16 { return uint16(t.field(unitIndexShift, unitIndexBits)) }

func (t Tile) WithUnitIndex(i uint16) Tile {
	return t.withField(unitIndexShift, unitIndexBits, uint32(i))
}

func (t Tile) Lava() bool                    { return t.flag(lavaBit) }
func (t Tile) WithLava(on bool) Tile         { return t.withFlag(lavaBit, on) }
func (t Tile) LavaPossible() bool            { return t.flag(lavaPossibleBit) }
func (t Tile) WithLavaPossible(on bool) Tile { return t.withFlag(lavaPossibleBit, on) }

// Expansion takes part in lava and microbe spread.
func (t Tile) Expansion() bool                 { return t.flag(expansionBit) }
func (t Tile) WithExpansion(on bool) Tile      { return t.withFlag(expansionBit, on) }
func (t Tile) Microbe() bool                   { return t.flag(microbeBit) }
func (t Tile) WithMicrobe(on bool) Tile        { return t.withFlag(microbeBit, on) }
func (t Tile) WallOrBuilding() bool            { return t.flag(wallOrBuildingBit) }
func (t Tile) WithWallOrBuilding(on bool) Tile { return t.withFlag(wallOrBuildingBit, on) }
