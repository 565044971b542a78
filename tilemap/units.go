package tilemap

import (
	"encoding/binary"
	"github.com/pkg/errors"
	"io"
)

const (
	unitRecordCount = 2047
	freeUnitCount   = 2048
	unitRecordSize  = 120
	objectType1Size = 512
)

// ObjectType1 is an undocumented 512 byte record.
type ObjectType1 [objectType1Size]byte

// UnitRecord is the raw state of one unit.
type UnitRecord [unitRecordSize]byte

// SavedGameUnits is the unit table found only in saved games.
type SavedGameUnits struct {
	UnitCount              uint32
	LastUsedUnitIndex      uint32
	NextFreeUnitSlotIndex  uint32
	FirstFreeUnitSlotIndex uint32
	SizeOfUnit             uint32

	Objects1 []ObjectType1
	Objects2 []uint32

	NextUnitIndex uint32
	PrevUnitIndex uint32

	Units []UnitRecord

	// FreeUnits is only stored while the free list is not empty.
	FreeUnits []uint32
}

type unitsPrefix struct {
	UnitCount              uint32
	LastUsedUnitIndex      uint32
	NextFreeUnitSlotIndex  uint32
	FirstFreeUnitSlotIndex uint32
	SizeOfUnit             uint32
	ObjectCount1           uint32
	ObjectCount2           uint32
}

func readSavedGameUnits(r io.Reader) (*SavedGameUnits, error) {
	var prefix unitsPrefix
	if err := binary.Read(r, binary.LittleEndian, &prefix); err != nil {
		return nil, err
	}
	if prefix.SizeOfUnit != unitRecordSize && prefix.UnitCount != 0 {
		return nil, errors.Wrapf(ErrFormat, "unit size is %d, expected %d", prefix.SizeOfUnit, unitRecordSize)
	}

	units := &SavedGameUnits{
		UnitCount:              prefix.UnitCount,
		LastUsedUnitIndex:      prefix.LastUsedUnitIndex,
		NextFreeUnitSlotIndex:  prefix.NextFreeUnitSlotIndex,
		FirstFreeUnitSlotIndex: prefix.FirstFreeUnitSlotIndex,
		SizeOfUnit:             prefix.SizeOfUnit,
	}

	var err error
	if units.Objects1, err = readSlice[ObjectType1](r, prefix.ObjectCount1); err != nil {
		return nil, err
	}
	if units.Objects2, err = readSlice[uint32](r, prefix.ObjectCount2); err != nil {
		return nil, err
	}

	links := [2]uint32{}
	if err := binary.Read(r, binary.LittleEndian, &links); err != nil {
		return nil, err
	}
	units.NextUnitIndex, units.PrevUnitIndex = links[0], links[1]

	units.Units = make([]UnitRecord, unitRecordCount)
	if err := binary.Read(r, binary.LittleEndian, units.Units); err != nil {
		return nil, err
	}

	if units.FirstFreeUnitSlotIndex != units.NextFreeUnitSlotIndex {
		units.FreeUnits = make([]uint32, freeUnitCount)
		if err := binary.Read(r, binary.LittleEndian, units.FreeUnits); err != nil {
			return nil, err
		}
	}

	return units, nil
}
