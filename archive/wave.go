package archive

import (
	"encoding/binary"
	"github.com/pkg/errors"
	"io"
)

// WaveFormatEx matches the Windows WAVEFORMATEX structure.
type WaveFormatEx struct {
	FormatTag      uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
	CbSize         uint16
}

const waveFormatPCM = 1

// DefaultWaveFormat is 16-bit mono PCM at 22.05kHz, the format of every
// stock clump.
var DefaultWaveFormat = WaveFormatEx{
	FormatTag:      waveFormatPCM,
	Channels:       1,
	SamplesPerSec:  22050,
	AvgBytesPerSec: 44100,
	BlockAlign:     2,
	BitsPerSample:  16,
}

type RiffHeader struct {
	RiffTag   Tag
	ChunkSize uint32
	WaveTag   Tag
}

type FormatChunk struct {
	FmtTag     Tag
	FormatSize uint32
	WaveFormat WaveFormatEx
}

type ChunkHeader struct {
	FormatTag Tag
	Length    uint32
}

// WaveHeader is the canonical 46 byte header of a single data chunk WAVE
// file.
type WaveHeader struct {
	Riff   RiffHeader
	Format FormatChunk
	Data   ChunkHeader
}

var (
	riffHeaderSize  = binary.Size(RiffHeader{})
	chunkHeaderSize = binary.Size(ChunkHeader{})
	waveFormatSize  = binary.Size(WaveFormatEx{})
	formatChunkSize = binary.Size(FormatChunk{})
)

func NewWaveHeader(format WaveFormatEx, dataLength uint32) WaveHeader {
	format.CbSize = 0
	return WaveHeader{
		Riff: RiffHeader{
			RiffTag:   TagRIFF,
			ChunkSize: uint32(len(TagWAVE)+formatChunkSize+chunkHeaderSize) + dataLength,
			WaveTag:   TagWAVE,
		},
		Format: FormatChunk{
			FmtTag:     TagFMT,
			FormatSize: uint32(waveFormatSize),
			WaveFormat: format,
		},
		Data: ChunkHeader{
			FormatTag: TagDATA,
			Length:    dataLength,
		},
	}
}

// FindChunk walks the chunks following the RIFF header and returns the
// length of the first one tagged tag. On success r is positioned at the
// chunk's first data byte.
func FindChunk(r io.ReadSeeker, fileSize int64, tag Tag) (uint32, error) {
	if fileSize < int64(riffHeaderSize+chunkHeaderSize) {
		return 0, errors.Wrap(ErrFormat, "not enough space for a RIFF header and a chunk header")
	}

	pos := int64(riffHeaderSize)
	for pos < fileSize {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return 0, err
		}

		var header ChunkHeader
		if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
			return 0, errors.Wrapf(ErrFormat, "reading chunk header at %d: %v", pos, err)
		}
		if header.FormatTag == tag {
			return header.Length, nil
		}

		pos += int64(header.Length) + int64(chunkHeaderSize)
	}

	return 0, errors.Wrapf(ErrFormat, "unable to find the chunk %q", tag)
}
