package archive

import (
	"bytes"
	"encoding/binary"
	"github.com/pkg/errors"
	"testing"
)

func TestNewTag(t *testing.T) {
	if tag := NewTag("VOL "); tag.String() != "VOL " {
		t.Fatalf("expected(%q) != actual(%q)", "VOL ", tag.String())
	}
	if tag := NewTag("ab"); tag != (Tag{'a', 'b', 0, 0}) {
		t.Fatalf("unexpected short tag % X", tag[:])
	}
	if NewTag("RIFF") != TagRIFF || NewTag("RIFX") == TagRIFF {
		t.Fatal("tags should compare by value")
	}
}

func TestWaveHeader(t *testing.T) {
	if size := binary.Size(WaveHeader{}); size != 46 {
		t.Fatalf("expected(46) != actual(%d)", size)
	}

	format := DefaultWaveFormat
	format.CbSize = 22
	header := NewWaveHeader(format, 1000)

	if header.Riff.ChunkSize != 1036 {
		t.Fatalf("expected(1036) != actual(%d)", header.Riff.ChunkSize)
	}
	if header.Format.FormatSize != 18 {
		t.Fatalf("expected(18) != actual(%d)", header.Format.FormatSize)
	}
	if header.Format.WaveFormat.CbSize != 0 {
		t.Fatal("expected cbSize to be cleared")
	}
	if header.Data.FormatTag != TagDATA || header.Data.Length != 1000 {
		t.Fatalf("unexpected data chunk %+v", header.Data)
	}
}

// waveBytes builds a WAVE file with a LIST chunk between the format and
// data chunks.
func waveBytes(format WaveFormatEx, data []byte) []byte {
	var buf bytes.Buffer
	list := []byte("INFOtest")

	size := uint32(4 + 26 + 8 + len(list) + 8 + len(data))
	binary.Write(&buf, binary.LittleEndian, RiffHeader{TagRIFF, size, TagWAVE})
	binary.Write(&buf, binary.LittleEndian, FormatChunk{TagFMT, 18, format})
	binary.Write(&buf, binary.LittleEndian, ChunkHeader{NewTag("LIST"), uint32(len(list))})
	buf.Write(list)
	binary.Write(&buf, binary.LittleEndian, ChunkHeader{TagDATA, uint32(len(data))})
	buf.Write(data)
	return buf.Bytes()
}

func TestFindChunk(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6}
	wave := waveBytes(DefaultWaveFormat, data)
	r := bytes.NewReader(wave)

	length, err := FindChunk(r, int64(len(wave)), TagDATA)
	if err != nil {
		t.Fatal(err)
	}
	if length != uint32(len(data)) {
		t.Fatalf("expected(%d) != actual(%d)", len(data), length)
	}

	rest := make([]byte, length)
	if _, err := r.Read(rest); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rest, data) {
		t.Fatalf("expected reader at the data, got % X", rest)
	}

	if _, err := FindChunk(r, int64(len(wave)), NewTag("cue ")); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
	if _, err := FindChunk(bytes.NewReader(wave[:10]), 10, TagDATA); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}
