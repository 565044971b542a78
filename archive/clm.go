package archive

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

var (
	clmVersion = func() (v [32]byte) {
		copy(v[:], "OP2 Clump File Version 1.0\x1A")
		return v
	}()
	clmUnknown = [6]byte{0, 0, 0, 0, 1, 0}
)

type clmHeader struct {
	Version    [32]byte
	WaveFormat WaveFormatEx
	Unknown    [6]byte
	Count      uint32
}

type clmIndexEntry struct {
	Name       [8]byte
	DataOffset uint32
	DataLength int32
}

const clmMaxNameLength = 8

var (
	clmHeaderSize     = binary.Size(clmHeader{})
	clmIndexEntrySize = binary.Size(clmIndexEntry{})
)

// ClmFile is an open audio clump. Every entry is raw PCM in the clump's
// wave format.
type ClmFile struct {
	*archiveFile
	header  clmHeader
	entries []clmIndexEntry
}

func OpenClm(filename string, options ...Options) (*ClmFile, error) {
	a, err := openArchiveFile(filename, options)
	if err != nil {
		return nil, err
	}

	c := &ClmFile{archiveFile: a}
	if err := c.readHeader(); err != nil {
		a.file.Close()
		return nil, err
	}

	c.logger.Debug("opened clump", zap.Int("entries", c.Count()))
	return c, nil
}

func (c *ClmFile) Kind() Kind { return KindClm }

func (c *ClmFile) WaveFormat() WaveFormatEx { return c.header.WaveFormat }

func (c *ClmFile) EntrySize(index int) (int64, error) {
	if err := c.verifyIndex(index); err != nil {
		return 0, err
	}
	return int64(c.entries[index].DataLength), nil
}

// Open returns the raw PCM samples of an entry.
func (c *ClmFile) Open(index int) (io.Reader, error) {
	if err := c.verifyIndex(index); err != nil {
		return nil, err
	}
	entry := c.entries[index]
	return io.NewSectionReader(c.file, int64(entry.DataOffset), int64(entry.DataLength)), nil
}

// Extract writes an entry as a WAVE file.
func (c *ClmFile) Extract(index int, pathOut string) error {
	r, err := c.Open(index)
	if err != nil {
		return err
	}

	out, err := os.Create(pathOut)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(out)
	header := NewWaveHeader(c.header.WaveFormat, uint32(c.entries[index].DataLength))
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		out.Close()
		return c.wrapEntry(err, index)
	}
	if _, err := io.Copy(w, r); err != nil {
		out.Close()
		return c.wrapEntry(err, index)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	c.logger.Debug("extracted entry", zap.String("entry", c.names[index]), zap.String("path", pathOut))
	return nil
}

// ExtractAll writes every entry as name.wav in destDir.
func (c *ClmFile) ExtractAll(destDir string) error {
	for i, name := range c.names {
		if err := c.Extract(i, filepath.Join(destDir, name+".wav")); err != nil {
			return err
		}
	}
	return nil
}

func (c *ClmFile) readHeader() error {
	r := bufio.NewReader(io.NewSectionReader(c.file, 0, c.size))

	if err := binary.Read(r, binary.LittleEndian, &c.header); err != nil {
		return errors.Wrapf(ErrFormat, "clump %s: reading the header: %v", c.filename, err)
	}
	if c.header.Version != clmVersion {
		return errors.Wrapf(ErrFormat, "clump %s: file version is incorrect", c.filename)
	}
	if c.header.Unknown != clmUnknown {
		return errors.Wrapf(ErrFormat, "clump %s: unknown header field is incorrect", c.filename)
	}

	if int64(c.header.Count)*int64(clmIndexEntrySize) > c.size-int64(clmHeaderSize) {
		return errors.Wrapf(ErrFormat, "clump %s: index of %d entries does not fit in the file", c.filename, c.header.Count)
	}

	c.entries = make([]clmIndexEntry, c.header.Count)
	if err := binary.Read(r, binary.LittleEndian, c.entries); err != nil {
		return errors.Wrapf(ErrFormat, "clump %s: reading the index: %v", c.filename, err)
	}

	c.names = make([]string, len(c.entries))
	for i, entry := range c.entries {
		if entry.DataLength < 0 || int64(entry.DataOffset)+int64(entry.DataLength) > c.size {
			return errors.Wrapf(ErrFormat, "clump %s: entry %d lies outside the file", c.filename, i)
		}
		c.names[i] = string(bytes.TrimRight(entry.Name[:], "\x00"))
	}
	return nil
}

type clmSource struct {
	path       string
	file       *os.File
	format     WaveFormatEx
	dataOffset int64
	dataLength uint32
}

// CreateClm packs the PCM data of the WAVE files in filesToPack into a new
// clump. All inputs must share one wave format. Entries are named by base
// name without extension, at most 8 characters long.
func CreateClm(archiveFilename string, filesToPack []string, options ...Options) error {
	logger := resolveOptions(options).Logger

	sorted, names := namesFromPaths(filesToPack)
	for i, name := range names {
		names[i] = strings.TrimSuffix(name, filepath.Ext(name))
		if len(names[i]) > clmMaxNameLength {
			return errors.Errorf("filename %s for packing into clump %s must be at most %d characters long excluding the extension",
				names[i], archiveFilename, clmMaxNameLength)
		}
	}
	if err := verifyNoDuplicateNames(names); err != nil {
		return err
	}

	sources := make([]*clmSource, 0, len(sorted))
	defer func() {
		for _, src := range sources {
			src.file.Close()
		}
	}()
	for _, path := range sorted {
		src, err := openClmSource(path)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}

	format := DefaultWaveFormat
	if len(sources) > 0 {
		format = sources[0].format
	}
	for _, src := range sources {
		if src.format != format {
			return errors.Errorf("files %s and %s contain different wave formats", sources[0].path, src.path)
		}
	}

	entries := make([]clmIndexEntry, len(sources))
	offset := uint64(clmHeaderSize) + uint64(len(sources))*uint64(clmIndexEntrySize)
	for i, src := range sources {
		copy(entries[i].Name[:], names[i])
		if offset+uint64(src.dataLength) > math.MaxUint32 || src.dataLength > math.MaxInt32 {
			return errors.Errorf("index entry offset is too large to create clump %s", archiveFilename)
		}
		entries[i].DataOffset = uint32(offset)
		entries[i].DataLength = int32(src.dataLength)
		offset += uint64(src.dataLength)
	}

	out, err := os.Create(archiveFilename)
	if err != nil {
		return err
	}

	if err := writeClm(out, format, entries, sources); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	logger.Debug("created clump", zap.String("archive", archiveFilename), zap.Int("entries", len(entries)))
	return nil
}

func writeClm(out io.Writer, format WaveFormatEx, entries []clmIndexEntry, sources []*clmSource) error {
	w := bufio.NewWriter(out)

	header := clmHeader{
		Version:    clmVersion,
		WaveFormat: format,
		Unknown:    clmUnknown,
		Count:      uint32(len(entries)),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, entries); err != nil {
		return err
	}

	for _, src := range sources {
		data := io.NewSectionReader(src.file, src.dataOffset, int64(src.dataLength))
		if _, err := io.Copy(w, data); err != nil {
			return errors.Wrapf(err, "unable to pack file %s", src.path)
		}
	}
	return w.Flush()
}

// openClmSource checks that path is a RIFF WAVE file and locates its format
// and sample data.
func openClmSource(path string) (*clmSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	src, err := readClmSource(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

func readClmSource(f *os.File, path string) (*clmSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var riff RiffHeader
	if err := binary.Read(f, binary.LittleEndian, &riff); err != nil {
		return nil, errors.Wrapf(ErrFormat, "reading header from file %s: %v", path, err)
	}
	if riff.RiffTag != TagRIFF || riff.WaveTag != TagWAVE {
		return nil, errors.Wrapf(ErrFormat, "file %s is not a RIFF WAVE file", path)
	}
	if int64(riff.ChunkSize)+8 != info.Size() {
		return nil, errors.Wrapf(ErrFormat, "chunk size does not match file length in %s", path)
	}

	if _, err := FindChunk(f, info.Size(), TagFMT); err != nil {
		return nil, errors.Wrapf(err, "file %s", path)
	}
	src := &clmSource{path: path, file: f}
	if err := binary.Read(f, binary.LittleEndian, &src.format); err != nil {
		return nil, errors.Wrapf(ErrFormat, "reading the wave format of %s: %v", path, err)
	}
	src.format.CbSize = 0

	if src.dataLength, err = FindChunk(f, info.Size(), TagDATA); err != nil {
		return nil, errors.Wrapf(err, "file %s", path)
	}
	if src.dataOffset, err = f.Seek(0, io.SeekCurrent); err != nil {
		return nil, err
	}
	if src.dataOffset+int64(src.dataLength) > info.Size() {
		return nil, errors.Wrapf(ErrFormat, "data chunk of %s runs past the end of the file", path)
	}
	return src, nil
}
