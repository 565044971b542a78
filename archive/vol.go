package archive

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"github.com/32bitkid/op2/decompression"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	tagVOL  = NewTag("VOL ")
	tagVOLH = NewTag("volh")
	tagVOLS = NewTag("vols")
	tagVOLI = NewTag("voli")
	tagVBLK = NewTag("VBLK")
)

// The high bit of a section length selects 4 byte (set) or 2 byte
// (clear) padding. Only 4 byte padding is supported.
const fourBytePadding = 0x80000000

type sectionHeader struct {
	Tag    Tag
	Length uint32
}

func newSectionHeader(tag Tag, length uint32) sectionHeader {
	return sectionHeader{Tag: tag, Length: length&^fourBytePadding | fourBytePadding}
}

func (h sectionHeader) length() uint32 { return h.Length &^ fourBytePadding }

type volIndexEntry struct {
	FilenameOffset  uint32
	DataBlockOffset uint32
	FileSize        int32
	Compression     decompression.Method
}

// An index entry with this filename offset ends the list of used entries.
const unusedEntry = math.MaxUint32

var (
	sectionHeaderSize = binary.Size(sectionHeader{})
	volIndexEntrySize = binary.Size(volIndexEntry{})
)

// VolFile is an open volume archive. Entries may be opened concurrently.
type VolFile struct {
	*archiveFile
	entries       []volIndexEntry
	decompressors decompression.LUT
}

func OpenVol(filename string, options ...Options) (*VolFile, error) {
	a, err := openArchiveFile(filename, options)
	if err != nil {
		return nil, err
	}

	v := &VolFile{
		archiveFile:   a,
		decompressors: resolveOptions(options).Decompressors,
	}
	if err := v.readHeader(); err != nil {
		a.file.Close()
		return nil, err
	}

	v.logger.Debug("opened volume", zap.Int("entries", v.Count()))
	return v, nil
}

func (v *VolFile) Kind() Kind { return KindVol }

// EntrySize returns the size recorded in the index, which is the size of
// the decoded entry.
func (v *VolFile) EntrySize(index int) (int64, error) {
	if err := v.verifyIndex(index); err != nil {
		return 0, err
	}
	return int64(v.entries[index].FileSize), nil
}

func (v *VolFile) CompressionType(index int) (decompression.Method, error) {
	if err := v.verifyIndex(index); err != nil {
		return 0, err
	}
	return v.entries[index].Compression, nil
}

// OpenRaw returns the stored, possibly compressed, payload of an entry.
func (v *VolFile) OpenRaw(index int) (*io.SectionReader, error) {
	if err := v.verifyIndex(index); err != nil {
		return nil, err
	}

	offset := int64(v.entries[index].DataBlockOffset)

	var header sectionHeader
	hr := io.NewSectionReader(v.file, offset, int64(sectionHeaderSize))
	if err := binary.Read(hr, binary.LittleEndian, &header); err != nil {
		return nil, v.wrapEntry(errors.Wrapf(ErrFormat, "reading block header at %d: %v", offset, err), index)
	}
	if header.Tag != tagVBLK {
		return nil, v.wrapEntry(errors.Wrapf(ErrFormat, "missing %q tag at %d", tagVBLK, offset), index)
	}

	start := offset + int64(sectionHeaderSize)
	length := int64(header.length())
	if start+length > v.size {
		return nil, v.wrapEntry(errors.Wrapf(ErrFormat, "block of %d bytes at %d runs past the end of the volume", length, offset), index)
	}

	return io.NewSectionReader(v.file, start, length), nil
}

// Open returns a reader over the decompressed contents of an entry.
// Uncompressed and LZH entries are streamed; other methods are decoded up
// front through the configured decompressors.
func (v *VolFile) Open(index int) (io.Reader, error) {
	raw, err := v.OpenRaw(index)
	if err != nil {
		return nil, err
	}

	switch method := v.entries[index].Compression; method {
	case decompression.MethodNone:
		return raw, nil
	case decompression.MethodLZH:
		payload := make([]byte, raw.Size())
		if _, err := io.ReadFull(raw, payload); err != nil {
			return nil, v.wrapEntry(err, index)
		}
		bits, err := decompression.NewBitStreamReader(payload)
		if err != nil {
			return nil, v.wrapEntry(err, index)
		}
		return &lzhEntryReader{
			HuffLZ: decompression.NewHuffLZ(bits),
			wrap:   func(err error) error { return v.wrapEntry(err, index) },
		}, nil
	default:
		var buf bytes.Buffer
		if err := v.decompressors.Decompress(method, raw, &buf, uint32(raw.Size())); err != nil {
			return nil, v.wrapEntry(err, index)
		}
		return &buf, nil
	}
}

func (v *VolFile) Extract(index int, pathOut string) error {
	if err := extractTo(v, index, pathOut); err != nil {
		return err
	}
	v.logger.Debug("extracted entry", zap.String("entry", v.names[index]), zap.String("path", pathOut))
	return nil
}

func (v *VolFile) ExtractAll(destDir string) error {
	return extractAll(v, destDir)
}

type lzhEntryReader struct {
	*decompression.HuffLZ
	wrap func(error) error
}

func (r *lzhEntryReader) Read(p []byte) (int, error) {
	n, err := r.HuffLZ.Read(p)
	if err != nil && err != io.EOF {
		err = r.wrap(err)
	}
	return n, err
}

func (r *lzhEntryReader) WriteTo(w io.Writer) (int64, error) {
	n, err := r.HuffLZ.WriteTo(w)
	if err != nil {
		err = r.wrap(err)
	}
	return n, err
}

func (v *VolFile) readTag(r io.Reader, tag Tag) (uint32, error) {
	var header sectionHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return 0, errors.Wrapf(ErrFormat, "volume %s: reading the %q section header: %v", v.filename, tag, err)
	}
	if header.Tag != tag {
		return 0, errors.Wrapf(ErrFormat, "volume %s: the tag %q was not found in the proper position", v.filename, tag)
	}
	if header.Length&fourBytePadding == 0 {
		return 0, errors.Wrapf(ErrFormat, "volume %s: the tag %q uses 2 byte padding, only 4 byte padding is supported", v.filename, tag)
	}
	return header.length(), nil
}

func (v *VolFile) readHeader() error {
	if v.size < int64(sectionHeaderSize) {
		return errors.Wrapf(ErrFormat, "volume %s is not large enough to contain the %q section header", v.filename, tagVOL)
	}

	r := bufio.NewReader(io.NewSectionReader(v.file, 0, v.size))

	headerLength, err := v.readTag(r, tagVOL)
	if err != nil {
		return err
	}
	if v.size < int64(headerLength)+int64(sectionHeaderSize) {
		return errors.Wrapf(ErrFormat, "volume %s is not large enough to contain its %d byte header", v.filename, headerLength)
	}

	volhLength, err := v.readTag(r, tagVOLH)
	if err != nil {
		return err
	}
	if volhLength != 0 {
		return errors.Wrapf(ErrFormat, "volume %s: the length of the %q section is not zero", v.filename, tagVOLH)
	}

	stringTableLength, err := v.readTag(r, tagVOLS)
	if err != nil {
		return err
	}
	if uint64(headerLength) < uint64(stringTableLength)+uint64(sectionHeaderSize)*2+4 {
		return errors.Wrapf(ErrFormat, "volume %s: the string table does not fit in the header", v.filename)
	}

	stringTable, err := v.readStringTable(r, stringTableLength)
	if err != nil {
		return err
	}

	indexTableLength, err := v.readTag(r, tagVOLI)
	if err != nil {
		return err
	}
	if uint64(headerLength) < uint64(stringTableLength)+uint64(indexTableLength)+24 {
		return errors.Wrapf(ErrFormat, "volume %s: the index table does not fit in the header", v.filename)
	}

	entries := make([]volIndexEntry, int(indexTableLength)/volIndexEntrySize)
	if err := binary.Read(r, binary.LittleEndian, entries); err != nil {
		return errors.Wrapf(ErrFormat, "volume %s: reading the index table: %v", v.filename, err)
	}

	count := 0
	for count < len(entries) && entries[count].FilenameOffset != unusedEntry {
		count++
	}
	v.entries = entries[:count]

	v.names = make([]string, count)
	for i, entry := range v.entries {
		name, err := stringAt(stringTable, entry.FilenameOffset)
		if err != nil {
			return errors.Wrapf(err, "volume %s: entry %d", v.filename, i)
		}
		v.names[i] = name
	}

	return nil
}

// readStringTable reads the vols section body: the length of the name
// data, the NUL terminated names, and zero padding up to sectionLength.
func (v *VolFile) readStringTable(r io.Reader, sectionLength uint32) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, errors.Wrapf(ErrFormat, "volume %s: reading the string table length: %v", v.filename, err)
	}
	if sectionLength < 4 || length > sectionLength-4 {
		return nil, errors.Wrapf(ErrFormat, "volume %s: string table length %d exceeds its section length %d", v.filename, length, sectionLength)
	}

	table := make([]byte, length)
	if _, err := io.ReadFull(r, table); err != nil {
		return nil, errors.Wrapf(ErrFormat, "volume %s: reading the string table: %v", v.filename, err)
	}
	if _, err := io.CopyN(io.Discard, r, int64(sectionLength-4-length)); err != nil {
		return nil, errors.Wrapf(ErrFormat, "volume %s: skipping string table padding: %v", v.filename, err)
	}
	return table, nil
}

func stringAt(table []byte, offset uint32) (string, error) {
	if uint64(offset) >= uint64(len(table)) {
		return "", errors.Wrapf(ErrFormat, "filename offset %d is outside the %d byte string table", offset, len(table))
	}
	name := table[offset:]
	if end := bytes.IndexByte(name, 0); end >= 0 {
		name = name[:end]
	}
	return string(name), nil
}

// VolEntry describes one file to pack. The file at Path is stored as is;
// Compression records how its bytes are encoded.
type VolEntry struct {
	Name        string
	Path        string
	Compression decompression.Method
	// Size is the decoded size recorded in the index. When zero, compressed
	// files are decoded once while packing to measure it.
	Size int64
}

// CreateVol packs filesToPack, uncompressed, into a new volume. Entries are
// named by the base name of each path.
func CreateVol(volumeFilename string, filesToPack []string, options ...Options) error {
	sorted, names := namesFromPaths(filesToPack)

	entries := make([]VolEntry, len(sorted))
	for i, path := range sorted {
		entries[i] = VolEntry{Name: names[i], Path: path, Compression: decompression.MethodNone}
	}
	return WriteVol(volumeFilename, entries, options...)
}

// WriteVol packs entries into a new volume, sorted by name.
func WriteVol(volumeFilename string, entries []VolEntry, options ...Options) error {
	resolved := resolveOptions(options)
	logger := resolved.Logger

	entries = append([]VolEntry(nil), entries...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	names := make([]string, len(entries))
	for i, entry := range entries {
		if entry.Name == "" || strings.IndexByte(entry.Name, 0) >= 0 {
			return errors.Errorf("invalid entry name %q for volume %s", entry.Name, volumeFilename)
		}
		names[i] = entry.Name
	}
	if err := verifyNoDuplicateNames(names); err != nil {
		return err
	}

	volumePath, err := filepath.Abs(volumeFilename)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		entryPath, err := filepath.Abs(entry.Path)
		if err != nil {
			return err
		}
		if strings.EqualFold(volumePath, entryPath) {
			return errors.Errorf("cannot include the volume being written in new volume %s", volumeFilename)
		}
	}

	layout, err := layoutVolume(volumeFilename, entries, resolved.Decompressors)
	if err != nil {
		return err
	}

	out, err := os.Create(volumeFilename)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(out)
	if err := layout.writeHeader(w); err != nil {
		out.Close()
		return err
	}
	if err := layout.writeBlocks(w); err != nil {
		out.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	logger.Debug("created volume", zap.String("archive", volumeFilename), zap.Int("entries", len(entries)))
	return nil
}

type volLayout struct {
	entries []VolEntry
	index   []volIndexEntry
	// storedSizes are the block sizes on disk; the index records the
	// decoded sizes.
	storedSizes []uint32

	stringTableLength       uint32
	paddedStringTableLength uint32
	indexTableLength        uint32
	paddedIndexTableLength  uint32
}

func layoutVolume(volumeFilename string, entries []VolEntry, decompressors decompression.LUT) (*volLayout, error) {
	layout := &volLayout{
		entries:     entries,
		index:       make([]volIndexEntry, len(entries)),
		storedSizes: make([]uint32, len(entries)),
	}

	var stringTableLength uint64
	for i, entry := range entries {
		info, err := os.Stat(entry.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s into volume %s", entry.Path, volumeFilename)
		}
		if info.Size() > math.MaxInt32 {
			return nil, errors.Errorf("file %s is too large to fit inside volume %s", entry.Path, volumeFilename)
		}

		size, err := decodedSize(entry, info.Size(), decompressors)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s into volume %s", entry.Path, volumeFilename)
		}
		if size > math.MaxInt32 {
			return nil, errors.Errorf("file %s decodes to more than fits inside volume %s", entry.Path, volumeFilename)
		}

		layout.storedSizes[i] = uint32(info.Size())
		layout.index[i] = volIndexEntry{
			FilenameOffset: uint32(stringTableLength),
			FileSize:       int32(size),
			Compression:    entry.Compression,
		}

		stringTableLength += uint64(len(entry.Name)) + 1
		if stringTableLength > math.MaxUint32-8 {
			return nil, errors.Errorf("string table is too long to create volume %s", volumeFilename)
		}
	}

	indexTableLength := uint64(len(entries)) * uint64(volIndexEntrySize)
	if indexTableLength > math.MaxUint32-4 {
		return nil, errors.Errorf("index table is too long to create volume %s", volumeFilename)
	}

	layout.stringTableLength = uint32(stringTableLength)
	layout.indexTableLength = uint32(indexTableLength)
	layout.paddedStringTableLength = (layout.stringTableLength + 7) &^ 3
	layout.paddedIndexTableLength = (layout.indexTableLength + 3) &^ 3

	offset := uint64(layout.paddedStringTableLength) + uint64(layout.paddedIndexTableLength) + 32
	for i := range layout.index {
		if offset > math.MaxUint32 {
			return nil, errors.Errorf("volume %s would exceed 4GiB", volumeFilename)
		}
		layout.index[i].DataBlockOffset = uint32(offset)
		offset = (offset + uint64(layout.storedSizes[i]) + 11) &^ 3
	}

	return layout, nil
}

// decodedSize is the size entry expands to.
func decodedSize(entry VolEntry, storedSize int64, decompressors decompression.LUT) (int64, error) {
	if entry.Compression == decompression.MethodNone {
		return storedSize, nil
	}
	if entry.Size != 0 {
		return entry.Size, nil
	}

	f, err := os.Open(entry.Path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var counter countingWriter
	if err := decompressors.Decompress(entry.Compression, bufio.NewReader(f), &counter, uint32(storedSize)); err != nil {
		return 0, err
	}
	return counter.n, nil
}

type countingWriter struct{ n int64 }

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

func (l *volLayout) writeHeader(w io.Writer) error {
	padding := make([]byte, 4)

	headers := []interface{}{
		newSectionHeader(tagVOL, l.paddedStringTableLength+l.paddedIndexTableLength+24),
		newSectionHeader(tagVOLH, 0),
		newSectionHeader(tagVOLS, l.paddedStringTableLength),
		l.stringTableLength,
	}
	for _, h := range headers {
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			return err
		}
	}

	for _, entry := range l.entries {
		if _, err := io.WriteString(w, entry.Name+"\x00"); err != nil {
			return err
		}
	}
	if _, err := w.Write(padding[:l.paddedStringTableLength-l.stringTableLength-4]); err != nil {
		return err
	}

	if err := binary.Write(w, binary.LittleEndian, newSectionHeader(tagVOLI, l.indexTableLength)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, l.index); err != nil {
		return err
	}
	_, err := w.Write(padding[:l.paddedIndexTableLength-l.indexTableLength])
	return err
}

func (l *volLayout) writeBlocks(w io.Writer) error {
	padding := make([]byte, 4)

	for i, entry := range l.entries {
		size := l.storedSizes[i]
		if err := binary.Write(w, binary.LittleEndian, newSectionHeader(tagVBLK, uint32(size))); err != nil {
			return err
		}

		if err := copyFile(w, entry.Path, int64(size)); err != nil {
			return errors.Wrapf(err, "unable to pack file %s", entry.Name)
		}

		if _, err := w.Write(padding[:-size&3]); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(w io.Writer, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.CopyN(w, f, size)
	return err
}
