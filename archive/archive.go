// Package archive reads and writes the container files Outpost 2 ships its
// assets in: volumes (.vol) holding general resources, and clumps (.clm)
// holding raw PCM audio sharing one wave format.
package archive

import (
	"github.com/32bitkid/op2/decompression"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrFormat          = errors.New("invalid archive format")
	ErrNoEntry         = errors.New("archive entry not found")
	ErrIndexOutOfRange = errors.New("archive entry index out of range")
)

type Kind uint8

const (
	KindVol Kind = iota
	KindClm
)

func (k Kind) String() string {
	switch k {
	case KindVol:
		return "Kind(VOL)"
	case KindClm:
		return "Kind(CLM)"
	}
	return "Kind(UNKNOWN)"
}

// Archive is the behaviour shared by volumes and clumps. Entry names are
// matched case-insensitively.
type Archive interface {
	io.Closer

	Kind() Kind
	Filename() string
	Count() int
	Name(index int) (string, error)
	EntrySize(index int) (int64, error)
	Index(name string) (int, error)
	Contains(name string) bool

	// Open returns the decoded contents of an entry.
	Open(index int) (io.Reader, error)
	Extract(index int, pathOut string) error
	ExtractAll(destDir string) error
}

type Options struct {
	Logger *zap.Logger

	// Decompressors decode volume entries stored with methods other than
	// none and LZH.
	Decompressors decompression.LUT
}

func resolveOptions(options []Options) Options {
	resolved := Options{
		Logger:        zap.NewNop(),
		Decompressors: decompression.Decompressors,
	}
	for _, opts := range options {
		if opts.Logger != nil {
			resolved.Logger = opts.Logger
		}
		if opts.Decompressors != nil {
			resolved.Decompressors = opts.Decompressors
		}
	}
	return resolved
}

// archiveFile holds what volumes and clumps have in common: an open file
// read only through ReadAt, and the entry names.
type archiveFile struct {
	filename string
	file     *os.File
	size     int64
	names    []string
	logger   *zap.Logger
}

func openArchiveFile(filename string, options []Options) (*archiveFile, error) {
	opts := resolveOptions(options)

	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &archiveFile{
		filename: filename,
		file:     file,
		size:     info.Size(),
		logger:   opts.Logger.With(zap.String("archive", filename)),
	}, nil
}

func (a *archiveFile) Filename() string { return a.filename }
func (a *archiveFile) Count() int       { return len(a.names) }

func (a *archiveFile) Name(index int) (string, error) {
	if err := a.verifyIndex(index); err != nil {
		return "", err
	}
	return a.names[index], nil
}

func (a *archiveFile) Index(name string) (int, error) {
	for i, n := range a.names {
		if strings.EqualFold(n, name) {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrNoEntry, "archive %s does not contain %s", a.filename, name)
}

func (a *archiveFile) Contains(name string) bool {
	_, err := a.Index(name)
	return err == nil
}

func (a *archiveFile) Close() error {
	return a.file.Close()
}

func (a *archiveFile) verifyIndex(index int) error {
	if index < 0 || index >= len(a.names) {
		return errors.Wrapf(ErrIndexOutOfRange, "index %d is out of bounds in archive %s", index, a.filename)
	}
	return nil
}

// wrapEntry attaches the archive and entry names to an error from an entry
// operation.
func (a *archiveFile) wrapEntry(err error, index int) error {
	return errors.Wrapf(err, "archive %s, entry %s", a.filename, a.names[index])
}

func extractTo(a Archive, index int, pathOut string) error {
	r, err := a.Open(index)
	if err != nil {
		return err
	}

	out, err := os.Create(pathOut)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func extractAll(a Archive, destDir string) error {
	for i := 0; i < a.Count(); i++ {
		name, err := a.Name(i)
		if err != nil {
			return err
		}
		if err := a.Extract(i, filepath.Join(destDir, name)); err != nil {
			return err
		}
	}
	return nil
}

// namesFromPaths sorts paths by base name and returns those base names. The
// sort is ordinal, so entries are ready for binary search by name.
func namesFromPaths(paths []string) ([]string, []string) {
	sorted := append([]string(nil), paths...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return filepath.Base(sorted[i]) < filepath.Base(sorted[j])
	})

	names := make([]string, len(sorted))
	for i, p := range sorted {
		names[i] = filepath.Base(p)
	}
	return sorted, names
}

func verifyNoDuplicateNames(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return errors.Errorf("unable to create an archive containing files with the same name: %s", name)
		}
		seen[key] = struct{}{}
	}
	return nil
}
