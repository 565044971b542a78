// Package op2 implements access to the assets of Outpost 2.
//
// Outpost 2 ships most of its resources packed into volume (.vol) archives,
// with sound effects in clump (.clm) archives. A ResourceManager looks up a
// resource by name in the game directory first and in the archives second,
// the same order the game itself uses.
package op2

import (
	"bytes"
	"github.com/32bitkid/op2/archive"
	"github.com/32bitkid/op2/decompression"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

const defaultCacheSize = 64

type Options struct {
	Logger *zap.Logger

	// CacheSize is the number of decoded archive entries kept in memory.
	CacheSize int

	Decompressors decompression.LUT
}

func resolveOptions(options []Options) Options {
	resolved := Options{
		Logger:    zap.NewNop(),
		CacheSize: defaultCacheSize,
	}
	for _, opts := range options {
		if opts.Logger != nil {
			resolved.Logger = opts.Logger
		}
		if opts.CacheSize > 0 {
			resolved.CacheSize = opts.CacheSize
		}
		if opts.Decompressors != nil {
			resolved.Decompressors = opts.Decompressors
		}
	}
	return resolved
}

// ResourceManager finds resources in a game directory and in the archives
// directly inside it. It is safe for concurrent use.
type ResourceManager struct {
	dir      string
	archives []archive.Archive
	logger   *zap.Logger

	mu    sync.Mutex
	cache *tinylfu.T[string, []byte]
}

// NewResourceManager opens every volume, then every clump, in dir. Archive
// extensions are matched case-insensitively.
func NewResourceManager(dir string, options ...Options) (*ResourceManager, error) {
	opts := resolveOptions(options)

	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "resource manager must be passed an archive directory")
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(ErrInvalidArgument, "%s is not a directory", dir)
	}

	rm := &ResourceManager{
		dir:    dir,
		logger: opts.Logger.With(zap.String("dir", dir)),
		cache:  tinylfu.New[string, []byte](opts.CacheSize, opts.CacheSize*10, xxhash.Sum64String),
	}

	archiveOptions := archive.Options{Logger: opts.Logger, Decompressors: opts.Decompressors}
	openers := []struct {
		ext  string
		open func(string) (archive.Archive, error)
	}{
		{".vol", func(fn string) (archive.Archive, error) { return archive.OpenVol(fn, archiveOptions) }},
		{".clm", func(fn string) (archive.Archive, error) { return archive.OpenClm(fn, archiveOptions) }},
	}
	for _, opener := range openers {
		filenames, err := rm.looseFiles(func(name string) bool {
			return strings.EqualFold(filepath.Ext(name), opener.ext)
		})
		if err != nil {
			rm.Close()
			return nil, err
		}

		for _, name := range filenames {
			a, err := opener.open(filepath.Join(dir, name))
			if err != nil {
				rm.Close()
				return nil, err
			}
			rm.archives = append(rm.archives, a)
		}
	}

	rm.logger.Debug("loaded archives", zap.Int("archives", len(rm.archives)))
	return rm, nil
}

// Resource returns the contents of a loose file in the directory or, if
// accessArchives is set, of the first archive entry with that name.
func (rm *ResourceManager) Resource(name string, accessArchives bool) ([]byte, error) {
	loose, err := rm.loosePath(name)
	if err != nil {
		return nil, err
	}
	if loose != "" {
		return os.ReadFile(loose)
	}
	if !accessArchives {
		return nil, errors.Wrapf(ErrNotFound, "%s", name)
	}

	b, err := rm.archived(name)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// ResourceReader is Resource as a stream. Loose files are read from disk
// as they are consumed.
func (rm *ResourceManager) ResourceReader(name string, accessArchives bool) (io.ReadCloser, error) {
	loose, err := rm.loosePath(name)
	if err != nil {
		return nil, err
	}
	if loose != "" {
		return os.Open(loose)
	}
	if !accessArchives {
		return nil, errors.Wrapf(ErrNotFound, "%s", name)
	}

	b, err := rm.archived(name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// loosePath returns the path of name in the directory, or "" when no such
// regular file exists.
func (rm *ResourceManager) loosePath(name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) || filepath.VolumeName(name) != "" {
		return "", errors.Wrapf(ErrInvalidArgument, "only relative paths are accepted, refusing %s", name)
	}
	if escapesDir(name) {
		return "", errors.Wrapf(ErrInvalidArgument, "parent directory references are not accepted, refusing %s", name)
	}

	p := filepath.Join(rm.dir, name)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", nil
	}
	return p, nil
}

// escapesDir reports whether name has a ".." component under either
// separator.
func escapesDir(name string) bool {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' })
	for _, part := range parts {
		if part == ".." {
			return true
		}
	}
	return false
}

// archived decodes an archive entry through the cache. The returned slice is
// shared with the cache and must not be modified.
func (rm *ResourceManager) archived(name string) ([]byte, error) {
	key := strings.ToLower(name)

	rm.mu.Lock()
	b, ok := rm.cache.Get(key)
	rm.mu.Unlock()
	if ok {
		rm.logger.Debug("cache hit", zap.String("resource", name))
		return b, nil
	}

	for _, a := range rm.archives {
		index, err := a.Index(name)
		if err != nil {
			continue
		}

		r, err := a.Open(index)
		if err != nil {
			return nil, err
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}

		rm.mu.Lock()
		rm.cache.Add(key, b)
		rm.mu.Unlock()

		rm.logger.Debug("loaded resource", zap.String("resource", name), zap.String("archive", a.Filename()))
		return b, nil
	}

	return nil, errors.Wrapf(ErrNotFound, "%s", name)
}

// Filenames returns the names matching a case-insensitive regular
// expression, loose files first.
func (rm *ResourceManager) Filenames(expr string, accessArchives bool) ([]string, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidArgument, "%v", err)
	}
	return rm.filenames(re.MatchString, accessArchives, false)
}

// Glob is Filenames with a doublestar pattern, matched case-insensitively.
func (rm *ResourceManager) Glob(pattern string, accessArchives bool) ([]string, error) {
	pattern = strings.ToLower(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Wrapf(ErrInvalidArgument, "%v: %s", doublestar.ErrBadPattern, pattern)
	}
	return rm.filenames(func(name string) bool {
		ok, _ := doublestar.Match(pattern, strings.ToLower(name))
		return ok
	}, accessArchives, false)
}

// FilenamesOfType returns the names with the given extension. Archive
// entries shadowed by a name already found are left out.
func (rm *ResourceManager) FilenamesOfType(ext string, accessArchives bool) ([]string, error) {
	ext = "." + strings.TrimPrefix(ext, ".")
	return rm.filenames(func(name string) bool {
		return strings.EqualFold(filepath.Ext(name), ext)
	}, accessArchives, true)
}

func (rm *ResourceManager) filenames(match func(string) bool, accessArchives, dedupe bool) ([]string, error) {
	names, err := rm.looseFiles(match)
	if err != nil {
		return nil, err
	}
	if !accessArchives {
		return names, nil
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[strings.ToLower(name)] = true
	}

	for _, a := range rm.archives {
		for i := 0; i < a.Count(); i++ {
			name, err := a.Name(i)
			if err != nil {
				return nil, err
			}
			if !match(name) || (dedupe && seen[strings.ToLower(name)]) {
				continue
			}
			seen[strings.ToLower(name)] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// looseFiles lists the regular files directly in the directory, sorted.
func (rm *ResourceManager) looseFiles(match func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(rm.dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !match(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ContainingArchive returns the filename of the first archive holding name.
func (rm *ResourceManager) ContainingArchive(name string) (string, error) {
	for _, a := range rm.archives {
		if a.Contains(name) {
			return a.Filename(), nil
		}
	}
	return "", errors.Wrapf(ErrNotFound, "no archive contains %s", name)
}

func (rm *ResourceManager) ArchiveFilenames() []string {
	filenames := make([]string, len(rm.archives))
	for i, a := range rm.archives {
		filenames[i] = a.Filename()
	}
	return filenames
}

func (rm *ResourceManager) Close() error {
	var err error
	for _, a := range rm.archives {
		err = multierr.Append(err, a.Close())
	}
	rm.archives = nil
	return err
}
