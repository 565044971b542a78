package op2

import (
	"bytes"
	"github.com/32bitkid/op2/bitmap"
	"github.com/32bitkid/op2/sprite"
	"github.com/32bitkid/op2/tilemap"
	"path/filepath"
	"strings"
)

// Bitmap loads an indexed bitmap resource.
func (rm *ResourceManager) Bitmap(name string) (*bitmap.File, error) {
	r, err := rm.ResourceReader(name, true)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return bitmap.ReadIndexed(r)
}

// Map loads a map. Names ending in .op2 are read as saved games.
func (rm *ResourceManager) Map(name string) (*tilemap.Map, error) {
	b, err := rm.Resource(name, true)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(name), ".op2") {
		return tilemap.ReadSavedGame(bytes.NewReader(b))
	}
	return tilemap.Read(bytes.NewReader(b))
}

// Tileset loads a tileset stored either as a custom tileset or a standard
// bitmap.
func (rm *ResourceManager) Tileset(name string) (*bitmap.File, error) {
	r, err := rm.ResourceReader(name, true)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return sprite.ReadTileset(r)
}

// Art loads a sprite index.
func (rm *ResourceManager) Art(name string) (*sprite.ArtFile, error) {
	r, err := rm.ResourceReader(name, true)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return sprite.ReadArt(r)
}

// Sprites pairs a sprite index with the master bitmap its images are cut
// from.
func (rm *ResourceManager) Sprites(artName, masterName string) (*sprite.Loader, error) {
	art, err := rm.Art(artName)
	if err != nil {
		return nil, err
	}
	master, err := rm.Resource(masterName, true)
	if err != nil {
		return nil, err
	}
	return sprite.NewLoader(bytes.NewReader(master), art), nil
}
