// Package directory serves tilesets stored as <name>/<z>/<x>/<y>.png trees.
package directory

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/mohammed-shakir/tileserver/internal/core/model"
)

// Store resolves directory tilesets below root. Directory tilesets always use
// the XYZ row convention.
type Store struct {
	fs   afero.Fs
	root string
}

func New(fsys afero.Fs, root string) *Store {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Store{fs: fsys, root: root}
}

func (s *Store) Root() string { return s.root }

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// TilePath returns root/<tileset>/<z>/<x>/<y>.png.
func (s *Store) TilePath(tileset string, z, x, y int) string {
	return filepath.Join(s.root, tileset, strconv.Itoa(z), strconv.Itoa(x), strconv.Itoa(y)+".png")
}

// Tile reads the tile for tileset at z/x/y. Missing tiles, directories in
// their place and invalid names are (nil, false, nil).
func (s *Store) Tile(tileset string, z, x, y int) ([]byte, bool, error) {
	if !validName(tileset) {
		return nil, false, nil
	}
	return s.ReadTile(s.TilePath(tileset, z, x, y))
}

// ReadTile reads a tile file; a missing path or a directory is not found.
func (s *Store) ReadTile(path string) ([]byte, bool, error) {
	st, err := s.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("stat tile %s: %w", path, err)
	}
	if st.IsDir() {
		return nil, false, nil
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, false, fmt.Errorf("read tile %s: %w", path, err)
	}
	return data, true, nil
}

// Describe returns the descriptor for the named tileset, false when no such
// directory exists.
func (s *Store) Describe(tileset string) (model.Tileset, bool, error) {
	if !validName(tileset) {
		return model.Tileset{}, false, nil
	}
	dir := filepath.Join(s.root, tileset)
	ok, err := afero.IsDir(s.fs, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Tileset{}, false, nil
	}
	if err != nil {
		return model.Tileset{}, false, fmt.Errorf("stat tileset %s: %w", dir, err)
	}
	if !ok {
		return model.Tileset{}, false, nil
	}
	ts, err := s.DescribeDir(dir)
	if err != nil {
		return model.Tileset{}, false, err
	}
	return ts, true, nil
}

// DescribeDir builds a descriptor from a tileset directory: its base name is
// the tileset name and its integer-named subdirectories are the zoom levels.
// Without zoom subdirectories the zoom sentinels are left as they are.
func (s *Store) DescribeDir(dir string) (model.Tileset, error) {
	ts := model.NewTileset(filepath.Base(dir))
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return ts, fmt.Errorf("scan zoom levels in %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		z, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		ts.MinZoom = min(ts.MinZoom, z)
		ts.MaxZoom = max(ts.MaxZoom, z)
	}
	return ts, nil
}

// List describes every tileset directory under root.
func (s *Store) List() ([]model.Tileset, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list tilesets in %s: %w", s.root, err)
	}
	out := make([]model.Tileset, 0, len(entries))
	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ts, err := s.DescribeDir(filepath.Join(s.root, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, ts)
	}
	return out, errors.Join(errs...)
}
