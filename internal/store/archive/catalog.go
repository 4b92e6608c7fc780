package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/tileserver/internal/core/model"
)

// Ext is the file extension of archive tilesets.
const Ext = ".mbtiles"

// ErrInvalidName is returned for tileset names that would leave the archive directory.
var ErrInvalidName = errors.New("invalid tileset name")

type metaEntry struct {
	modTime time.Time
	size    int64
	info    model.Tileset
}

// Catalog addresses the archives of one directory by tileset name. Tiles go
// through the single-slot Cache; descriptors are remembered per file version
// so listing pages do not reopen unchanged archives.
type Catalog struct {
	dir  string
	slot *Cache
	meta *lru.Cache[string, metaEntry]
}

func NewCatalog(dir string, slot *Cache, metaSize int) *Catalog {
	if slot == nil {
		slot = NewCache()
	}
	if metaSize <= 0 {
		metaSize = 128
	}
	m, _ := lru.New[string, metaEntry](metaSize)
	return &Catalog{dir: dir, slot: slot, meta: m}
}

func (c *Catalog) Dir() string { return c.dir }

// Slot exposes the handle cache shared by all requests.
func (c *Catalog) Slot() *Cache { return c.slot }

// PathFor maps a tileset name to its file, appending Ext when missing.
func (c *Catalog) PathFor(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !strings.HasSuffix(name, Ext) {
		name += Ext
	}
	return filepath.Join(c.dir, name), nil
}

func (c *Catalog) stat(name string) (string, fs.FileInfo, error) {
	p, err := c.PathFor(name)
	if err != nil {
		return "", nil, err
	}
	st, err := os.Stat(p)
	if err != nil {
		return p, nil, &OpenError{Path: p, Err: err}
	}
	if st.IsDir() {
		return p, nil, &OpenError{Path: p, Err: fmt.Errorf("is a directory: %w", fs.ErrNotExist)}
	}
	return p, st, nil
}

// Tile resolves z/x/y in the named archive. A missing archive is reported
// before the open handle is touched.
func (c *Catalog) Tile(ctx context.Context, name string, z, x, y int) ([]byte, bool, error) {
	p, _, err := c.stat(name)
	if err != nil {
		return nil, false, err
	}
	return c.slot.Tile(ctx, p, z, x, y)
}

// Describe returns the descriptor of the named archive.
func (c *Catalog) Describe(ctx context.Context, name string) (model.Tileset, error) {
	p, st, err := c.stat(name)
	if err != nil {
		return model.Tileset{}, err
	}
	return c.describe(ctx, p, st)
}

func (c *Catalog) describe(ctx context.Context, p string, st fs.FileInfo) (model.Tileset, error) {
	if e, ok := c.meta.Get(p); ok && e.size == st.Size() && e.modTime.Equal(st.ModTime()) {
		return e.info, nil
	}
	info, err := c.slot.Info(ctx, p)
	if err != nil {
		return model.Tileset{}, err
	}
	c.meta.Add(p, metaEntry{modTime: st.ModTime(), size: st.Size(), info: info})
	return info, nil
}

// List describes every archive in the directory, sorted by file name.
// Archives that cannot be read are skipped and reported in the joined error.
func (c *Catalog) List(ctx context.Context) ([]model.Tileset, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list archives in %s: %w", c.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]model.Tileset, 0, len(names))
	var errs []error
	for _, n := range names {
		p := filepath.Join(c.dir, n)
		st, err := os.Stat(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		info, err := c.describe(ctx, p, st)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, info)
	}
	return out, errors.Join(errs...)
}

// Close closes the open handle, if any.
func (c *Catalog) Close() error {
	return c.slot.Close()
}
