package archive

import (
	"context"
	"sync"

	"github.com/mohammed-shakir/tileserver/internal/core/model"
)

// Observer is told about handle transitions of a Cache.
type Observer interface {
	ArchiveOpened(path string)
	ArchiveClosed(path string)
	ArchiveReused(path string)
}

type nopObserver struct{}

func (nopObserver) ArchiveOpened(string) {}
func (nopObserver) ArchiveClosed(string) {}
func (nopObserver) ArchiveReused(string) {}

// Opener opens an archive; Open is the default.
type Opener func(ctx context.Context, path string) (*Archive, error)

// Cache holds at most one open archive. Requests for the open path share the
// handle; a request for another path closes it before opening the new one.
type Cache struct {
	mu   sync.RWMutex
	cur  *Archive
	open Opener
	obs  Observer
}

type CacheOption func(*Cache)

func WithObserver(o Observer) CacheOption {
	return func(c *Cache) {
		if o != nil {
			c.obs = o
		}
	}
}

func WithOpener(fn Opener) CacheOption {
	return func(c *Cache) {
		if fn != nil {
			c.open = fn
		}
	}
}

func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{open: Open, obs: nopObserver{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CurrentPath returns the path of the open archive, or "".
func (c *Cache) CurrentPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cur == nil {
		return ""
	}
	return c.cur.path
}

// Tile reads one tile from the archive at path, switching the slot if needed.
func (c *Cache) Tile(ctx context.Context, path string, z, x, y int) ([]byte, bool, error) {
	var data []byte
	var found bool
	err := c.With(ctx, path, func(a *Archive) error {
		var err error
		data, found, err = a.Tile(ctx, z, x, y)
		return err
	})
	return data, found, err
}

// Info returns the descriptor of the archive at path. It does not take over
// the slot, so tile clients keep the open archive.
func (c *Cache) Info(ctx context.Context, path string) (model.Tileset, error) {
	var info model.Tileset
	err := c.Peek(ctx, path, func(a *Archive) error {
		info = a.Info()
		return nil
	})
	return info, err
}

// Peek runs fn against the archive at path without switching the slot. The
// open archive is shared when it is path; otherwise a short-lived handle is
// opened for fn and closed afterwards.
func (c *Cache) Peek(ctx context.Context, path string, fn func(*Archive) error) error {
	c.mu.RLock()
	if c.cur != nil && c.cur.path == path {
		defer c.mu.RUnlock()
		c.obs.ArchiveReused(path)
		return fn(c.cur)
	}
	c.mu.RUnlock()

	a, err := c.open(ctx, path)
	if err != nil {
		return err
	}
	c.obs.ArchiveOpened(path)
	defer func() {
		_ = a.Close()
		c.obs.ArchiveClosed(path)
	}()
	return fn(a)
}

// With runs fn against the archive at path. The handle stays valid until fn
// returns: concurrent users of the same path share a read lock, a switch to
// another path waits for them.
func (c *Cache) With(ctx context.Context, path string, fn func(*Archive) error) error {
	c.mu.RLock()
	if c.cur != nil && c.cur.path == path {
		defer c.mu.RUnlock()
		c.obs.ArchiveReused(path)
		return fn(c.cur)
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	a, err := c.switchLocked(ctx, path)
	if err != nil {
		return err
	}
	return fn(a)
}

// SwitchTo makes path the open archive.
func (c *Cache) SwitchTo(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.switchLocked(ctx, path)
	return err
}

func (c *Cache) switchLocked(ctx context.Context, path string) (*Archive, error) {
	if c.cur != nil {
		if c.cur.path == path {
			c.obs.ArchiveReused(path)
			return c.cur, nil
		}
		_ = c.closeLocked()
	}
	a, err := c.open(ctx, path)
	if err != nil {
		return nil, err
	}
	c.cur = a
	c.obs.ArchiveOpened(path)
	return a, nil
}

func (c *Cache) closeLocked() error {
	if c.cur == nil {
		return nil
	}
	old := c.cur
	c.cur = nil
	err := old.Close()
	c.obs.ArchiveClosed(old.path)
	return err
}

// Close closes the open archive, if any.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}
