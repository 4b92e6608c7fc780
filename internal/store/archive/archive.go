// Package archive reads tiles and metadata from MBTiles (SQLite) archives.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mohammed-shakir/tileserver/internal/core/model"
	"github.com/mohammed-shakir/tileserver/internal/tile"
)

const (
	tileQuery     = `SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`
	metadataQuery = `SELECT name, value FROM metadata`
)

var (
	// ErrOpen is wrapped by every *OpenError.
	ErrOpen = errors.New("archive open failed")
	// ErrClosed is returned when a closed archive is queried.
	ErrClosed = errors.New("archive closed")
)

// OpenError reports why an archive could not be opened. It matches ErrOpen
// and the underlying cause with errors.Is.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open archive %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() []error { return []error{ErrOpen, e.Err} }

// Archive is one open read-only MBTiles file.
type Archive struct {
	path string
	info model.Tileset

	mu sync.RWMutex
	db *sql.DB
}

// Open opens the archive at path read-only and reads its metadata table.
// A missing file is reported as an *OpenError wrapping fs.ErrNotExist.
func Open(ctx context.Context, path string) (*Archive, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	if st.IsDir() {
		return nil, &OpenError{Path: path, Err: fmt.Errorf("is a directory: %w", fs.ErrNotExist)}
	}

	dsn, err := readOnlyDSN(path)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &OpenError{Path: path, Err: err}
	}

	info := model.NewTileset(filepath.Base(path))
	if err := readMetadata(ctx, db, &info); err != nil {
		_ = db.Close()
		return nil, &OpenError{Path: path, Err: err}
	}

	return &Archive{path: path, info: info, db: db}, nil
}

// readOnlyDSN builds a read-only SQLite URI for path. The path is escaped
// since SQLite percent-decodes URI paths.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro"}
	return u.String(), nil
}

func readMetadata(ctx context.Context, db *sql.DB, info *model.Tileset) error {
	rows, err := db.QueryContext(ctx, metadataQuery)
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("scan metadata row: %w", err)
		}
		// malformed values keep the defaults
		_ = info.SetMetadata(name.String, value.String)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate metadata: %w", err)
	}
	return nil
}

func (a *Archive) Path() string { return a.path }

// Info returns the descriptor read when the archive was opened.
func (a *Archive) Info() model.Tileset { return a.info }

// Tile looks up one tile. y follows the sign convention of tile.TMSRow.
// A missing tile is (nil, false, nil).
func (a *Archive) Tile(ctx context.Context, z, x, y int) ([]byte, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, false, ErrClosed
	}

	var data []byte
	err := a.db.QueryRowContext(ctx, tileQuery, z, x, tile.TMSRow(z, y)).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("query tile %d/%d/%d in %s: %w", z, x, y, a.path, err)
	}
	return data, len(data) > 0, nil
}

// Close releases the database handle. Closing twice is a no-op.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	if err != nil {
		return fmt.Errorf("close archive %s: %w", a.path, err)
	}
	return nil
}
