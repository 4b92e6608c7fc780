// Package archivetest builds small MBTiles files for tests.
package archivetest

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// Tile is one row of the tiles table, addressed in stored (TMS) rows.
type Tile struct {
	Zoom, Column, Row int
	Data              []byte
}

const schema = `
CREATE TABLE metadata (name TEXT, value TEXT, PRIMARY KEY (name));
CREATE TABLE tiles (
	zoom_level INTEGER,
	tile_column INTEGER,
	tile_row INTEGER,
	tile_data BLOB,
	PRIMARY KEY (zoom_level, tile_column, tile_row)
);`

// Create writes an MBTiles file at path with the given metadata and tiles.
func Create(t testing.TB, path string, meta map[string]string, tiles ...Tile) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	for k, v := range meta {
		if _, err := db.Exec(`INSERT INTO metadata (name, value) VALUES (?, ?)`, k, v); err != nil {
			t.Fatalf("metadata %s: %v", k, err)
		}
	}
	for _, tl := range tiles {
		if _, err := db.Exec(`INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`,
			tl.Zoom, tl.Column, tl.Row, tl.Data); err != nil {
			t.Fatalf("tile %d/%d/%d: %v", tl.Zoom, tl.Column, tl.Row, err)
		}
	}
}
