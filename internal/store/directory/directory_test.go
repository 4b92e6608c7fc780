package directory

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/mohammed-shakir/tileserver/internal/core/model"
)

func newStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return New(fs, "/root/tiles"), fs
}

func TestTilePath_XYZLayout(t *testing.T) {
	s, _ := newStore(t)
	got := s.TilePath("osm", 10, 582, 378)
	want := filepath.Join("/root/tiles", "osm", "10", "582", "378.png")
	if got != want {
		t.Fatalf("path=%q want %q", got, want)
	}
}

func TestTile_FoundMissingAndDirectory(t *testing.T) {
	s, fs := newStore(t)
	if err := afero.WriteFile(fs, s.TilePath("osm", 1, 0, 0), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fs.MkdirAll(s.TilePath("osm", 1, 0, 1), 0o755); err != nil {
		t.Fatal(err)
	}

	data, ok, err := s.Tile("osm", 1, 0, 0)
	if err != nil || !ok || string(data) != "png" {
		t.Fatalf("got data=%q ok=%v err=%v", data, ok, err)
	}
	if _, ok, err := s.Tile("osm", 1, 1, 1); ok || err != nil {
		t.Fatalf("missing tile: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.Tile("osm", 1, 0, 1); ok || err != nil {
		t.Fatalf("directory in place of tile: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.Tile("..", 1, 0, 0); ok || err != nil {
		t.Fatalf("traversal name: ok=%v err=%v", ok, err)
	}
}

func TestDescribeDir_FoldsZoomLevels(t *testing.T) {
	s, fs := newStore(t)
	for _, z := range []string{"3", "7", "5", "notzoom"} {
		if err := fs.MkdirAll(filepath.Join("/root/tiles/osm", z), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := afero.WriteFile(fs, "/root/tiles/osm/12", []byte("file, not a zoom dir"), 0o644); err != nil {
		t.Fatal(err)
	}

	ts, err := s.DescribeDir("/root/tiles/osm")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if ts.TilesetName != "osm" || ts.MinZoom != 3 || ts.MaxZoom != 7 {
		t.Fatalf("got %+v", ts)
	}
}

func TestDescribeDir_EmptyKeepsSentinels(t *testing.T) {
	s, fs := newStore(t)
	if err := fs.MkdirAll("/root/tiles/empty", 0o755); err != nil {
		t.Fatal(err)
	}
	ts, err := s.DescribeDir("/root/tiles/empty")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if ts.MinZoom != model.UnsetMinZoom || ts.MaxZoom != model.UnsetMaxZoom {
		t.Fatalf("sentinels changed: %d/%d", ts.MinZoom, ts.MaxZoom)
	}
}

func TestDescribe_UnknownTileset(t *testing.T) {
	s, fs := newStore(t)
	if err := afero.WriteFile(fs, "/root/tiles/file.png", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"nope", "file.png", "../tiles", ""} {
		if _, ok, err := s.Describe(name); ok || err != nil {
			t.Fatalf("%q: ok=%v err=%v", name, ok, err)
		}
	}
}

func TestList_OnlyDirectories(t *testing.T) {
	s, fs := newStore(t)
	for _, d := range []string{"/root/tiles/a/1", "/root/tiles/b/4"} {
		if err := fs.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := afero.WriteFile(fs, "/root/tiles/readme.txt", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len=%d want 2: %+v", len(list), list)
	}
	names := map[string]int{}
	for _, ts := range list {
		names[ts.TilesetName] = ts.MaxZoom
	}
	if names["a"] != 1 || names["b"] != 4 {
		t.Fatalf("unexpected tilesets: %+v", names)
	}
}

func TestList_MissingRoot(t *testing.T) {
	s, _ := newStore(t)
	list, err := s.List()
	if err != nil || len(list) != 0 {
		t.Fatalf("list=%v err=%v", list, err)
	}
}
