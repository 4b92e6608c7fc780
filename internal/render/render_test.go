package render

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/spf13/afero"

	"github.com/mohammed-shakir/tileserver/internal/core/model"
)

func TestApply(t *testing.T) {
	cases := []struct {
		name string
		tpl  string
		v    Values
		want string
	}{
		{"no values", "<p>{{name}}</p>", nil, "<p>{{name}}</p>"},
		{"no tokens", "plain text {name}", Values{"name": "x"}, "plain text {name}"},
		{"repeated", "{{a}}-{{a}}", Values{"a": "1"}, "1-1"},
		{"unknown left verbatim", "{{a}} {{b}}", Values{"a": "1"}, "1 {{b}}"},
		{"values not rescanned", "{{a}}", Values{"a": "{{b}}", "b": "2"}, "{{b}}"},
		{"no escaping", "{{msg}}", Values{"msg": "<b>&</b>"}, "<b>&</b>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Apply(tc.tpl, tc.v); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestApply_EmptyMapIsIdentity(t *testing.T) {
	tpl := "<html>{{title}} {{unknown}}</html>"
	if got := Apply(tpl, Values{}); got != tpl {
		t.Fatalf("got %q", got)
	}
}

func TestURLFor(t *testing.T) {
	home := "http://localhost:1886"
	if got := URLFor(model.KindArchive, home, "foo.mbtiles"); got != home+"/mbtiles?tileset=foo.mbtiles&z={z}&x={x}&y={y}" {
		t.Fatalf("archive url=%q", got)
	}
	if got := URLFor(model.KindDirectory, home, "osm"); got != home+"/tiles/osm/{z}/{x}/{y}.png" {
		t.Fatalf("directory url=%q", got)
	}
	if got := StaticURL(home, "a.json"); got != home+"/static?filename=a.json" {
		t.Fatalf("static url=%q", got)
	}
}

func TestPages_BuiltinTemplates(t *testing.T) {
	p := NewPages(nil, "", nil)
	for _, name := range []string{TplHome, TplPreview, TplServices, TplArchiveItem, TplDirectoryItem,
		TplOruxmaps, TplStaticFiles, TplStaticItem, TplBadRequest, TplInternalError, TplFileNotFound, TplRedirect} {
		if p.Template(name) == "" {
			t.Fatalf("template %s is empty", name)
		}
	}
	if got := p.Template("missing.html"); got != "" {
		t.Fatalf("missing template rendered %q", got)
	}
}

func TestPages_OverrideDirWins(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/tpl/badrequest.html", []byte("BAD: {{error_message}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := NewPages(fsys, "/tpl", nil)

	if got := p.BadRequest("oops <x>"); got != "BAD: oops <x>" {
		t.Fatalf("bad request=%q", got)
	}
	// templates absent from the override dir come from the built-in set
	if !strings.Contains(p.InternalError("boom"), "<pre>boom</pre>") {
		t.Fatalf("internal error page does not embed message")
	}
}

func TestPages_PreviewQuotesAttribution(t *testing.T) {
	p := NewPages(nil, "", nil)
	ts := model.NewTileset("obb.mbtiles")
	ts.Name = `O'Brien's \ maps</script>`

	html := p.Preview(model.KindArchive, ts, "http://h:1")
	if want := `attribution: 'O\'Brien\'s \\ maps<\/script>'`; !strings.Contains(html, want) {
		t.Fatalf("preview missing %q:\n%s", want, html)
	}
	if want := "<title>" + ts.Name + "</title>"; !strings.Contains(html, want) {
		t.Fatalf("title should carry the plain name:\n%s", html)
	}
}

func TestJSString(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain", "plain"},
		{"it's", `it\'s`},
		{`a\b`, `a\\b`},
		{"two\nlines", `two\nlines`},
		{"</script>", `<\/script>`},
	}
	for _, c := range cases {
		if got := jsString(c.in); got != c.want {
			t.Fatalf("jsString(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestPages_Preview(t *testing.T) {
	p := NewPages(nil, "", nil)
	ts := model.NewTileset("foo.mbtiles")
	ts.Name = "Foo"
	ts.MinZoom, ts.MaxZoom = 3, 14

	html := p.Preview(model.KindArchive, ts, "http://h:1")
	for _, want := range []string{
		"setView([42.75, 25], 6)",
		"minZoom: 3",
		"maxZoom: 14",
		"attribution: 'Foo'",
		"'http://h:1/mbtiles?tileset=foo.mbtiles&z={z}&x={x}&y={y}'",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("preview missing %q:\n%s", want, html)
		}
	}
	if strings.Contains(html, "{{") {
		t.Fatalf("unfilled placeholder in preview:\n%s", html)
	}
}

func TestPages_TilesetListJoinsItems(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "/tpl/services.html", []byte("<h1>{{header}}</h1>{{services}}"), 0o644)
	_ = afero.WriteFile(fsys, "/tpl/tileserviceinfo.html", []byte("[{{tileset_name}} {{min_zoom}}-{{max_zoom}} {{url}}]"), 0o644)
	p := NewPages(fsys, "/tpl", nil)

	a := model.NewTileset("a")
	a.MinZoom, a.MaxZoom = 1, 4
	b := model.NewTileset("b")
	b.SetBounds(orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}})

	got := p.TilesetList(model.KindDirectory, []model.Tileset{a, b}, "http://h")
	want := "<h1>Available Directory Tilesets</h1>" +
		"[a 1-4 http://h/tiles/a/{z}/{x}/{y}.png]" +
		"[b 999--1 http://h/tiles/b/{z}/{x}/{y}.png]"
	if got != want {
		t.Fatalf("got  %q\nwant %q", got, want)
	}
}

func TestPages_ArchiveListEmbedsOruxmaps(t *testing.T) {
	p := NewPages(nil, "", nil)
	ts := model.NewTileset("foo.mbtiles")
	ts.Name = "Foo"
	html := p.TilesetList(model.KindArchive, []model.Tileset{ts}, "http://h")
	if !strings.Contains(html, "<onlinemapsource uid=\"Foo\">") {
		t.Fatalf("oruxmaps fragment missing:\n%s", html)
	}
	if !strings.Contains(html, "22,40.5,28,45") || !strings.Contains(html, "25,42.75,6") {
		t.Fatalf("bounds or center missing:\n%s", html)
	}
}

func TestPages_StaticList(t *testing.T) {
	p := NewPages(nil, "", nil)
	html := p.StaticList([]model.StaticFile{{Name: "a.json", ContentType: "application/json", Size: 3000}}, "http://h")
	for _, want := range []string{`href="http://h/static?filename=a.json"`, "application/json", "2 KB"} {
		if !strings.Contains(html, want) {
			t.Fatalf("static list missing %q:\n%s", want, html)
		}
	}
}

func TestDefaultNoTile_IsPNG(t *testing.T) {
	data := DefaultNoTile()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != TileSize || b.Dy() != TileSize {
		t.Fatalf("size=%v", b)
	}
	if &DefaultNoTile()[0] != &data[0] {
		t.Fatalf("fallback image regenerated")
	}
}
