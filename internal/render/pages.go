package render

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/mohammed-shakir/tileserver/internal/core/model"
)

//go:embed templates
var embedded embed.FS

// Template file names.
const (
	TplHome          = "home.html"
	TplPreview       = "preview.html"
	TplServices      = "services.html"
	TplArchiveItem   = "mbtilesserviceinfo.html"
	TplDirectoryItem = "tileserviceinfo.html"
	TplOruxmaps      = "oruxmaps.xml"
	TplStaticFiles   = "staticfiles.html"
	TplStaticItem    = "staticfileinfo.html"
	TplBadRequest    = "badrequest.html"
	TplInternalError = "internalservererror.html"
	TplFileNotFound  = "filenotfound.html"
	TplRedirect      = "redirect.html"
)

type listCopy struct{ title, details string }

var listTexts = map[model.Kind]listCopy{
	model.KindArchive: {
		title:   "Available MBTiles Tilesets",
		details: "MBTiles files found in the mbtiles directory. Rows are addressed in XYZ; pass a negative y to address TMS rows directly.",
	},
	model.KindDirectory: {
		title:   "Available Directory Tilesets",
		details: "Tile directories found in the tiles directory, laid out as <name>/<z>/<x>/<y>.png.",
	},
}

var staticTexts = listCopy{
	title:   "Static Files",
	details: "Files found in the static directory.",
}

// URLFor returns the tile URL template clients use for a tileset.
func URLFor(kind model.Kind, home, tilesetName string) string {
	switch kind {
	case model.KindArchive:
		return fmt.Sprintf("%s/mbtiles?tileset=%s&z={z}&x={x}&y={y}", home, tilesetName)
	case model.KindDirectory:
		return fmt.Sprintf("%s/tiles/%s/{z}/{x}/{y}.png", home, tilesetName)
	default:
		return ""
	}
}

// StaticURL returns the download address of a static file.
func StaticURL(home, name string) string {
	return fmt.Sprintf("%s/static?filename=%s", home, name)
}

// Pages renders the server's pages. Templates found in the override
// directory take precedence over the built-in ones.
type Pages struct {
	fs  afero.Fs
	log *slog.Logger
}

// NewPages builds a renderer over the built-in templates, layered under dir
// on fsys when dir is set.
func NewPages(fsys afero.Fs, dir string, log *slog.Logger) *Pages {
	if log == nil {
		log = slog.Default()
	}
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err)
	}
	var base afero.Fs = afero.FromIOFS{FS: sub}
	if dir != "" {
		if fsys == nil {
			fsys = afero.NewOsFs()
		}
		base = afero.NewCopyOnWriteFs(base, afero.NewBasePathFs(afero.NewReadOnlyFs(fsys), dir))
	}
	return &Pages{fs: afero.NewReadOnlyFs(base), log: log.With("component", "render")}
}

// Template returns the text of the named template, or "" when it cannot be read.
func (p *Pages) Template(name string) string {
	b, err := afero.ReadFile(p.fs, name)
	if err != nil {
		p.log.Warn("template unavailable", "template", name, "error", err)
		return ""
	}
	return string(b)
}

func (p *Pages) Home(home string) string {
	return Apply(p.Template(TplHome), Values{"url": home})
}

// Preview renders the map viewer for one tileset.
func (p *Pages) Preview(kind model.Kind, ts model.Tileset, home string) string {
	c := ts.Center()
	return Apply(p.Template(TplPreview), Values{
		"latitude":    formatFloat(c.Lat),
		"longitude":   formatFloat(c.Lon),
		"zoom_level":  strconv.Itoa(c.Zoom),
		"min_zoom":    strconv.Itoa(ts.MinZoom),
		"max_zoom":    strconv.Itoa(ts.MaxZoom),
		"name":        ts.Name,
		"attribution": jsString(ts.Name),
		"url":         URLFor(kind, home, ts.TilesetName),
	})
}

var jsQuoter = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`, "</", `<\/`)

// jsString escapes s for use inside a single-quoted JavaScript literal.
func jsString(s string) string { return jsQuoter.Replace(s) }

// Oruxmaps renders the OruxMaps online-map definition for a tileset.
func (p *Pages) Oruxmaps(ts model.Tileset, url string) string {
	return Apply(p.Template(TplOruxmaps), Values{
		"url":      url,
		"name":     ts.Name,
		"min_zoom": strconv.Itoa(ts.MinZoom),
		"max_zoom": strconv.Itoa(ts.MaxZoom),
	})
}

// TilesetList renders the listing page of one store kind.
func (p *Pages) TilesetList(kind model.Kind, list []model.Tileset, home string) string {
	tpl := TplArchiveItem
	if kind == model.KindDirectory {
		tpl = TplDirectoryItem
	}
	item := p.Template(tpl)

	var items strings.Builder
	for _, ts := range list {
		url := URLFor(kind, home, ts.TilesetName)
		items.WriteString(Apply(item, Values{
			"tileset_name": ts.TilesetName,
			"name":         ts.Name,
			"version":      ts.Version,
			"description":  ts.Description,
			"min_zoom":     strconv.Itoa(ts.MinZoom),
			"max_zoom":     strconv.Itoa(ts.MaxZoom),
			"bounds":       ts.BoundsString(),
			"center":       ts.CenterString(),
			"oruxmaps":     p.Oruxmaps(ts, url),
			"url":          url,
			"home":         home,
		}))
	}

	text := listTexts[kind]
	return Apply(p.Template(TplServices), Values{
		"title":    text.title,
		"header":   text.title,
		"details":  text.details,
		"services": items.String(),
	})
}

func (p *Pages) StaticList(list []model.StaticFile, home string) string {
	item := p.Template(TplStaticItem)
	var items strings.Builder
	for _, f := range list {
		items.WriteString(Apply(item, Values{
			"name":         f.Name,
			"content_type": f.ContentType,
			"file_size":    f.SizeText(),
			"url":          StaticURL(home, f.Name),
		}))
	}
	return Apply(p.Template(TplStaticFiles), Values{
		"title":        staticTexts.title,
		"header":       staticTexts.title,
		"details":      staticTexts.details,
		"static_files": items.String(),
	})
}

// BadRequest renders the 400 page. msg is inserted verbatim.
func (p *Pages) BadRequest(msg string) string {
	return Apply(p.Template(TplBadRequest), Values{"error_message": msg})
}

// InternalError renders the 500 page. msg is inserted verbatim.
func (p *Pages) InternalError(msg string) string {
	return Apply(p.Template(TplInternalError), Values{"error_message": msg})
}

func (p *Pages) FileNotFound(name string) string {
	return Apply(p.Template(TplFileNotFound), Values{"error_message": fmt.Sprintf("File '%s' was not found.", name)})
}

func (p *Pages) RedirectHint(home string) string {
	return Apply(p.Template(TplRedirect), Values{"url": home})
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
