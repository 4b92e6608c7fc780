package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/tileserver/internal/core/model"
	"github.com/mohammed-shakir/tileserver/internal/core/observability"
	mylog "github.com/mohammed-shakir/tileserver/internal/logger"
	"github.com/mohammed-shakir/tileserver/internal/render"
	"github.com/mohammed-shakir/tileserver/internal/store/archive"
	"github.com/mohammed-shakir/tileserver/internal/tile"
)

const (
	msgTilesetRequired = "'tileset' is required URL parameter but was not provided"
	msgTileRequired    = "'tileset', 'z', 'x' and 'y' are required URL parameters"
)

func msgUnavailable(name string) string {
	return fmt.Sprintf("Tileset with name '%s' is not available. Check the name of the tileset and try again.", name)
}

func (h *Handlers) homePage(w http.ResponseWriter, _ *http.Request) error {
	h.HTML(w, http.StatusOK, h.pages.Home(h.home()))
	return nil
}

// notFound answers unknown paths with the help page.
func (h *Handlers) notFound(w http.ResponseWriter, _ *http.Request) error {
	h.HTML(w, http.StatusOK, h.pages.Home(h.home()))
	return nil
}

func requiredTileset(r *http.Request) (string, error) {
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("tileset"))
	if len(q) == 0 || name == "" {
		return "", badRequestf(msgTilesetRequired)
	}
	return name, nil
}

// unknownArchive reports describe errors that mean "no such tileset".
func unknownArchive(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, archive.ErrInvalidName)
}

func (h *Handlers) previewArchive(w http.ResponseWriter, r *http.Request) error {
	name, err := requiredTileset(r)
	if err != nil {
		return err
	}
	ts, err := h.arch.Describe(r.Context(), name)
	if unknownArchive(err) {
		return badRequestf("%s", msgUnavailable(name))
	}
	if err != nil {
		return fmt.Errorf("describe archive %q: %w", name, err)
	}
	h.HTML(w, http.StatusOK, h.pages.Preview(model.KindArchive, ts, h.home()))
	return nil
}

func (h *Handlers) previewDirectory(w http.ResponseWriter, r *http.Request) error {
	name, err := requiredTileset(r)
	if err != nil {
		return err
	}
	ts, ok, err := h.dirs.Describe(name)
	if err != nil {
		return fmt.Errorf("describe directory tileset %q: %w", name, err)
	}
	if !ok {
		return badRequestf("%s", msgUnavailable(name))
	}
	h.HTML(w, http.StatusOK, h.pages.Preview(model.KindDirectory, ts, h.home()))
	return nil
}

// archive lists the archives without query parameters and serves one tile
// with them.
func (h *Handlers) archive(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	if len(q) == 0 {
		list := h.listArchives(r)
		h.HTML(w, http.StatusOK, h.pages.TilesetList(model.KindArchive, list, h.home()))
		return nil
	}

	name := strings.TrimSpace(q.Get("tileset"))
	if name == "" {
		return badRequestf(msgTileRequired)
	}
	c, err := tile.ParseCoord(q.Get("z"), q.Get("x"), q.Get("y"))
	if err != nil {
		return badRequestf("%s: %v", msgTileRequired, err)
	}

	ctx := mylog.WithTileset(r.Context(), name)
	data, ok, err := h.arch.Tile(ctx, name, c.Z, c.X, c.Y)
	switch {
	case err != nil && !unknownArchive(err):
		h.log.WarnContext(ctx, "archive tile read failed", "tile", c.String(), "error", err)
		h.tile(w, r, model.KindArchive, nil, observability.OutcomeError)
	case ok:
		h.tile(w, r, model.KindArchive, data, observability.OutcomeHit)
	default:
		h.tile(w, r, model.KindArchive, nil, observability.OutcomeFallback)
	}
	return nil
}

func (h *Handlers) directoryList(w http.ResponseWriter, r *http.Request) error {
	list, err := h.dirs.List()
	if err != nil {
		h.log.WarnContext(r.Context(), "listing directory tilesets", "error", err)
	}
	h.HTML(w, http.StatusOK, h.pages.TilesetList(model.KindDirectory, list, h.home()))
	return nil
}

// directoryTile serves /tiles/{tileset}/{z}/{x}/{y}.png. Unparseable
// coordinates address no file and get the fallback image.
func (h *Handlers) directoryTile(w http.ResponseWriter, r *http.Request) error {
	name := chi.URLParam(r, "tileset")
	c, err := tile.ParseCoord(chi.URLParam(r, "z"), chi.URLParam(r, "x"), chi.URLParam(r, "y"))
	if err != nil {
		h.tile(w, r, model.KindDirectory, nil, observability.OutcomeFallback)
		return nil
	}
	ctx := mylog.WithTileset(r.Context(), name)
	data, ok, err := h.dirs.Tile(name, c.Z, c.X, c.Y)
	switch {
	case err != nil:
		h.log.WarnContext(ctx, "directory tile read failed", "tile", c.String(), "error", err)
		h.tile(w, r, model.KindDirectory, nil, observability.OutcomeError)
	case ok:
		h.tile(w, r, model.KindDirectory, data, observability.OutcomeHit)
	default:
		h.tile(w, r, model.KindDirectory, nil, observability.OutcomeFallback)
	}
	return nil
}

func (h *Handlers) noTileResponse(w http.ResponseWriter, r *http.Request) error {
	h.tile(w, r, model.KindDirectory, nil, observability.OutcomeFallback)
	return nil
}

// tile writes a PNG body, the fallback image when data is empty.
func (h *Handlers) tile(w http.ResponseWriter, r *http.Request, kind model.Kind, data []byte, outcome string) {
	if len(data) == 0 {
		data = h.noTile
		if outcome == observability.OutcomeHit {
			outcome = observability.OutcomeFallback
		}
	}
	observability.ObserveTile(kind.String(), outcome)

	etag := ETag(data)
	hdr := w.Header()
	hdr.Set("Content-Type", "image/png")
	hdr.Set("ETag", etag)
	if matchesETag(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	hdr.Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ETag is the strong validator of a response body.
func ETag(data []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(data))
}

func matchesETag(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "*" || strings.TrimPrefix(part, "W/") == etag {
			return true
		}
	}
	return false
}

func (h *Handlers) listArchives(r *http.Request) []model.Tileset {
	list, err := h.arch.List(r.Context())
	if err != nil {
		h.log.WarnContext(r.Context(), "listing archives", "error", err)
	}
	return list
}

// availableTilesets returns every tileset as JSON, archives first.
func (h *Handlers) availableTilesets(w http.ResponseWriter, r *http.Request) error {
	home := h.home()
	out := make([]model.TilesetView, 0)
	for _, ts := range h.listArchives(r) {
		out = append(out, ts.View(model.KindArchive, render.URLFor(model.KindArchive, home, ts.TilesetName)))
	}
	dirs, err := h.dirs.List()
	if err != nil {
		h.log.WarnContext(r.Context(), "listing directory tilesets", "error", err)
	}
	for _, ts := range dirs {
		out = append(out, ts.View(model.KindDirectory, render.URLFor(model.KindDirectory, home, ts.TilesetName)))
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}

func (h *Handlers) staticFiles(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	if len(q) == 0 {
		list, err := h.static.List()
		if err != nil {
			h.log.WarnContext(r.Context(), "listing static files", "error", err)
		}
		h.HTML(w, http.StatusOK, h.pages.StaticList(list, h.home()))
		return nil
	}

	name := q.Get("filename")
	f, info, err := h.static.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		h.HTML(w, http.StatusNotFound, h.pages.FileNotFound(name))
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat static file %q: %w", name, err)
	}
	w.Header().Set("Content-Type", info.ContentType)
	http.ServeContent(w, r, info.Name, st.ModTime(), f)
	return nil
}

// redirect rewrites {quadkey} in url and sends the client there. Requests
// that do not describe a redirect fall through to the help page.
func (h *Handlers) redirect(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	if len(q) == 0 {
		h.HTML(w, http.StatusOK, h.pages.RedirectHint(h.home()))
		return nil
	}
	target := q.Get("url")
	c, err := tile.ParseCoord(q.Get("z"), q.Get("x"), q.Get("y"))
	if q.Get("quadkey") != "true" || target == "" || err != nil {
		h.HTML(w, http.StatusOK, h.pages.Home(h.home()))
		return nil
	}
	w.Header().Set("Location", strings.ReplaceAll(target, "{quadkey}", c.QuadKey()))
	w.WriteHeader(http.StatusSeeOther)
	return nil
}
