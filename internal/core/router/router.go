// Package router maps the tile server's HTTP surface onto the tile stores.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"

	"github.com/mohammed-shakir/tileserver/internal/core/model"
	"github.com/mohammed-shakir/tileserver/internal/core/observability"
	"github.com/mohammed-shakir/tileserver/internal/render"
)

// ArchiveStore resolves MBTiles tilesets by name.
type ArchiveStore interface {
	Tile(ctx context.Context, name string, z, x, y int) ([]byte, bool, error)
	Describe(ctx context.Context, name string) (model.Tileset, error)
	List(ctx context.Context) ([]model.Tileset, error)
}

// DirectoryStore resolves z/x/y.png directory tilesets by name.
type DirectoryStore interface {
	Tile(tileset string, z, x, y int) ([]byte, bool, error)
	Describe(tileset string) (model.Tileset, bool, error)
	List() ([]model.Tileset, error)
}

// StaticStore lists and opens the static files.
type StaticStore interface {
	Open(name string) (afero.File, model.StaticFile, error)
	List() ([]model.StaticFile, error)
}

type Deps struct {
	Logger      *slog.Logger
	Archives    ArchiveStore
	Directories DirectoryStore
	Static      StaticStore
	Pages       *render.Pages
	// NoTile is served in place of missing tiles.
	NoTile []byte
	// Home returns the server's base URL, used in page links and tile URLs.
	Home func() string
}

type Handlers struct {
	log    *slog.Logger
	arch   ArchiveStore
	dirs   DirectoryStore
	static StaticStore
	pages  *render.Pages
	noTile []byte
	home   func() string
}

func New(d Deps) *Handlers {
	h := &Handlers{
		log:    d.Logger,
		arch:   d.Archives,
		dirs:   d.Directories,
		static: d.Static,
		pages:  d.Pages,
		noTile: d.NoTile,
		home:   d.Home,
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.pages == nil {
		h.pages = render.NewPages(nil, "", h.log)
	}
	if h.noTile == nil {
		h.noTile = render.DefaultNoTile()
	}
	if h.home == nil {
		h.home = func() string { return "" }
	}
	return h
}

// Mount registers the tile server routes on r.
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/", h.wrap("/", h.homePage))
	r.Get("/preview/mbtiles", h.wrap("/preview/mbtiles", h.previewArchive))
	r.Get("/preview/tiles", h.wrap("/preview/tiles", h.previewDirectory))
	r.Get("/mbtiles", h.wrap("/mbtiles", h.archive))
	r.Get("/tiles", h.wrap("/tiles", h.directoryList))
	r.Get("/tiles/{tileset}/{z}/{x}/{y}.png", h.wrap("/tiles/{tileset}", h.directoryTile))
	r.Get("/tiles/*", h.wrap("/tiles/*", h.noTileResponse))
	r.Get("/availabletilesets", h.wrap("/availabletilesets", h.availableTilesets))
	r.Get("/static", h.wrap("/static", h.staticFiles))
	r.Get("/redirect", h.wrap("/redirect", h.redirect))
	r.NotFound(h.wrap("notfound", h.notFound))
}

// BadRequest is answered with 400 and the bad-request page.
type BadRequest struct {
	Msg string
}

func (e *BadRequest) Error() string { return e.Msg }

func badRequestf(format string, args ...any) error {
	return &BadRequest{Msg: fmt.Sprintf(format, args...)}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

type statusWriter struct {
	http.ResponseWriter
	code  int
	wrote bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.code = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// wrap turns a handler's error or panic into an error page and records the
// request metrics under route.
func (h *Handlers) wrap(route string, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.fail(sw, r, fmt.Errorf("%w: %v\n\n%s", errPanic, rec, debug.Stack()))
			}
			observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
		}()
		if err := fn(sw, r); err != nil {
			h.fail(sw, r, err)
		}
	}
}

func (h *Handlers) fail(w *statusWriter, r *http.Request, err error) {
	if w.wrote {
		h.log.ErrorContext(r.Context(), "handler failed after writing response", "path", r.URL.Path, "error", err)
		return
	}
	var br *BadRequest
	if errors.As(err, &br) {
		h.HTML(w, http.StatusBadRequest, h.pages.BadRequest(br.Msg))
		return
	}
	h.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	msg := err.Error()
	if !errors.Is(err, errPanic) {
		msg += "\n\n" + string(debug.Stack())
	}
	h.HTML(w, http.StatusInternalServerError, h.pages.InternalError(msg))
}

var errPanic = errors.New("panic")

// HTML writes an HTML page with the given status.
func (h *Handlers) HTML(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
