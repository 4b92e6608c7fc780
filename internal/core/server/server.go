// Package server runs the tile server engine: it prepares the root
// directory, wires the stores into the router and owns the listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"
	"github.com/spf13/afero"

	"github.com/mohammed-shakir/tileserver/internal/core/config"
	"github.com/mohammed-shakir/tileserver/internal/core/health"
	"github.com/mohammed-shakir/tileserver/internal/core/middleware"
	"github.com/mohammed-shakir/tileserver/internal/core/observability"
	"github.com/mohammed-shakir/tileserver/internal/core/router"
	"github.com/mohammed-shakir/tileserver/internal/lifecycle"
	"github.com/mohammed-shakir/tileserver/internal/render"
	"github.com/mohammed-shakir/tileserver/internal/store/archive"
	"github.com/mohammed-shakir/tileserver/internal/store/directory"
	"github.com/mohammed-shakir/tileserver/internal/store/static"
)

// Root layout.
const (
	ArchiveDir   = "mbtiles"
	DirectoryDir = "tiles"
	StaticDir    = "static"
	NoMediaFile  = ".nomedia"
	NoTileFile   = "no_tile.png"
)

var ErrAlreadyStarted = errors.New("engine already started")

type Option func(*Engine)

// WithNotifier sets who hears about start and stop. Defaults to a log notifier.
func WithNotifier(n lifecycle.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithArchiveObserver replaces the archive handle metrics.
func WithArchiveObserver(o archive.Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithFs sets the filesystem for the root layout, directory tilesets,
// static files and template overrides. Archives are always read from disk.
func WithFs(fsys afero.Fs) Option {
	return func(e *Engine) { e.fs = fsys }
}

type Engine struct {
	cfg      config.Config
	log      *slog.Logger
	fs       afero.Fs
	notifier lifecycle.Notifier
	observer archive.Observer

	// op serializes Start and Stop; mu guards the fields below and is
	// never held while waiting on in-flight requests.
	op       sync.Mutex
	mu       sync.RWMutex
	running  bool
	port     int
	root     string
	srv      *http.Server
	ln       net.Listener
	catalog  *archive.Catalog
	serveErr chan error
}

func New(cfg config.Config, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		cfg:      cfg,
		log:      log.With("component", "engine"),
		fs:       afero.NewOsFs(),
		observer: observability.ArchiveMetrics{},
		port:     cfg.Port,
		root:     cfg.RootPath,
	}
	for _, o := range opts {
		o(e)
	}
	if e.notifier == nil {
		e.notifier = lifecycle.Log{L: log}
	}
	return e
}

// Start prepares root and listens on port; port 0 picks a free one.
func (e *Engine) Start(port int, root string) error {
	e.op.Lock()
	defer e.op.Unlock()
	if e.Ready() {
		return ErrAlreadyStarted
	}
	if err := e.start(port, root); err != nil {
		return err
	}
	home, rootPath := e.HomeAddress(), e.RootPath()
	e.log.Info("http listen", "addr", e.Addr(), "root", rootPath)
	e.notify(lifecycle.Started, home, rootPath)
	return nil
}

func (e *Engine) start(port int, root string) error {
	if err := Bootstrap(e.fs, root); err != nil {
		return err
	}
	noTile := LoadNoTile(e.fs, root, e.log)

	catalog := archive.NewCatalog(
		filepath.Join(root, ArchiveDir),
		archive.NewCache(archive.WithObserver(e.observer)),
		e.cfg.MetadataCacheSize,
	)
	handlers := router.New(router.Deps{
		Logger:      e.log,
		Archives:    catalog,
		Directories: directory.New(e.fs, filepath.Join(root, DirectoryDir)),
		Static:      static.New(e.fs, filepath.Join(root, StaticDir)),
		Pages:       render.NewPages(e.fs, e.cfg.TemplatesDir, e.log),
		NoTile:      noTile,
		Home:        e.HomeAddress,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recover(e.log))
	r.Use(middleware.Logging(e.log))
	r.Use(middleware.GetOnly())
	r.Use(middleware.CORS())
	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(e))
	handlers.Mount(r)

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		_ = catalog.Close()
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}

	srv := &http.Server{
		Handler:           gzhttp.GzipHandler(r),
		ReadHeaderTimeout: e.cfg.ReadHeaderTimeout,
		ReadTimeout:       e.cfg.ReadTimeout,
		WriteTimeout:      e.cfg.WriteTimeout,
		IdleTimeout:       e.cfg.IdleTimeout,
	}
	serveErr := make(chan error, 1)

	e.mu.Lock()
	e.port, e.root = port, root
	e.srv, e.ln, e.catalog, e.serveErr = srv, ln, catalog, serveErr
	e.running = true
	e.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	return nil
}

// Stop closes the listener, then the open archive handle. It is safe to
// call before Start and more than once.
func (e *Engine) Stop() error {
	e.op.Lock()
	defer e.op.Unlock()

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	srv, catalog := e.srv, e.catalog
	e.running = false
	e.srv, e.ln, e.catalog = nil, nil, nil
	e.mu.Unlock()

	timeout := e.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown: %w", err))
		_ = srv.Close()
	}
	if err := catalog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close archive: %w", err))
	}

	home, root := e.HomeAddress(), e.RootPath()
	e.log.Info("http shutdown complete", "home", home)
	e.notify(lifecycle.Stopped, home, root)
	return errors.Join(errs...)
}

// Serve starts on the configured port and root and stops when ctx is done
// or the listener fails.
func (e *Engine) Serve(ctx context.Context) error {
	if err := e.Start(e.cfg.Port, e.cfg.RootPath); err != nil {
		return err
	}
	e.mu.RLock()
	serveErr := e.serveErr
	e.mu.RUnlock()

	select {
	case <-ctx.Done():
		return e.Stop()
	case err, ok := <-serveErr:
		stopErr := e.Stop()
		if ok && err != nil {
			return errors.Join(fmt.Errorf("serve: %w", err), stopErr)
		}
		return stopErr
	}
}

func (e *Engine) notify(typ, home, root string) {
	if err := e.notifier.Notify(context.Background(), lifecycle.NewEvent(typ, home, root)); err != nil {
		e.log.Warn("lifecycle notification failed", "event", typ, "error", err)
	}
}

// HomeAddress is the base URL clients use, e.g. http://localhost:1886.
func (e *Engine) HomeAddress() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	host := e.cfg.Host
	if host == "" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(e.port))
}

func (e *Engine) RootPath() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.root
}

// Ready reports whether the engine is listening.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Addr is the listener address, empty when not listening.
func (e *Engine) Addr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.ln == nil {
		return ""
	}
	return e.ln.Addr().String()
}

// Bootstrap creates root with its tileset and static directories and the
// empty marker that keeps media scanners out.
func Bootstrap(fsys afero.Fs, root string) error {
	if strings.TrimSpace(root) == "" {
		return errors.New("root path is empty")
	}
	for _, d := range []string{root, filepath.Join(root, ArchiveDir), filepath.Join(root, DirectoryDir), filepath.Join(root, StaticDir)} {
		if err := fsys.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	marker := filepath.Join(root, NoMediaFile)
	if _, err := fsys.Stat(marker); errors.Is(err, fs.ErrNotExist) {
		if err := afero.WriteFile(fsys, marker, nil, 0o644); err != nil {
			return fmt.Errorf("create %s: %w", marker, err)
		}
	}
	return nil
}

// LoadNoTile returns root/no_tile.png when it holds an image and the
// built-in fallback tile otherwise.
func LoadNoTile(fsys afero.Fs, root string, log *slog.Logger) []byte {
	p := filepath.Join(root, NoTileFile)
	data, err := afero.ReadFile(fsys, p)
	if errors.Is(err, fs.ErrNotExist) {
		return render.DefaultNoTile()
	}
	if err != nil {
		log.Warn("reading fallback tile, using built-in", "path", p, "error", err)
		return render.DefaultNoTile()
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		log.Warn("fallback tile is not an image, using built-in", "path", p, "detected", mt.String())
		return render.DefaultNoTile()
	}
	return data
}
