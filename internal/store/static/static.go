// Package static lists and serves the files of the static directory.
package static

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/mohammed-shakir/tileserver/internal/core/model"
)

const defaultContentType = "application/octet-stream"

type Store struct {
	fs   afero.Fs
	root string
}

func New(fsys afero.Fs, root string) *Store {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Store{fs: fsys, root: filepath.Clean(root)}
}

func (s *Store) Root() string { return s.root }

// Resolve joins name to the static root. It reports false for an empty name,
// for names that resolve to the root itself and for names that leave it.
func (s *Store) Resolve(name string) (string, bool) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "", false
	}
	p := filepath.Join(s.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return p, true
}

// Open opens the named regular file. A missing file, a directory or an
// invalid name is reported as fs.ErrNotExist.
func (s *Store) Open(name string) (afero.File, model.StaticFile, error) {
	p, ok := s.Resolve(name)
	if !ok {
		return nil, model.StaticFile{}, fmt.Errorf("static file %q: %w", name, fs.ErrNotExist)
	}
	st, err := s.fs.Stat(p)
	if err != nil {
		return nil, model.StaticFile{}, fmt.Errorf("static file %q: %w", name, err)
	}
	if !st.Mode().IsRegular() {
		return nil, model.StaticFile{}, fmt.Errorf("static file %q is not a regular file: %w", name, fs.ErrNotExist)
	}
	f, err := s.fs.Open(p)
	if err != nil {
		return nil, model.StaticFile{}, fmt.Errorf("open static file %q: %w", name, err)
	}
	return f, describe(st), nil
}

// List describes the regular files directly under the root, sorted by name.
func (s *Store) List() ([]model.StaticFile, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list static files in %s: %w", s.root, err)
	}
	out := make([]model.StaticFile, 0, len(entries))
	for _, e := range entries {
		if !e.Mode().IsRegular() {
			continue
		}
		out = append(out, describe(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func describe(st fs.FileInfo) model.StaticFile {
	return model.StaticFile{
		Name:        st.Name(),
		ContentType: ContentTypeFor(st.Name()),
		Size:        st.Size(),
	}
}

// ContentTypeFor guesses a content type from the file extension.
func ContentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return defaultContentType
}
