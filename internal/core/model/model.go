// Package model defines core domain types shared across the service.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/tileserver/internal/tile"
)

// Zoom sentinels: any real zoom level narrows them on the first fold.
const (
	UnsetMinZoom = 999
	UnsetMaxZoom = -1
)

// DefaultBounds is used when a tileset does not declare its extent.
var DefaultBounds = orb.Bound{Min: orb.Point{22, 40.5}, Max: orb.Point{28, 45}}

// Kind tells the two tile store backends apart.
type Kind int

const (
	KindArchive Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindArchive:
		return "mbtiles"
	case KindDirectory:
		return "tiles"
	default:
		return "unknown"
	}
}

type Center struct {
	Lon  float64
	Lat  float64
	Zoom int
}

// Tileset describes one tile collection. Center is derived from the bounds
// and changes only through SetBounds.
type Tileset struct {
	TilesetName string
	Name        string
	Description string
	Version     string
	MinZoom     int
	MaxZoom     int

	bounds orb.Bound
	center Center
}

func NewTileset(tilesetName string) Tileset {
	t := Tileset{
		TilesetName: tilesetName,
		MinZoom:     UnsetMinZoom,
		MaxZoom:     UnsetMaxZoom,
	}
	t.SetBounds(DefaultBounds)
	return t
}

func (t *Tileset) SetBounds(b orb.Bound) {
	t.bounds = b
	c := b.Center()
	t.center = Center{
		Lon:  c.Lon(),
		Lat:  c.Lat(),
		Zoom: tile.ZoomForSpan(b.Right() - b.Left()),
	}
}

func (t Tileset) Bounds() orb.Bound { return t.bounds }

func (t Tileset) Center() Center { return t.center }

// BoundsString formats the extent as "west,south,east,north".
func (t Tileset) BoundsString() string {
	b := t.bounds
	return joinFloats(b.Left(), b.Bottom(), b.Right(), b.Top())
}

// CenterString formats the center as "lon,lat,zoom".
func (t Tileset) CenterString() string {
	return joinFloats(t.center.Lon, t.center.Lat, float64(t.center.Zoom))
}

var errUnknownKey = errors.New("unknown metadata key")

// SetMetadata applies one key/value row of an archive's metadata table.
// Unknown keys return an error wrapping errUnknownKey and leave t unchanged.
func (t *Tileset) SetMetadata(key, value string) error {
	switch key {
	case "name":
		t.Name = value
	case "description":
		t.Description = value
	case "version":
		t.Version = value
	case "minzoom":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("minzoom %q: %w", value, err)
		}
		t.MinZoom = n
	case "maxzoom":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("maxzoom %q: %w", value, err)
		}
		t.MaxZoom = n
	case "bounds":
		b, err := ParseBounds(value)
		if err != nil {
			return err
		}
		t.SetBounds(b)
	default:
		return fmt.Errorf("%w: %s", errUnknownKey, key)
	}
	return nil
}

// IsUnknownKey reports whether err came from a metadata key the model ignores.
func IsUnknownKey(err error) bool { return errors.Is(err, errUnknownKey) }

// ParseBounds reads "west,south,east,north".
func ParseBounds(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bounds %q: expected 4 comma-separated values", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bounds %q: %w", s, err)
		}
		v[i] = f
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

// TilesetView is the JSON shape served by the tileset discovery endpoint.
type TilesetView struct {
	TilesetName string     `json:"tilesetName"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Version     string     `json:"version"`
	MinZoom     int        `json:"minZoom"`
	MaxZoom     int        `json:"maxZoom"`
	Bounds      [4]float64 `json:"bounds"`
	Center      [3]float64 `json:"center"`
	Type        string     `json:"type"`
	URL         string     `json:"url"`
}

func (t Tileset) View(kind Kind, url string) TilesetView {
	b := t.bounds
	return TilesetView{
		TilesetName: t.TilesetName,
		Name:        t.Name,
		Description: t.Description,
		Version:     t.Version,
		MinZoom:     t.MinZoom,
		MaxZoom:     t.MaxZoom,
		Bounds:      [4]float64{b.Left(), b.Bottom(), b.Right(), b.Top()},
		Center:      [3]float64{t.center.Lon, t.center.Lat, float64(t.center.Zoom)},
		Type:        kind.String(),
		URL:         url,
	}
}

// StaticFile describes one file under the static directory.
type StaticFile struct {
	Name        string
	ContentType string
	Size        int64
}

// SizeText is the size in whole KB from 1024 bytes up, in bytes below.
func (f StaticFile) SizeText() string {
	if f.Size >= 1024 {
		return fmt.Sprintf("%d KB", f.Size/1024)
	}
	return fmt.Sprintf("%d B", f.Size)
}

func joinFloats(vs ...float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
