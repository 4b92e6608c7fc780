// Package tile converts between XYZ, TMS and quadkey tile addressing.
package tile

import (
	"errors"
	"fmt"
	"strconv"
)

// MaxZoom is the deepest zoom level the span lookup resolves to.
const MaxZoom = 20

// MaxRequestZoom bounds requested zoom levels so tile indexes fit in an int
// and a quadkey stays short.
const MaxRequestZoom = 30

// ErrZoomRange is returned by ParseCoord for zoom levels outside
// [0, MaxRequestZoom].
var ErrZoomRange = errors.New("zoom out of range")

// QuadKey encodes z/x/y as a Bing-style quadkey, most significant digit first.
// The result has exactly z digits; z <= 0 yields the empty string.
func QuadKey(z, x, y int) string {
	if z <= 0 {
		return ""
	}
	key := make([]byte, 0, z)
	for i := z; i > 0; i-- {
		digit := byte('0')
		mask := 1 << uint(i-1)
		if x&mask != 0 {
			digit++
		}
		if y&mask != 0 {
			digit += 2
		}
		key = append(key, digit)
	}
	return string(key)
}

// TMSRow maps a requested row onto the row stored in an archive.
//
// A positive y is flipped between the XYZ and TMS conventions (2^z - y - 1).
// A zero or negative y means the caller already addresses the stored row and
// its absolute value is used as is. Existing clients depend on this sign
// convention, keep it.
func TMSRow(z, y int) int {
	if y > 0 {
		return (1 << uint(z)) - y - 1
	}
	return -y
}

// span lower bounds (exclusive) per zoom level, widest first
var spanSteps = [...]struct {
	above float64
	zoom  int
}{
	{270, 0},      // whole world
	{135, 1},      // 180deg
	{67.5, 2},     // subcontinental area
	{33.75, 3},    // largest country
	{16.88, 4},    // 22.5deg
	{8.44, 5},     // large African country
	{4.22, 6},     // large European country
	{2.11, 7},     // small country, US state
	{1.05, 8},     // 1.406deg
	{0.53, 9},     // large metropolitan area
	{0.26, 10},    // metropolitan area
	{0.13, 11},    // city
	{0.066, 12},   // town, or city district
	{0.033, 13},   // village, or suburb
	{0.017, 14},   // 0.022deg
	{0.008, 15},   // small road
	{0.004, 16},   // street
	{0.002, 17},   // block, park, addresses
	{0.00075, 18}, // some buildings, trees
	{0.00038, 19}, // local highway and crossing details
}

// ZoomForSpan returns the approximate slippy-map zoom level at which a
// longitudinal span (in degrees) fills one tile.
// See https://wiki.openstreetmap.org/wiki/Zoom_levels
func ZoomForSpan(width float64) int {
	for _, s := range spanSteps {
		if width > s.above {
			return s.zoom
		}
	}
	return MaxZoom
}

// Coord is a tile address as requested by a client. Y keeps its sign, see TMSRow.
type Coord struct {
	Z, X, Y int
}

// ParseCoord parses decimal z, x and y request values. z must lie in
// [0, MaxRequestZoom].
func ParseCoord(z, x, y string) (Coord, error) {
	var c Coord
	var err error
	if c.Z, err = strconv.Atoi(z); err != nil {
		return Coord{}, fmt.Errorf("zoom %q: %w", z, err)
	}
	if c.Z < 0 || c.Z > MaxRequestZoom {
		return Coord{}, fmt.Errorf("zoom %d: %w", c.Z, ErrZoomRange)
	}
	if c.X, err = strconv.Atoi(x); err != nil {
		return Coord{}, fmt.Errorf("column %q: %w", x, err)
	}
	if c.Y, err = strconv.Atoi(y); err != nil {
		return Coord{}, fmt.Errorf("row %q: %w", y, err)
	}
	return c, nil
}

func (c Coord) QuadKey() string { return QuadKey(c.Z, c.X, c.Y) }

func (c Coord) String() string { return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y) }
