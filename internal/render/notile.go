package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

// TileSize is the edge length of the generated fallback tile.
const TileSize = 256

var defaultNoTile = sync.OnceValue(func() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, TileSize, TileSize))
	fill := color.NRGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
	line := color.NRGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}
	for y := 0; y < TileSize; y++ {
		for x := 0; x < TileSize; x++ {
			c := fill
			if x == 0 || y == 0 || x == TileSize-1 || y == TileSize-1 || x == y || x == TileSize-1-y {
				c = line
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
})

// DefaultNoTile returns the built-in image served when a tile is missing.
// Callers must not modify the returned slice.
func DefaultNoTile() []byte { return defaultNoTile() }
