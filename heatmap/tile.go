package heatmap

import (
	"fmt"
	"image"
	"image/color"
)

// Layout places the 8x8 sample grid on the display. Sample i lands in
// column i/8 and row i%8 of the tile grid; Transpose swaps the two.
type Layout struct {
	TileSize  int
	XOffset   int
	YOffset   int
	Transpose bool
}

func DefaultLayout() Layout {
	return Layout{TileSize: 8, XOffset: 30, YOffset: 0}
}

// Cell returns the grid position of sample i.
func (l Layout) Cell(i int) (row, col int, err error) {
	if i < 0 || i >= SampleCount {
		return 0, 0, fmt.Errorf("%w: %d", ErrTileIndex, i)
	}
	return i / GridWidth, i % GridWidth, nil
}

// Bounds returns the pixel rectangle of sample i. Max is exclusive, so
// neighbouring tiles share no pixel.
func (l Layout) Bounds(i int) (image.Rectangle, error) {
	row, col, err := l.Cell(i)
	if err != nil {
		return image.Rectangle{}, err
	}
	xi, yi := row, col
	if l.Transpose {
		xi, yi = col, row
	}
	x := xi*l.TileSize + l.XOffset
	y := yi*l.TileSize + l.YOffset
	return image.Rect(x, y, x+l.TileSize, y+l.TileSize), nil
}

// Area is the rectangle covered by all tiles.
func (l Layout) Area() image.Rectangle {
	side := GridWidth * l.TileSize
	return image.Rect(l.XOffset, l.YOffset, l.XOffset+side, l.YOffset+side)
}

type Tile struct {
	Index  int
	Bounds image.Rectangle
	Color  color.RGBA
}

// Surface accepts filled rectangles. Drawing only queues pixels, nothing
// reaches the panel before a flush.
type Surface interface {
	DrawFilledRectangle(r image.Rectangle, c color.RGBA) error
}

type Renderer struct {
	Layout  Layout
	Mapper  Mapper
	Surface Surface
}

// Tile computes the tile of sample i without drawing it.
func (r *Renderer) Tile(i int, celsius float32) (Tile, error) {
	bounds, err := r.Layout.Bounds(i)
	if err != nil {
		return Tile{}, err
	}
	return Tile{Index: i, Bounds: bounds, Color: r.Mapper.Map(celsius)}, nil
}

// Render draws the tile of sample i. Draw errors are returned as is,
// wrapped in ErrRender.
func (r *Renderer) Render(i int, celsius float32) (Tile, error) {
	tile, err := r.Tile(i, celsius)
	if err != nil {
		return tile, err
	}
	if err := r.Surface.DrawFilledRectangle(tile.Bounds, tile.Color); err != nil {
		return tile, fmt.Errorf("%w: tile %d: %w", ErrRender, i, err)
	}
	return tile, nil
}
