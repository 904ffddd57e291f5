// Package canvas is a display that lives in memory. Every flush publishes a
// snapshot of the drawing surface and, optionally, encodes it as PNG.
package canvas

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
)

var ErrOutOfBounds = errors.New("rectangle outside of the canvas")

type Canvas struct {
	surface  *image.RGBA
	snapshot *image.RGBA
	flushes  int

	// Path, when set, receives a PNG of every flushed frame. The file is
	// replaced atomically.
	Path string
	// Output, when set, receives a PNG of every flushed frame.
	Output io.Writer
}

func New(width, height int) *Canvas {
	return &Canvas{surface: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func (c *Canvas) Bounds() image.Rectangle {
	return c.surface.Rect
}

func (c *Canvas) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	draw.Draw(c.surface, c.surface.Rect, image.NewUniform(color.Black), image.Point{}, draw.Src)
	c.snapshot = nil
	c.flushes = 0
	return nil
}

func (c *Canvas) Init() error {
	return nil
}

func (c *Canvas) DrawFilledRectangle(r image.Rectangle, col color.RGBA) error {
	if r.Empty() {
		return nil
	}
	if !r.In(c.surface.Rect) {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, r)
	}
	draw.Draw(c.surface, r, image.NewUniform(col), image.Point{}, draw.Src)
	return nil
}

func (c *Canvas) Flush() error {
	snapshot := image.NewRGBA(c.surface.Rect)
	copy(snapshot.Pix, c.surface.Pix)

	if c.Output != nil {
		if err := png.Encode(c.Output, snapshot); err != nil {
			return fmt.Errorf("failed to encode frame: %w", err)
		}
	}
	if c.Path != "" {
		if err := writeFile(c.Path, snapshot); err != nil {
			return err
		}
	}

	c.snapshot = snapshot
	c.flushes++
	return nil
}

// Snapshot returns the image published by the last flush, nil before the
// first one.
func (c *Canvas) Snapshot() *image.RGBA {
	return c.snapshot
}

func (c *Canvas) Flushes() int {
	return c.flushes
}

func writeFile(path string, img image.Image) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".frame-*.png")
	if err != nil {
		return fmt.Errorf("failed to create frame file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write frame file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace frame file: %w", err)
	}
	return nil
}
