package ssd1331

import (
	"image"
	"image/color"
)

// Color565 is a 16-bit color, 5 bits red, 6 bits green, 5 bits blue.
type Color565 uint16

func (c Color565) RGBA() (r, g, b, a uint32) {
	r5 := uint32(c>>11) & 0x1F
	g6 := uint32(c>>5) & 0x3F
	b5 := uint32(c) & 0x1F
	r = (r5<<3 | r5>>2) * 0x101
	g = (g6<<2 | g6>>4) * 0x101
	b = (b5<<3 | b5>>2) * 0x101
	return r, g, b, 0xFFFF
}

// ColorModel converts any color to Color565.
var ColorModel = color.ModelFunc(convert)

func convert(c color.Color) color.Color {
	if c565, ok := c.(Color565); ok {
		return c565
	}
	r, g, b, _ := c.RGBA()
	return Color565(uint16(r>>11)<<11 | uint16(g>>10)<<5 | uint16(b>>11))
}

// RGB565 is an in-memory image laid out like the panel's GDDRAM: two bytes
// per pixel, most significant byte first, rows top to bottom.
type RGB565 struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle
}

func NewRGB565(r image.Rectangle) *RGB565 {
	return &RGB565{
		Pix:    make([]byte, 2*r.Dx()*r.Dy()),
		Stride: 2 * r.Dx(),
		Rect:   r,
	}
}

func (i *RGB565) ColorModel() color.Model { return ColorModel }

func (i *RGB565) Bounds() image.Rectangle { return i.Rect }

func (i *RGB565) At(x, y int) color.Color {
	return i.Color565At(x, y)
}

func (i *RGB565) Color565At(x, y int) Color565 {
	if !(image.Point{x, y}.In(i.Rect)) {
		return 0
	}
	off := i.PixOffset(x, y)
	return Color565(uint16(i.Pix[off])<<8 | uint16(i.Pix[off+1]))
}

func (i *RGB565) Set(x, y int, c color.Color) {
	i.SetColor565(x, y, convert(c).(Color565))
}

func (i *RGB565) SetColor565(x, y int, c Color565) {
	if !(image.Point{x, y}.In(i.Rect)) {
		return
	}
	off := i.PixOffset(x, y)
	i.Pix[off] = byte(c >> 8)
	i.Pix[off+1] = byte(c)
}

func (i *RGB565) PixOffset(x, y int) int {
	return (y-i.Rect.Min.Y)*i.Stride + (x-i.Rect.Min.X)*2
}

// Fill paints r, clipped to the image, with c.
func (i *RGB565) Fill(r image.Rectangle, c Color565) {
	r = r.Intersect(i.Rect)
	hi, lo := byte(c>>8), byte(c)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := i.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			i.Pix[off] = hi
			i.Pix[off+1] = lo
			off += 2
		}
	}
}
