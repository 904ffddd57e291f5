package heatmap

import (
	"image/color"
	"math"
)

// BrightnessPolicy decides what happens when the brightness drop of a
// temperature exceeds the full scale.
type BrightnessPolicy int

const (
	// Saturate clamps the value at zero, hot tiles stay black.
	Saturate BrightnessPolicy = iota
	// Wrap keeps 8-bit modular arithmetic, the value jumps back to bright
	// once base*gain passes 255.
	Wrap
)

func (p BrightnessPolicy) String() string {
	switch p {
	case Saturate:
		return "saturate"
	case Wrap:
		return "wrap"
	default:
		return "unknown"
	}
}

// HSV is a color on 0-255 scales, hue included.
type HSV struct {
	H, S, V uint8
}

// Mapper turns a temperature into a tile color. The hue and saturation are
// fixed; the value falls by Gain for every whole degree above zero.
type Mapper struct {
	Hue        uint8
	Saturation uint8
	Gain       uint8
	Policy     BrightnessPolicy
}

func DefaultMapper() Mapper {
	return Mapper{Hue: 255, Saturation: 128, Gain: 5, Policy: Saturate}
}

// BrightnessBase truncates celsius to 8 bits. NaN and negative readings
// give 0, readings of 255 or more give 255.
func BrightnessBase(celsius float32) uint8 {
	switch {
	case math.IsNaN(float64(celsius)), celsius <= 0:
		return 0
	case celsius >= 255:
		return 255
	}
	return uint8(celsius)
}

// Value computes 255 - base*Gain under the mapper's policy.
func (m Mapper) Value(celsius float32) uint8 {
	base := BrightnessBase(celsius)
	if m.Policy == Wrap {
		return 255 - base*m.Gain
	}
	drop := int(base) * int(m.Gain)
	if drop >= 255 {
		return 0
	}
	return uint8(255 - drop)
}

func (m Mapper) HSV(celsius float32) HSV {
	return HSV{H: m.Hue, S: m.Saturation, V: m.Value(celsius)}
}

func (m Mapper) Map(celsius float32) color.RGBA {
	return HSVToRGB(m.HSV(celsius))
}

// HSVToRGB converts with six hue sectors of roughly 43 steps each.
func HSVToRGB(hsv HSV) color.RGBA {
	v := uint16(hsv.V)
	s := uint16(hsv.S)
	f := uint16(hsv.H) * 2 % 85 * 3

	p := uint8(v * (255 - s) / 255)
	q := uint8(v * (255 - s*f/255) / 255)
	t := uint8(v * (255 - s*(255-f)/255) / 255)
	vv := uint8(v)

	switch {
	case hsv.H <= 42:
		return color.RGBA{R: vv, G: t, B: p, A: 0xFF}
	case hsv.H <= 84:
		return color.RGBA{R: q, G: vv, B: p, A: 0xFF}
	case hsv.H <= 127:
		return color.RGBA{R: p, G: vv, B: t, A: 0xFF}
	case hsv.H <= 169:
		return color.RGBA{R: p, G: q, B: vv, A: 0xFF}
	case hsv.H <= 212:
		return color.RGBA{R: t, G: p, B: vv, A: 0xFF}
	case hsv.H <= 254:
		return color.RGBA{R: vv, G: p, B: q, A: 0xFF}
	default:
		return color.RGBA{R: vv, G: t, B: p, A: 0xFF}
	}
}

// RGB565 packs c into the 5-6-5 layout used by small color panels.
func RGB565(c color.RGBA) uint16 {
	return uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
}
