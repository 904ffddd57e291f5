package amg88

import "math"

const (
	// PixelResolution is the temperature step of one pixel LSB in °C.
	PixelResolution float32 = 0.25
	// ThermistorResolution is the temperature step of one thermistor LSB in °C.
	ThermistorResolution float32 = 0.0625
)

// PixelCelsius converts a raw pixel reading, a 12-bit two's complement value,
// to degrees Celsius.
func PixelCelsius(raw uint16, resolution float32) float32 {
	value := int16(raw<<4) >> 4
	return float32(value) * resolution
}

// ThermistorCelsius converts a raw thermistor reading, a 12-bit sign and
// magnitude value, to degrees Celsius.
func ThermistorCelsius(raw uint16, resolution float32) float32 {
	value := float32(raw&0x7FF) * resolution
	if raw&0x800 != 0 {
		return -value
	}
	return value
}

// PixelRaw is the inverse of PixelCelsius. Values outside the 12-bit range
// are clamped.
func PixelRaw(celsius float32, resolution float32) uint16 {
	steps := math.Round(float64(celsius / resolution))
	steps = math.Max(-2048, math.Min(2047, steps))
	return uint16(int16(steps)) & 0x0FFF
}

// ThermistorRaw is the inverse of ThermistorCelsius.
func ThermistorRaw(celsius float32, resolution float32) uint16 {
	steps := math.Round(math.Abs(float64(celsius / resolution)))
	raw := uint16(math.Min(0x7FF, steps))
	if celsius < 0 {
		raw |= 0x800
	}
	return raw
}
