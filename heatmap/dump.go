package heatmap

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type Summary struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

func (s Summary) String() string {
	return fmt.Sprintf("min=%.2f max=%.2f mean=%.2f sd=%.2f", s.Min, s.Max, s.Mean, s.StdDev)
}

func Summarize(temperatures [SampleCount]float32) Summary {
	xs := make([]float64, len(temperatures))
	for i, t := range temperatures {
		xs[i] = float64(t)
	}
	mean, std := stat.MeanStdDev(xs, nil)
	return Summary{
		Min:    floats.Min(xs),
		Max:    floats.Max(xs),
		Mean:   mean,
		StdDev: std,
	}
}

// FormatGrid prints the temperatures as eight lines of eight values, one
// line per sensor row.
func FormatGrid(temperatures [SampleCount]float32) string {
	var b strings.Builder
	for row := 0; row < GridWidth; row++ {
		for col := 0; col < GridWidth; col++ {
			if col > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%6.2f", temperatures[row*GridWidth+col])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
