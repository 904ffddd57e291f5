package heatmap

import (
	"encoding/binary"
	"fmt"
	"iter"
)

const (
	// GridWidth is the number of samples per sensor row.
	GridWidth = 8
	// SampleCount is the number of samples in one frame.
	SampleCount = GridWidth * GridWidth
	// FrameSize is the length of a raw frame in bytes.
	FrameSize = SampleCount * 2
)

// Sample is one raw sensor reading before temperature conversion.
type Sample uint16

// RawFrame holds 64 little-endian samples as read from the sensor.
type RawFrame [FrameSize]byte

// Decode checks the length of buf and returns the samples it holds, in
// buffer order. Nothing is decoded until the sequence is iterated.
func Decode(buf []byte) (iter.Seq2[int, Sample], error) {
	if len(buf) != FrameSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedFrame, len(buf), FrameSize)
	}
	return func(yield func(int, Sample) bool) {
		for i := 0; i < SampleCount; i++ {
			if !yield(i, Sample(binary.LittleEndian.Uint16(buf[2*i:]))) {
				return
			}
		}
	}, nil
}

// DecodeAll decodes buf in one go.
func DecodeAll(buf []byte) ([SampleCount]Sample, error) {
	var samples [SampleCount]Sample
	seq, err := Decode(buf)
	if err != nil {
		return samples, err
	}
	for i, s := range seq {
		samples[i] = s
	}
	return samples, nil
}

// Encode lays samples out the way the sensor does.
func Encode(samples [SampleCount]Sample) RawFrame {
	var frame RawFrame
	for i, s := range samples {
		binary.LittleEndian.PutUint16(frame[2*i:], uint16(s))
	}
	return frame
}
