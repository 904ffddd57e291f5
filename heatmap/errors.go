package heatmap

import "errors"

var (
	// ErrMalformedFrame is returned when a raw buffer is not exactly one
	// frame long.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrAcquisition wraps sensor failures.
	ErrAcquisition = errors.New("acquisition failure")
	// ErrRender wraps display failures.
	ErrRender = errors.New("render failure")
	// ErrTileIndex is returned for a sample index outside the grid.
	ErrTileIndex = errors.New("tile index out of range")
	// ErrHalted is returned by a pipeline that already stopped on an error.
	ErrHalted = errors.New("pipeline halted")
)
