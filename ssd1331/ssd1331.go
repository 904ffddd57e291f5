// Package ssd1331 drives the Solomon Systech SSD1331, a 96x64 RGB OLED
// controller, over a 4-wire SPI interface.
//
// Drawing goes to an in-memory framebuffer; Flush sends the whole buffer to
// the panel.
//
// # Datasheet
//
// https://cdn-shop.adafruit.com/datasheets/SSD1331_1.2.pdf
package ssd1331

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

const (
	Width  = 96
	Height = 64
)

var ErrOutOfBounds = errors.New("rectangle outside of the display")

type Rotation uint8

const (
	Rotate0 Rotation = iota
	Rotate180
)

type Opts struct {
	Rotation Rotation
	// MaxTxSize bounds the size of one SPI transfer. spidev defaults to
	// 4096 bytes.
	MaxTxSize int
}

var DefaultOpts = Opts{Rotation: Rotate0, MaxTxSize: 4096}

// Commands. Names follow the datasheet's command table.
const (
	cmdSetColumnAddress = 0x15
	cmdSetRowAddress    = 0x75
	cmdContrastA        = 0x81
	cmdContrastB        = 0x82
	cmdContrastC        = 0x83
	cmdMasterCurrent    = 0x87
	cmdPrechargeA       = 0x8A
	cmdPrechargeB       = 0x8B
	cmdPrechargeC       = 0x8C
	cmdRemap            = 0xA0
	cmdStartLine        = 0xA1
	cmdDisplayOffset    = 0xA2
	cmdNormalDisplay    = 0xA4
	cmdMultiplexRatio   = 0xA8
	cmdMasterConfig     = 0xAD
	cmdDisplayOff       = 0xAE
	cmdDisplayOn        = 0xAF
	cmdPowerSave        = 0xB0
	cmdPhaseAdjust      = 0xB1
	cmdClockDivider     = 0xB3
	cmdPrechargeLevel   = 0xBB
	cmdVCOMH            = 0xBE
)

// Remap values: 65k colors, COM split, horizontal address increment.
var remap = map[Rotation]byte{
	Rotate0:   0x72,
	Rotate180: 0x60,
}

type Dev struct {
	c   spi.Conn
	dc  gpio.PinOut
	rst gpio.PinOut

	rotation  Rotation
	maxTxSize int
	buffer    *RGB565
}

// NewSPI connects to the panel on p. rst may be nil when the reset line is
// tied high.
func NewSPI(p spi.Port, dc, rst gpio.PinOut, opts *Opts) (*Dev, error) {
	c, err := p.Connect(10*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("ssd1331: %w", err)
	}
	return New(c, dc, rst, opts)
}

func New(c spi.Conn, dc, rst gpio.PinOut, opts *Opts) (*Dev, error) {
	if dc == nil {
		return nil, errors.New("ssd1331: data/command pin is required")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	if _, ok := remap[opts.Rotation]; !ok {
		return nil, fmt.Errorf("ssd1331: invalid rotation %d", opts.Rotation)
	}
	maxTxSize := opts.MaxTxSize
	if limits, ok := c.(interface{ MaxTxSize() int }); ok {
		if m := limits.MaxTxSize(); m > 0 && (maxTxSize <= 0 || m < maxTxSize) {
			maxTxSize = m
		}
	}
	if maxTxSize <= 0 {
		maxTxSize = DefaultOpts.MaxTxSize
	}

	return &Dev{
		c:         c,
		dc:        dc,
		rst:       rst,
		rotation:  opts.Rotation,
		maxTxSize: maxTxSize,
		buffer:    NewRGB565(image.Rect(0, 0, Width, Height)),
	}, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("ssd1331.Dev{%s, %s}", d.c, d.dc)
}

func (d *Dev) Bounds() image.Rectangle {
	return d.buffer.Rect
}

// Buffer returns the framebuffer. Changes become visible on Flush.
func (d *Dev) Buffer() *RGB565 {
	return d.buffer
}

// Reset pulses the reset line and clears the framebuffer.
func (d *Dev) Reset(ctx context.Context) error {
	d.buffer.Fill(d.buffer.Rect, 0)
	if d.rst == nil {
		return nil
	}
	for _, step := range []struct {
		level gpio.Level
		wait  time.Duration
	}{
		{gpio.High, time.Millisecond},
		{gpio.Low, 10 * time.Millisecond},
		{gpio.High, time.Millisecond},
	} {
		if err := d.rst.Out(step.level); err != nil {
			return fmt.Errorf("ssd1331: reset: %w", err)
		}
		if err := sleep(ctx, step.wait); err != nil {
			return err
		}
	}
	return nil
}

// Init sends the power-up sequence and turns the panel on.
func (d *Dev) Init() error {
	return d.sendCommand(
		cmdDisplayOff,
		cmdRemap, remap[d.rotation],
		cmdStartLine, 0x00,
		cmdDisplayOffset, 0x00,
		cmdNormalDisplay,
		cmdMultiplexRatio, Height-1,
		cmdMasterConfig, 0x8E,
		cmdPowerSave, 0x0B,
		cmdPhaseAdjust, 0x31,
		cmdClockDivider, 0xF0,
		cmdPrechargeA, 0x64,
		cmdPrechargeB, 0x78,
		cmdPrechargeC, 0x64,
		cmdPrechargeLevel, 0x3A,
		cmdVCOMH, 0x3E,
		cmdMasterCurrent, 0x06,
		cmdContrastA, 0x91,
		cmdContrastB, 0x50,
		cmdContrastC, 0x7D,
		cmdDisplayOn,
	)
}

// DrawFilledRectangle fills r in the framebuffer. r must lie within the
// display.
func (d *Dev) DrawFilledRectangle(r image.Rectangle, c color.RGBA) error {
	if r.Empty() {
		return nil
	}
	if !r.In(d.buffer.Rect) {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, r)
	}
	d.buffer.Fill(r, convert(c).(Color565))
	return nil
}

// Flush writes the framebuffer to the panel.
func (d *Dev) Flush() error {
	if err := d.sendCommand(
		cmdSetColumnAddress, 0, Width-1,
		cmdSetRowAddress, 0, Height-1,
	); err != nil {
		return err
	}
	return d.sendData(d.buffer.Pix)
}

// Halt turns the panel off. The framebuffer is kept.
func (d *Dev) Halt() error {
	return d.sendCommand(cmdDisplayOff)
}

func (d *Dev) sendCommand(cmd ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return fmt.Errorf("ssd1331: %w", err)
	}
	if err := d.c.Tx(cmd, nil); err != nil {
		return fmt.Errorf("ssd1331: command 0x%02X: %w", cmd[0], err)
	}
	return nil
}

func (d *Dev) sendData(data []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("ssd1331: %w", err)
	}
	for len(data) > 0 {
		n := min(len(data), d.maxTxSize)
		if err := d.c.Tx(data[:n], nil); err != nil {
			return fmt.Errorf("ssd1331: data: %w", err)
		}
		data = data[n:]
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
