package heatmap

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/jonas-koeritz/amg88"
)

// Sensor is the part of the thermal sensor the pipeline drives.
type Sensor interface {
	Power(mode amg88.PowerMode) error
	Reset(mode amg88.ResetMode) error
	SetFramerate(rate amg88.Framerate) error
	DeviceTemperature() (float32, error)
	ReadRawFrame(frame *[FrameSize]byte) error
}

// Display is a Surface that can be brought up and committed to the panel.
type Display interface {
	Surface
	Reset(ctx context.Context) error
	Init() error
	Flush() error
}

// Converter turns a raw sample into degrees Celsius.
type Converter func(raw uint16, resolution float32) float32

type RenderMode int

const (
	// ColorTile draws one colored tile per sample and flushes every frame.
	ColorTile RenderMode = iota
	// NumericDump logs the temperature grid instead of drawing it.
	NumericDump
)

func (m RenderMode) String() string {
	switch m {
	case ColorTile:
		return "tile"
	case NumericDump:
		return "dump"
	default:
		return fmt.Sprintf("RenderMode(%d)", int(m))
	}
}

// ParseRenderMode accepts the names returned by RenderMode.String.
func ParseRenderMode(s string) (RenderMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tile", "":
		return ColorTile, nil
	case "dump":
		return NumericDump, nil
	}
	return 0, fmt.Errorf("unknown render mode %q: expected tile or dump", s)
}

type Options struct {
	Mode       RenderMode
	Layout     Layout
	Mapper     Mapper
	Convert    Converter
	Resolution float32
	Framerate  amg88.Framerate

	// PowerOnDelay is waited before the sensor is woken up,
	// StabilizeDelay before the first frame is trusted.
	PowerOnDelay   time.Duration
	StabilizeDelay time.Duration
	// Interval is the pause between two frames. Zero selects the mode's
	// default, 100ms for ColorTile and DumpInterval for NumericDump.
	Interval time.Duration
	// MaxFrames stops Run after that many frames; 0 runs forever.
	MaxFrames int

	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultOptions() Options {
	return Options{
		Mode:           ColorTile,
		Layout:         DefaultLayout(),
		Mapper:         DefaultMapper(),
		Convert:        amg88.PixelCelsius,
		Resolution:     amg88.PixelResolution,
		Framerate:      amg88.FPS_10,
		PowerOnDelay:   50 * time.Millisecond,
		StabilizeDelay: time.Second,
		Interval:       100 * time.Millisecond,
	}
}

// DefaultDumpOptions is DefaultOptions in NumericDump mode.
func DefaultDumpOptions() Options {
	opts := DefaultOptions()
	opts.Mode = NumericDump
	opts.Interval = DumpInterval
	return opts
}

// DumpInterval is the frame interval of the numeric dump.
const DumpInterval = 5 * time.Second

// defaultInterval applies when Options.Interval is zero.
var defaultInterval = map[RenderMode]time.Duration{
	ColorTile:   100 * time.Millisecond,
	NumericDump: DumpInterval,
}

type State int

const (
	Idle State = iota
	WarmUp
	Capture
	Halt
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WarmUp:
		return "warm-up"
	case Capture:
		return "capture"
	case Halt:
		return "halt"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Frame is the result of one capture.
type Frame struct {
	Temperatures [SampleCount]float32
	Tiles        [SampleCount]Tile
}

// Pipeline owns a sensor and a display and moves frames from one to the
// other. It is not safe for concurrent use.
type Pipeline struct {
	sensor   Sensor
	display  Display
	opts     Options
	renderer Renderer

	state  State
	frames int
	err    error
	raw    RawFrame
}

// New returns an idle pipeline. display may be nil in NumericDump mode.
func New(sensor Sensor, display Display, opts Options) (*Pipeline, error) {
	if sensor == nil {
		return nil, fmt.Errorf("sensor is required")
	}
	switch opts.Mode {
	case ColorTile, NumericDump:
	default:
		return nil, fmt.Errorf("invalid render mode %s", opts.Mode)
	}
	if opts.Mode == ColorTile && display == nil {
		return nil, fmt.Errorf("display is required in %s mode", opts.Mode)
	}
	if opts.Layout.TileSize <= 0 {
		return nil, fmt.Errorf("invalid tile size %d", opts.Layout.TileSize)
	}
	if opts.Convert == nil {
		opts.Convert = amg88.PixelCelsius
	}
	if opts.Resolution == 0 {
		opts.Resolution = amg88.PixelResolution
	}
	if opts.Mapper == (Mapper{}) {
		opts.Mapper = DefaultMapper()
	}
	if opts.Interval == 0 {
		opts.Interval = defaultInterval[opts.Mode]
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}

	return &Pipeline{
		sensor:   sensor,
		display:  display,
		opts:     opts,
		renderer: Renderer{Layout: opts.Layout, Mapper: opts.Mapper, Surface: display},
	}, nil
}

func (p *Pipeline) State() State { return p.state }

// Frames returns the number of frames completed so far.
func (p *Pipeline) Frames() int { return p.frames }

// Err returns the error that halted the pipeline.
func (p *Pipeline) Err() error { return p.err }

// Start brings up the display and the sensor and waits for the sensor to
// settle. It may only be called once.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.state != Idle {
		return fmt.Errorf("start in state %s", p.state)
	}
	p.state = WarmUp

	if p.opts.Mode == ColorTile {
		if err := p.display.Reset(ctx); err != nil {
			return p.fail(ctx, fmt.Errorf("%w: display reset: %w", ErrRender, err))
		}
		if err := p.display.Init(); err != nil {
			return p.fail(ctx, fmt.Errorf("%w: display init: %w", ErrRender, err))
		}
	}

	if err := p.opts.Sleep(ctx, p.opts.PowerOnDelay); err != nil {
		return p.fail(ctx, err)
	}
	if err := p.sensor.Power(amg88.POWER_NORMAL); err != nil {
		return p.fail(ctx, fmt.Errorf("%w: %w", ErrAcquisition, err))
	}
	if err := p.sensor.Reset(amg88.RESET_INITIAL); err != nil {
		return p.fail(ctx, fmt.Errorf("%w: %w", ErrAcquisition, err))
	}
	if err := p.sensor.SetFramerate(p.opts.Framerate); err != nil {
		return p.fail(ctx, fmt.Errorf("%w: %w", ErrAcquisition, err))
	}

	if err := p.opts.Sleep(ctx, p.opts.StabilizeDelay); err != nil {
		return p.fail(ctx, err)
	}

	t, err := p.sensor.DeviceTemperature()
	if err != nil {
		return p.fail(ctx, fmt.Errorf("%w: %w", ErrAcquisition, err))
	}
	Logf("device temperature: %.2f °C", t)

	p.state = Capture
	return nil
}

// Step captures and presents one frame.
func (p *Pipeline) Step(ctx context.Context) (Frame, error) {
	var frame Frame
	switch p.state {
	case Halt:
		return frame, fmt.Errorf("%w: %w", ErrHalted, p.err)
	case Capture:
	default:
		return frame, fmt.Errorf("step in state %s", p.state)
	}

	if err := p.sensor.ReadRawFrame((*[FrameSize]byte)(&p.raw)); err != nil {
		return frame, p.fail(ctx, fmt.Errorf("%w: %w", ErrAcquisition, err))
	}

	samples, err := Decode(p.raw[:])
	if err != nil {
		return frame, p.fail(ctx, err)
	}

	for i, raw := range samples {
		t := p.opts.Convert(uint16(raw), p.opts.Resolution)
		frame.Temperatures[i] = t

		if p.opts.Mode != ColorTile {
			continue
		}
		tile, err := p.renderer.Render(i, t)
		if err != nil {
			return frame, p.fail(ctx, err)
		}
		frame.Tiles[i] = tile
	}

	switch p.opts.Mode {
	case ColorTile:
		if err := p.display.Flush(); err != nil {
			return frame, p.fail(ctx, fmt.Errorf("%w: flush: %w", ErrRender, err))
		}
	case NumericDump:
		Logf("frame %d: %s\n%s", p.frames, Summarize(frame.Temperatures), FormatGrid(frame.Temperatures))
	}

	p.frames++
	return frame, nil
}

// Run starts the pipeline if needed and captures frames until an error
// halts it, ctx is done or MaxFrames frames were captured.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.state == Idle {
		if err := p.Start(ctx); err != nil {
			return err
		}
	}

	for {
		if _, err := p.Step(ctx); err != nil {
			return err
		}
		if p.opts.MaxFrames > 0 && p.frames >= p.opts.MaxFrames {
			return nil
		}
		if err := p.opts.Sleep(ctx, p.opts.Interval); err != nil {
			return err
		}
	}
}

// fail halts the pipeline unless err stems from ctx being done.
func (p *Pipeline) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		if p.state == WarmUp {
			p.state = Idle
		}
		return err
	}
	p.state = Halt
	p.err = err
	Logf("pipeline halted: %v", err)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Area returns the display rectangle covered by the tiles.
func (p *Pipeline) Area() image.Rectangle {
	return p.opts.Layout.Area()
}
