package heatmap

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonas-koeritz/amg88"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSensor serves queued frames and logs every call into a shared trace.
type fakeSensor struct {
	trace  *[]string
	frames []RawFrame
	reads  int

	powerErr error
	readErr  error
	// failAt makes the n-th frame read (1-based) fail with readErr.
	failAt int
}

func (s *fakeSensor) Power(mode amg88.PowerMode) error {
	*s.trace = append(*s.trace, fmt.Sprintf("power 0x%02X", uint8(mode)))
	return s.powerErr
}

func (s *fakeSensor) Reset(mode amg88.ResetMode) error {
	*s.trace = append(*s.trace, fmt.Sprintf("reset 0x%02X", uint8(mode)))
	return nil
}

func (s *fakeSensor) SetFramerate(rate amg88.Framerate) error {
	*s.trace = append(*s.trace, "framerate "+rate.String())
	return nil
}

func (s *fakeSensor) DeviceTemperature() (float32, error) {
	*s.trace = append(*s.trace, "thermistor")
	return 24.5, nil
}

func (s *fakeSensor) ReadRawFrame(frame *[FrameSize]byte) error {
	s.reads++
	*s.trace = append(*s.trace, "read")
	if s.readErr != nil && (s.failAt == 0 || s.reads == s.failAt) {
		return s.readErr
	}
	if len(s.frames) > 0 {
		*frame = s.frames[(s.reads-1)%len(s.frames)]
	}
	return nil
}

type fakeDisplay struct {
	trace *[]string
	draws []image.Rectangle
	fills []color.RGBA

	initErr  error
	drawErr  error
	drawFail int
	flushErr error
}

func (d *fakeDisplay) Reset(ctx context.Context) error {
	*d.trace = append(*d.trace, "display reset")
	return ctx.Err()
}

func (d *fakeDisplay) Init() error {
	*d.trace = append(*d.trace, "display init")
	return d.initErr
}

func (d *fakeDisplay) DrawFilledRectangle(r image.Rectangle, c color.RGBA) error {
	if d.drawErr != nil && len(d.draws) == d.drawFail {
		return d.drawErr
	}
	*d.trace = append(*d.trace, "draw")
	d.draws = append(d.draws, r)
	d.fills = append(d.fills, c)
	return nil
}

func (d *fakeDisplay) Flush() error {
	*d.trace = append(*d.trace, "flush")
	return d.flushErr
}

type fixture struct {
	trace   []string
	sensor  *fakeSensor
	display *fakeDisplay
	opts    Options
}

func newFixture() *fixture {
	f := &fixture{}
	f.sensor = &fakeSensor{trace: &f.trace}
	f.display = &fakeDisplay{trace: &f.trace}
	f.opts = DefaultOptions()
	f.opts.Sleep = func(ctx context.Context, d time.Duration) error {
		f.trace = append(f.trace, "sleep "+d.String())
		return ctx.Err()
	}
	return f
}

func (f *fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(f.sensor, f.display, f.opts)
	require.NoError(t, err)
	return p
}

func muteLog(t *testing.T) *strings.Builder {
	t.Helper()
	var b strings.Builder
	SetLogger(func(format string, v ...interface{}) {
		fmt.Fprintf(&b, format+"\n", v...)
	})
	t.Cleanup(func() { SetLogger(log.Printf) })
	return &b
}

func count(trace []string, entry string) int {
	n := 0
	for _, e := range trace {
		if e == entry {
			n++
		}
	}
	return n
}

func TestNewValidation(t *testing.T) {
	f := newFixture()

	_, err := New(nil, f.display, f.opts)
	assert.Error(t, err)

	_, err = New(f.sensor, nil, f.opts)
	assert.Error(t, err)

	dump := f.opts
	dump.Mode = NumericDump
	_, err = New(f.sensor, nil, dump)
	assert.NoError(t, err)

	bad := f.opts
	bad.Layout.TileSize = 0
	_, err = New(f.sensor, f.display, bad)
	assert.Error(t, err)

	unknown := f.opts
	unknown.Mode = RenderMode(7)
	_, err = New(f.sensor, f.display, unknown)
	assert.EqualError(t, err, "invalid render mode RenderMode(7)")
}

func TestNewFillsDefaults(t *testing.T) {
	muteLog(t)
	f := newFixture()
	f.opts.Mapper = Mapper{}
	f.opts.Interval = 0
	f.opts.MaxFrames = 2

	var samples [SampleCount]Sample
	samples[63] = Sample(amg88.PixelRaw(40, amg88.PixelResolution))
	f.sensor.frames = []RawFrame{Encode(samples)}

	p := f.pipeline(t)
	require.NoError(t, p.Run(context.Background()))

	fills := f.display.fills[len(f.display.fills)-SampleCount:]
	assert.Equal(t, DefaultMapper().Map(0), fills[0])
	assert.Equal(t, DefaultMapper().Map(40), fills[63])
	assert.NotEqual(t, fills[0], fills[63])
	assert.Equal(t, 1, count(f.trace, "sleep 100ms"))
}

func TestDefaultDumpOptions(t *testing.T) {
	opts := DefaultDumpOptions()
	assert.Equal(t, NumericDump, opts.Mode)
	assert.Equal(t, DumpInterval, opts.Interval)

	muteLog(t)
	f := newFixture()
	f.opts.Mode = NumericDump
	f.opts.Interval = 0
	f.opts.MaxFrames = 2
	p, err := New(f.sensor, nil, f.opts)
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 1, count(f.trace, "sleep 5s"))
}

func TestPipelineStart(t *testing.T) {
	logs := muteLog(t)
	f := newFixture()
	p := f.pipeline(t)
	assert.Equal(t, Idle, p.State())

	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, Capture, p.State())

	want := []string{
		"display reset",
		"display init",
		"sleep 50ms",
		"power 0x00",
		"reset 0x3F",
		"framerate 10 FPS",
		"sleep 1s",
		"thermistor",
	}
	if diff := cmp.Diff(want, f.trace); diff != "" {
		t.Fatalf("start sequence mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, logs.String(), "device temperature: 24.50 °C")

	assert.Error(t, p.Start(context.Background()), "start is only allowed once")
}

func TestPipelineAllZeroFrame(t *testing.T) {
	muteLog(t)
	f := newFixture()
	f.sensor.frames = []RawFrame{{}}
	p := f.pipeline(t)
	require.NoError(t, p.Start(context.Background()))
	f.trace = nil

	frame, err := p.Step(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [SampleCount]float32{}, frame.Temperatures)

	brightest := DefaultMapper().Map(0)
	require.Len(t, f.display.fills, SampleCount)
	for i, c := range f.display.fills {
		assert.Equal(t, brightest, c, "tile %d", i)
		assert.Equal(t, brightest, frame.Tiles[i].Color)
	}

	for i, a := range f.display.draws {
		for j, b := range f.display.draws[i+1:] {
			assert.False(t, a.Overlaps(b), "tiles %d and %d overlap", i, i+1+j)
		}
	}

	wantTrace := append([]string{"read"}, strings.Split(strings.Repeat("draw,", SampleCount), ",")...)
	wantTrace[len(wantTrace)-1] = "flush"
	if diff := cmp.Diff(wantTrace, f.trace); diff != "" {
		t.Fatalf("step trace mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, p.Frames())
}

func TestPipelineConvertsSamples(t *testing.T) {
	muteLog(t)
	f := newFixture()

	var samples [SampleCount]Sample
	for i := range samples {
		samples[i] = Sample(amg88.PixelRaw(float32(i)-10, amg88.PixelResolution))
	}
	f.sensor.frames = []RawFrame{Encode(samples)}
	p := f.pipeline(t)
	require.NoError(t, p.Start(context.Background()))

	frame, err := p.Step(context.Background())
	require.NoError(t, err)

	for i, temp := range frame.Temperatures {
		assert.Equal(t, float32(i)-10, temp)
		assert.Equal(t, DefaultMapper().Map(temp), frame.Tiles[i].Color)
		assert.Equal(t, i, frame.Tiles[i].Index)
	}
}

func TestPipelineRunBounded(t *testing.T) {
	muteLog(t)
	f := newFixture()
	f.opts.MaxFrames = 3
	p := f.pipeline(t)

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 3, p.Frames())
	assert.Equal(t, Capture, p.State())
	assert.Equal(t, 3, count(f.trace, "flush"))
	assert.Equal(t, 3*SampleCount, count(f.trace, "draw"))
	assert.Equal(t, 2, count(f.trace, "sleep 100ms"))
}

func TestPipelineRunStopsOnCancel(t *testing.T) {
	muteLog(t)
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	f.opts.Sleep = func(_ context.Context, d time.Duration) error {
		if d == f.opts.Interval {
			cancel()
		}
		return ctx.Err()
	}
	p := f.pipeline(t)

	err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.Frames())
	assert.NotEqual(t, Halt, p.State())
	assert.NoError(t, p.Err())
}

func TestPipelineCancelDuringWarmUp(t *testing.T) {
	muteLog(t)
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := f.pipeline(t)

	assert.ErrorIs(t, p.Start(ctx), context.Canceled)
	assert.Equal(t, Idle, p.State())
}

func TestPipelineHaltsOnAcquisitionFailure(t *testing.T) {
	logs := muteLog(t)
	f := newFixture()
	readErr := errors.New("i2c nack")
	f.sensor.readErr = readErr
	f.sensor.failAt = 2
	p := f.pipeline(t)

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAcquisition)
	assert.ErrorIs(t, err, readErr)

	assert.Equal(t, Halt, p.State())
	assert.Equal(t, 1, p.Frames())
	assert.Equal(t, 1, count(f.trace, "flush"), "the failed frame is not flushed")
	assert.Equal(t, err, p.Err())
	assert.Contains(t, logs.String(), "pipeline halted")

	_, err = p.Step(context.Background())
	assert.ErrorIs(t, err, ErrHalted)
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, 2, f.sensor.reads, "a halted pipeline does not touch the sensor")

	assert.ErrorIs(t, p.Run(context.Background()), ErrHalted)
}

func TestPipelineHaltsOnStartFailure(t *testing.T) {
	muteLog(t)

	t.Run("sensor", func(t *testing.T) {
		f := newFixture()
		f.sensor.powerErr = errors.New("no ack")
		p := f.pipeline(t)

		err := p.Run(context.Background())
		assert.ErrorIs(t, err, ErrAcquisition)
		assert.Equal(t, Halt, p.State())
		assert.Zero(t, f.sensor.reads)
	})

	t.Run("display", func(t *testing.T) {
		f := newFixture()
		f.display.initErr = errors.New("spi closed")
		p := f.pipeline(t)

		err := p.Start(context.Background())
		assert.ErrorIs(t, err, ErrRender)
		assert.Equal(t, Halt, p.State())
		assert.NotContains(t, f.trace, "power 0x00")
	})
}

func TestPipelineHaltsOnRenderFailure(t *testing.T) {
	muteLog(t)
	f := newFixture()
	drawErr := errors.New("out of bounds")
	f.display.drawErr = drawErr
	f.display.drawFail = 10
	p := f.pipeline(t)

	err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrRender)
	assert.ErrorIs(t, err, drawErr)
	assert.Equal(t, Halt, p.State())
	assert.Len(t, f.display.draws, 10)
	assert.Zero(t, count(f.trace, "flush"))
}

func TestPipelineHaltsOnFlushFailure(t *testing.T) {
	muteLog(t)
	f := newFixture()
	f.display.flushErr = errors.New("dc pin")
	p := f.pipeline(t)

	err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrRender)
	assert.Equal(t, Halt, p.State())
	assert.Zero(t, p.Frames())
}

func TestPipelineNumericDump(t *testing.T) {
	logs := muteLog(t)
	f := newFixture()
	f.opts.Mode = NumericDump
	f.opts.Interval = DumpInterval
	f.opts.MaxFrames = 2

	var samples [SampleCount]Sample
	samples[0] = Sample(amg88.PixelRaw(30.5, amg88.PixelResolution))
	f.sensor.frames = []RawFrame{Encode(samples)}

	p, err := New(f.sensor, nil, f.opts)
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 2, p.Frames())
	assert.NotContains(t, f.trace, "display reset")
	assert.Zero(t, count(f.trace, "draw"))
	assert.Equal(t, 1, count(f.trace, "sleep 5s"))

	out := logs.String()
	assert.Contains(t, out, "frame 0: min=0.00 max=30.50")
	assert.Contains(t, out, "frame 1:")
	assert.Contains(t, out, " 30.50   0.00")
}

func TestPipelineStepBeforeStart(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t)

	_, err := p.Step(context.Background())
	assert.Error(t, err)
	assert.Equal(t, Idle, p.State())
}

func TestParseRenderMode(t *testing.T) {
	for _, mode := range []RenderMode{ColorTile, NumericDump} {
		got, err := ParseRenderMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}

	_, err := ParseRenderMode("ascii")
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "warm-up", WarmUp.String())
	assert.Equal(t, "capture", Capture.String())
	assert.Equal(t, "halt", Halt.String())
}

func TestSleep(t *testing.T) {
	require.NoError(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, sleep(ctx, 0), context.Canceled)
}
