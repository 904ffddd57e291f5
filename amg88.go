package amg88

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Bus transfers register reads and writes to a sensor. Reads of more than
// one byte use the sensor's address auto-increment.
type Bus interface {
	WriteRegister(address uint8, value uint8) error
	ReadRegisters(address uint8, data []byte) error
	Close() error
}

type Dev struct {
	bus Bus
}

type InterruptConfig struct {
	Enabled bool
	// Absolute compares pixels against the thresholds, otherwise the
	// difference to the previous frame is compared.
	Absolute   bool
	High       float32
	Low        float32
	Hysteresis float32
}

type Status struct {
	Interrupt          bool
	PixelOverflow      bool
	ThermistorOverflow bool
}

// New returns a sensor handle using bus. The handle owns the bus.
func New(bus Bus) *Dev {
	return &Dev{bus: bus}
}

// Open opens a serial bridge and returns a sensor handle for it.
func Open(serialPort ...string) (*Dev, error) {
	bus, err := OpenSerialBus(PortOptions{}, serialPort...)
	if err != nil {
		return nil, fmt.Errorf("failed to Open AMG88 device: %w", err)
	}
	return New(bus), nil
}

func (d *Dev) Close() error {
	return d.bus.Close()
}

func (d *Dev) Power(mode PowerMode) error {
	if err := d.writeRegister(PCTL, uint8(mode)); err != nil {
		return fmt.Errorf("failed to set power mode: %w", err)
	}
	return nil
}

func (d *Dev) Reset(mode ResetMode) error {
	if err := d.writeRegister(RST, uint8(mode)); err != nil {
		return fmt.Errorf("failed to reset: %w", err)
	}
	return nil
}

func (d *Dev) SetFramerate(frameRate Framerate) error {
	if _, ok := framerateNames[frameRate]; !ok {
		return fmt.Errorf("invalid frame rate %d", frameRate)
	}
	if err := d.writeRegister(FPSC, uint8(frameRate)); err != nil {
		return fmt.Errorf("failed to set frame rate: %w", err)
	}
	return nil
}

func (d *Dev) GetFramerate() (Framerate, error) {
	data, err := d.readRegister(FPSC)
	if err != nil {
		return 0, fmt.Errorf("failed to read frame rate: %w", err)
	}
	return Framerate(data[0] & 0x01), nil
}

// DeviceTemperature returns the temperature of the on-chip thermistor.
func (d *Dev) DeviceTemperature() (float32, error) {
	data, err := d.readRegister(TTHL)
	if err != nil {
		return 0, fmt.Errorf("failed to read thermistor: %w", err)
	}
	return ThermistorCelsius(binary.LittleEndian.Uint16(data), ThermistorResolution), nil
}

// ReadRawFrame fills frame with the 64 raw pixel values, little-endian, in
// the sensor's scan order.
func (d *Dev) ReadRawFrame(frame *[FrameSize]byte) error {
	if err := d.bus.ReadRegisters(PIXELS.Address, frame[:]); err != nil {
		return fmt.Errorf("failed to read pixels: %w", err)
	}
	return nil
}

// PixelTemperature reads a single pixel, 0 <= pixel < 64.
func (d *Dev) PixelTemperature(pixel int) (float32, error) {
	if pixel < 0 || pixel >= PixelCount {
		return 0, fmt.Errorf("invalid pixel %d", pixel)
	}
	data := make([]byte, 2)
	if err := d.bus.ReadRegisters(PIXELS.Address+uint8(pixel*2), data); err != nil {
		return 0, fmt.Errorf("failed to read pixel %d: %w", pixel, err)
	}
	return PixelCelsius(binary.LittleEndian.Uint16(data), PixelResolution), nil
}

// SetMovingAverage switches the sensor's twice moving average output on or
// off. The AVE register is only writable inside the unlock sequence.
func (d *Dev) SetMovingAverage(enabled bool) error {
	ave := uint8(0)
	if enabled {
		ave = 0x20
	}
	for _, w := range []struct {
		reg   register
		value uint8
	}{
		{AVE_MODE, 0x50},
		{AVE_MODE, 0x45},
		{AVE_MODE, 0x57},
		{AVE, ave},
		{AVE_MODE, 0x00},
	} {
		if err := d.writeRegister(w.reg, w.value); err != nil {
			return fmt.Errorf("failed to set moving average: %w", err)
		}
	}
	return nil
}

func (d *Dev) SetInterrupt(cfg InterruptConfig) error {
	if !cfg.Enabled {
		if err := d.writeRegister(INTC, 0x00); err != nil {
			return fmt.Errorf("failed to disable interrupt: %w", err)
		}
		return nil
	}

	for _, w := range []struct {
		reg   register
		value float32
	}{
		{INTHL, cfg.High},
		{INTLL, cfg.Low},
		{IHYSL, cfg.Hysteresis},
	} {
		raw := PixelRaw(w.value, PixelResolution)
		if err := d.writeRegister(w.reg, uint8(raw&0xFF)); err != nil {
			return fmt.Errorf("failed to set interrupt level: %w", err)
		}
		if err := d.writeRegisterAt(w.reg, 1, uint8(raw>>8)); err != nil {
			return fmt.Errorf("failed to set interrupt level: %w", err)
		}
	}

	intc := uint8(0x01)
	if cfg.Absolute {
		intc |= 0x02
	}
	if err := d.writeRegister(INTC, intc); err != nil {
		return fmt.Errorf("failed to enable interrupt: %w", err)
	}
	return nil
}

// InterruptPixels reports which pixels triggered the interrupt, indexed like
// the raw frame.
func (d *Dev) InterruptPixels() ([PixelCount]bool, error) {
	var pixels [PixelCount]bool
	data, err := d.readRegister(INT_TABLE)
	if err != nil {
		return pixels, fmt.Errorf("failed to read interrupt table: %w", err)
	}
	for i := range pixels {
		pixels[i] = data[i/8]&(1<<(i%8)) != 0
	}
	return pixels, nil
}

func (d *Dev) Status() (Status, error) {
	data, err := d.readRegister(STAT)
	if err != nil {
		return Status{}, fmt.Errorf("failed to read status: %w", err)
	}
	return Status{
		Interrupt:          data[0]&0x02 != 0,
		PixelOverflow:      data[0]&0x04 != 0,
		ThermistorOverflow: data[0]&0x08 != 0,
	}, nil
}

func (d *Dev) ClearStatus() error {
	if err := d.writeRegister(SCLR, 0x0E); err != nil {
		return fmt.Errorf("failed to clear status: %w", err)
	}
	return nil
}

func (d *Dev) writeRegister(reg register, value uint8) error {
	return d.writeRegisterAt(reg, 0, value)
}

func (d *Dev) writeRegisterAt(reg register, offset int, value uint8) error {
	if reg.ReadOnly {
		return fmt.Errorf("register is read-only")
	}
	if offset < 0 || offset >= reg.Length || int(reg.Address)+offset > math.MaxUint8 {
		return fmt.Errorf("register offset %d out of range", offset)
	}
	if err := d.bus.WriteRegister(reg.Address+uint8(offset), value); err != nil {
		return fmt.Errorf("failed to write register: %w", err)
	}
	return nil
}

func (d *Dev) readRegister(reg register) ([]byte, error) {
	data := make([]byte, reg.Length)
	if err := d.bus.ReadRegisters(reg.Address, data); err != nil {
		return []byte{}, fmt.Errorf("failed to read register: %w", err)
	}
	return data, nil
}
