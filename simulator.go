package amg88

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
)

var ErrNotAwake = errors.New("sensor is not in normal power mode")

// SimBus emulates the sensor's register file. Every read starting at the
// pixel block produces a new frame with a warm spot drifting over a uniform
// background.
type SimBus struct {
	ambient float32
	peak    float32

	mu     sync.Mutex
	regs   [256]byte
	frames int
	closed bool
}

// NewSimBus returns a simulator with a 22 °C background and a 34 °C spot.
func NewSimBus() *SimBus {
	return NewSimBusScene(22, 34)
}

// NewSimBusScene returns a simulator whose background is ambient and whose
// warm spot peaks at peak. The thermistor reads ambient + 3.
func NewSimBusScene(ambient, peak float32) *SimBus {
	s := &SimBus{ambient: ambient, peak: peak}
	s.initialReset()
	// A powered-up sensor starts in sleep until the host wakes it.
	s.regs[PCTL.Address] = uint8(POWER_SLEEP)
	return s
}

func (s *SimBus) Ambient() float32 { return s.ambient }

func (s *SimBus) Peak() float32 { return s.peak }

func (s *SimBus) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *SimBus) WriteRegister(address uint8, value uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("bus closed")
	}

	switch address {
	case RST.Address:
		switch ResetMode(value) {
		case RESET_INITIAL:
			pctl := s.regs[PCTL.Address]
			s.initialReset()
			s.regs[PCTL.Address] = pctl
		case RESET_FLAG:
			s.regs[STAT.Address] = 0
		default:
			return fmt.Errorf("invalid reset value 0x%02X", value)
		}
		return nil
	case SCLR.Address:
		s.regs[STAT.Address] &^= value
		return nil
	}
	s.regs[address] = value
	return nil
}

func (s *SimBus) ReadRegisters(address uint8, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("bus closed")
	}
	if int(address)+len(data) > len(s.regs) {
		return fmt.Errorf("read past register 0xFF")
	}

	if address >= PIXELS.Address {
		if PowerMode(s.regs[PCTL.Address]) != POWER_NORMAL {
			return ErrNotAwake
		}
		if address == PIXELS.Address {
			s.renderFrame()
		}
	}

	copy(data, s.regs[address:])
	return nil
}

func (s *SimBus) initialReset() {
	s.regs = [256]byte{}
	binary.LittleEndian.PutUint16(s.regs[TTHL.Address:], ThermistorRaw(s.ambient+3, ThermistorResolution))
	s.frames = 0
	s.renderFrame()
}

func (s *SimBus) renderFrame() {
	phase := float64(s.frames) * 0.2
	cx := 3.5 + 2.5*math.Cos(phase)
	cy := 3.5 + 2.5*math.Sin(phase)
	s.frames++

	for i := 0; i < PixelCount; i++ {
		dx := float64(i/8) - cx
		dy := float64(i%8) - cy
		heat := math.Exp(-(dx*dx + dy*dy) / 3)
		t := float64(s.ambient) + float64(s.peak-s.ambient)*heat
		raw := PixelRaw(float32(t), PixelResolution)
		binary.LittleEndian.PutUint16(s.regs[int(PIXELS.Address)+2*i:], raw)
	}
}
