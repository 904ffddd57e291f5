package amg88

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
)

// I2CBus accesses the sensor directly on an I²C bus.
type I2CBus struct {
	dev    i2c.Dev
	closer func() error
}

func NewI2CBus(bus i2c.Bus, address uint16) *I2CBus {
	return &I2CBus{dev: i2c.Dev{Bus: bus, Addr: address}}
}

// OpenI2CBus opens the named bus from the periph registry, "" selects the
// first one. The host drivers must already be initialized.
func OpenI2CBus(name string, address uint16) (*I2CBus, error) {
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %q: %w", name, err)
	}
	b := NewI2CBus(bus, address)
	b.closer = bus.Close
	return b, nil
}

func (b *I2CBus) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

func (b *I2CBus) WriteRegister(address uint8, value uint8) error {
	if err := b.dev.Tx([]byte{address, value}, nil); err != nil {
		return fmt.Errorf("i2c write 0x%02X: %w", address, err)
	}
	return nil
}

func (b *I2CBus) ReadRegisters(address uint8, data []byte) error {
	if err := b.dev.Tx([]byte{address}, data); err != nil {
		return fmt.Errorf("i2c read 0x%02X: %w", address, err)
	}
	return nil
}
