package amg88

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var ErrBridge = errors.New("serial bridge reported an error")

// PortOptions configures the serial port of the bridge. The bridge is a
// USB-CDC device, so the baud rate only matters for UART adapters.
type PortOptions struct {
	BaudRate    int
	ReadTimeout time.Duration
}

func (o PortOptions) SerialMode() *serial.Mode {
	baudRate := o.BaudRate
	if baudRate <= 0 {
		baudRate = 115200
	}
	return &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// SerialBus talks to the sensor through a microcontroller that forwards
// register accesses received over a serial link. Packets are framed as
//
//	"   #" LLLL TTTT payload CCCC
//
// where LLLL is the hex length of type, payload and checksum, TTTT the
// command type and CCCC a checksum that is consumed but not verified.
type SerialBus struct {
	port io.ReadWriteCloser
	mu   sync.Mutex
}

func NewSerialBus(port io.ReadWriteCloser) *SerialBus {
	return &SerialBus{port: port}
}

// OpenSerialBus opens the named serial port, or the first bridge found on
// the system when no name is given.
func OpenSerialBus(opts PortOptions, serialPort ...string) (*SerialBus, error) {
	portName := ""
	var err error

	if len(serialPort) == 0 || serialPort[0] == "" {
		portName, err = getSerialPort()
		if err != nil {
			return nil, err
		}
		if portName == "" {
			return nil, fmt.Errorf("no serial bridge found")
		}
	} else {
		portName = serialPort[0]
	}

	p, err := serial.Open(portName, opts.SerialMode())
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if opts.ReadTimeout > 0 {
		if err := p.SetReadTimeout(opts.ReadTimeout); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	return NewSerialBus(p), nil
}

func (b *SerialBus) Close() error {
	return b.port.Close()
}

func (b *SerialBus) WriteRegister(address uint8, value uint8) error {
	_, err := b.sendCommand(fmt.Sprintf("WREG%02X%02XXXXX", address, value))
	return err
}

func (b *SerialBus) ReadRegisters(address uint8, data []byte) error {
	if len(data) == 0 || len(data) > 0xFF {
		return fmt.Errorf("invalid read length %d", len(data))
	}

	var responseData []byte
	if len(data) <= 2 {
		for i := uint8(0); i < uint8(len(data)); i++ {
			response, err := b.sendCommand(fmt.Sprintf("RREG%02XXXXXXX", address+i))
			if err != nil {
				return err
			}
			if len(response) != 2 {
				return fmt.Errorf("invalid response length (%d)", len(response))
			}
			responseData = append(responseData, response...)
		}
	} else {
		response, err := b.sendCommand(fmt.Sprintf("RBLK%02X%02XXXXX", address, len(data)))
		if err != nil {
			return err
		}
		if len(response) != len(data)*2 {
			return fmt.Errorf("invalid response length (%d)", len(response))
		}
		responseData = response
	}

	value, err := hex.DecodeString(string(responseData))
	if err != nil {
		return fmt.Errorf("failed to decode register value: %w", err)
	}
	copy(data, value)
	return nil
}

func (b *SerialBus) sendCommand(cmd string) ([]byte, error) {
	cmdType := cmd[0:4]

	b.mu.Lock()
	defer b.mu.Unlock()

	frame := fmt.Sprintf("   #%04X%s", len(cmd), cmd)
	if _, err := b.port.Write([]byte(frame)); err != nil {
		return nil, fmt.Errorf("failed to write to serial port: %w", err)
	}

	for {
		packetType, data, err := b.readPacket()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		switch packetType {
		case cmdType:
			return data, nil
		case "ERR ":
			return nil, fmt.Errorf("%w: %s: %s", ErrBridge, cmdType, strings.TrimSpace(string(data)))
		}
	}
}

func (b *SerialBus) readPacket() (packetType string, data []byte, err error) {
	header := make([]byte, 12)
	if _, err = io.ReadFull(b.port, header); err != nil {
		return "", nil, fmt.Errorf("failed to read header from serial port: %w", err)
	}
	// Resynchronize on the start marker if we joined mid-packet.
	for string(header[:4]) != "   #" {
		copy(header, header[1:])
		if _, err = io.ReadFull(b.port, header[11:]); err != nil {
			return "", nil, fmt.Errorf("failed to read header from serial port: %w", err)
		}
	}

	header = header[4:]
	packetType = string(header[4:])

	length, err := hex.DecodeString(string(header[:4]))
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode packet length: %w", err)
	}
	packetLength := binary.BigEndian.Uint16(length)
	if packetLength < 8 {
		return "", nil, fmt.Errorf("invalid packet length %d", packetLength)
	}

	data = make([]byte, packetLength-8)
	if _, err = io.ReadFull(b.port, data); err != nil {
		return "", nil, fmt.Errorf("failed to read data from serial port: %w", err)
	}

	checksum := make([]byte, 4)
	if _, err = io.ReadFull(b.port, checksum); err != nil {
		return "", nil, fmt.Errorf("failed to read checksum from serial port: %w", err)
	}

	return packetType, data, nil
}

func getSerialPort() (string, error) {
	portDetails, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("failed to autodetect serial bridge: %w", err)
	}

	for _, port := range portDetails {
		if port.IsUSB && strings.EqualFold(port.VID, VENDOR_ID) && slices.Contains(PRODUCT_IDs, strings.ToUpper(port.PID)) {
			return port.Name, nil
		}
	}

	return "", nil
}
