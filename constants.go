package amg88

type register struct {
	Address  uint8
	Length   int
	ReadOnly bool
}

var PCTL = register{0x00, 1, false}
var RST = register{0x01, 1, false}
var FPSC = register{0x02, 1, false}
var INTC = register{0x03, 1, false}
var STAT = register{0x04, 1, true}
var SCLR = register{0x05, 1, false}
var AVE = register{0x07, 1, false}
var INTHL = register{0x08, 2, false}
var INTLL = register{0x0A, 2, false}
var IHYSL = register{0x0C, 2, false}
var TTHL = register{0x0E, 2, true}
var INT_TABLE = register{0x10, 8, true}
var AVE_MODE = register{0x1F, 1, false}
var PIXELS = register{0x80, FrameSize, true}

// FrameSize is the size of one raw frame: 64 pixels, two bytes each.
const FrameSize = 128

// PixelCount is the number of thermopile elements on the sensor.
const PixelCount = 64

// I2C addresses, selected by the AD_SELECT pin.
const (
	AddressStandard  uint16 = 0x69
	AddressAlternate uint16 = 0x68
)

type PowerMode uint8

var POWER_NORMAL = PowerMode(0x00)
var POWER_SLEEP = PowerMode(0x10)
var POWER_STANDBY_60S = PowerMode(0x20)
var POWER_STANDBY_10S = PowerMode(0x21)

type ResetMode uint8

var RESET_FLAG = ResetMode(0x30)
var RESET_INITIAL = ResetMode(0x3F)

type Framerate uint8

var FPS_10 = Framerate(0x00)
var FPS_1 = Framerate(0x01)

var framerateNames = map[Framerate]string{
	FPS_10: "10 FPS",
	FPS_1:  "1 FPS",
}

func (f Framerate) String() string {
	if name, ok := framerateNames[f]; ok {
		return name
	}
	return "unknown framerate"
}

// USB identifiers of the RP2040 serial bridge running the register
// forwarding firmware.
const VENDOR_ID = "2E8A"

var PRODUCT_IDs = []string{"000A", "F00A"}
