package protocol

import (
	"fmt"
	"time"
)

// RuuviManufacturerID is the Bluetooth SIG company identifier of
// Ruuvi Innovations Ltd.
const RuuviManufacturerID = 0x0499

// Format identifies a Ruuvi wire format by its discriminator byte,
// the first byte of the manufacturer data payload.
type Format byte

const (
	FormatRAWv2 Format = 0x05 // legacy data format 5, 24 bytes
	Format6     Format = 0x06 // Ruuvi Air, 20 bytes
	FormatE1    Format = 0xE1 // extended air quality, 40 bytes
)

func (f Format) String() string {
	switch f {
	case FormatRAWv2:
		return "RAWv2"
	case Format6:
		return "Format 6"
	case FormatE1:
		return "Format E1"
	default:
		return fmt.Sprintf("0x%02X", byte(f))
	}
}

// ParseFormat is the inverse of Format.String, used when reading persisted
// rows back. Unrecognized names return 0.
func ParseFormat(s string) Format {
	switch s {
	case "RAWv2":
		return FormatRAWv2
	case "Format 6":
		return Format6
	case "Format E1":
		return FormatE1
	default:
		return 0
	}
}

// RawAdvertisement is one manufacturer-data broadcast as delivered by the
// radio layer. It is consumed once by Dispatch and not retained.
type RawAdvertisement struct {
	// Address is the link-layer address of the broadcasting device,
	// formatted "AA:BB:CC:DD:EE:FF".
	Address        string
	RSSI           int // dBm
	ManufacturerID uint16
	Data           []byte
}

// Measurement is one decoded sensor sample. Fields a format does not carry,
// or that the device marked "not available" with its sentinel bit pattern,
// are nil. A Measurement is immutable once constructed.
type Measurement struct {
	// DeviceID identifies the device. Not guaranteed globally unique across
	// formats: Format 6 embeds only the low 3 address bytes, so when no radio
	// address is supplied the identifier is truncated.
	DeviceID  string
	Format    Format
	Timestamp time.Time // UTC, assigned at decode time
	RSSI      int       // dBm, copied from the advertisement

	Temperature *float64 // °C
	Humidity    *float64 // %RH
	Pressure    *uint32  // Pa

	// Particulate matter, µg/m³. RAWv2 has none, Format 6 carries PM2.5
	// only, Format E1 carries all four channels.
	PM1  *float64
	PM25 *float64
	PM4  *float64
	PM10 *float64

	CO2 *uint16 // ppm
	VOC *uint16 // index 0..500
	NOX *uint16 // index 0..500

	Luminosity *float64 // lux

	// RAWv2-only fields.
	AccelerationX   *float64 // g
	AccelerationY   *float64 // g
	AccelerationZ   *float64 // g
	BatteryVoltage  *uint16  // mV
	TXPower         *int     // dBm
	MovementCounter *uint8

	// Sequence is the device-assigned measurement counter. 16-bit on RAWv2,
	// 8-bit on Format 6, 24-bit on Format E1; wraps in normal operation.
	Sequence *uint32

	CalibrationInProgress bool

	// RuuviMAC is the device address embedded in the payload, when present.
	// Partial ("XX:YY:ZZ") for Format 6.
	RuuviMAC string
}

func f64(v float64) *float64 { return &v }
func u16(v uint16) *uint16   { return &v }
func u32(v uint32) *uint32   { return &v }

// macString formats address bytes as "AA:BB:CC".
func macString(b []byte) string {
	s := make([]byte, 0, len(b)*3)
	const hex = "0123456789ABCDEF"
	for i, c := range b {
		if i > 0 {
			s = append(s, ':')
		}
		s = append(s, hex[c>>4], hex[c&0x0F])
	}
	return string(s)
}

func allFF(b []byte) bool {
	for _, c := range b {
		if c != 0xFF {
			return false
		}
	}
	return true
}
