package protocol

import (
	"encoding/binary"
	"math"
	"time"
)

const format6Length = 20

const (
	sentinelVOCNOX     = 511 // 9-bit fields
	sentinelLuminosity = 255 // 8-bit logarithmic code
)

// luminosityDelta maps the 8-bit logarithmic luminosity code onto 0..65535
// lux: lux = exp(code * delta) - 1, code 254 hitting full scale.
var luminosityDelta = math.Log(65536) / 254

// decodeLuminosityCode converts the Format 6 logarithmic luminosity code
// into lux. Code 255 is the "not available" sentinel.
func decodeLuminosityCode(code byte) *float64 {
	if code == sentinelLuminosity {
		return nil
	}
	return f64(math.Exp(float64(code)*luminosityDelta) - 1)
}

// encodeLuminosityCode is the inverse mapping, used by EncodeFormat6.
func encodeLuminosityCode(lux float64) byte {
	if lux < 0 {
		return 0
	}
	code := math.Round(math.Log(lux+1) / luminosityDelta)
	if code > 254 {
		return 254
	}
	return byte(code)
}

// DecodeFormat6 decodes a Ruuvi Air Format 6 payload (20 bytes).
//
// The payload embeds only the low 3 bytes of the device address; the full
// identity comes from the radio address when the scanner supplies one.
func DecodeFormat6(data []byte, address string, rssi int) (*Measurement, error) {
	if len(data) < format6Length {
		return nil, &DecodeError{Format: Format6, Reason: BufferTooShort}
	}
	if data[0] != byte(Format6) {
		return nil, &DecodeError{Format: Format6, Reason: InvalidDiscriminator}
	}

	m := &Measurement{
		Format:    Format6,
		Timestamp: time.Now().UTC(),
		RSSI:      rssi,
	}

	if raw := int16(binary.BigEndian.Uint16(data[1:3])); raw != sentinelInt16 {
		m.Temperature = f64(float64(raw) * 0.005)
	}
	if raw := binary.BigEndian.Uint16(data[3:5]); raw != sentinelUint16 {
		m.Humidity = f64(float64(raw) * 0.0025)
	}
	if raw := binary.BigEndian.Uint16(data[5:7]); raw != sentinelUint16 {
		m.Pressure = u32(uint32(raw) + 50000)
	}
	if raw := binary.BigEndian.Uint16(data[7:9]); raw != sentinelUint16 {
		m.PM25 = f64(float64(raw) * 0.1)
	}
	if raw := binary.BigEndian.Uint16(data[9:11]); raw != sentinelUint16 {
		m.CO2 = u16(raw)
	}

	// VOC and NOX are 9-bit: the high 8 bits sit in their own byte, the low
	// bit is packed into the flags byte.
	if raw := uint16(data[11])<<1 | uint16(data[16]>>6)&1; raw != sentinelVOCNOX {
		m.VOC = u16(raw)
	}
	if raw := uint16(data[12])<<1 | uint16(data[16]>>7)&1; raw != sentinelVOCNOX {
		m.NOX = u16(raw)
	}

	m.Luminosity = decodeLuminosityCode(data[13])

	m.Sequence = u32(uint32(data[15]))
	m.CalibrationInProgress = data[16]&0x01 != 0

	if short := data[17:20]; !allFF(short) {
		m.RuuviMAC = macString(short)
	}

	m.DeviceID = address
	if m.DeviceID == "" {
		m.DeviceID = m.RuuviMAC
	}
	if m.DeviceID == "" {
		return nil, &DecodeError{Format: Format6, Reason: ReservedSentinel,
			Detail: "no radio address and embedded MAC is reserved"}
	}

	return m, nil
}

// EncodeFormat6 renders a measurement back into Format 6 wire layout.
// Absent fields encode as their sentinels. Used by integration tooling and
// the round-trip tests; the ingest path never encodes.
func EncodeFormat6(m *Measurement) []byte {
	data := make([]byte, format6Length)
	data[0] = byte(Format6)

	if m.Temperature != nil {
		binary.BigEndian.PutUint16(data[1:3], uint16(int16(math.Round(*m.Temperature/0.005))))
	} else {
		// bit pattern of sentinelInt16
		binary.BigEndian.PutUint16(data[1:3], 0x8000)
	}
	if m.Humidity != nil {
		binary.BigEndian.PutUint16(data[3:5], uint16(math.Round(*m.Humidity/0.0025)))
	} else {
		binary.BigEndian.PutUint16(data[3:5], sentinelUint16)
	}
	if m.Pressure != nil {
		binary.BigEndian.PutUint16(data[5:7], uint16(*m.Pressure-50000))
	} else {
		binary.BigEndian.PutUint16(data[5:7], sentinelUint16)
	}
	if m.PM25 != nil {
		binary.BigEndian.PutUint16(data[7:9], uint16(math.Round(*m.PM25/0.1)))
	} else {
		binary.BigEndian.PutUint16(data[7:9], sentinelUint16)
	}
	if m.CO2 != nil {
		binary.BigEndian.PutUint16(data[9:11], *m.CO2)
	} else {
		binary.BigEndian.PutUint16(data[9:11], sentinelUint16)
	}

	voc := uint16(sentinelVOCNOX)
	if m.VOC != nil {
		voc = *m.VOC
	}
	nox := uint16(sentinelVOCNOX)
	if m.NOX != nil {
		nox = *m.NOX
	}
	data[11] = byte(voc >> 1)
	data[12] = byte(nox >> 1)

	if m.Luminosity != nil {
		data[13] = encodeLuminosityCode(*m.Luminosity)
	} else {
		data[13] = sentinelLuminosity
	}

	if m.Sequence != nil {
		data[15] = byte(*m.Sequence)
	}

	var flags byte
	if m.CalibrationInProgress {
		flags |= 0x01
	}
	flags |= byte(voc&1) << 6
	flags |= byte(nox&1) << 7
	data[16] = flags

	mac := parseMACTail(m.RuuviMAC, 3)
	if mac == nil {
		mac = parseMACTail(m.DeviceID, 3)
	}
	if mac != nil {
		copy(data[17:20], mac)
	} else {
		data[17], data[18], data[19] = 0xFF, 0xFF, 0xFF
	}

	return data
}

// parseMACTail returns the last n bytes of a colon-separated hex address,
// or nil if the string does not parse.
func parseMACTail(s string, n int) []byte {
	if s == "" {
		return nil
	}
	var bytes []byte
	for i := 0; i+1 < len(s); i += 3 {
		hi := hexNibble(s[i])
		lo := hexNibble(s[i+1])
		if hi < 0 || lo < 0 {
			return nil
		}
		bytes = append(bytes, byte(hi<<4|lo))
		if i+2 < len(s) && s[i+2] != ':' {
			return nil
		}
	}
	if len(bytes) < n {
		return nil
	}
	return bytes[len(bytes)-n:]
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}
