package protocol

import (
	"encoding/binary"
	"time"
)

const formatE1Length = 40

// DecodeFormatE1 decodes an extended Format E1 payload (40 bytes).
//
// E1 embeds the full 6-byte device address, so it is preferred over the
// radio address for identity; the radio address is the fallback when the
// embedded MAC is the reserved all-FF pattern.
func DecodeFormatE1(data []byte, address string, rssi int) (*Measurement, error) {
	if len(data) < formatE1Length {
		return nil, &DecodeError{Format: FormatE1, Reason: BufferTooShort}
	}
	if data[0] != byte(FormatE1) {
		return nil, &DecodeError{Format: FormatE1, Reason: InvalidDiscriminator}
	}

	m := &Measurement{
		Format:    FormatE1,
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
		m.PM1 = f64(float64(raw) * 0.1)
	}
	if raw := binary.BigEndian.Uint16(data[9:11]); raw != sentinelUint16 {
		m.PM25 = f64(float64(raw) * 0.1)
	}
	if raw := binary.BigEndian.Uint16(data[11:13]); raw != sentinelUint16 {
		m.PM4 = f64(float64(raw) * 0.1)
	}
	if raw := binary.BigEndian.Uint16(data[13:15]); raw != sentinelUint16 {
		m.PM10 = f64(float64(raw) * 0.1)
	}

	if raw := binary.BigEndian.Uint16(data[15:17]); raw != sentinelUint16 {
		m.CO2 = u16(raw)
	}

	// 9-bit VOC/NOX, low bits packed into the flags byte at offset 28.
	if raw := uint16(data[17])<<1 | uint16(data[28]>>6)&1; raw != sentinelVOCNOX {
		m.VOC = u16(raw)
	}
	if raw := uint16(data[18])<<1 | uint16(data[28]>>7)&1; raw != sentinelVOCNOX {
		m.NOX = u16(raw)
	}

	// 24-bit linear luminosity, 0.01 lux resolution.
	if raw := uint32(data[19])<<16 | uint32(data[20])<<8 | uint32(data[21]); raw != sentinelUint24 {
		m.Luminosity = f64(float64(raw) * 0.01)
	}

	if raw := uint32(data[25])<<16 | uint32(data[26])<<8 | uint32(data[27]); raw != sentinelUint24 {
		m.Sequence = u32(raw)
	}

	m.CalibrationInProgress = data[28]&0x01 != 0

	mac := data[34:40]
	if !allFF(mac) {
		m.RuuviMAC = macString(mac)
		m.DeviceID = m.RuuviMAC
	} else {
		m.DeviceID = address
	}
	if m.DeviceID == "" {
		return nil, &DecodeError{Format: FormatE1, Reason: ReservedSentinel,
			Detail: "no radio address and embedded MAC is reserved"}
	}

	return m, nil
}
