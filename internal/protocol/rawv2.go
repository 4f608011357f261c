package protocol

import (
	"encoding/binary"
	"time"
)

const rawv2Length = 24

// Sentinel bit patterns shared by the Ruuvi formats. A field whose raw bits
// equal its sentinel carries no reading and decodes to nil, never to zero.
const (
	sentinelInt16  = -32768
	sentinelUint16 = 0xFFFF
	sentinelUint24 = 0xFFFFFF
)

// DecodeRAWv2 decodes a legacy data format 5 payload (24 bytes).
//
// The payload does not embed air-quality fields; those stay nil. The device
// identity comes from the radio address supplied by the scanner; the MAC
// embedded at the payload tail is kept as a cross-check.
func DecodeRAWv2(data []byte, address string, rssi int) (*Measurement, error) {
	if len(data) < rawv2Length {
		return nil, &DecodeError{Format: FormatRAWv2, Reason: BufferTooShort}
	}
	if data[0] != byte(FormatRAWv2) {
		return nil, &DecodeError{Format: FormatRAWv2, Reason: InvalidDiscriminator}
	}

	m := &Measurement{
		Format:    FormatRAWv2,
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

	if raw := int16(binary.BigEndian.Uint16(data[7:9])); raw != sentinelInt16 {
		m.AccelerationX = f64(float64(raw) * 0.001)
	}
	if raw := int16(binary.BigEndian.Uint16(data[9:11])); raw != sentinelInt16 {
		m.AccelerationY = f64(float64(raw) * 0.001)
	}
	if raw := int16(binary.BigEndian.Uint16(data[11:13])); raw != sentinelInt16 {
		m.AccelerationZ = f64(float64(raw) * 0.001)
	}

	power := binary.BigEndian.Uint16(data[13:15])
	if battery := power >> 5; battery != 0x7FF {
		m.BatteryVoltage = u16(battery + 1600)
	}
	if tx := power & 0x1F; tx != 0x1F {
		dbm := -40 + 2*int(tx)
		m.TXPower = &dbm
	}

	if data[15] != 0xFF {
		counter := data[15]
		m.MovementCounter = &counter
	}
	if raw := binary.BigEndian.Uint16(data[16:18]); raw != sentinelUint16 {
		m.Sequence = u32(uint32(raw))
	}

	mac := data[18:24]
	if !allFF(mac) {
		m.RuuviMAC = macString(mac)
	}

	m.DeviceID = address
	if m.DeviceID == "" {
		m.DeviceID = m.RuuviMAC
	}
	if m.DeviceID == "" {
		return nil, &DecodeError{Format: FormatRAWv2, Reason: ReservedSentinel,
			Detail: "no radio address and embedded MAC is reserved"}
	}

	return m, nil
}
