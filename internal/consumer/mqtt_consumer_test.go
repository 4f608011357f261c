package consumer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ruuviair/internal/consumer"
	"ruuviair/internal/protocol"
)

func TestParseEnvelope(t *testing.T) {
	payload := []byte(`{
		"address": "cb:b8:33:4c:88:4f",
		"rssi": -67,
		"manufacturer_id": 1177,
		"data": "0512FC5394C37C0004FFFC040CAC364200CDCBB8334C884F"
	}`)

	adv, err := consumer.ParseEnvelope("ruuvi/CB:B8:33:4C:88:4F/adv", payload)
	require.NoError(t, err)
	require.Equal(t, "CB:B8:33:4C:88:4F", adv.Address)
	require.Equal(t, -67, adv.RSSI)
	require.Equal(t, uint16(protocol.RuuviManufacturerID), adv.ManufacturerID)
	require.Len(t, adv.Data, 24)
	require.Equal(t, byte(0x05), adv.Data[0])
}

func TestParseEnvelopeAddressFromTopic(t *testing.T) {
	payload := []byte(`{"rssi": -70, "manufacturer_id": 1177, "data": "0x0600"}`)

	adv, err := consumer.ParseEnvelope("ruuvi/aa:bb:cc:dd:ee:ff/adv", payload)
	require.NoError(t, err)
	require.Equal(t, "AA:BB:CC:DD:EE:FF", adv.Address)
	require.Equal(t, []byte{0x06, 0x00}, adv.Data)
}

func TestParseEnvelopeRejectsBadInput(t *testing.T) {
	_, err := consumer.ParseEnvelope("ruuvi/x/adv", []byte(`{not json`))
	require.Error(t, err)

	_, err = consumer.ParseEnvelope("ruuvi/x/adv", []byte(`{"data": "zz"}`))
	require.Error(t, err)
}
