package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"ruuviair/internal/export"
	"ruuviair/internal/protocol"
	"ruuviair/internal/store"
)

type fakeReader struct {
	records    []store.Record
	lastDevice string
}

func (r *fakeReader) QueryWindow(_ context.Context, _, _ time.Time) ([]store.Record, error) {
	return r.records, nil
}

func (r *fakeReader) QueryDevice(_ context.Context, device string, _, _ time.Time) ([]store.Record, error) {
	r.lastDevice = device
	return r.records, nil
}

func testRecords() []store.Record {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	temp := 21.5
	pm := 8.4
	co2 := uint16(650)
	seq := uint32(42)
	return []store.Record{
		{
			ID: 1,
			Measurement: protocol.Measurement{
				DeviceID:    "AA:BB:CC:DD:EE:FF",
				Format:      protocol.Format6,
				Timestamp:   ts,
				RSSI:        -61,
				Temperature: &temp,
				PM25:        &pm,
				CO2:         &co2,
				Sequence:    &seq,
			},
		},
		{
			// second row with everything optional absent
			ID: 2,
			Measurement: protocol.Measurement{
				DeviceID:  "AA:BB:CC:DD:EE:FF",
				Format:    protocol.FormatRAWv2,
				Timestamp: ts.Add(5 * time.Second),
				RSSI:      -62,
			},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	e := export.New(&fakeReader{records: testRecords()})

	var buf bytes.Buffer
	n, err := e.WriteCSV(context.Background(), &buf, "", time.Time{}, time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 data rows

	header := rows[0]
	require.Equal(t, "timestamp", header[0])
	require.Equal(t, "temperature_c", header[4])

	require.Equal(t, "2026-03-01T12:00:00Z", rows[1][0])
	require.Equal(t, "Format 6", rows[1][2])
	require.Equal(t, "21.5", rows[1][4])
	require.Equal(t, "650", rows[1][11])
	require.Equal(t, "42", rows[1][15])

	// absent fields export as empty cells, not zeros
	require.Equal(t, "RAWv2", rows[2][2])
	require.Equal(t, "", rows[2][4])
	require.Equal(t, "", rows[2][11])
}

func TestWriteCSVDeviceFilter(t *testing.T) {
	reader := &fakeReader{records: testRecords()}
	e := export.New(reader)

	var buf bytes.Buffer
	_, err := e.WriteCSV(context.Background(), &buf, "AA:BB:CC:DD:EE:FF", time.Time{}, time.Now())
	require.NoError(t, err)
	require.Equal(t, "AA:BB:CC:DD:EE:FF", reader.lastDevice)
}

func TestWriteXLSX(t *testing.T) {
	e := export.New(&fakeReader{records: testRecords()})

	var buf bytes.Buffer
	n, err := e.WriteXLSX(context.Background(), &buf, "", time.Time{}, time.Now())
	require.NoError(t, err)
	require.Equal(t, 2, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Measurements")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "timestamp", rows[0][0])
	require.Equal(t, "21.5", rows[1][4])
}
