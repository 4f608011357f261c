// Package export dumps a time window of measurements to CSV or XLSX for
// offline analysis.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"ruuviair/internal/store"
)

// Reader is the slice of the store the exporter reads from.
type Reader interface {
	QueryWindow(ctx context.Context, from, to time.Time) ([]store.Record, error)
	QueryDevice(ctx context.Context, deviceID string, from, to time.Time) ([]store.Record, error)
}

// Exporter writes measurement dumps.
type Exporter struct {
	reader Reader
}

// New creates an exporter.
func New(reader Reader) *Exporter {
	return &Exporter{reader: reader}
}

var columns = []string{
	"timestamp", "device_id", "format", "ruuvi_mac",
	"temperature_c", "humidity_percent", "pressure_pa",
	"pm1_0", "pm2_5", "pm4_0", "pm10_0",
	"co2_ppm", "voc_index", "nox_index", "luminosity_lux",
	"measurement_sequence", "calibration_in_progress", "rssi_dbm",
}

func (e *Exporter) fetch(ctx context.Context, deviceID string, from, to time.Time) ([]store.Record, error) {
	if deviceID != "" {
		return e.reader.QueryDevice(ctx, deviceID, from, to)
	}
	return e.reader.QueryWindow(ctx, from, to)
}

// WriteCSV exports the window as CSV. deviceID empty means all devices.
// Rows come out in timestamp order. Returns the number of data rows written.
func (e *Exporter) WriteCSV(ctx context.Context, w io.Writer, deviceID string, from, to time.Time) (int, error) {
	records, err := e.fetch(ctx, deviceID, from, to)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return 0, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i := range records {
		if err := cw.Write(csvRow(&records[i])); err != nil {
			return 0, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return len(records), nil
}

// WriteXLSX exports the window as an XLSX workbook with one "Measurements"
// sheet. Returns the number of data rows written.
func (e *Exporter) WriteXLSX(ctx context.Context, w io.Writer, deviceID string, from, to time.Time) (int, error) {
	records, err := e.fetch(ctx, deviceID, from, to)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Measurements"
	f.SetSheetName("Sheet1", sheet)

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return 0, fmt.Errorf("failed to write sheet header: %w", err)
	}

	for i := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, err
		}
		row := xlsxRow(&records[i])
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return 0, fmt.Errorf("failed to write sheet row: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}
	return len(records), nil
}

func csvRow(r *store.Record) []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339),
		r.DeviceID,
		r.Format.String(),
		r.RuuviMAC,
		fmtFloat(r.Temperature),
		fmtFloat(r.Humidity),
		fmtU32(r.Pressure),
		fmtFloat(r.PM1),
		fmtFloat(r.PM25),
		fmtFloat(r.PM4),
		fmtFloat(r.PM10),
		fmtU16(r.CO2),
		fmtU16(r.VOC),
		fmtU16(r.NOX),
		fmtFloat(r.Luminosity),
		fmtU32(r.Sequence),
		strconv.FormatBool(r.CalibrationInProgress),
		strconv.Itoa(r.RSSI),
	}
}

func xlsxRow(r *store.Record) []any {
	row := make([]any, 0, len(columns))
	for _, v := range csvRow(r) {
		row = append(row, v)
	}
	return row
}

func fmtFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func fmtU32(v *uint32) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func fmtU16(v *uint16) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*v), 10)
}
