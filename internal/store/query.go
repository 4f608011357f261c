package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"ruuviair/internal/protocol"
)

// Record is one persisted measurement row.
type Record struct {
	ID int64
	protocol.Measurement
}

// Aggregate holds per-field averages over a time window. A field nobody
// reported in the window stays nil.
type Aggregate struct {
	Count       int64
	Temperature *float64
	Humidity    *float64
	Pressure    *float64
	PM25        *float64
	CO2         *float64
	Luminosity  *float64
	RSSI        *float64
}

// Stats summarizes the database for status reporting.
type Stats struct {
	TotalRecords  int64
	UniqueDevices int64
	FirstRecord   *time.Time
	LastRecord    *time.Time
	FileSizeBytes int64
}

const measurementColumns = `
	id, ts, device_id, format, ruuvi_mac,
	temperature_c, humidity_percent, pressure_pa,
	pm1_0, pm2_5, pm4_0, pm10_0,
	co2_ppm, voc_index, nox_index, luminosity_lux,
	accel_g_x, accel_g_y, accel_g_z,
	battery_mv, tx_power_dbm, movement_counter,
	measurement_sequence, calibration_in_progress, rssi_dbm`

// QueryWindow returns all measurements in [from, to) in timestamp order.
func (s *Store) QueryWindow(ctx context.Context, from, to time.Time) ([]Record, error) {
	query := `SELECT ` + measurementColumns + `
		FROM measurements
		WHERE ts >= ? AND ts < ?
		ORDER BY ts ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query window: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// QueryDevice returns one device's measurements in [from, to) in timestamp
// order.
func (s *Store) QueryDevice(ctx context.Context, deviceID string, from, to time.Time) ([]Record, error) {
	query := `SELECT ` + measurementColumns + `
		FROM measurements
		WHERE device_id = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, deviceID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query device: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Latest returns the newest measurement for a device, or nil when the device
// has no rows.
func (s *Store) Latest(ctx context.Context, deviceID string) (*Record, error) {
	query := `SELECT ` + measurementColumns + `
		FROM measurements
		WHERE device_id = ? OR ruuvi_mac = ?
		ORDER BY ts DESC, id DESC
		LIMIT 1`
	rows, err := s.db.QueryContext(ctx, query, deviceID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest: %w", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// AggregateDevice computes per-field averages for one device over [from, to).
// Used by the rate-limited cloud uploader.
func (s *Store) AggregateDevice(ctx context.Context, deviceID string, from, to time.Time) (*Aggregate, error) {
	query := `
		SELECT
			COUNT(*),
			AVG(temperature_c),
			AVG(humidity_percent),
			AVG(pressure_pa),
			AVG(pm2_5),
			AVG(co2_ppm),
			AVG(luminosity_lux),
			AVG(rssi_dbm)
		FROM measurements
		WHERE (device_id = ? OR ruuvi_mac = ?) AND ts >= ? AND ts < ?`

	agg := &Aggregate{}
	var temp, hum, pres, pm25, co2, lum, rssi sql.NullFloat64
	err := s.db.QueryRowContext(ctx, query, deviceID, deviceID, from.UTC(), to.UTC()).Scan(
		&agg.Count, &temp, &hum, &pres, &pm25, &co2, &lum, &rssi,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate device: %w", err)
	}

	agg.Temperature = nullableFloat(temp)
	agg.Humidity = nullableFloat(hum)
	agg.Pressure = nullableFloat(pres)
	agg.PM25 = nullableFloat(pm25)
	agg.CO2 = nullableFloat(co2)
	agg.Luminosity = nullableFloat(lum)
	agg.RSSI = nullableFloat(rssi)
	return agg, nil
}

// Stats returns database-wide statistics.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT device_id) FROM measurements
	`).Scan(&st.TotalRecords, &st.UniqueDevices)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}

	// MIN(ts)/MAX(ts) would lose the column's declared type and scan back as
	// text, so the range comes from plain ordered selects.
	if st.TotalRecords > 0 {
		var first, last time.Time
		err = s.db.QueryRowContext(ctx,
			`SELECT ts FROM measurements ORDER BY ts ASC LIMIT 1`).Scan(&first)
		if err != nil {
			return nil, fmt.Errorf("failed to query first record: %w", err)
		}
		err = s.db.QueryRowContext(ctx,
			`SELECT ts FROM measurements ORDER BY ts DESC LIMIT 1`).Scan(&last)
		if err != nil {
			return nil, fmt.Errorf("failed to query last record: %w", err)
		}
		st.FirstRecord = &first
		st.LastRecord = &last
	}

	if info, err := os.Stat(s.path); err == nil {
		st.FileSizeBytes = info.Size()
	}
	return st, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var (
			r        Record
			format   string
			ruuviMAC sql.NullString
			pressure sql.NullInt64
			co2      sql.NullInt64
			voc      sql.NullInt64
			nox      sql.NullInt64
			battery  sql.NullInt64
			txPower  sql.NullInt64
			movement sql.NullInt64
			sequence sql.NullInt64
			calib    bool
		)
		err := rows.Scan(
			&r.ID, &r.Timestamp, &r.DeviceID, &format, &ruuviMAC,
			&r.Temperature, &r.Humidity, &pressure,
			&r.PM1, &r.PM25, &r.PM4, &r.PM10,
			&co2, &voc, &nox, &r.Luminosity,
			&r.AccelerationX, &r.AccelerationY, &r.AccelerationZ,
			&battery, &txPower, &movement,
			&sequence, &calib, &r.RSSI,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}

		r.Format = protocol.ParseFormat(format)
		r.RuuviMAC = ruuviMAC.String
		r.CalibrationInProgress = calib
		if pressure.Valid {
			v := uint32(pressure.Int64)
			r.Pressure = &v
		}
		if co2.Valid {
			v := uint16(co2.Int64)
			r.CO2 = &v
		}
		if voc.Valid {
			v := uint16(voc.Int64)
			r.VOC = &v
		}
		if nox.Valid {
			v := uint16(nox.Int64)
			r.NOX = &v
		}
		if battery.Valid {
			v := uint16(battery.Int64)
			r.BatteryVoltage = &v
		}
		if txPower.Valid {
			v := int(txPower.Int64)
			r.TXPower = &v
		}
		if movement.Valid {
			v := uint8(movement.Int64)
			r.MovementCounter = &v
		}
		if sequence.Valid {
			v := uint32(sequence.Int64)
			r.Sequence = &v
		}

		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
