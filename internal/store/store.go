// Package store persists accepted measurements in an embedded SQLite
// database. The WAL journal lets dashboard and export readers proceed while
// ingestion commits; writers serialize on the commit itself.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"ruuviair/internal/protocol"
)

// Store owns the measurement database handle. All access to the underlying
// file goes through it.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens (creating if needed) the measurement database and brings the
// schema up to date.
func Open(path string, logger *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?%s", url.PathEscape(path), url.Values{
		"_journal_mode": {"WAL"},
		"_synchronous":  {"NORMAL"},
		"_busy_timeout": {"5000"},
		"_loc":          {"UTC"},
	}.Encode())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

const createMeasurementsTable = `
CREATE TABLE IF NOT EXISTS measurements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TIMESTAMP NOT NULL,
	device_id TEXT NOT NULL,
	format TEXT NOT NULL,
	ruuvi_mac TEXT,
	temperature_c REAL,
	humidity_percent REAL,
	pressure_pa INTEGER,
	pm1_0 REAL,
	pm2_5 REAL,
	pm4_0 REAL,
	pm10_0 REAL,
	co2_ppm INTEGER,
	voc_index INTEGER,
	nox_index INTEGER,
	luminosity_lux REAL,
	accel_g_x REAL,
	accel_g_y REAL,
	accel_g_z REAL,
	battery_mv INTEGER,
	tx_power_dbm INTEGER,
	movement_counter INTEGER,
	measurement_sequence INTEGER,
	calibration_in_progress INTEGER NOT NULL DEFAULT 0,
	rssi_dbm INTEGER
)`

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(createMeasurementsTable); err != nil {
		return fmt.Errorf("failed to create measurements table: %w", err)
	}

	// Schema evolution is additive: new columns arrive default-nullable so
	// rows persisted by older builds keep reading back.
	if err := s.addMissingColumns(); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_measurements_ts ON measurements(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_measurements_device_ts ON measurements(device_id, ts)`,
	}
	for _, stmt := range indexes {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// additiveColumns lists columns added after the initial schema, applied to
// databases created by earlier builds.
var additiveColumns = map[string]string{
	"calibration_in_progress": "INTEGER NOT NULL DEFAULT 0",
}

func (s *Store) addMissingColumns() error {
	rows, err := s.db.Query(`PRAGMA table_info(measurements)`)
	if err != nil {
		return fmt.Errorf("failed to read table info: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("failed to scan table info: %w", err)
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for name, def := range additiveColumns {
		if existing[name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE measurements ADD COLUMN %s %s", name, def)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to add column %s: %w", name, err)
		}
		s.logger.Info("added measurement column", zap.String("column", name))
	}
	return nil
}

// Insert appends one measurement. The row is durable before Insert returns.
func (s *Store) Insert(ctx context.Context, m *protocol.Measurement) error {
	query := `
		INSERT INTO measurements (
			ts, device_id, format, ruuvi_mac,
			temperature_c, humidity_percent, pressure_pa,
			pm1_0, pm2_5, pm4_0, pm10_0,
			co2_ppm, voc_index, nox_index, luminosity_lux,
			accel_g_x, accel_g_y, accel_g_z,
			battery_mv, tx_power_dbm, movement_counter,
			measurement_sequence, calibration_in_progress, rssi_dbm
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		ts, m.DeviceID, m.Format.String(), nullString(m.RuuviMAC),
		m.Temperature, m.Humidity, nullU32(m.Pressure),
		m.PM1, m.PM25, m.PM4, m.PM10,
		nullU16(m.CO2), nullU16(m.VOC), nullU16(m.NOX), m.Luminosity,
		m.AccelerationX, m.AccelerationY, m.AccelerationZ,
		nullU16(m.BatteryVoltage), m.TXPower, nullU8(m.MovementCounter),
		nullU32(m.Sequence), m.CalibrationInProgress, m.RSSI,
	)
	if err != nil {
		return fmt.Errorf("failed to insert measurement: %w", err)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullU32(v *uint32) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullU16(v *uint16) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullU8(v *uint8) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}
