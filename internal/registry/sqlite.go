// internal/registry/sqlite.go
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite reads devices from the dashboard database.
type SQLite struct {
	db *sql.DB

	// older databases predate the data_version column
	hasDataVersion bool
}

// Open opens the database at path. The schema is owned by the dashboard;
// Open only inspects it.
func Open(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("registry: database path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", path, err)
	}
	// one connection so the pragma sticks
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: busy_timeout: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.inspect(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) inspect(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info(devices)")
	if err != nil {
		return fmt.Errorf("registry: inspect devices: %w", err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("registry: inspect devices: %w", err)
		}
		found = true
		if name == "data_version" {
			s.hasDataVersion = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("registry: inspect devices: %w", err)
	}
	if !found {
		return errors.New("registry: devices table missing")
	}
	return nil
}

// EnsureSchema creates the devices table when absent. Used by tests and `sensord` sandboxes.
func EnsureSchema(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("registry: open %s: %w", path, err)
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS devices (
			device_id         TEXT PRIMARY KEY,
			device_name       TEXT NOT NULL,
			mac_address       TEXT UNIQUE NOT NULL,
			last_seen         DATETIME,
			battery_level     INTEGER,
			connection_status TEXT DEFAULT 'disconnected',
			device_type       TEXT NOT NULL DEFAULT 'plant_sensor',
			data_version      INTEGER DEFAULT 1
		)
	`)
	if err != nil {
		return fmt.Errorf("registry: create devices: %w", err)
	}
	return nil
}

func (s *SQLite) selectColumns() string {
	if s.hasDataVersion {
		return "device_id, device_name, mac_address, device_type, data_version"
	}
	return "device_id, device_name, mac_address, device_type, NULL"
}

// Load returns every pollable device ordered by id.
func (s *SQLite) Load(ctx context.Context) ([]Device, error) {
	q := "SELECT " + s.selectColumns() + " FROM devices" +
		" WHERE device_type = ? OR device_type LIKE ?" +
		" ORDER BY device_id"

	rows, err := s.db.QueryContext(ctx, q, TypePlantSensor, TypeSwitchBotPrefix+"%")
	if err != nil {
		return nil, fmt.Errorf("registry: load devices: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("registry: load devices: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("registry: load devices: %w", err)
	}
	return out, nil
}

// Get returns one device by id.
func (s *SQLite) Get(ctx context.Context, id string) (Device, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+s.selectColumns()+" FROM devices WHERE device_id = ?", id)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if err != nil {
		return Device{}, fmt.Errorf("registry: get %s: %w", id, err)
	}
	return d, nil
}

// MarkSeen records the connection state, and battery level when known.
func (s *SQLite) MarkSeen(ctx context.Context, id, status string, battery *int, at time.Time) error {
	ts := at.Format("2006-01-02 15:04:05")
	var err error
	if battery != nil {
		_, err = s.db.ExecContext(ctx,
			"UPDATE devices SET connection_status = ?, last_seen = ?, battery_level = ? WHERE device_id = ?",
			status, ts, *battery, id)
	} else {
		_, err = s.db.ExecContext(ctx,
			"UPDATE devices SET connection_status = ?, last_seen = ? WHERE device_id = ?",
			status, ts, id)
	}
	if err != nil {
		return fmt.Errorf("registry: mark %s %s: %w", id, status, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(sc scanner) (Device, error) {
	var (
		d       Device
		version sql.NullInt64
	)
	if err := sc.Scan(&d.ID, &d.Name, &d.MAC, &d.Type, &version); err != nil {
		return Device{}, err
	}
	if version.Valid {
		d.PayloadVersion = NormalizeVersion(int(version.Int64))
	} else {
		d.PayloadVersion = GuessVersion(d.Name)
	}
	return d, nil
}
