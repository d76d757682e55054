// Package store persists decoded meter readings in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"gitlab.com/d21d3q/minowmbus/pkg/minowmbus"
)

// ErrNotFound is returned when a meter has no stored reading.
var ErrNotFound = errors.New("reading not found")

// Reading is a stored decoded telegram.
type Reading struct {
	ID         int64
	ReceivedAt time.Time
	MeterID    string
	Driver     string
	Name       string
	RawHex     string
	Status     string
	TotalM3    sql.NullFloat64
	Fields     map[string]any
	Monthly    []minowmbus.MonthlyVolume
}

// DB wraps a SQLite database connection for reading storage.
type DB struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path. Foreign keys
// are enabled on every pooled connection so deleting a reading drops its
// monthly history.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		received_at TEXT NOT NULL,
		meter_id TEXT NOT NULL,
		driver TEXT NOT NULL,
		name TEXT,
		raw_hex TEXT NOT NULL,
		status TEXT,
		total_m3 REAL,
		fields_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_readings_meter ON readings(meter_id, received_at);

	CREATE TABLE IF NOT EXISTS monthly_volumes (
		reading_id INTEGER NOT NULL REFERENCES readings(id) ON DELETE CASCADE,
		month INTEGER NOT NULL,
		volume_m3 REAL NOT NULL,
		PRIMARY KEY (reading_id, month)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Insert stores a decoded result together with its monthly history.
func (d *DB) Insert(ctx context.Context, receivedAt time.Time, res minowmbus.Result) (int64, error) {
	fieldsJSON, err := json.Marshal(res.Fields)
	if err != nil {
		return 0, fmt.Errorf("marshal fields: %w", err)
	}
	fs := res.FieldSet()
	name, _ := fs.String("name")
	status, _ := fs.String("status")
	var total sql.NullFloat64
	if v, err := fs.Float("total_m3"); err == nil {
		total = sql.NullFloat64{Float64: v, Valid: true}
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO readings (received_at, meter_id, driver, name, raw_hex, status, total_m3, fields_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, receivedAt.UTC().Format(time.RFC3339Nano), res.MeterID(), res.Driver, name, res.RawHex, status, total, string(fieldsJSON))
	if err != nil {
		return 0, fmt.Errorf("insert reading: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, m := range fs.MonthlyProfile() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO monthly_volumes (reading_id, month, volume_m3) VALUES (?, ?, ?)`,
			id, m.Month, m.VolumeM3); err != nil {
			return 0, fmt.Errorf("insert month %d: %w", m.Month, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// Latest returns the most recently received reading of a meter.
func (d *DB) Latest(ctx context.Context, meterID string) (Reading, error) {
	var (
		r          Reading
		receivedAt string
		name       sql.NullString
		status     sql.NullString
		fieldsJSON string
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT id, received_at, meter_id, driver, name, raw_hex, status, total_m3, fields_json
		FROM readings WHERE meter_id = ? ORDER BY received_at DESC, id DESC LIMIT 1
	`, meterID).Scan(&r.ID, &receivedAt, &r.MeterID, &r.Driver, &name, &r.RawHex, &status, &r.TotalM3, &fieldsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Reading{}, ErrNotFound
	}
	if err != nil {
		return Reading{}, fmt.Errorf("query reading: %w", err)
	}
	r.Name = name.String
	r.Status = status.String
	if r.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt); err != nil {
		return Reading{}, fmt.Errorf("parse received_at: %w", err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &r.Fields); err != nil {
		return Reading{}, fmt.Errorf("unmarshal fields: %w", err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT month, volume_m3 FROM monthly_volumes WHERE reading_id = ? ORDER BY month`, r.ID)
	if err != nil {
		return Reading{}, fmt.Errorf("query months: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m minowmbus.MonthlyVolume
		if err := rows.Scan(&m.Month, &m.VolumeM3); err != nil {
			return Reading{}, err
		}
		r.Monthly = append(r.Monthly, m)
	}
	return r, rows.Err()
}

// DeleteMeter removes every stored reading of a meter together with its
// monthly history and returns the number of readings removed.
func (d *DB) DeleteMeter(ctx context.Context, meterID string) (int64, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM readings WHERE meter_id = ?`, meterID)
	if err != nil {
		return 0, fmt.Errorf("delete readings: %w", err)
	}
	return res.RowsAffected()
}
