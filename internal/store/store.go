package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/awaistahir/loadplan/internal/engine"
	"github.com/awaistahir/loadplan/internal/tariff"
)

// Lookup outcomes shared by every table.
var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// Store handles persistent storage using SQLite.
type Store struct {
	db *sql.DB
}

// ApplianceRecord is a stored appliance: the engine's model plus identity
// and an enabled switch the planner filters on.
type ApplianceRecord struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
	engine.Appliance
}

// PlanRecord is one solved schedule kept for history.
type PlanRecord struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	TariffName string     `json:"tariff_name"`
	Unit       string     `json:"unit"`
	MaxLoadKW  float64    `json:"max_load_kw"`
	TotalCost  float64    `json:"total_cost"`
	States     int        `json:"states"`
	Hours      [][]string `json:"hours"`
}

// NewStore opens the database file and initializes the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// initialize creates the database schema.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS appliances (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		power_kw REAL NOT NULL,
		duration_hours INTEGER NOT NULL,
		window_start INTEGER NOT NULL,
		window_end INTEGER NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tariffs (
		name TEXT PRIMARY KEY,
		unit TEXT NOT NULL,
		hourly TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		tariff_name TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		max_load_kw REAL NOT NULL,
		total_cost REAL NOT NULL,
		states INTEGER NOT NULL,
		hours TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_plans_created ON plans(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// AddAppliance validates and inserts a new appliance under a fresh ID.
// A second appliance with the same name is rejected with ErrExists.
func (s *Store) AddAppliance(a engine.Appliance) (ApplianceRecord, error) {
	if err := a.Validate(); err != nil {
		return ApplianceRecord{}, err
	}

	rec := ApplianceRecord{ID: uuid.NewString(), Enabled: true, Appliance: a}

	query := `INSERT OR IGNORE INTO appliances
		(id, name, power_kw, duration_hours, window_start, window_end, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	res, err := s.db.Exec(query, rec.ID, a.Name, a.PowerKW, a.DurationHours,
		a.WindowStart, a.WindowEnd, boolToInt(rec.Enabled))
	if err != nil {
		return ApplianceRecord{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return ApplianceRecord{}, err
	} else if n == 0 {
		return ApplianceRecord{}, fmt.Errorf("appliance %q: %w", a.Name, ErrExists)
	}

	return rec, nil
}

// UpdateAppliance replaces a stored appliance's fields, keeping its ID.
func (s *Store) UpdateAppliance(rec ApplianceRecord) error {
	if err := rec.Appliance.Validate(); err != nil {
		return err
	}

	query := `UPDATE appliances
		SET name = ?, power_kw = ?, duration_hours = ?, window_start = ?, window_end = ?, enabled = ?, updated_at = ?
		WHERE id = ?`

	res, err := s.db.Exec(query, rec.Name, rec.PowerKW, rec.DurationHours,
		rec.WindowStart, rec.WindowEnd, boolToInt(rec.Enabled), time.Now(), rec.ID)
	if err != nil {
		return err
	}
	return mustAffect(res, rec.ID)
}

// GetAppliance retrieves one appliance by ID or by name.
func (s *Store) GetAppliance(idOrName string) (ApplianceRecord, error) {
	query := `SELECT id, name, power_kw, duration_hours, window_start, window_end, enabled
		FROM appliances WHERE id = ? OR name = ?`

	var rec ApplianceRecord
	var enabledInt int
	err := s.db.QueryRow(query, idOrName, idOrName).Scan(&rec.ID, &rec.Name, &rec.PowerKW,
		&rec.DurationHours, &rec.WindowStart, &rec.WindowEnd, &enabledInt)
	if errors.Is(err, sql.ErrNoRows) {
		return ApplianceRecord{}, fmt.Errorf("appliance %q: %w", idOrName, ErrNotFound)
	}
	if err != nil {
		return ApplianceRecord{}, err
	}
	rec.Enabled = enabledInt == 1
	return rec, nil
}

// Appliances lists stored appliances ordered by name. With onlyEnabled set
// it returns just the ones the planner should schedule.
func (s *Store) Appliances(onlyEnabled bool) ([]ApplianceRecord, error) {
	query := `SELECT id, name, power_kw, duration_hours, window_start, window_end, enabled
		FROM appliances`
	if onlyEnabled {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []ApplianceRecord{}
	for rows.Next() {
		var rec ApplianceRecord
		var enabledInt int
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.PowerKW, &rec.DurationHours,
			&rec.WindowStart, &rec.WindowEnd, &enabledInt); err != nil {
			return nil, err
		}
		rec.Enabled = enabledInt == 1
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RemoveAppliance deletes an appliance by ID or name.
func (s *Store) RemoveAppliance(idOrName string) error {
	res, err := s.db.Exec(`DELETE FROM appliances WHERE id = ? OR name = ?`, idOrName, idOrName)
	if err != nil {
		return err
	}
	return mustAffect(res, idOrName)
}

// SetApplianceEnabled flips whether the planner schedules an appliance.
func (s *Store) SetApplianceEnabled(idOrName string, enabled bool) error {
	res, err := s.db.Exec(`UPDATE appliances SET enabled = ?, updated_at = ? WHERE id = ? OR name = ?`,
		boolToInt(enabled), time.Now(), idOrName, idOrName)
	if err != nil {
		return err
	}
	return mustAffect(res, idOrName)
}

// SaveTariff saves or updates a price curve. With activate set it also
// becomes the curve plans are built against.
func (s *Store) SaveTariff(t tariff.Tariff, activate bool) error {
	hourlyJSON, err := json.Marshal(t.Hourly)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO tariffs (name, unit, hourly, active, updated_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(name) DO UPDATE SET
			unit = excluded.unit,
			hourly = excluded.hourly,
			updated_at = excluded.updated_at`
	if _, err := tx.Exec(query, t.Name, t.Unit, string(hourlyJSON), time.Now()); err != nil {
		return err
	}
	if activate {
		if _, err := tx.Exec(`UPDATE tariffs SET active = (name = ?)`, t.Name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetTariff retrieves a curve by name.
func (s *Store) GetTariff(name string) (tariff.Tariff, error) {
	var t tariff.Tariff
	var hourlyJSON string
	err := s.db.QueryRow(`SELECT name, unit, hourly FROM tariffs WHERE name = ?`, name).
		Scan(&t.Name, &t.Unit, &hourlyJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return tariff.Tariff{}, fmt.Errorf("tariff %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return tariff.Tariff{}, err
	}
	if err := json.Unmarshal([]byte(hourlyJSON), &t.Hourly); err != nil {
		return tariff.Tariff{}, err
	}
	return t, nil
}

// ActiveTariff returns the curve plans are currently built against.
func (s *Store) ActiveTariff() (tariff.Tariff, error) {
	var t tariff.Tariff
	var hourlyJSON string
	err := s.db.QueryRow(`SELECT name, unit, hourly FROM tariffs WHERE active = 1`).
		Scan(&t.Name, &t.Unit, &hourlyJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return tariff.Tariff{}, fmt.Errorf("active tariff: %w", ErrNotFound)
	}
	if err != nil {
		return tariff.Tariff{}, err
	}
	if err := json.Unmarshal([]byte(hourlyJSON), &t.Hourly); err != nil {
		return tariff.Tariff{}, err
	}
	return t, nil
}

// SavePlan appends a solved schedule to the history. A missing ID or
// timestamp is filled in.
func (s *Store) SavePlan(rec PlanRecord) (PlanRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	hoursJSON, err := json.Marshal(rec.Hours)
	if err != nil {
		return PlanRecord{}, err
	}

	query := `INSERT INTO plans (id, created_at, tariff_name, unit, max_load_kw, total_cost, states, hours)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.Exec(query, rec.ID, rec.CreatedAt, rec.TariffName, rec.Unit,
		rec.MaxLoadKW, rec.TotalCost, rec.States, string(hoursJSON)); err != nil {
		return PlanRecord{}, err
	}
	return rec, nil
}

// GetPlan retrieves one stored plan by ID.
func (s *Store) GetPlan(id string) (PlanRecord, error) {
	query := `SELECT id, created_at, tariff_name, unit, max_load_kw, total_cost, states, hours
		FROM plans WHERE id = ?`
	rec, err := scanPlan(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return PlanRecord{}, fmt.Errorf("plan %q: %w", id, ErrNotFound)
	}
	return rec, err
}

// RecentPlans lists the newest stored plans first.
func (s *Store) RecentPlans(limit int) ([]PlanRecord, error) {
	query := `SELECT id, created_at, tariff_name, unit, max_load_kw, total_cost, states, hours
		FROM plans ORDER BY created_at DESC, rowid DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []PlanRecord{}
	for rows.Next() {
		rec, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (PlanRecord, error) {
	var rec PlanRecord
	var hoursJSON string
	if err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.TariffName, &rec.Unit,
		&rec.MaxLoadKW, &rec.TotalCost, &rec.States, &hoursJSON); err != nil {
		return PlanRecord{}, err
	}
	if err := json.Unmarshal([]byte(hoursJSON), &rec.Hours); err != nil {
		return PlanRecord{}, err
	}
	return rec, nil
}

func mustAffect(res sql.Result, subject string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("appliance %q: %w", subject, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
