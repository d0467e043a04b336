package store

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ayusman/tabletouch/internal/surface"
)

// ContactRecord is a logged contact event.
type ContactRecord struct {
	ID            int64          `json:"id" db:"id"`
	CalibrationID sql.NullString `json:"-" db:"calibration_id"`
	ControlID     string         `json:"control_id" db:"control_id"`
	ControlType   string         `json:"control_type" db:"control_type"`
	Difference    float64        `json:"difference" db:"difference"`
	FrameTS       int64          `json:"frame_ts" db:"frame_ts"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// ContactRepository appends to and reads the contact log.
type ContactRepository struct {
	db *sqlx.DB
}

// Contacts returns the contact repository for this store.
func (s *Store) Contacts() *ContactRepository {
	return &ContactRepository{db: s.db}
}

// Record logs the events of one frame. An empty calibrationID stores NULL.
func (r *ContactRepository) Record(calibrationID string, events []surface.ContactEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO contact_events (calibration_id, control_id, control_type, difference, frame_ts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	cal := sql.NullString{String: calibrationID, Valid: calibrationID != ""}
	now := time.Now().UTC()
	for _, e := range events {
		if _, err := stmt.Exec(cal, e.ControlID, e.ControlType.String(), e.Difference, e.Timestamp, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Recent returns up to limit logged events, newest first.
func (r *ContactRepository) Recent(limit int) ([]ContactRecord, error) {
	var records []ContactRecord
	err := r.db.Select(&records,
		`SELECT id, calibration_id, control_id, control_type, difference, frame_ts, created_at
		 FROM contact_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// CountByControl returns the number of logged events per control for a calibration.
func (r *ContactRepository) CountByControl(calibrationID string) (map[string]int, error) {
	var rows []struct {
		ControlID string `db:"control_id"`
		N         int    `db:"n"`
	}
	err := r.db.Select(&rows,
		`SELECT control_id, COUNT(*) AS n FROM contact_events
		 WHERE calibration_id = ? GROUP BY control_id`, calibrationID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ControlID] = row.N
	}
	return counts, nil
}
