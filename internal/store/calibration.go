package store

import (
	"database/sql"
	"image"
	"time"

	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/oklog/ulid/v2"

	"github.com/ayusman/tabletouch/internal/surface"
)

// Calibration is a committed control set together with the color frame size
// the controls were registered against.
type Calibration struct {
	ID          string            `json:"id"`
	ColorWidth  int               `json:"color_width"`
	ColorHeight int               `json:"color_height"`
	CommittedAt time.Time         `json:"committed_at"`
	Controls    []surface.Control `json:"controls"`
}

type calibrationRow struct {
	ID          string    `db:"id"`
	ColorWidth  int       `db:"color_width"`
	ColorHeight int       `db:"color_height"`
	CommittedAt time.Time `db:"committed_at"`
}

type controlRow struct {
	ID     string          `db:"id"`
	Type   string          `db:"type"`
	Bounds string          `db:"bounds"`
	Depth  sql.NullFloat64 `db:"depth"`
}

// CalibrationRepository persists committed calibrations.
type CalibrationRepository struct {
	db *sqlx.DB
}

// Calibrations returns the calibration repository for this store.
func (s *Store) Calibrations() *CalibrationRepository {
	return &CalibrationRepository{db: s.db}
}

// Save inserts a calibration and its controls in a single transaction.
// A missing commit time is set to now and a missing ID gets a ULID, so IDs
// sort in commit order.
func (r *CalibrationRepository) Save(cal *Calibration) error {
	if cal.CommittedAt.IsZero() {
		cal.CommittedAt = time.Now().UTC()
	}
	if cal.ID == "" {
		cal.ID = ulid.MustNew(ulid.Timestamp(cal.CommittedAt), ulid.DefaultEntropy()).String()
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO calibrations (id, color_width, color_height, committed_at) VALUES (?, ?, ?, ?)`,
		cal.ID, cal.ColorWidth, cal.ColorHeight, cal.CommittedAt,
	)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO calibration_controls (id, calibration_id, seq, type, bounds, depth) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range cal.Controls {
		bounds, err := jsoniter.MarshalToString(c.Bounds)
		if err != nil {
			return err
		}
		depth := sql.NullFloat64{Float64: c.Depth, Valid: c.HasDepth}
		if _, err := stmt.Exec(c.ID, cal.ID, i, c.Type.String(), bounds, depth); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByID retrieves a calibration and its controls by ID.
func (r *CalibrationRepository) GetByID(id string) (*Calibration, error) {
	var row calibrationRow
	err := r.db.Get(&row,
		`SELECT id, color_width, color_height, committed_at FROM calibrations WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return r.withControls(row)
}

// Latest retrieves the most recently committed calibration.
func (r *CalibrationRepository) Latest() (*Calibration, error) {
	var row calibrationRow
	err := r.db.Get(&row,
		`SELECT id, color_width, color_height, committed_at FROM calibrations
		 ORDER BY committed_at DESC LIMIT 1`)
	if err != nil {
		return nil, notFound(err)
	}
	return r.withControls(row)
}

// List retrieves up to limit calibrations, newest first.
func (r *CalibrationRepository) List(limit int) ([]Calibration, error) {
	var rows []calibrationRow
	err := r.db.Select(&rows,
		`SELECT id, color_width, color_height, committed_at FROM calibrations
		 ORDER BY committed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	cals := make([]Calibration, 0, len(rows))
	for _, row := range rows {
		cal, err := r.withControls(row)
		if err != nil {
			return nil, err
		}
		cals = append(cals, *cal)
	}
	return cals, nil
}

func (r *CalibrationRepository) withControls(row calibrationRow) (*Calibration, error) {
	var rows []controlRow
	err := r.db.Select(&rows,
		`SELECT id, type, bounds, depth FROM calibration_controls
		 WHERE calibration_id = ? ORDER BY seq`, row.ID)
	if err != nil {
		return nil, err
	}

	cal := &Calibration{
		ID:          row.ID,
		ColorWidth:  row.ColorWidth,
		ColorHeight: row.ColorHeight,
		CommittedAt: row.CommittedAt,
		Controls:    make([]surface.Control, 0, len(rows)),
	}
	for _, cr := range rows {
		var bounds image.Rectangle
		if err := jsoniter.UnmarshalFromString(cr.Bounds, &bounds); err != nil {
			return nil, err
		}
		cal.Controls = append(cal.Controls, surface.Control{
			ID:       cr.ID,
			Type:     surface.ParseControlType(cr.Type),
			Bounds:   bounds,
			Depth:    cr.Depth.Float64,
			HasDepth: cr.Depth.Valid,
		})
	}
	return cal, nil
}
