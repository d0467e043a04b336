package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"gocv.io/x/gocv"

	"github.com/ayusman/tabletouch/internal/surface"
)

// ShapeSample is a labelled edge-map patch kept for training the classifier.
// Image holds the PNG encoding of the grayscale patch.
type ShapeSample struct {
	ID        int64               `json:"id" db:"id"`
	Label     surface.ControlType `json:"label" db:"label"`
	Width     int                 `json:"width" db:"width"`
	Height    int                 `json:"height" db:"height"`
	Image     []byte              `json:"-" db:"image"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
}

// Decode returns the sample patch as a single channel image. The caller must
// Close it.
func (s ShapeSample) Decode() (gocv.Mat, error) {
	img, err := gocv.IMDecode(s.Image, gocv.IMReadGrayScale)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("sample %d: %w", s.ID, err)
	}
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), fmt.Errorf("sample %d: empty image", s.ID)
	}
	return img, nil
}

// SampleRepository provides CRUD operations for shape samples.
type SampleRepository struct {
	db *sqlx.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Add stores a labelled patch and returns its ID.
func (r *SampleRepository) Add(label surface.ControlType, patch gocv.Mat) (int64, error) {
	if !label.Valid() {
		return 0, fmt.Errorf("invalid sample label %d", label)
	}
	if patch.Empty() {
		return 0, fmt.Errorf("empty sample patch")
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, patch)
	if err != nil {
		return 0, fmt.Errorf("encode sample: %w", err)
	}
	defer buf.Close()

	result, err := r.db.Exec(
		`INSERT INTO shape_samples (label, width, height, image, created_at) VALUES (?, ?, ?, ?, ?)`,
		int(label), patch.Cols(), patch.Rows(), buf.GetBytes(), time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetByID retrieves a sample, including its image, by ID.
func (r *SampleRepository) GetByID(id int64) (*ShapeSample, error) {
	var s ShapeSample
	err := r.db.Get(&s,
		`SELECT id, label, width, height, image, created_at FROM shape_samples WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// List retrieves every sample with its image, oldest first.
func (r *SampleRepository) List() ([]ShapeSample, error) {
	var samples []ShapeSample
	err := r.db.Select(&samples,
		`SELECT id, label, width, height, image, created_at FROM shape_samples ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// Counts returns the number of stored samples per label.
func (r *SampleRepository) Counts() (map[surface.ControlType]int, error) {
	var rows []struct {
		Label surface.ControlType `db:"label"`
		N     int                 `db:"n"`
	}
	if err := r.db.Select(&rows, `SELECT label, COUNT(*) AS n FROM shape_samples GROUP BY label`); err != nil {
		return nil, err
	}

	counts := make(map[surface.ControlType]int, len(surface.ControlTypes))
	for _, row := range rows {
		counts[row.Label] = row.N
	}
	return counts, nil
}

// Delete removes a sample by its ID.
func (r *SampleRepository) Delete(id int64) error {
	result, err := r.db.Exec(`DELETE FROM shape_samples WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every sample and returns how many were deleted.
func (r *SampleRepository) DeleteAll() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM shape_samples`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
