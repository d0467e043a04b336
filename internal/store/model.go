package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"github.com/ayusman/tabletouch/internal/classifier"
)

// ModelRecord describes a trained shape classifier stored in the database.
type ModelRecord struct {
	ID         string                      `json:"id"`
	Name       string                      `json:"name"`
	Descriptor classifier.DescriptorConfig `json:"descriptor"`
	Samples    int                         `json:"samples"`
	Accuracy   float64                     `json:"accuracy"`
	Active     bool                        `json:"active"`
	CreatedAt  time.Time                   `json:"created_at"`
}

type modelRow struct {
	ID         string    `db:"id"`
	Name       string    `db:"name"`
	Descriptor string    `db:"descriptor"`
	Samples    int       `db:"samples"`
	Accuracy   float64   `db:"accuracy"`
	Active     int       `db:"active"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r modelRow) record() (ModelRecord, error) {
	rec := ModelRecord{
		ID:        r.ID,
		Name:      r.Name,
		Samples:   r.Samples,
		Accuracy:  r.Accuracy,
		Active:    r.Active == 1,
		CreatedAt: r.CreatedAt,
	}
	if err := jsoniter.UnmarshalFromString(r.Descriptor, &rec.Descriptor); err != nil {
		return ModelRecord{}, fmt.Errorf("model %s descriptor: %w", r.ID, err)
	}
	return rec, nil
}

const modelColumns = `id, name, descriptor, samples, accuracy, active, created_at`

// ModelRepository provides CRUD operations for trained models.
type ModelRepository struct {
	db *sqlx.DB
}

// Models returns the model repository for this store.
func (s *Store) Models() *ModelRepository {
	return &ModelRepository{db: s.db}
}

// Create stores a trained model. When activate is set the new model becomes
// the only active one.
func (r *ModelRepository) Create(name string, m *classifier.Model, samples int, accuracy float64, activate bool) (*ModelRecord, error) {
	data, err := m.MarshalBinary()
	if err != nil {
		return nil, err
	}
	desc, err := jsoniter.MarshalToString(m.Descriptor)
	if err != nil {
		return nil, err
	}

	rec := &ModelRecord{
		ID:         uuid.New().String(),
		Name:       name,
		Descriptor: m.Descriptor,
		Samples:    samples,
		Accuracy:   accuracy,
		Active:     activate,
		CreatedAt:  time.Now().UTC(),
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if activate {
		if _, err := tx.Exec(`UPDATE models SET active = 0`); err != nil {
			return nil, err
		}
	}

	active := 0
	if activate {
		active = 1
	}
	_, err = tx.Exec(
		`INSERT INTO models (id, name, descriptor, samples, accuracy, active, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, desc, rec.Samples, rec.Accuracy, active, data, rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByID retrieves a model record by its ID.
func (r *ModelRepository) GetByID(id string) (*ModelRecord, error) {
	var row modelRow
	if err := r.db.Get(&row, `SELECT `+modelColumns+` FROM models WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Load decodes the classifier stored under id.
func (r *ModelRepository) Load(id string) (*classifier.Model, error) {
	var data []byte
	if err := r.db.Get(&data, `SELECT data FROM models WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	m := &classifier.Model{}
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return m, nil
}

// Active returns the active model record and its decoded classifier.
// It returns ErrNotFound when no model has been activated.
func (r *ModelRepository) Active() (*ModelRecord, *classifier.Model, error) {
	var id string
	err := r.db.Get(&id, `SELECT id FROM models WHERE active = 1 ORDER BY created_at DESC LIMIT 1`)
	if err != nil {
		return nil, nil, notFound(err)
	}

	rec, err := r.GetByID(id)
	if err != nil {
		return nil, nil, err
	}
	m, err := r.Load(id)
	if err != nil {
		return nil, nil, err
	}
	return rec, m, nil
}

// List retrieves all model records, newest first.
func (r *ModelRepository) List() ([]ModelRecord, error) {
	var rows []modelRow
	if err := r.db.Select(&rows, `SELECT `+modelColumns+` FROM models ORDER BY created_at DESC`); err != nil {
		return nil, err
	}

	records := make([]ModelRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// SetActive makes the model with the given ID the only active one.
func (r *ModelRepository) SetActive(id string) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE models SET active = 0`); err != nil {
		return err
	}
	result, err := tx.Exec(`UPDATE models SET active = 1 WHERE id = ?`, id)
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
	return tx.Commit()
}

// Delete removes a model by its ID.
func (r *ModelRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM models WHERE id = ?`, id)
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
