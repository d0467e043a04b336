package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ayusman/tabletouch/internal/surface"
)

// Binding routes touches on a control type to a plugin action.
type Binding struct {
	ID          string              `json:"id"`
	ControlType surface.ControlType `json:"-"`
	PluginName  string              `json:"plugin"`
	ActionName  string              `json:"action"`
	Config      json.RawMessage     `json:"config"`
	Enabled     bool                `json:"enabled"`
	CreatedAt   time.Time           `json:"created_at"`
}

type bindingRow struct {
	ID          string    `db:"id"`
	ControlType string    `db:"control_type"`
	PluginName  string    `db:"plugin_name"`
	ActionName  string    `db:"action_name"`
	Config      string    `db:"config"`
	Enabled     int       `db:"enabled"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r bindingRow) binding() Binding {
	return Binding{
		ID:          r.ID,
		ControlType: surface.ParseControlType(r.ControlType),
		PluginName:  r.PluginName,
		ActionName:  r.ActionName,
		Config:      json.RawMessage(r.Config),
		Enabled:     r.Enabled == 1,
		CreatedAt:   r.CreatedAt,
	}
}

const bindingColumns = `id, control_type, plugin_name, action_name, config, enabled, created_at`

// BindingRepository provides CRUD operations for plugin bindings.
type BindingRepository struct {
	db *sqlx.DB
}

// Bindings returns the binding repository for this store.
func (s *Store) Bindings() *BindingRepository {
	return &BindingRepository{db: s.db}
}

// Create inserts a new binding. A missing ID is generated.
func (r *BindingRepository) Create(b *Binding) error {
	if !b.ControlType.Valid() {
		return fmt.Errorf("invalid control type %d", b.ControlType)
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.CreatedAt = time.Now().UTC()

	config := b.Config
	if config == nil {
		config = json.RawMessage("{}")
	}

	enabled := 0
	if b.Enabled {
		enabled = 1
	}

	_, err := r.db.Exec(
		`INSERT INTO bindings (id, control_type, plugin_name, action_name, config, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ControlType.String(), b.PluginName, b.ActionName, string(config), enabled, b.CreatedAt,
	)
	return err
}

// GetByID retrieves a binding by its ID.
func (r *BindingRepository) GetByID(id string) (*Binding, error) {
	var row bindingRow
	if err := r.db.Get(&row, `SELECT `+bindingColumns+` FROM bindings WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	b := row.binding()
	return &b, nil
}

// List retrieves all bindings in creation order.
func (r *BindingRepository) List() ([]Binding, error) {
	return r.selectBindings(`SELECT ` + bindingColumns + ` FROM bindings ORDER BY created_at`)
}

// ListEnabled retrieves the enabled bindings in creation order.
func (r *BindingRepository) ListEnabled() ([]Binding, error) {
	return r.selectBindings(`SELECT ` + bindingColumns + ` FROM bindings WHERE enabled = 1 ORDER BY created_at`)
}

func (r *BindingRepository) selectBindings(query string) ([]Binding, error) {
	var rows []bindingRow
	if err := r.db.Select(&rows, query); err != nil {
		return nil, err
	}

	bindings := make([]Binding, len(rows))
	for i, row := range rows {
		bindings[i] = row.binding()
	}
	return bindings, nil
}

// SetEnabled enables or disables a binding.
func (r *BindingRepository) SetEnabled(id string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	result, err := r.db.Exec(`UPDATE bindings SET enabled = ? WHERE id = ?`, v, id)
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

// Delete removes a binding by its ID.
func (r *BindingRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM bindings WHERE id = ?`, id)
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
