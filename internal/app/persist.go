package app

import (
	"github.com/ayusman/tabletouch/internal/plugin"
	"github.com/ayusman/tabletouch/internal/store"
)

// StoreBindings serves the enabled bindings of a store to a plugin.Dispatcher.
type StoreBindings struct {
	store *store.Store
}

// NewStoreBindings returns a binding source backed by s.
func NewStoreBindings(s *store.Store) *StoreBindings {
	return &StoreBindings{store: s}
}

// Bindings implements plugin.BindingSource.
func (b *StoreBindings) Bindings() ([]plugin.Binding, error) {
	rows, err := b.store.Bindings().ListEnabled()
	if err != nil {
		return nil, err
	}

	out := make([]plugin.Binding, 0, len(rows))
	for _, r := range rows {
		out = append(out, plugin.Binding{
			ControlType: r.ControlType,
			Plugin:      r.PluginName,
			Action:      r.ActionName,
			Config:      r.Config,
		})
	}
	return out, nil
}
