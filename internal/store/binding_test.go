package store

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ayusman/tabletouch/internal/surface"
)

func TestBindingRepository(t *testing.T) {
	s := newTestStore(t)
	repo := s.Bindings()

	key := &Binding{
		ControlType: surface.Square,
		PluginName:  "keyboard",
		ActionName:  "keystroke",
		Config:      json.RawMessage(`{"key":"space"}`),
		Enabled:     true,
	}
	if err := repo.Create(key); err != nil {
		t.Fatalf("failed to create binding: %v", err)
	}
	if key.ID == "" || key.CreatedAt.IsZero() {
		t.Fatal("ID and CreatedAt should be set after create")
	}

	volume := &Binding{ControlType: surface.Slider, PluginName: "system-control", ActionName: "volume-set"}
	if err := repo.Create(volume); err != nil {
		t.Fatalf("failed to create binding: %v", err)
	}

	if err := repo.Create(&Binding{ControlType: surface.Unknown, PluginName: "x", ActionName: "y"}); err == nil {
		t.Error("expected error for unknown control type")
	}

	got, err := repo.GetByID(key.ID)
	if err != nil {
		t.Fatalf("failed to get binding: %v", err)
	}
	if got.ControlType != surface.Square || got.PluginName != "keyboard" || !got.Enabled {
		t.Errorf("unexpected binding: %+v", got)
	}
	if string(got.Config) != `{"key":"space"}` {
		t.Errorf("unexpected config %s", got.Config)
	}

	all, err := repo.List()
	if err != nil {
		t.Fatalf("failed to list bindings: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(all))
	}
	if string(all[1].Config) != "{}" {
		t.Errorf("missing config should default to {}, got %s", all[1].Config)
	}

	enabled, err := repo.ListEnabled()
	if err != nil {
		t.Fatalf("failed to list enabled bindings: %v", err)
	}
	if len(enabled) != 1 || enabled[0].ID != key.ID {
		t.Errorf("expected only the keyboard binding enabled, got %+v", enabled)
	}

	if err := repo.SetEnabled(volume.ID, true); err != nil {
		t.Fatalf("failed to enable binding: %v", err)
	}
	enabled, _ = repo.ListEnabled()
	if len(enabled) != 2 {
		t.Errorf("expected 2 enabled bindings, got %d", len(enabled))
	}

	if err := repo.Delete(key.ID); err != nil {
		t.Fatalf("failed to delete binding: %v", err)
	}
	if _, err := repo.GetByID(key.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.SetEnabled("missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
