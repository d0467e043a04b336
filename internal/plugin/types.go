// Package plugin runs external executables in response to touches on
// registered controls.
package plugin

import (
	"encoding/json"

	"github.com/ayusman/tabletouch/internal/surface"
)

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// HasAction reports whether the manifest declares the named action.
// A manifest without an action list accepts any action.
func (m Manifest) HasAction(name string) bool {
	if len(m.Actions) == 0 {
		return true
	}
	for _, a := range m.Actions {
		if a == name {
			return true
		}
	}
	return false
}

// ControlRef identifies the touched control in a Request.
type ControlRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Request represents a request sent to a plugin for execution.
type Request struct {
	Action  string     `json:"action"`
	Control ControlRef `json:"control"`
	// Position is where the fingertip sits along the control, from 0 to 1.
	Position float64         `json:"position"`
	Config   json.RawMessage `json:"config"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// NewRequest builds the request for a contact event.
func NewRequest(action string, e surface.ContactEvent, config json.RawMessage) *Request {
	if config == nil {
		config = json.RawMessage("{}")
	}
	return &Request{
		Action:   action,
		Control:  ControlRef{ID: e.ControlID, Type: e.ControlType.String()},
		Position: e.Position(),
		Config:   config,
	}
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Binding routes touches on one control type to a plugin action.
type Binding struct {
	ControlType surface.ControlType
	Plugin      string
	Action      string
	Config      json.RawMessage
}
