// Package main is the keyboard plugin. A touch on a printed button sends one
// keystroke; a touch on a printed slider sends the key chosen by the touch
// position from a list of keys.
//
// Keystrokes go through osascript on macOS and xdotool on Linux.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Control identifies the touched control.
type Control struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Request is read from stdin.
type Request struct {
	Action   string          `json:"action"`
	Control  Control         `json:"control"`
	Position float64         `json:"position"`
	Config   json.RawMessage `json:"config"`
}

// Response is written to stdout.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Sent    string `json:"sent,omitempty"`
}

// Binding is the per-control configuration stored with the binding.
type Binding struct {
	Key       string   `json:"key"`
	Keys      []string `json:"keys"`
	Modifiers []string `json:"modifiers"`
}

// Stroke is a resolved key press.
type Stroke struct {
	Key       string
	Modifiers []string
}

func (s Stroke) String() string {
	if len(s.Modifiers) == 0 {
		return s.Key
	}
	return strings.Join(s.Modifiers, "+") + "+" + s.Key
}

var errNoKey = errors.New("binding has no key")

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		reply(Response{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	stroke, err := resolve(req)
	if err != nil {
		reply(Response{Error: err.Error()})
		return
	}
	if err := send(runtime.GOOS, stroke); err != nil {
		reply(Response{Error: fmt.Sprintf("send %s: %v", stroke, err)})
		return
	}
	reply(Response{Success: true, Sent: stroke.String()})
}

// resolve turns a request into the stroke to send.
func resolve(req Request) (Stroke, error) {
	if req.Action != "keystroke" && req.Action != "shortcut" {
		return Stroke{}, fmt.Errorf("unknown action: %s", req.Action)
	}

	var b Binding
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &b); err != nil {
			return Stroke{}, fmt.Errorf("parse binding config: %w", err)
		}
	}

	key := b.Key
	if req.Control.Type == "slider" && len(b.Keys) > 0 {
		key = pick(b.Keys, req.Position)
	}
	if key == "" {
		return Stroke{}, errNoKey
	}
	if req.Action == "shortcut" && len(b.Modifiers) == 0 {
		return Stroke{}, errors.New("shortcut needs at least one modifier")
	}
	return Stroke{Key: key, Modifiers: b.Modifiers}, nil
}

// pick maps a slider position in [0,1] onto equal segments of keys.
func pick(keys []string, position float64) string {
	position = math.Max(0, math.Min(1, position))
	i := int(position * float64(len(keys)))
	if i == len(keys) {
		i--
	}
	return keys[i]
}

var appleModifiers = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

var xdoModifiers = map[string]string{
	"command": "super",
	"cmd":     "super",
	"super":   "super",
	"option":  "alt",
	"alt":     "alt",
	"control": "ctrl",
	"ctrl":    "ctrl",
	"shift":   "shift",
}

// command builds the argv that sends s on the given OS.
func command(goos string, s Stroke) ([]string, error) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf(`tell application "System Events" to keystroke %q`, s.Key)
		var mods []string
		for _, m := range s.Modifiers {
			if am, ok := appleModifiers[strings.ToLower(m)]; ok {
				mods = append(mods, am)
			}
		}
		if len(mods) > 0 {
			script += " using {" + strings.Join(mods, ", ") + "}"
		}
		return []string{"osascript", "-e", script}, nil
	case "linux":
		combo := make([]string, 0, len(s.Modifiers)+1)
		for _, m := range s.Modifiers {
			if xm, ok := xdoModifiers[strings.ToLower(m)]; ok {
				combo = append(combo, xm)
			}
		}
		combo = append(combo, s.Key)
		return []string{"xdotool", "key", "--clearmodifiers", strings.Join(combo, "+")}, nil
	default:
		return nil, fmt.Errorf("unsupported platform %s", goos)
	}
}

func send(goos string, s Stroke) error {
	argv, err := command(goos, s)
	if err != nil {
		return err
	}
	out, err := exec.Command(argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func reply(resp Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}
