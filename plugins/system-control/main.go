// Package main is the system-control plugin. Printed buttons step the volume,
// the screen brightness or the media player; printed sliders set the volume or
// brightness to the touch position, scaled into the binding's min..max range.
//
// Commands run through osascript on macOS and pactl, brightnessctl and
// playerctl on Linux.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strconv"
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
	Level   *int   `json:"level,omitempty"`
}

// Range limits what a slider can set, in percent.
type Range struct {
	Min *int `json:"min"`
	Max *int `json:"max"`
}

// level maps a slider position onto the configured range.
func (r Range) level(position float64) int {
	lo, hi := 0, 100
	if r.Min != nil {
		lo = clamp(*r.Min, 0, 100)
	}
	if r.Max != nil {
		hi = clamp(*r.Max, lo, 100)
	}
	position = float64(clamp(int(position*1000+0.5), 0, 1000)) / 1000
	return lo + int(position*float64(hi-lo)+0.5)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func osascript(script string) []string { return []string{"osascript", "-e", script} }

func keyCode(code int) []string {
	return osascript(fmt.Sprintf(`tell application "System Events" to key code %d`, code))
}

// step actions are the same for every control type.
var steps = map[string]map[string][]string{
	"volume-up": {
		"darwin": osascript(`set volume output volume ((output volume of (get volume settings)) + 10)`),
		"linux":  {"pactl", "set-sink-volume", "@DEFAULT_SINK@", "+10%"},
	},
	"volume-down": {
		"darwin": osascript(`set volume output volume ((output volume of (get volume settings)) - 10)`),
		"linux":  {"pactl", "set-sink-volume", "@DEFAULT_SINK@", "-10%"},
	},
	"volume-mute": {
		"darwin": osascript(`set volume output muted (not (output muted of (get volume settings)))`),
		"linux":  {"pactl", "set-sink-mute", "@DEFAULT_SINK@", "toggle"},
	},
	"brightness-up": {
		"darwin": keyCode(144),
		"linux":  {"brightnessctl", "set", "10%+"},
	},
	"brightness-down": {
		"darwin": keyCode(145),
		"linux":  {"brightnessctl", "set", "10%-"},
	},
	"media-play-pause": {"darwin": keyCode(100), "linux": {"playerctl", "play-pause"}},
	"media-next":       {"darwin": keyCode(101), "linux": {"playerctl", "next"}},
	"media-prev":       {"darwin": keyCode(98), "linux": {"playerctl", "previous"}},
}

// absolute actions need a slider position.
var absolute = map[string]map[string]func(level int) []string{
	"volume-set": {
		"darwin": func(l int) []string { return osascript(fmt.Sprintf("set volume output volume %d", l)) },
		"linux": func(l int) []string {
			return []string{"pactl", "set-sink-volume", "@DEFAULT_SINK@", strconv.Itoa(l) + "%"}
		},
	},
	"brightness-set": {
		"linux": func(l int) []string { return []string{"brightnessctl", "set", strconv.Itoa(l) + "%"} },
	},
}

// Actions lists every action the plugin understands.
func Actions() []string {
	var out []string
	for a := range steps {
		out = append(out, a)
	}
	for a := range absolute {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// plan resolves a request into the command to run and, for sliders, the level
// being set.
func plan(goos string, req Request) ([]string, *int, error) {
	if byOS, ok := steps[req.Action]; ok {
		argv, ok := byOS[goos]
		if !ok {
			return nil, nil, fmt.Errorf("%s is not supported on %s", req.Action, goos)
		}
		return argv, nil, nil
	}

	byOS, ok := absolute[req.Action]
	if !ok {
		return nil, nil, fmt.Errorf("unknown action: %s", req.Action)
	}
	if req.Control.Type != "slider" {
		return nil, nil, fmt.Errorf("%s needs a slider, got %s", req.Action, req.Control.Type)
	}
	build, ok := byOS[goos]
	if !ok {
		return nil, nil, fmt.Errorf("%s is not supported on %s", req.Action, goos)
	}

	var r Range
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &r); err != nil {
			return nil, nil, fmt.Errorf("parse binding config: %w", err)
		}
	}
	level := r.level(req.Position)
	return build(level), &level, nil
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		reply(Response{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}

	argv, level, err := plan(runtime.GOOS, req)
	if err != nil {
		reply(Response{Error: err.Error()})
		return
	}
	if out, err := exec.Command(argv[0], argv[1:]...).CombinedOutput(); err != nil {
		reply(Response{Error: fmt.Sprintf("%s failed: %v: %s", req.Action, err, strings.TrimSpace(string(out)))})
		return
	}
	reply(Response{Success: true, Level: level})
}

func reply(resp Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}
