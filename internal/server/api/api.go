// Package api provides HTTP API handlers for the tabletouch surface.
package api

import (
	"errors"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/ayusman/tabletouch/internal/surface"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

var validate = validator.New()

const timeFormat = "2006-01-02T15:04:05Z07:00"

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		jsonAPI.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads the request body into v and validates it. An empty body
// leaves v untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.ContentLength != 0 {
		if err := jsonAPI.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}
	return validate.Struct(v)
}

// splitPath returns the path segments following prefix.
func splitPath(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func queryInt(r *http.Request, key string, def, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

type rectResponse struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func toRect(r image.Rectangle) rectResponse {
	return rectResponse{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

type controlResponse struct {
	ID     string       `json:"id"`
	Type   string       `json:"type"`
	Bounds rectResponse `json:"bounds"`
	Depth  *float64     `json:"depth,omitempty"`
}

func toControls(controls []surface.Control) []controlResponse {
	out := make([]controlResponse, 0, len(controls))
	for _, c := range controls {
		cr := controlResponse{ID: c.ID, Type: c.Type.String(), Bounds: toRect(c.Bounds)}
		if c.HasDepth {
			d := c.Depth
			cr.Depth = &d
		}
		out = append(out, cr)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeFormat)
}
