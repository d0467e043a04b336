package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/ayusman/tabletouch/internal/surface"
)

type staticBindings struct {
	mu       sync.Mutex
	bindings []Binding
	err      error
}

func (s *staticBindings) Bindings() ([]Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bindings, s.err
}

func squareEvent(id string) surface.ContactEvent {
	return surface.ContactEvent{ControlID: id, ControlType: surface.Square, Bounds: image.Rect(0, 0, 50, 50)}
}

func sliderAt(x int) surface.ContactEvent {
	return surface.ContactEvent{
		ControlID:   "s",
		ControlType: surface.Slider,
		Bounds:      image.Rect(0, 0, 200, 40),
		Point:       image.Pt(x, 20),
	}
}

func newTestDispatcher(source BindingSource, queue int) (*Dispatcher, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	config := DefaultDispatcherConfig()
	config.QueueSize = queue
	return NewDispatcher(NewManager(""), NewExecutor(time.Second), source, config, logger), hook
}

func TestDispatcher_EdgeDetection(t *testing.T) {
	d, _ := newTestDispatcher(&staticBindings{}, 64)

	d.HandleContacts([]surface.ContactEvent{squareEvent("a")})
	d.HandleContacts([]surface.ContactEvent{squareEvent("a")})
	d.HandleContacts([]surface.ContactEvent{squareEvent("a"), squareEvent("b")})
	if got := d.Fired(); got != 2 {
		t.Fatalf("held controls should fire once, got %d", got)
	}

	// release and press again
	d.HandleContacts(nil)
	d.HandleContacts([]surface.ContactEvent{squareEvent("a")})
	if got := d.Fired(); got != 3 {
		t.Fatalf("expected re-press to fire, got %d", got)
	}
}

func TestDispatcher_SliderStep(t *testing.T) {
	d, _ := newTestDispatcher(&staticBindings{}, 64)

	d.HandleContacts([]surface.ContactEvent{sliderAt(100)}) // press at 0.5
	d.HandleContacts([]surface.ContactEvent{sliderAt(105)}) // 0.525, below step
	d.HandleContacts([]surface.ContactEvent{sliderAt(112)}) // 0.56 from 0.5
	d.HandleContacts([]surface.ContactEvent{sliderAt(114)}) // 0.57 from 0.56

	if got := d.Fired(); got != 2 {
		t.Fatalf("expected press plus one move, got %d", got)
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	d, hook := newTestDispatcher(&staticBindings{}, 1)

	d.HandleContacts([]surface.ContactEvent{squareEvent("a"), squareEvent("b"), squareEvent("c")})

	if d.Fired() != 1 || d.Dropped() != 2 {
		t.Fatalf("expected 1 fired and 2 dropped, got %d and %d", d.Fired(), d.Dropped())
	}
	if hook.LastEntry() == nil || hook.LastEntry().Level != logrus.WarnLevel {
		t.Error("dropped touches should be logged as warnings")
	}
}

func TestDispatcher_RunsBoundPlugin(t *testing.T) {
	out := filepath.Join(t.TempDir(), "requests.log")
	p := scriptPlugin(t, "recorder", `cat >> "`+out+`"
echo >> "`+out+`"
echo '{"success":true}'
`)
	p.Manifest.Actions = []string{"press"}

	manager := NewManager(filepath.Dir(p.Path))
	manager.plugins[p.Manifest.Name] = p

	source := &staticBindings{bindings: []Binding{
		{ControlType: surface.Square, Plugin: "recorder", Action: "press", Config: json.RawMessage(`{"key":"space"}`)},
		{ControlType: surface.Circle, Plugin: "recorder", Action: "press"},
		{ControlType: surface.Square, Plugin: "missing", Action: "press"},
		{ControlType: surface.Square, Plugin: "recorder", Action: "undeclared"},
	}}

	logger, hook := test.NewNullLogger()
	d := NewDispatcher(manager, NewExecutor(5*time.Second), source, DefaultDispatcherConfig(), logger)
	d.Start(context.Background())
	defer d.Stop()

	d.HandleContacts([]surface.ContactEvent{squareEvent("a")})

	var data []byte
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, _ = os.ReadFile(out)
		if len(hook.AllEntries()) >= 2 && len(data) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one plugin run, got %d: %q", len(lines), data)
	}

	var req Request
	if err := json.Unmarshal([]byte(lines[0]), &req); err != nil {
		t.Fatalf("plugin received invalid request: %v", err)
	}
	if req.Action != "press" || req.Control.ID != "a" || string(req.Config) != `{"key":"space"}` {
		t.Errorf("unexpected request %+v", req)
	}

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	if warnings != 2 {
		t.Errorf("expected warnings for the missing plugin and undeclared action, got %d", warnings)
	}
}

func TestDispatcher_BindingError(t *testing.T) {
	source := &staticBindings{err: errors.New("db closed")}
	logger, hook := test.NewNullLogger()
	d := NewDispatcher(NewManager(""), NewExecutor(time.Second), source, DefaultDispatcherConfig(), logger)

	d.Start(context.Background())
	d.Start(context.Background())
	d.HandleContacts([]surface.ContactEvent{squareEvent("a")})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(hook.AllEntries()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	d.Stop()
	d.Stop()

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Fatalf("expected an error entry, got %+v", entry)
	}
}
