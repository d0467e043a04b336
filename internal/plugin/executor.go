package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// MaxOutput bounds how much of a plugin's stdout and stderr is kept.
const MaxOutput = 64 << 10

// ErrEmptyResponse is returned when a plugin exits cleanly without replying.
var ErrEmptyResponse = errors.New("plugin wrote no response")

// Executor runs one plugin process per request.
//
// The request is written to stdin as JSON and stdout is parsed as a Response.
// The touch is also described in the environment (TABLETOUCH_ACTION,
// TABLETOUCH_CONTROL_ID, TABLETOUCH_CONTROL_TYPE, TABLETOUCH_POSITION) so
// shell plugins can act without parsing JSON.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates a new Executor with the given per-call timeout.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{timeout: timeout}
}

// Execute runs plugin for req, bounded by both ctx and the executor timeout.
func (e *Executor) Execute(ctx context.Context, plugin *Plugin, req *Request) (*Response, error) {
	payload, err := jsoniter.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, plugin.Executable)
	cmd.Dir = plugin.Path
	cmd.Env = append(os.Environ(), requestEnv(req)...)
	cmd.Stdin = bytes.NewReader(payload)
	// Children of a killed plugin may still hold stdout open.
	cmd.WaitDelay = 500 * time.Millisecond

	stdout := &cappedBuffer{max: MaxOutput}
	stderr := &cappedBuffer{max: MaxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err = cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("plugin %s timed out after %s", plugin.Manifest.Name, e.timeout)
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("plugin %s failed: %w: %s", plugin.Manifest.Name, err, msg)
		}
		return nil, fmt.Errorf("plugin %s failed: %w", plugin.Manifest.Name, err)
	}
	if stdout.truncated {
		return nil, fmt.Errorf("plugin %s response exceeds %d bytes", plugin.Manifest.Name, MaxOutput)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return nil, fmt.Errorf("plugin %s: %w", plugin.Manifest.Name, ErrEmptyResponse)
	}

	var response Response
	if err := jsoniter.Unmarshal(out, &response); err != nil {
		return nil, fmt.Errorf("failed to parse plugin response: %w, stdout: %s", err, out)
	}
	return &response, nil
}

func requestEnv(req *Request) []string {
	return []string{
		"TABLETOUCH_ACTION=" + req.Action,
		"TABLETOUCH_CONTROL_ID=" + req.Control.ID,
		"TABLETOUCH_CONTROL_TYPE=" + req.Control.Type,
		"TABLETOUCH_POSITION=" + strconv.FormatFloat(req.Position, 'f', 4, 64),
	}
}

// cappedBuffer keeps the first max bytes written and drops the rest.
type cappedBuffer struct {
	bytes.Buffer
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if room := b.max - b.Len(); room < len(p) {
		b.truncated = true
		if room <= 0 {
			return n, nil
		}
		p = p[:room]
	}
	b.Buffer.Write(p)
	return n, nil
}
