package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		want    string
		wantErr bool
	}{
		{
			name: "button key",
			req:  Request{Action: "keystroke", Control: Control{Type: "square"}, Config: json.RawMessage(`{"key":"a"}`)},
			want: "a",
		},
		{
			name: "shortcut",
			req:  Request{Action: "shortcut", Control: Control{Type: "circle"}, Config: json.RawMessage(`{"key":"c","modifiers":["cmd"]}`)},
			want: "cmd+c",
		},
		{
			name: "slider low end",
			req:  Request{Action: "keystroke", Control: Control{Type: "slider"}, Position: 0, Config: json.RawMessage(`{"keys":["1","2","3"]}`)},
			want: "1",
		},
		{
			name: "slider middle",
			req:  Request{Action: "keystroke", Control: Control{Type: "slider"}, Position: 0.5, Config: json.RawMessage(`{"keys":["1","2","3"]}`)},
			want: "2",
		},
		{
			name: "slider high end",
			req:  Request{Action: "keystroke", Control: Control{Type: "slider"}, Position: 1, Config: json.RawMessage(`{"keys":["1","2","3"]}`)},
			want: "3",
		},
		{
			name: "slider falls back to key",
			req:  Request{Action: "keystroke", Control: Control{Type: "slider"}, Position: 0.3, Config: json.RawMessage(`{"key":"x"}`)},
			want: "x",
		},
		{name: "no key", req: Request{Action: "keystroke", Config: json.RawMessage(`{"key":""}`)}, wantErr: true},
		{name: "shortcut without modifier", req: Request{Action: "shortcut", Config: json.RawMessage(`{"key":"c"}`)}, wantErr: true},
		{name: "unknown action", req: Request{Action: "launch", Config: json.RawMessage(`{"key":"c"}`)}, wantErr: true},
		{name: "bad config", req: Request{Action: "keystroke", Config: json.RawMessage(`[`)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := resolve(tt.req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.String())
		})
	}
}

func TestPick_ClampsPosition(t *testing.T) {
	keys := []string{"a", "b"}
	assert.Equal(t, "a", pick(keys, -3))
	assert.Equal(t, "b", pick(keys, 7))
	assert.Equal(t, "b", pick(keys, 0.5))
}

func TestCommand(t *testing.T) {
	s := Stroke{Key: "v", Modifiers: []string{"ctrl", "shift", "bogus"}}

	argv, err := command("linux", s)
	require.NoError(t, err)
	assert.Equal(t, []string{"xdotool", "key", "--clearmodifiers", "ctrl+shift+v"}, argv)

	argv, err = command("darwin", s)
	require.NoError(t, err)
	assert.Equal(t, "osascript", argv[0])
	assert.Equal(t, `tell application "System Events" to keystroke "v" using {control down, shift down}`, argv[2])

	argv, err = command("darwin", Stroke{Key: "q"})
	require.NoError(t, err)
	assert.Equal(t, `tell application "System Events" to keystroke "q"`, argv[2])

	_, err = command("plan9", s)
	assert.Error(t, err)
}
