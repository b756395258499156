package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Kind string

// Client -> server.
const (
	HELLO       Kind = "hello"
	UTTERANCE   Kind = "utterance"
	LISTEN      Kind = "listen"
	STOP        Kind = "stop"
	TRANSCRIPT  Kind = "transcript"
	AUDIO       Kind = "audio"
	RECOG_ERROR Kind = "recognition_error"
	SPOKEN      Kind = "spoken"
	VOICES      Kind = "voices"
	VOICE       Kind = "voice"
	CANCEL      Kind = "cancel"
)

// Server -> client.
const (
	MESSAGE     Kind = "message"
	LOADING     Kind = "loading"
	STATE       Kind = "state"
	SPEAK       Kind = "speak"
	HUSH        Kind = "cancel_speech"
	START_RECOG Kind = "start_recognition"
	STOP_RECOG  Kind = "stop_recognition"
	NAVIGATE    Kind = "navigate"
	LOCATION    Kind = "location"
	ERROR       Kind = "error"
)

type Voice struct {
	Name string `json:"name"`
	Lang string `json:"lang,omitempty"`
}

type State struct {
	Listening    bool `json:"listening"`
	Speaking     bool `json:"speaking"`
	VoiceEnabled bool `json:"voiceEnabled"`
}

// Event is a single websocket frame. Only the fields relevant to Kind are set.
type Event struct {
	Kind Kind `json:"kind"`

	ID      string          `json:"id,omitempty"`
	Text    string          `json:"text,omitempty"`
	Path    string          `json:"path,omitempty"`
	Flag    *bool           `json:"flag,omitempty"`
	Router  bool            `json:"router,omitempty"`
	Locale  string          `json:"locale,omitempty"`
	Format  string          `json:"format,omitempty"`
	Audio   []byte          `json:"audio,omitempty"`
	Voice   *Voice          `json:"voice,omitempty"`
	Voices  []Voice         `json:"voices,omitempty"`
	State   *State          `json:"state,omitempty"`
	Rate    float64         `json:"rate,omitempty"`
	Pitch   float64         `json:"pitch,omitempty"`
	Volume  float64         `json:"volume,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

func Bool(v bool) *bool { return &v }

func (e *Event) Bytes() ([]byte, error) {
	return json.Marshal(e)
}

var inbound = map[Kind]bool{
	HELLO: true, UTTERANCE: true, LISTEN: true, STOP: true, TRANSCRIPT: true,
	AUDIO: true, RECOG_ERROR: true, SPOKEN: true, VOICES: true, VOICE: true, CANCEL: true,
}

// Parse decodes and validates a client frame.
func Parse(data []byte) (*Event, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("empty frame")
	}

	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if !inbound[e.Kind] {
		return nil, fmt.Errorf("unknown kind: %q", e.Kind)
	}

	switch e.Kind {
	case AUDIO:
		if len(e.Audio) == 0 {
			return nil, errors.New("audio frame without data")
		}
	case VOICE:
		if e.Flag == nil {
			return nil, errors.New("voice frame without flag")
		}
	}
	return &e, nil
}
