// Package recording loads captured Socket.IO sessions and validates their
// shape before they are turned into replay scenarios.
package recording

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// TypeSocketIO is the protocol tag every loadable recording must carry.
const TypeSocketIO = "socketio"

// Direction tells which side of the connection sent a message.
type Direction string

const (
	ClientToServer Direction = "clientToServer"
	ServerToClient Direction = "serverToClient"
)

var (
	// ErrMalformedRecording is returned when input does not have the shape of
	// a Socket.IO recording.
	ErrMalformedRecording = errors.New("malformed recording")
	// ErrInvalidArgs is returned by constructors given a missing path, data,
	// store or request id.
	ErrInvalidArgs = errors.New("invalid arguments")
	// ErrNotFound is returned by a Store that has no recording for an id.
	ErrNotFound = errors.New("recording not found")
)

// Message is one observed wire event.
type Message struct {
	Direction Direction `json:"direction"`
	Event     string    `json:"event"`
	Data      []any     `json:"data"`
	Timestamp float64   `json:"timestamp"` // capture time in milliseconds
	IsBinary  bool      `json:"isBinary,omitempty"`
}

// Reject describes a simulated handshake failure.
type Reject struct {
	Message string  `json:"message"`
	AfterMs float64 `json:"afterMs,omitempty"`
	Code    any     `json:"code,omitempty"` // string or number
	Data    any     `json:"data,omitempty"`
}

// Connection holds what was known about the socket when it opened.
type Connection struct {
	URL       string  `json:"url"`
	Namespace string  `json:"namespace,omitempty"`
	Timestamp float64 `json:"timestamp"`
	Reject    *Reject `json:"reject,omitempty"`
}

// Recording is a full capture of one Socket.IO session.
type Recording struct {
	Type       string     `json:"type"`
	RequestID  string     `json:"requestId"`
	Connection Connection `json:"connection"`
	Messages   []Message  `json:"messages"`
	ClosedAt   *float64   `json:"closedAt,omitempty"`
}

// Validate reports whether r carries the protocol tag and a message list.
func (r *Recording) Validate() error {
	if r == nil {
		return errors.Wrap(ErrMalformedRecording, "recording is nil")
	}
	if r.Type != TypeSocketIO {
		return errors.Wrapf(ErrMalformedRecording, "type is %q, want %q", r.Type, TypeSocketIO)
	}
	if r.Messages == nil {
		return errors.Wrap(ErrMalformedRecording, "messages is not an array")
	}
	return nil
}

// Count returns the number of messages sent in direction d.
func (r *Recording) Count(d Direction) int {
	n := 0
	for _, m := range r.Messages {
		if m.Direction == d {
			n++
		}
	}
	return n
}

// parseValue turns a generic decoded value (maps, slices, scalars as
// produced by any of the supported decoders) into a Recording. When
// allowArray is set, a top-level array is searched for the first entry
// tagged as a Socket.IO recording.
func parseValue(v any, allowArray bool) (*Recording, error) {
	obj, err := normalize(v)
	if err != nil {
		return nil, err
	}

	if arr, ok := obj.([]any); ok {
		if !allowArray {
			return nil, errors.Wrap(ErrMalformedRecording, "expected an object, got an array")
		}
		for _, item := range arr {
			m, ok := item.(map[string]any)
			if ok && m["type"] == TypeSocketIO {
				if _, ok := m["messages"].([]any); !ok {
					break
				}
				return decodeObject(m)
			}
		}
		return nil, errors.Wrap(ErrMalformedRecording, "no valid socketio recording found in array")
	}

	m, ok := obj.(map[string]any)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedRecording, "expected an object, got %T", obj)
	}
	if m["type"] != TypeSocketIO {
		return nil, errors.Wrapf(ErrMalformedRecording, "type is %v, want %q", m["type"], TypeSocketIO)
	}
	if _, ok := m["messages"].([]any); !ok {
		return nil, errors.Wrap(ErrMalformedRecording, "messages is not an array")
	}
	return decodeObject(m)
}

// normalize round-trips v through JSON so numbers, maps and byte strings
// look the same no matter which decoder produced them.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedRecording, err.Error())
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(ErrMalformedRecording, err.Error())
	}
	return out, nil
}

func decodeObject(m map[string]any) (*Recording, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedRecording, err.Error())
	}
	var rec Recording
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(ErrMalformedRecording, "decoding recording: %v", err)
	}
	for i := range rec.Messages {
		if rec.Messages[i].Data == nil {
			rec.Messages[i].Data = []any{}
		}
	}
	return &rec, nil
}
