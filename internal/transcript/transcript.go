// Package transcript journals what a player actually exchanged with its
// clients so a replay session can be inspected or captured again.
package transcript

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/SmitUplenchwar2687/sockreplay/internal/recording"
)

// Kind classifies a transcript entry.
type Kind string

const (
	KindConnect    Kind = "connect"
	KindReject     Kind = "reject"
	KindMessage    Kind = "message"
	KindDisconnect Kind = "disconnect"
)

// Entry is one thing that happened on a live session.
type Entry struct {
	Time      time.Time           `json:"time"`
	SID       string              `json:"sid"`
	Kind      Kind                `json:"kind"`
	Namespace string              `json:"namespace,omitempty"`
	URL       string              `json:"url,omitempty"`
	Direction recording.Direction `json:"direction,omitempty"`
	Event     string              `json:"event,omitempty"`
	Args      []any               `json:"args,omitempty"`
	Matched   bool                `json:"matched,omitempty"` // client message advanced the cursor
	Reason    string              `json:"reason,omitempty"`
}

// Transcript collects entries. Thread-safe for concurrent use.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
	writer  io.Writer // optional: stream entries as they arrive
}

// New creates a new Transcript. If w is non-nil, entries are also
// written to w as newline-delimited JSON as they arrive.
func New(w io.Writer) *Transcript {
	return &Transcript{writer: w}
}

// Record appends e.
func (t *Transcript) Record(e Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, e)

	if t.writer != nil {
		if err := json.NewEncoder(t.writer).Encode(e); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns a copy of all entries.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// ExportJSON writes all entries to w as a JSON array.
func (t *Transcript) ExportJSON(w io.Writer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if t.entries == nil {
		return enc.Encode([]Entry{})
	}
	return enc.Encode(t.entries)
}

// ExportFile writes all entries to a file as a JSON array.
func (t *Transcript) ExportFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return t.ExportJSON(f)
}

// LoadJSON reads entries from a JSON array.
func LoadJSON(r io.Reader) ([]Entry, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SIDs returns the session ids in order of first appearance.
func (t *Transcript) SIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, e := range t.entries {
		if !seen[e.SID] {
			seen[e.SID] = true
			out = append(out, e.SID)
		}
	}
	return out
}

// Recording turns the entries of session sid back into a recording, so a
// replay can itself be replayed. It returns nil when sid has no entries.
func (t *Transcript) Recording(sid string) *recording.Recording {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rec *recording.Recording
	for _, e := range t.entries {
		if e.SID != sid {
			continue
		}
		if rec == nil {
			rec = &recording.Recording{
				Type:       recording.TypeSocketIO,
				RequestID:  sid,
				Connection: recording.Connection{Namespace: e.Namespace, Timestamp: millis(e.Time)},
				Messages:   []recording.Message{},
			}
		}
		switch e.Kind {
		case KindConnect:
			rec.Connection.URL = e.URL
			rec.Connection.Namespace = e.Namespace
			rec.Connection.Timestamp = millis(e.Time)
		case KindReject:
			rec.Connection.Reject = &recording.Reject{Message: e.Reason}
		case KindMessage:
			args := e.Args
			if args == nil {
				args = []any{}
			}
			rec.Messages = append(rec.Messages, recording.Message{
				Direction: e.Direction,
				Event:     e.Event,
				Data:      args,
				Timestamp: millis(e.Time),
			})
		case KindDisconnect:
			closed := millis(e.Time)
			rec.ClosedAt = &closed
		}
	}
	return rec
}

func millis(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Millisecond)
}
