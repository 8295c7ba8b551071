package transcript

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/sockreplay/internal/recording"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestTranscript_Record(t *testing.T) {
	tr := New(nil)

	err := tr.Record(Entry{Time: epoch, SID: "s1", Kind: KindConnect, Namespace: "/"})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tr.Len())
	}
}

func TestTranscript_Entries_ReturnsCopy(t *testing.T) {
	tr := New(nil)
	tr.Record(Entry{Time: epoch, SID: "s1", Kind: KindMessage, Event: "ping"})

	entries := tr.Entries()
	entries[0].Event = "mutated"

	if tr.Entries()[0].Event != "ping" {
		t.Error("Entries() should return a copy, original was mutated")
	}
}

func TestTranscript_StreamToWriter(t *testing.T) {
	var buf bytes.Buffer
	tr := New(&buf)

	tr.Record(Entry{Time: epoch, SID: "s1", Kind: KindConnect})
	tr.Record(Entry{Time: epoch, SID: "s1", Kind: KindMessage, Event: "hello"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var e Entry
	json.Unmarshal(lines[1], &e)
	if e.Event != "hello" {
		t.Errorf("second entry event = %q, want %q", e.Event, "hello")
	}
}

func TestTranscript_ExportFile_LoadJSON(t *testing.T) {
	tr := New(nil)
	tr.Record(Entry{Time: epoch, SID: "s1", Kind: KindMessage, Direction: recording.ClientToServer, Event: "a", Args: []any{"x"}, Matched: true})
	tr.Record(Entry{Time: epoch.Add(time.Second), SID: "s1", Kind: KindMessage, Direction: recording.ServerToClient, Event: "b"})

	path := filepath.Join(t.TempDir(), "transcript.json")
	if err := tr.ExportFile(path); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	entries, err := LoadJSON(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("loaded %d entries, want 2", len(entries))
	}
	if !entries[0].Matched || entries[1].Direction != recording.ServerToClient {
		t.Errorf("entries = %+v", entries)
	}
}

func TestTranscript_ExportJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := New(nil).ExportJSON(&buf); err != nil {
		t.Fatal(err)
	}
	if got := bytes.TrimSpace(buf.Bytes()); string(got) != "[]" {
		t.Errorf("ExportJSON() = %s, want []", got)
	}
}

func TestTranscript_Recording(t *testing.T) {
	tr := New(nil)
	tr.Record(Entry{Time: epoch, SID: "s1", Kind: KindConnect, Namespace: "/chat", URL: "ws://127.0.0.1:3000/socket.io/"})
	tr.Record(Entry{Time: epoch.Add(200 * time.Millisecond), SID: "s1", Kind: KindMessage, Direction: recording.ClientToServer, Event: "ping", Args: []any{"hello"}})
	tr.Record(Entry{Time: epoch, SID: "other", Kind: KindConnect})
	tr.Record(Entry{Time: epoch.Add(250 * time.Millisecond), SID: "s1", Kind: KindMessage, Direction: recording.ServerToClient, Event: "pong"})
	tr.Record(Entry{Time: epoch.Add(time.Second), SID: "s1", Kind: KindDisconnect, Reason: "client"})

	rec := tr.Recording("s1")
	if rec == nil {
		t.Fatal("Recording() = nil")
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if rec.Connection.Namespace != "/chat" || rec.Connection.URL == "" {
		t.Errorf("Connection = %+v", rec.Connection)
	}
	if len(rec.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(rec.Messages))
	}
	if gap := rec.Messages[1].Timestamp - rec.Messages[0].Timestamp; gap != 50 {
		t.Errorf("gap = %v, want 50", gap)
	}
	if rec.Messages[1].Data == nil {
		t.Error("Data should be non-nil")
	}
	if rec.ClosedAt == nil || *rec.ClosedAt-rec.Connection.Timestamp != 1000 {
		t.Errorf("ClosedAt = %v", rec.ClosedAt)
	}

	if tr.Recording("missing") != nil {
		t.Error("Recording(missing) should be nil")
	}
	if sids := tr.SIDs(); len(sids) != 2 || sids[0] != "s1" || sids[1] != "other" {
		t.Errorf("SIDs() = %v", sids)
	}
}

func TestTranscript_ConcurrentAccess(t *testing.T) {
	tr := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record(Entry{Time: epoch, SID: "s", Kind: KindMessage})
		}()
	}
	wg.Wait()

	if tr.Len() != 100 {
		t.Errorf("Len() = %d, want 100", tr.Len())
	}
}
