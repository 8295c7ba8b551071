// Package generate builds synthetic Socket.IO recordings for trying out the
// replay server without a captured session.
package generate

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/SmitUplenchwar2687/sockreplay/pkg/recording"
)

const (
	// PatternSteady spaces client messages evenly.
	PatternSteady = "steady"
	// PatternBurst clusters client messages with quiet gaps.
	PatternBurst = "burst"
	// PatternRamp sends client messages more densely over time.
	PatternRamp = "ramp"
)

// DefaultEvents is the client event pool used when Options.Events is empty.
var DefaultEvents = []string{
	"join",
	"message",
	"typing",
	"presence",
	"leave",
}

// Options controls how a synthetic recording is generated.
type Options struct {
	Count    int           // client messages
	Users    int           // distinct user ids in payloads
	Duration time.Duration // span of the client messages
	Pattern  string
	Start    time.Time
	Seed     int64
	Events   []string

	// Latency is the upper bound of the random delay before each reply.
	Latency   time.Duration
	Namespace string
	RequestID string
	// Welcome adds a server event at connect time.
	Welcome bool
	// Disconnect sets closedAt just after the last reply.
	Disconnect bool
}

// DefaultOptions returns the defaults used by the generate command.
func DefaultOptions() Options {
	return Options{
		Count:      20,
		Users:      3,
		Duration:   time.Minute,
		Pattern:    PatternSteady,
		Latency:    200 * time.Millisecond,
		Welcome:    true,
		Disconnect: true,
	}
}

// Recording creates a synthetic recording. Each client message is answered
// by a "<event>:ok" server event carrying the same payload.
func Recording(opts Options) (*recording.Recording, error) {
	if opts.Count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", opts.Count)
	}
	if opts.Users <= 0 {
		return nil, fmt.Errorf("users must be positive, got %d", opts.Users)
	}
	if opts.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %s", opts.Duration)
	}
	if opts.Latency < 0 {
		return nil, fmt.Errorf("latency must not be negative, got %s", opts.Latency)
	}

	if opts.Pattern == "" {
		opts.Pattern = PatternSteady
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().Truncate(time.Second)
	}
	if len(opts.Events) == 0 {
		opts.Events = DefaultEvents
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	requestID := opts.RequestID
	if requestID == "" {
		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			return nil, fmt.Errorf("generating request id: %w", err)
		}
		requestID = id.String()
	}

	var offsets []time.Duration
	switch opts.Pattern {
	case PatternBurst:
		offsets = burstOffsets(rng, opts.Count, opts.Duration)
	case PatternRamp:
		offsets = rampOffsets(opts.Count, opts.Duration)
	default: // steady and unknown patterns default to steady behavior.
		offsets = steadyOffsets(opts.Count, opts.Duration)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	startMs := millis(opts.Start)
	rec := &recording.Recording{
		Type:      recording.TypeSocketIO,
		RequestID: requestID,
		Connection: recording.Connection{
			URL:       "ws://localhost:3000/socket.io/?EIO=4&transport=websocket",
			Namespace: opts.Namespace,
			Timestamp: startMs,
		},
		Messages: make([]recording.Message, 0, 2*opts.Count+1),
	}

	if opts.Welcome {
		rec.Messages = append(rec.Messages, recording.Message{
			Direction: recording.ServerToClient,
			Event:     "welcome",
			Data:      []any{map[string]any{"requestId": requestID}},
			Timestamp: startMs,
		})
	}

	// Replies are appended right after their request so that a slow reply
	// still sorts before the next client message.
	last := startMs
	for i, off := range offsets {
		sent := startMs + float64(off.Milliseconds())
		if sent < last {
			sent = last
		}
		event := opts.Events[rng.Intn(len(opts.Events))]
		payload := map[string]any{
			"user": fmt.Sprintf("user-%d", rng.Intn(opts.Users)+1),
			"seq":  i + 1,
		}

		reply := sent
		if opts.Latency > 0 {
			reply += float64(rng.Int63n(opts.Latency.Milliseconds() + 1))
		}
		if i+1 < len(offsets) {
			if next := startMs + float64(offsets[i+1].Milliseconds()); reply > next {
				reply = next
			}
		}

		rec.Messages = append(rec.Messages,
			recording.Message{Direction: recording.ClientToServer, Event: event, Data: []any{payload}, Timestamp: sent},
			recording.Message{Direction: recording.ServerToClient, Event: event + ":ok", Data: []any{payload}, Timestamp: reply},
		)
		last = reply
	}

	if opts.Disconnect {
		closed := last + 1
		rec.ClosedAt = &closed
	}
	return rec, nil
}

func millis(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Millisecond)
}

func steadyOffsets(count int, dur time.Duration) []time.Duration {
	interval := dur / time.Duration(count)
	offsets := make([]time.Duration, count)
	for i := range offsets {
		offsets[i] = time.Duration(i) * interval
	}
	return offsets
}

func burstOffsets(rng *rand.Rand, count int, dur time.Duration) []time.Duration {
	offsets := make([]time.Duration, 0, count)
	numBursts := 4
	burstSize := count / numBursts
	burstGap := dur / time.Duration(numBursts)

	for b := 0; b < numBursts; b++ {
		burstStart := time.Duration(b) * burstGap
		for i := 0; i < burstSize; i++ {
			offsets = append(offsets, burstStart+time.Duration(rng.Intn(1000))*time.Millisecond)
		}
	}
	for len(offsets) < count {
		offsets = append(offsets, time.Duration(rng.Int63n(int64(dur))))
	}
	return offsets
}

func rampOffsets(count int, dur time.Duration) []time.Duration {
	offsets := make([]time.Duration, count)
	for i := range offsets {
		frac := float64(i) / float64(count)
		offsets[i] = time.Duration(frac * frac * float64(dur))
	}
	return offsets
}
