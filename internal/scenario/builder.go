package scenario

import (
	"math"
	"sort"

	"github.com/SmitUplenchwar2687/sockreplay/internal/recording"
)

// Options controls a single Build call.
type Options struct {
	// Speed divides every recorded gap. 2 replays twice as fast. Values
	// <= 0 fall back to the builder's default speed.
	Speed float64 `json:"speed,omitempty"`
}

// Builder converts recordings into scenarios. Build is pure: no I/O and
// no timers.
type Builder struct {
	defaultSpeed float64
}

// NewBuilder creates a Builder. A defaultSpeed that is not a positive
// finite number means 1.
func NewBuilder(defaultSpeed float64) *Builder {
	if !validSpeed(defaultSpeed) {
		defaultSpeed = 1
	}
	return &Builder{defaultSpeed: defaultSpeed}
}

// DefaultSpeed returns the speed used when Options.Speed is not positive.
func (b *Builder) DefaultSpeed() float64 { return b.defaultSpeed }

// Build derives a scenario from rec.
//
// Server messages before the first client message form the on-connect
// burst, timed from the connection timestamp. Every client message opens a
// step whose responses are the server messages up to the next client
// message, timed from the trigger. Server pushes that arrive between two
// client messages are therefore attributed to the earlier one.
func (b *Builder) Build(rec recording.Recording, opts Options) Scenario {
	speed := opts.Speed
	if !validSpeed(speed) {
		speed = b.defaultSpeed
	}

	connTs := rec.Connection.Timestamp
	ns := rec.Connection.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}

	sorted := make([]recording.Message, len(rec.Messages))
	copy(sorted, rec.Messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	var clientIdx []int
	for i, m := range sorted {
		if m.Direction == recording.ClientToServer {
			clientIdx = append(clientIdx, i)
		}
	}

	eligible := sorted
	if len(clientIdx) > 0 {
		eligible = sorted[:clientIdx[0]]
	}
	onConnect := EmptyBurst()
	for _, m := range eligible {
		if m.Direction == recording.ServerToClient {
			onConnect.Responses = append(onConnect.Responses, toResponse(m, connTs, speed))
		}
	}

	steps := make([]Step, 0, len(clientIdx))
	for k, i := range clientIdx {
		end := len(sorted)
		if k+1 < len(clientIdx) {
			end = clientIdx[k+1]
		}
		trigger := sorted[i]
		responses := []Response{}
		for _, m := range sorted[i+1 : end] {
			if m.Direction == recording.ServerToClient {
				responses = append(responses, toResponse(m, trigger.Timestamp, speed))
			}
		}
		steps = append(steps, Step{
			Expect:    Expectation{Event: trigger.Event, Args: cloneArgs(trigger.Data)},
			Responses: responses,
		})
	}

	var disconnectAfter *int64
	if rec.ClosedAt != nil && *rec.ClosedAt > connTs {
		d := scaledDelay(*rec.ClosedAt-connTs, speed)
		disconnectAfter = &d
	}

	return Scenario{
		Namespace:         ns,
		OnConnect:         onConnect,
		Steps:             steps,
		DisconnectAfterMs: disconnectAfter,
		HandshakeReject:   rec.Connection.Reject,
	}
}

func toResponse(m recording.Message, from, speed float64) Response {
	return Response{
		Event:   m.Event,
		Args:    cloneArgs(m.Data),
		DelayMs: scaledDelay(m.Timestamp-from, speed),
	}
}

func validSpeed(speed float64) bool {
	return speed > 0 && !math.IsInf(speed, 1)
}

// scaledDelay divides a millisecond gap by speed, rounds half up and floors
// the result at zero.
func scaledDelay(gapMs, speed float64) int64 {
	d := math.Floor(gapMs/speed + 0.5)
	switch {
	case !(d > 0):
		return 0
	case d >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(d)
}
