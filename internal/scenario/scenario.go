// Package scenario turns a Socket.IO recording into a replay plan: what the
// server emits on connect, which client messages it waits for, and what it
// answers with.
package scenario

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"time"

	"github.com/SmitUplenchwar2687/sockreplay/internal/recording"
)

// DefaultNamespace is the Socket.IO root namespace.
const DefaultNamespace = "/"

// Response is a server emission scheduled relative to its trigger.
type Response struct {
	Event   string `json:"event"`
	Args    []any  `json:"args"`
	DelayMs int64  `json:"delayMs"`
}

// Delay returns DelayMs as a duration.
func (r Response) Delay() time.Duration {
	return Millis(r.DelayMs)
}

const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// Millis converts a millisecond count to a duration. Negative counts are
// zero and counts past the duration range saturate.
func Millis(ms int64) time.Duration {
	switch {
	case ms <= 0:
		return 0
	case ms > maxMillis:
		return math.MaxInt64
	}
	return time.Duration(ms) * time.Millisecond
}

// FloatMillis is Millis for fractional counts. NaN is zero.
func FloatMillis(ms float64) time.Duration {
	switch {
	case !(ms > 0):
		return 0
	case ms >= float64(maxMillis):
		return math.MaxInt64
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// Burst is the group of emissions fired as soon as a client connects.
type Burst struct {
	Responses []Response `json:"responses"`
}

// EmptyBurst returns a burst with no responses.
func EmptyBurst() Burst {
	return Burst{Responses: []Response{}}
}

// Expectation is the client message a step waits for.
type Expectation struct {
	Event string `json:"event"`
	Args  []any  `json:"args"`
}

// Matches reports whether event and args equal the expectation.
func (e Expectation) Matches(event string, args []any) bool {
	return e.Event == event && ArgsEqual(e.Args, args)
}

// Step pairs one expected client message with the server's replies.
type Step struct {
	Expect    Expectation `json:"expect"`
	Responses []Response  `json:"responses"`
}

// Scenario is a replay plan. It holds no timers or sockets.
type Scenario struct {
	Namespace         string            `json:"namespace"`
	OnConnect         Burst             `json:"onConnect"`
	Steps             []Step            `json:"steps"`
	DisconnectAfterMs *int64            `json:"disconnectAfterMs,omitempty"`
	HandshakeReject   *recording.Reject `json:"handshakeReject,omitempty"`
}

// Events returns the distinct event names the steps expect, in first-seen order.
func (s Scenario) Events() []string {
	seen := make(map[string]bool, len(s.Steps))
	var out []string
	for _, st := range s.Steps {
		if !seen[st.Expect.Event] {
			seen[st.Expect.Event] = true
			out = append(out, st.Expect.Event)
		}
	}
	return out
}

// ResponseCount returns the number of server emissions in the scenario.
func (s Scenario) ResponseCount() int {
	n := len(s.OnConnect.Responses)
	for _, st := range s.Steps {
		n += len(st.Responses)
	}
	return n
}

// Clone returns a deep copy of s, so transformers can modify the copy
// without touching their input.
func Clone(s Scenario) Scenario {
	out := Scenario{
		Namespace: s.Namespace,
		OnConnect: Burst{Responses: cloneResponses(s.OnConnect.Responses)},
		Steps:     make([]Step, len(s.Steps)),
	}
	for i, st := range s.Steps {
		out.Steps[i] = Step{
			Expect:    Expectation{Event: st.Expect.Event, Args: cloneArgs(st.Expect.Args)},
			Responses: cloneResponses(st.Responses),
		}
	}
	if s.DisconnectAfterMs != nil {
		d := *s.DisconnectAfterMs
		out.DisconnectAfterMs = &d
	}
	if s.HandshakeReject != nil {
		r := *s.HandshakeReject
		r.Code = cloneValue(r.Code)
		r.Data = cloneValue(r.Data)
		out.HandshakeReject = &r
	}
	return out
}

func cloneResponses(rs []Response) []Response {
	out := make([]Response, len(rs))
	for i, r := range rs {
		out[i] = Response{Event: r.Event, Args: cloneArgs(r.Args), DelayMs: r.DelayMs}
	}
	return out
}

func cloneArgs(args []any) []any {
	out := make([]any, len(args))
	for i, v := range args {
		out[i] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []any:
		return cloneArgs(x)
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[k] = cloneValue(val)
		}
		return m
	default:
		return v
	}
}

// ArgsEqual compares two argument lists structurally. Values are compared
// by their canonical JSON encoding, so map key order and the Go numeric
// type a decoder picked do not matter.
func ArgsEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !ValueEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// ValueEqual compares two JSON-shaped values structurally.
func ValueEqual(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ja, jb)
}
