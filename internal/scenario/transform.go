package scenario

import (
	"math"
	"strings"
)

// Transformer rewrites a scenario between building and playing. It must
// not modify its argument; start from Clone when changing anything.
type Transformer func(Scenario) Scenario

// Apply runs each transformer in order, feeding the result of one into the
// next. Nil transformers are skipped.
func Apply(s Scenario, transformers ...Transformer) Scenario {
	for _, t := range transformers {
		if t == nil {
			continue
		}
		s = t(s)
	}
	return s
}

// WithoutDisconnect drops the scheduled disconnect.
func WithoutDisconnect() Transformer {
	return func(s Scenario) Scenario {
		out := Clone(s)
		out.DisconnectAfterMs = nil
		return out
	}
}

// WithoutHandshakeReject lets every connection through the handshake.
func WithoutHandshakeReject() Transformer {
	return func(s Scenario) Scenario {
		out := Clone(s)
		out.HandshakeReject = nil
		return out
	}
}

// WithNamespace serves the scenario on ns instead of the recorded namespace.
func WithNamespace(ns string) Transformer {
	return func(s Scenario) Scenario {
		out := Clone(s)
		if ns == "" {
			ns = DefaultNamespace
		}
		if !strings.HasPrefix(ns, "/") {
			ns = "/" + ns
		}
		out.Namespace = ns
		return out
	}
}

// ScaleDelays multiplies every response and disconnect delay by factor.
// A non-positive factor leaves the scenario unchanged.
func ScaleDelays(factor float64) Transformer {
	return func(s Scenario) Scenario {
		out := Clone(s)
		if factor <= 0 || factor == 1 {
			return out
		}
		scale := func(ms int64) int64 {
			return int64(math.Floor(float64(ms)*factor + 0.5))
		}
		for i := range out.OnConnect.Responses {
			out.OnConnect.Responses[i].DelayMs = scale(out.OnConnect.Responses[i].DelayMs)
		}
		for i := range out.Steps {
			for j := range out.Steps[i].Responses {
				out.Steps[i].Responses[j].DelayMs = scale(out.Steps[i].Responses[j].DelayMs)
			}
		}
		if out.DisconnectAfterMs != nil {
			d := scale(*out.DisconnectAfterMs)
			out.DisconnectAfterMs = &d
		}
		return out
	}
}

// Filter selects server responses by event name.
type Filter struct {
	Events  []string // Only keep these events (empty = all)
	Exclude []string // Drop these events, checked after Events
}

// Match returns true if a response with this event passes the filter.
// Patterns match exactly or as a substring of the event name.
func (f *Filter) Match(event string) bool {
	if len(f.Events) > 0 && !matchEvent(f.Events, event) {
		return false
	}
	if len(f.Exclude) > 0 && matchEvent(f.Exclude, event) {
		return false
	}
	return true
}

func matchEvent(patterns []string, event string) bool {
	for _, p := range patterns {
		if p == event || strings.Contains(event, p) {
			return true
		}
	}
	return false
}

// FilterEvents removes responses that do not pass f. Steps are kept so
// the client still has to walk through the same sequence.
func FilterEvents(f Filter) Transformer {
	return func(s Scenario) Scenario {
		out := Clone(s)
		out.OnConnect.Responses = filterResponses(&f, out.OnConnect.Responses)
		for i := range out.Steps {
			out.Steps[i].Responses = filterResponses(&f, out.Steps[i].Responses)
		}
		return out
	}
}

func filterResponses(f *Filter, rs []Response) []Response {
	kept := make([]Response, 0, len(rs))
	for _, r := range rs {
		if f.Match(r.Event) {
			kept = append(kept, r)
		}
	}
	return kept
}
