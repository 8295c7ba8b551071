// Package scenario exposes the scenario model, builder and transformers.
package scenario

import (
	internalscenario "github.com/SmitUplenchwar2687/sockreplay/internal/scenario"
)

const DefaultNamespace = internalscenario.DefaultNamespace

type (
	Response    = internalscenario.Response
	Burst       = internalscenario.Burst
	Expectation = internalscenario.Expectation
	Step        = internalscenario.Step
	Scenario    = internalscenario.Scenario
	Options     = internalscenario.Options
	Builder     = internalscenario.Builder
	Transformer = internalscenario.Transformer
	Filter      = internalscenario.Filter
)

// NewBuilder returns a Builder whose speed applies when Options.Speed is unset.
func NewBuilder(defaultSpeed float64) *Builder {
	return internalscenario.NewBuilder(defaultSpeed)
}

// Apply runs transformers in order.
func Apply(s Scenario, transformers ...Transformer) Scenario {
	return internalscenario.Apply(s, transformers...)
}

// Clone returns a deep copy of s.
func Clone(s Scenario) Scenario { return internalscenario.Clone(s) }

// ArgsEqual compares argument lists structurally.
func ArgsEqual(a, b []any) bool { return internalscenario.ArgsEqual(a, b) }

func WithoutDisconnect() Transformer         { return internalscenario.WithoutDisconnect() }
func WithoutHandshakeReject() Transformer    { return internalscenario.WithoutHandshakeReject() }
func WithNamespace(ns string) Transformer    { return internalscenario.WithNamespace(ns) }
func ScaleDelays(factor float64) Transformer { return internalscenario.ScaleDelays(factor) }
func FilterEvents(f Filter) Transformer      { return internalscenario.FilterEvents(f) }
