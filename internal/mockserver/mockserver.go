// Package mockserver wires a recording source, the scenario builder and a
// player into a fake Socket.IO server for end-to-end tests.
package mockserver

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/SmitUplenchwar2687/sockreplay/internal/recording"
	"github.com/SmitUplenchwar2687/sockreplay/internal/scenario"
)

var (
	ErrInvalidArgs    = errors.New("invalid arguments")
	ErrAlreadyStarted = errors.New("mock server already started")
)

// Builder turns a recording into a scenario.
type Builder interface {
	Build(rec recording.Recording, opts scenario.Options) scenario.Scenario
}

// Player serves a scenario.
type Player interface {
	Start(ctx context.Context, sc scenario.Scenario) error
	Close() error
	Connected() bool
}

// Config holds the collaborators of a MockServer.
type Config struct {
	Source       recording.Source
	Builder      Builder
	Player       Player
	BuildOptions scenario.Options
	// Transformers run in order on the built scenario before it is played.
	Transformers []scenario.Transformer
}

// MockServer loads and builds its scenario once, on Start, then hands it
// to the player.
type MockServer struct {
	source       recording.Source
	builder      Builder
	player       Player
	buildOptions scenario.Options
	transformers []scenario.Transformer

	mu       sync.Mutex
	started  bool
	scenario *scenario.Scenario
}

// NewMockServer validates cfg and returns an unstarted server.
func NewMockServer(cfg Config) (*MockServer, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.Wrap(ErrInvalidArgs, "source is required")
	case cfg.Builder == nil:
		return nil, errors.Wrap(ErrInvalidArgs, "builder is required")
	case cfg.Player == nil:
		return nil, errors.Wrap(ErrInvalidArgs, "player is required")
	}
	return &MockServer{
		source:       cfg.Source,
		builder:      cfg.Builder,
		player:       cfg.Player,
		buildOptions: cfg.BuildOptions,
		transformers: append([]scenario.Transformer(nil), cfg.Transformers...),
	}, nil
}

// Start loads the recording, builds and transforms the scenario, and starts
// the player. A failed Start may be retried; a successful one may not.
func (m *MockServer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}

	rec, err := m.source.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "loading recording")
	}
	sc := m.builder.Build(*rec, m.buildOptions)
	sc = scenario.Apply(sc, m.transformers...)

	if err := m.player.Start(ctx, sc); err != nil {
		return errors.Wrap(err, "starting player")
	}
	m.started = true
	m.scenario = &sc
	return nil
}

// Close stops the player. It never fails before Start or when repeated.
func (m *MockServer) Close() error {
	return m.player.Close()
}

// Connected reports whether a client session is live.
func (m *MockServer) Connected() bool {
	return m.player.Connected()
}

// Scenario returns the scenario being played, or false before Start.
func (m *MockServer) Scenario() (scenario.Scenario, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scenario == nil {
		return scenario.Scenario{}, false
	}
	return scenario.Clone(*m.scenario), true
}

// Addr returns the player's address when the player exposes one.
func (m *MockServer) Addr() string {
	if a, ok := m.player.(interface{ Addr() string }); ok {
		return a.Addr()
	}
	return ""
}
