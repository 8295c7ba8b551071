// Package mockserver exposes the fake Socket.IO server used in end-to-end tests.
package mockserver

import (
	internalmock "github.com/SmitUplenchwar2687/sockreplay/internal/mockserver"
)

var (
	ErrInvalidArgs    = internalmock.ErrInvalidArgs
	ErrAlreadyStarted = internalmock.ErrAlreadyStarted
)

type (
	MockServer = internalmock.MockServer
	Options    = internalmock.Options
	Config     = internalmock.Config
	Builder    = internalmock.Builder
	Player     = internalmock.Player
)

// New builds a MockServer backed by the default builder and player.
func New(opts Options) (*MockServer, error) {
	return internalmock.New(opts)
}

// NewMockServer assembles a MockServer from explicit collaborators.
func NewMockServer(cfg Config) (*MockServer, error) {
	return internalmock.NewMockServer(cfg)
}
