// Package player serves a scenario to live Socket.IO clients over the
// polling and websocket transports. Every Engine.IO session gets a fresh
// step cursor and its own set of timers.
package player

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/sockreplay/internal/clock"
	"github.com/SmitUplenchwar2687/sockreplay/internal/observability"
	"github.com/SmitUplenchwar2687/sockreplay/internal/scenario"
	"github.com/SmitUplenchwar2687/sockreplay/internal/sio"
	"github.com/SmitUplenchwar2687/sockreplay/internal/transcript"
)

const (
	// Path is where the Socket.IO endpoint is mounted.
	Path = "/socket.io/"

	DefaultPingInterval = 25 * time.Second
	DefaultPingTimeout  = 20 * time.Second
	DefaultMaxPayload   = 1_000_000

	shutdownTimeout = 5 * time.Second
)

var (
	ErrInvalidArgs    = errors.New("invalid arguments")
	ErrAlreadyStarted = errors.New("player already started")
	ErrClosed         = errors.New("player closed")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // test clients connect from any origin
	},
}

// Options configures a Player.
type Options struct {
	// Addr is the listen address. When empty, Port is used on all interfaces.
	Addr string
	Port int

	Clock      clock.Clock            // defaults to the real clock
	Logger     *zerolog.Logger        // defaults to a no-op logger
	Metrics    *observability.Metrics // defaults to a private registry
	Transcript *transcript.Transcript // optional

	PingInterval time.Duration
	PingTimeout  time.Duration
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateClosed
)

// Player binds one scenario to a Socket.IO server.
type Player struct {
	addr         string
	clock        clock.Clock
	logger       zerolog.Logger
	metrics      *observability.Metrics
	transcript   *transcript.Transcript
	pingInterval time.Duration
	pingTimeout  time.Duration

	mu         sync.Mutex
	state      state
	scenario   scenario.Scenario
	events     map[string]bool
	sessions   map[string]*session
	listener   net.Listener
	httpServer *http.Server
}

// New validates opts and creates an idle Player.
func New(opts Options) (*Player, error) {
	addr := opts.Addr
	if addr == "" {
		if opts.Port <= 0 {
			return nil, errors.Wrapf(ErrInvalidArgs, "port must be positive, got %d", opts.Port)
		}
		addr = fmt.Sprintf(":%d", opts.Port)
	}

	p := &Player{
		addr:         addr,
		clock:        opts.Clock,
		metrics:      opts.Metrics,
		transcript:   opts.Transcript,
		pingInterval: opts.PingInterval,
		pingTimeout:  opts.PingTimeout,
		sessions:     make(map[string]*session),
	}
	if p.clock == nil {
		p.clock = clock.NewRealClock()
	}
	if opts.Logger != nil {
		p.logger = *opts.Logger
	} else {
		p.logger = zerolog.Nop()
	}
	if p.metrics == nil {
		p.metrics = observability.NewMetrics()
	}
	if p.pingInterval <= 0 {
		p.pingInterval = DefaultPingInterval
	}
	if p.pingTimeout <= 0 {
		p.pingTimeout = DefaultPingTimeout
	}
	return p, nil
}

// Start binds the listener and serves sc until Close. It returns once the
// listener is bound.
func (p *Player) Start(ctx context.Context, sc scenario.Scenario) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateClosed:
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if sc.Namespace == "" {
		sc.Namespace = scenario.DefaultNamespace
	}
	p.scenario = sc
	p.events = make(map[string]bool)
	for _, ev := range sc.Events() {
		p.events[ev] = true
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", p.addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", p.addr)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, p.handleEngine)
	p.listener = ln
	p.httpServer = &http.Server{Handler: mux}
	p.state = stateRunning

	go func() {
		if err := p.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error().Err(err).Msg("socket.io server stopped")
		}
	}()

	p.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("namespace", sc.Namespace).
		Int("steps", len(sc.Steps)).
		Int("burst", len(sc.OnConnect.Responses)).
		Msg("replay server listening")
	return nil
}

// Close cancels every session's timers, closes their sockets and shuts
// the HTTP server down. It is safe to call before Start and more than once.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.state == stateClosed {
		p.mu.Unlock()
		return nil
	}
	wasRunning := p.state == stateRunning
	p.state = stateClosed
	sessions := make([]*session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	srv := p.httpServer
	p.mu.Unlock()

	for _, s := range sessions {
		s.terminate(reasonServerClose)
	}
	if !wasRunning {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("socket.io server shutdown")
		return errors.Wrap(err, "shutting down socket.io server")
	}
	p.logger.Info().Msg("replay server closed")
	return nil
}

// Connected reports whether any client has joined the scenario namespace
// and is still connected.
func (p *Player) Connected() bool {
	p.mu.Lock()
	sessions := make([]*session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	for _, s := range sessions {
		if s.live() {
			return true
		}
	}
	return false
}

// Addr returns the bound address once started, the configured one before.
func (p *Player) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener != nil {
		return p.listener.Addr().String()
	}
	return p.addr
}

// SessionCount returns the number of open Engine.IO sessions.
func (p *Player) SessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *Player) handleEngine(w http.ResponseWriter, r *http.Request) {
	setCORS(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	q := r.URL.Query()
	if herr := sio.CheckHandshake(q); herr != nil {
		sio.WriteHandshakeError(w, *herr)
		return
	}

	sid := q.Get("sid")
	if sid == "" {
		switch {
		case q.Get("transport") == sio.TransportWebsocket && websocket.IsWebSocketUpgrade(r):
			p.openWebsocket(w, r)
		case q.Get("transport") == sio.TransportPolling && r.Method == http.MethodGet:
			p.openPolling(w, r)
		case q.Get("transport") == sio.TransportPolling:
			sio.WriteHandshakeError(w, sio.ErrBadHandshakeMethod)
		default:
			sio.WriteHandshakeError(w, sio.ErrBadHandshake)
		}
		return
	}

	s := p.session(sid)
	if s == nil {
		sio.WriteHandshakeError(w, sio.ErrUnknownSID)
		return
	}
	if q.Get("transport") == sio.TransportWebsocket {
		if !websocket.IsWebSocketUpgrade(r) || s.transport().name() != sio.TransportPolling {
			sio.WriteHandshakeError(w, sio.ErrBadHandshake)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			p.logger.Warn().Err(err).Msg("websocket upgrade")
			return
		}
		s.upgrade(conn)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.servePoll(w, r)
	case http.MethodPost:
		s.receivePoll(w, r)
	default:
		sio.WriteHandshakeError(w, sio.ErrBadHandshake)
	}
}

func (p *Player) openWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	conn.SetReadLimit(DefaultMaxPayload)

	s := newSession(p, &wsTransport{conn: conn}, uuid.NewString(), "ws://"+r.Host+r.URL.RequestURI())
	if !p.register(s) {
		conn.Close()
		return
	}
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("websocket opened")

	if err := s.open(); err != nil {
		s.log.Warn().Err(err).Msg("sending open packet")
		s.terminate(reasonTransportError)
		return
	}
	go s.readLoop(conn)
}

// openPolling answers the first polling GET with the OPEN packet.
func (p *Player) openPolling(w http.ResponseWriter, r *http.Request) {
	s := newSession(p, newPollTransport(), uuid.NewString(), "http://"+r.Host+r.URL.RequestURI())
	if !p.register(s) {
		sio.WriteHandshakeError(w, sio.ErrBadHandshake)
		return
	}
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("polling opened")

	if err := s.open(); err != nil {
		s.log.Warn().Err(err).Msg("queueing open packet")
		s.terminate(reasonTransportError)
		sio.WriteHandshakeError(w, sio.ErrBadHandshake)
		return
	}
	s.servePoll(w, r)
}

// register adds s to the live sessions. It fails once the player stopped.
func (p *Player) register(s *session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != stateRunning {
		return false
	}
	p.sessions[s.sid] = s
	p.metrics.ConnectionsTotal.Inc()
	p.metrics.SessionsActive.Inc()
	return true
}

func (p *Player) session(sid string) *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[sid]
}

func (p *Player) removeSession(sid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[sid]; ok {
		delete(p.sessions, sid)
		p.metrics.SessionsActive.Dec()
	}
}

func setCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
		h.Set("Access-Control-Allow-Headers", req)
	}
}

func (p *Player) record(e transcript.Entry) {
	if p.transcript == nil {
		return
	}
	if err := p.transcript.Record(e); err != nil {
		p.logger.Warn().Err(err).Str("sid", e.SID).Msg("transcript write")
	}
}
