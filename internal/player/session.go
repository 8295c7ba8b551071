package player

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/sockreplay/internal/observability"
	"github.com/SmitUplenchwar2687/sockreplay/internal/recording"
	"github.com/SmitUplenchwar2687/sockreplay/internal/scenario"
	"github.com/SmitUplenchwar2687/sockreplay/internal/sio"
	"github.com/SmitUplenchwar2687/sockreplay/internal/transcript"
)

// Disconnect reasons, used as the metrics label and in logs.
const (
	reasonClient         = "client"
	reasonScheduled      = "scheduled"
	reasonPingTimeout    = "ping_timeout"
	reasonServerClose    = "server_close"
	reasonTransportError = "transport_error"
)

const controlWriteTimeout = time.Second

// session is the live state of one Engine.IO connection.
type session struct {
	p   *Player
	sid string
	url string
	log zerolog.Logger

	trMu sync.Mutex
	tr   transport

	timers *timerSet

	mu        sync.Mutex
	cursor    int
	joined    bool
	rejecting bool
	upgrading bool
	closed    bool
	pongTimer uint64

	closeOnce sync.Once
}

func newSession(p *Player, tr transport, sid, url string) *session {
	return &session{
		p:      p,
		sid:    sid,
		url:    url,
		tr:     tr,
		log:    p.logger.With().Str("sid", sid).Str("transport", tr.name()).Logger(),
		timers: newTimerSet(p.clock),
	}
}

func (s *session) live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined && !s.closed
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *session) transport() transport {
	s.trMu.Lock()
	defer s.trMu.Unlock()
	return s.tr
}

// write sends frame on the current transport. Writes are serialized so a
// transport switch never reorders frames.
func (s *session) write(frame string) error {
	s.trMu.Lock()
	defer s.trMu.Unlock()
	return s.tr.send(frame)
}

func (s *session) writePacket(pkt sio.Packet) error {
	return s.write(pkt.Frame())
}

// open sends the Engine.IO handshake and starts the heartbeat.
func (s *session) open() error {
	var upgrades []string
	if s.transport().name() == sio.TransportPolling {
		upgrades = []string{sio.TransportWebsocket}
	}
	frame, err := sio.EncodeOpen(sio.Open{
		SID:          s.sid,
		Upgrades:     upgrades,
		PingInterval: s.p.pingInterval.Milliseconds(),
		PingTimeout:  s.p.pingTimeout.Milliseconds(),
		MaxPayload:   DefaultMaxPayload,
	})
	if err != nil {
		return err
	}
	if err := s.write(frame); err != nil {
		return err
	}
	s.schedulePing()
	return nil
}

func (s *session) schedulePing() {
	s.timers.schedule(s.p.pingInterval, func() {
		// Arm the timeout first so a fast pong always finds it.
		s.mu.Lock()
		s.pongTimer = s.timers.schedule(s.p.pingTimeout, func() {
			s.log.Debug().Msg("pong not received in time")
			s.terminate(reasonPingTimeout)
		})
		s.mu.Unlock()
		if err := s.write(sio.EncodeEngine(sio.EnginePing, "")); err != nil {
			s.terminate(reasonTransportError)
		}
	})
}

func (s *session) onPong() {
	s.mu.Lock()
	id := s.pongTimer
	s.pongTimer = 0
	s.mu.Unlock()
	if id == 0 {
		return
	}
	s.timers.cancel(id)
	s.schedulePing()
}

func (s *session) readLoop(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.log.Debug().Err(err).Msg("websocket read")
			}
			s.terminate(reasonClient)
			return
		}
		if mt != websocket.TextMessage {
			// Binary attachments are not replayed.
			continue
		}
		s.handleFrame(string(data))
	}
}

// upgrade moves a polling session onto conn once the client has completed
// the upgrade handshake. Frames queued for polling in the meantime are
// flushed on the websocket in order.
func (s *session) upgrade(conn *websocket.Conn) {
	conn.SetReadLimit(DefaultMaxPayload)
	ws := &wsTransport{conn: conn}

	s.mu.Lock()
	if s.closed || s.upgrading {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.upgrading = true
	s.mu.Unlock()

	fail := func(msg string, err error) {
		s.log.Debug().Err(err).Msg(msg)
		_ = conn.Close()
		s.mu.Lock()
		s.upgrading = false
		s.mu.Unlock()
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.p.pingTimeout))
	ping := sio.EncodeEngine(sio.EnginePing, sio.UpgradePayload)
	if _, data, err := conn.ReadMessage(); err != nil || string(data) != ping {
		fail("upgrade ping not received", err)
		return
	}
	if err := ws.send(sio.EncodeEngine(sio.EnginePong, sio.UpgradePayload)); err != nil {
		fail("answering upgrade ping", err)
		return
	}
	// Release the pending poll so the client can pause polling.
	_ = s.write(sio.EncodeEngine(sio.EngineNoop, ""))

	if _, data, err := conn.ReadMessage(); err != nil || string(data) != string(sio.EngineUpgrade) {
		fail("upgrade packet not received", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	s.trMu.Lock()
	old, ok := s.tr.(*pollTransport)
	if !ok || s.isClosed() {
		s.trMu.Unlock()
		fail("session gone during upgrade", nil)
		return
	}
	pending := old.drain()
	s.tr = ws
	for _, frame := range pending {
		if frame == string(sio.EngineNoop) {
			continue
		}
		if err := ws.send(frame); err != nil {
			break
		}
	}
	s.trMu.Unlock()

	s.log.Debug().Int("flushed", len(pending)).Msg("upgraded to websocket")
	go s.readLoop(conn)
}

func (s *session) handleFrame(frame string) {
	typ, payload, err := sio.DecodeEngine(frame)
	if err != nil {
		s.log.Debug().Err(err).Str("frame", frame).Msg("dropping engine frame")
		return
	}
	switch typ {
	case sio.EnginePong:
		s.onPong()
	case sio.EnginePing:
		_ = s.write(sio.EncodeEngine(sio.EnginePong, payload))
	case sio.EngineClose:
		s.terminate(reasonClient)
	case sio.EngineMessage:
		s.handlePacket(payload)
	}
}

func (s *session) handlePacket(payload string) {
	pkt, err := sio.Decode(payload)
	if err != nil {
		s.log.Debug().Err(err).Str("packet", payload).Msg("dropping socket.io packet")
		return
	}
	switch pkt.Type {
	case sio.Connect:
		s.handleConnect(pkt.Namespace)
	case sio.Disconnect:
		if pkt.Namespace == s.p.scenario.Namespace {
			s.terminate(reasonClient)
		}
	case sio.Event, sio.BinaryEvent:
		s.handleEvent(pkt)
	}
}

// handleConnect runs the handshake gate for a namespace CONNECT.
func (s *session) handleConnect(ns string) {
	sc := s.p.scenario
	log := s.log.With().Str("namespace", ns).Logger()

	if ns != sc.Namespace {
		pkt, _ := sio.NewConnectError(ns, "Invalid namespace", nil)
		_ = s.writePacket(pkt)
		log.Debug().Msg("connect to unknown namespace")
		return
	}

	s.mu.Lock()
	if s.joined || s.rejecting || s.closed {
		s.mu.Unlock()
		return
	}
	if sc.HandshakeReject != nil {
		s.rejecting = true
		s.mu.Unlock()

		rej := *sc.HandshakeReject
		delay := scenario.FloatMillis(rej.AfterMs)
		if delay <= 0 {
			s.reject(ns, rej)
			return
		}
		log.Debug().Int64("delay_ms", delay.Milliseconds()).Msg("handshake rejection scheduled")
		s.timers.schedule(delay, func() { s.reject(ns, rej) })
		return
	}
	s.joined = true
	s.mu.Unlock()

	if err := s.writePacket(sio.NewConnect(ns, s.sid)); err != nil {
		s.terminate(reasonTransportError)
		return
	}
	s.p.record(transcript.Entry{
		Time:      s.p.clock.Now(),
		SID:       s.sid,
		Kind:      transcript.KindConnect,
		Namespace: ns,
		URL:       s.url,
	})
	log.Info().Msg("client connected")

	s.scheduleResponses(sc.OnConnect.Responses)
	if sc.DisconnectAfterMs != nil {
		delay := scenario.Millis(*sc.DisconnectAfterMs)
		s.timers.schedule(delay, func() {
			_ = s.writePacket(sio.NewDisconnect(ns))
			s.terminate(reasonScheduled)
		})
	}
}

func (s *session) reject(ns string, rej recording.Reject) {
	data := rej.Data
	if data == nil {
		body := map[string]any{"message": rej.Message}
		if rej.Code != nil {
			body["code"] = rej.Code
		}
		data = body
	}
	pkt, err := sio.NewConnectError(ns, rej.Message, data)
	if err != nil {
		s.log.Error().Err(err).Msg("encoding handshake rejection")
		return
	}
	if err := s.writePacket(pkt); err != nil {
		return
	}
	s.p.metrics.HandshakeRejectsTotal.Inc()
	s.p.record(transcript.Entry{
		Time:      s.p.clock.Now(),
		SID:       s.sid,
		Kind:      transcript.KindReject,
		Namespace: ns,
		URL:       s.url,
		Reason:    rej.Message,
	})
	s.log.Info().Str("namespace", ns).Str("message", rej.Message).Msg("handshake rejected")
}

// handleEvent matches a client event against the current step.
func (s *session) handleEvent(pkt sio.Packet) {
	event, args, err := pkt.EventArgs()
	if err != nil {
		s.log.Debug().Err(err).Msg("dropping malformed event")
		return
	}
	sc := s.p.scenario
	if pkt.Namespace != sc.Namespace {
		return
	}

	s.mu.Lock()
	if !s.joined || s.closed {
		s.mu.Unlock()
		return
	}
	matched := false
	var step scenario.Step
	idx := s.cursor
	if s.p.events[event] && idx < len(sc.Steps) && sc.Steps[idx].Expect.Matches(event, args) {
		matched = true
		step = sc.Steps[idx]
		s.cursor++
	}
	s.mu.Unlock()

	if pkt.ID != nil {
		if ack, err := sio.NewAck(pkt.Namespace, *pkt.ID, nil); err == nil {
			_ = s.writePacket(ack)
		}
	}

	s.p.record(transcript.Entry{
		Time:      s.p.clock.Now(),
		SID:       s.sid,
		Kind:      transcript.KindMessage,
		Namespace: pkt.Namespace,
		Direction: recording.ClientToServer,
		Event:     event,
		Args:      args,
		Matched:   matched,
	})

	if !matched {
		s.p.metrics.ClientEventsTotal.WithLabelValues(observability.ResultIgnored).Inc()
		s.log.Debug().Str("event", event).Int("step", idx).Msg("client event ignored")
		return
	}
	s.p.metrics.ClientEventsTotal.WithLabelValues(observability.ResultMatched).Inc()
	s.log.Debug().Str("event", event).Int("step", idx).Int("responses", len(step.Responses)).Msg("step matched")
	s.scheduleResponses(step.Responses)
}

func (s *session) scheduleResponses(rs []scenario.Response) {
	for _, r := range rs {
		r := r
		s.timers.schedule(r.Delay(), func() { s.emit(r) })
	}
}

func (s *session) emit(r scenario.Response) {
	ns := s.p.scenario.Namespace
	pkt, err := sio.NewEvent(ns, r.Event, r.Args)
	if err != nil {
		s.log.Error().Err(err).Str("event", r.Event).Msg("encoding response")
		return
	}
	if err := s.writePacket(pkt); err != nil {
		s.log.Debug().Err(err).Str("event", r.Event).Msg("emit failed")
		return
	}
	s.p.metrics.ServerEventsTotal.Inc()
	s.p.record(transcript.Entry{
		Time:      s.p.clock.Now(),
		SID:       s.sid,
		Kind:      transcript.KindMessage,
		Namespace: ns,
		Direction: recording.ServerToClient,
		Event:     r.Event,
		Args:      r.Args,
	})
	s.log.Debug().Str("event", r.Event).Int64("delay_ms", r.DelayMs).Msg("emitted")
}

// terminate clears the session: timers are cancelled, the socket closed
// and the session forgotten. Only the first call has any effect.
func (s *session) terminate(reason string) {
	s.closeOnce.Do(func() {
		s.timers.stopAll()

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		tr := s.transport()
		var last string
		if tr.name() == sio.TransportPolling {
			last = sio.EncodeEngine(sio.EngineClose, "")
		}
		tr.close(last)

		s.p.removeSession(s.sid)
		s.p.metrics.DisconnectsTotal.WithLabelValues(reason).Inc()
		s.p.record(transcript.Entry{
			Time:   s.p.clock.Now(),
			SID:    s.sid,
			Kind:   transcript.KindDisconnect,
			Reason: reason,
		})
		s.log.Info().Str("reason", reason).Msg("session closed")
	})
}
