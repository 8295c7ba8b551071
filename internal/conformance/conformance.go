// Package conformance drives the client side of a scenario against a running
// Socket.IO server and reports which of the expected server events arrived.
package conformance

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/sockreplay/internal/scenario"
	"github.com/SmitUplenchwar2687/sockreplay/internal/sio"
)

// DefaultTimeout bounds a Run when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// ErrHandshake is returned when the server does not complete the Engine.IO
// or Socket.IO handshake.
var ErrHandshake = errors.New("handshake failed")

// Options configures Run.
type Options struct {
	// Path is the Socket.IO endpoint path. Defaults to /socket.io/.
	Path    string
	Timeout time.Duration
	Logger  *zerolog.Logger
}

// Outcome is one server event.
type Outcome struct {
	Event string `json:"event"`
	Args  []any  `json:"args"`
}

// Report summarizes one conformance run.
type Report struct {
	SID       string `json:"sid"`
	Namespace string `json:"namespace"`

	ExpectReject  bool   `json:"expectReject"`
	Rejected      bool   `json:"rejected"`
	RejectMessage string `json:"rejectMessage,omitempty"`
	RejectData    any    `json:"rejectData,omitempty"`

	Sent       int       `json:"sent"`
	Expected   int       `json:"expected"`
	Received   []Outcome `json:"received"`
	Missing    []Outcome `json:"missing"`
	Unexpected []Outcome `json:"unexpected"`

	ExpectDisconnect bool          `json:"expectDisconnect"`
	Disconnected     bool          `json:"disconnected"`
	Duration         time.Duration `json:"duration"`
}

// OK reports whether the server behaved as the scenario describes.
func (r *Report) OK() bool {
	if r.ExpectReject || r.Rejected {
		return r.ExpectReject == r.Rejected
	}
	if len(r.Missing) > 0 || len(r.Unexpected) > 0 {
		return false
	}
	return !r.ExpectDisconnect || r.Disconnected
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	packets chan sio.Packet
	done    chan struct{}
	log     *zerolog.Logger
}

// Run connects to addr, joins the scenario namespace, sends every expected
// client event in order and collects server events until all expected ones
// arrived or the timeout elapses. Server events are matched as a multiset
// because responses sharing a delay may arrive in any order.
func Run(ctx context.Context, addr string, sc scenario.Scenario, opts Options) (*Report, error) {
	if opts.Path == "" {
		opts.Path = "/socket.io/"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	ns := sc.Namespace
	if ns == "" {
		ns = scenario.DefaultNamespace
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	began := time.Now()

	u := url.URL{Scheme: "ws", Host: addr, Path: opts.Path, RawQuery: "EIO=" + sio.ProtocolVersion + "&transport=" + sio.TransportWebsocket}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", u.String())
	}
	defer conn.Close()

	open, err := readOpen(conn)
	if err != nil {
		return nil, err
	}

	c := &client{
		conn:    conn,
		packets: make(chan sio.Packet, 64),
		done:    make(chan struct{}),
		log:     log,
	}
	go c.readLoop(ctx)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	report := &Report{
		SID:              open.SID,
		Namespace:        ns,
		ExpectReject:     sc.HandshakeReject != nil,
		ExpectDisconnect: sc.DisconnectAfterMs != nil,
		Received:         []Outcome{},
	}
	defer func() { report.Duration = time.Since(began) }()

	if err := c.send(sio.Packet{Type: sio.Connect, Namespace: ns}.Frame()); err != nil {
		return nil, errors.Wrap(err, "sending connect")
	}
	ack, err := c.next(ctx)
	if err != nil {
		return nil, errors.Wrap(ErrHandshake, err.Error())
	}
	switch ack.Type {
	case sio.Connect:
	case sio.ConnectError:
		report.Rejected = true
		var body struct {
			Message string `json:"message"`
			Data    any    `json:"data"`
		}
		if len(ack.Data) > 0 {
			if err := json.Unmarshal(ack.Data, &body); err != nil {
				return nil, errors.Wrap(err, "decoding connect error")
			}
		}
		report.RejectMessage = body.Message
		report.RejectData = body.Data
		log.Debug().Str("sid", open.SID).Str("message", body.Message).Msg("handshake rejected")
		return report, nil
	default:
		return nil, errors.Wrapf(ErrHandshake, "unexpected %s packet before connect", ack.Type)
	}

	pending := expectedOutcomes(sc)
	report.Expected = len(pending)

	for _, step := range sc.Steps {
		pkt, err := sio.NewEvent(ns, step.Expect.Event, step.Expect.Args)
		if err != nil {
			return nil, err
		}
		if err := c.send(pkt.Frame()); err != nil {
			return nil, errors.Wrapf(err, "sending %q", step.Expect.Event)
		}
		report.Sent++
	}

	for !report.Disconnected && (len(pending) > 0 || report.ExpectDisconnect) {
		pkt, err := c.next(ctx)
		if err != nil {
			break
		}
		switch pkt.Type {
		case sio.Disconnect:
			report.Disconnected = true
		case sio.Event, sio.BinaryEvent:
			event, args, err := pkt.EventArgs()
			if err != nil {
				log.Warn().Err(err).Msg("skipped malformed event")
				continue
			}
			got := Outcome{Event: event, Args: args}
			report.Received = append(report.Received, got)
			if i := indexOf(pending, got); i >= 0 {
				pending = append(pending[:i], pending[i+1:]...)
			} else {
				report.Unexpected = append(report.Unexpected, got)
			}
		}
	}
	report.Missing = pending

	if !report.Disconnected {
		_ = c.send(sio.NewDisconnect(ns).Frame())
	}
	return report, nil
}

func readOpen(conn *websocket.Conn) (sio.Open, error) {
	var open sio.Open
	_, data, err := conn.ReadMessage()
	if err != nil {
		return open, errors.Wrap(ErrHandshake, err.Error())
	}
	typ, payload, err := sio.DecodeEngine(string(data))
	if err != nil {
		return open, errors.Wrap(ErrHandshake, err.Error())
	}
	if typ != sio.EngineOpen {
		return open, errors.Wrapf(ErrHandshake, "first frame has engine type %q", byte(typ))
	}
	if err := json.Unmarshal([]byte(payload), &open); err != nil {
		return open, errors.Wrap(ErrHandshake, err.Error())
	}
	return open, nil
}

func (c *client) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		typ, payload, err := sio.DecodeEngine(string(data))
		if err != nil {
			continue
		}
		switch typ {
		case sio.EnginePing:
			_ = c.send(string(sio.EnginePong))
		case sio.EngineClose:
			return
		case sio.EngineMessage:
			pkt, err := sio.Decode(payload)
			if err != nil {
				c.log.Warn().Err(err).Msg("skipped malformed packet")
				continue
			}
			select {
			case c.packets <- pkt:
			case <-ctx.Done():
				return
			}
		}
	}
}

// next returns the next packet. A closed connection reads as a DISCONNECT.
func (c *client) next(ctx context.Context) (sio.Packet, error) {
	select {
	case pkt := <-c.packets:
		return pkt, nil
	case <-c.done:
		select {
		case pkt := <-c.packets:
			return pkt, nil
		default:
		}
		if ctx.Err() != nil {
			return sio.Packet{}, ctx.Err()
		}
		return sio.Packet{Type: sio.Disconnect}, nil
	case <-ctx.Done():
		return sio.Packet{}, ctx.Err()
	}
}

func (c *client) send(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func expectedOutcomes(sc scenario.Scenario) []Outcome {
	out := make([]Outcome, 0, sc.ResponseCount())
	add := func(rs []scenario.Response) {
		for _, r := range rs {
			out = append(out, Outcome{Event: r.Event, Args: r.Args})
		}
	}
	add(sc.OnConnect.Responses)
	for _, step := range sc.Steps {
		add(step.Responses)
	}
	return out
}

func indexOf(pending []Outcome, got Outcome) int {
	for i, want := range pending {
		if want.Event == got.Event && scenario.ArgsEqual(want.Args, got.Args) {
			return i
		}
	}
	return -1
}
