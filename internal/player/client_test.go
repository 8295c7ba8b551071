package player

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/SmitUplenchwar2687/sockreplay/internal/sio"
)

const waitTimeout = 2 * time.Second

// testClient is a minimal Socket.IO v4 websocket client. Frames are read
// by a background goroutine so tests can assert on silence without
// breaking the connection.
type testClient struct {
	t      *testing.T
	conn   *websocket.Conn
	open   sio.Open
	frames chan string
	closed chan struct{}

	writeMu  sync.Mutex
	autoPong bool
}

func dial(t *testing.T, addr string) *testClient {
	return dialWith(t, addr, true)
}

func dialWith(t *testing.T, addr string, autoPong bool) *testClient {
	t.Helper()
	u := url.URL{Scheme: "ws", Host: addr, Path: Path, RawQuery: "EIO=4&transport=websocket"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	typ, payload, err := sio.DecodeEngine(string(data))
	require.NoError(t, err)
	require.Equal(t, sio.EngineOpen, typ)

	c := newTestClient(t, conn, autoPong)
	require.NoError(t, json.Unmarshal([]byte(payload), &c.open))
	go c.readLoop()
	return c
}

func newTestClient(t *testing.T, conn *websocket.Conn, autoPong bool) *testClient {
	return &testClient{
		t:        t,
		conn:     conn,
		frames:   make(chan string, 64),
		closed:   make(chan struct{}),
		autoPong: autoPong,
	}
}

func (c *testClient) readLoop() {
	defer close(c.closed)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		frame := string(data)
		if frame == string(sio.EnginePing) && c.autoPong {
			c.send(string(sio.EnginePong))
			continue
		}
		c.frames <- frame
	}
}

func (c *testClient) send(frame string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *testClient) connect(ns string) {
	c.send(sio.Packet{Type: sio.Connect, Namespace: ns}.Frame())
}

func (c *testClient) emit(ns, event string, args ...any) {
	pkt, err := sio.NewEvent(ns, event, args)
	require.NoError(c.t, err)
	c.send(pkt.Frame())
}

func (c *testClient) nextFrame() string {
	c.t.Helper()
	select {
	case f := <-c.frames:
		return f
	case <-c.closed:
		c.t.Fatal("connection closed while waiting for a frame")
	case <-time.After(waitTimeout):
		c.t.Fatal("timed out waiting for a frame")
	}
	return ""
}

func (c *testClient) nextPacket() sio.Packet {
	c.t.Helper()
	frame := c.nextFrame()
	typ, payload, err := sio.DecodeEngine(frame)
	require.NoError(c.t, err)
	require.Equal(c.t, sio.EngineMessage, typ, "frame %q", frame)
	pkt, err := sio.Decode(payload)
	require.NoError(c.t, err)
	return pkt
}

func (c *testClient) expectConnected() {
	c.t.Helper()
	pkt := c.nextPacket()
	require.Equal(c.t, sio.Connect, pkt.Type, "packet %s", pkt.Encode())
}

func (c *testClient) nextEvent() (string, []any) {
	c.t.Helper()
	pkt := c.nextPacket()
	ev, args, err := pkt.EventArgs()
	require.NoError(c.t, err, "packet %s", pkt.Encode())
	return ev, args
}

// expectNothing fails if a frame arrives within d.
func (c *testClient) expectNothing(d time.Duration) {
	c.t.Helper()
	select {
	case f := <-c.frames:
		c.t.Fatalf("unexpected frame %q", f)
	case <-time.After(d):
	}
}

func (c *testClient) expectClosed() {
	c.t.Helper()
	select {
	case <-c.closed:
	case <-time.After(waitTimeout):
		c.t.Fatal("connection was not closed")
	}
}

// pollClient speaks the Engine.IO polling transport.
type pollClient struct {
	t    *testing.T
	addr string
	open sio.Open
	http *http.Client
}

func dialPolling(t *testing.T, addr string) *pollClient {
	t.Helper()
	c := &pollClient{t: t, addr: addr, http: &http.Client{Timeout: waitTimeout}}

	res, err := c.http.Get("http://" + addr + Path + "?EIO=4&transport=polling")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	frames := sio.DecodePayload(string(body))
	require.NotEmpty(t, frames)
	typ, payload, err := sio.DecodeEngine(frames[0])
	require.NoError(t, err)
	require.Equal(t, sio.EngineOpen, typ)
	require.NoError(t, json.Unmarshal([]byte(payload), &c.open))
	return c
}

func (c *pollClient) url() string {
	return "http://" + c.addr + Path + "?EIO=4&transport=polling&sid=" + c.open.SID
}

func (c *pollClient) post(frames ...string) {
	c.t.Helper()
	res, err := c.http.Post(c.url(), "text/plain;charset=UTF-8", strings.NewReader(sio.EncodePayload(frames)))
	require.NoError(c.t, err)
	defer res.Body.Close()
	require.Equal(c.t, http.StatusOK, res.StatusCode)
}

// poll returns the frames of one GET.
func (c *pollClient) poll() []string {
	c.t.Helper()
	res, err := c.http.Get(c.url())
	require.NoError(c.t, err)
	defer res.Body.Close()
	require.Equal(c.t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(c.t, err)
	return sio.DecodePayload(string(body))
}

func (c *pollClient) nextPacket() sio.Packet {
	c.t.Helper()
	frames := c.poll()
	require.Len(c.t, frames, 1, "frames %q", frames)
	typ, payload, err := sio.DecodeEngine(frames[0])
	require.NoError(c.t, err)
	require.Equal(c.t, sio.EngineMessage, typ, "frame %q", frames[0])
	pkt, err := sio.Decode(payload)
	require.NoError(c.t, err)
	return pkt
}

// startUpgrade opens a websocket for the polling session and completes the
// upgrade ping exchange. The caller sends the upgrade packet.
func (c *pollClient) startUpgrade() *websocket.Conn {
	c.t.Helper()
	u := url.URL{Scheme: "ws", Host: c.addr, Path: Path, RawQuery: "EIO=4&transport=websocket&sid=" + c.open.SID}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { conn.Close() })

	require.NoError(c.t, conn.WriteMessage(websocket.TextMessage, []byte("2probe")))
	_, data, err := conn.ReadMessage()
	require.NoError(c.t, err)
	require.Equal(c.t, "3probe", string(data))
	return conn
}
