package player

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/SmitUplenchwar2687/sockreplay/internal/sio"
)

var (
	errTransportClosed = errors.New("transport closed")
	errOverlappingPoll = errors.New("overlapping poll request")
)

// transport carries Engine.IO text frames to one client.
type transport interface {
	name() string
	send(frame string) error
	// close ends the transport after flushing last, if not empty.
	close(last string)
}

type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (t *wsTransport) name() string { return sio.TransportWebsocket }

func (t *wsTransport) send(frame string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (t *wsTransport) close(last string) {
	if last != "" {
		_ = t.send(last)
	}
	deadline := time.Now().Add(controlWriteTimeout)
	_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = t.conn.Close()
}

// pollTransport queues frames until the client's next GET collects them.
type pollTransport struct {
	mu      sync.Mutex
	queue   []string
	polling bool
	closed  bool
	ready   chan struct{}
}

func newPollTransport() *pollTransport {
	return &pollTransport{ready: make(chan struct{}, 1)}
}

func (t *pollTransport) name() string { return sio.TransportPolling }

func (t *pollTransport) send(frame string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errTransportClosed
	}
	t.queue = append(t.queue, frame)
	t.mu.Unlock()
	t.signal()
	return nil
}

func (t *pollTransport) close(last string) {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		if last != "" {
			t.queue = append(t.queue, last)
		}
	}
	t.mu.Unlock()
	t.signal()
}

// drain closes the transport and returns the frames no poll collected.
func (t *pollTransport) drain() []string {
	t.mu.Lock()
	frames := t.queue
	t.queue = nil
	t.closed = true
	t.mu.Unlock()
	t.signal()
	return frames
}

func (t *pollTransport) signal() {
	select {
	case t.ready <- struct{}{}:
	default:
	}
}

// poll blocks until frames are queued, the transport closes or ctx ends.
// Only one poll may be outstanding at a time.
func (t *pollTransport) poll(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	if t.polling {
		t.mu.Unlock()
		return nil, errOverlappingPoll
	}
	t.polling = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.polling = false
		t.mu.Unlock()
	}()

	for {
		t.mu.Lock()
		if len(t.queue) > 0 {
			frames := t.queue
			t.queue = nil
			t.mu.Unlock()
			return frames, nil
		}
		if t.closed {
			t.mu.Unlock()
			return nil, errTransportClosed
		}
		t.mu.Unlock()

		select {
		case <-t.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
