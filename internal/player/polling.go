package player

import (
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/SmitUplenchwar2687/sockreplay/internal/sio"
)

// servePoll answers a polling GET with every frame queued for the client,
// waiting for at least one.
func (s *session) servePoll(w http.ResponseWriter, r *http.Request) {
	pt, ok := s.transport().(*pollTransport)
	if !ok {
		// Upgraded: a straggling poll only needs releasing.
		writePollBody(w, sio.EncodeEngine(sio.EngineNoop, ""))
		return
	}

	frames, err := pt.poll(r.Context())
	switch {
	case errors.Is(err, errOverlappingPoll):
		s.log.Debug().Msg("overlapping poll")
		sio.WriteHandshakeError(w, sio.ErrBadHandshake)
		s.terminate(reasonTransportError)
		return
	case errors.Is(err, errTransportClosed):
		writePollBody(w, sio.EncodeEngine(sio.EngineNoop, ""))
		return
	case err != nil:
		return
	}
	writePollBody(w, sio.EncodePayload(frames))
}

// receivePoll handles the frames of a polling POST.
func (s *session) receivePoll(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, DefaultMaxPayload+1))
	if err != nil {
		sio.WriteHandshakeError(w, sio.ErrBadHandshake)
		return
	}
	if len(body) > DefaultMaxPayload {
		sio.WriteHandshakeError(w, sio.ErrBadHandshake)
		s.terminate(reasonTransportError)
		return
	}
	for _, frame := range sio.DecodePayload(string(body)) {
		s.handleFrame(frame)
	}
	writePollBody(w, "ok")
}

func writePollBody(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}
