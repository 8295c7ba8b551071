package sio

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// ProtocolVersion is the Engine.IO protocol revision served.
const ProtocolVersion = "4"

// Transports served. Clients open with polling and upgrade to websocket,
// or open with websocket directly.
const (
	TransportPolling   = "polling"
	TransportWebsocket = "websocket"
)

// UpgradePayload is exchanged as "2probe"/"3probe" while a polling session
// upgrades to websocket.
const UpgradePayload = "probe"

// recordSeparator joins packets in a polling payload.
const recordSeparator = "\x1e"

// HandshakeError is an Engine.IO error sent as the body of a rejected HTTP request.
type HandshakeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e HandshakeError) Error() string { return e.Message }

var (
	ErrTransportUnknown   = HandshakeError{Code: 0, Message: "Transport unknown"}
	ErrUnknownSID         = HandshakeError{Code: 1, Message: "Session ID unknown"}
	ErrBadHandshakeMethod = HandshakeError{Code: 2, Message: "Bad handshake method"}
	ErrBadHandshake       = HandshakeError{Code: 3, Message: "Bad request"}
	ErrUnsupportedVersion = HandshakeError{Code: 5, Message: "Unsupported protocol version"}
)

// CheckHandshake validates the protocol version and transport of an
// Engine.IO request.
func CheckHandshake(q url.Values) *HandshakeError {
	if q.Get("EIO") != ProtocolVersion {
		return &ErrUnsupportedVersion
	}
	switch q.Get("transport") {
	case TransportPolling, TransportWebsocket:
		return nil
	}
	return &ErrTransportUnknown
}

// WriteHandshakeError writes e as a 400 JSON response.
func WriteHandshakeError(w http.ResponseWriter, e HandshakeError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(e)
}

// EncodePayload joins text frames into one polling payload.
func EncodePayload(frames []string) string {
	return strings.Join(frames, recordSeparator)
}

// DecodePayload splits a polling payload into its text frames.
func DecodePayload(payload string) []string {
	if payload == "" {
		return nil
	}
	return strings.Split(payload, recordSeparator)
}
