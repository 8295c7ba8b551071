package sio

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestDecode_EventRootNamespace(t *testing.T) {
	p, err := Decode(`2["chat_message",{"text":"hi"}]`)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if p.Type != Event || p.Namespace != RootNamespace || p.ID != nil {
		t.Fatalf("packet = %+v", p)
	}
	ev, args, err := p.EventArgs()
	if err != nil {
		t.Fatal(err)
	}
	if ev != "chat_message" || len(args) != 1 {
		t.Errorf("EventArgs() = %q %v", ev, args)
	}
}

func TestDecode_EventWithNamespaceAndAck(t *testing.T) {
	p, err := Decode(`2/chat,17["message",1,"two"]`)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if p.Namespace != "/chat" {
		t.Errorf("Namespace = %q, want /chat", p.Namespace)
	}
	if p.ID == nil || *p.ID != 17 {
		t.Errorf("ID = %v, want 17", p.ID)
	}
	_, args, _ := p.EventArgs()
	if len(args) != 2 {
		t.Errorf("len(args) = %d, want 2", len(args))
	}
}

func TestDecode_ConnectVariants(t *testing.T) {
	tests := []struct {
		in     string
		ns     string
		hasArg bool
	}{
		{in: "0", ns: "/"},
		{in: "0/admin,", ns: "/admin"},
		{in: "0/admin", ns: "/admin"},
		{in: `0/admin,{"token":"x"}`, ns: "/admin", hasArg: true},
		{in: `0{"token":"x"}`, ns: "/", hasArg: true},
	}
	for _, tt := range tests {
		p, err := Decode(tt.in)
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", tt.in, err)
		}
		if p.Type != Connect || p.Namespace != tt.ns || (len(p.Data) > 0) != tt.hasArg {
			t.Errorf("Decode(%q) = %+v", tt.in, p)
		}
	}
}

func TestDecode_BinaryEvent(t *testing.T) {
	p, err := Decode(`51-/up,["upload",{"_placeholder":true,"num":0}]`)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if p.Type != BinaryEvent || p.Attachments != 1 || p.Namespace != "/up" {
		t.Errorf("packet = %+v", p)
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, in := range []string{"", "9", "5-[]", `2["x"`, "5x-[]"} {
		if _, err := Decode(in); !errors.Is(err, ErrInvalidPacket) {
			t.Errorf("Decode(%q) error = %v, want ErrInvalidPacket", in, err)
		}
	}
}

func TestEventArgs_Invalid(t *testing.T) {
	for _, in := range []string{`2[]`, `2[1,2]`, `2{"a":1}`, `0`} {
		p, err := Decode(in)
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", in, err)
		}
		if _, _, err := p.EventArgs(); !errors.Is(err, ErrInvalidPacket) {
			t.Errorf("EventArgs(%q) error = %v, want ErrInvalidPacket", in, err)
		}
	}
}

func TestEncode(t *testing.T) {
	ev, _ := NewEvent("/chat", "pong", []any{map[string]any{"ok": true}})
	if got, want := ev.Frame(), `42/chat,["pong",{"ok":true}]`; got != want {
		t.Errorf("Frame() = %s, want %s", got, want)
	}

	root, _ := NewEvent("/", "hello", nil)
	if got, want := root.Frame(), `42["hello"]`; got != want {
		t.Errorf("Frame() = %s, want %s", got, want)
	}

	ack, _ := NewAck("/", 5, nil)
	if got, want := ack.Frame(), `435[]`; got != want {
		t.Errorf("ack Frame() = %s, want %s", got, want)
	}

	if got, want := NewDisconnect("/chat").Frame(), `41/chat,`; got != want {
		t.Errorf("disconnect Frame() = %s, want %s", got, want)
	}

	if got, want := NewConnect("/", "abc").Frame(), `40{"sid":"abc"}`; got != want {
		t.Errorf("connect Frame() = %s, want %s", got, want)
	}
}

func TestEncodeDecode_KeepsFields(t *testing.T) {
	id := int64(42)
	in := Packet{Type: BinaryAck, Namespace: "/ns", ID: &id, Attachments: 2, Data: json.RawMessage(`[1]`)}
	out, err := Decode(in.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if out.Type != in.Type || out.Namespace != in.Namespace || *out.ID != id || out.Attachments != 2 || string(out.Data) != "[1]" {
		t.Errorf("Decode(Encode()) = %+v", out)
	}
}

func TestNewConnectError(t *testing.T) {
	p, err := NewConnectError("/", "unauthorized", map[string]any{"message": "unauthorized", "code": 401})
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal(p.Data, &body); err != nil {
		t.Fatal(err)
	}
	if body.Message != "unauthorized" || body.Data["code"] != float64(401) {
		t.Errorf("body = %+v", body)
	}
	if p.Frame()[:2] != "44" {
		t.Errorf("Frame() = %s, want 44 prefix", p.Frame())
	}
}

func TestOpenAndEngineFrames(t *testing.T) {
	frame, err := EncodeOpen(Open{SID: "s1", PingInterval: 25000, PingTimeout: 20000, MaxPayload: 1e6})
	if err != nil {
		t.Fatal(err)
	}
	typ, payload, err := DecodeEngine(frame)
	if err != nil || typ != EngineOpen {
		t.Fatalf("DecodeEngine() = %v %v", typ, err)
	}
	var o Open
	if err := json.Unmarshal([]byte(payload), &o); err != nil {
		t.Fatal(err)
	}
	if o.SID != "s1" || o.Upgrades == nil || o.PingInterval != 25000 {
		t.Errorf("open = %+v", o)
	}

	if _, _, err := DecodeEngine("x"); !errors.Is(err, ErrInvalidPacket) {
		t.Errorf("DecodeEngine(x) error = %v, want ErrInvalidPacket", err)
	}
	if got := EncodeEngine(EnginePong, ""); got != "3" {
		t.Errorf("EncodeEngine(pong) = %q, want 3", got)
	}
}

func TestCheckHandshake(t *testing.T) {
	tests := []struct {
		query string
		want  *HandshakeError
	}{
		{"EIO=4&transport=websocket", nil},
		{"EIO=3&transport=websocket", &ErrUnsupportedVersion},
		{"EIO=4&transport=polling", nil},
		{"EIO=4&transport=polling&sid=abc", nil},
		{"EIO=4&transport=websocket&sid=abc", nil},
		{"EIO=4&transport=carrier-pigeon", &ErrTransportUnknown},
		{"transport=polling", &ErrUnsupportedVersion},
	}
	for _, tt := range tests {
		q, _ := url.ParseQuery(tt.query)
		got := CheckHandshake(q)
		if (got == nil) != (tt.want == nil) || (got != nil && got.Code != tt.want.Code) {
			t.Errorf("CheckHandshake(%s) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestWriteHandshakeError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteHandshakeError(w, ErrBadHandshake)
	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
	var body HandshakeError
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Code != 3 || body.Message != "Bad request" {
		t.Errorf("body = %+v", body)
	}
}

func TestPayload(t *testing.T) {
	frames := []string{"0{\"sid\":\"a\"}", "40", `42["hi"]`}
	joined := EncodePayload(frames)
	if joined != "0{\"sid\":\"a\"}\x1e40\x1e42[\"hi\"]" {
		t.Errorf("EncodePayload = %q", joined)
	}
	got := DecodePayload(joined)
	if len(got) != 3 || got[2] != `42["hi"]` {
		t.Errorf("DecodePayload = %q", got)
	}
	if got := DecodePayload(""); got != nil {
		t.Errorf("DecodePayload(\"\") = %q, want nil", got)
	}
}
