package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"wren/cmd/internal/auth/session"
)

type stubVerifier struct {
	claims map[string]session.AccessClaims
}

func (v stubVerifier) Verify(token string, now time.Time) (session.AccessClaims, error) {
	c, ok := v.claims[token]
	if !ok {
		return session.AccessClaims{}, session.ErrInvalidToken
	}
	if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
		return session.AccessClaims{}, session.ErrTokenExpired
	}
	return c, nil
}

func newTestGateway(t *testing.T, verifier AccessVerifier) (*WSGateway, *Hub) {
	t.Helper()
	t.Setenv("WREN_WS_ORIGIN_REQUIRED", "false")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(log)
	return NewWSGateway(log, hub, verifier), hub
}

func dialGateway(t *testing.T, serverURL, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	if token != "" {
		wsURL += "?token=" + token
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{"wren.v1"},
	})
}

func readFrame(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return env
}

func TestWSGateway_MissingTokenRejected(t *testing.T) {
	gw, _ := newTestGateway(t, stubVerifier{})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWS)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	_, resp, err := dialGateway(t, ts.URL, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v err=%v", resp, err)
	}
}

func TestWSGateway_InvalidTokenRejected(t *testing.T) {
	gw, _ := newTestGateway(t, stubVerifier{})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWS)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	_, resp, err := dialGateway(t, ts.URL, "bogus")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v err=%v", resp, err)
	}
}

func TestWSGateway_HelloAckThenEventDelivery(t *testing.T) {
	now := time.Now().UTC()
	verifier := stubVerifier{claims: map[string]session.AccessClaims{
		"good-token": {UserID: "user-1", Username: "alice", ExpiresAt: now.Add(time.Hour)},
	}}
	gw, hub := newTestGateway(t, verifier)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWS)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	conn, resp, err := dialGateway(t, ts.URL, "good-token")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	ack := readFrame(t, conn)
	if ack.Type != TypeHelloAck {
		t.Fatalf("first frame type = %q, want %q", ack.Type, TypeHelloAck)
	}
	var ackPayload HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &ackPayload); err != nil {
		t.Fatalf("decode ack payload: %v", err)
	}
	if ackPayload.UserID != "user-1" || ackPayload.SessionID == "" {
		t.Fatalf("ack payload = %+v", ackPayload)
	}

	// A lifecycle event published to the user's room reaches the socket.
	err = hub.Publish(context.Background(), UserRoom("user-1"), "session.revoked",
		map[string]string{"sessionId": "sess-9"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	frame := readFrame(t, conn)
	if frame.Type != TypeEvent {
		t.Fatalf("frame type = %q, want %q", frame.Type, TypeEvent)
	}
	var evt EventPayload
	if err := json.Unmarshal(frame.Payload, &evt); err != nil {
		t.Fatalf("decode event payload: %v", err)
	}
	if evt.Room != UserRoom("user-1") || evt.Event != "session.revoked" {
		t.Fatalf("event = %+v", evt)
	}
}

func TestWSGateway_EventsDoNotLeakAcrossUsers(t *testing.T) {
	now := time.Now().UTC()
	verifier := stubVerifier{claims: map[string]session.AccessClaims{
		"token-a": {UserID: "user-a", ExpiresAt: now.Add(time.Hour)},
	}}
	gw, hub := newTestGateway(t, verifier)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWS)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	conn, resp, err := dialGateway(t, ts.URL, "token-a")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	if ack := readFrame(t, conn); ack.Type != TypeHelloAck {
		t.Fatalf("missing hello.ack")
	}

	// Event for a different user must not arrive on this socket.
	if err := hub.Publish(context.Background(), UserRoom("user-b"), "email.verified", nil); err != nil {
		t.Fatalf("publish other: %v", err)
	}
	if err := hub.Publish(context.Background(), UserRoom("user-a"), "password.reset", nil); err != nil {
		t.Fatalf("publish own: %v", err)
	}

	frame := readFrame(t, conn)
	var evt EventPayload
	if err := json.Unmarshal(frame.Payload, &evt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Event != "password.reset" {
		t.Fatalf("received %q, want the user's own event only", evt.Event)
	}
}

func TestWSGateway_OriginPolicy(t *testing.T) {
	t.Setenv("WREN_WS_ORIGIN_REQUIRED", "true")
	t.Setenv("WREN_WS_ALLOWED_ORIGINS", "http://localhost")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := NewWSGateway(log, NewHub(log), stubVerifier{})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	w := httptest.NewRecorder()
	gw.HandleWS(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("disallowed origin: status %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	w = httptest.NewRecorder()
	gw.HandleWS(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("missing origin with policy on: status %d", w.Code)
	}
}
