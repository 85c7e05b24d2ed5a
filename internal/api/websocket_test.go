package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"inbox/internal/ws"
)

func TestOriginMatchesAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed string
		want    bool
	}{
		{name: "exact_match", origin: "https://example.com", allowed: "https://example.com", want: true},
		{name: "wildcard_prefix_match", origin: "app://desktop/main", allowed: "app://*", want: true},
		{name: "wildcard_prefix_miss", origin: "https://example.com", allowed: "app://*", want: false},
		{name: "exact_miss", origin: "https://evil.com", allowed: "https://example.com", want: false},
		{name: "blank_entry", origin: "https://example.com", allowed: "  ", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := originMatchesAllowed(tt.origin, tt.allowed); got != tt.want {
				t.Fatalf("originMatchesAllowed(%q, %q) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
			}
		})
	}
}

func TestCheckOrigin(t *testing.T) {
	allowed := []string{"https://example.com", "app://*"}

	tests := []struct {
		origin string
		want   bool
	}{
		{origin: "", want: true},
		{origin: "http://127.0.0.1:5173", want: true},
		{origin: "http://localhost:3000", want: true},
		{origin: "https://example.com", want: true},
		{origin: "https://evil.com", want: false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "http://localhost/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := checkOrigin(req, allowed); got != tt.want {
			t.Fatalf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestServeWSRequiresValidToken(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/ws", "/ws?token=bogus"} {
		rr, env := s.do(t, http.MethodGet, path, "", nil)
		expectError(t, rr, env, http.StatusUnauthorized, ErrCodeUnauthorized)
	}
}

func TestServeWSDeliversHints(t *testing.T) {
	s := newTestServer(t)
	alice, aliceToken := s.user(t, "alice")
	bob, bobToken := s.user(t, "bob")
	s.connect(t, alice, bob)

	httpSrv := httptest.NewServer(s.handler)
	defer httpSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws?token=" + bobToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	readOp := func() ws.WSMessage {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg ws.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return msg
	}

	if msg := readOp(); msg.Op != ws.OpHello {
		t.Fatalf("first op = %d, want HELLO", msg.Op)
	}
	if msg := readOp(); msg.Op != ws.OpReady {
		t.Fatalf("second op = %d, want READY", msg.Op)
	}

	rr, _ := s.do(t, http.MethodPost, "/api/v1/messages/send", aliceToken, SendMessageRequest{RecipientID: bob, Content: "ping"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("send status = %d", rr.Code)
	}

	msg := readOp()
	if msg.Op != ws.OpDispatch || msg.Type != ws.EventMessageCreate {
		t.Fatalf("dispatch = %+v, want MESSAGE_CREATE", msg)
	}
}
