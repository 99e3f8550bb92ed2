package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vietddude/medlingo/internal/core/domain"
)

// echoServer answers every request with a successful "<action>Response"
// carrying the request data back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env domain.Envelope
			if err := json.Unmarshal(payload, &env); err != nil || env.RequestID == "" {
				continue
			}
			reply, _ := json.Marshal(map[string]any{
				"success":   true,
				"action":    env.Action + "Response",
				"requestId": env.RequestID,
				"data":      env.Data,
			})
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocket_RequestRoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	m := NewManager(&WebSocketDialer{URL: wsURL(srv)}, fastConfig())
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer m.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := m.Request(ctx, domain.Envelope{
		Action: "translate",
		Data:   map[string]string{"text": "blood pressure"},
	})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	var payload map[string]string
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["text"] != "blood pressure" {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestWebSocket_PeerCloseCodeSurfaced(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "maintenance")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	dialer := &WebSocketDialer{URL: wsURL(srv)}
	conn, err := dialer.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(CloseNormal, "")

	_, err = conn.Read(context.Background())
	var closeErr *CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected CloseError, got %v", err)
	}
	if closeErr.Code != websocket.CloseTryAgainLater || closeErr.Normal() {
		t.Errorf("unexpected close error %+v", closeErr)
	}
}

func TestWebSocket_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := (&WebSocketDialer{URL: wsURL(srv)}).Dial(context.Background())
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("expected status in error, got %v", err)
	}
}
