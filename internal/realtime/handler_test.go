package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ref   string          `json:"ref"`
}

func startServer(t *testing.T, h *harness) string {
	t.Helper()
	handler := NewHandler(h.sessions, h.router, HandlerConfig{
		SendBuffer:   16,
		WriteTimeout: time.Second,
		PingInterval: 5 * time.Second,
	}, zap.NewNop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func bearer(tok string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + tok}}
}

// next reads frames until one with the given event arrives.
func next(t *testing.T, ws *websocket.Conn, event string) wireFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		var f wireFrame
		require.NoError(t, json.Unmarshal(data, &f))
		if f.Event == event {
			return f
		}
	}
}

func TestHandshakeWithBearerHeader(t *testing.T) {
	h := newHarness(t, 0, 0)
	url := startServer(t, h)

	ws := dial(t, url, bearer(h.token(t, "alice")))
	f := next(t, ws, "onlineUsers")

	var ids []string
	require.NoError(t, json.Unmarshal(f.Data, &ids))
	assert.Equal(t, []string{"alice"}, ids)
}

func TestHandshakeWithQueryToken(t *testing.T) {
	h := newHarness(t, 0, 0)
	url := startServer(t, h)

	ws := dial(t, url+"?token="+h.token(t, "alice"), nil)
	next(t, ws, "connected")
}

func TestHandshakeWithAuthenticateFrame(t *testing.T) {
	h := newHarness(t, 0, 0)
	url := startServer(t, h)

	ws := dial(t, url, nil)
	require.NoError(t, ws.WriteJSON(map[string]any{
		"event": "authenticate",
		"data":  map[string]string{"token": h.token(t, "alice")},
	}))
	next(t, ws, "onlineUsers")
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	h := newHarness(t, 0, 0)
	url := startServer(t, h)

	ws := dial(t, url, bearer("forged"))
	f := next(t, ws, "connectError")
	assert.JSONEq(t, `{"error":"invalid_token"}`, string(f.Data))

	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, closeAuthFailed), "err = %v", err)
	assert.Empty(t, h.sessions.Online())
}

func TestHandshakeTimesOut(t *testing.T) {
	h := newHarness(t, 0, 0)
	url := startServer(t, h)

	ws := dial(t, url, nil)
	f := next(t, ws, "connectError")
	assert.JSONEq(t, `{"error":"handshake_timeout"}`, string(f.Data))
}

func TestEndToEndMessageAndSupersede(t *testing.T) {
	h := newHarness(t, 0, 0)
	url := startServer(t, h)

	alice := dial(t, url, bearer(h.token(t, "alice")))
	next(t, alice, "onlineUsers")
	bob := dial(t, url, bearer(h.token(t, "bob")))
	next(t, bob, "onlineUsers")
	next(t, alice, "userStatusChanged")

	require.NoError(t, alice.WriteJSON(map[string]any{
		"event": "sendMessage",
		"data":  map[string]string{"receiverId": "bob", "text": "hi"},
	}))
	fromAlice := next(t, alice, "newMessage")
	toBob := next(t, bob, "newMessage")
	assert.JSONEq(t, string(fromAlice.Data), string(toBob.Data))
	next(t, bob, "newNotification")

	// Bob connects again from another device; the first socket is told why it closes.
	bob2 := dial(t, url, bearer(h.token(t, "bob")))
	next(t, bob2, "onlineUsers")
	f := next(t, bob, "forceDisconnect")
	assert.JSONEq(t, `{"reason":"superseded"}`, string(f.Data))
	_, _, err := bob.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, closeSuperseded), "err = %v", err)

	assert.Equal(t, 2, h.conns.Len())
	assert.Equal(t, []string{"alice", "bob"}, h.sessions.Online())
}

func TestClientCloseDisconnects(t *testing.T) {
	h := newHarness(t, 0, 0)
	url := startServer(t, h)

	alice := dial(t, url, bearer(h.token(t, "alice")))
	next(t, alice, "onlineUsers")
	bob := dial(t, url, bearer(h.token(t, "bob")))
	next(t, bob, "onlineUsers")

	_ = bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	_ = bob.Close()

	for {
		f := next(t, alice, "userStatusChanged")
		if strings.Contains(string(f.Data), `"offline"`) {
			break
		}
	}
	assert.Equal(t, []string{"alice"}, h.sessions.Online())
}
