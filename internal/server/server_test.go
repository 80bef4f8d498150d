package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialTestSocket starts the hub, serves the routes and connects one editor.
func dialTestSocket(t *testing.T) (*PreviewServer, *httptest.Server, *websocket.Conn) {
	t.Helper()

	s, h := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.runHub(ctx)

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	// Registration runs async; broadcasts sent before it lands are lost.
	require.Eventually(t, func() bool {
		s.clientsMutex.RLock()
		defer s.clientsMutex.RUnlock()
		return len(s.clients) == 1
	}, 2*time.Second, 5*time.Millisecond)

	return s, ts, conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocketReceivesBroadcast(t *testing.T) {
	s, _, conn := dialTestSocket(t)

	s.broadcastEvent("render_started", nil)

	msg := readEvent(t, conn)
	assert.Equal(t, "render_started", msg["type"])
	assert.NotEmpty(t, msg["timestamp"])
}

func TestDebouncedEditPushesOutcome(t *testing.T) {
	_, ts, conn := dialTestSocket(t)

	resp, err := http.Post(ts.URL+"/api/edit", "text/plain", strings.NewReader("cv: {}\n"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The debounce fires, the render runs and the outcome is pushed.
	for {
		msg := readEvent(t, conn)
		if msg["type"] != "render_complete" {
			continue
		}
		data, ok := msg["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, true, data["success"])
		return
	}
}
