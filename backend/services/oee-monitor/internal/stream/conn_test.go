package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSDialerReadsFramesAndCloseCode(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"OEEData"}`))
		_ = ws.WriteMessage(websocket.PingMessage, nil)
		_ = ws.WriteMessage(websocket.BinaryMessage, []byte("bin"))
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart"),
			time.Now().Add(time.Second))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	header.Set("X-Api-Key", "secret")
	dialer := NewWSDialer(time.Second, header)

	conn, err := dialer.Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close()

	frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"OEEData"}`, string(frame))

	frame, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "bin", string(frame))

	_, err = conn.ReadMessage()
	var closeErr *CloseError
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, CloseGoingAway, closeErr.Code)
	assert.Equal(t, "restart", closeErr.Reason)
}

func TestWSDialerReportsHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, err := NewWSDialer(time.Second, nil).Dial(context.Background(), url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
