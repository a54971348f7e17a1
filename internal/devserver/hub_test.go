package devserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubReplaysBuildErrorToNewClients(t *testing.T) {
	hub := NewHub(nil, nil)
	ts := httptest.NewServer(http.HandlerFunc(hub.ServeSSE))
	defer ts.Close()

	hub.Broadcast(Message{Kind: KindBuildError, Payload: ErrorPayload{Error: "boom", Code: "transform"}, Generation: 4})

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	m := sseReader(t, resp.Body).next(t)
	assert.Equal(t, KindBuildError, m.Kind)
	assert.Equal(t, uint64(4), m.Generation)
	assert.JSONEq(t, `{"error":"boom","code":"transform"}`, string(m.Payload))
}

func TestHubSuccessClearsReplay(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Broadcast(Message{Kind: KindBuildError, Generation: 1})
	hub.Broadcast(Message{Kind: KindFullReload, Generation: 2})

	_, replay, ok := hub.register()
	require.True(t, ok)
	assert.Nil(t, replay)
}

func TestHubDropsSlowClients(t *testing.T) {
	hub := NewHub(nil, nil)
	c, _, ok := hub.register()
	require.True(t, ok)

	for i := range clientBuffer + 1 {
		hub.Broadcast(Message{Kind: KindFullReload, Generation: uint64(i)})
	}
	assert.Equal(t, 0, hub.Clients())
	select {
	case <-c.done:
	default:
		t.Fatal("dropped client not closed")
	}
}

func TestHubWebSocketDelivery(t *testing.T) {
	hub := NewHub(nil, nil)
	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(Message{Kind: KindStyleUpdate, Payload: UpdatePayload{Files: []string{"main.css"}}, Generation: 7})
	m := readWS(t, conn)
	assert.Equal(t, KindStyleUpdate, m.Kind)
	assert.JSONEq(t, `{"files":["main.css"]}`, string(m.Payload))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubCloseRejectsClients(t *testing.T) {
	hub := NewHub(nil, nil)
	c, _, ok := hub.register()
	require.True(t, ok)

	hub.Close()
	<-c.done
	_, _, ok = hub.register()
	assert.False(t, ok)

	rec := httptest.NewRecorder()
	hub.ServeSSE(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
