package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

func setupTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(5*time.Second, nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		hub.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(server.Close)
	return hub, server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEnvelopeOrControl(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHandleConnectionSendsEstablishedMessage(t *testing.T) {
	_, server := setupTestHub(t)
	conn := connectWS(t, server)

	msg := readEnvelopeOrControl(t, conn)
	require.Equal(t, "connection.established", msg["type"])
}

func TestBroadcastDeliversToConnectedClient(t *testing.T) {
	hub, server := setupTestHub(t)
	conn := connectWS(t, server)
	readEnvelopeOrControl(t, conn) // connection.established

	hub.Broadcast(StopRequested())

	msg := readEnvelopeOrControl(t, conn)
	require.Equal(t, "stop", msg["type"])
	require.Equal(t, "requested", msg["status"])
}

func TestPingReceivesPong(t *testing.T) {
	_, server := setupTestHub(t)
	conn := connectWS(t, server)
	readEnvelopeOrControl(t, conn) // connection.established

	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, []byte(`{"action":"ping"}`)))

	msg := readEnvelopeOrControl(t, conn)
	require.Equal(t, "pong", msg["type"])
}

func TestCatchupReplaysEventsSinceSeqID(t *testing.T) {
	hub, server := setupTestHub(t)
	hub.Broadcast(StopRequested())
	hub.Broadcast(StopCompleted())

	conn := connectWS(t, server)
	readEnvelopeOrControl(t, conn) // connection.established

	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, []byte(`{"action":"catchup","sinceSeqId":0}`)))

	first := readEnvelopeOrControl(t, conn)
	require.Equal(t, "requested", first["status"])
	second := readEnvelopeOrControl(t, conn)
	require.Equal(t, "completed", second["status"])
}

func TestActiveConnectionsTracksLifecycle(t *testing.T) {
	hub, server := setupTestHub(t)
	require.Equal(t, 0, hub.ActiveConnections())

	conn := connectWS(t, server)
	readEnvelopeOrControl(t, conn)
	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return hub.ActiveConnections() == 0 }, time.Second, 10*time.Millisecond)
}
