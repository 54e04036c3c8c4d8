package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(logging.New("error"))
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForClients(t, hub, 1)

	hub.Broadcast(PaymentUpdate{
		OrderID:       "ORD-20260830120000-abc12345",
		PaymentStatus: "approved",
		PayerEmail:    "ana@example.com",
		TotalAmount:   2000,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got PaymentUpdate
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "payment_update", got.Event)
	assert.Equal(t, "approved", got.PaymentStatus)
	assert.Equal(t, 2000.0, got.TotalAmount)
}

func TestHubPrunesDeadClients(t *testing.T) {
	hub := NewHub(logging.New("error"))
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForClients(t, hub, 1)
	conn.Close()

	// First write may still succeed while the close propagates.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() > 0 && time.Now().Before(deadline) {
		hub.Broadcast(PaymentUpdate{OrderID: "ORD-x", PaymentStatus: "pending"})
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, hub.ClientCount())
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
