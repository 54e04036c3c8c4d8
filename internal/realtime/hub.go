package realtime

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

// PaymentUpdate is the event pushed to connected dashboard clients whenever a
// webhook changes a payment status.
type PaymentUpdate struct {
	Event         string  `json:"event"`
	OrderID       string  `json:"order_id"`
	PaymentStatus string  `json:"payment_status"`
	PayerEmail    string  `json:"payer_email,omitempty"`
	TotalAmount   float64 `json:"total_amount,omitempty"`
}

// Hub fans payment updates out to websocket subscribers. Connections that
// fail a write are dropped.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *logging.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// HandleWS upgrades the request and keeps the connection subscribed until
// the client goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()
	h.logger.Info("websocket client connected", "clients", total)

	// Drain reads so close frames and pings are processed.
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends the update to every subscriber, pruning dead connections.
func (h *Hub) Broadcast(update PaymentUpdate) {
	if update.Event == "" {
		update.Event = "payment_update"
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(update); err != nil {
			h.logger.Debug("dropping websocket client", "error", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// ClientCount reports the number of live subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) remove(conn *websocket.Conn) {
	conn.Close()
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}
