package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deliciasfueguinas/orderbot/internal/observability/metrics"
	"github.com/deliciasfueguinas/orderbot/internal/realtime"
	"github.com/deliciasfueguinas/orderbot/internal/state"
	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

// PaymentFetcher is the processor lookup surface the webhook needs.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	GetMerchantOrder(ctx context.Context, orderID string) (*MerchantOrder, error)
}

// Broadcaster pushes payment updates to connected dashboard clients.
type Broadcaster interface {
	Broadcast(update realtime.PaymentUpdate)
}

type webhookNotification struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  struct {
		ID string `json:"id"`
	} `json:"data"`
	Resource string `json:"resource"`
}

// WebhookHandler reconciles Mercado Pago notifications into conversation
// state. It always answers 200 so the processor does not retry forever;
// failures are logged and counted instead.
type WebhookHandler struct {
	mp         PaymentFetcher
	store      state.Store
	hub        Broadcaster
	metrics    *metrics.BotMetrics
	archiveDir string
	logger     *logging.Logger
}

func NewWebhookHandler(mp PaymentFetcher, store state.Store, hub Broadcaster, m *metrics.BotMetrics, archiveDir string, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{mp: mp, store: store, hub: hub, metrics: m, archiveDir: archiveDir, logger: logger}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Warn("failed to read webhook body", "error", err)
		h.respond(w)
		return
	}
	h.archive(body)

	topic, resourceID := parseNotification(body, r)
	if topic == "" || resourceID == "" {
		h.logger.Warn("webhook with no topic or resource id", "body", string(body))
		h.metrics.ObserveWebhook("unknown", "ignored")
		h.respond(w)
		return
	}

	switch topic {
	case "payment":
		h.handlePayment(r.Context(), resourceID)
	case "merchant_order":
		h.handleMerchantOrder(r.Context(), resourceID)
	default:
		h.logger.Debug("ignoring webhook topic", "topic", topic)
		h.metrics.ObserveWebhook(topic, "ignored")
	}
	h.respond(w)
}

// parseNotification reads the JSON body first, falling back to the
// topic/id query parameters Mercado Pago uses for older notification kinds.
func parseNotification(body []byte, r *http.Request) (topic, resourceID string) {
	var n webhookNotification
	if err := json.Unmarshal(body, &n); err == nil {
		topic = n.Topic
		if topic == "" {
			topic = n.Type
		}
		resourceID = n.Data.ID
		if resourceID == "" && n.Resource != "" {
			parts := strings.Split(strings.TrimSuffix(n.Resource, "/"), "/")
			resourceID = parts[len(parts)-1]
		}
	}
	if topic == "" {
		topic = r.URL.Query().Get("topic")
		if topic == "" {
			topic = r.URL.Query().Get("type")
		}
	}
	if resourceID == "" {
		resourceID = r.URL.Query().Get("id")
		if resourceID == "" {
			resourceID = r.URL.Query().Get("data.id")
		}
	}
	return topic, resourceID
}

func (h *WebhookHandler) handlePayment(ctx context.Context, paymentID string) {
	payment, err := h.mp.GetPayment(ctx, paymentID)
	if err != nil {
		h.logger.Error("failed to fetch payment for webhook", "payment_id", paymentID, "error", err)
		h.metrics.ObserveWebhook("payment", "fetch_error")
		return
	}
	if payment.ExternalReference == "" {
		h.logger.Warn("payment without external reference", "payment_id", paymentID)
		h.metrics.ObserveWebhook("payment", "no_reference")
		return
	}

	status := state.ParsePaymentStatus(payment.Status)
	metadata := map[string]string{
		"payment_id":         paymentID,
		"payer_email":        payment.Payer.Email,
		"transaction_amount": fmt.Sprintf("%.2f", payment.TransactionAmount),
	}

	updated := h.store.UpdatePaymentStatusByOrderID(payment.ExternalReference, status, metadata)
	if !updated {
		h.logger.Warn("webhook matched no pending order",
			"order_id", payment.ExternalReference,
			"payment_id", paymentID,
			"status", payment.Status,
		)
		h.metrics.ObserveWebhook("payment", "unmatched")
		return
	}

	h.logger.Info("applied payment update",
		"order_id", payment.ExternalReference,
		"payment_id", paymentID,
		"status", string(status),
	)
	h.metrics.ObserveWebhook("payment", "applied")

	if h.hub != nil {
		h.hub.Broadcast(realtime.PaymentUpdate{
			OrderID:       payment.ExternalReference,
			PaymentStatus: string(status),
			PayerEmail:    payment.Payer.Email,
			TotalAmount:   payment.TransactionAmount,
		})
	}
}

func (h *WebhookHandler) handleMerchantOrder(ctx context.Context, orderID string) {
	order, err := h.mp.GetMerchantOrder(ctx, orderID)
	if err != nil {
		h.logger.Error("failed to fetch merchant order for webhook", "merchant_order_id", orderID, "error", err)
		h.metrics.ObserveWebhook("merchant_order", "fetch_error")
		return
	}
	h.logger.Info("merchant order notification",
		"merchant_order_id", orderID,
		"preference_id", order.PreferenceID,
		"status", order.Status,
		"payments", len(order.Payments),
	)
	h.metrics.ObserveWebhook("merchant_order", "logged")
}

func (h *WebhookHandler) respond(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "received"})
}

func (h *WebhookHandler) archive(body []byte) {
	if h.archiveDir == "" || len(body) == 0 {
		return
	}
	if err := os.MkdirAll(h.archiveDir, 0o755); err != nil {
		h.logger.Warn("failed to create webhook archive dir", "error", err)
		return
	}
	name := fmt.Sprintf("webhook_%s.json", time.Now().UTC().Format("20060102150405.000000000"))
	if err := os.WriteFile(filepath.Join(h.archiveDir, name), body, 0o644); err != nil {
		h.logger.Warn("failed to archive webhook", "error", err)
	}
}
