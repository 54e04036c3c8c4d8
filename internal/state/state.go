package state

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the canonical payment state of an order. Webhook payloads
// carry free-text statuses; they are normalized through ParsePaymentStatus
// before touching stored records.
type PaymentStatus string

const (
	StatusPending  PaymentStatus = "pending"
	StatusApproved PaymentStatus = "approved"
	StatusRejected PaymentStatus = "rejected"
	StatusUnknown  PaymentStatus = "unknown"
)

// ParsePaymentStatus normalizes a provider-supplied status string.
func ParsePaymentStatus(s string) PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "in_process", "in_mediation":
		return StatusPending
	case "approved", "accredited":
		return StatusApproved
	case "rejected", "cancelled", "refunded", "charged_back":
		return StatusRejected
	default:
		return StatusUnknown
	}
}

// OrderItem is one verified line of an order.
type OrderItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

// OrderRecord is a single in-flight or completed order. Once a record is
// copied into OrderHistory it is never mutated again.
type OrderRecord struct {
	OrderID          string            `json:"order_id"`
	PreferenceID     string            `json:"preference_id,omitempty"`
	PayerName        string            `json:"payer_name,omitempty"`
	Items            []OrderItem       `json:"items"`
	TotalAmount      float64           `json:"total_amount"`
	Status           PaymentStatus     `json:"status"`
	InitPoint        string            `json:"init_point,omitempty"`
	PaymentMetadata  map[string]string `json:"payment_metadata,omitempty"`
	PaymentUpdatedAt time.Time         `json:"payment_updated_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *OrderRecord) Clone() *OrderRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Items = append([]OrderItem(nil), r.Items...)
	if r.PaymentMetadata != nil {
		cp.PaymentMetadata = make(map[string]string, len(r.PaymentMetadata))
		for k, v := range r.PaymentMetadata {
			cp.PaymentMetadata[k] = v
		}
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// ChatTurn is one chat message in the per-user history, also used as LLM context.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationState is the per-user conversation record. user_id is the
// primary key; states are created lazily and never deleted.
type ConversationState struct {
	UserID                string             `json:"user_id"`
	Context               string             `json:"context"`
	PendingOrder          *OrderRecord       `json:"pending_order,omitempty"`
	OrderHistory          []OrderRecord      `json:"order_history"`
	WaitingForAlternative bool               `json:"waiting_for_alternative"`
	History               []ChatTurn         `json:"history"`
	ShouldNotifyPayment   bool               `json:"should_notify_payment,omitempty"`
	NotificationMessage   string             `json:"notification_message,omitempty"`
	LastUpdated           time.Time          `json:"last_updated"`
}

// NewConversationState returns the default state for a first-contact user.
func NewConversationState(userID string) *ConversationState {
	return &ConversationState{
		UserID:       userID,
		Context:      "initial",
		OrderHistory: []OrderRecord{},
		History:      []ChatTurn{},
		LastUpdated:  time.Now().UTC(),
	}
}

// Clone returns a deep copy so callers can never mutate the live store.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.PendingOrder = s.PendingOrder.Clone()
	cp.OrderHistory = make([]OrderRecord, len(s.OrderHistory))
	for i := range s.OrderHistory {
		cp.OrderHistory[i] = *s.OrderHistory[i].Clone()
	}
	cp.History = append([]ChatTurn(nil), s.History...)
	return &cp
}

// HasHistoryOrder reports whether an order id was already appended to history.
func (s *ConversationState) HasHistoryOrder(orderID string) bool {
	for i := range s.OrderHistory {
		if s.OrderHistory[i].OrderID == orderID {
			return true
		}
	}
	return false
}

// NewOrderID generates a timestamp-derived, collision-proof order id.
func NewOrderID() string {
	return fmt.Sprintf("ORD-%s-%s", time.Now().UTC().Format("20060102150405"), uuid.NewString()[:8])
}

// NotificationMessage builds the customer-facing message queued when a
// payment status update arrives.
func NotificationMessage(status PaymentStatus) string {
	switch status {
	case StatusApproved:
		return "¡Buenas noticias! Tu pago ha sido confirmado. Tu pedido está siendo preparado y pronto estará listo."
	case StatusRejected:
		return "Lamentablemente, tu pago ha sido rechazado. Por favor, intentá con otro medio de pago o contactanos para asistencia."
	case StatusPending:
		return "Tu pago está siendo procesado. Te avisaremos cuando se confirme."
	default:
		return fmt.Sprintf("El estado de tu pago cambió a: %s. Si tenés dudas, no dudes en consultarnos.", status)
	}
}

// applyPaymentUpdate applies a webhook-driven status change to the pending
// order when match accepts it. On approval the record is copied into history
// exactly once per order id; replayed deliveries are no-ops on history.
func applyPaymentUpdate(st *ConversationState, match func(*OrderRecord) bool, status PaymentStatus, metadata map[string]string) bool {
	po := st.PendingOrder
	if po == nil || !match(po) {
		return false
	}

	now := time.Now().UTC()
	po.Status = status
	po.PaymentUpdatedAt = now
	if len(metadata) > 0 {
		if po.PaymentMetadata == nil {
			po.PaymentMetadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			po.PaymentMetadata[k] = v
		}
	}

	st.ShouldNotifyPayment = true
	st.NotificationMessage = NotificationMessage(status)

	if status == StatusApproved && !st.HasHistoryOrder(po.OrderID) {
		completed := po.Clone()
		completed.CompletedAt = &now
		st.OrderHistory = append(st.OrderHistory, *completed)
	}
	return true
}
