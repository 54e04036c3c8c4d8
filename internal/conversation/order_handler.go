package conversation

import (
	"context"
	"time"

	"github.com/deliciasfueguinas/orderbot/internal/inventory"
	"github.com/deliciasfueguinas/orderbot/internal/llm"
	"github.com/deliciasfueguinas/orderbot/internal/observability/metrics"
	"github.com/deliciasfueguinas/orderbot/internal/payments"
	"github.com/deliciasfueguinas/orderbot/internal/state"
	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

// OrderChecker verifies requested products and flavors against inventory.
type OrderChecker interface {
	CheckOrder(requests []inventory.ProductRequest) (*inventory.OrderCheck, error)
	CheckFlavors(flavors []string) (*inventory.FlavorCheck, error)
}

// OrderExtractor converts free text into a structured order.
type OrderExtractor interface {
	Extract(ctx context.Context, message string) llm.ExtractedOrder
}

// LinkGenerator creates a checkout link for verified items.
type LinkGenerator interface {
	Generate(ctx context.Context, orderID, payerName string, items []state.OrderItem) (*payments.PaymentLink, error)
}

// OrderRegistrar indexes an order so webhooks can find its owner. The state
// store satisfies this and the call is safe inside a Mutate callback.
type OrderRegistrar interface {
	RegisterOrder(userID, orderID, preferenceID string) error
}

// OrderHandler runs the ordering state machine for one message. It operates
// on the orchestrator's state snapshot and never returns an error: failures
// turn into an apology so the conversation keeps going. The boolean result
// reports whether the snapshot's order state changed and must be committed.
type OrderHandler struct {
	checker   OrderChecker
	extractor OrderExtractor
	links     LinkGenerator
	registrar OrderRegistrar
	metrics   *metrics.BotMetrics
	logger    *logging.Logger
}

func NewOrderHandler(checker OrderChecker, extractor OrderExtractor, links LinkGenerator, registrar OrderRegistrar, m *metrics.BotMetrics, logger *logging.Logger) *OrderHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &OrderHandler{
		checker:   checker,
		extractor: extractor,
		links:     links,
		registrar: registrar,
		metrics:   m,
		logger:    logger,
	}
}

func (h *OrderHandler) Handle(ctx context.Context, userID string, st *state.ConversationState, message string) (string, bool) {
	if st.WaitingForAlternative {
		return h.handleAlternative(ctx, userID, st, message)
	}
	return h.handleNewOrder(ctx, userID, st, message)
}

func (h *OrderHandler) handleNewOrder(ctx context.Context, userID string, st *state.ConversationState, message string) (string, bool) {
	extracted := h.extractor.Extract(ctx, message)
	if extracted.IsEmpty() {
		return emptyOrderMessage, false
	}

	check, flavors, ok := h.verify(extracted)
	if !ok {
		return orderApology, false
	}

	if hasIssues(check, flavors) {
		// Park the verified part of the order and ask for replacements.
		st.PendingOrder = &state.OrderRecord{
			OrderID:     state.NewOrderID(),
			PayerName:   userID,
			Items:       verifiedItems(check),
			TotalAmount: check.TotalAmount,
			Status:      state.StatusPending,
			CreatedAt:   time.Now().UTC(),
		}
		st.WaitingForAlternative = true
		st.Context = "awaiting_alternative"
		return buildAlternativesMessage(check, flavors), true
	}

	return h.finalize(ctx, userID, st, state.NewOrderID(), verifiedItems(check), false)
}

// handleAlternative processes the customer's replacement picks. The original
// pending order record keeps its id and verified items; a replacement that is
// itself unavailable re-offers without losing them.
func (h *OrderHandler) handleAlternative(ctx context.Context, userID string, st *state.ConversationState, message string) (string, bool) {
	original := st.PendingOrder
	if original == nil {
		st.WaitingForAlternative = false
		st.Context = "initial"
		body, _ := h.handleNewOrder(ctx, userID, st, message)
		return body, true
	}

	extracted := h.extractor.Extract(ctx, message)
	if extracted.IsEmpty() {
		return emptyOrderMessage, false
	}

	check, flavors, ok := h.verify(extracted)
	if !ok {
		return orderApology, false
	}

	if hasIssues(check, flavors) {
		return buildAlternativesMessage(check, flavors), false
	}

	combined := append(cloneItems(original.Items), verifiedItems(check)...)
	return h.finalize(ctx, userID, st, original.OrderID, combined, true)
}

// verify runs both inventory checks. ok is false on an inventory read error.
func (h *OrderHandler) verify(extracted llm.ExtractedOrder) (*inventory.OrderCheck, *inventory.FlavorCheck, bool) {
	requests := make([]inventory.ProductRequest, 0, len(extracted.ProductsRequested))
	for _, p := range extracted.ProductsRequested {
		qty := p.Quantity
		if qty <= 0 {
			qty = 1
		}
		requests = append(requests, inventory.ProductRequest{Name: p.Name, Quantity: qty})
	}

	check, err := h.checker.CheckOrder(requests)
	if err != nil {
		h.logger.Error("inventory check failed", "error", err)
		return nil, nil, false
	}

	var flavors *inventory.FlavorCheck
	if len(extracted.IceCreamFlavorsRequested) > 0 {
		flavors, err = h.checker.CheckFlavors(extracted.IceCreamFlavorsRequested)
		if err != nil {
			h.logger.Error("flavor check failed", "error", err)
			return nil, nil, false
		}
	}
	return check, flavors, true
}

// finalize generates the checkout link, registers the order and commits it as
// the pending order. State is only touched after registration succeeds.
func (h *OrderHandler) finalize(ctx context.Context, userID string, st *state.ConversationState, orderID string, items []state.OrderItem, combined bool) (string, bool) {
	if len(items) == 0 {
		return emptyOrderMessage, false
	}

	var total float64
	for _, it := range items {
		total += it.Subtotal
	}

	link, err := h.links.Generate(ctx, orderID, userID, items)
	if err != nil {
		h.logger.Error("payment link generation failed", "order_id", orderID, "error", err)
		h.metrics.ObservePaymentLink("error")
		return orderApology, false
	}
	h.metrics.ObservePaymentLink("ok")

	if err := h.registrar.RegisterOrder(userID, orderID, link.PreferenceID); err != nil {
		h.logger.Error("order registration failed", "order_id", orderID, "error", err)
		return orderApology, false
	}

	order := &state.OrderRecord{
		OrderID:      orderID,
		PreferenceID: link.PreferenceID,
		PayerName:    userID,
		Items:        items,
		TotalAmount:  total,
		Status:       state.StatusPending,
		InitPoint:    link.InitPoint,
		CreatedAt:    time.Now().UTC(),
	}
	st.PendingOrder = order
	st.WaitingForAlternative = false
	st.Context = "ordered"

	h.logger.Info("order placed",
		"user_id", userID,
		"order_id", orderID,
		"preference_id", link.PreferenceID,
		"total_amount", total,
	)

	if combined {
		return buildCombinedPaymentMessage(order), true
	}
	return buildPaymentMessage(order), true
}

func hasIssues(check *inventory.OrderCheck, flavors *inventory.FlavorCheck) bool {
	if check != nil && check.HasIssues() {
		return true
	}
	return flavors != nil && len(flavors.Unavailable) > 0
}

func verifiedItems(check *inventory.OrderCheck) []state.OrderItem {
	items := make([]state.OrderItem, 0, len(check.Products))
	for _, p := range check.Products {
		items = append(items, state.OrderItem{
			Name:      p.Name,
			Quantity:  p.Quantity,
			UnitPrice: p.UnitPrice,
			Subtotal:  p.Subtotal,
		})
	}
	return items
}

func cloneItems(items []state.OrderItem) []state.OrderItem {
	out := make([]state.OrderItem, len(items))
	copy(out, items)
	return out
}
