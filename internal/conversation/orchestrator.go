package conversation

import (
	"context"
	"fmt"

	"github.com/deliciasfueguinas/orderbot/internal/llm"
	"github.com/deliciasfueguinas/orderbot/internal/observability/metrics"
	"github.com/deliciasfueguinas/orderbot/internal/state"
	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

const systemPrompt = `Sos el asistente virtual de Delicias Fueguinas, una heladería y casa de comidas de Ushuaia, Tierra del Fuego.

Atendés clientes por WhatsApp en español, con un tono cálido y cercano.
Vendemos helados artesanales (por cuarto y medio kilo), empanadas y bebidas.
Respondé de forma breve y clara. Si el cliente quiere pedir algo, invitalo a
decirte los productos y cantidades. No inventes precios ni stock.`

// Keep enough context for coherent replies without letting state files grow
// without bound.
const maxHistoryTurns = 30

// IntentClassifier labels an inbound message.
type IntentClassifier interface {
	Classify(ctx context.Context, message string) llm.Intent
}

// Orchestrator routes each inbound message through classification and the
// matching handler. External calls (model, inventory, payment processor) run
// against a state snapshot; the store callback that commits the turn stays
// pure, because the redis backend re-runs Mutate callbacks on write
// conflicts.
type Orchestrator struct {
	store      state.Store
	classifier IntentClassifier
	orders     *OrderHandler
	llm        llm.Client
	metrics    *metrics.BotMetrics
	logger     *logging.Logger
}

func NewOrchestrator(store state.Store, classifier IntentClassifier, orders *OrderHandler, client llm.Client, m *metrics.BotMetrics, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		store:      store,
		classifier: classifier,
		orders:     orders,
		llm:        client,
		metrics:    m,
		logger:     logger,
	}
}

// HandleMessage processes one inbound message and returns the reply text.
// A panic anywhere in the turn becomes an apology reply with state untouched,
// so the webhook path can keep its always-200 contract.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID, message string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic while handling message", "user_id", userID, "panic", r)
			reply = orderApology
			err = nil
		}
	}()

	snap, err := o.store.GetState(userID)
	if err != nil {
		return "", fmt.Errorf("conversation: load state for %s: %w", userID, err)
	}

	intent := o.classifier.Classify(ctx, message)
	o.metrics.ObserveMessage(string(intent))
	o.logger.Info("handling message", "user_id", userID, "intent", string(intent))

	// A customer mid-alternative-flow answers the re-offer, whatever
	// the classifier thinks of the wording.
	if snap.WaitingForAlternative {
		intent = llm.IntentOrder
	}

	var body string
	var orderChanged bool
	switch intent {
	case llm.IntentOrder:
		body, orderChanged = o.orders.Handle(ctx, userID, snap, message)
	case llm.IntentGreeting:
		body = o.converse(ctx, snap, message, greetingFallback)
	case llm.IntentQuery:
		body = o.converse(ctx, snap, message, queryFallback)
	default:
		body = o.converse(ctx, snap, message, otherFallback)
	}

	err = o.store.Mutate(userID, func(st *state.ConversationState) error {
		// An undelivered payment notification rides along with this reply
		// instead of waiting for the notifier sweep.
		var prefix string
		if st.ShouldNotifyPayment && st.NotificationMessage != "" {
			prefix = st.NotificationMessage + "\n\n"
			st.ShouldNotifyPayment = false
			st.NotificationMessage = ""
		}
		reply = prefix + body

		if orderChanged {
			// The turn's order state wins. History entries and
			// notification flags written by a concurrent webhook land on
			// st and are preserved.
			st.PendingOrder = snap.PendingOrder
			st.WaitingForAlternative = snap.WaitingForAlternative
			st.Context = snap.Context
		}
		st.History = append(st.History,
			state.ChatTurn{Role: "user", Content: message},
			state.ChatTurn{Role: "assistant", Content: reply},
		)
		trimHistory(st)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("conversation: handle message for %s: %w", userID, err)
	}
	return reply, nil
}

// converse answers small talk and product questions with the model, falling
// back to canned copy when the model is unavailable.
func (o *Orchestrator) converse(ctx context.Context, st *state.ConversationState, message, fallback string) string {
	if o.llm == nil {
		return fallback
	}

	msgs := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	for _, turn := range recentHistory(st, 6) {
		msgs = append(msgs, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: message})

	out, err := o.llm.Complete(ctx, llm.Request{Messages: msgs, Temperature: 0.7, MaxTokens: 300})
	if err != nil {
		o.logger.Warn("conversational reply failed, using fallback", "error", err)
		return fallback
	}
	return out
}

// recentHistory returns up to the n most recent turns.
func recentHistory(st *state.ConversationState, n int) []state.ChatTurn {
	h := st.History
	if len(h) > n {
		h = h[len(h)-n:]
	}
	return h
}

func trimHistory(st *state.ConversationState) {
	if len(st.History) > maxHistoryTurns {
		st.History = st.History[len(st.History)-maxHistoryTurns:]
	}
}
