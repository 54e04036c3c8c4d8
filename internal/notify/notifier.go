package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/deliciasfueguinas/orderbot/internal/observability/metrics"
	"github.com/deliciasfueguinas/orderbot/internal/state"
	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

// Sender delivers one outbound message to a user.
type Sender interface {
	Send(ctx context.Context, userID, message string) error
}

// Notifier periodically sweeps conversation state for users flagged by a
// payment update and delivers their pending notification. The flag is
// cleared only after a successful send, so failures retry on the next tick.
type Notifier struct {
	store    state.Store
	sender   Sender
	metrics  *metrics.BotMetrics
	interval time.Duration
	logger   *logging.Logger
}

func NewNotifier(store state.Store, sender Sender, m *metrics.BotMetrics, interval time.Duration, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Notifier{store: store, sender: sender, metrics: m, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	n.logger.Info("payment notifier started", "interval", n.interval.String())
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("payment notifier stopped")
			return
		case <-ticker.C:
			n.runOnce(ctx)
		}
	}
}

func (n *Notifier) runOnce(ctx context.Context) {
	for userID, st := range n.store.GetAllStates() {
		if !st.ShouldNotifyPayment {
			continue
		}
		if err := n.deliver(ctx, userID); err != nil {
			n.logger.Warn("payment notification failed, will retry", "user_id", userID, "error", err)
			n.metrics.ObserveNotification("failed")
		}
	}
}

// deliver claims the notification in one mutation, sends outside any store
// callback, and restores the flag when the send fails. Mutate callbacks must
// stay free of external calls: the redis backend re-runs them on a write
// conflict, and a send inside one would reach the customer twice.
func (n *Notifier) deliver(ctx context.Context, userID string) error {
	var msg string
	claimed := false
	err := n.store.Mutate(userID, func(st *state.ConversationState) error {
		if !st.ShouldNotifyPayment {
			return nil
		}
		msg = st.NotificationMessage
		if msg == "" {
			msg = "Tu pago fue actualizado."
		}
		st.ShouldNotifyPayment = false
		st.NotificationMessage = ""
		claimed = true
		return nil
	})
	if err != nil || !claimed {
		return err
	}

	if err := n.sender.Send(ctx, userID, msg); err != nil {
		if restoreErr := n.restore(userID, msg); restoreErr != nil {
			n.logger.Error("failed to restore notification flag", "user_id", userID, "error", restoreErr)
		}
		return fmt.Errorf("notify: send to %s: %w", userID, err)
	}

	n.logger.Info("delivered payment notification", "user_id", userID)
	n.metrics.ObserveNotification("sent")
	return n.store.Mutate(userID, func(st *state.ConversationState) error {
		st.History = append(st.History, state.ChatTurn{Role: "assistant", Content: msg})
		return nil
	})
}

// restore re-flags the user after a failed send so the next sweep retries. A
// notification set in the meantime wins over the one being restored.
func (n *Notifier) restore(userID, msg string) error {
	return n.store.Mutate(userID, func(st *state.ConversationState) error {
		if !st.ShouldNotifyPayment {
			st.ShouldNotifyPayment = true
			st.NotificationMessage = msg
		}
		return nil
	})
}
