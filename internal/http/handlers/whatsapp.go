package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/deliciasfueguinas/orderbot/internal/notify"
	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

// MessageHandler processes one inbound message and produces the reply text.
type MessageHandler interface {
	HandleMessage(ctx context.Context, userID, message string) (string, error)
}

type whatsAppPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// WhatsAppHandler serves the Cloud API webhook: the GET verification
// handshake and inbound POST notifications.
type WhatsAppHandler struct {
	bot         MessageHandler
	sender      notify.Sender
	verifyToken string
	logger      *logging.Logger
}

func NewWhatsAppHandler(bot MessageHandler, sender notify.Sender, verifyToken string, logger *logging.Logger) *WhatsAppHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppHandler{bot: bot, sender: sender, verifyToken: verifyToken, logger: logger}
}

// Verify answers the subscription handshake Meta performs when the webhook
// URL is configured.
func (h *WhatsAppHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.verifyToken {
		h.logger.Info("whatsapp webhook verified")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	h.logger.Warn("whatsapp webhook verification rejected", "mode", q.Get("hub.mode"))
	http.Error(w, "verification failed", http.StatusForbidden)
}

// Receive processes inbound message notifications. It always answers 200;
// a non-2xx would make Meta retry and redeliver the same messages.
func (h *WhatsAppHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload whatsAppPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("unparsable whatsapp payload", "error", err)
		h.respond(w)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.Text.Body == "" {
					continue
				}
				h.process(r.Context(), msg.From, msg.Text.Body)
			}
		}
	}
	h.respond(w)
}

func (h *WhatsAppHandler) process(ctx context.Context, from, body string) {
	reply, err := h.bot.HandleMessage(ctx, from, body)
	if err != nil {
		h.logger.Error("failed to handle whatsapp message", "from", from, "error", err)
		return
	}
	if err := h.sender.Send(ctx, from, reply); err != nil {
		h.logger.Error("failed to send whatsapp reply", "to", from, "error", err)
	}
}

func (h *WhatsAppHandler) respond(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "received"})
}
