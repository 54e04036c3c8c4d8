package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

// WhatsAppSender delivers messages through the WhatsApp Cloud API.
type WhatsAppSender struct {
	httpClient    *resty.Client
	phoneNumberID string
	logger        *logging.Logger
}

func NewWhatsAppSender(baseURL, token, phoneNumberID string, logger *logging.Logger) *WhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(10 * time.Second)

	return &WhatsAppSender{httpClient: client, phoneNumberID: phoneNumberID, logger: logger}
}

func (s *WhatsAppSender) Send(ctx context.Context, userID, message string) error {
	body := whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               userID,
		Type:             "text",
		Text:             whatsAppText{Body: message},
	}

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("/%s/messages", s.phoneNumberID))
	if err != nil {
		return fmt.Errorf("notify: whatsapp send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notify: whatsapp send status %s: %s", resp.Status(), resp.String())
	}

	s.logger.Debug("whatsapp message sent", "to", userID)
	return nil
}
