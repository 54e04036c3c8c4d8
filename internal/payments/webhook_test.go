package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deliciasfueguinas/orderbot/internal/realtime"
	"github.com/deliciasfueguinas/orderbot/internal/state"
	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

type stubFetcher struct {
	payment *Payment
	order   *MerchantOrder
	err     error
}

func (s *stubFetcher) GetPayment(context.Context, string) (*Payment, error) {
	return s.payment, s.err
}

func (s *stubFetcher) GetMerchantOrder(context.Context, string) (*MerchantOrder, error) {
	return s.order, s.err
}

type captureHub struct {
	updates []realtime.PaymentUpdate
}

func (c *captureHub) Broadcast(u realtime.PaymentUpdate) {
	c.updates = append(c.updates, u)
}

func newWebhookStore(t *testing.T) *state.FileStore {
	t.Helper()
	s, err := state.NewFileStore(t.TempDir(), logging.New("error"))
	require.NoError(t, err)

	err = s.Mutate("user-1", func(st *state.ConversationState) error {
		st.PendingOrder = &state.OrderRecord{
			OrderID:      "ORD-1",
			PreferenceID: "pref-1",
			PayerName:    "Ana",
			Items:        []state.OrderItem{{Name: "coca-cola", Quantity: 2, UnitPrice: 1000, Subtotal: 2000}},
			TotalAmount:  2000,
			Status:       state.StatusPending,
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.RegisterOrder("user-1", "ORD-1", "pref-1"))
	return s
}

func postWebhook(t *testing.T, h *WebhookHandler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookPaymentApproved(t *testing.T) {
	store := newWebhookStore(t)
	fetcher := &stubFetcher{payment: &Payment{
		ID:                123,
		Status:            "approved",
		ExternalReference: "ORD-1",
		TransactionAmount: 2000,
	}}
	fetcher.payment.Payer.Email = "ana@example.com"
	hub := &captureHub{}

	h := NewWebhookHandler(fetcher, store, hub, nil, "", logging.New("error"))
	rec := postWebhook(t, h, "/webhook", `{"type":"payment","data":{"id":"123"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "received", resp["status"])

	st, err := store.GetState("user-1")
	require.NoError(t, err)
	assert.Equal(t, state.StatusApproved, st.PendingOrder.Status)
	assert.Equal(t, "ana@example.com", st.PendingOrder.PaymentMetadata["payer_email"])
	require.Len(t, st.OrderHistory, 1)
	assert.True(t, st.ShouldNotifyPayment)

	require.Len(t, hub.updates, 1)
	assert.Equal(t, "ORD-1", hub.updates[0].OrderID)
	assert.Equal(t, "approved", hub.updates[0].PaymentStatus)
}

func TestWebhookQueryStringFallback(t *testing.T) {
	store := newWebhookStore(t)
	fetcher := &stubFetcher{payment: &Payment{Status: "rejected", ExternalReference: "ORD-1"}}

	h := NewWebhookHandler(fetcher, store, nil, nil, "", logging.New("error"))
	rec := postWebhook(t, h, "/webhook?topic=payment&id=123", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	st, err := store.GetState("user-1")
	require.NoError(t, err)
	assert.Equal(t, state.StatusRejected, st.PendingOrder.Status)
	assert.Empty(t, st.OrderHistory)
}

func TestWebhookResourceURLFallback(t *testing.T) {
	store := newWebhookStore(t)
	fetcher := &stubFetcher{order: &MerchantOrder{ID: 55, PreferenceID: "pref-1", Status: "opened"}}

	h := NewWebhookHandler(fetcher, store, nil, nil, "", logging.New("error"))
	rec := postWebhook(t, h, "/webhook", `{"topic":"merchant_order","resource":"https://api.mercadopago.com/merchant_orders/55"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookFetchErrorStill200(t *testing.T) {
	store := newWebhookStore(t)
	fetcher := &stubFetcher{err: errors.New("mp down")}

	h := NewWebhookHandler(fetcher, store, nil, nil, "", logging.New("error"))
	rec := postWebhook(t, h, "/webhook", `{"type":"payment","data":{"id":"123"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	st, err := store.GetState("user-1")
	require.NoError(t, err)
	assert.Equal(t, state.StatusPending, st.PendingOrder.Status)
}

func TestWebhookUnknownTopicStill200(t *testing.T) {
	h := NewWebhookHandler(&stubFetcher{}, newWebhookStore(t), nil, nil, "", logging.New("error"))
	rec := postWebhook(t, h, "/webhook", `{"type":"plan","data":{"id":"1"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookArchivesRawBody(t *testing.T) {
	dir := t.TempDir()
	fetcher := &stubFetcher{payment: &Payment{Status: "approved", ExternalReference: "ORD-1"}}
	h := NewWebhookHandler(fetcher, newWebhookStore(t), nil, nil, dir, logging.New("error"))

	postWebhook(t, h, "/webhook", `{"type":"payment","data":{"id":"123"}}`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "webhook_"))
}
