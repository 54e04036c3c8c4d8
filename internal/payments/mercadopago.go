package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

// PreferenceItem is one line of a checkout preference.
type PreferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

// BackURLs are the redirect targets after checkout.
type BackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type preferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	BackURLs          *BackURLs        `json:"back_urls,omitempty"`
	AutoReturn        string           `json:"auto_return,omitempty"`
	ExternalReference string           `json:"external_reference,omitempty"`
}

// Preference is the created checkout preference.
type Preference struct {
	ID                string `json:"id"`
	InitPoint         string `json:"init_point"`
	SandboxInitPoint  string `json:"sandbox_init_point"`
	ExternalReference string `json:"external_reference"`
}

// Payment is the processor-side view of a payment.
type Payment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
	Payer             struct {
		Email string `json:"email"`
	} `json:"payer"`
}

// MerchantOrder groups payments for one preference.
type MerchantOrder struct {
	ID           int64  `json:"id"`
	Status       string `json:"status"`
	PreferenceID string `json:"preference_id"`
	Payments     []struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	} `json:"payments"`
}

type searchResponse struct {
	Elements []Preference `json:"elements"`
}

// MercadoPagoClient wraps the Mercado Pago REST API.
type MercadoPagoClient struct {
	httpClient *resty.Client
	logger     *logging.Logger
}

func NewMercadoPagoClient(baseURL, accessToken string, timeout time.Duration, logger *logging.Logger) *MercadoPagoClient {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(accessToken).
		SetTimeout(timeout)

	return &MercadoPagoClient{httpClient: client, logger: logger}
}

// CreatePreference creates a checkout preference. externalRef carries the
// internal order id so webhooks can be traced back to the order.
func (c *MercadoPagoClient) CreatePreference(ctx context.Context, items []PreferenceItem, backURLs *BackURLs, externalRef string) (*Preference, error) {
	body := preferenceRequest{
		Items:             items,
		BackURLs:          backURLs,
		ExternalReference: externalRef,
	}
	if backURLs != nil && backURLs.Success != "" {
		body.AutoReturn = "approved"
	}

	var pref Preference
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&pref).
		Post("/checkout/preferences")
	if err != nil {
		return nil, fmt.Errorf("payments: create preference: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("payments: create preference status %s: %s", resp.Status(), resp.String())
	}

	c.logger.Info("created payment preference",
		"preference_id", pref.ID,
		"external_reference", externalRef,
	)
	return &pref, nil
}

// GetPayment fetches a payment by the id delivered in a webhook.
func (c *MercadoPagoClient) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var payment Payment
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&payment).
		Get("/v1/payments/" + paymentID)
	if err != nil {
		return nil, fmt.Errorf("payments: get payment %s: %w", paymentID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("payments: get payment %s status %s: %s", paymentID, resp.Status(), resp.String())
	}
	return &payment, nil
}

// GetMerchantOrder fetches a merchant order by id.
func (c *MercadoPagoClient) GetMerchantOrder(ctx context.Context, orderID string) (*MerchantOrder, error) {
	var order MerchantOrder
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&order).
		Get("/merchant_orders/" + orderID)
	if err != nil {
		return nil, fmt.Errorf("payments: get merchant order %s: %w", orderID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("payments: get merchant order %s status %s: %s", orderID, resp.Status(), resp.String())
	}
	return &order, nil
}

// SearchPreferences queries preferences with the given filter params, e.g.
// {"external_reference": "ORD-..."}.
func (c *MercadoPagoClient) SearchPreferences(ctx context.Context, filters map[string]string) ([]Preference, error) {
	var result searchResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(filters).
		SetResult(&result).
		Get("/checkout/preferences/search")
	if err != nil {
		return nil, fmt.Errorf("payments: search preferences: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("payments: search preferences status %s: %s", resp.Status(), resp.String())
	}
	return result.Elements, nil
}
