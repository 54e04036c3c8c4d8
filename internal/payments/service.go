package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deliciasfueguinas/orderbot/internal/state"
	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

// ErrMissingInitPoint is returned when the processor accepted the preference
// but handed back no checkout URL.
var ErrMissingInitPoint = errors.New("payments: preference has no init point")

// PaymentLink is the generated checkout link plus the order it belongs to.
// It is also the layout of the JSON artifact written per link.
type PaymentLink struct {
	OrderID      string            `json:"order_id"`
	PayerName    string            `json:"payer_name"`
	Items        []state.OrderItem `json:"items"`
	PreferenceID string            `json:"preference_id"`
	InitPoint    string            `json:"init_point"`
	TotalAmount  float64           `json:"total_amount"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
}

// PreferenceCreator is the processor-side operation LinkService needs.
type PreferenceCreator interface {
	CreatePreference(ctx context.Context, items []PreferenceItem, backURLs *BackURLs, externalRef string) (*Preference, error)
}

// LinkService turns verified order items into a Mercado Pago checkout link
// and records a JSON artifact for each one.
type LinkService struct {
	mp       PreferenceCreator
	backURLs *BackURLs
	linksDir string
	logger   *logging.Logger
}

func NewLinkService(mp PreferenceCreator, backURLs *BackURLs, linksDir string, logger *logging.Logger) *LinkService {
	if logger == nil {
		logger = logging.Default()
	}
	return &LinkService{mp: mp, backURLs: backURLs, linksDir: linksDir, logger: logger}
}

func (s *LinkService) Generate(ctx context.Context, orderID, payerName string, items []state.OrderItem) (*PaymentLink, error) {
	prefItems := make([]PreferenceItem, 0, len(items))
	var total float64
	for _, it := range items {
		prefItems = append(prefItems, PreferenceItem{
			Title:      it.Name,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			CurrencyID: "ARS",
		})
		total += it.Subtotal
	}

	pref, err := s.mp.CreatePreference(ctx, prefItems, s.backURLs, orderID)
	if err != nil {
		return nil, err
	}
	if pref.InitPoint == "" {
		return nil, ErrMissingInitPoint
	}

	link := &PaymentLink{
		OrderID:      orderID,
		PayerName:    payerName,
		Items:        items,
		PreferenceID: pref.ID,
		InitPoint:    pref.InitPoint,
		TotalAmount:  total,
		Status:       "pending",
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.writeArtifact(link); err != nil {
		// The link is still usable, keep going.
		s.logger.Warn("failed to write payment link artifact", "order_id", orderID, "error", err)
	}

	s.logger.Info("generated payment link",
		"order_id", orderID,
		"preference_id", pref.ID,
		"total_amount", total,
	)
	return link, nil
}

func (s *LinkService) writeArtifact(link *PaymentLink) error {
	if s.linksDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.linksDir, 0o755); err != nil {
		return fmt.Errorf("payments: create links dir: %w", err)
	}
	data, err := json.MarshalIndent(link, "", "  ")
	if err != nil {
		return fmt.Errorf("payments: marshal link: %w", err)
	}
	path := filepath.Join(s.linksDir, fmt.Sprintf("payment_link_%s.json", link.OrderID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("payments: write link artifact: %w", err)
	}
	return nil
}
