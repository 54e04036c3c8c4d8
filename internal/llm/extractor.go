package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

const extractionPrompt = `Extract the products and quantities from the following order, and return it in structured JSON format:
{
    "products_requested": [
        {"name": "Product name", "quantity": quantity},
        ...
    ],
    "ice_cream_flavors_requested": ["flavor1", "flavor2", ...]
}
Just return the JSON, nothing else.`

// ProductRequest is one requested product line.
type ProductRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// ExtractedOrder is the structured form of a free-text order message.
type ExtractedOrder struct {
	ProductsRequested        []ProductRequest `json:"products_requested"`
	IceCreamFlavorsRequested []string         `json:"ice_cream_flavors_requested"`
}

// IsEmpty reports whether nothing was extracted.
func (o ExtractedOrder) IsEmpty() bool {
	return len(o.ProductsRequested) == 0 && len(o.IceCreamFlavorsRequested) == 0
}

// Extractor converts free-text order messages into ExtractedOrder. An
// unparsable or absent model answer yields an empty order, never an error.
type Extractor struct {
	llm    Client
	logger *logging.Logger
}

func NewExtractor(llm Client, logger *logging.Logger) *Extractor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{llm: llm, logger: logger}
}

func (e *Extractor) Extract(ctx context.Context, message string) ExtractedOrder {
	if e.llm == nil {
		return ExtractedOrder{}
	}

	out, err := e.llm.Complete(ctx, Request{
		Messages: []Message{
			{Role: RoleSystem, Content: extractionPrompt},
			{Role: RoleUser, Content: fmt.Sprintf("Extract the products and quantities from the following order: %s", message)},
		},
		JSONObject: true,
	})
	if err != nil {
		e.logger.Warn("order extraction failed", "error", err)
		return ExtractedOrder{}
	}

	var order ExtractedOrder
	if err := json.Unmarshal([]byte(stripCodeFences(out)), &order); err != nil {
		e.logger.Warn("order extraction returned unparsable JSON", "error", err, "raw", out)
		return ExtractedOrder{}
	}
	return order
}

// stripCodeFences tolerates models that wrap the JSON in a markdown block.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
