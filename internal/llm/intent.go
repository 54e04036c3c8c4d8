package llm

import (
	"context"
	"strings"

	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

// Intent labels an inbound message and drives which handler runs.
type Intent string

const (
	IntentGreeting Intent = "greeting"
	IntentQuery    Intent = "query"
	IntentOrder    Intent = "order"
	IntentOther    Intent = "other"
)

const classificationPrompt = `Your only job is to classify the intent of a message.

You must determine if a message is:
- "greeting": A greeting or introduction (e.g., "Hello", "Good morning")
- "query": A question about products, prices, hours, etc.
- "order": A message indicating intention to buy or order products
- "other": Any other type of message

You must respond ONLY with the type, without explanations or other text.
For example: "greeting", "query", "order", or "other".`

// Static fallback rule tables, applied in order when the model call fails or
// returns an invalid label.
var (
	greetingWords = []string{"hello", "hi", "good", "hola", "buenos", "buenas"}

	questionIndicators = []string{
		"?",
		"how", "what", "when", "where", "which", "who", "why",
		"cómo", "qué", "cuándo", "dónde", "cuál", "quién", "por qué",
	}

	orderWords = []string{"want", "order", "buy", "get", "quiero", "pedir", "comprar", "traer"}
)

// Classifier labels messages as greeting/query/order/other. It never fails:
// model errors degrade to the keyword table.
type Classifier struct {
	llm    Client
	logger *logging.Logger
}

func NewClassifier(llm Client, logger *logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{llm: llm, logger: logger}
}

func (c *Classifier) Classify(ctx context.Context, message string) Intent {
	if c.llm != nil {
		out, err := c.llm.Complete(ctx, Request{
			Messages: []Message{
				{Role: RoleSystem, Content: classificationPrompt},
				{Role: RoleUser, Content: message},
			},
			Temperature: 0.1,
			MaxTokens:   10,
		})
		if err != nil {
			c.logger.Warn("intent classification failed, using fallback", "error", err)
		} else {
			label := Intent(strings.Trim(strings.ToLower(strings.TrimSpace(out)), `"`))
			switch label {
			case IntentGreeting, IntentQuery, IntentOrder, IntentOther:
				return label
			}
			c.logger.Debug("invalid intent label from model", "label", out)
		}
	}
	return FallbackClassify(message)
}

// FallbackClassify applies the static keyword tables, independent of any
// model call.
func FallbackClassify(message string) Intent {
	lower := strings.ToLower(message)

	for _, w := range greetingWords {
		if strings.Contains(lower, w) {
			return IntentGreeting
		}
	}
	for _, ind := range questionIndicators {
		if strings.Contains(lower, ind) {
			return IntentQuery
		}
	}
	for _, w := range orderWords {
		if strings.Contains(lower, w) {
			return IntentOrder
		}
	}
	return IntentOther
}
