package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	httpClient *resty.Client
	model      string
	logger     *logging.Logger
}

// NewOpenAIClient configures a client for baseURL (no trailing /chat/completions).
func NewOpenAIClient(baseURL, apiKey, model string, timeout time.Duration, logger *logging.Logger) *OpenAIClient {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetTimeout(timeout)

	return &OpenAIClient{httpClient: client, model: model, logger: logger}
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float32         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	body := chatCompletionRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONObject {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var parsed chatCompletionResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&parsed).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("llm: chat completion request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("llm: chat completion status %s: %s", resp.Status(), resp.String())
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("llm: chat completion error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm: chat completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
