package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deliciasfueguinas/orderbot/pkg/logging"
)

// stubClient returns a canned answer or error without any HTTP.
type stubClient struct {
	reply string
	err   error
	last  Request
}

func (s *stubClient) Complete(_ context.Context, req Request) (string, error) {
	s.last = req
	return s.reply, s.err
}

func TestOpenAIClientComplete(t *testing.T) {
	var gotBody chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"greeting"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "test-key", "gpt-4o", 5*time.Second, logging.New("error"))
	out, err := c.Complete(context.Background(), Request{
		Messages:   []Message{{Role: RoleUser, Content: "hola"}},
		JSONObject: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "greeting", out)
	assert.Equal(t, "gpt-4o", gotBody.Model)
	require.NotNil(t, gotBody.ResponseFormat)
	assert.Equal(t, "json_object", gotBody.ResponseFormat.Type)
}

func TestOpenAIClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "k", "gpt-4o", 5*time.Second, logging.New("error"))
	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.Error(t, err)
}

func TestOpenAIClientNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "k", "gpt-4o", 5*time.Second, logging.New("error"))
	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	assert.Error(t, err)
}

func TestClassifyUsesModelLabel(t *testing.T) {
	stub := &stubClient{reply: ` "Order" `}
	c := NewClassifier(stub, logging.New("error"))

	got := c.Classify(context.Background(), "dame dos empanadas")
	assert.Equal(t, IntentOrder, got)
}

func TestClassifyFallsBackOnError(t *testing.T) {
	stub := &stubClient{err: errors.New("boom")}
	c := NewClassifier(stub, logging.New("error"))

	assert.Equal(t, IntentGreeting, c.Classify(context.Background(), "Hola!"))
	assert.Equal(t, IntentQuery, c.Classify(context.Background(), "cuánto sale el helado"))
	assert.Equal(t, IntentOrder, c.Classify(context.Background(), "quiero dos empanadas"))
	assert.Equal(t, IntentOther, c.Classify(context.Background(), "asdf"))
}

func TestClassifyFallsBackOnInvalidLabel(t *testing.T) {
	stub := &stubClient{reply: "I think this is an order"}
	c := NewClassifier(stub, logging.New("error"))

	got := c.Classify(context.Background(), "quiero una coca")
	assert.Equal(t, IntentOrder, got)
}

func TestFallbackClassifyTable(t *testing.T) {
	cases := []struct {
		message string
		want    Intent
	}{
		{"Hello there", IntentGreeting},
		{"buenos días", IntentGreeting},
		{"what time do you open?", IntentQuery},
		{"tenés stock de frutilla?", IntentQuery},
		{"quiero pedir helado", IntentOrder},
		{"zzz", IntentOther},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FallbackClassify(tc.message), tc.message)
	}
}

func TestExtractOrder(t *testing.T) {
	stub := &stubClient{reply: `{"products_requested":[{"name":"Coca-Cola","quantity":2}],"ice_cream_flavors_requested":["chocolate"]}`}
	e := NewExtractor(stub, logging.New("error"))

	got := e.Extract(context.Background(), "quiero dos cocas y helado de chocolate")
	require.Len(t, got.ProductsRequested, 1)
	assert.Equal(t, "Coca-Cola", got.ProductsRequested[0].Name)
	assert.Equal(t, 2, got.ProductsRequested[0].Quantity)
	assert.Equal(t, []string{"chocolate"}, got.IceCreamFlavorsRequested)
	assert.False(t, got.IsEmpty())
	assert.True(t, stub.last.JSONObject)
}

func TestExtractOrderStripsCodeFences(t *testing.T) {
	stub := &stubClient{reply: "```json\n{\"products_requested\":[{\"name\":\"Empanada\",\"quantity\":6}]}\n```"}
	e := NewExtractor(stub, logging.New("error"))

	got := e.Extract(context.Background(), "seis empanadas")
	require.Len(t, got.ProductsRequested, 1)
	assert.Equal(t, 6, got.ProductsRequested[0].Quantity)
}

func TestExtractOrderUnparsable(t *testing.T) {
	stub := &stubClient{reply: "sorry, I cannot do that"}
	e := NewExtractor(stub, logging.New("error"))

	got := e.Extract(context.Background(), "quiero algo")
	assert.True(t, got.IsEmpty())
}

func TestExtractOrderModelError(t *testing.T) {
	stub := &stubClient{err: errors.New("timeout")}
	e := NewExtractor(stub, logging.New("error"))

	assert.True(t, e.Extract(context.Background(), "quiero algo").IsEmpty())
}
