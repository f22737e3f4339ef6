package nlu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/llm"
	"commerce-orchestrator/internal/models"
)

type stubProvider struct {
	name     string
	content  string
	err      error
	lastOpts llm.Options
}

func (s *stubProvider) Name() string  { return s.name }
func (s *stubProvider) Model() string { return "test-model" }

func (s *stubProvider) Chat(_ context.Context, _ []llm.Message, opts llm.Options) (*llm.ChatResponse, error) {
	s.lastOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ChatResponse{
		Content:          s.content,
		Provider:         s.name,
		Model:            "test-model",
		PromptTokens:     10,
		CompletionTokens: 5,
	}, nil
}

func (s *stubProvider) HealthCheck(_ context.Context) llm.HealthStatus {
	return llm.HealthStatus{Provider: s.name, Healthy: s.err == nil}
}

type noopRecorder struct{}

func (noopRecorder) Record(_ context.Context, _ llm.Usage) error { return nil }

func newTestClassifier(content string) *Classifier {
	router := llm.NewRouter(&stubProvider{name: "openai", content: content}, nil, noopRecorder{}, 0, logger.NewNoOpLogger())
	return NewClassifier(router, 0, 0, logger.NewNoOpLogger())
}

func classify(t *testing.T, content string) *models.ClassificationResult {
	t.Helper()
	c := newTestClassifier(content)
	result, err := c.Classify(context.Background(), &models.InboundMessage{
		MerchantID: "m-1",
		Text:       "show me running shoes",
	}, nil, "conv-1", nil)
	require.NoError(t, err)
	return result
}

func TestClassifyValidOutput(t *testing.T) {
	result := classify(t, `{"intent": "product_search", "confidence": 0.92, "entities": {"category": "shoes", "color": "red"}}`)

	assert.Equal(t, models.IntentProductSearch, result.Intent)
	assert.Equal(t, 0.92, result.Confidence)
	assert.Equal(t, "shoes", result.Entities.Category)
	assert.Equal(t, "red", result.Entities.Color)
	assert.False(t, result.NeedsClarification())
	assert.Equal(t, "openai", result.Provider)
}

func TestClassifyCodeFencedOutput(t *testing.T) {
	result := classify(t, "Here is the classification:\n```json\n{\"intent\": \"greeting\", \"confidence\": 0.99}\n```")

	assert.Equal(t, models.IntentGreeting, result.Intent)
	assert.Equal(t, 0.99, result.Confidence)
}

func TestClassifyBudgetEntity(t *testing.T) {
	result := classify(t, `{"intent": "product_search", "confidence": 0.85, "entities": {"budget": {"amount": 120, "currency": "USD"}}}`)

	require.NotNil(t, result.Entities.Budget)
	assert.Equal(t, 120.0, result.Entities.Budget.Amount)
	assert.Equal(t, "USD", result.Entities.Budget.Currency)
}

func TestClassifyMalformedOutputDowngradesToUnknown(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no json at all", "I think the user wants shoes."},
		{"truncated json", `{"intent": "product_search", "confi`},
		{"missing required fields", `{"entities": {"category": "shoes"}}`},
		{"intent not in enum", `{"intent": "buy_stuff", "confidence": 0.9}`},
		{"confidence wrong type", `{"intent": "greeting", "confidence": "high"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classify(t, tt.content)
			assert.Equal(t, models.IntentUnknown, result.Intent)
			assert.Equal(t, 0.0, result.Confidence)
			assert.True(t, result.NeedsClarification())
		})
	}
}

func TestClassifyConfidenceAtThresholdIsFinal(t *testing.T) {
	result := classify(t, `{"intent": "checkout", "confidence": 0.80}`)

	assert.False(t, result.NeedsClarification())

	result = classify(t, `{"intent": "checkout", "confidence": 0.79}`)
	assert.True(t, result.NeedsClarification())
}

func TestExtractJSONNestedAndEscaped(t *testing.T) {
	raw := extractJSON(`prefix {"intent": "unknown", "confidence": 0.1, "entities": {"constraints": {"note": "says \"{weird}\""}}} suffix`)
	assert.Equal(t, `{"intent": "unknown", "confidence": 0.1, "entities": {"constraints": {"note": "says \"{weird}\""}}}`, raw)
}

func TestClassifyProviderErrorPropagates(t *testing.T) {
	router := llm.NewRouter(&stubProvider{name: "openai", err: context.DeadlineExceeded}, nil, noopRecorder{}, 0, logger.NewNoOpLogger())
	c := NewClassifier(router, 0, 0, logger.NewNoOpLogger())

	_, err := c.Classify(context.Background(), &models.InboundMessage{Text: "hello"}, nil, "conv-1", nil)
	assert.Error(t, err)
}

func TestClassifyUsesConfiguredSampling(t *testing.T) {
	provider := &stubProvider{name: "openai", content: `{"intent": "greeting", "confidence": 0.99}`}
	router := llm.NewRouter(provider, nil, noopRecorder{}, 0, logger.NewNoOpLogger())
	c := NewClassifier(router, 0.3, 256, logger.NewNoOpLogger())

	_, err := c.Classify(context.Background(), &models.InboundMessage{Text: "hi"}, nil, "conv-1", nil)
	require.NoError(t, err)
	assert.Equal(t, float32(0.3), provider.lastOpts.Temperature)
	assert.Equal(t, 256, provider.lastOpts.MaxTokens)
}

func TestClassifyMerchantProviderOverride(t *testing.T) {
	routed := `{"intent": "greeting", "confidence": 0.99}`
	openai := &stubProvider{name: "openai", content: routed}
	deepseek := &stubProvider{name: "deepseek", content: routed}

	router := llm.NewRouter(openai, nil, noopRecorder{}, 0, logger.NewNoOpLogger())
	router.RegisterProvider(deepseek)
	c := NewClassifier(router, 0, 0, logger.NewNoOpLogger())

	merchant := &models.Merchant{
		ID:              "m-1",
		PrimaryProvider: "deepseek",
		ModelOverride:   "deepseek-chat",
	}
	result, err := c.Classify(context.Background(), &models.InboundMessage{
		MerchantID: "m-1",
		Text:       "hello",
	}, nil, "conv-1", merchant)
	require.NoError(t, err)

	assert.Equal(t, "deepseek", result.Provider)
	assert.Equal(t, "deepseek-chat", deepseek.lastOpts.Model)
}
