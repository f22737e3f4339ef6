// internal/llm/openai.go
package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"commerce-orchestrator/internal/common/config"
)

// chatClient abstracts the go-openai client for tests.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// openAICompatible serves every backend that speaks the OpenAI chat API:
// OpenAI itself, Groq, DeepSeek, and a local Ollama instance. Per-provider
// differences live entirely in base URL, key, and default model.
type openAICompatible struct {
	name   ProviderName
	model  string
	client chatClient
}

// providerDefaults holds the fallbacks applied when config omits a value.
var providerDefaults = map[ProviderName]struct {
	baseURL string
	model   string
}{
	ProviderOpenAI:   {"", openai.GPT4oMini},
	ProviderGroq:     {"https://api.groq.com/openai/v1", "llama-3.1-8b-instant"},
	ProviderDeepSeek: {"https://api.deepseek.com/v1", "deepseek-chat"},
	ProviderOllama:   {"http://localhost:11434/v1", "llama3.1"},
}

// NewProvider builds an adapter for one of the closed set of backends.
func NewProvider(name ProviderName, cfg config.ProviderConfig) (Provider, error) {
	defaults, ok := providerDefaults[name]
	if !ok {
		return nil, errors.New("unsupported provider: " + string(name))
	}

	model := cfg.Model
	if model == "" {
		model = defaults.model
	}

	apiKey := cfg.APIKey
	if name == ProviderOllama && apiKey == "" {
		apiKey = "ollama" // local server ignores the key but the client requires one
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	} else if defaults.baseURL != "" {
		clientCfg.BaseURL = defaults.baseURL
	}

	return &openAICompatible{
		name:   name,
		model:  model,
		client: openai.NewClientWithConfig(clientCfg),
	}, nil
}

func (p *openAICompatible) Name() string  { return string(p.name) }
func (p *openAICompatible) Model() string { return p.model }

func (p *openAICompatible) Chat(ctx context.Context, messages []Message, opts Options) (*ChatResponse, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return nil, NewProviderError(p.Name(), classifyAPIError(ctx, err), err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewProviderError(p.Name(), KindMalformed, errors.New("empty choices in completion"))
	}

	return &ChatResponse{
		Content:          resp.Choices[0].Message.Content,
		Provider:         p.Name(),
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		FinishReason:     string(resp.Choices[0].FinishReason),
		LatencyMS:        latency,
	}, nil
}

func (p *openAICompatible) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	_, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  []openai.ChatCompletionMessage{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	status := HealthStatus{
		Provider:  p.Name(),
		Healthy:   err == nil,
		LatencyMS: time.Since(start).Milliseconds(),
		Model:     p.model,
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

func classifyAPIError(ctx context.Context, err error) ErrorKind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return KindAuth
		case 429:
			return KindRateLimit
		}
		if apiErr.HTTPStatusCode >= 500 {
			return KindUnavailable
		}
		return KindMalformed
	}
	if strings.Contains(err.Error(), "context deadline exceeded") {
		return KindTimeout
	}
	return classifyErr(ctx, err)
}
