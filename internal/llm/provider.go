// Package llm provides a uniform chat-completion interface over heterogeneous
// model backends and a router that adds failover and cost accounting on top.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ProviderName is the closed set of supported backends.
type ProviderName string

const (
	ProviderOpenAI   ProviderName = "openai"
	ProviderGroq     ProviderName = "groq"
	ProviderDeepSeek ProviderName = "deepseek"
	ProviderOllama   ProviderName = "ollama" // local, free
)

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tune a single chat call.
type Options struct {
	Model       string // override; empty uses the provider default
	Temperature float32
	MaxTokens   int
}

// ChatResponse is the provider-agnostic completion result.
type ChatResponse struct {
	Content          string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	FinishReason     string
	LatencyMS        int64
}

// HealthStatus is returned by a provider health check.
type HealthStatus struct {
	Provider  string `json:"provider"`
	Healthy   bool   `json:"healthy"`
	LatencyMS int64  `json:"latencyMs"`
	Model     string `json:"model"`
	Error     string `json:"error,omitempty"`
}

// Provider is the uniform interface over all backends.
type Provider interface {
	Name() string
	Model() string
	Chat(ctx context.Context, messages []Message, opts Options) (*ChatResponse, error)
	HealthCheck(ctx context.Context) HealthStatus
}

// ErrorKind classifies provider-level failures. Every kind triggers failover.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindAuth        ErrorKind = "auth"
	KindRateLimit   ErrorKind = "rate_limit"
	KindMalformed   ErrorKind = "malformed"
	KindUnavailable ErrorKind = "unavailable"
)

// ProviderError is the typed failure for a single provider call.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether retrying the same provider could succeed. Auth
// failures need operator intervention; everything else is transient.
func (e *ProviderError) Retryable() bool { return e.Kind != KindAuth }

// NewProviderError wraps err as a provider failure of the given kind.
func NewProviderError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// IsProviderError reports whether err is (or wraps) a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// classifyErr maps transport errors onto an ErrorKind.
func classifyErr(ctx context.Context, err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return KindTimeout
	}
	return KindUnavailable
}

// Usage describes one billed call for the cost recorder.
type Usage struct {
	ConversationID   string
	MerchantID       string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	ProcessingMS     int64
	At               time.Time
}
