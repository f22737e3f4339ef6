// internal/llm/router.go
package llm

import (
	"context"
	"fmt"
	"time"

	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/common/metrics"
)

// CostRecorder persists the accounting entry for one billed call. Recording is
// synchronous with the response so a billed call can never be dropped silently.
type CostRecorder interface {
	Record(ctx context.Context, usage Usage) error
}

// ChatRequest is one routed chat call with its billing identity. The override
// fields carry merchant-level provider preferences; unknown names fall back to
// the router defaults.
type ChatRequest struct {
	ConversationID  string
	MerchantID      string
	Messages        []Message
	PrimaryOverride string
	BackupOverride  string
	ModelOverride   string
	Temperature     float32
	MaxTokens       int
}

// Router resolves the provider pair for each request, performs failover and
// records cost against whichever provider actually answered.
type Router struct {
	primary   Provider
	backup    Provider // may be nil
	providers map[string]Provider
	recorder  CostRecorder
	timeout   time.Duration
	logger    logger.Logger
}

func NewRouter(primary, backup Provider, recorder CostRecorder, timeout time.Duration, log logger.Logger) *Router {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	r := &Router{
		primary:   primary,
		backup:    backup,
		providers: make(map[string]Provider),
		recorder:  recorder,
		timeout:   timeout,
		logger:    log.WithFields(map[string]interface{}{"component": "llm-router"}),
	}
	r.RegisterProvider(primary)
	if backup != nil {
		r.RegisterProvider(backup)
	}
	return r
}

// RegisterProvider makes a provider addressable by per-request overrides.
func (r *Router) RegisterProvider(p Provider) {
	r.providers[p.Name()] = p
}

// Chat tries the resolved primary provider and fails over to the backup
// exactly once on a provider-level failure. Exactly one answered call is
// billed per request.
func (r *Router) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	primary, backup := r.resolve(req)

	resp, err := r.callProvider(ctx, primary, req)
	if err != nil {
		metrics.LLMRequests.WithLabelValues(primary.Name(), primary.Model(), "error").Inc()
		r.logger.Warn("primary provider failed", map[string]interface{}{
			"provider":       primary.Name(),
			"conversationId": req.ConversationID,
			"error":          err.Error(),
		})

		if backup == nil {
			return nil, err
		}

		metrics.LLMFailovers.WithLabelValues(primary.Name(), backup.Name()).Inc()

		var backupErr error
		resp, backupErr = r.callProvider(ctx, backup, req)
		if backupErr != nil {
			metrics.LLMRequests.WithLabelValues(backup.Name(), backup.Model(), "error").Inc()
			return nil, fmt.Errorf("backup after primary failure (%v): %w", err, backupErr)
		}
	}

	return r.settle(ctx, req, resp)
}

// resolve maps merchant overrides onto registered providers, keeping the
// configured defaults for anything unset or unrecognized.
func (r *Router) resolve(req ChatRequest) (Provider, Provider) {
	primary, backup := r.primary, r.backup
	if p, ok := r.providers[req.PrimaryOverride]; ok {
		primary = p
	}
	if p, ok := r.providers[req.BackupOverride]; ok {
		backup = p
	}
	return primary, backup
}

func (r *Router) callProvider(ctx context.Context, p Provider, req ChatRequest) (*ChatResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.Chat(callCtx, req.Messages, Options{
		Model:       req.ModelOverride,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	if resp.LatencyMS == 0 {
		resp.LatencyMS = time.Since(start).Milliseconds()
	}
	return resp, nil
}

// settle accounts for the one call that answered. The vendor has already
// billed it, so a recorder failure fails the request without touching another
// provider.
func (r *Router) settle(ctx context.Context, req ChatRequest, resp *ChatResponse) (*ChatResponse, error) {
	usage := Usage{
		ConversationID:   req.ConversationID,
		MerchantID:       req.MerchantID,
		Provider:         resp.Provider,
		Model:            resp.Model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		ProcessingMS:     resp.LatencyMS,
		At:               time.Now().UTC(),
	}
	if err := r.recorder.Record(ctx, usage); err != nil {
		return nil, fmt.Errorf("record cost for %s: %w", resp.Provider, err)
	}

	metrics.LLMRequests.WithLabelValues(resp.Provider, resp.Model, "success").Inc()
	metrics.LLMTokens.WithLabelValues(resp.Provider, "prompt").Add(float64(resp.PromptTokens))
	metrics.LLMTokens.WithLabelValues(resp.Provider, "completion").Add(float64(resp.CompletionTokens))

	return resp, nil
}

// Health checks both configured providers.
func (r *Router) Health(ctx context.Context) []HealthStatus {
	out := []HealthStatus{r.primary.HealthCheck(ctx)}
	if r.backup != nil {
		out = append(out, r.backup.HealthCheck(ctx))
	}
	return out
}

// Primary exposes the active primary provider name for introspection.
func (r *Router) Primary() string { return r.primary.Name() }
