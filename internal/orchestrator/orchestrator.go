// Package orchestrator runs the per-turn pipeline: ownership gates, intent
// classification, clarification, handoff detection and handler dispatch.
package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	commonerrors "commerce-orchestrator/internal/common/errors"
	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/common/metrics"
	"commerce-orchestrator/internal/common/observability"
	"commerce-orchestrator/internal/handlers"
	"commerce-orchestrator/internal/handoff"
	"commerce-orchestrator/internal/hybrid"
	"commerce-orchestrator/internal/models"
	"commerce-orchestrator/internal/notify"
	"commerce-orchestrator/internal/storage"
)

const (
	degradedReply     = "I'm having trouble on my end right now. Please try again in a minute, or type \"human\" to reach our team."
	catalogRetryReply = "Our product catalog is taking a moment to respond. Please try that again shortly."
)

// Classifier is the NLU slice the pipeline needs. The merchant, when known,
// carries provider routing preferences.
type Classifier interface {
	Classify(ctx context.Context, msg *models.InboundMessage, convCtx *models.ConversationContext, conversationID string, merchant *models.Merchant) (*models.ClassificationResult, error)
}

// Clarifier picks the next question for a low-confidence exchange.
type Clarifier interface {
	NextQuestion(conversationID string, entities models.Entities, asked []string) (slot, question string, err error)
}

// Arbiter gates bot responses during an operator takeover window.
type Arbiter interface {
	ShouldBotRespond(ctx context.Context, conversationID, messageText string) hybrid.Decision
}

// ConversationCache is the read-through cache in front of the conversation
// repository, keyed by the same sender tuple the repository resolves. A nil
// cache is valid and falls through to the repository.
type ConversationCache interface {
	GetConversation(ctx context.Context, merchantID, channel, senderID string) (*models.Conversation, error)
	PutConversation(ctx context.Context, conv *models.Conversation) error
}

// SessionTracker refreshes widget visitor sessions on inbound web messages.
// A nil tracker disables session upkeep.
type SessionTracker interface {
	Track(ctx context.Context, merchantID, senderID, conversationID string) error
}

// Result reports what the pipeline did with one inbound message. Response is
// nil whenever the bot stayed silent.
type Result struct {
	ConversationID string           `json:"conversationId"`
	Intent         models.Intent    `json:"intent,omitempty"`
	Response       *models.Response `json:"response,omitempty"`
	Silent         bool             `json:"silent"`
	Reason         string           `json:"reason,omitempty"`
}

// Status is the introspection snapshot served by the health endpoint.
type Status struct {
	Processed int64 `json:"processed"`
	Degraded  int64 `json:"degraded"`
	Silenced  int64 `json:"silenced"`
	Handoffs  int64 `json:"handoffs"`
	InFlight  int64 `json:"inFlight"`
}

// Orchestrator wires the turn pipeline together.
type Orchestrator struct {
	conversations models.ConversationRepository
	cache         ConversationCache
	handoffs      models.HandoffRepository
	merchants     models.MerchantRepository
	classifier    Classifier
	clarifier     Clarifier
	detector      *handoff.Detector
	arbiter       Arbiter
	registry      *handlers.Registry
	sender        notify.Sender
	sessions      SessionTracker
	obs           *observability.Observability
	logger        logger.Logger

	reopenWindow time.Duration
	locks        *keyedMutex
	sem          chan struct{}
	now          func() time.Time

	processed int64
	degraded  int64
	silenced  int64
	handedOff int64
	inFlight  int64
}

// Config carries the orchestrator's own knobs; collaborators are passed
// explicitly to keep construction honest about its dependencies.
type Config struct {
	ReopenWindow   time.Duration
	MaxConcurrency int
}

func New(
	conversations models.ConversationRepository,
	cache ConversationCache,
	handoffs models.HandoffRepository,
	merchants models.MerchantRepository,
	classifier Classifier,
	clarifier Clarifier,
	detector *handoff.Detector,
	arbiter Arbiter,
	registry *handlers.Registry,
	sender notify.Sender,
	sessions SessionTracker,
	obs *observability.Observability,
	cfg Config,
	log logger.Logger,
) *Orchestrator {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 64
	}
	if cfg.ReopenWindow <= 0 {
		cfg.ReopenWindow = 7 * 24 * time.Hour
	}
	return &Orchestrator{
		conversations: conversations,
		cache:         cache,
		handoffs:      handoffs,
		merchants:     merchants,
		classifier:    classifier,
		clarifier:     clarifier,
		detector:      detector,
		arbiter:       arbiter,
		registry:      registry,
		sender:        sender,
		sessions:      sessions,
		obs:           obs,
		logger:        log.WithFields(map[string]interface{}{"component": "orchestrator"}),
		reopenWindow:  cfg.ReopenWindow,
		locks:         newKeyedMutex(),
		sem:           make(chan struct{}, cfg.MaxConcurrency),
		now:           time.Now,
	}
}

// ProcessMessage runs one customer message through the pipeline. Turns for the
// same conversation are strictly serialized; overall concurrency is bounded.
func (o *Orchestrator) ProcessMessage(ctx context.Context, msg *models.InboundMessage) (*Result, error) {
	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-o.sem }()
	atomic.AddInt64(&o.inFlight, 1)
	defer atomic.AddInt64(&o.inFlight, -1)

	conv, err := o.loadOrCreate(ctx, msg)
	if err != nil {
		return nil, err
	}

	if o.sessions != nil && msg.Channel == "web" {
		if err := o.sessions.Track(ctx, msg.MerchantID, msg.SenderID, conv.ID); err != nil {
			o.logger.Warn("widget session update failed", map[string]interface{}{
				"conversationId": conv.ID,
				"error":          err.Error(),
			})
		}
	}

	o.locks.lock(conv.ID)
	defer o.locks.unlock(conv.ID)

	start := o.now()
	result, err := o.processLocked(ctx, conv, msg)
	if err != nil {
		return nil, err
	}

	intent := string(result.Intent)
	if intent == "" {
		intent = "none"
	}
	metrics.MessagesProcessed.WithLabelValues(intent).Inc()
	metrics.MessageDuration.WithLabelValues(intent).Observe(o.now().Sub(start).Seconds())
	if o.obs != nil {
		status := "answered"
		if result.Silent {
			status = "silent"
		}
		o.obs.RecordTurn(ctx, status)
		o.obs.RecordTurnDuration(ctx, o.now().Sub(start), status)
	}
	atomic.AddInt64(&o.processed, 1)
	return result, nil
}

func (o *Orchestrator) processLocked(ctx context.Context, conv *models.Conversation, msg *models.InboundMessage) (*Result, error) {
	now := o.now()

	state, err := o.handoffState(ctx, conv)
	if err != nil {
		return nil, err
	}

	// resolved within the reopen window: the customer replied to a human
	// exchange, so the human gets it back without a bot turn
	if state.Status == models.HandoffResolved && state.ResolvedAt != nil &&
		now.Sub(*state.ResolvedAt) <= o.reopenWindow {
		handoff.Reopen(state, now)
		state.LastCustomerMessageAt = &now
		if err := o.handoffs.Upsert(ctx, state); err != nil {
			return nil, err
		}
		metrics.HandoffTransitions.WithLabelValues(string(models.HandoffResolved), string(models.HandoffReopened)).Inc()
		atomic.AddInt64(&o.silenced, 1)
		o.logger.Info("handoff reopened", map[string]interface{}{"conversationId": conv.ID})
		return &Result{ConversationID: conv.ID, Silent: true, Reason: "handoff_reopened"}, nil
	}

	if state.InProgress() {
		state.LastCustomerMessageAt = &now
		if err := o.handoffs.Upsert(ctx, state); err != nil {
			return nil, err
		}
		atomic.AddInt64(&o.silenced, 1)
		return &Result{ConversationID: conv.ID, Silent: true, Reason: "handoff_in_progress"}, nil
	}

	if decision := o.arbiter.ShouldBotRespond(ctx, conv.ID, msg.Text); !decision.BotResponds {
		// the operator owns the turn but the customer still spoke; the
		// inactivity clock must see it
		state.LastCustomerMessageAt = &now
		if err := o.handoffs.Upsert(ctx, state); err != nil {
			return nil, err
		}
		atomic.AddInt64(&o.silenced, 1)
		return &Result{ConversationID: conv.ID, Silent: true, Reason: decision.Reason}, nil
	}

	var merchant *models.Merchant
	if m, merr := o.merchants.FindByID(ctx, msg.MerchantID); merr == nil {
		merchant = m
	}

	classification, err := o.classifier.Classify(ctx, msg, &conv.Context, conv.ID, merchant)
	if err != nil {
		// degraded turn: answer honestly, mutate nothing
		atomic.AddInt64(&o.degraded, 1)
		o.logger.Error("classification unavailable", map[string]interface{}{
			"conversationId": conv.ID,
			"error":          err.Error(),
		})
		resp := &models.Response{Text: degradedReply}
		o.send(ctx, conv, msg, resp)
		return &Result{ConversationID: conv.ID, Intent: models.IntentUnknown, Response: resp, Reason: "llm_unavailable"}, nil
	}

	conv.Context.RecordIntent(classification.Intent, classification.Confidence, now)
	conv.Context.MergeEntities(classification.Entities)

	var merchantKeywords []string
	if merchant != nil {
		merchantKeywords = merchant.HandoffKeywords
	}

	attempts := 0
	if conv.Context.Clarification != nil {
		attempts = conv.Context.Clarification.Attempts
	}

	detection := o.detector.Detect(state, classification, merchantKeywords, attempts)
	explicitAsk := !classification.NeedsClarification() && classification.Intent == models.IntentHumanHandoff
	if detection.ShouldHandoff || explicitAsk {
		if !detection.ShouldHandoff {
			detection = &models.HandoffResult{ShouldHandoff: true, Reason: models.ReasonKeyword}
		}
		return o.startHandoff(ctx, conv, msg, state, detection, now)
	}

	var resp *models.Response
	var reason string
	if classification.NeedsClarification() {
		resp, err = o.clarify(conv, classification)
		if err != nil {
			// every slot exhausted counts as a clarification loop
			return o.startHandoff(ctx, conv, msg, state,
				&models.HandoffResult{ShouldHandoff: true, Reason: models.ReasonClarificationLoop, LoopCount: attempts}, now)
		}
	} else {
		conv.Context.Clarification = nil
		resp, err = o.registry.Dispatch(ctx, &handlers.Request{
			Conversation:   conv,
			Message:        msg,
			Classification: classification,
		})
		if err != nil {
			if !commonerrors.IsCode(err, commonerrors.ErrCodeCatalogError) {
				return nil, err
			}
			// recoverable catalog outage: keep the turn alive with a retry
			// message instead of failing it
			atomic.AddInt64(&o.degraded, 1)
			o.logger.Warn("catalog unavailable", map[string]interface{}{
				"conversationId": conv.ID,
				"intent":         classification.Intent,
				"error":          err.Error(),
			})
			resp = &models.Response{Text: catalogRetryReply}
			reason = "catalog_unavailable"
		}
	}

	if err := o.persist(ctx, conv, state); err != nil {
		return nil, err
	}
	o.send(ctx, conv, msg, resp)

	return &Result{ConversationID: conv.ID, Intent: classification.Intent, Response: resp, Reason: reason}, nil
}

// clarify advances the clarification exchange by one question.
func (o *Orchestrator) clarify(conv *models.Conversation, classification *models.ClassificationResult) (*models.Response, error) {
	cl := conv.Context.Clarification
	if cl == nil {
		cl = &models.ClarificationState{Active: true, StartedAt: o.now()}
		conv.Context.Clarification = cl
	}

	slot, question, err := o.clarifier.NextQuestion(conv.ID, conv.Context.Entities, cl.AskedConstraints)
	if err != nil {
		return nil, err
	}

	cl.Attempts++
	cl.AskedConstraints = append(cl.AskedConstraints, slot)
	return &models.Response{Text: question}, nil
}

// startHandoff applies the pending transition, answers the customer once and
// persists everything.
func (o *Orchestrator) startHandoff(ctx context.Context, conv *models.Conversation, msg *models.InboundMessage, state *models.HandoffState, detection *models.HandoffResult, now time.Time) (*Result, error) {
	from := state.Status
	handoff.Trigger(state, detection, now)
	state.LastCustomerMessageAt = &now
	conv.State = models.ConversationHandoff
	conv.Context.Clarification = nil

	if err := o.persist(ctx, conv, state); err != nil {
		return nil, err
	}
	metrics.HandoffTransitions.WithLabelValues(string(from), string(models.HandoffPending)).Inc()
	atomic.AddInt64(&o.handedOff, 1)

	o.logger.Info("handoff triggered", map[string]interface{}{
		"conversationId": conv.ID,
		"reason":         detection.Reason,
		"keyword":        detection.MatchedKeyword,
	})

	resp := &models.Response{Text: "Sure, I'm connecting you with a member of our team. They'll reply here shortly."}
	o.send(ctx, conv, msg, resp)
	return &Result{ConversationID: conv.ID, Intent: models.IntentHumanHandoff, Response: resp, Reason: string(detection.Reason)}, nil
}

// persist writes the conversation and handoff state, refreshing the cache.
func (o *Orchestrator) persist(ctx context.Context, conv *models.Conversation, state *models.HandoffState) error {
	conv.UpdatedAt = o.now()
	if err := o.conversations.Update(ctx, conv); err != nil {
		return err
	}
	if o.cache != nil {
		if err := o.cache.PutConversation(ctx, conv); err != nil {
			o.logger.Warn("conversation cache write failed", map[string]interface{}{
				"conversationId": conv.ID,
				"error":          err.Error(),
			})
		}
	}
	return o.handoffs.Upsert(ctx, state)
}

// send delivers the response; delivery failure is logged and never fails the
// turn, the state is already committed.
func (o *Orchestrator) send(ctx context.Context, conv *models.Conversation, msg *models.InboundMessage, resp *models.Response) {
	if err := o.sender.Send(ctx, conv.ID, msg.Channel, msg.SenderID, resp); err != nil {
		o.logger.Error("outbound delivery failed", map[string]interface{}{
			"conversationId": conv.ID,
			"channel":        msg.Channel,
			"error":          err.Error(),
		})
	}
}

// loadOrCreate resolves the conversation for an inbound message, creating it
// on first contact. The cache is consulted first; a miss falls through to the
// repository and warms the cache.
func (o *Orchestrator) loadOrCreate(ctx context.Context, msg *models.InboundMessage) (*models.Conversation, error) {
	if o.cache != nil {
		if cached, cerr := o.cache.GetConversation(ctx, msg.MerchantID, msg.Channel, msg.SenderID); cerr == nil && cached != nil {
			return cached, nil
		}
	}

	conv, err := o.conversations.FindByChannelSender(ctx, msg.MerchantID, msg.Channel, msg.SenderID)
	if err == nil {
		if o.cache != nil {
			_ = o.cache.PutConversation(ctx, conv)
		}
		return conv, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	conv = &models.Conversation{
		ID:         uuid.New().String(),
		MerchantID: msg.MerchantID,
		Channel:    msg.Channel,
		SenderID:   msg.SenderID,
		State:      models.ConversationActive,
		CreatedAt:  o.now(),
		UpdatedAt:  o.now(),
	}
	if err := o.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// handoffState loads the per-conversation handoff record, starting fresh on
// first contact.
func (o *Orchestrator) handoffState(ctx context.Context, conv *models.Conversation) (*models.HandoffState, error) {
	state, err := o.handoffs.Get(ctx, conv.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &models.HandoffState{
				ConversationID: conv.ID,
				MerchantID:     conv.MerchantID,
				Status:         models.HandoffNone,
			}, nil
		}
		return nil, err
	}
	return state, nil
}

// Status returns pipeline counters for the health endpoint.
func (o *Orchestrator) Status() Status {
	return Status{
		Processed: atomic.LoadInt64(&o.processed),
		Degraded:  atomic.LoadInt64(&o.degraded),
		Silenced:  atomic.LoadInt64(&o.silenced),
		Handoffs:  atomic.LoadInt64(&o.handedOff),
		InFlight:  atomic.LoadInt64(&o.inFlight),
	}
}

// RecordOperatorMessage marks operator activity on an in-progress handoff.
// The first reply moves a waiting handoff to active; later replies keep
// refreshing the inactivity clock. A no-op when no handoff is in progress.
func (o *Orchestrator) RecordOperatorMessage(ctx context.Context, conversationID string) error {
	state, err := o.handoffs.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if !state.InProgress() {
		return nil
	}

	from := state.Status
	handoff.OperatorReply(state, o.now())
	if err := o.handoffs.Upsert(ctx, state); err != nil {
		return err
	}
	if from != state.Status {
		metrics.HandoffTransitions.WithLabelValues(string(from), string(state.Status)).Inc()
	}
	return nil
}

// ResolveHandoff is the operator-facing exit: marks the handoff resolved and
// returns the conversation to the bot.
func (o *Orchestrator) ResolveHandoff(ctx context.Context, conversationID string) error {
	state, err := o.handoffs.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if !state.InProgress() {
		return nil
	}
	from := state.Status
	handoff.Resolve(state, models.ResolutionOperator, o.now())
	if err := o.handoffs.Upsert(ctx, state); err != nil {
		return err
	}
	metrics.HandoffTransitions.WithLabelValues(string(from), string(models.HandoffResolved)).Inc()

	conv, err := o.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	conv.State = models.ConversationActive
	conv.UpdatedAt = o.now()
	if err := o.conversations.Update(ctx, conv); err != nil {
		return err
	}
	if o.cache != nil {
		_ = o.cache.PutConversation(ctx, conv)
	}
	return nil
}
