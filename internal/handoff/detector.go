// Package handoff decides when a conversation leaves the bot for a human and
// ages handed-off conversations through warning, escalation and auto-close.
package handoff

import (
	"strings"
	"time"

	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/models"
)

// Detector evaluates one classified turn against the three handoff triggers.
// Trigger precedence: explicit keyword, then low-confidence streak, then
// clarification loop. The first match wins and the rest are not evaluated.
type Detector struct {
	defaultKeywords  []string
	confidenceStreak int
	loopLimit        int
	logger           logger.Logger
}

func NewDetector(defaultKeywords []string, confidenceStreak, loopLimit int, log logger.Logger) *Detector {
	if confidenceStreak <= 0 {
		confidenceStreak = 3
	}
	if loopLimit <= 0 {
		loopLimit = 3
	}
	return &Detector{
		defaultKeywords:  defaultKeywords,
		confidenceStreak: confidenceStreak,
		loopLimit:        loopLimit,
		logger:           log.WithFields(map[string]interface{}{"component": "handoff-detector"}),
	}
}

// Detect evaluates the turn and updates the low-confidence streak on state.
// It never writes a status transition; callers apply Trigger when ShouldHandoff
// is set. Detection is idempotent while a handoff is already in progress.
func (d *Detector) Detect(state *models.HandoffState, result *models.ClassificationResult, merchantKeywords []string, clarificationAttempts int) *models.HandoffResult {
	if state.InProgress() {
		return &models.HandoffResult{
			ShouldHandoff:   false,
			ConfidenceCount: state.ConsecutiveLowConfidence,
			LoopCount:       clarificationAttempts,
		}
	}

	if kw := d.matchKeyword(result.RawText, merchantKeywords); kw != "" {
		return &models.HandoffResult{
			ShouldHandoff:   true,
			Reason:          models.ReasonKeyword,
			MatchedKeyword:  kw,
			ConfidenceCount: state.ConsecutiveLowConfidence,
			LoopCount:       clarificationAttempts,
		}
	}

	if result.NeedsClarification() {
		state.ConsecutiveLowConfidence++
	} else {
		state.ConsecutiveLowConfidence = 0
	}

	if state.ConsecutiveLowConfidence >= d.confidenceStreak {
		return &models.HandoffResult{
			ShouldHandoff:   true,
			Reason:          models.ReasonLowConfidence,
			ConfidenceCount: state.ConsecutiveLowConfidence,
			LoopCount:       clarificationAttempts,
		}
	}

	if clarificationAttempts >= d.loopLimit {
		return &models.HandoffResult{
			ShouldHandoff:   true,
			Reason:          models.ReasonClarificationLoop,
			ConfidenceCount: state.ConsecutiveLowConfidence,
			LoopCount:       clarificationAttempts,
		}
	}

	return &models.HandoffResult{
		ShouldHandoff:   false,
		ConfidenceCount: state.ConsecutiveLowConfidence,
		LoopCount:       clarificationAttempts,
	}
}

// matchKeyword does a case-insensitive substring match. Merchant keywords
// replace the defaults entirely when configured.
func (d *Detector) matchKeyword(text string, merchantKeywords []string) string {
	keywords := merchantKeywords
	if len(keywords) == 0 {
		keywords = d.defaultKeywords
	}

	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return kw
		}
	}
	return ""
}

// Trigger applies the pending transition for a positive detection.
func Trigger(state *models.HandoffState, result *models.HandoffResult, now time.Time) {
	state.Status = models.HandoffPending
	state.TriggerReason = result.Reason
	state.TriggeredAt = &now
	state.ResolvedAt = nil
	state.ResolutionType = ""
	state.WarningSentAt = nil
	state.UpdatedAt = now
}

// OperatorReply records operator activity on an in-progress handoff. A
// waiting handoff becomes active and the inactivity clock restarts, so a
// pending warning is cleared.
func OperatorReply(state *models.HandoffState, now time.Time) {
	switch state.Status {
	case models.HandoffPending, models.HandoffEscalated, models.HandoffReopened:
		state.Status = models.HandoffActive
	}
	state.LastOperatorMessageAt = &now
	state.WarningSentAt = nil
	state.UpdatedAt = now
}

// Resolve closes an in-progress handoff.
func Resolve(state *models.HandoffState, resolution models.ResolutionType, now time.Time) {
	state.Status = models.HandoffResolved
	state.ResolutionType = resolution
	state.ResolvedAt = &now
	state.ConsecutiveLowConfidence = 0
	state.UpdatedAt = now
}

// Reopen moves a recently resolved handoff back to human ownership. The caller
// enforces the reopen window.
func Reopen(state *models.HandoffState, now time.Time) {
	state.Status = models.HandoffReopened
	state.ReopenCount++
	state.ResolvedAt = nil
	state.ResolutionType = ""
	state.WarningSentAt = nil
	state.UpdatedAt = now
}
