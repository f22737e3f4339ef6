// Package nlu turns raw customer text into a structured classification and
// generates focused clarification questions when confidence is low.
package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/common/validation"
	"commerce-orchestrator/internal/llm"
	"commerce-orchestrator/internal/models"
)

// classificationSchema is the fixed contract the model must produce. Output
// that fails this schema is downgraded to unknown, never propagated as error.
var classificationSchema = validation.MustCompile(map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"intent", "confidence"},
	"properties": map[string]interface{}{
		"intent": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{
				"product_search", "greeting", "clarification", "cart_view", "cart_add",
				"checkout", "order_tracking", "human_handoff", "forget_preferences", "unknown",
			},
		},
		"confidence": map[string]interface{}{
			"type":    "number",
			"minimum": 0,
			"maximum": 1,
		},
		"entities": map[string]interface{}{
			"type": "object",
		},
	},
})

const systemPromptTemplate = `You are the intent classifier for a shopping assistant.
Classify the customer message into exactly one intent:
product_search, greeting, clarification, cart_view, cart_add, checkout, order_tracking, human_handoff, forget_preferences, unknown.

Extract entities when present: category, budget ({"amount": number, "currency": string}), size, color, brand, and any other constraint into "constraints" (string map).

Respond ONLY with valid JSON, no text outside it:
{"intent": "...", "confidence": 0.0, "entities": {...}}`

// Classifier produces a ClassificationResult for each turn via the LLM router.
type Classifier struct {
	router      *llm.Router
	temperature float32
	maxTokens   int
	logger      logger.Logger
}

func NewClassifier(router *llm.Router, temperature float32, maxTokens int, log logger.Logger) *Classifier {
	if temperature == 0 {
		temperature = 0.1
	}
	if maxTokens == 0 {
		maxTokens = 512
	}
	return &Classifier{
		router:      router,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      log.WithFields(map[string]interface{}{"component": "classifier"}),
	}
}

// Classify always produces a result: malformed model output becomes the
// unknown intent with confidence 0. The merchant, when known, carries the
// provider and model preferences for this call.
func (c *Classifier) Classify(ctx context.Context, msg *models.InboundMessage, convCtx *models.ConversationContext, conversationID string, merchant *models.Merchant) (*models.ClassificationResult, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPromptTemplate},
	}
	if history := formatHistory(convCtx); history != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: history})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: msg.Text})

	req := llm.ChatRequest{
		ConversationID: conversationID,
		MerchantID:     msg.MerchantID,
		Messages:       messages,
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
	}
	if merchant != nil {
		req.PrimaryOverride = merchant.PrimaryProvider
		req.BackupOverride = merchant.BackupProvider
		req.ModelOverride = merchant.ModelOverride
	}

	resp, err := c.router.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	result := c.parse(resp.Content)
	result.RawText = msg.Text
	result.Provider = resp.Provider
	result.Model = resp.Model
	result.LatencyMS = resp.LatencyMS

	c.logger.Info("message classified", map[string]interface{}{
		"conversationId": conversationID,
		"intent":         result.Intent,
		"confidence":     result.Confidence,
		"provider":       resp.Provider,
	})
	return result, nil
}

// parse extracts and validates the JSON object from the completion body.
func (c *Classifier) parse(content string) *models.ClassificationResult {
	raw := extractJSON(content)
	if raw == "" {
		c.logger.Warn("no JSON object in model output", map[string]interface{}{"length": len(content)})
		return models.UnknownClassification("", "", "")
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		c.logger.Warn("model output is not valid JSON", map[string]interface{}{"error": err.Error()})
		return models.UnknownClassification("", "", "")
	}

	if res := validation.ValidateCompiled(classificationSchema, doc); !res.Valid {
		c.logger.Warn("model output failed classification schema", map[string]interface{}{
			"errors": fmt.Sprintf("%v", res.Errors),
		})
		return models.UnknownClassification("", "", "")
	}

	var parsed struct {
		Intent     string          `json:"intent"`
		Confidence float64         `json:"confidence"`
		Entities   models.Entities `json:"entities"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return models.UnknownClassification("", "", "")
	}

	intent := models.Intent(parsed.Intent)
	if !intent.IsValid() {
		intent = models.IntentUnknown
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &models.ClassificationResult{
		Intent:     intent,
		Confidence: confidence,
		Entities:   parsed.Entities,
	}
}

// extractJSON finds the first balanced JSON object, tolerating code fences and
// prose around it.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return content[start : i+1]
				}
			}
		}
	}
	return ""
}

func formatHistory(convCtx *models.ConversationContext) string {
	if convCtx == nil || len(convCtx.RecentIntents) == 0 {
		return ""
	}
	parts := make([]string, 0, len(convCtx.RecentIntents))
	for _, rec := range convCtx.RecentIntents {
		parts = append(parts, string(rec.Intent))
	}
	known, _ := json.Marshal(convCtx.Entities)
	return fmt.Sprintf("Recent intents in this conversation: %s. Known entities: %s",
		strings.Join(parts, ", "), known)
}
