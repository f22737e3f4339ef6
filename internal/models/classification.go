package models

// Intent is the closed set of customer intents the pipeline understands.
type Intent string

const (
	IntentProductSearch     Intent = "product_search"
	IntentGreeting          Intent = "greeting"
	IntentClarification     Intent = "clarification"
	IntentCartView          Intent = "cart_view"
	IntentCartAdd           Intent = "cart_add"
	IntentCheckout          Intent = "checkout"
	IntentOrderTracking     Intent = "order_tracking"
	IntentHumanHandoff      Intent = "human_handoff"
	IntentForgetPreferences Intent = "forget_preferences"
	IntentUnknown           Intent = "unknown"
)

// AllIntents lists every member of the closed intent set. Handler registration
// is checked against this at startup.
var AllIntents = []Intent{
	IntentProductSearch,
	IntentGreeting,
	IntentClarification,
	IntentCartView,
	IntentCartAdd,
	IntentCheckout,
	IntentOrderTracking,
	IntentHumanHandoff,
	IntentForgetPreferences,
	IntentUnknown,
}

// IsValid reports membership in the closed intent set.
func (i Intent) IsValid() bool {
	for _, v := range AllIntents {
		if i == v {
			return true
		}
	}
	return false
}

// ConfidenceThreshold is the acceptance bar for a classification. At or above
// it the intent is final; below it the clarification engine takes over.
const ConfidenceThreshold = 0.80

// Money is an amount with its currency, used for the budget entity.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Entities are the structured slots extracted alongside an intent.
type Entities struct {
	Category    string            `json:"category,omitempty"`
	Budget      *Money            `json:"budget,omitempty"`
	Size        string            `json:"size,omitempty"`
	Color       string            `json:"color,omitempty"`
	Brand       string            `json:"brand,omitempty"`
	Constraints map[string]string `json:"constraints,omitempty"`
}

// ClassificationResult is produced once per turn and never mutated.
type ClassificationResult struct {
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   Entities `json:"entities"`
	RawText    string   `json:"rawText"`
	Provider   string   `json:"provider"`
	Model      string   `json:"model"`
	LatencyMS  int64    `json:"latencyMs"`
}

// NeedsClarification holds exactly when confidence is below the threshold.
func (r *ClassificationResult) NeedsClarification() bool {
	return r.Confidence < ConfidenceThreshold
}

// UnknownClassification is the degraded result used when model output cannot
// be parsed; classification always produces a result.
func UnknownClassification(rawText, provider, model string) *ClassificationResult {
	return &ClassificationResult{
		Intent:     IntentUnknown,
		Confidence: 0,
		RawText:    rawText,
		Provider:   provider,
		Model:      model,
	}
}
