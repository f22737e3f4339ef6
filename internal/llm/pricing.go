// internal/llm/pricing.go
package llm

// ModelPrice is USD per million tokens, split by direction.
type ModelPrice struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Cost computes the dollar cost for one call.
func (p ModelPrice) Cost(promptTokens, completionTokens int) (input, output, total float64) {
	input = float64(promptTokens) * p.InputPerMillion / 1e6
	output = float64(completionTokens) * p.OutputPerMillion / 1e6
	total = input + output
	return
}

// defaultPricing is the static fallback table. Live pricing discovery can
// override any entry through PricingTable.Override.
var defaultPricing = map[string]ModelPrice{
	// OpenAI
	"gpt-4o-mini": {0.15, 0.60},
	"gpt-4o":      {2.50, 10.00},
	// Groq
	"llama-3.1-8b-instant":    {0.05, 0.08},
	"llama-3.3-70b-versatile": {0.59, 0.79},
	// DeepSeek
	"deepseek-chat": {0.27, 1.10},
	// Local models cost nothing.
	"llama3.1": {0, 0},
}

// providerFallback prices unknown models by their provider's cheapest tier.
var providerFallback = map[string]ModelPrice{
	string(ProviderOpenAI):   {0.15, 0.60},
	string(ProviderGroq):     {0.05, 0.08},
	string(ProviderDeepSeek): {0.27, 1.10},
	string(ProviderOllama):   {0, 0},
}

// PricingTable resolves a model to its price.
type PricingTable struct {
	models    map[string]ModelPrice
	providers map[string]ModelPrice
}

func NewPricingTable() *PricingTable {
	models := make(map[string]ModelPrice, len(defaultPricing))
	for k, v := range defaultPricing {
		models[k] = v
	}
	providers := make(map[string]ModelPrice, len(providerFallback))
	for k, v := range providerFallback {
		providers[k] = v
	}
	return &PricingTable{models: models, providers: providers}
}

// Override replaces the price for a model, e.g. from live pricing discovery.
func (t *PricingTable) Override(model string, price ModelPrice) {
	t.models[model] = price
}

// Lookup returns the model's price, falling back to the provider default.
func (t *PricingTable) Lookup(provider, model string) ModelPrice {
	if p, ok := t.models[model]; ok {
		return p
	}
	return t.providers[provider]
}
