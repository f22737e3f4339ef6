package nlu

import (
	"commerce-orchestrator/internal/common/errors"
	"commerce-orchestrator/internal/models"
)

// constraint slots in ask order. Budget first: it prunes the product space the
// most, brand the least.
const (
	slotBudget   = "budget"
	slotCategory = "category"
	slotSize     = "size"
	slotColor    = "color"
	slotBrand    = "brand"
)

var slotOrder = []string{slotBudget, slotCategory, slotSize, slotColor, slotBrand}

var slotQuestions = map[string]string{
	slotBudget:   "What price range are you shopping in?",
	slotCategory: "What kind of product are you looking for?",
	slotSize:     "What size do you need?",
	slotColor:    "Do you have a color preference?",
	slotBrand:    "Any particular brand you prefer?",
}

// Clarifier picks the next clarification question for a low-confidence turn.
// Questions are canned and deterministic so the exchange costs no LLM tokens.
type Clarifier struct{}

func NewClarifier() *Clarifier {
	return &Clarifier{}
}

// NextQuestion returns the question for the highest-priority slot that is
// neither filled in the carried entities nor already asked this exchange.
// When every slot is exhausted it returns a NO_MORE_QUESTIONS error, which the
// orchestrator treats as a clarification-loop signal.
func (c *Clarifier) NextQuestion(conversationID string, entities models.Entities, asked []string) (slot, question string, err error) {
	askedSet := make(map[string]bool, len(asked))
	for _, s := range asked {
		askedSet[s] = true
	}

	for _, s := range slotOrder {
		if askedSet[s] || slotFilled(s, entities) {
			continue
		}
		return s, slotQuestions[s], nil
	}
	return "", "", errors.NewNoMoreQuestionsError(conversationID)
}

func slotFilled(slot string, e models.Entities) bool {
	switch slot {
	case slotBudget:
		return e.Budget != nil
	case slotCategory:
		return e.Category != ""
	case slotSize:
		return e.Size != ""
	case slotColor:
		return e.Color != ""
	case slotBrand:
		return e.Brand != ""
	}
	return false
}
