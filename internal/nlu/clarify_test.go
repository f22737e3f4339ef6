package nlu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "commerce-orchestrator/internal/common/errors"
	"commerce-orchestrator/internal/models"
)

func TestNextQuestionPriorityOrder(t *testing.T) {
	c := NewClarifier()

	slot, question, err := c.NextQuestion("conv-1", models.Entities{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "budget", slot)
	assert.NotEmpty(t, question)

	// budget filled, category is next
	slot, _, err = c.NextQuestion("conv-1", models.Entities{Budget: &models.Money{Amount: 50, Currency: "USD"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "category", slot)
}

func TestNextQuestionSkipsAskedSlots(t *testing.T) {
	c := NewClarifier()

	slot, _, err := c.NextQuestion("conv-1", models.Entities{}, []string{"budget", "category"})
	require.NoError(t, err)
	assert.Equal(t, "size", slot)
}

func TestNextQuestionSkipsFilledSlots(t *testing.T) {
	c := NewClarifier()

	entities := models.Entities{
		Budget:   &models.Money{Amount: 100, Currency: "USD"},
		Category: "sneakers",
		Size:     "42",
	}
	slot, _, err := c.NextQuestion("conv-1", entities, nil)
	require.NoError(t, err)
	assert.Equal(t, "color", slot)
}

func TestNextQuestionExhausted(t *testing.T) {
	c := NewClarifier()

	_, _, err := c.NextQuestion("conv-1", models.Entities{}, []string{"budget", "category", "size", "color", "brand"})
	require.Error(t, err)
	assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeNoMoreQuestions))
}

func TestNextQuestionDeterministicPhrasing(t *testing.T) {
	c := NewClarifier()

	_, q1, err := c.NextQuestion("conv-1", models.Entities{}, nil)
	require.NoError(t, err)
	_, q2, err := c.NextQuestion("conv-2", models.Entities{}, nil)
	require.NoError(t, err)
	assert.Equal(t, q1, q2)
}
