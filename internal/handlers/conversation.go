package handlers

import (
	"context"

	"commerce-orchestrator/internal/models"
)

// NewGreetingHandler answers greeting turns with the merchant welcome.
func NewGreetingHandler() Handler {
	return HandlerFunc(func(_ context.Context, _ *Request) (*models.Response, error) {
		return &models.Response{
			Text: "Hi! I can help you find products, manage your cart, and track orders. What are you looking for?",
		}, nil
	})
}

// NewClarificationHandler answers clarification turns. By the time dispatch
// runs, the clarifying answer has already been merged into the carried
// entities, so the turn behaves like a refreshed product search.
func NewClarificationHandler(search *ProductSearchHandler) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) (*models.Response, error) {
		return search.Handle(ctx, req)
	})
}

// NewHumanHandoffHandler answers an explicit request for a person. The actual
// state transition is applied by the orchestrator; this handler only speaks.
func NewHumanHandoffHandler() Handler {
	return HandlerFunc(func(_ context.Context, _ *Request) (*models.Response, error) {
		return &models.Response{
			Text: "Sure, I'm connecting you with a member of our team. They'll reply here shortly.",
		}, nil
	})
}

// NewForgetPreferencesHandler clears everything remembered about the customer
// in this conversation.
func NewForgetPreferencesHandler() Handler {
	return HandlerFunc(func(_ context.Context, req *Request) (*models.Response, error) {
		req.Conversation.Context.ForgetPreferences()
		return &models.Response{
			Text: "Done, I've cleared your saved preferences. We can start fresh.",
		}, nil
	})
}

// NewUnknownHandler answers turns nothing else could make sense of.
func NewUnknownHandler() Handler {
	return HandlerFunc(func(_ context.Context, _ *Request) (*models.Response, error) {
		return &models.Response{
			Text: "Sorry, I didn't quite get that. You can ask me to find products, show your cart, or track an order.",
		}, nil
	})
}
