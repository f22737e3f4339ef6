// Package handlers maps each classified intent to the code that produces the
// customer-facing response.
package handlers

import (
	"context"
	"fmt"

	"commerce-orchestrator/internal/common/errors"
	"commerce-orchestrator/internal/models"
)

// Request is everything a handler may use for one turn. Handlers may mutate
// Conversation.Context; the orchestrator persists it after dispatch.
type Request struct {
	Conversation   *models.Conversation
	Message        *models.InboundMessage
	Classification *models.ClassificationResult
}

// Handler produces the response for one intent.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*models.Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *Request) (*models.Response, error)

func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*models.Response, error) {
	return f(ctx, req)
}

// Registry holds the intent-to-handler table. The table is written once at
// startup and read-only afterwards.
type Registry struct {
	handlers map[models.Intent]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.Intent]Handler)}
}

func (r *Registry) Register(intent models.Intent, h Handler) {
	r.handlers[intent] = h
}

// MustComplete panics unless every member of the closed intent set has a
// handler. Called once during startup so a gap is a boot failure, not a
// runtime surprise.
func (r *Registry) MustComplete() {
	for _, intent := range models.AllIntents {
		if _, ok := r.handlers[intent]; !ok {
			panic(fmt.Sprintf("no handler registered for intent %q", intent))
		}
	}
}

// Dispatch routes the turn to the intent's handler.
func (r *Registry) Dispatch(ctx context.Context, req *Request) (*models.Response, error) {
	h, ok := r.handlers[req.Classification.Intent]
	if !ok {
		return nil, errors.NewHandlerNotRegisteredError(string(req.Classification.Intent))
	}
	return h.Handle(ctx, req)
}
