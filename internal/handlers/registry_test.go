package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-orchestrator/internal/catalog"
	commonerrors "commerce-orchestrator/internal/common/errors"
	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/models"
)

type fakeSearch struct {
	products []catalog.Product
	err      error
	seen     models.Entities
}

func (f *fakeSearch) Find(_ context.Context, _ string, e models.Entities) ([]catalog.Product, error) {
	f.seen = e
	return f.products, f.err
}

type fakeCommerce struct {
	cart     *catalog.Cart
	checkout *catalog.CheckoutResult
	order    *catalog.Order
	err      error
	added    []string
}

func (f *fakeCommerce) GetCart(_ context.Context, _, _ string) (*catalog.Cart, error) {
	return f.cart, f.err
}

func (f *fakeCommerce) AddToCart(_ context.Context, _, _, productID string, _ int) (*catalog.Cart, error) {
	f.added = append(f.added, productID)
	return f.cart, f.err
}

func (f *fakeCommerce) Checkout(_ context.Context, _, _ string) (*catalog.CheckoutResult, error) {
	return f.checkout, f.err
}

func (f *fakeCommerce) OrderStatus(_ context.Context, _, orderID string) (*catalog.Order, error) {
	return f.order, f.err
}

func testRequest(intent models.Intent) *Request {
	return &Request{
		Conversation: &models.Conversation{
			ID:         "c-1",
			MerchantID: "m-1",
			Context:    models.ConversationContext{Entities: models.Entities{Category: "shoes"}},
		},
		Message:        &models.InboundMessage{MerchantID: "m-1", SenderID: "cust-1", Text: "hi"},
		Classification: &models.ClassificationResult{Intent: intent, Confidence: 0.95},
	}
}

func fullRegistry(search *fakeSearch, commerce *fakeCommerce) *Registry {
	r := NewRegistry()
	productSearch := NewProductSearchHandler(search, logger.NewNoOpLogger())
	r.Register(models.IntentProductSearch, productSearch)
	r.Register(models.IntentGreeting, NewGreetingHandler())
	r.Register(models.IntentClarification, NewClarificationHandler(productSearch))
	r.Register(models.IntentCartView, NewCartViewHandler(commerce))
	r.Register(models.IntentCartAdd, NewCartAddHandler(commerce, search))
	r.Register(models.IntentCheckout, NewCheckoutHandler(commerce))
	r.Register(models.IntentOrderTracking, NewOrderTrackingHandler(commerce))
	r.Register(models.IntentHumanHandoff, NewHumanHandoffHandler())
	r.Register(models.IntentForgetPreferences, NewForgetPreferencesHandler())
	r.Register(models.IntentUnknown, NewUnknownHandler())
	return r
}

func TestMustCompletePanicsOnGap(t *testing.T) {
	r := NewRegistry()
	r.Register(models.IntentGreeting, NewGreetingHandler())

	assert.Panics(t, func() { r.MustComplete() })
}

func TestMustCompleteFullTable(t *testing.T) {
	r := fullRegistry(&fakeSearch{}, &fakeCommerce{})
	assert.NotPanics(t, func() { r.MustComplete() })
}

func TestDispatchUnregisteredIntent(t *testing.T) {
	r := NewRegistry()

	_, err := r.Dispatch(context.Background(), testRequest(models.IntentCheckout))
	require.Error(t, err)
	assert.True(t, commonerrors.IsCode(err, commonerrors.ErrCodeHandlerNotRegistered))
}

func TestProductSearchHandlerFormatsResults(t *testing.T) {
	search := &fakeSearch{products: []catalog.Product{
		{ID: "p-1", Name: "Air Runner", Price: 99.5, Currency: "USD"},
	}}
	r := fullRegistry(search, &fakeCommerce{})

	resp, err := r.Dispatch(context.Background(), testRequest(models.IntentProductSearch))
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Air Runner")
	// carried entities, not just this turn's, drive the query
	assert.Equal(t, "shoes", search.seen.Category)
}

func TestProductSearchHandlerNoResults(t *testing.T) {
	r := fullRegistry(&fakeSearch{}, &fakeCommerce{})

	resp, err := r.Dispatch(context.Background(), testRequest(models.IntentProductSearch))
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "couldn't find")
}

func TestCartAddUsesExtractedProductID(t *testing.T) {
	commerce := &fakeCommerce{cart: &catalog.Cart{Total: 50}}
	r := fullRegistry(&fakeSearch{}, commerce)

	req := testRequest(models.IntentCartAdd)
	req.Classification.Entities.Constraints = map[string]string{"product_id": "p-9"}

	_, err := r.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"p-9"}, commerce.added)
}

func TestCartAddFallsBackToTopSearchHit(t *testing.T) {
	search := &fakeSearch{products: []catalog.Product{{ID: "p-top"}}}
	commerce := &fakeCommerce{cart: &catalog.Cart{Total: 10}}
	r := fullRegistry(search, commerce)

	_, err := r.Dispatch(context.Background(), testRequest(models.IntentCartAdd))
	require.NoError(t, err)
	assert.Equal(t, []string{"p-top"}, commerce.added)
}

func TestOrderTrackingWithoutOrderIDAsks(t *testing.T) {
	r := fullRegistry(&fakeSearch{}, &fakeCommerce{})

	resp, err := r.Dispatch(context.Background(), testRequest(models.IntentOrderTracking))
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "order number")
}

func TestRateLimitTimeoutBecomesRetryMessage(t *testing.T) {
	commerce := &fakeCommerce{err: commonerrors.NewRateLimitTimeoutError("m-1")}
	r := fullRegistry(&fakeSearch{}, commerce)

	resp, err := r.Dispatch(context.Background(), testRequest(models.IntentCartView))
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "try again")
}

func TestOtherCommerceErrorsPropagate(t *testing.T) {
	commerce := &fakeCommerce{err: errors.New("backend down")}
	r := fullRegistry(&fakeSearch{}, commerce)

	_, err := r.Dispatch(context.Background(), testRequest(models.IntentCartView))
	assert.Error(t, err)
}

func TestForgetPreferencesClearsContext(t *testing.T) {
	r := fullRegistry(&fakeSearch{}, &fakeCommerce{})

	req := testRequest(models.IntentForgetPreferences)
	req.Conversation.Context.Clarification = &models.ClarificationState{Active: true}

	_, err := r.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, req.Conversation.Context.Entities.Category)
	assert.Nil(t, req.Conversation.Context.Clarification)
}
