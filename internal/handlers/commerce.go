package handlers

import (
	"context"
	"fmt"
	"strings"

	"commerce-orchestrator/internal/catalog"
	"commerce-orchestrator/internal/common/errors"
	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/models"
)

// ProductSearcher is the catalog slice the search handler needs.
type ProductSearcher interface {
	Find(ctx context.Context, merchantID string, entities models.Entities) ([]catalog.Product, error)
}

// CommerceClient is the backend slice the cart/checkout/order handlers need.
type CommerceClient interface {
	GetCart(ctx context.Context, merchantID, customerID string) (*catalog.Cart, error)
	AddToCart(ctx context.Context, merchantID, customerID, productID string, quantity int) (*catalog.Cart, error)
	Checkout(ctx context.Context, merchantID, customerID string) (*catalog.CheckoutResult, error)
	OrderStatus(ctx context.Context, merchantID, orderID string) (*catalog.Order, error)
}

// ProductSearchHandler answers product_search (and resolved clarification)
// turns from the catalog index using the carried entities.
type ProductSearchHandler struct {
	search ProductSearcher
	logger logger.Logger
}

func NewProductSearchHandler(search ProductSearcher, log logger.Logger) *ProductSearchHandler {
	return &ProductSearchHandler{search: search, logger: log}
}

func (h *ProductSearchHandler) Handle(ctx context.Context, req *Request) (*models.Response, error) {
	products, err := h.search.Find(ctx, req.Message.MerchantID, req.Conversation.Context.Entities)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return &models.Response{
			Text: "I couldn't find anything matching that. Want to try a different price range or category?",
		}, nil
	}

	var b strings.Builder
	b.WriteString("Here's what I found:\n")
	for i, p := range products {
		fmt.Fprintf(&b, "%d. %s - %.2f %s\n", i+1, p.Name, p.Price, p.Currency)
	}
	return &models.Response{Text: b.String(), Payload: products}, nil
}

// CartViewHandler answers cart_view turns.
type CartViewHandler struct {
	commerce CommerceClient
}

func NewCartViewHandler(commerce CommerceClient) *CartViewHandler {
	return &CartViewHandler{commerce: commerce}
}

func (h *CartViewHandler) Handle(ctx context.Context, req *Request) (*models.Response, error) {
	cart, err := h.commerce.GetCart(ctx, req.Message.MerchantID, req.Message.SenderID)
	if err != nil {
		return softenRateLimit(err)
	}
	if len(cart.Items) == 0 {
		return &models.Response{Text: "Your cart is empty."}, nil
	}

	var b strings.Builder
	b.WriteString("Your cart:\n")
	for _, item := range cart.Items {
		fmt.Fprintf(&b, "- %s x%d (%.2f)\n", item.Name, item.Quantity, item.Price)
	}
	fmt.Fprintf(&b, "Total: %.2f", cart.Total)
	return &models.Response{Text: b.String(), Payload: cart}, nil
}

// CartAddHandler answers cart_add turns. The product is taken from the
// extracted constraints; without one we fall back to the top catalog match
// for the carried entities.
type CartAddHandler struct {
	commerce CommerceClient
	search   ProductSearcher
}

func NewCartAddHandler(commerce CommerceClient, search ProductSearcher) *CartAddHandler {
	return &CartAddHandler{commerce: commerce, search: search}
}

func (h *CartAddHandler) Handle(ctx context.Context, req *Request) (*models.Response, error) {
	productID := req.Classification.Entities.Constraints["product_id"]
	if productID == "" {
		products, err := h.search.Find(ctx, req.Message.MerchantID, req.Conversation.Context.Entities)
		if err != nil {
			return nil, err
		}
		if len(products) == 0 {
			return &models.Response{Text: "I'm not sure which product you mean. Could you name it?"}, nil
		}
		productID = products[0].ID
	}

	cart, err := h.commerce.AddToCart(ctx, req.Message.MerchantID, req.Message.SenderID, productID, 1)
	if err != nil {
		return softenRateLimit(err)
	}
	return &models.Response{
		Text:    fmt.Sprintf("Added to your cart. Cart total is now %.2f.", cart.Total),
		Payload: cart,
	}, nil
}

// CheckoutHandler answers checkout turns with a payment link.
type CheckoutHandler struct {
	commerce CommerceClient
}

func NewCheckoutHandler(commerce CommerceClient) *CheckoutHandler {
	return &CheckoutHandler{commerce: commerce}
}

func (h *CheckoutHandler) Handle(ctx context.Context, req *Request) (*models.Response, error) {
	result, err := h.commerce.Checkout(ctx, req.Message.MerchantID, req.Message.SenderID)
	if err != nil {
		return softenRateLimit(err)
	}
	return &models.Response{
		Text:    fmt.Sprintf("Your order %s is ready. Complete payment here: %s", result.OrderID, result.PaymentURL),
		Payload: result,
	}, nil
}

// OrderTrackingHandler answers order_tracking turns.
type OrderTrackingHandler struct {
	commerce CommerceClient
}

func NewOrderTrackingHandler(commerce CommerceClient) *OrderTrackingHandler {
	return &OrderTrackingHandler{commerce: commerce}
}

func (h *OrderTrackingHandler) Handle(ctx context.Context, req *Request) (*models.Response, error) {
	orderID := req.Classification.Entities.Constraints["order_id"]
	if orderID == "" {
		return &models.Response{Text: "What's your order number? I'll look it up."}, nil
	}

	order, err := h.commerce.OrderStatus(ctx, req.Message.MerchantID, orderID)
	if err != nil {
		return softenRateLimit(err)
	}

	text := fmt.Sprintf("Order %s is %s.", order.ID, order.Status)
	if order.TrackingURL != "" {
		text += " Track it here: " + order.TrackingURL
	}
	return &models.Response{Text: text, Payload: order}, nil
}

// softenRateLimit converts a rate-limiter timeout into a polite retry message
// so throttling never surfaces as an error to the customer.
func softenRateLimit(err error) (*models.Response, error) {
	if errors.IsCode(err, errors.ErrCodeRateLimitTimeout) {
		return &models.Response{Text: "Things are a bit busy right now. Please try again in a moment."}, nil
	}
	return nil, err
}
