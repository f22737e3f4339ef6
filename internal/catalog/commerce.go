package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"commerce-orchestrator/internal/common/config"
	"commerce-orchestrator/internal/common/errors"
	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/common/metrics"
	"commerce-orchestrator/internal/common/ratelimit"
)

// Cart is the customer's cart as reported by the commerce backend.
type Cart struct {
	Items []CartItem `json:"items"`
	Total float64    `json:"total"`
}

type CartItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Order is the status view of a placed order.
type Order struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Total       float64   `json:"total"`
	PlacedAt    time.Time `json:"placedAt"`
	TrackingURL string    `json:"trackingUrl,omitempty"`
}

// CheckoutResult carries the payment link handed back to the customer.
type CheckoutResult struct {
	OrderID    string `json:"orderId"`
	PaymentURL string `json:"paymentUrl"`
}

// Commerce calls the merchant commerce backend over HTTP. Every call first
// takes a per-merchant rate limit token; a timed-out acquire is a soft
// failure surfaced as RATE_LIMIT_TIMEOUT, never a dropped message.
type Commerce struct {
	baseURL     string
	client      *http.Client
	limiter     *ratelimit.Registry
	acquireWait time.Duration
	logger      logger.Logger
}

func NewCommerce(cfg config.CatalogConfig, limiter *ratelimit.Registry, log logger.Logger) *Commerce {
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	acquireWait := time.Duration(cfg.AcquireTimeoutMS) * time.Millisecond
	if acquireWait == 0 {
		acquireWait = 2 * time.Second
	}
	return &Commerce{
		baseURL:     cfg.CommerceBaseURL,
		client:      &http.Client{Timeout: timeout},
		limiter:     limiter,
		acquireWait: acquireWait,
		logger:      log.WithFields(map[string]interface{}{"component": "commerce-client"}),
	}
}

// GetCart fetches the current cart for a customer.
func (c *Commerce) GetCart(ctx context.Context, merchantID, customerID string) (*Cart, error) {
	var cart Cart
	path := fmt.Sprintf("/v1/merchants/%s/customers/%s/cart", merchantID, customerID)
	if err := c.do(ctx, merchantID, http.MethodGet, path, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddToCart puts a product into the customer's cart.
func (c *Commerce) AddToCart(ctx context.Context, merchantID, customerID, productID string, quantity int) (*Cart, error) {
	if quantity <= 0 {
		quantity = 1
	}
	body := map[string]interface{}{"productId": productID, "quantity": quantity}
	var cart Cart
	path := fmt.Sprintf("/v1/merchants/%s/customers/%s/cart/items", merchantID, customerID)
	if err := c.do(ctx, merchantID, http.MethodPost, path, body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// Checkout converts the cart into an order and returns the payment link.
func (c *Commerce) Checkout(ctx context.Context, merchantID, customerID string) (*CheckoutResult, error) {
	var result CheckoutResult
	path := fmt.Sprintf("/v1/merchants/%s/customers/%s/checkout", merchantID, customerID)
	if err := c.do(ctx, merchantID, http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// OrderStatus looks up a placed order.
func (c *Commerce) OrderStatus(ctx context.Context, merchantID, orderID string) (*Order, error) {
	var order Order
	path := fmt.Sprintf("/v1/merchants/%s/orders/%s", merchantID, orderID)
	if err := c.do(ctx, merchantID, http.MethodGet, path, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Commerce) do(ctx context.Context, merchantID, method, path string, body, out interface{}) error {
	if !c.limiter.Acquire(ctx, merchantID, c.acquireWait) {
		metrics.RateLimitTimeouts.WithLabelValues(merchantID).Inc()
		return errors.NewRateLimitTimeoutError(merchantID)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.NewCatalogError(path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.NewCatalogError(path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.NewCatalogError(path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.NewCatalogError(path, fmt.Errorf("status %d: %s", resp.StatusCode, payload))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.NewCatalogError(path, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}
