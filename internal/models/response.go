package models

import "time"

// InboundMessage is one customer message after ingestion has resolved the
// merchant and raw text.
type InboundMessage struct {
	MerchantID string    `json:"merchantId"`
	Channel    string    `json:"channel"`
	SenderID   string    `json:"senderId"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// Response is the structured reply a handler produces: text plus an optional
// structured payload (product list, cart snapshot, order status).
type Response struct {
	Text    string      `json:"text"`
	Payload interface{} `json:"payload,omitempty"`
}
