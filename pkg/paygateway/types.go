package paygateway

import (
	"encoding/json"
	"time"
)

// Gateway transaction statuses reported by verify and webhooks.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
	StatusPending   = "pending"
	StatusOngoing   = "ongoing"
	StatusReversed  = "reversed"
)

// Webhook event names the reconciler acts on.
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// InitializeRequest opens a hosted checkout for one payment reference.
type InitializeRequest struct {
	Email       string
	AmountMinor int64
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]any
}

// InitializeResult carries the hosted checkout the customer is sent to.
type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyResult is the gateway's view of a payment reference.
type VerifyResult struct {
	Reference       string
	Status          string
	AmountMinor     int64
	Currency        string
	Channel         string
	GatewayResponse string
	PaidAt          *time.Time
}

// WebhookEvent is the signed payload posted by the gateway.
type WebhookEvent struct {
	Event string      `json:"event"`
	Data  WebhookData `json:"data"`
}

// WebhookData holds the charge the event refers to. Amount is optional.
type WebhookData struct {
	Reference       string          `json:"reference"`
	Status          string          `json:"status,omitempty"`
	Amount          *int64          `json:"amount,omitempty"`
	Currency        string          `json:"currency,omitempty"`
	Channel         string          `json:"channel,omitempty"`
	GatewayResponse string          `json:"gateway_response,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type initializeBody struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency,omitempty"`
	Reference   string         `json:"reference"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type verifyData struct {
	Reference       string     `json:"reference"`
	Status          string     `json:"status"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	Channel         string     `json:"channel"`
	GatewayResponse string     `json:"gateway_response"`
	PaidAt          *time.Time `json:"paid_at"`
}
