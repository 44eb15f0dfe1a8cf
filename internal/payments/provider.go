package payments

import (
	"context"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the PSP reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
)

// CheckoutLineItem describes a single cart line to include in a checkout session.
type CheckoutLineItem struct {
	Name        string
	Description string
	SKU         string
	Quantity    int64
	UnitAmount  int64
}

// CheckoutSessionRequest captures the payload required to open a hosted
// checkout session for one priced order.
type CheckoutSessionRequest struct {
	Amount         int64
	Currency       string
	SuccessURL     string
	CancelURL      string
	Locale         string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []CheckoutLineItem
}

// CheckoutSession represents the PSP session returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	IntentID    string
	Amount      int64
	ExpiresAt   time.Time
}

// PaymentDetails normalises PSP specific payment state for verification.
type PaymentDetails struct {
	Provider string
	IntentID string
	Status   Status
	Amount   int64
	Currency string
}

// Provider is the contract a payment service provider adapter implements.
// The order flow needs exactly two capabilities: opening a hosted session
// for a quoted amount, and verifying a payment reference after the customer
// returns from the provider.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	VerifyPayment(ctx context.Context, paymentRef string) (PaymentDetails, error)
}
