package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type fakeSessionAPI struct {
	newFunc func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func (f *fakeSessionAPI) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return f.newFunc(params)
}

type fakeIntentAPI struct {
	getFunc func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (f *fakeIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return f.getFunc(id, params)
}

func newTestStripeProvider(t *testing.T, sessions stripeSessionAPI, intents stripePaymentIntentAPI) *StripeProvider {
	t.Helper()
	if sessions == nil {
		sessions = &fakeSessionAPI{newFunc: func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			return &stripe.CheckoutSession{ID: "cs_test"}, nil
		}}
	}
	if intents == nil {
		intents = &fakeIntentAPI{getFunc: func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{}, nil
		}}
	}
	provider, err := NewStripeProvider(StripeProviderConfig{
		Clients: &stripeClients{sessions: sessions, intents: intents},
		Clock:   func() time.Time { return time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing provider: %v", err)
	}
	return provider
}

func TestStripeProviderCreateCheckoutSessionBuildsLineItems(t *testing.T) {
	var captured *stripe.CheckoutSessionParams
	sessions := &fakeSessionAPI{
		newFunc: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			captured = params
			return &stripe.CheckoutSession{
				ID:            "cs_123",
				URL:           "https://checkout.example.com/cs_123",
				PaymentIntent: &stripe.PaymentIntent{ID: "pi_123"},
				ExpiresAt:     time.Date(2026, 7, 15, 13, 0, 0, 0, time.UTC).Unix(),
			}, nil
		},
	}
	provider := newTestStripeProvider(t, sessions, nil)

	session, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Amount:     10800,
		Currency:   "USD",
		SuccessURL: "https://shop.example.com/done",
		CancelURL:  "https://shop.example.com/cart",
		Locale:     "de_DE",
		Items: []CheckoutLineItem{
			{Name: "Oak Desk", SKU: "prod-1", Quantity: 1, UnitAmount: 10000},
			{Name: "Mug", Quantity: 2, UnitAmount: 400},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ID != "cs_123" || session.IntentID != "pi_123" {
		t.Fatalf("unexpected session %+v", session)
	}
	if session.RedirectURL != "https://checkout.example.com/cs_123" {
		t.Fatalf("unexpected redirect url %q", session.RedirectURL)
	}
	if session.Amount != 10800 {
		t.Fatalf("unexpected amount %d", session.Amount)
	}
	if !session.ExpiresAt.Equal(time.Date(2026, 7, 15, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %s", session.ExpiresAt)
	}

	if captured == nil || len(captured.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %+v", captured)
	}
	first := captured.LineItems[0]
	if got := stripe.StringValue(first.PriceData.Currency); got != "usd" {
		t.Fatalf("expected lower-cased currency, got %q", got)
	}
	if got := stripe.Int64Value(first.PriceData.UnitAmount); got != 10000 {
		t.Fatalf("unexpected unit amount %d", got)
	}
	if got := first.PriceData.ProductData.Metadata["sku"]; got != "prod-1" {
		t.Fatalf("expected sku metadata, got %q", got)
	}
	if got := stripe.StringValue(captured.Locale); got != "de-DE" {
		t.Fatalf("expected normalised locale de-DE, got %q", got)
	}
}

func TestStripeProviderCreateCheckoutSessionFallsBackToSingleLine(t *testing.T) {
	var captured *stripe.CheckoutSessionParams
	sessions := &fakeSessionAPI{
		newFunc: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			captured = params
			return &stripe.CheckoutSession{ID: "cs_123"}, nil
		},
	}
	provider := newTestStripeProvider(t, sessions, nil)

	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{
		Amount:   5000,
		Currency: "EUR",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(captured.LineItems) != 1 {
		t.Fatalf("expected single fallback line, got %d", len(captured.LineItems))
	}
	if got := stripe.Int64Value(captured.LineItems[0].PriceData.UnitAmount); got != 5000 {
		t.Fatalf("expected fallback line to carry the full amount, got %d", got)
	}
}

func TestStripeProviderCreateCheckoutSessionRejectsNonPositiveAmount(t *testing.T) {
	provider := newTestStripeProvider(t, nil, nil)
	if _, err := provider.CreateCheckoutSession(context.Background(), CheckoutSessionRequest{Amount: 0, Currency: "USD"}); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestStripeProviderVerifyPayment(t *testing.T) {
	intents := &fakeIntentAPI{
		getFunc: func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			if id != "pi_123" {
				t.Fatalf("unexpected intent id %q", id)
			}
			return &stripe.PaymentIntent{
				ID:       "pi_123",
				Status:   stripe.PaymentIntentStatusSucceeded,
				Amount:   10800,
				Currency: "usd",
			}, nil
		},
	}
	provider := newTestStripeProvider(t, nil, intents)

	details, err := provider.VerifyPayment(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %q", details.Status)
	}
	if details.Amount != 10800 || details.Currency != "USD" {
		t.Fatalf("unexpected details %+v", details)
	}
}

func TestStripeProviderVerifyPaymentMapsCanceledToFailed(t *testing.T) {
	intents := &fakeIntentAPI{
		getFunc: func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusCanceled}, nil
		},
	}
	provider := newTestStripeProvider(t, nil, intents)

	details, err := provider.VerifyPayment(context.Background(), "pi_void")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if details.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", details.Status)
	}
}

func TestStripeProviderVerifyPaymentSurfacesAPIError(t *testing.T) {
	intents := &fakeIntentAPI{
		getFunc: func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return nil, errors.New("no such payment_intent")
		},
	}
	provider := newTestStripeProvider(t, nil, intents)

	if _, err := provider.VerifyPayment(context.Background(), "pi_missing"); err == nil {
		t.Fatal("expected error from API failure")
	}
}
