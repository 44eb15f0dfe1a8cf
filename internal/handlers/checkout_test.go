package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/services"
)

type stubCheckoutService struct {
	quoteFunc    func(ctx context.Context, cmd services.QuoteCommand) (services.Quote, error)
	beginFunc    func(ctx context.Context, cmd services.BeginCheckoutCommand) (services.CheckoutSession, error)
	completeFunc func(ctx context.Context, cmd services.CompleteOrderCommand) (services.CompletedOrder, error)
}

func (s *stubCheckoutService) Quote(ctx context.Context, cmd services.QuoteCommand) (services.Quote, error) {
	if s.quoteFunc != nil {
		return s.quoteFunc(ctx, cmd)
	}
	return services.Quote{}, nil
}

func (s *stubCheckoutService) BeginCheckout(ctx context.Context, cmd services.BeginCheckoutCommand) (services.CheckoutSession, error) {
	if s.beginFunc != nil {
		return s.beginFunc(ctx, cmd)
	}
	return services.CheckoutSession{}, nil
}

func (s *stubCheckoutService) CompleteOrder(ctx context.Context, cmd services.CompleteOrderCommand) (services.CompletedOrder, error) {
	if s.completeFunc != nil {
		return s.completeFunc(ctx, cmd)
	}
	return services.CompletedOrder{}, nil
}

func newCheckoutRouter(service services.CheckoutService) chi.Router {
	handler := NewCheckoutHandlers(service)
	router := chi.NewRouter()
	router.Route("/checkout", handler.Routes)
	return router
}

func sampleQuote() services.Quote {
	return services.Quote{
		SessionID: "sess-7",
		Currency:  "USD",
		Lines: []domain.CartLine{
			{ProductID: "prod-1", Name: "Oak Desk", UnitPrice: 10000, Quantity: 1},
		},
		Totals: domain.OrderTotals{Subtotal: 10000, Discount: 1000, Tax: 720, Shipping: 500, Total: 10220},
	}
}

func TestCheckoutHandlersQuoteWithoutBody(t *testing.T) {
	service := &stubCheckoutService{
		quoteFunc: func(ctx context.Context, cmd services.QuoteCommand) (services.Quote, error) {
			if cmd.SessionID != "sess-7" {
				t.Fatalf("unexpected session id %q", cmd.SessionID)
			}
			if cmd.CouponCode != "" {
				t.Fatalf("expected no coupon code, got %q", cmd.CouponCode)
			}
			return sampleQuote(), nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/checkout/quote", nil)
	req.Header.Set(sessionHeader, "sess-7")
	rr := httptest.NewRecorder()
	newCheckoutRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp quotePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Totals.Total != 10220 {
		t.Fatalf("expected total 10220, got %d", resp.Totals.Total)
	}
	if resp.Coupon != nil {
		t.Fatalf("expected no coupon section, got %+v", resp.Coupon)
	}
}

func TestCheckoutHandlersQuoteWithCoupon(t *testing.T) {
	service := &stubCheckoutService{
		quoteFunc: func(ctx context.Context, cmd services.QuoteCommand) (services.Quote, error) {
			if cmd.CouponCode != "SPRING25" {
				t.Fatalf("unexpected coupon code %q", cmd.CouponCode)
			}
			quote := sampleQuote()
			quote.CouponCode = "SPRING25"
			quote.CouponValid = true
			return quote, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/checkout/quote", strings.NewReader(`{"coupon_code":"SPRING25"}`))
	req.Header.Set(sessionHeader, "sess-7")
	rr := httptest.NewRecorder()
	newCheckoutRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp quotePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Coupon == nil || !resp.Coupon.Valid || resp.Coupon.Code != "SPRING25" {
		t.Fatalf("unexpected coupon section %+v", resp.Coupon)
	}
	if resp.Coupon.Reason != "" {
		t.Fatalf("expected empty reason for valid coupon, got %q", resp.Coupon.Reason)
	}
}

func TestCheckoutHandlersQuoteInvalidCouponReported(t *testing.T) {
	service := &stubCheckoutService{
		quoteFunc: func(ctx context.Context, cmd services.QuoteCommand) (services.Quote, error) {
			quote := sampleQuote()
			quote.Totals = domain.OrderTotals{Subtotal: 10000, Tax: 800, Shipping: 500, Total: 11300}
			quote.CouponCode = "EXPIRED1"
			quote.CouponValid = false
			quote.CouponReason = services.ReasonExpired
			return quote, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/checkout/quote", strings.NewReader(`{"coupon_code":"EXPIRED1"}`))
	req.Header.Set(sessionHeader, "sess-7")
	rr := httptest.NewRecorder()
	newCheckoutRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp quotePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Coupon == nil || resp.Coupon.Valid {
		t.Fatalf("expected invalid coupon section, got %+v", resp.Coupon)
	}
	if resp.Coupon.Reason != string(services.ReasonExpired) {
		t.Fatalf("expected reason expired, got %q", resp.Coupon.Reason)
	}
}

func TestCheckoutHandlersBeginCheckout(t *testing.T) {
	service := &stubCheckoutService{
		beginFunc: func(ctx context.Context, cmd services.BeginCheckoutCommand) (services.CheckoutSession, error) {
			if cmd.SuccessURL != "https://shop.example/success" || cmd.CancelURL != "https://shop.example/cancel" {
				t.Fatalf("unexpected URLs %+v", cmd)
			}
			return services.CheckoutSession{
				ID:     "cs_123",
				URL:    "https://pay.example/cs_123",
				Amount: 10220,
				Quote:  sampleQuote(),
			}, nil
		},
	}

	body := `{"success_url":"https://shop.example/success","cancel_url":"https://shop.example/cancel"}`
	req := httptest.NewRequest(http.MethodPost, "/checkout/session", strings.NewReader(body))
	req.Header.Set(sessionHeader, "sess-7")
	rr := httptest.NewRecorder()
	newCheckoutRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp checkoutSessionPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SessionID != "cs_123" || resp.RedirectURL != "https://pay.example/cs_123" {
		t.Fatalf("unexpected session %+v", resp)
	}
	if resp.Amount != 10220 {
		t.Fatalf("expected amount 10220, got %d", resp.Amount)
	}
}

func TestCheckoutHandlersBeginCheckoutValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "missing success url", body: `{"cancel_url":"https://shop.example/cancel"}`},
		{name: "missing cancel url", body: `{"success_url":"https://shop.example/success"}`},
		{name: "empty body", body: ``},
	}

	router := newCheckoutRouter(&stubCheckoutService{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/checkout/session", strings.NewReader(tc.body))
			req.Header.Set(sessionHeader, "sess-7")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rr.Code)
			}
		})
	}
}

func TestCheckoutHandlersCompleteOrder(t *testing.T) {
	service := &stubCheckoutService{
		completeFunc: func(ctx context.Context, cmd services.CompleteOrderCommand) (services.CompletedOrder, error) {
			if cmd.CustomerName != "Dana Smith" || cmd.PaymentRef != "pi_42" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			if cmd.CustomerMail != "dana@example.com" {
				t.Fatalf("unexpected email %q", cmd.CustomerMail)
			}
			return services.CompletedOrder{
				OrderID:    "order-777",
				Invoice:    domain.Invoice{ID: "inv-1", Number: "INV-20260315-042"},
				Totals:     domain.OrderTotals{Subtotal: 10000, Discount: 1000, Tax: 720, Shipping: 500, Total: 10220},
				CouponCode: "SPRING25",
				EventID:    "msg-7",
			}, nil
		},
	}

	body := `{
		"customer_name": "Dana Smith",
		"customer_email": "dana@example.com",
		"coupon_code": "SPRING25",
		"payment_ref": "pi_42"
	}`
	req := httptest.NewRequest(http.MethodPost, "/checkout/complete", strings.NewReader(body))
	req.Header.Set(sessionHeader, "sess-7")
	rr := httptest.NewRecorder()
	newCheckoutRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp completedOrderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.OrderID != "order-777" || resp.InvoiceNumber != "INV-20260315-042" {
		t.Fatalf("unexpected order %+v", resp)
	}
	if resp.EventID != "msg-7" {
		t.Fatalf("expected event id msg-7, got %q", resp.EventID)
	}
}

func TestCheckoutHandlersCompleteOrderValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "missing customer name", body: `{"payment_ref":"pi_42"}`},
		{name: "bad email", body: `{"customer_name":"Dana","customer_email":"not-an-email"}`},
		{name: "unknown field", body: `{"customer_name":"Dana","nickname":"D"}`},
	}

	router := newCheckoutRouter(&stubCheckoutService{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/checkout/complete", strings.NewReader(tc.body))
			req.Header.Set(sessionHeader, "sess-7")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCheckoutHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "empty cart", err: services.ErrCheckoutEmptyCart, status: http.StatusConflict, code: "cart_empty"},
		{name: "coupon rejected", err: services.ErrCheckoutCouponRejected, status: http.StatusUnprocessableEntity, code: "coupon_rejected"},
		{name: "payment not confirmed", err: services.ErrCheckoutPaymentNotConfirmed, status: http.StatusPaymentRequired, code: "payment_not_confirmed"},
		{name: "payments unconfigured", err: services.ErrCheckoutPaymentsUnconfigured, status: http.StatusServiceUnavailable, code: "payments_unconfigured"},
		{name: "unavailable", err: services.ErrCheckoutUnavailable, status: http.StatusServiceUnavailable, code: "checkout_service_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubCheckoutService{
				completeFunc: func(ctx context.Context, cmd services.CompleteOrderCommand) (services.CompletedOrder, error) {
					return services.CompletedOrder{}, tc.err
				},
			}
			req := httptest.NewRequest(http.MethodPost, "/checkout/complete", strings.NewReader(`{"customer_name":"Dana"}`))
			req.Header.Set(sessionHeader, "sess-7")
			rr := httptest.NewRecorder()
			newCheckoutRouter(service).ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tc.code) {
				t.Fatalf("expected error code %q, got %s", tc.code, rr.Body.String())
			}
		})
	}
}
