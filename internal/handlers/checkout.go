package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/platform/httpx"
	"github.com/clovermart/api/internal/platform/requestctx"
	"github.com/clovermart/api/internal/services"
)

const maxCheckoutBodySize = 32 * 1024

// CheckoutHandlers exposes the quote, payment session, and order completion
// endpoints for the current shopper session.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs handlers backed by the checkout service.
func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(RequireSession())
	r.Post("/quote", h.quote)
	r.Post("/session", h.beginCheckout)
	r.Post("/complete", h.completeOrder)
}

func (h *CheckoutHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}

	req, err := parseQuoteRequest(r)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	quote, err := h.checkout.Quote(ctx, services.QuoteCommand{
		SessionID:  requestctx.SessionID(ctx),
		CouponCode: req.couponCode,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildQuotePayload(quote))
}

func (h *CheckoutHandlers) beginCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	req, err := parseBeginCheckoutRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	session, err := h.checkout.BeginCheckout(ctx, services.BeginCheckoutCommand{
		SessionID:  requestctx.SessionID(ctx),
		CouponCode: req.couponCode,
		SuccessURL: req.successURL,
		CancelURL:  req.cancelURL,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutSessionPayload{
		SessionID:   session.ID,
		RedirectURL: session.URL,
		Amount:      session.Amount,
		Quote:       buildQuotePayload(session.Quote),
	})
}

func (h *CheckoutHandlers) completeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	req, err := parseCompleteOrderRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.checkout.CompleteOrder(ctx, services.CompleteOrderCommand{
		SessionID:    requestctx.SessionID(ctx),
		CouponCode:   req.couponCode,
		UserID:       req.userID,
		CustomerName: req.customerName,
		CustomerMail: req.customerMail,
		PaymentRef:   req.paymentRef,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, completedOrderPayload{
		OrderID:       order.OrderID,
		InvoiceID:     order.Invoice.ID,
		InvoiceNumber: order.Invoice.Number,
		CouponCode:    order.CouponCode,
		EventID:       order.EventID,
		Totals:        buildTotalsPayload(order.Totals),
	})
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart is empty", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutCouponRejected):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_rejected", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutPaymentNotConfirmed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_confirmed", "payment has not been confirmed", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrCheckoutPaymentsUnconfigured):
		httpx.WriteError(ctx, w, httpx.NewError("payments_unconfigured", "no payment provider is configured", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout operation failed", http.StatusInternalServerError))
	}
}

func buildQuotePayload(quote services.Quote) quotePayload {
	payload := quotePayload{
		SessionID: quote.SessionID,
		Currency:  quote.Currency,
		Items:     buildCartItems(quote.Lines),
		Totals:    buildTotalsPayload(quote.Totals),
	}
	if quote.CouponCode != "" {
		payload.Coupon = &quoteCouponPayload{
			Code:  quote.CouponCode,
			Valid: quote.CouponValid,
		}
		if !quote.CouponValid {
			payload.Coupon.Reason = string(quote.CouponReason)
		}
	}
	return payload
}

func buildTotalsPayload(totals domain.OrderTotals) totalsPayload {
	return totalsPayload{
		Subtotal: totals.Subtotal,
		Discount: totals.Discount,
		Tax:      totals.Tax,
		Shipping: totals.Shipping,
		Total:    totals.Total,
	}
}

type quotePayload struct {
	SessionID string              `json:"session_id"`
	Currency  string              `json:"currency"`
	Items     []cartItemPayload   `json:"items"`
	Totals    totalsPayload       `json:"totals"`
	Coupon    *quoteCouponPayload `json:"coupon,omitempty"`
}

type quoteCouponPayload struct {
	Code   string `json:"code"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

type totalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Discount int64 `json:"discount"`
	Tax      int64 `json:"tax"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type checkoutSessionPayload struct {
	SessionID   string       `json:"session_id"`
	RedirectURL string       `json:"redirect_url"`
	Amount      int64        `json:"amount"`
	Quote       quotePayload `json:"quote"`
}

type completedOrderPayload struct {
	OrderID       string        `json:"order_id"`
	InvoiceID     string        `json:"invoice_id"`
	InvoiceNumber string        `json:"invoice_number"`
	CouponCode    string        `json:"coupon_code,omitempty"`
	EventID       string        `json:"event_id,omitempty"`
	Totals        totalsPayload `json:"totals"`
}

type quoteRequest struct {
	couponCode string
}

// parseQuoteRequest accepts an optional JSON body carrying the coupon code.
// An absent body quotes the cart without a coupon.
func parseQuoteRequest(r *http.Request) (quoteRequest, error) {
	var req quoteRequest

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if errors.Is(err, errEmptyBody) {
		return req, nil
	}
	if err != nil {
		return req, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return req, errors.New("invalid JSON payload")
	}

	for key, value := range raw {
		switch key {
		case "coupon_code":
			if isJSONNull(value) {
				continue
			}
			var code string
			if err := json.Unmarshal(value, &code); err != nil {
				return req, errors.New("coupon_code must be a string")
			}
			req.couponCode = strings.TrimSpace(code)
		default:
			return req, fmt.Errorf("unknown field %q", key)
		}
	}

	return req, nil
}

type beginCheckoutRequest struct {
	couponCode string
	successURL string
	cancelURL  string
}

func parseBeginCheckoutRequest(body []byte) (beginCheckoutRequest, error) {
	var req beginCheckoutRequest
	if len(strings.TrimSpace(string(body))) == 0 {
		return req, errEmptyBody
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return req, errors.New("invalid JSON payload")
	}

	for key, value := range raw {
		switch key {
		case "coupon_code":
			if isJSONNull(value) {
				continue
			}
			var code string
			if err := json.Unmarshal(value, &code); err != nil {
				return req, errors.New("coupon_code must be a string")
			}
			req.couponCode = strings.TrimSpace(code)
		case "success_url":
			if isJSONNull(value) {
				return req, errors.New("success_url must be a string")
			}
			var url string
			if err := json.Unmarshal(value, &url); err != nil {
				return req, errors.New("success_url must be a string")
			}
			req.successURL = strings.TrimSpace(url)
		case "cancel_url":
			if isJSONNull(value) {
				return req, errors.New("cancel_url must be a string")
			}
			var url string
			if err := json.Unmarshal(value, &url); err != nil {
				return req, errors.New("cancel_url must be a string")
			}
			req.cancelURL = strings.TrimSpace(url)
		default:
			return req, fmt.Errorf("unknown field %q", key)
		}
	}

	if req.successURL == "" {
		return req, errors.New("success_url is required")
	}
	if req.cancelURL == "" {
		return req, errors.New("cancel_url is required")
	}

	return req, nil
}

type completeOrderRequest struct {
	couponCode   string
	userID       string
	customerName string
	customerMail string
	paymentRef   string
}

func parseCompleteOrderRequest(body []byte) (completeOrderRequest, error) {
	var req completeOrderRequest
	if len(strings.TrimSpace(string(body))) == 0 {
		return req, errEmptyBody
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return req, errors.New("invalid JSON payload")
	}

	for key, value := range raw {
		switch key {
		case "coupon_code":
			if isJSONNull(value) {
				continue
			}
			var code string
			if err := json.Unmarshal(value, &code); err != nil {
				return req, errors.New("coupon_code must be a string")
			}
			req.couponCode = strings.TrimSpace(code)
		case "user_id":
			if isJSONNull(value) {
				continue
			}
			var id string
			if err := json.Unmarshal(value, &id); err != nil {
				return req, errors.New("user_id must be a string")
			}
			req.userID = strings.TrimSpace(id)
		case "customer_name":
			if isJSONNull(value) {
				return req, errors.New("customer_name must be a string")
			}
			var name string
			if err := json.Unmarshal(value, &name); err != nil {
				return req, errors.New("customer_name must be a string")
			}
			req.customerName = strings.TrimSpace(name)
		case "customer_email":
			if isJSONNull(value) {
				continue
			}
			var email string
			if err := json.Unmarshal(value, &email); err != nil {
				return req, errors.New("customer_email must be a string")
			}
			email = strings.TrimSpace(email)
			if email != "" {
				if _, err := mail.ParseAddress(email); err != nil {
					return req, errors.New("customer_email must be a valid email address")
				}
			}
			req.customerMail = email
		case "payment_ref":
			if isJSONNull(value) {
				continue
			}
			var ref string
			if err := json.Unmarshal(value, &ref); err != nil {
				return req, errors.New("payment_ref must be a string")
			}
			req.paymentRef = strings.TrimSpace(ref)
		default:
			return req, fmt.Errorf("unknown field %q", key)
		}
	}

	if req.customerName == "" {
		return req, errors.New("customer_name is required")
	}

	return req, nil
}
