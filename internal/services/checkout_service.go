package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/payments"
)

var (
	errCheckoutCartsRequired    = errors.New("checkout service: cart service is required")
	errCheckoutCouponsRequired  = errors.New("checkout service: coupon service is required")
	errCheckoutInvoicesRequired = errors.New("checkout service: invoice service is required")
	errCheckoutClockRequired    = errors.New("checkout service: clock is required")
	errCheckoutCurrencyRequired = errors.New("checkout service: currency is required")
)

// ErrCheckoutInvalidInput indicates the caller supplied invalid input.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutEmptyCart indicates the session cart has nothing to charge for.
var ErrCheckoutEmptyCart = errors.New("checkout service: cart is empty")

// ErrCheckoutCouponRejected indicates the supplied coupon failed validation
// at completion time.
var ErrCheckoutCouponRejected = errors.New("checkout service: coupon rejected")

// ErrCheckoutPaymentNotConfirmed indicates the payment provider does not
// report the referenced payment as captured.
var ErrCheckoutPaymentNotConfirmed = errors.New("checkout service: payment not confirmed")

// ErrCheckoutPaymentsUnconfigured indicates no payment provider is wired.
var ErrCheckoutPaymentsUnconfigured = errors.New("checkout service: payments not configured")

// ErrCheckoutUnavailable indicates a downstream dependency failed.
var ErrCheckoutUnavailable = errors.New("checkout service: unavailable")

// CheckoutServiceDeps wires the composed services and ambient dependencies.
type CheckoutServiceDeps struct {
	Carts      CartService
	Coupons    CouponService
	Invoices   InvoiceService
	Calculator OrderCalculator
	Payments   payments.Provider
	Publisher  OrderEventPublisher
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
	Currency   string

	IDGenerator func() string
}

type checkoutService struct {
	carts      CartService
	coupons    CouponService
	invoices   InvoiceService
	calculator OrderCalculator
	payments   payments.Provider
	publisher  OrderEventPublisher
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
	currency   string
	newID      func() string
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errCheckoutCartsRequired
	}
	if deps.Coupons == nil {
		return nil, errCheckoutCouponsRequired
	}
	if deps.Invoices == nil {
		return nil, errCheckoutInvoicesRequired
	}
	if deps.Clock == nil {
		return nil, errCheckoutClockRequired
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if len(currency) != 3 {
		return nil, errCheckoutCurrencyRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}

	return &checkoutService{
		carts:      deps.Carts,
		coupons:    deps.Coupons,
		invoices:   deps.Invoices,
		calculator: deps.Calculator,
		payments:   deps.Payments,
		publisher:  deps.Publisher,
		now:        func() time.Time { return deps.Clock().UTC() },
		logger:     logger,
		currency:   currency,
		newID:      newID,
	}, nil
}

// Quote prices the session cart. An invalid coupon never fails the quote;
// it prices without the discount and reports the rejection reason.
func (s *checkoutService) Quote(ctx context.Context, cmd QuoteCommand) (Quote, error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return Quote{}, ErrCheckoutInvalidInput
	}

	cart, err := s.carts.GetCart(ctx, sessionID)
	if err != nil {
		return Quote{}, s.wrapDependency(err)
	}

	quote := Quote{
		SessionID: sessionID,
		Currency:  s.currency,
		Lines:     cart.Lines,
	}

	subtotal := cart.Subtotal()
	var discount int64
	if code := strings.ToUpper(strings.TrimSpace(cmd.CouponCode)); code != "" {
		validation, err := s.coupons.Validate(ctx, code, subtotal, orderContextFromCart(cart))
		if err != nil {
			return Quote{}, s.wrapDependency(err)
		}
		quote.CouponCode = code
		quote.CouponValid = validation.Valid
		quote.CouponReason = validation.Reason
		if validation.Valid {
			discount = validation.Discount
		}
	}

	totals, err := s.calculator.ComputeTotal(subtotal, discount)
	if err != nil {
		return Quote{}, s.wrapDependency(err)
	}
	quote.Totals = totals
	return quote, nil
}

// BeginCheckout opens a hosted payment session for the quoted amount.
func (s *checkoutService) BeginCheckout(ctx context.Context, cmd BeginCheckoutCommand) (CheckoutSession, error) {
	if s.payments == nil {
		return CheckoutSession{}, ErrCheckoutPaymentsUnconfigured
	}

	quote, err := s.Quote(ctx, QuoteCommand{SessionID: cmd.SessionID, CouponCode: cmd.CouponCode})
	if err != nil {
		return CheckoutSession{}, err
	}
	if len(quote.Lines) == 0 || quote.Totals.Total <= 0 {
		return CheckoutSession{}, ErrCheckoutEmptyCart
	}

	req := payments.CheckoutSessionRequest{
		Amount:     quote.Totals.Total,
		Currency:   quote.Currency,
		SuccessURL: cmd.SuccessURL,
		CancelURL:  cmd.CancelURL,
		Metadata: map[string]string{
			"session_id": quote.SessionID,
		},
		IdempotencyKey: checkoutIdempotencyKey(quote),
		Items:          checkoutItems(quote),
	}
	if quote.CouponValid {
		req.Metadata["coupon_code"] = quote.CouponCode
	}

	session, err := s.payments.CreateCheckoutSession(ctx, req)
	if err != nil {
		s.logger(ctx, "checkout.session_failed", map[string]any{
			"session_id": quote.SessionID,
			"error":      err.Error(),
		})
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	s.logger(ctx, "checkout.session_created", map[string]any{
		"session_id":  quote.SessionID,
		"psp_session": session.ID,
		"amount":      session.Amount,
	})
	return CheckoutSession{
		ID:     session.ID,
		URL:    session.RedirectURL,
		Amount: session.Amount,
		Quote:  quote,
	}, nil
}

// CompleteOrder finalises the order after the provider confirmed the charge:
// the coupon is redeemed, the invoice issued, the completion event published,
// and the cart cleared. The quote is recomputed here so the charged totals
// are derived from the same figures the invoice freezes.
func (s *checkoutService) CompleteOrder(ctx context.Context, cmd CompleteOrderCommand) (CompletedOrder, error) {
	quote, err := s.Quote(ctx, QuoteCommand{SessionID: cmd.SessionID, CouponCode: cmd.CouponCode})
	if err != nil {
		return CompletedOrder{}, err
	}
	if len(quote.Lines) == 0 {
		return CompletedOrder{}, ErrCheckoutEmptyCart
	}
	if quote.CouponCode != "" && !quote.CouponValid {
		return CompletedOrder{}, fmt.Errorf("%w: %s", ErrCheckoutCouponRejected, quote.CouponReason)
	}

	if err := s.confirmPayment(ctx, quote, cmd.PaymentRef); err != nil {
		return CompletedOrder{}, err
	}

	orderID := s.newID()

	if quote.CouponValid {
		_, err := s.coupons.Redeem(ctx, RedeemCouponCommand{
			Code:           quote.CouponCode,
			UserID:         cmd.UserID,
			OrderID:        orderID,
			DiscountAmount: quote.Totals.Discount,
		})
		if err != nil {
			// A concurrent redemption may take the last slot between the
			// quote and here; surface it as a coupon rejection.
			if errors.Is(err, ErrCouponLimitExceeded) {
				return CompletedOrder{}, fmt.Errorf("%w: %s", ErrCheckoutCouponRejected, ReasonLimitExceeded)
			}
			return CompletedOrder{}, s.wrapDependency(err)
		}
	}

	invoice, err := s.invoices.Issue(ctx, IssueInvoiceCommand{
		OrderID:      orderID,
		UserID:       cmd.UserID,
		CustomerName: cmd.CustomerName,
		CustomerMail: cmd.CustomerMail,
		PaymentRef:   cmd.PaymentRef,
		CouponCode:   quote.CouponCode,
		Currency:     quote.Currency,
		Lines:        invoiceLines(quote.Lines),
		Totals:       quote.Totals,
	})
	if err != nil {
		// The redemption is not rolled back; the order stands and invoicing
		// can be retried out of band.
		s.logger(ctx, "checkout.invoice_failed", map[string]any{
			"order_id": orderID,
			"error":    err.Error(),
		})
		return CompletedOrder{}, s.wrapDependency(err)
	}

	completed := CompletedOrder{
		OrderID:    orderID,
		Invoice:    invoice,
		Totals:     quote.Totals,
		CouponCode: quote.CouponCode,
	}

	if s.publisher != nil {
		eventID, err := s.publisher.PublishOrderCompleted(ctx, OrderCompletedMessage{
			OrderID:       orderID,
			SessionID:     quote.SessionID,
			UserID:        strings.TrimSpace(cmd.UserID),
			InvoiceID:     invoice.ID,
			InvoiceNumber: invoice.Number,
			CouponCode:    quote.CouponCode,
			Currency:      quote.Currency,
			Total:         quote.Totals.Total,
			CompletedAt:   s.now(),
		})
		if err != nil {
			s.logger(ctx, "checkout.publish_failed", map[string]any{
				"order_id": orderID,
				"error":    err.Error(),
			})
		} else {
			completed.EventID = eventID
		}
	}

	if err := s.carts.Clear(ctx, quote.SessionID); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"session_id": quote.SessionID,
			"error":      err.Error(),
		})
	}

	s.logger(ctx, "checkout.completed", map[string]any{
		"order_id": orderID,
		"invoice":  invoice.Number,
		"total":    quote.Totals.Total,
	})
	return completed, nil
}

// confirmPayment gates completion on a captured charge. Orders with a
// positive total must carry a payment reference that the provider reports
// as succeeded for exactly the quoted amount; without a configured provider
// they cannot complete at all. Fully discounted orders charge nothing and
// skip verification.
func (s *checkoutService) confirmPayment(ctx context.Context, quote Quote, paymentRef string) error {
	if quote.Totals.Total <= 0 {
		return nil
	}
	if s.payments == nil {
		return ErrCheckoutPaymentsUnconfigured
	}
	ref := strings.TrimSpace(paymentRef)
	if ref == "" {
		return fmt.Errorf("%w: missing payment reference", ErrCheckoutPaymentNotConfirmed)
	}
	details, err := s.payments.VerifyPayment(ctx, ref)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckoutPaymentNotConfirmed, err)
	}
	if details.Status != payments.StatusSucceeded {
		return fmt.Errorf("%w: status %s", ErrCheckoutPaymentNotConfirmed, details.Status)
	}
	if details.Amount != quote.Totals.Total {
		return fmt.Errorf("%w: charged %d, quoted %d", ErrCheckoutPaymentNotConfirmed, details.Amount, quote.Totals.Total)
	}
	return nil
}

func (s *checkoutService) wrapDependency(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCartInvalidInput),
		errors.Is(err, ErrCouponInvalidInput),
		errors.Is(err, ErrInvoiceInvalidInput),
		errors.Is(err, ErrCalculatorInvalidInput):
		return fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}
	return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
}

func orderContextFromCart(cart domain.Cart) OrderContext {
	order := OrderContext{}
	for _, line := range cart.Lines {
		if category := strings.TrimSpace(line.Category); category != "" {
			order.Categories = append(order.Categories, category)
		}
		if productID := strings.TrimSpace(line.ProductID); productID != "" {
			order.ProductIDs = append(order.ProductIDs, productID)
		}
	}
	return order
}

// checkoutIdempotencyKey binds the provider-side idempotency key to the
// quoted content. Re-running checkout after the cart or coupon changed must
// produce a fresh key: the provider treats reuse of a key with different
// parameters as an error and would lock the session out until the key expires.
func checkoutIdempotencyKey(quote Quote) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d", quote.SessionID, quote.Currency, quote.Totals.Total, quote.Totals.Discount)
	if quote.CouponValid {
		fmt.Fprintf(h, "|%s", quote.CouponCode)
	}
	for _, line := range quote.Lines {
		fmt.Fprintf(h, "|%s|%s|%d|%d", line.ProductID, line.Variant, line.Quantity, line.UnitPrice)
	}
	return "checkout-" + hex.EncodeToString(h.Sum(nil)[:16])
}

// checkoutItems itemises the quote for the payment provider. Lines can only
// be itemised when they sum to the charged total; otherwise the provider
// falls back to a single order line for the full amount.
func checkoutItems(quote Quote) []payments.CheckoutLineItem {
	if quote.Totals.Total != quote.Totals.Subtotal {
		return nil
	}
	items := make([]payments.CheckoutLineItem, 0, len(quote.Lines))
	for _, line := range quote.Lines {
		item := payments.CheckoutLineItem{
			Name:       line.Name,
			SKU:        line.ProductID,
			Quantity:   int64(line.Quantity),
			UnitAmount: line.UnitPrice,
		}
		if line.Variant != "" {
			item.Description = line.Variant
		}
		items = append(items, item)
	}
	return items
}

func invoiceLines(lines []domain.CartLine) []domain.InvoiceLine {
	out := make([]domain.InvoiceLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, domain.InvoiceLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			Variant:   line.Variant,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.LineTotal(),
		})
	}
	return out
}
