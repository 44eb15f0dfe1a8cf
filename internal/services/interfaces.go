package services

import (
	"context"
	"time"

	domain "github.com/clovermart/api/internal/domain"
)

// CartNotice tells the caller what a cart mutation actually did, so the
// storefront can surface the right message without inspecting diffs.
type CartNotice string

const (
	NoticeItemAdded         CartNotice = "item_added"
	NoticeQuantityIncreased CartNotice = "quantity_increased"
	NoticeQuantityUpdated   CartNotice = "quantity_updated"
	NoticeItemRemoved       CartNotice = "item_removed"
	NoticeItemNotFound      CartNotice = "item_not_found"
)

// CartResult bundles the cart state after a mutation with the notice describing it.
type CartResult struct {
	Cart   domain.Cart
	Notice CartNotice
}

// AddItemCommand adds (or merges) a product line into the session cart.
type AddItemCommand struct {
	SessionID string
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
	Variant   string
	Category  string
	ImageRef  string
}

// RemoveItemCommand removes a product line from the session cart.
type RemoveItemCommand struct {
	SessionID string
	ProductID string
	Variant   string
}

// UpdateQuantityCommand sets the absolute quantity for an existing line.
type UpdateQuantityCommand struct {
	SessionID string
	ProductID string
	Variant   string
	Quantity  int
}

// CartService maintains per-session shopping carts backed by persisted snapshots.
type CartService interface {
	GetCart(ctx context.Context, sessionID string) (domain.Cart, error)
	AddItem(ctx context.Context, cmd AddItemCommand) (CartResult, error)
	RemoveItem(ctx context.Context, cmd RemoveItemCommand) (CartResult, error)
	UpdateQuantity(ctx context.Context, cmd UpdateQuantityCommand) (CartResult, error)
	Clear(ctx context.Context, sessionID string) error
}

// CouponInvalidReason enumerates why a coupon failed validation, in the order
// the rules are evaluated.
type CouponInvalidReason string

const (
	ReasonInvalidCode   CouponInvalidReason = "invalid_code"
	ReasonInactive      CouponInvalidReason = "inactive"
	ReasonNotYetValid   CouponInvalidReason = "not_yet_valid"
	ReasonExpired       CouponInvalidReason = "expired"
	ReasonBelowMinimum  CouponInvalidReason = "below_minimum"
	ReasonLimitExceeded CouponInvalidReason = "limit_exceeded"
	ReasonNotApplicable CouponInvalidReason = "not_applicable"
)

// CreateCouponCommand describes a new coupon. Code is optional; when empty a
// unique code is generated.
type CreateCouponCommand struct {
	Code                 string
	Kind                 domain.DiscountKind
	Value                int64
	MinOrderAmount       *int64
	MaxDiscountAmount    *int64
	UsageLimit           *int
	ValidFrom            time.Time
	ValidUntil           time.Time
	IsActive             bool
	ApplicableCategories []string
	ApplicableProductIDs []string
}

// OrderContext carries the cart facts a coupon may be restricted against.
type OrderContext struct {
	Categories []string
	ProductIDs []string
}

// CouponValidation is the outcome of running the validation pipeline.
// Invalid coupons are ordinary values, not errors.
type CouponValidation struct {
	Valid    bool
	Reason   CouponInvalidReason
	Coupon   domain.Coupon
	Discount int64
}

// RedeemCouponCommand records one use of a coupon against a completed order.
type RedeemCouponCommand struct {
	Code           string
	UserID         string
	OrderID        string
	DiscountAmount int64
}

// CouponService is the registry of discount coupons: creation, lookup,
// validation, discount math, and atomic redemption.
type CouponService interface {
	Create(ctx context.Context, cmd CreateCouponCommand) (domain.Coupon, error)
	Lookup(ctx context.Context, code string) (domain.Coupon, error)
	List(ctx context.Context) ([]domain.Coupon, error)
	Validate(ctx context.Context, code string, orderAmount int64, order OrderContext) (CouponValidation, error)
	CalculateDiscount(coupon domain.Coupon, orderAmount int64) int64
	Redeem(ctx context.Context, cmd RedeemCouponCommand) (domain.CouponRedemption, error)
	Stats(ctx context.Context) (domain.CouponStats, error)
	ListRedemptions(ctx context.Context, couponID string) ([]domain.CouponRedemption, error)
}

// IssueInvoiceCommand freezes a completed order into an invoice. All amounts
// arrive final; the invoice service performs no pricing decisions.
type IssueInvoiceCommand struct {
	OrderID      string
	UserID       string
	CustomerName string
	CustomerMail string
	PaymentRef   string
	CouponCode   string
	Currency     string
	Lines        []domain.InvoiceLine
	Totals       domain.OrderTotals
}

// InvoiceDocument is a rendered invoice artifact ready for download.
type InvoiceDocument struct {
	InvoiceID   string
	Number      string
	FileName    string
	ContentType string
	Content     []byte
	StoredAt    string
}

// InvoiceService issues invoice records and renders them into documents.
type InvoiceService interface {
	Issue(ctx context.Context, cmd IssueInvoiceCommand) (domain.Invoice, error)
	Get(ctx context.Context, invoiceID string) (domain.Invoice, error)
	Render(ctx context.Context, invoiceID string) (InvoiceDocument, error)
}

// QuoteCommand prices the current cart, optionally applying a coupon code.
type QuoteCommand struct {
	SessionID  string
	CouponCode string
}

// Quote is the priced view of a cart before payment.
type Quote struct {
	SessionID    string
	Currency     string
	Lines        []domain.CartLine
	Totals       domain.OrderTotals
	CouponCode   string
	CouponValid  bool
	CouponReason CouponInvalidReason
}

// BeginCheckoutCommand opens a payment session for the quoted amount.
type BeginCheckoutCommand struct {
	SessionID  string
	CouponCode string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession references the externally hosted payment flow.
type CheckoutSession struct {
	ID     string
	URL    string
	Amount int64
	Quote  Quote
}

// CompleteOrderCommand finalises an order after the payment provider
// confirmed the charge.
type CompleteOrderCommand struct {
	SessionID    string
	CouponCode   string
	UserID       string
	CustomerName string
	CustomerMail string
	PaymentRef   string
}

// CompletedOrder is the result of finalising: redeemed coupon, issued
// invoice, and the totals the customer was charged.
type CompletedOrder struct {
	OrderID    string
	Invoice    domain.Invoice
	Totals     domain.OrderTotals
	CouponCode string
	EventID    string
}

// CheckoutService composes cart, coupons, totals, payment, and invoicing
// into the order flow.
type CheckoutService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (Quote, error)
	BeginCheckout(ctx context.Context, cmd BeginCheckoutCommand) (CheckoutSession, error)
	CompleteOrder(ctx context.Context, cmd CompleteOrderCommand) (CompletedOrder, error)
}

// OrderCompletedMessage is the event payload published after an order is
// finalised.
type OrderCompletedMessage struct {
	OrderID       string    `json:"orderId"`
	SessionID     string    `json:"sessionId"`
	UserID        string    `json:"userId,omitempty"`
	InvoiceID     string    `json:"invoiceId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	CouponCode    string    `json:"couponCode,omitempty"`
	Currency      string    `json:"currency"`
	Total         int64     `json:"total"`
	CompletedAt   time.Time `json:"completedAt"`
}

// OrderEventPublisher pushes completed-order events to interested consumers.
type OrderEventPublisher interface {
	PublishOrderCompleted(ctx context.Context, message OrderCompletedMessage) (string, error)
}

// DocumentRenderer turns an invoice into a downloadable document. Rendering
// is an external concern; implementations may call out to a PDF engine.
type DocumentRenderer interface {
	RenderInvoice(ctx context.Context, invoice domain.Invoice) (content []byte, contentType string, err error)
}

// ArtifactStore persists rendered invoice documents.
type ArtifactStore interface {
	Put(ctx context.Context, object, contentType string, payload []byte) (string, error)
}
