package domain

import (
	"strings"
	"time"
)

// DiscountKind enumerates the supported coupon discount models.
type DiscountKind string

const (
	// DiscountPercentage applies value as a percentage of the order amount.
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixed applies value as a flat amount in minor currency units.
	DiscountFixed DiscountKind = "fixed"
)

// Valid reports whether the kind is one of the supported discount models.
func (k DiscountKind) Valid() bool {
	return k == DiscountPercentage || k == DiscountFixed
}

// LineKey identifies a cart line by product and optional variant.
type LineKey struct {
	ProductID string
	Variant   string
}

// CartLine is one distinct product+variant entry with a quantity.
// UnitPrice is expressed in minor currency units (never a formatted string).
type CartLine struct {
	ProductID string
	Name      string
	UnitPrice int64
	Quantity  int
	ImageRef  string
	Variant   string
	Category  string
	AddedAt   time.Time
	UpdatedAt time.Time
}

// Key returns the identity key used to merge duplicate lines.
func (l CartLine) Key() LineKey {
	return LineKey{
		ProductID: strings.TrimSpace(l.ProductID),
		Variant:   strings.TrimSpace(l.Variant),
	}
}

// LineTotal returns unit price times quantity.
func (l CartLine) LineTotal() int64 {
	if l.Quantity <= 0 {
		return 0
	}
	return l.UnitPrice * int64(l.Quantity)
}

// Cart aggregates the mutable shopping cart state for a session.
// Lines are ordered by insertion and unique per (productID, variant) key.
type Cart struct {
	SessionID string
	Currency  string
	Lines     []CartLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subtotal sums line totals across the cart.
func (c Cart) Subtotal() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.LineTotal()
	}
	return total
}

// ItemCount sums quantities across the cart.
func (c Cart) ItemCount() int {
	var count int
	for _, line := range c.Lines {
		if line.Quantity > 0 {
			count += line.Quantity
		}
	}
	return count
}

// FindLine returns the index of the line matching key, or -1.
func (c Cart) FindLine(key LineKey) int {
	for i, line := range c.Lines {
		if line.Key() == key {
			return i
		}
	}
	return -1
}

// Coupon is a discount rule identified by a redeemable code.
type Coupon struct {
	ID                   string
	Code                 string
	Kind                 DiscountKind
	Value                int64
	MinOrderAmount       *int64
	MaxDiscountAmount    *int64
	UsageLimit           *int
	UsedCount            int
	ValidFrom            time.Time
	ValidUntil           time.Time
	IsActive             bool
	ApplicableCategories []string
	ApplicableProductIDs []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Exhausted reports whether the usage limit has been reached.
// A zero usage limit means the coupon is immediately exhausted.
func (c Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}

// ExpiredAt reports whether the coupon validity window has passed at now.
// Bounds are inclusive: a coupon expiring exactly now is still valid.
func (c Coupon) ExpiredAt(now time.Time) bool {
	return !c.ValidUntil.IsZero() && now.After(c.ValidUntil)
}

// CouponRedemption is an append-only audit record of a successful use.
// Records are never mutated or deleted.
type CouponRedemption struct {
	ID             string
	CouponID       string
	UserID         string
	OrderID        string
	DiscountAmount int64
	RedeemedAt     time.Time
}

// CouponStats aggregates registry-wide counts for administrative reporting.
type CouponStats struct {
	TotalCoupons     int
	ActiveCoupons    int
	ExpiredCoupons   int
	TotalRedemptions int
	TotalDiscount    int64
}

// OrderTotals holds rolled-up monetary fields in minor currency units.
// Total is never negative.
type OrderTotals struct {
	Subtotal int64
	Discount int64
	Tax      int64
	Shipping int64
	Total    int64
}

// InvoiceLine mirrors a cart line at the time the invoice was issued.
type InvoiceLine struct {
	ProductID string
	Name      string
	Variant   string
	Quantity  int
	UnitPrice int64
	Total     int64
}

// Invoice is the immutable document record produced after a completed order.
// It renders the figures it is given and performs no pricing decisions.
type Invoice struct {
	ID           string
	Number       string
	OrderID      string
	UserID       string
	CustomerName string
	CustomerMail string
	PaymentRef   string
	CouponCode   string
	Currency     string
	Lines        []InvoiceLine
	Totals       OrderTotals
	IssuedAt     time.Time
}
