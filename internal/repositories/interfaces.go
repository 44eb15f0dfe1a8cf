package repositories

import (
	"context"
	"time"

	domain "github.com/clovermart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Coupons() CouponRepository
	Redemptions() RedemptionRepository
	Invoices() InvoiceRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository persists full cart snapshots keyed by session. Every save
// rewrites the whole snapshot; there are no partial updates. A corrupt or
// undecodable snapshot is reported as not-found so callers fall back to an
// empty cart.
type CartRepository interface {
	Get(ctx context.Context, sessionID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Delete(ctx context.Context, sessionID string) error
}

// CouponRepository maintains coupon definitions and their usage counters.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	FindByID(ctx context.Context, couponID string) (domain.Coupon, error)
	// FindByCode matches the normalised (upper-cased) code exactly.
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	List(ctx context.Context) ([]domain.Coupon, error)

	// Redeem atomically increments the coupon's used count, guarding it
	// against the usage limit, and appends the redemption record in the
	// same transactional boundary. When the limit is already reached it
	// fails with CouponErrorLimitExceeded and writes nothing.
	Redeem(ctx context.Context, redemption domain.CouponRedemption, now time.Time) (domain.Coupon, error)
}

// RedemptionRepository reads the append-only redemption audit trail.
// Writes happen exclusively through CouponRepository.Redeem.
type RedemptionRepository interface {
	ListByCoupon(ctx context.Context, couponID string) ([]domain.CouponRedemption, error)
	ListAll(ctx context.Context) ([]domain.CouponRedemption, error)
}

// InvoiceRepository stores issued invoices and supports collision checks on
// human-readable invoice numbers.
type InvoiceRepository interface {
	Insert(ctx context.Context, invoice domain.Invoice) error
	FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error)
	// NumberExists reports whether an invoice with the given number has
	// already been issued.
	NumberExists(ctx context.Context, number string) (bool, error)
}
