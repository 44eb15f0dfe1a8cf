package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/clovermart/api/internal/platform/firestore"
	"github.com/clovermart/api/internal/repositories"
)

// Registry bundles the Firestore-backed repository implementations behind the
// repositories.Registry contract.
type Registry struct {
	provider    *pfirestore.Provider
	carts       *CartRepository
	coupons     *CouponRepository
	redemptions *RedemptionRepository
	invoices    *InvoiceRepository
}

// NewRegistry constructs the Firestore registry over a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	coupons, err := NewCouponRepository(provider)
	if err != nil {
		return nil, err
	}
	redemptions, err := NewRedemptionRepository(provider)
	if err != nil {
		return nil, err
	}
	invoices, err := NewInvoiceRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:    provider,
		carts:       carts,
		coupons:     coupons,
		redemptions: redemptions,
		invoices:    invoices,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Carts returns the cart repository.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Coupons returns the coupon repository.
func (r *Registry) Coupons() repositories.CouponRepository { return r.coupons }

// Redemptions returns the redemption repository.
func (r *Registry) Redemptions() repositories.RedemptionRepository { return r.redemptions }

// Invoices returns the invoice repository.
func (r *Registry) Invoices() repositories.InvoiceRepository { return r.invoices }

var _ repositories.Registry = (*Registry)(nil)
