package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/repositories"
)

// Registry is an in-memory repositories.Registry used by tests and local
// development. Cart snapshots are held as JSON blobs to mirror the snapshot
// semantics of the persistent backend: a blob that fails to decode reads
// back as not-found, so callers see an empty cart instead of an error.
type Registry struct {
	mu          sync.RWMutex
	carts       map[string][]byte
	coupons     map[string]domain.Coupon
	couponCodes map[string]string
	redemptions []domain.CouponRedemption
	invoices    map[string]domain.Invoice
	invoiceNums map[string]string
}

// NewRegistry constructs an empty in-memory registry.
func NewRegistry() *Registry {
	return &Registry{
		carts:       make(map[string][]byte),
		coupons:     make(map[string]domain.Coupon),
		couponCodes: make(map[string]string),
		invoices:    make(map[string]domain.Invoice),
		invoiceNums: make(map[string]string),
	}
}

// Close implements repositories.Registry.
func (r *Registry) Close(context.Context) error { return nil }

// Carts returns the cart repository view of the registry.
func (r *Registry) Carts() repositories.CartRepository { return (*cartStore)(r) }

// Coupons returns the coupon repository view of the registry.
func (r *Registry) Coupons() repositories.CouponRepository { return (*couponStore)(r) }

// Redemptions returns the redemption repository view of the registry.
func (r *Registry) Redemptions() repositories.RedemptionRepository { return (*redemptionStore)(r) }

// Invoices returns the invoice repository view of the registry.
func (r *Registry) Invoices() repositories.InvoiceRepository { return (*invoiceStore)(r) }

var _ repositories.Registry = (*Registry)(nil)

type storeError struct {
	op          string
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *storeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.op, e.msg)
}

func (e *storeError) IsNotFound() bool    { return e != nil && e.notFound }
func (e *storeError) IsConflict() bool    { return e != nil && e.conflict }
func (e *storeError) IsUnavailable() bool { return e != nil && e.unavailable }

func notFoundError(op, msg string) error {
	return &storeError{op: op, msg: msg, notFound: true}
}

func conflictError(op, msg string) error {
	return &storeError{op: op, msg: msg, conflict: true}
}

// cartStore ---------------------------------------------------------------

type cartStore Registry

func (s *cartStore) Get(_ context.Context, sessionID string) (domain.Cart, error) {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return domain.Cart{}, notFoundError("carts.get", "session id is required")
	}

	s.mu.RLock()
	raw, ok := s.carts[sid]
	s.mu.RUnlock()
	if !ok {
		return domain.Cart{}, notFoundError("carts.get", "cart not found")
	}

	var cart domain.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		// Corrupt snapshots read back as absent per the persistence contract.
		return domain.Cart{}, notFoundError("carts.get", "cart snapshot unreadable")
	}
	cart.SessionID = sid
	return cart, nil
}

func (s *cartStore) Save(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	sid := strings.TrimSpace(cart.SessionID)
	if sid == "" {
		return domain.Cart{}, conflictError("carts.save", "session id is required")
	}
	cart.SessionID = sid

	raw, err := json.Marshal(cart)
	if err != nil {
		return domain.Cart{}, &storeError{op: "carts.save", msg: err.Error(), unavailable: true}
	}

	s.mu.Lock()
	s.carts[sid] = raw
	s.mu.Unlock()
	return cart, nil
}

func (s *cartStore) Delete(_ context.Context, sessionID string) error {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return nil
	}
	s.mu.Lock()
	delete(s.carts, sid)
	s.mu.Unlock()
	return nil
}

// couponStore -------------------------------------------------------------

type couponStore Registry

func (s *couponStore) Insert(_ context.Context, coupon domain.Coupon) error {
	id := strings.TrimSpace(coupon.ID)
	code := normalizeCode(coupon.Code)
	if id == "" || code == "" {
		return repositories.NewCouponError(repositories.CouponErrorInvalidInput, "coupon id and code are required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.coupons[id]; exists {
		return conflictError("coupons.insert", "coupon id already exists")
	}
	if _, taken := s.couponCodes[code]; taken {
		return repositories.NewCouponError(repositories.CouponErrorDuplicateCode, "coupon code already exists", nil)
	}
	coupon.Code = code
	s.coupons[id] = coupon
	s.couponCodes[code] = id
	return nil
}

func (s *couponStore) Update(_ context.Context, coupon domain.Coupon) error {
	id := strings.TrimSpace(coupon.ID)
	if id == "" {
		return repositories.NewCouponError(repositories.CouponErrorInvalidInput, "coupon id is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.coupons[id]
	if !ok {
		return notFoundError("coupons.update", "coupon not found")
	}
	coupon.Code = normalizeCode(coupon.Code)
	if coupon.Code != existing.Code {
		if _, taken := s.couponCodes[coupon.Code]; taken {
			return repositories.NewCouponError(repositories.CouponErrorDuplicateCode, "coupon code already exists", nil)
		}
		delete(s.couponCodes, existing.Code)
		s.couponCodes[coupon.Code] = id
	}
	s.coupons[id] = coupon
	return nil
}

func (s *couponStore) FindByID(_ context.Context, couponID string) (domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coupon, ok := s.coupons[strings.TrimSpace(couponID)]
	if !ok {
		return domain.Coupon{}, notFoundError("coupons.find", "coupon not found")
	}
	return coupon, nil
}

func (s *couponStore) FindByCode(_ context.Context, code string) (domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.couponCodes[normalizeCode(code)]
	if !ok {
		return domain.Coupon{}, notFoundError("coupons.find_by_code", "coupon not found")
	}
	return s.coupons[id], nil
}

func (s *couponStore) List(_ context.Context) ([]domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Coupon, 0, len(s.coupons))
	for _, coupon := range s.coupons {
		out = append(out, coupon)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *couponStore) Redeem(_ context.Context, redemption domain.CouponRedemption, now time.Time) (domain.Coupon, error) {
	couponID := strings.TrimSpace(redemption.CouponID)
	if couponID == "" || strings.TrimSpace(redemption.ID) == "" {
		return domain.Coupon{}, repositories.NewCouponError(repositories.CouponErrorInvalidInput, "redemption id and coupon id are required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	coupon, ok := s.coupons[couponID]
	if !ok {
		return domain.Coupon{}, notFoundError("coupons.redeem", "coupon not found")
	}
	if coupon.Exhausted() {
		return domain.Coupon{}, repositories.NewCouponError(repositories.CouponErrorLimitExceeded, "coupon usage limit reached", nil)
	}

	coupon.UsedCount++
	coupon.UpdatedAt = now.UTC()
	s.coupons[couponID] = coupon
	s.redemptions = append(s.redemptions, redemption)
	return coupon, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// redemptionStore ---------------------------------------------------------

type redemptionStore Registry

func (s *redemptionStore) ListByCoupon(_ context.Context, couponID string) ([]domain.CouponRedemption, error) {
	target := strings.TrimSpace(couponID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CouponRedemption
	for _, record := range s.redemptions {
		if record.CouponID == target {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *redemptionStore) ListAll(_ context.Context) ([]domain.CouponRedemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CouponRedemption, len(s.redemptions))
	copy(out, s.redemptions)
	return out, nil
}

// invoiceStore ------------------------------------------------------------

type invoiceStore Registry

func (s *invoiceStore) Insert(_ context.Context, invoice domain.Invoice) error {
	id := strings.TrimSpace(invoice.ID)
	number := strings.TrimSpace(invoice.Number)
	if id == "" || number == "" {
		return conflictError("invoices.insert", "invoice id and number are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.invoices[id]; exists {
		return conflictError("invoices.insert", "invoice already exists")
	}
	s.invoices[id] = invoice
	s.invoiceNums[number] = id
	return nil
}

func (s *invoiceStore) FindByID(_ context.Context, invoiceID string) (domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	invoice, ok := s.invoices[strings.TrimSpace(invoiceID)]
	if !ok {
		return domain.Invoice{}, notFoundError("invoices.find", "invoice not found")
	}
	return invoice, nil
}

func (s *invoiceStore) NumberExists(_ context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.invoiceNums[strings.TrimSpace(number)]
	return exists, nil
}
