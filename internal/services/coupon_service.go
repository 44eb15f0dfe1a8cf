package services

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/repositories"
)

var (
	errCouponRepositoryRequired = errors.New("coupon service: repository is required")
	errCouponClockRequired      = errors.New("coupon service: clock is required")
)

const (
	defaultCouponCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	defaultCouponCodeLength   = 10
	maxCodeGenerationRetries  = 5
	maxCouponCodeLength       = 64
)

// ErrCouponInvalidInput indicates the caller supplied invalid input.
var ErrCouponInvalidInput = errors.New("coupon service: invalid input")

// ErrCouponNotFound indicates no coupon matches the given code or id.
var ErrCouponNotFound = errors.New("coupon service: not found")

// ErrCouponUnavailable indicates the registry backend cannot fulfil the request.
var ErrCouponUnavailable = errors.New("coupon service: unavailable")

// ErrCouponDuplicateCode indicates the requested code is already registered.
var ErrCouponDuplicateCode = errors.New("coupon service: duplicate code")

// ErrCouponCodeSpaceExhausted indicates code generation kept colliding.
var ErrCouponCodeSpaceExhausted = errors.New("coupon service: unable to generate a unique code")

// ErrCouponLimitExceeded indicates the usage limit was reached before the redemption was recorded.
var ErrCouponLimitExceeded = errors.New("coupon service: usage limit exceeded")

// CouponServiceDeps wires persistence and ambient dependencies for the coupon registry.
type CouponServiceDeps struct {
	Coupons     repositories.CouponRepository
	Redemptions repositories.RedemptionRepository
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)

	// CodeAlphabet and CodeLength shape generated codes; both optional.
	CodeAlphabet string
	CodeLength   int

	IDGenerator func() string
	// RandInt returns a uniform value in [0, n); overridable for tests.
	RandInt func(n int) int
}

type couponService struct {
	coupons     repositories.CouponRepository
	redemptions repositories.RedemptionRepository
	now         func() time.Time
	logger      func(context.Context, string, map[string]any)
	alphabet    string
	codeLength  int
	newID       func() string
	randInt     func(n int) int
}

// NewCouponService constructs a CouponService enforcing dependency validation.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errCouponRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCouponClockRequired
	}

	alphabet := strings.ToUpper(strings.TrimSpace(deps.CodeAlphabet))
	if alphabet == "" {
		alphabet = defaultCouponCodeAlphabet
	}
	codeLength := deps.CodeLength
	if codeLength <= 0 {
		codeLength = defaultCouponCodeLength
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	randInt := deps.RandInt
	if randInt == nil {
		randInt = cryptoRandInt
	}

	return &couponService{
		coupons:     deps.Coupons,
		redemptions: deps.Redemptions,
		now:         func() time.Time { return deps.Clock().UTC() },
		logger:      logger,
		alphabet:    alphabet,
		codeLength:  codeLength,
		newID:       newID,
		randInt:     randInt,
	}, nil
}

// Create registers a new coupon. No business validation happens here beyond
// structural checks; an inactive or already-expired coupon is storable.
func (s *couponService) Create(ctx context.Context, cmd CreateCouponCommand) (domain.Coupon, error) {
	if s == nil || s.coupons == nil {
		return domain.Coupon{}, ErrCouponUnavailable
	}

	if !cmd.Kind.Valid() {
		return domain.Coupon{}, ErrCouponInvalidInput
	}
	if cmd.Value <= 0 {
		return domain.Coupon{}, ErrCouponInvalidInput
	}
	if cmd.Kind == domain.DiscountPercentage && cmd.Value > 100 {
		return domain.Coupon{}, ErrCouponInvalidInput
	}
	if cmd.MinOrderAmount != nil && *cmd.MinOrderAmount < 0 {
		return domain.Coupon{}, ErrCouponInvalidInput
	}
	if cmd.MaxDiscountAmount != nil && *cmd.MaxDiscountAmount < 0 {
		return domain.Coupon{}, ErrCouponInvalidInput
	}
	if cmd.UsageLimit != nil && *cmd.UsageLimit < 0 {
		return domain.Coupon{}, ErrCouponInvalidInput
	}
	if !cmd.ValidFrom.IsZero() && !cmd.ValidUntil.IsZero() && cmd.ValidUntil.Before(cmd.ValidFrom) {
		return domain.Coupon{}, ErrCouponInvalidInput
	}

	explicitCode := normalizeCouponCode(cmd.Code)
	if len(explicitCode) > maxCouponCodeLength {
		return domain.Coupon{}, ErrCouponInvalidInput
	}

	now := s.now()
	coupon := domain.Coupon{
		Kind:                 cmd.Kind,
		Value:                cmd.Value,
		MinOrderAmount:       cloneInt64Ptr(cmd.MinOrderAmount),
		MaxDiscountAmount:    cloneInt64Ptr(cmd.MaxDiscountAmount),
		UsageLimit:           cloneIntPtr(cmd.UsageLimit),
		UsedCount:            0,
		ValidFrom:            cmd.ValidFrom.UTC(),
		ValidUntil:           cmd.ValidUntil.UTC(),
		IsActive:             cmd.IsActive,
		ApplicableCategories: normalizeTokens(cmd.ApplicableCategories),
		ApplicableProductIDs: normalizeTokens(cmd.ApplicableProductIDs),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if cmd.ValidFrom.IsZero() {
		coupon.ValidFrom = time.Time{}
	}
	if cmd.ValidUntil.IsZero() {
		coupon.ValidUntil = time.Time{}
	}

	attempts := 1
	if explicitCode == "" {
		attempts = maxCodeGenerationRetries
	}

	for attempt := 0; attempt < attempts; attempt++ {
		coupon.ID = s.newID()
		coupon.Code = explicitCode
		if coupon.Code == "" {
			coupon.Code = s.generateCode()
		}

		err := s.coupons.Insert(ctx, coupon)
		if err == nil {
			return coupon, nil
		}
		if repositories.IsCouponErrorCode(err, repositories.CouponErrorDuplicateCode) {
			if explicitCode != "" {
				return domain.Coupon{}, ErrCouponDuplicateCode
			}
			s.logger(ctx, "coupon.code_collision", map[string]any{"attempt": attempt + 1})
			continue
		}
		if repositories.IsCouponErrorCode(err, repositories.CouponErrorInvalidInput) {
			return domain.Coupon{}, ErrCouponInvalidInput
		}
		return domain.Coupon{}, s.translateRepoError(err)
	}
	return domain.Coupon{}, ErrCouponCodeSpaceExhausted
}

// Lookup finds a coupon by code. Matching is case-insensitive.
func (s *couponService) Lookup(ctx context.Context, code string) (domain.Coupon, error) {
	if s == nil || s.coupons == nil {
		return domain.Coupon{}, ErrCouponUnavailable
	}

	normalized := normalizeCouponCode(code)
	if normalized == "" {
		return domain.Coupon{}, ErrCouponInvalidInput
	}
	coupon, err := s.coupons.FindByCode(ctx, normalized)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.Coupon{}, ErrCouponNotFound
		}
		return domain.Coupon{}, s.translateRepoError(err)
	}
	return coupon, nil
}

// List returns all registered coupons ordered by creation time.
func (s *couponService) List(ctx context.Context) ([]domain.Coupon, error) {
	if s == nil || s.coupons == nil {
		return nil, ErrCouponUnavailable
	}
	coupons, err := s.coupons.List(ctx)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return coupons, nil
}

// Validate runs the rule pipeline in order and stops at the first failure.
// An invalid coupon is a result value, never an error.
func (s *couponService) Validate(ctx context.Context, code string, orderAmount int64, order OrderContext) (CouponValidation, error) {
	if s == nil || s.coupons == nil {
		return CouponValidation{}, ErrCouponUnavailable
	}
	if orderAmount < 0 {
		return CouponValidation{}, ErrCouponInvalidInput
	}

	normalized := normalizeCouponCode(code)
	if normalized == "" {
		return CouponValidation{Reason: ReasonInvalidCode}, nil
	}

	coupon, err := s.coupons.FindByCode(ctx, normalized)
	if err != nil {
		if isRepoNotFound(err) {
			return CouponValidation{Reason: ReasonInvalidCode}, nil
		}
		return CouponValidation{}, s.translateRepoError(err)
	}

	now := s.now()
	switch {
	case !coupon.IsActive:
		return CouponValidation{Reason: ReasonInactive, Coupon: coupon}, nil
	case !coupon.ValidFrom.IsZero() && now.Before(coupon.ValidFrom):
		return CouponValidation{Reason: ReasonNotYetValid, Coupon: coupon}, nil
	case coupon.ExpiredAt(now):
		return CouponValidation{Reason: ReasonExpired, Coupon: coupon}, nil
	case coupon.MinOrderAmount != nil && orderAmount < *coupon.MinOrderAmount:
		return CouponValidation{Reason: ReasonBelowMinimum, Coupon: coupon}, nil
	case coupon.Exhausted():
		return CouponValidation{Reason: ReasonLimitExceeded, Coupon: coupon}, nil
	case !couponApplies(coupon, order):
		return CouponValidation{Reason: ReasonNotApplicable, Coupon: coupon}, nil
	}

	return CouponValidation{
		Valid:    true,
		Coupon:   coupon,
		Discount: s.CalculateDiscount(coupon, orderAmount),
	}, nil
}

// CalculateDiscount computes the discount amount for an order total.
// Percentage discounts round half up; results are clamped to the coupon's
// max discount and never exceed the order amount.
func (s *couponService) CalculateDiscount(coupon domain.Coupon, orderAmount int64) int64 {
	if orderAmount <= 0 || coupon.Value <= 0 {
		return 0
	}

	var discount int64
	switch coupon.Kind {
	case domain.DiscountPercentage:
		discount = roundHalfUp(orderAmount*coupon.Value, 100)
	case domain.DiscountFixed:
		discount = coupon.Value
	default:
		return 0
	}

	if coupon.MaxDiscountAmount != nil && discount > *coupon.MaxDiscountAmount {
		discount = *coupon.MaxDiscountAmount
	}
	if discount > orderAmount {
		discount = orderAmount
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// Redeem records one use of the coupon. The usage counter is incremented
// atomically against the limit inside the repository, so two concurrent
// redemptions of the last slot cannot both succeed.
func (s *couponService) Redeem(ctx context.Context, cmd RedeemCouponCommand) (domain.CouponRedemption, error) {
	if s == nil || s.coupons == nil {
		return domain.CouponRedemption{}, ErrCouponUnavailable
	}

	normalized := normalizeCouponCode(cmd.Code)
	if normalized == "" || cmd.DiscountAmount < 0 {
		return domain.CouponRedemption{}, ErrCouponInvalidInput
	}

	coupon, err := s.coupons.FindByCode(ctx, normalized)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.CouponRedemption{}, ErrCouponNotFound
		}
		return domain.CouponRedemption{}, s.translateRepoError(err)
	}

	now := s.now()
	redemption := domain.CouponRedemption{
		ID:             s.newID(),
		CouponID:       coupon.ID,
		UserID:         strings.TrimSpace(cmd.UserID),
		OrderID:        strings.TrimSpace(cmd.OrderID),
		DiscountAmount: cmd.DiscountAmount,
		RedeemedAt:     now,
	}

	if _, err := s.coupons.Redeem(ctx, redemption, now); err != nil {
		switch {
		case repositories.IsCouponErrorCode(err, repositories.CouponErrorLimitExceeded):
			return domain.CouponRedemption{}, ErrCouponLimitExceeded
		case repositories.IsCouponErrorCode(err, repositories.CouponErrorInvalidInput):
			return domain.CouponRedemption{}, ErrCouponInvalidInput
		case isRepoNotFound(err):
			return domain.CouponRedemption{}, ErrCouponNotFound
		}
		return domain.CouponRedemption{}, s.translateRepoError(err)
	}

	s.logger(ctx, "coupon.redeemed", map[string]any{
		"coupon_id": coupon.ID,
		"order_id":  redemption.OrderID,
		"discount":  redemption.DiscountAmount,
	})
	return redemption, nil
}

// Stats aggregates registry-wide figures with a full scan. Intended for
// admin reporting, not hot paths.
func (s *couponService) Stats(ctx context.Context) (domain.CouponStats, error) {
	if s == nil || s.coupons == nil || s.redemptions == nil {
		return domain.CouponStats{}, ErrCouponUnavailable
	}

	coupons, err := s.coupons.List(ctx)
	if err != nil {
		return domain.CouponStats{}, s.translateRepoError(err)
	}
	redemptions, err := s.redemptions.ListAll(ctx)
	if err != nil {
		return domain.CouponStats{}, s.translateRepoError(err)
	}

	now := s.now()
	stats := domain.CouponStats{
		TotalCoupons:     len(coupons),
		TotalRedemptions: len(redemptions),
	}
	for _, coupon := range coupons {
		if coupon.ExpiredAt(now) {
			stats.ExpiredCoupons++
			continue
		}
		if coupon.IsActive {
			stats.ActiveCoupons++
		}
	}
	for _, redemption := range redemptions {
		stats.TotalDiscount += redemption.DiscountAmount
	}
	return stats, nil
}

// ListRedemptions returns the audit trail for one coupon.
func (s *couponService) ListRedemptions(ctx context.Context, couponID string) ([]domain.CouponRedemption, error) {
	if s == nil || s.redemptions == nil {
		return nil, ErrCouponUnavailable
	}
	id := strings.TrimSpace(couponID)
	if id == "" {
		return nil, ErrCouponInvalidInput
	}
	if _, err := s.coupons.FindByID(ctx, id); err != nil {
		if isRepoNotFound(err) {
			return nil, ErrCouponNotFound
		}
		return nil, s.translateRepoError(err)
	}
	records, err := s.redemptions.ListByCoupon(ctx, id)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return records, nil
}

func (s *couponService) generateCode() string {
	b := make([]byte, s.codeLength)
	for i := range b {
		b[i] = s.alphabet[s.randInt(len(s.alphabet))]
	}
	return string(b)
}

func (s *couponService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCouponNotFound
		case repoErr.IsConflict():
			return ErrCouponDuplicateCode
		}
	}
	return ErrCouponUnavailable
}

// couponApplies enforces optional category/product restrictions. A coupon
// without restrictions applies to any order; a restricted coupon needs at
// least one matching category or product in the order.
func couponApplies(coupon domain.Coupon, order OrderContext) bool {
	if len(coupon.ApplicableCategories) == 0 && len(coupon.ApplicableProductIDs) == 0 {
		return true
	}
	for _, category := range order.Categories {
		if containsFold(coupon.ApplicableCategories, category) {
			return true
		}
	}
	for _, productID := range order.ProductIDs {
		if containsFold(coupon.ApplicableProductIDs, productID) {
			return true
		}
	}
	return false
}

func containsFold(haystack []string, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	for _, candidate := range haystack {
		if strings.EqualFold(strings.TrimSpace(candidate), needle) {
			return true
		}
	}
	return false
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func normalizeTokens(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneInt64Ptr(v *int64) *int64 {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}

func cloneIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}

func cryptoRandInt(n int) int {
	if n <= 0 {
		return 0
	}
	value, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(value.Int64())
}
