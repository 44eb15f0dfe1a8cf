package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/clovermart/api/internal/domain"
	pfirestore "github.com/clovermart/api/internal/platform/firestore"
	"github.com/clovermart/api/internal/repositories"
)

const (
	couponCollection     = "coupons"
	couponCodeCollection = "couponCodes"
	redemptionCollection = "couponRedemptions"
)

type couponDocument struct {
	Code                 string    `firestore:"code"`
	Kind                 string    `firestore:"kind"`
	Value                int64     `firestore:"value"`
	MinOrderAmount       *int64    `firestore:"minOrderAmount,omitempty"`
	MaxDiscountAmount    *int64    `firestore:"maxDiscountAmount,omitempty"`
	UsageLimit           *int      `firestore:"usageLimit,omitempty"`
	UsedCount            int       `firestore:"usedCount"`
	ValidFrom            time.Time `firestore:"validFrom,omitempty"`
	ValidUntil           time.Time `firestore:"validUntil,omitempty"`
	IsActive             bool      `firestore:"isActive"`
	ApplicableCategories []string  `firestore:"applicableCategories,omitempty"`
	ApplicableProductIDs []string  `firestore:"applicableProductIds,omitempty"`
	CreatedAt            time.Time `firestore:"createdAt"`
	UpdatedAt            time.Time `firestore:"updatedAt"`
}

// couponCodeDocument is the uniqueness index entry for a normalised code.
type couponCodeDocument struct {
	CouponID  string    `firestore:"couponId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type redemptionDocument struct {
	CouponID       string    `firestore:"couponId"`
	UserID         string    `firestore:"userId,omitempty"`
	OrderID        string    `firestore:"orderId,omitempty"`
	DiscountAmount int64     `firestore:"discountAmount"`
	RedeemedAt     time.Time `firestore:"redeemedAt"`
}

// CouponRepository maintains coupon definitions in Firestore. Code uniqueness
// is enforced through an index collection keyed by the normalised code, and
// redemption runs inside a transaction so the usage counter can never pass
// its limit.
type CouponRepository struct {
	provider *pfirestore.Provider
	coupons  *pfirestore.BaseRepository[couponDocument]
	codes    *pfirestore.BaseRepository[couponCodeDocument]
	records  *pfirestore.BaseRepository[redemptionDocument]
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{
		provider: provider,
		coupons:  pfirestore.NewBaseRepository[couponDocument](provider, couponCollection, nil, nil),
		codes:    pfirestore.NewBaseRepository[couponCodeDocument](provider, couponCodeCollection, nil, nil),
		records:  pfirestore.NewBaseRepository[redemptionDocument](provider, redemptionCollection, nil, nil),
	}, nil
}

// Insert stores a new coupon, claiming its code in the same transaction.
func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.provider == nil {
		return errors.New("coupon repository not initialised")
	}
	id := strings.TrimSpace(coupon.ID)
	code := normalizeCode(coupon.Code)
	if id == "" || code == "" {
		return repositories.NewCouponError(repositories.CouponErrorInvalidInput, "coupon id and code are required", nil)
	}
	coupon.Code = code

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		codeRef, err := r.codes.DocumentRef(ctx, code)
		if err != nil {
			return err
		}
		couponRef, err := r.coupons.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		_, err = tx.Get(codeRef)
		switch status.Code(err) {
		case codes.NotFound:
			// code is free
		case codes.OK:
			return repositories.NewCouponError(repositories.CouponErrorDuplicateCode, fmt.Sprintf("coupon code %s already exists", code), nil)
		default:
			return err
		}

		if err := tx.Create(codeRef, couponCodeDocument{CouponID: id, CreatedAt: coupon.CreatedAt.UTC()}); err != nil {
			return err
		}
		return tx.Create(couponRef, encodeCoupon(coupon))
	})
	if err != nil {
		var couponErr *repositories.CouponError
		if errors.As(err, &couponErr) {
			return couponErr
		}
		return pfirestore.WrapError("coupons.insert", err)
	}
	return nil
}

// Update rewrites a coupon definition. The code is immutable once claimed.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.coupons == nil {
		return errors.New("coupon repository not initialised")
	}
	id := strings.TrimSpace(coupon.ID)
	if id == "" {
		return repositories.NewCouponError(repositories.CouponErrorInvalidInput, "coupon id is required", nil)
	}

	existing, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if code := normalizeCode(coupon.Code); code != "" && code != existing.Code {
		return repositories.NewCouponError(repositories.CouponErrorInvalidInput, "coupon code cannot be changed", nil)
	}
	coupon.Code = existing.Code

	if _, err := r.coupons.Set(ctx, id, encodeCoupon(coupon)); err != nil {
		return err
	}
	return nil
}

// FindByID loads a coupon by its identifier.
func (r *CouponRepository) FindByID(ctx context.Context, couponID string) (domain.Coupon, error) {
	if r == nil || r.coupons == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	id := strings.TrimSpace(couponID)
	if id == "" {
		return domain.Coupon{}, pfirestore.NotFoundError("coupons.find", errors.New("coupon id is required"))
	}
	doc, err := r.coupons.Get(ctx, id)
	if err != nil {
		return domain.Coupon{}, err
	}
	return decodeCoupon(doc.ID, doc.Data), nil
}

// FindByCode resolves the code index and loads the coupon behind it.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.codes == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	normalized := normalizeCode(code)
	if normalized == "" {
		return domain.Coupon{}, pfirestore.NotFoundError("coupons.find_by_code", errors.New("coupon code is required"))
	}
	index, err := r.codes.Get(ctx, normalized)
	if err != nil {
		return domain.Coupon{}, err
	}
	return r.FindByID(ctx, index.Data.CouponID)
}

// List returns all coupons ordered by creation time.
func (r *CouponRepository) List(ctx context.Context) ([]domain.Coupon, error) {
	if r == nil || r.coupons == nil {
		return nil, errors.New("coupon repository not initialised")
	}
	docs, err := r.coupons.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Coupon, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeCoupon(doc.ID, doc.Data))
	}
	return out, nil
}

// Redeem increments the usage counter against the limit and appends the
// redemption record in one transaction. When the limit is already reached
// nothing is written.
func (r *CouponRepository) Redeem(ctx context.Context, redemption domain.CouponRedemption, now time.Time) (domain.Coupon, error) {
	if r == nil || r.provider == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	couponID := strings.TrimSpace(redemption.CouponID)
	recordID := strings.TrimSpace(redemption.ID)
	if couponID == "" || recordID == "" {
		return domain.Coupon{}, repositories.NewCouponError(repositories.CouponErrorInvalidInput, "redemption id and coupon id are required", nil)
	}

	var redeemed domain.Coupon
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		couponRef, err := r.coupons.DocumentRef(ctx, couponID)
		if err != nil {
			return err
		}
		recordRef, err := r.records.DocumentRef(ctx, recordID)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(couponRef)
		if err != nil {
			return err
		}
		var doc couponDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore coupons decode %s: %w", couponID, err)
		}

		coupon := decodeCoupon(couponID, doc)
		if coupon.Exhausted() {
			return repositories.NewCouponError(repositories.CouponErrorLimitExceeded, fmt.Sprintf("coupon %s usage limit reached", couponID), nil)
		}

		doc.UsedCount++
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(couponRef, doc); err != nil {
			return err
		}
		if err := tx.Create(recordRef, redemptionDocument{
			CouponID:       couponID,
			UserID:         strings.TrimSpace(redemption.UserID),
			OrderID:        strings.TrimSpace(redemption.OrderID),
			DiscountAmount: redemption.DiscountAmount,
			RedeemedAt:     redemption.RedeemedAt.UTC(),
		}); err != nil {
			return err
		}

		redeemed = decodeCoupon(couponID, doc)
		return nil
	})
	if err != nil {
		var couponErr *repositories.CouponError
		if errors.As(err, &couponErr) {
			return domain.Coupon{}, couponErr
		}
		return domain.Coupon{}, pfirestore.WrapError("coupons.redeem", err)
	}
	return redeemed, nil
}

func encodeCoupon(coupon domain.Coupon) couponDocument {
	return couponDocument{
		Code:                 coupon.Code,
		Kind:                 string(coupon.Kind),
		Value:                coupon.Value,
		MinOrderAmount:       coupon.MinOrderAmount,
		MaxDiscountAmount:    coupon.MaxDiscountAmount,
		UsageLimit:           coupon.UsageLimit,
		UsedCount:            coupon.UsedCount,
		ValidFrom:            coupon.ValidFrom.UTC(),
		ValidUntil:           coupon.ValidUntil.UTC(),
		IsActive:             coupon.IsActive,
		ApplicableCategories: coupon.ApplicableCategories,
		ApplicableProductIDs: coupon.ApplicableProductIDs,
		CreatedAt:            coupon.CreatedAt.UTC(),
		UpdatedAt:            coupon.UpdatedAt.UTC(),
	}
}

func decodeCoupon(id string, doc couponDocument) domain.Coupon {
	return domain.Coupon{
		ID:                   id,
		Code:                 doc.Code,
		Kind:                 domain.DiscountKind(doc.Kind),
		Value:                doc.Value,
		MinOrderAmount:       doc.MinOrderAmount,
		MaxDiscountAmount:    doc.MaxDiscountAmount,
		UsageLimit:           doc.UsageLimit,
		UsedCount:            doc.UsedCount,
		ValidFrom:            doc.ValidFrom,
		ValidUntil:           doc.ValidUntil,
		IsActive:             doc.IsActive,
		ApplicableCategories: doc.ApplicableCategories,
		ApplicableProductIDs: doc.ApplicableProductIDs,
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)
