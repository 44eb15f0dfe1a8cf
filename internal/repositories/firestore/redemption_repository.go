package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/clovermart/api/internal/domain"
	pfirestore "github.com/clovermart/api/internal/platform/firestore"
	"github.com/clovermart/api/internal/repositories"
)

// RedemptionRepository reads the append-only redemption audit trail. Records
// are written exclusively by CouponRepository.Redeem.
type RedemptionRepository struct {
	base *pfirestore.BaseRepository[redemptionDocument]
}

// NewRedemptionRepository constructs a Firestore-backed redemption reader.
func NewRedemptionRepository(provider *pfirestore.Provider) (*RedemptionRepository, error) {
	if provider == nil {
		return nil, errors.New("redemption repository requires firestore provider")
	}
	return &RedemptionRepository{
		base: pfirestore.NewBaseRepository[redemptionDocument](provider, redemptionCollection, nil, nil),
	}, nil
}

// ListByCoupon returns all redemptions recorded for one coupon.
func (r *RedemptionRepository) ListByCoupon(ctx context.Context, couponID string) ([]domain.CouponRedemption, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("redemption repository not initialised")
	}
	id := strings.TrimSpace(couponID)
	if id == "" {
		return nil, pfirestore.NotFoundError("redemptions.list", errors.New("coupon id is required"))
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("couponId", "==", id).OrderBy("redeemedAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	return decodeRedemptions(docs), nil
}

// ListAll returns every redemption ordered by time.
func (r *RedemptionRepository) ListAll(ctx context.Context) ([]domain.CouponRedemption, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("redemption repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("redeemedAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	return decodeRedemptions(docs), nil
}

func decodeRedemptions(docs []pfirestore.Document[redemptionDocument]) []domain.CouponRedemption {
	out := make([]domain.CouponRedemption, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.CouponRedemption{
			ID:             doc.ID,
			CouponID:       doc.Data.CouponID,
			UserID:         doc.Data.UserID,
			OrderID:        doc.Data.OrderID,
			DiscountAmount: doc.Data.DiscountAmount,
			RedeemedAt:     doc.Data.RedeemedAt,
		})
	}
	return out
}

var _ repositories.RedemptionRepository = (*RedemptionRepository)(nil)
