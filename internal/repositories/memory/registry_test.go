package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/repositories"
)

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func TestCartStoreRoundTrip(t *testing.T) {
	registry := NewRegistry()
	carts := registry.Carts()
	ctx := context.Background()

	cart := domain.Cart{
		SessionID: "sess-1",
		Lines: []domain.CartLine{
			{ProductID: "prod-1", Name: "Oak Desk", UnitPrice: 10000, Quantity: 1},
		},
	}
	if _, err := carts.Save(ctx, cart); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	loaded, err := carts.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if len(loaded.Lines) != 1 || loaded.Lines[0].ProductID != "prod-1" {
		t.Fatalf("unexpected cart %+v", loaded)
	}

	if err := carts.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := carts.Get(ctx, "sess-1"); !isNotFound(err) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
}

func TestCartStoreCorruptSnapshotReadsAsNotFound(t *testing.T) {
	registry := NewRegistry()
	registry.carts["sess-1"] = []byte("{not json")

	if _, err := registry.Carts().Get(context.Background(), "sess-1"); !isNotFound(err) {
		t.Fatalf("expected not-found for corrupt snapshot, got %v", err)
	}
}

func TestCartStoreSaveRewritesWholeSnapshot(t *testing.T) {
	registry := NewRegistry()
	carts := registry.Carts()
	ctx := context.Background()

	first := domain.Cart{
		SessionID: "sess-1",
		Lines: []domain.CartLine{
			{ProductID: "prod-1", Quantity: 1},
			{ProductID: "prod-2", Quantity: 2},
		},
	}
	if _, err := carts.Save(ctx, first); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	second := domain.Cart{
		SessionID: "sess-1",
		Lines:     []domain.CartLine{{ProductID: "prod-3", Quantity: 5}},
	}
	if _, err := carts.Save(ctx, second); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	loaded, err := carts.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if len(loaded.Lines) != 1 || loaded.Lines[0].ProductID != "prod-3" {
		t.Fatalf("expected snapshot fully replaced, got %+v", loaded)
	}
}

func TestCouponStoreInsertRejectsDuplicateCode(t *testing.T) {
	registry := NewRegistry()
	coupons := registry.Coupons()
	ctx := context.Background()

	if err := coupons.Insert(ctx, domain.Coupon{ID: "c1", Code: "SPRING25"}); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	err := coupons.Insert(ctx, domain.Coupon{ID: "c2", Code: "spring25"})
	if !repositories.IsCouponErrorCode(err, repositories.CouponErrorDuplicateCode) {
		t.Fatalf("expected duplicate code error, got %v", err)
	}
}

func TestCouponStoreFindByCodeIsCaseInsensitive(t *testing.T) {
	registry := NewRegistry()
	coupons := registry.Coupons()
	ctx := context.Background()

	if err := coupons.Insert(ctx, domain.Coupon{ID: "c1", Code: "Spring25"}); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	coupon, err := coupons.FindByCode(ctx, "SPRING25")
	if err != nil {
		t.Fatalf("unexpected lookup error: %v", err)
	}
	if coupon.ID != "c1" || coupon.Code != "SPRING25" {
		t.Fatalf("unexpected coupon %+v", coupon)
	}
}

func TestCouponStoreListOrdersByCreation(t *testing.T) {
	registry := NewRegistry()
	coupons := registry.Coupons()
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"c3", "c1", "c2"} {
		offset := map[string]int{"c1": 0, "c2": 1, "c3": 2}[id]
		err := coupons.Insert(ctx, domain.Coupon{
			ID:        id,
			Code:      "CODE-" + id,
			CreatedAt: base.Add(time.Duration(offset) * time.Hour),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	listed, err := coupons.List(ctx)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(listed) != 3 || listed[0].ID != "c1" || listed[2].ID != "c3" {
		t.Fatalf("expected creation order, got %+v", listed)
	}
}

func TestCouponStoreRedeemIncrementsAndAppends(t *testing.T) {
	registry := NewRegistry()
	coupons := registry.Coupons()
	ctx := context.Background()
	limit := 2

	if err := coupons.Insert(ctx, domain.Coupon{ID: "c1", Code: "SPRING25", UsageLimit: &limit}); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	updated, err := coupons.Redeem(ctx, domain.CouponRedemption{ID: "r1", CouponID: "c1", DiscountAmount: 500}, now)
	if err != nil {
		t.Fatalf("unexpected redeem error: %v", err)
	}
	if updated.UsedCount != 1 {
		t.Fatalf("expected used count 1, got %d", updated.UsedCount)
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Fatalf("expected updatedAt stamped, got %s", updated.UpdatedAt)
	}

	records, err := registry.Redemptions().ListByCoupon(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(records) != 1 || records[0].ID != "r1" {
		t.Fatalf("expected redemption recorded, got %+v", records)
	}
}

func TestCouponStoreRedeemStopsAtLimit(t *testing.T) {
	registry := NewRegistry()
	coupons := registry.Coupons()
	ctx := context.Background()
	limit := 1

	if err := coupons.Insert(ctx, domain.Coupon{ID: "c1", Code: "LAST", UsageLimit: &limit}); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	now := time.Now().UTC()
	if _, err := coupons.Redeem(ctx, domain.CouponRedemption{ID: "r1", CouponID: "c1"}, now); err != nil {
		t.Fatalf("first redemption should succeed: %v", err)
	}
	_, err := coupons.Redeem(ctx, domain.CouponRedemption{ID: "r2", CouponID: "c1"}, now)
	if !repositories.IsCouponErrorCode(err, repositories.CouponErrorLimitExceeded) {
		t.Fatalf("expected limit exceeded, got %v", err)
	}

	records, _ := registry.Redemptions().ListAll(ctx)
	if len(records) != 1 {
		t.Fatalf("expected the failed redemption to write nothing, got %d records", len(records))
	}
}

func TestCouponStoreConcurrentRedeemHonoursLimit(t *testing.T) {
	registry := NewRegistry()
	coupons := registry.Coupons()
	ctx := context.Background()
	limit := 5

	if err := coupons.Insert(ctx, domain.Coupon{ID: "c1", Code: "RACE", UsageLimit: &limit}); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	now := time.Now().UTC()
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := coupons.Redeem(ctx, domain.CouponRedemption{
				ID:       "r-" + string(rune('a'+n)),
				CouponID: "c1",
			}, now)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		if !repositories.IsCouponErrorCode(err, repositories.CouponErrorLimitExceeded) {
			t.Fatalf("unexpected redeem error: %v", err)
		}
	}
	if succeeded != limit {
		t.Fatalf("expected exactly %d successful redemptions, got %d", limit, succeeded)
	}

	coupon, err := coupons.FindByID(ctx, "c1")
	if err != nil {
		t.Fatalf("unexpected find error: %v", err)
	}
	if coupon.UsedCount != limit {
		t.Fatalf("expected used count %d, got %d", limit, coupon.UsedCount)
	}
}

func TestInvoiceStoreNumberExists(t *testing.T) {
	registry := NewRegistry()
	invoices := registry.Invoices()
	ctx := context.Background()

	exists, err := invoices.NumberExists(ctx, "INV-20260715-001")
	if err != nil || exists {
		t.Fatalf("expected unknown number, got exists=%v err=%v", exists, err)
	}

	err = invoices.Insert(ctx, domain.Invoice{ID: "inv-1", Number: "INV-20260715-001"})
	if err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}

	exists, err = invoices.NumberExists(ctx, "INV-20260715-001")
	if err != nil || !exists {
		t.Fatalf("expected number recorded, got exists=%v err=%v", exists, err)
	}

	loaded, err := invoices.FindByID(ctx, "inv-1")
	if err != nil || loaded.Number != "INV-20260715-001" {
		t.Fatalf("unexpected invoice %+v err=%v", loaded, err)
	}
}
