package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/clovermart/api/internal/domain"
	pfirestore "github.com/clovermart/api/internal/platform/firestore"
	"github.com/clovermart/api/internal/repositories"
)

const cartCollection = "carts"

type cartLineDocument struct {
	ProductID string    `firestore:"productId"`
	Name      string    `firestore:"name"`
	UnitPrice int64     `firestore:"unitPrice"`
	Quantity  int       `firestore:"quantity"`
	ImageRef  string    `firestore:"imageRef,omitempty"`
	Variant   string    `firestore:"variant,omitempty"`
	Category  string    `firestore:"category,omitempty"`
	AddedAt   time.Time `firestore:"addedAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type cartDocument struct {
	Currency  string             `firestore:"currency,omitempty"`
	Lines     []cartLineDocument `firestore:"lines"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

// CartRepository persists full cart snapshots keyed by session ID. Every save
// rewrites the whole document; a snapshot that no longer decodes reads back
// as not-found so the caller falls back to an empty cart.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	decode := func(_ context.Context, snap *firestore.DocumentSnapshot) (cartDocument, error) {
		var doc cartDocument
		if err := snap.DataTo(&doc); err != nil {
			return cartDocument{}, pfirestore.NotFoundError(
				"carts.decode",
				fmt.Errorf("cart snapshot unreadable: %w", err),
			)
		}
		return doc, nil
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, decode)
	return &CartRepository{base: base}, nil
}

// Get loads the cart snapshot for the session.
func (r *CartRepository) Get(ctx context.Context, sessionID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return domain.Cart{}, errors.New("cart repository: session id is required")
	}

	doc, err := r.base.Get(ctx, sid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := domain.Cart{
		SessionID: sid,
		Currency:  strings.ToUpper(strings.TrimSpace(doc.Data.Currency)),
		Lines:     make([]domain.CartLine, 0, len(doc.Data.Lines)),
		CreatedAt: doc.Data.CreatedAt,
		UpdatedAt: doc.Data.UpdatedAt,
	}
	for _, line := range doc.Data.Lines {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			ImageRef:  line.ImageRef,
			Variant:   line.Variant,
			Category:  line.Category,
			AddedAt:   line.AddedAt,
			UpdatedAt: line.UpdatedAt,
		})
	}
	return cart, nil
}

// Save rewrites the whole snapshot for the session.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	sid := strings.TrimSpace(cart.SessionID)
	if sid == "" {
		return domain.Cart{}, errors.New("cart repository: session id is required")
	}

	doc := cartDocument{
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Lines:     make([]cartLineDocument, 0, len(cart.Lines)),
		CreatedAt: cart.CreatedAt.UTC(),
		UpdatedAt: cart.UpdatedAt.UTC(),
	}
	for _, line := range cart.Lines {
		doc.Lines = append(doc.Lines, cartLineDocument{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			ImageRef:  line.ImageRef,
			Variant:   line.Variant,
			Category:  line.Category,
			AddedAt:   line.AddedAt.UTC(),
			UpdatedAt: line.UpdatedAt.UTC(),
		})
	}

	if _, err := r.base.Set(ctx, sid, doc); err != nil {
		return domain.Cart{}, err
	}
	saved := cart
	saved.SessionID = sid
	saved.Currency = doc.Currency
	return saved, nil
}

// Delete removes the snapshot. Deleting a missing snapshot is not an error.
func (r *CartRepository) Delete(ctx context.Context, sessionID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return nil
	}
	return r.base.Delete(ctx, sid)
}

var _ repositories.CartRepository = (*CartRepository)(nil)
