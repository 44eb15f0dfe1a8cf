package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const (
	maxCartLineQuantity = 999
	maxCartLines        = 200
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// CartServiceDeps wires the repository and ambient dependencies for cart operations.
type CartServiceDeps struct {
	Repository      repositories.CartRepository
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
}

type cartService struct {
	repo     repositories.CartRepository
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = "USD"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		repo:     deps.Repository,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: currency,
		logger:   logger,
	}, nil
}

// GetCart rehydrates the session cart. A missing or unreadable snapshot comes
// back as a fresh empty cart rather than an error.
func (s *cartService) GetCart(ctx context.Context, sessionID string) (domain.Cart, error) {
	if s == nil || s.repo == nil {
		return domain.Cart{}, ErrCartUnavailable
	}

	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return domain.Cart{}, ErrCartInvalidInput
	}

	cart, err := s.repo.Get(ctx, sid)
	if err != nil {
		if isRepoNotFound(err) {
			s.logger(ctx, "cart.snapshot_missing", map[string]any{"session_id": sid})
			return s.newCart(sid), nil
		}
		return domain.Cart{}, s.translateRepoError(err)
	}
	return s.normalizeCart(cart, sid), nil
}

// AddItem merges the given product line into the cart, adding quantities when
// the same product+variant already exists.
func (s *cartService) AddItem(ctx context.Context, cmd AddItemCommand) (CartResult, error) {
	if s == nil || s.repo == nil {
		return CartResult{}, ErrCartUnavailable
	}

	sid := strings.TrimSpace(cmd.SessionID)
	productID := strings.TrimSpace(cmd.ProductID)
	if sid == "" || productID == "" {
		return CartResult{}, ErrCartInvalidInput
	}
	if cmd.Quantity <= 0 || cmd.Quantity > maxCartLineQuantity {
		return CartResult{}, ErrCartInvalidInput
	}
	if cmd.UnitPrice < 0 {
		return CartResult{}, ErrCartInvalidInput
	}

	cart, err := s.GetCart(ctx, sid)
	if err != nil {
		return CartResult{}, err
	}

	now := s.now()
	line := domain.CartLine{
		ProductID: productID,
		Name:      strings.TrimSpace(cmd.Name),
		UnitPrice: cmd.UnitPrice,
		Quantity:  cmd.Quantity,
		Variant:   strings.TrimSpace(cmd.Variant),
		Category:  strings.TrimSpace(cmd.Category),
		ImageRef:  strings.TrimSpace(cmd.ImageRef),
		AddedAt:   now,
		UpdatedAt: now,
	}

	notice := NoticeItemAdded
	if idx := cart.FindLine(line.Key()); idx >= 0 {
		existing := &cart.Lines[idx]
		existing.Quantity += cmd.Quantity
		if existing.Quantity > maxCartLineQuantity {
			existing.Quantity = maxCartLineQuantity
		}
		existing.UnitPrice = cmd.UnitPrice
		existing.UpdatedAt = now
		notice = NoticeQuantityIncreased
	} else {
		if len(cart.Lines) >= maxCartLines {
			return CartResult{}, ErrCartInvalidInput
		}
		cart.Lines = append(cart.Lines, line)
	}

	saved, err := s.save(ctx, cart, now)
	if err != nil {
		return CartResult{}, err
	}
	return CartResult{Cart: saved, Notice: notice}, nil
}

// RemoveItem deletes the matching line. Removing an absent line is a no-op
// reported through the notice, never a failed request.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveItemCommand) (CartResult, error) {
	if s == nil || s.repo == nil {
		return CartResult{}, ErrCartUnavailable
	}

	sid := strings.TrimSpace(cmd.SessionID)
	productID := strings.TrimSpace(cmd.ProductID)
	if sid == "" || productID == "" {
		return CartResult{}, ErrCartInvalidInput
	}

	cart, err := s.GetCart(ctx, sid)
	if err != nil {
		return CartResult{}, err
	}

	key := domain.LineKey{ProductID: productID, Variant: strings.TrimSpace(cmd.Variant)}
	idx := cart.FindLine(key)
	if idx < 0 {
		return CartResult{Cart: cart, Notice: NoticeItemNotFound}, nil
	}

	cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
	saved, err := s.save(ctx, cart, s.now())
	if err != nil {
		return CartResult{}, err
	}
	return CartResult{Cart: saved, Notice: NoticeItemRemoved}, nil
}

// UpdateQuantity sets the absolute quantity of an existing line. Zero removes it.
func (s *cartService) UpdateQuantity(ctx context.Context, cmd UpdateQuantityCommand) (CartResult, error) {
	if s == nil || s.repo == nil {
		return CartResult{}, ErrCartUnavailable
	}

	sid := strings.TrimSpace(cmd.SessionID)
	productID := strings.TrimSpace(cmd.ProductID)
	if sid == "" || productID == "" {
		return CartResult{}, ErrCartInvalidInput
	}
	if cmd.Quantity < 0 || cmd.Quantity > maxCartLineQuantity {
		return CartResult{}, ErrCartInvalidInput
	}

	if cmd.Quantity == 0 {
		return s.RemoveItem(ctx, RemoveItemCommand{SessionID: sid, ProductID: productID, Variant: cmd.Variant})
	}

	cart, err := s.GetCart(ctx, sid)
	if err != nil {
		return CartResult{}, err
	}

	key := domain.LineKey{ProductID: productID, Variant: strings.TrimSpace(cmd.Variant)}
	idx := cart.FindLine(key)
	if idx < 0 {
		return CartResult{Cart: cart, Notice: NoticeItemNotFound}, nil
	}

	now := s.now()
	cart.Lines[idx].Quantity = cmd.Quantity
	cart.Lines[idx].UpdatedAt = now

	saved, err := s.save(ctx, cart, now)
	if err != nil {
		return CartResult{}, err
	}
	return CartResult{Cart: saved, Notice: NoticeQuantityUpdated}, nil
}

// Clear empties the cart and removes the persisted snapshot.
func (s *cartService) Clear(ctx context.Context, sessionID string) error {
	if s == nil || s.repo == nil {
		return ErrCartUnavailable
	}

	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return ErrCartInvalidInput
	}

	if err := s.repo.Delete(ctx, sid); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) save(ctx context.Context, cart domain.Cart, now time.Time) (domain.Cart, error) {
	cart.UpdatedAt = now
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	saved, err := s.repo.Save(ctx, cart)
	if err != nil {
		return domain.Cart{}, s.translateRepoError(err)
	}
	return s.normalizeCart(saved, cart.SessionID), nil
}

func (s *cartService) newCart(sessionID string) domain.Cart {
	now := s.now()
	return domain.Cart{
		SessionID: sessionID,
		Currency:  s.currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *cartService) normalizeCart(cart domain.Cart, sessionID string) domain.Cart {
	cart.SessionID = sessionID
	if strings.TrimSpace(cart.Currency) == "" {
		cart.Currency = s.currency
	}
	lines := cart.Lines[:0]
	for _, line := range cart.Lines {
		if strings.TrimSpace(line.ProductID) == "" || line.Quantity <= 0 {
			continue
		}
		lines = append(lines, line)
	}
	cart.Lines = lines
	return cart
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsConflict():
			return ErrCartConflict
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
	}
	return ErrCartUnavailable
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
