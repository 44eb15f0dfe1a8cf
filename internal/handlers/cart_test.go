package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/services"
)

type stubCartService struct {
	getCartFunc        func(ctx context.Context, sessionID string) (domain.Cart, error)
	addItemFunc        func(ctx context.Context, cmd services.AddItemCommand) (services.CartResult, error)
	removeItemFunc     func(ctx context.Context, cmd services.RemoveItemCommand) (services.CartResult, error)
	updateQuantityFunc func(ctx context.Context, cmd services.UpdateQuantityCommand) (services.CartResult, error)
	clearFunc          func(ctx context.Context, sessionID string) error
}

func (s *stubCartService) GetCart(ctx context.Context, sessionID string) (domain.Cart, error) {
	if s.getCartFunc != nil {
		return s.getCartFunc(ctx, sessionID)
	}
	return domain.Cart{}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddItemCommand) (services.CartResult, error) {
	if s.addItemFunc != nil {
		return s.addItemFunc(ctx, cmd)
	}
	return services.CartResult{}, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveItemCommand) (services.CartResult, error) {
	if s.removeItemFunc != nil {
		return s.removeItemFunc(ctx, cmd)
	}
	return services.CartResult{}, nil
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, cmd services.UpdateQuantityCommand) (services.CartResult, error) {
	if s.updateQuantityFunc != nil {
		return s.updateQuantityFunc(ctx, cmd)
	}
	return services.CartResult{}, nil
}

func (s *stubCartService) Clear(ctx context.Context, sessionID string) error {
	if s.clearFunc != nil {
		return s.clearFunc(ctx, sessionID)
	}
	return nil
}

func newCartRouter(service services.CartService) chi.Router {
	handler := NewCartHandlers(service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)
	return router
}

func TestCartHandlersGetCartSuccess(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	service := &stubCartService{
		getCartFunc: func(ctx context.Context, sessionID string) (domain.Cart, error) {
			if sessionID != "sess-7" {
				t.Fatalf("unexpected session id %q", sessionID)
			}
			return domain.Cart{
				SessionID: "sess-7",
				Currency:  "USD",
				Lines: []domain.CartLine{
					{
						ProductID: "prod-1",
						Name:      "Oak Desk",
						UnitPrice: 10000,
						Quantity:  2,
						Category:  "office",
						AddedAt:   now,
						UpdatedAt: now,
					},
				},
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(sessionHeader, "sess-7")
	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Cart.SessionID != "sess-7" {
		t.Fatalf("expected session sess-7, got %q", resp.Cart.SessionID)
	}
	if resp.Cart.ItemsCount != 2 || len(resp.Cart.Items) != 1 {
		t.Fatalf("expected 2 units in 1 line, got %d units in %d lines", resp.Cart.ItemsCount, len(resp.Cart.Items))
	}
	if resp.Cart.Subtotal != 20000 {
		t.Fatalf("expected subtotal 20000, got %d", resp.Cart.Subtotal)
	}
	if resp.Cart.Items[0].LineTotal != 20000 {
		t.Fatalf("expected line total 20000, got %d", resp.Cart.Items[0].LineTotal)
	}
}

func TestCartHandlersMissingSessionHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rr := httptest.NewRecorder()
	newCartRouter(&stubCartService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "session_required") {
		t.Fatalf("expected session_required error, got %s", rr.Body.String())
	}
}

func TestCartHandlersServiceUnavailable(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set(sessionHeader, "sess-7")
	rr := httptest.NewRecorder()
	newCartRouter(nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemSuccess(t *testing.T) {
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.AddItemCommand) (services.CartResult, error) {
			if cmd.SessionID != "sess-7" {
				t.Fatalf("unexpected session id %q", cmd.SessionID)
			}
			if cmd.ProductID != "prod-2" || cmd.Quantity != 3 || cmd.UnitPrice != 400 {
				t.Fatalf("unexpected command %+v", cmd)
			}
			if cmd.Variant != "blue" || cmd.Category != "kitchen" {
				t.Fatalf("unexpected variant/category %+v", cmd)
			}
			return services.CartResult{
				Cart: domain.Cart{
					SessionID: "sess-7",
					Currency:  "USD",
					Lines: []domain.CartLine{
						{ProductID: "prod-2", Name: "Mug", UnitPrice: 400, Quantity: 3, Variant: "blue"},
					},
				},
				Notice: services.NoticeItemAdded,
			}, nil
		},
	}

	body := `{"product_id":"prod-2","name":"Mug","unit_price":400,"quantity":3,"variant":"blue","category":"kitchen"}`
	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(body))
	req.Header.Set(sessionHeader, "sess-7")
	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Notice != string(services.NoticeItemAdded) {
		t.Fatalf("expected notice item_added, got %q", resp.Notice)
	}
}

func TestCartHandlersAddItemValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "missing product id", body: `{"name":"Mug","unit_price":400}`},
		{name: "missing name", body: `{"product_id":"prod-2","unit_price":400}`},
		{name: "negative price", body: `{"product_id":"prod-2","name":"Mug","unit_price":-1}`},
		{name: "zero quantity", body: `{"product_id":"prod-2","name":"Mug","unit_price":400,"quantity":0}`},
		{name: "unknown field", body: `{"product_id":"prod-2","name":"Mug","unit_price":400,"color":"red"}`},
		{name: "invalid json", body: `{not json`},
		{name: "empty body", body: ``},
	}

	router := newCartRouter(&stubCartService{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(tc.body))
			req.Header.Set(sessionHeader, "sess-7")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCartHandlersUpdateQuantity(t *testing.T) {
	service := &stubCartService{
		updateQuantityFunc: func(ctx context.Context, cmd services.UpdateQuantityCommand) (services.CartResult, error) {
			if cmd.ProductID != "prod-1" || cmd.Quantity != 5 || cmd.Variant != "oak" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return services.CartResult{
				Cart:   domain.Cart{SessionID: cmd.SessionID},
				Notice: services.NoticeQuantityUpdated,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/cart/items/prod-1", strings.NewReader(`{"quantity":5,"variant":"oak"}`))
	req.Header.Set(sessionHeader, "sess-7")
	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCartHandlersUpdateQuantityMissingLine(t *testing.T) {
	service := &stubCartService{
		updateQuantityFunc: func(ctx context.Context, cmd services.UpdateQuantityCommand) (services.CartResult, error) {
			return services.CartResult{
				Cart:   domain.Cart{SessionID: cmd.SessionID},
				Notice: services.NoticeItemNotFound,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/cart/items/prod-9", strings.NewReader(`{"quantity":1}`))
	req.Header.Set(sessionHeader, "sess-7")
	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Notice != string(services.NoticeItemNotFound) {
		t.Fatalf("expected notice item_not_found, got %q", resp.Notice)
	}
}

func TestCartHandlersRemoveItemVariantFromQuery(t *testing.T) {
	service := &stubCartService{
		removeItemFunc: func(ctx context.Context, cmd services.RemoveItemCommand) (services.CartResult, error) {
			if cmd.ProductID != "prod-1" || cmd.Variant != "oak" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return services.CartResult{
				Cart:   domain.Cart{SessionID: cmd.SessionID},
				Notice: services.NoticeItemRemoved,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/cart/items/prod-1?variant=oak", nil)
	req.Header.Set(sessionHeader, "sess-7")
	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	cleared := false
	service := &stubCartService{
		clearFunc: func(ctx context.Context, sessionID string) error {
			if sessionID != "sess-7" {
				t.Fatalf("unexpected session id %q", sessionID)
			}
			cleared = true
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/cart", nil)
	req.Header.Set(sessionHeader, "sess-7")
	rr := httptest.NewRecorder()
	newCartRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !cleared {
		t.Fatalf("expected clear to be invoked")
	}
}

func TestCartHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid input", err: services.ErrCartInvalidInput, status: http.StatusBadRequest},
		{name: "conflict", err: services.ErrCartConflict, status: http.StatusConflict},
		{name: "unavailable", err: services.ErrCartUnavailable, status: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubCartService{
				getCartFunc: func(ctx context.Context, sessionID string) (domain.Cart, error) {
					return domain.Cart{}, tc.err
				},
			}
			req := httptest.NewRequest(http.MethodGet, "/cart", nil)
			req.Header.Set(sessionHeader, "sess-7")
			rr := httptest.NewRecorder()
			newCartRouter(service).ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
		})
	}
}
