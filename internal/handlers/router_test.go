package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRouterHealthEndpointsAlwaysMounted(t *testing.T) {
	router := NewRouter()

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, rr.Code)
		}
	}
}

func TestRouterUnregisteredGroupsReturnNotImplemented(t *testing.T) {
	router := NewRouter()

	paths := []string{
		"/api/v1/cart",
		"/api/v1/checkout/quote",
		"/api/v1/invoices/inv-1",
		"/api/v1/admin/coupons",
	}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("%s: expected status 501, got %d", path, rr.Code)
		}
	}
}

func TestRouterNotFoundEnvelope(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var body struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body.Error != errorNotFoundCode {
		t.Fatalf("expected code %q, got %q", errorNotFoundCode, body.Error)
	}
	if body.Status != http.StatusNotFound {
		t.Fatalf("expected status field 404, got %d", body.Status)
	}
}

func TestRouterMountsRegistrars(t *testing.T) {
	router := NewRouter(
		WithCartRoutes(func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		}),
		WithCheckoutRoutes(func(r chi.Router) {
			r.Post("/quote", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("cart: expected status 200, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/checkout/quote", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("checkout: expected status 200, got %d", rr.Code)
	}
}

func TestRouterCheckoutGroupMiddleware(t *testing.T) {
	router := NewRouter(
		WithCheckoutMiddlewares(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Guarded", "true")
				next.ServeHTTP(w, r)
			})
		}),
		WithCheckoutRoutes(func(r chi.Router) {
			r.Post("/complete", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusCreated)
			})
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/complete", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if rr.Header().Get("X-Guarded") != "true" {
		t.Fatalf("expected checkout middleware to run")
	}
}
