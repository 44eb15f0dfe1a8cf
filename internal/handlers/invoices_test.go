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

type stubInvoiceService struct {
	issueFunc  func(ctx context.Context, cmd services.IssueInvoiceCommand) (domain.Invoice, error)
	getFunc    func(ctx context.Context, invoiceID string) (domain.Invoice, error)
	renderFunc func(ctx context.Context, invoiceID string) (services.InvoiceDocument, error)
}

func (s *stubInvoiceService) Issue(ctx context.Context, cmd services.IssueInvoiceCommand) (domain.Invoice, error) {
	if s.issueFunc != nil {
		return s.issueFunc(ctx, cmd)
	}
	return domain.Invoice{}, nil
}

func (s *stubInvoiceService) Get(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, invoiceID)
	}
	return domain.Invoice{}, nil
}

func (s *stubInvoiceService) Render(ctx context.Context, invoiceID string) (services.InvoiceDocument, error) {
	if s.renderFunc != nil {
		return s.renderFunc(ctx, invoiceID)
	}
	return services.InvoiceDocument{}, nil
}

func newInvoiceRouter(service services.InvoiceService) chi.Router {
	handler := NewInvoiceHandlers(service)
	router := chi.NewRouter()
	router.Route("/invoices", handler.Routes)
	return router
}

func TestInvoiceHandlersGetInvoice(t *testing.T) {
	issuedAt := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	service := &stubInvoiceService{
		getFunc: func(ctx context.Context, invoiceID string) (domain.Invoice, error) {
			if invoiceID != "inv-1" {
				t.Fatalf("unexpected invoice id %q", invoiceID)
			}
			return domain.Invoice{
				ID:           "inv-1",
				Number:       "INV-20260315-042",
				OrderID:      "order-777",
				CustomerName: "Dana Smith",
				Currency:     "USD",
				Lines: []domain.InvoiceLine{
					{ProductID: "prod-1", Name: "Oak Desk", Quantity: 1, UnitPrice: 10000, Total: 10000},
				},
				Totals:   domain.OrderTotals{Subtotal: 10000, Tax: 800, Shipping: 500, Total: 11300},
				IssuedAt: issuedAt,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/invoices/inv-1", nil)
	rr := httptest.NewRecorder()
	newInvoiceRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp invoiceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Invoice.Number != "INV-20260315-042" || len(resp.Invoice.Lines) != 1 {
		t.Fatalf("unexpected invoice %+v", resp.Invoice)
	}
	if resp.Invoice.Totals.Total != 11300 {
		t.Fatalf("expected total 11300, got %d", resp.Invoice.Totals.Total)
	}
}

func TestInvoiceHandlersGetInvoiceNotFound(t *testing.T) {
	service := &stubInvoiceService{
		getFunc: func(ctx context.Context, invoiceID string) (domain.Invoice, error) {
			return domain.Invoice{}, services.ErrInvoiceNotFound
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/invoices/missing", nil)
	rr := httptest.NewRecorder()
	newInvoiceRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestInvoiceHandlersDownloadDocument(t *testing.T) {
	service := &stubInvoiceService{
		renderFunc: func(ctx context.Context, invoiceID string) (services.InvoiceDocument, error) {
			return services.InvoiceDocument{
				InvoiceID:   "inv-1",
				Number:      "INV-20260315-042",
				FileName:    "inv-20260315-042-dana-smith.txt",
				ContentType: "text/plain; charset=utf-8",
				Content:     []byte("INVOICE INV-20260315-042\n"),
				StoredAt:    "gs://invoices/invoices/orders/order-777/inv-20260315-042-dana-smith.txt",
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/invoices/inv-1/document", nil)
	rr := httptest.NewRecorder()
	newInvoiceRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text/plain content type, got %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "inv-20260315-042-dana-smith.txt") {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	if loc := rr.Header().Get("X-Document-Location"); !strings.HasPrefix(loc, "gs://") {
		t.Fatalf("expected stored location header, got %q", loc)
	}
	if !strings.Contains(rr.Body.String(), "INVOICE INV-20260315-042") {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestInvoiceHandlersRenderFailure(t *testing.T) {
	service := &stubInvoiceService{
		renderFunc: func(ctx context.Context, invoiceID string) (services.InvoiceDocument, error) {
			return services.InvoiceDocument{}, services.ErrInvoiceRenderingFailed
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/invoices/inv-1/document", nil)
	rr := httptest.NewRecorder()
	newInvoiceRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "invoice_rendering_failed") {
		t.Fatalf("expected invoice_rendering_failed, got %s", rr.Body.String())
	}
}
