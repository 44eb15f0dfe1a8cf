package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/clovermart/api/internal/domain"
)

type stubInvoiceRepository struct {
	insertFunc       func(ctx context.Context, invoice domain.Invoice) error
	findByIDFunc     func(ctx context.Context, invoiceID string) (domain.Invoice, error)
	numberExistsFunc func(ctx context.Context, number string) (bool, error)
}

func (s *stubInvoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	if s.insertFunc == nil {
		return nil
	}
	return s.insertFunc(ctx, invoice)
}

func (s *stubInvoiceRepository) FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	if s.findByIDFunc == nil {
		return domain.Invoice{}, &repositoryErrorStub{notFound: true}
	}
	return s.findByIDFunc(ctx, invoiceID)
}

func (s *stubInvoiceRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	if s.numberExistsFunc == nil {
		return false, nil
	}
	return s.numberExistsFunc(ctx, number)
}

type stubRenderer struct {
	renderFunc func(ctx context.Context, invoice domain.Invoice) ([]byte, string, error)
}

func (s *stubRenderer) RenderInvoice(ctx context.Context, invoice domain.Invoice) ([]byte, string, error) {
	if s.renderFunc == nil {
		return []byte("rendered"), "text/plain; charset=utf-8", nil
	}
	return s.renderFunc(ctx, invoice)
}

type stubArtifactStore struct {
	putFunc func(ctx context.Context, object, contentType string, payload []byte) (string, error)
}

func (s *stubArtifactStore) Put(ctx context.Context, object, contentType string, payload []byte) (string, error) {
	if s.putFunc == nil {
		return "gs://bucket/" + object, nil
	}
	return s.putFunc(ctx, object, contentType, payload)
}

func sampleIssueCommand() IssueInvoiceCommand {
	return IssueInvoiceCommand{
		OrderID:      "order-1",
		CustomerName: "Renée Müller",
		CustomerMail: "renee@example.com",
		PaymentRef:   "pi_123",
		Currency:     "usd",
		Lines: []domain.InvoiceLine{
			{ProductID: "prod-1", Name: "Oak Desk", Quantity: 1, UnitPrice: 10000, Total: 10000},
		},
		Totals: domain.OrderTotals{Subtotal: 10000, Tax: 800, Total: 10800},
	}
}

func newTestInvoiceService(t *testing.T, deps InvoiceServiceDeps) InvoiceService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC) }
	}
	service, err := NewInvoiceService(deps)
	if err != nil {
		t.Fatalf("unexpected error constructing invoice service: %v", err)
	}
	return service
}

func TestInvoiceServiceIssueGeneratesDatedNumber(t *testing.T) {
	var inserted domain.Invoice
	repo := &stubInvoiceRepository{
		insertFunc: func(ctx context.Context, invoice domain.Invoice) error {
			inserted = invoice
			return nil
		},
	}
	service := newTestInvoiceService(t, InvoiceServiceDeps{
		Invoices: repo,
		RandInt:  func(n int) int { return 41 },
	})

	invoice, err := service.Issue(context.Background(), sampleIssueCommand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if invoice.Number != "INV-20260715-042" {
		t.Fatalf("expected number INV-20260715-042, got %q", invoice.Number)
	}
	if invoice.Currency != "USD" {
		t.Fatalf("expected currency upper-cased, got %q", invoice.Currency)
	}
	if invoice.ID == "" {
		t.Fatal("expected generated invoice id")
	}
	if !invoice.IssuedAt.Equal(time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected issuedAt %s", invoice.IssuedAt)
	}
	if inserted.Number != invoice.Number {
		t.Fatal("expected invoice persisted as returned")
	}
}

func TestInvoiceServiceIssueRetriesNumberCollisions(t *testing.T) {
	taken := map[string]bool{"INV-20260715-001": true, "INV-20260715-002": true}
	checks := 0
	repo := &stubInvoiceRepository{
		numberExistsFunc: func(ctx context.Context, number string) (bool, error) {
			checks++
			return taken[number], nil
		},
	}
	sequence := 0
	service := newTestInvoiceService(t, InvoiceServiceDeps{
		Invoices: repo,
		RandInt: func(n int) int {
			sequence++
			return sequence - 1
		},
	})

	invoice, err := service.Issue(context.Background(), sampleIssueCommand())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if invoice.Number != "INV-20260715-003" {
		t.Fatalf("expected third candidate accepted, got %q", invoice.Number)
	}
	if checks != 3 {
		t.Fatalf("expected 3 existence checks, got %d", checks)
	}
}

func TestInvoiceServiceIssueGivesUpWhenNumbersExhausted(t *testing.T) {
	repo := &stubInvoiceRepository{
		numberExistsFunc: func(ctx context.Context, number string) (bool, error) {
			return true, nil
		},
	}
	service := newTestInvoiceService(t, InvoiceServiceDeps{
		Invoices: repo,
		RandInt:  func(n int) int { return 0 },
	})

	if _, err := service.Issue(context.Background(), sampleIssueCommand()); !errors.Is(err, ErrInvoiceNumberExhausted) {
		t.Fatalf("expected ErrInvoiceNumberExhausted, got %v", err)
	}
}

func TestInvoiceServiceIssueRejectsInvalidInput(t *testing.T) {
	service := newTestInvoiceService(t, InvoiceServiceDeps{Invoices: &stubInvoiceRepository{}})

	cases := []struct {
		name   string
		mutate func(cmd *IssueInvoiceCommand)
	}{
		{name: "missing order id", mutate: func(cmd *IssueInvoiceCommand) { cmd.OrderID = " " }},
		{name: "no lines", mutate: func(cmd *IssueInvoiceCommand) { cmd.Lines = nil }},
		{name: "negative total", mutate: func(cmd *IssueInvoiceCommand) { cmd.Totals.Total = -1 }},
		{name: "bad currency", mutate: func(cmd *IssueInvoiceCommand) { cmd.Currency = "dollars" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := sampleIssueCommand()
			tc.mutate(&cmd)
			if _, err := service.Issue(context.Background(), cmd); !errors.Is(err, ErrInvoiceInvalidInput) {
				t.Fatalf("expected ErrInvoiceInvalidInput, got %v", err)
			}
		})
	}
}

func TestInvoiceServiceRenderStoresDocument(t *testing.T) {
	invoice := domain.Invoice{
		ID:           "inv-1",
		Number:       "INV-20260715-042",
		OrderID:      "order-1",
		CustomerName: "Renée Müller",
		Currency:     "USD",
		Lines:        []domain.InvoiceLine{{Name: "Oak Desk", Quantity: 1, Total: 10000}},
		Totals:       domain.OrderTotals{Subtotal: 10000, Tax: 800, Total: 10800},
	}
	repo := &stubInvoiceRepository{
		findByIDFunc: func(ctx context.Context, invoiceID string) (domain.Invoice, error) {
			return invoice, nil
		},
	}
	var storedObject string
	store := &stubArtifactStore{
		putFunc: func(ctx context.Context, object, contentType string, payload []byte) (string, error) {
			storedObject = object
			return "gs://invoices/" + object, nil
		},
	}
	service := newTestInvoiceService(t, InvoiceServiceDeps{
		Invoices:  repo,
		Renderer:  TextInvoiceRenderer{},
		Artifacts: store,
	})

	document, err := service.Render(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if document.FileName != "inv-20260715-042-renee-muller.txt" {
		t.Fatalf("unexpected file name %q", document.FileName)
	}
	if storedObject != "invoices/orders/order-1/inv-20260715-042-renee-muller.txt" {
		t.Fatalf("unexpected object key %q", storedObject)
	}
	if document.StoredAt != "gs://invoices/"+storedObject {
		t.Fatalf("unexpected storedAt %q", document.StoredAt)
	}
	text := string(document.Content)
	if !strings.Contains(text, "INVOICE INV-20260715-042") {
		t.Fatalf("rendered document missing header: %q", text)
	}
	if !strings.Contains(text, "USD 108.00") {
		t.Fatalf("rendered document missing total: %q", text)
	}
}

func TestInvoiceServiceRenderSurfacesRendererFailure(t *testing.T) {
	repo := &stubInvoiceRepository{
		findByIDFunc: func(ctx context.Context, invoiceID string) (domain.Invoice, error) {
			return domain.Invoice{ID: invoiceID, OrderID: "order-1", Number: "INV-20260715-001"}, nil
		},
	}
	renderer := &stubRenderer{
		renderFunc: func(ctx context.Context, invoice domain.Invoice) ([]byte, string, error) {
			return nil, "", errors.New("engine crashed")
		},
	}
	service := newTestInvoiceService(t, InvoiceServiceDeps{Invoices: repo, Renderer: renderer})

	if _, err := service.Render(context.Background(), "inv-1"); !errors.Is(err, ErrInvoiceRenderingFailed) {
		t.Fatalf("expected ErrInvoiceRenderingFailed, got %v", err)
	}
}

func TestInvoiceServiceRenderToleratesStoreFailure(t *testing.T) {
	repo := &stubInvoiceRepository{
		findByIDFunc: func(ctx context.Context, invoiceID string) (domain.Invoice, error) {
			return domain.Invoice{
				ID:      invoiceID,
				Number:  "INV-20260715-001",
				OrderID: "order-1",
				Lines:   []domain.InvoiceLine{{Name: "Desk", Quantity: 1, Total: 100}},
			}, nil
		},
	}
	store := &stubArtifactStore{
		putFunc: func(ctx context.Context, object, contentType string, payload []byte) (string, error) {
			return "", errors.New("bucket offline")
		},
	}
	service := newTestInvoiceService(t, InvoiceServiceDeps{
		Invoices:  repo,
		Renderer:  &stubRenderer{},
		Artifacts: store,
	})

	document, err := service.Render(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("expected render to succeed despite store failure, got %v", err)
	}
	if document.StoredAt != "" {
		t.Fatalf("expected empty storedAt, got %q", document.StoredAt)
	}
	if len(document.Content) == 0 {
		t.Fatal("expected rendered content")
	}
}

func TestInvoiceServiceGetNotFound(t *testing.T) {
	service := newTestInvoiceService(t, InvoiceServiceDeps{Invoices: &stubInvoiceRepository{}})
	if _, err := service.Get(context.Background(), "missing"); !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
}
