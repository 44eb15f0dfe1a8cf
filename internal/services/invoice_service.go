package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/platform/storage"
	"github.com/clovermart/api/internal/platform/textutil"
	"github.com/clovermart/api/internal/repositories"
)

var (
	errInvoiceRepositoryRequired = errors.New("invoice service: repository is required")
	errInvoiceClockRequired      = errors.New("invoice service: clock is required")
)

const (
	defaultInvoiceSequenceMax = 999
	maxNumberGenerationTries  = 10
)

// ErrInvoiceInvalidInput indicates the caller supplied invalid input.
var ErrInvoiceInvalidInput = errors.New("invoice service: invalid input")

// ErrInvoiceNotFound indicates no invoice matches the given id.
var ErrInvoiceNotFound = errors.New("invoice service: not found")

// ErrInvoiceUnavailable indicates the invoice backend cannot fulfil the request.
var ErrInvoiceUnavailable = errors.New("invoice service: unavailable")

// ErrInvoiceNumberExhausted indicates number generation kept colliding for the
// current issue date.
var ErrInvoiceNumberExhausted = errors.New("invoice service: unable to generate a unique invoice number")

// ErrInvoiceRenderingFailed indicates the document renderer could not produce
// the invoice artifact. The underlying invoice record remains issued.
var ErrInvoiceRenderingFailed = errors.New("invoice service: rendering failed")

// InvoiceServiceDeps wires persistence, rendering, and ambient dependencies.
type InvoiceServiceDeps struct {
	Invoices  repositories.InvoiceRepository
	Renderer  DocumentRenderer
	Artifacts ArtifactStore
	Clock     func() time.Time
	Logger    func(context.Context, string, map[string]any)

	// SequenceMax bounds the per-day numeric suffix; zero means the default.
	SequenceMax int

	IDGenerator func() string
	// RandInt returns a uniform value in [0, n); overridable for tests.
	RandInt func(n int) int
}

type invoiceService struct {
	invoices    repositories.InvoiceRepository
	renderer    DocumentRenderer
	artifacts   ArtifactStore
	now         func() time.Time
	logger      func(context.Context, string, map[string]any)
	sequenceMax int
	newID       func() string
	randInt     func(n int) int
}

// NewInvoiceService constructs an InvoiceService enforcing dependency validation.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	if deps.Invoices == nil {
		return nil, errInvoiceRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errInvoiceClockRequired
	}

	sequenceMax := deps.SequenceMax
	if sequenceMax <= 0 {
		sequenceMax = defaultInvoiceSequenceMax
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

	return &invoiceService{
		invoices:    deps.Invoices,
		renderer:    deps.Renderer,
		artifacts:   deps.Artifacts,
		now:         func() time.Time { return deps.Clock().UTC() },
		logger:      logger,
		sequenceMax: sequenceMax,
		newID:       newID,
		randInt:     randInt,
	}, nil
}

// Issue freezes the given order figures into an immutable invoice record.
// The invoice number is generated here; everything else is stored as received.
func (s *invoiceService) Issue(ctx context.Context, cmd IssueInvoiceCommand) (domain.Invoice, error) {
	if s == nil || s.invoices == nil {
		return domain.Invoice{}, ErrInvoiceUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Invoice{}, ErrInvoiceInvalidInput
	}
	if len(cmd.Lines) == 0 {
		return domain.Invoice{}, ErrInvoiceInvalidInput
	}
	if cmd.Totals.Total < 0 {
		return domain.Invoice{}, ErrInvoiceInvalidInput
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if len(currency) != 3 {
		return domain.Invoice{}, ErrInvoiceInvalidInput
	}

	now := s.now()
	number, err := s.nextNumber(ctx, now)
	if err != nil {
		return domain.Invoice{}, err
	}

	invoice := domain.Invoice{
		ID:           s.newID(),
		Number:       number,
		OrderID:      orderID,
		UserID:       strings.TrimSpace(cmd.UserID),
		CustomerName: strings.TrimSpace(cmd.CustomerName),
		CustomerMail: strings.TrimSpace(cmd.CustomerMail),
		PaymentRef:   strings.TrimSpace(cmd.PaymentRef),
		CouponCode:   strings.TrimSpace(cmd.CouponCode),
		Currency:     currency,
		Lines:        append([]domain.InvoiceLine(nil), cmd.Lines...),
		Totals:       cmd.Totals,
		IssuedAt:     now,
	}

	if err := s.invoices.Insert(ctx, invoice); err != nil {
		return domain.Invoice{}, s.translateRepoError(err)
	}

	s.logger(ctx, "invoice.issued", map[string]any{
		"invoice_id": invoice.ID,
		"number":     invoice.Number,
		"order_id":   invoice.OrderID,
		"total":      invoice.Totals.Total,
	})
	return invoice, nil
}

// Get fetches an issued invoice by id.
func (s *invoiceService) Get(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	if s == nil || s.invoices == nil {
		return domain.Invoice{}, ErrInvoiceUnavailable
	}
	id := strings.TrimSpace(invoiceID)
	if id == "" {
		return domain.Invoice{}, ErrInvoiceInvalidInput
	}
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return domain.Invoice{}, s.translateRepoError(err)
	}
	return invoice, nil
}

// Render produces the downloadable document for an issued invoice and, when
// an artifact store is configured, persists it alongside the order.
func (s *invoiceService) Render(ctx context.Context, invoiceID string) (InvoiceDocument, error) {
	if s == nil || s.invoices == nil {
		return InvoiceDocument{}, ErrInvoiceUnavailable
	}
	if s.renderer == nil {
		return InvoiceDocument{}, ErrInvoiceRenderingFailed
	}

	invoice, err := s.Get(ctx, invoiceID)
	if err != nil {
		return InvoiceDocument{}, err
	}

	content, contentType, err := s.renderer.RenderInvoice(ctx, invoice)
	if err != nil {
		s.logger(ctx, "invoice.render_failed", map[string]any{
			"invoice_id": invoice.ID,
			"error":      err.Error(),
		})
		return InvoiceDocument{}, fmt.Errorf("%w: %v", ErrInvoiceRenderingFailed, err)
	}

	document := InvoiceDocument{
		InvoiceID:   invoice.ID,
		Number:      invoice.Number,
		FileName:    invoiceFileName(invoice, contentType),
		ContentType: contentType,
		Content:     content,
	}

	if s.artifacts != nil {
		object, err := storage.BuildInvoicePath(invoice.OrderID, document.FileName)
		if err != nil {
			return InvoiceDocument{}, fmt.Errorf("%w: %v", ErrInvoiceRenderingFailed, err)
		}
		storedAt, err := s.artifacts.Put(ctx, object, contentType, content)
		if err != nil {
			// The document was rendered; a failed upload degrades to an
			// unstored download rather than a hard failure.
			s.logger(ctx, "invoice.store_failed", map[string]any{
				"invoice_id": invoice.ID,
				"object":     object,
				"error":      err.Error(),
			})
		} else {
			document.StoredAt = storedAt
		}
	}
	return document, nil
}

// nextNumber generates INV-YYYYMMDD-NNN, retrying the random suffix until it
// is unused for the date. The suffix space is small on purpose; numbers are
// for humans, uniqueness is enforced against the registry.
func (s *invoiceService) nextNumber(ctx context.Context, now time.Time) (string, error) {
	datePart := now.Format("20060102")
	for attempt := 0; attempt < maxNumberGenerationTries; attempt++ {
		sequence := s.randInt(s.sequenceMax) + 1
		number := fmt.Sprintf("INV-%s-%03d", datePart, sequence)
		exists, err := s.invoices.NumberExists(ctx, number)
		if err != nil {
			return "", s.translateRepoError(err)
		}
		if !exists {
			return number, nil
		}
		s.logger(ctx, "invoice.number_collision", map[string]any{
			"number":  number,
			"attempt": attempt + 1,
		})
	}
	return "", ErrInvoiceNumberExhausted
}

func (s *invoiceService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrInvoiceNotFound
	}
	return ErrInvoiceUnavailable
}

// invoiceFileName derives a filesystem-safe download name from the invoice
// number and the customer name.
func invoiceFileName(invoice domain.Invoice, contentType string) string {
	name := strings.ToLower(invoice.Number)
	if folded := textutil.FoldFilename(invoice.CustomerName); folded != "" {
		name = name + "-" + folded
	}
	return name + extensionFor(contentType)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "application/pdf":
		return ".pdf"
	case "text/html":
		return ".html"
	default:
		return ".txt"
	}
}
