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
	invoiceCollection       = "invoices"
	invoiceNumberCollection = "invoiceNumbers"
)

type invoiceLineDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Variant   string `firestore:"variant,omitempty"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	Total     int64  `firestore:"total"`
}

type invoiceTotalsDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Discount int64 `firestore:"discount"`
	Tax      int64 `firestore:"tax"`
	Shipping int64 `firestore:"shipping"`
	Total    int64 `firestore:"total"`
}

type invoiceDocument struct {
	Number       string                `firestore:"number"`
	OrderID      string                `firestore:"orderId"`
	UserID       string                `firestore:"userId,omitempty"`
	CustomerName string                `firestore:"customerName,omitempty"`
	CustomerMail string                `firestore:"customerMail,omitempty"`
	PaymentRef   string                `firestore:"paymentRef,omitempty"`
	CouponCode   string                `firestore:"couponCode,omitempty"`
	Currency     string                `firestore:"currency"`
	Lines        []invoiceLineDocument `firestore:"lines"`
	Totals       invoiceTotalsDocument `firestore:"totals"`
	IssuedAt     time.Time             `firestore:"issuedAt"`
}

// invoiceNumberDocument is the uniqueness index entry for a human-readable
// invoice number.
type invoiceNumberDocument struct {
	InvoiceID string    `firestore:"invoiceId"`
	IssuedAt  time.Time `firestore:"issuedAt"`
}

// InvoiceRepository stores issued invoices. Numbers are claimed through an
// index collection inside the insert transaction, so two invoices can never
// share a number.
type InvoiceRepository struct {
	provider *pfirestore.Provider
	invoices *pfirestore.BaseRepository[invoiceDocument]
	numbers  *pfirestore.BaseRepository[invoiceNumberDocument]
}

// NewInvoiceRepository constructs a Firestore-backed invoice repository.
func NewInvoiceRepository(provider *pfirestore.Provider) (*InvoiceRepository, error) {
	if provider == nil {
		return nil, errors.New("invoice repository requires firestore provider")
	}
	return &InvoiceRepository{
		provider: provider,
		invoices: pfirestore.NewBaseRepository[invoiceDocument](provider, invoiceCollection, nil, nil),
		numbers:  pfirestore.NewBaseRepository[invoiceNumberDocument](provider, invoiceNumberCollection, nil, nil),
	}, nil
}

// Insert stores the invoice and claims its number in the same transaction.
func (r *InvoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	if r == nil || r.provider == nil {
		return errors.New("invoice repository not initialised")
	}
	id := strings.TrimSpace(invoice.ID)
	number := strings.TrimSpace(invoice.Number)
	if id == "" || number == "" {
		return pfirestore.NotFoundError("invoices.insert", errors.New("invoice id and number are required"))
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		numberRef, err := r.numbers.DocumentRef(ctx, number)
		if err != nil {
			return err
		}
		invoiceRef, err := r.invoices.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		_, err = tx.Get(numberRef)
		switch status.Code(err) {
		case codes.NotFound:
			// number is free
		case codes.OK:
			return fmt.Errorf("invoice number %s already issued", number)
		default:
			return err
		}

		if err := tx.Create(numberRef, invoiceNumberDocument{InvoiceID: id, IssuedAt: invoice.IssuedAt.UTC()}); err != nil {
			return err
		}
		return tx.Create(invoiceRef, encodeInvoice(invoice))
	})
	if err != nil {
		return pfirestore.WrapError("invoices.insert", err)
	}
	return nil
}

// FindByID loads an issued invoice.
func (r *InvoiceRepository) FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	if r == nil || r.invoices == nil {
		return domain.Invoice{}, errors.New("invoice repository not initialised")
	}
	id := strings.TrimSpace(invoiceID)
	if id == "" {
		return domain.Invoice{}, pfirestore.NotFoundError("invoices.find", errors.New("invoice id is required"))
	}
	doc, err := r.invoices.Get(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	return decodeInvoice(doc.ID, doc.Data), nil
}

// NumberExists reports whether the number index already holds an entry.
func (r *InvoiceRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	if r == nil || r.numbers == nil {
		return false, errors.New("invoice repository not initialised")
	}
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return false, nil
	}
	_, err := r.numbers.Get(ctx, trimmed)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func encodeInvoice(invoice domain.Invoice) invoiceDocument {
	doc := invoiceDocument{
		Number:       invoice.Number,
		OrderID:      invoice.OrderID,
		UserID:       invoice.UserID,
		CustomerName: invoice.CustomerName,
		CustomerMail: invoice.CustomerMail,
		PaymentRef:   invoice.PaymentRef,
		CouponCode:   invoice.CouponCode,
		Currency:     invoice.Currency,
		Lines:        make([]invoiceLineDocument, 0, len(invoice.Lines)),
		Totals: invoiceTotalsDocument{
			Subtotal: invoice.Totals.Subtotal,
			Discount: invoice.Totals.Discount,
			Tax:      invoice.Totals.Tax,
			Shipping: invoice.Totals.Shipping,
			Total:    invoice.Totals.Total,
		},
		IssuedAt: invoice.IssuedAt.UTC(),
	}
	for _, line := range invoice.Lines {
		doc.Lines = append(doc.Lines, invoiceLineDocument{
			ProductID: line.ProductID,
			Name:      line.Name,
			Variant:   line.Variant,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		})
	}
	return doc
}

func decodeInvoice(id string, doc invoiceDocument) domain.Invoice {
	invoice := domain.Invoice{
		ID:           id,
		Number:       doc.Number,
		OrderID:      doc.OrderID,
		UserID:       doc.UserID,
		CustomerName: doc.CustomerName,
		CustomerMail: doc.CustomerMail,
		PaymentRef:   doc.PaymentRef,
		CouponCode:   doc.CouponCode,
		Currency:     doc.Currency,
		Lines:        make([]domain.InvoiceLine, 0, len(doc.Lines)),
		Totals: domain.OrderTotals{
			Subtotal: doc.Totals.Subtotal,
			Discount: doc.Totals.Discount,
			Tax:      doc.Totals.Tax,
			Shipping: doc.Totals.Shipping,
			Total:    doc.Totals.Total,
		},
		IssuedAt: doc.IssuedAt,
	}
	for _, line := range doc.Lines {
		invoice.Lines = append(invoice.Lines, domain.InvoiceLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			Variant:   line.Variant,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		})
	}
	return invoice
}

var _ repositories.InvoiceRepository = (*InvoiceRepository)(nil)
