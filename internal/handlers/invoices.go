package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/platform/httpx"
	"github.com/clovermart/api/internal/services"
)

// InvoiceHandlers exposes read access to issued invoices and their rendered
// documents.
type InvoiceHandlers struct {
	invoices services.InvoiceService
}

// NewInvoiceHandlers constructs handlers backed by the invoice service.
func NewInvoiceHandlers(invoices services.InvoiceService) *InvoiceHandlers {
	return &InvoiceHandlers{invoices: invoices}
}

// Routes wires the /invoices endpoints onto the provided router.
func (h *InvoiceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{invoiceId}", h.getInvoice)
	r.Get("/{invoiceId}/document", h.downloadDocument)
}

func (h *InvoiceHandlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service is unavailable", http.StatusServiceUnavailable))
		return
	}

	invoice, err := h.invoices.Get(ctx, chi.URLParam(r, "invoiceId"))
	if err != nil {
		h.writeInvoiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, invoiceResponse{Invoice: buildInvoicePayload(invoice)})
}

func (h *InvoiceHandlers) downloadDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service is unavailable", http.StatusServiceUnavailable))
		return
	}

	document, err := h.invoices.Render(ctx, chi.URLParam(r, "invoiceId"))
	if err != nil {
		h.writeInvoiceError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", document.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(document.Content)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", document.FileName))
	if document.StoredAt != "" {
		w.Header().Set("X-Document-Location", document.StoredAt)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(document.Content)
}

func (h *InvoiceHandlers) writeInvoiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInvoiceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvoiceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_not_found", "invoice not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInvoiceRenderingFailed):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_rendering_failed", "invoice could not be rendered", http.StatusBadGateway))
	case errors.Is(err, services.ErrInvoiceUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invoice_error", "invoice operation failed", http.StatusInternalServerError))
	}
}

func buildInvoicePayload(invoice domain.Invoice) invoicePayload {
	payload := invoicePayload{
		ID:           invoice.ID,
		Number:       invoice.Number,
		OrderID:      invoice.OrderID,
		UserID:       invoice.UserID,
		CustomerName: invoice.CustomerName,
		CustomerMail: invoice.CustomerMail,
		PaymentRef:   invoice.PaymentRef,
		CouponCode:   invoice.CouponCode,
		Currency:     invoice.Currency,
		Lines:        make([]invoiceLinePayload, 0, len(invoice.Lines)),
		Totals:       buildTotalsPayload(invoice.Totals),
	}
	for _, line := range invoice.Lines {
		payload.Lines = append(payload.Lines, invoiceLinePayload{
			ProductID: line.ProductID,
			Name:      line.Name,
			Variant:   line.Variant,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		})
	}
	if !invoice.IssuedAt.IsZero() {
		payload.IssuedAt = formatTime(invoice.IssuedAt)
	}
	return payload
}

type invoiceResponse struct {
	Invoice invoicePayload `json:"invoice"`
}

type invoicePayload struct {
	ID           string               `json:"id"`
	Number       string               `json:"number"`
	OrderID      string               `json:"order_id"`
	UserID       string               `json:"user_id,omitempty"`
	CustomerName string               `json:"customer_name"`
	CustomerMail string               `json:"customer_email,omitempty"`
	PaymentRef   string               `json:"payment_ref,omitempty"`
	CouponCode   string               `json:"coupon_code,omitempty"`
	Currency     string               `json:"currency"`
	Lines        []invoiceLinePayload `json:"lines"`
	Totals       totalsPayload        `json:"totals"`
	IssuedAt     string               `json:"issued_at,omitempty"`
}

type invoiceLinePayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Variant   string `json:"variant,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Total     int64  `json:"total"`
}
