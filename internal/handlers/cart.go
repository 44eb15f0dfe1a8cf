package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/platform/httpx"
	"github.com/clovermart/api/internal/platform/requestctx"
	"github.com/clovermart/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the session-scoped shopping cart endpoints.
type CartHandlers struct {
	carts services.CartService
}

// NewCartHandlers constructs handlers backed by the cart service.
func NewCartHandlers(carts services.CartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(RequireSession())
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{productId}", h.updateQuantity)
	r.Delete("/items/{productId}", h.removeItem)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	cart, err := h.carts.GetCart(ctx, requestctx.SessionID(ctx))
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	req, err := parseAddItemRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.carts.AddItem(ctx, services.AddItemCommand{
		SessionID: requestctx.SessionID(ctx),
		ProductID: req.productID,
		Name:      req.name,
		UnitPrice: req.unitPrice,
		Quantity:  req.quantity,
		Variant:   req.variant,
		Category:  req.category,
		ImageRef:  req.imageRef,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cartResponse{
		Cart:   buildCartPayload(result.Cart),
		Notice: string(result.Notice),
	})
}

func (h *CartHandlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	req, err := parseUpdateQuantityRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.carts.UpdateQuantity(ctx, services.UpdateQuantityCommand{
		SessionID: requestctx.SessionID(ctx),
		ProductID: chi.URLParam(r, "productId"),
		Variant:   req.variant,
		Quantity:  req.quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if result.Notice == services.NoticeItemNotFound {
		status = http.StatusNotFound
	}
	writeJSONResponse(w, status, cartResponse{
		Cart:   buildCartPayload(result.Cart),
		Notice: string(result.Notice),
	})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	result, err := h.carts.RemoveItem(ctx, services.RemoveItemCommand{
		SessionID: requestctx.SessionID(ctx),
		ProductID: chi.URLParam(r, "productId"),
		Variant:   strings.TrimSpace(r.URL.Query().Get("variant")),
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if result.Notice == services.NoticeItemNotFound {
		status = http.StatusNotFound
	}
	writeJSONResponse(w, status, cartResponse{
		Cart:   buildCartPayload(result.Cart),
		Notice: string(result.Notice),
	})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.carts.Clear(ctx, requestctx.SessionID(ctx)); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}

func buildCartPayload(cart domain.Cart) cartPayload {
	payload := cartPayload{
		SessionID:  strings.TrimSpace(cart.SessionID),
		Currency:   strings.ToUpper(strings.TrimSpace(cart.Currency)),
		ItemsCount: cart.ItemCount(),
		Subtotal:   cart.Subtotal(),
		Items:      buildCartItems(cart.Lines),
	}
	if !cart.CreatedAt.IsZero() {
		payload.CreatedAt = formatTime(cart.CreatedAt)
	}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(cart.UpdatedAt)
	}
	return payload
}

func buildCartItems(lines []domain.CartLine) []cartItemPayload {
	if len(lines) == 0 {
		return []cartItemPayload{}
	}

	payload := make([]cartItemPayload, 0, len(lines))
	for _, line := range lines {
		entry := cartItemPayload{
			ProductID: strings.TrimSpace(line.ProductID),
			Name:      strings.TrimSpace(line.Name),
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal(),
			Variant:   strings.TrimSpace(line.Variant),
			Category:  strings.TrimSpace(line.Category),
			ImageRef:  strings.TrimSpace(line.ImageRef),
		}
		if !line.AddedAt.IsZero() {
			entry.AddedAt = formatTime(line.AddedAt)
		}
		if !line.UpdatedAt.IsZero() {
			entry.UpdatedAt = formatTime(line.UpdatedAt)
		}
		payload = append(payload, entry)
	}
	return payload
}

type cartResponse struct {
	Cart   cartPayload `json:"cart"`
	Notice string      `json:"notice,omitempty"`
}

type cartPayload struct {
	SessionID  string            `json:"session_id"`
	Currency   string            `json:"currency"`
	ItemsCount int               `json:"items_count"`
	Subtotal   int64             `json:"subtotal"`
	Items      []cartItemPayload `json:"items"`
	CreatedAt  string            `json:"created_at,omitempty"`
	UpdatedAt  string            `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
	Variant   string `json:"variant,omitempty"`
	Category  string `json:"category,omitempty"`
	ImageRef  string `json:"image_ref,omitempty"`
	AddedAt   string `json:"added_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type addItemRequest struct {
	productID string
	name      string
	unitPrice int64
	quantity  int
	variant   string
	category  string
	imageRef  string
}

func parseAddItemRequest(body []byte) (addItemRequest, error) {
	req := addItemRequest{quantity: 1}
	if len(strings.TrimSpace(string(body))) == 0 {
		return req, errEmptyBody
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return req, errors.New("invalid JSON payload")
	}

	for key, value := range raw {
		switch key {
		case "product_id":
			if isJSONNull(value) {
				return req, errors.New("product_id must be a string")
			}
			var id string
			if err := json.Unmarshal(value, &id); err != nil {
				return req, errors.New("product_id must be a string")
			}
			req.productID = strings.TrimSpace(id)
		case "name":
			if isJSONNull(value) {
				return req, errors.New("name must be a string")
			}
			var name string
			if err := json.Unmarshal(value, &name); err != nil {
				return req, errors.New("name must be a string")
			}
			req.name = strings.TrimSpace(name)
		case "unit_price":
			if isJSONNull(value) {
				return req, errors.New("unit_price must be an integer")
			}
			if err := json.Unmarshal(value, &req.unitPrice); err != nil {
				return req, errors.New("unit_price must be an integer in minor currency units")
			}
		case "quantity":
			if isJSONNull(value) {
				return req, errors.New("quantity must be an integer")
			}
			if err := json.Unmarshal(value, &req.quantity); err != nil {
				return req, errors.New("quantity must be an integer")
			}
		case "variant":
			if isJSONNull(value) {
				continue
			}
			var variant string
			if err := json.Unmarshal(value, &variant); err != nil {
				return req, errors.New("variant must be a string")
			}
			req.variant = strings.TrimSpace(variant)
		case "category":
			if isJSONNull(value) {
				continue
			}
			var category string
			if err := json.Unmarshal(value, &category); err != nil {
				return req, errors.New("category must be a string")
			}
			req.category = strings.TrimSpace(category)
		case "image_ref":
			if isJSONNull(value) {
				continue
			}
			var ref string
			if err := json.Unmarshal(value, &ref); err != nil {
				return req, errors.New("image_ref must be a string")
			}
			req.imageRef = strings.TrimSpace(ref)
		default:
			return req, fmt.Errorf("unknown field %q", key)
		}
	}

	if req.productID == "" {
		return req, errors.New("product_id is required")
	}
	if req.name == "" {
		return req, errors.New("name is required")
	}
	if req.unitPrice < 0 {
		return req, errors.New("unit_price must not be negative")
	}
	if req.quantity <= 0 {
		return req, errors.New("quantity must be positive")
	}

	return req, nil
}

type updateQuantityRequest struct {
	quantity int
	variant  string
}

func parseUpdateQuantityRequest(body []byte) (updateQuantityRequest, error) {
	var req updateQuantityRequest
	if len(strings.TrimSpace(string(body))) == 0 {
		return req, errEmptyBody
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return req, errors.New("invalid JSON payload")
	}

	quantitySet := false
	for key, value := range raw {
		switch key {
		case "quantity":
			if isJSONNull(value) {
				return req, errors.New("quantity must be an integer")
			}
			if err := json.Unmarshal(value, &req.quantity); err != nil {
				return req, errors.New("quantity must be an integer")
			}
			quantitySet = true
		case "variant":
			if isJSONNull(value) {
				continue
			}
			var variant string
			if err := json.Unmarshal(value, &variant); err != nil {
				return req, errors.New("variant must be a string")
			}
			req.variant = strings.TrimSpace(variant)
		default:
			return req, fmt.Errorf("unknown field %q", key)
		}
	}

	if !quantitySet {
		return req, errors.New("quantity is required")
	}
	if req.quantity < 0 {
		return req, errors.New("quantity must not be negative")
	}

	return req, nil
}
