package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/platform/httpx"
	"github.com/clovermart/api/internal/platform/pagination"
	"github.com/clovermart/api/internal/services"
)

const (
	maxCouponBodySize = 32 * 1024

	validateAttemptLimit  = 30
	validateAttemptWindow = time.Minute
)

// CouponHandlers exposes the coupon registry administration endpoints.
type CouponHandlers struct {
	coupons services.CouponService
	limiter *attemptLimiter
}

// NewCouponHandlers constructs handlers backed by the coupon service. Validation
// attempts are throttled per caller to slow down code guessing.
func NewCouponHandlers(coupons services.CouponService) *CouponHandlers {
	return &CouponHandlers{
		coupons: coupons,
		limiter: newAttemptLimiter(validateAttemptLimit, validateAttemptWindow, time.Now),
	}
}

// Routes wires the coupon endpoints onto the provided router.
func (h *CouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createCoupon)
	r.Get("/", h.listCoupons)
	r.Get("/stats", h.stats)
	r.Post("/validate", h.validateCoupon)
	r.Get("/{code}", h.getCoupon)
	r.Get("/{code}/redemptions", h.listRedemptions)
}

func (h *CouponHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCouponBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	req, err := parseCreateCouponRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	coupon, err := h.coupons.Create(ctx, req)
	if err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, couponResponse{Coupon: buildCouponPayload(coupon)})
}

func (h *CouponHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: pagination.DefaultPageSize,
		MaxPageSize:     pagination.DefaultMaxPageSize,
		StatusValues:    []string{"active", "inactive"},
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	coupons, err := h.coupons.List(ctx)
	if err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}
	coupons = filterCouponsByStatus(coupons, params.Status)

	page, nextToken, err := paginateCoupons(coupons, params)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	payload := couponListResponse{
		Coupons:       make([]couponPayload, 0, len(page)),
		NextPageToken: nextToken,
	}
	for _, coupon := range page {
		payload.Coupons = append(payload.Coupons, buildCouponPayload(coupon))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CouponHandlers) getCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
		return
	}

	coupon, err := h.coupons.Lookup(ctx, chi.URLParam(r, "code"))
	if err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, couponResponse{Coupon: buildCouponPayload(coupon)})
}

func (h *CouponHandlers) validateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(clientKey(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("too_many_attempts", "too many validation attempts; slow down", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxCouponBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	req, err := parseValidateCouponRequest(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	validation, err := h.coupons.Validate(ctx, req.code, req.orderAmount, services.OrderContext{
		Categories: req.categories,
		ProductIDs: req.productIDs,
	})
	if err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}

	payload := couponValidationPayload{
		Valid:    validation.Valid,
		Discount: validation.Discount,
	}
	if validation.Valid {
		coupon := buildCouponPayload(validation.Coupon)
		payload.Coupon = &coupon
	} else {
		payload.Reason = string(validation.Reason)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CouponHandlers) listRedemptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
		return
	}

	coupon, err := h.coupons.Lookup(ctx, chi.URLParam(r, "code"))
	if err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}

	redemptions, err := h.coupons.ListRedemptions(ctx, coupon.ID)
	if err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}

	payload := redemptionListResponse{
		CouponCode:  coupon.Code,
		Redemptions: make([]redemptionPayload, 0, len(redemptions)),
	}
	for _, redemption := range redemptions {
		payload.Redemptions = append(payload.Redemptions, redemptionPayload{
			ID:             redemption.ID,
			CouponID:       redemption.CouponID,
			UserID:         redemption.UserID,
			OrderID:        redemption.OrderID,
			DiscountAmount: redemption.DiscountAmount,
			RedeemedAt:     formatTime(redemption.RedeemedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CouponHandlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
		return
	}

	stats, err := h.coupons.Stats(ctx)
	if err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, couponStatsPayload{
		TotalCoupons:     stats.TotalCoupons,
		ActiveCoupons:    stats.ActiveCoupons,
		ExpiredCoupons:   stats.ExpiredCoupons,
		TotalRedemptions: stats.TotalRedemptions,
		TotalDiscount:    stats.TotalDiscount,
	})
}

func (h *CouponHandlers) writeCouponError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCouponInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCouponDuplicateCode):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_code_exists", "coupon code already exists", http.StatusConflict))
	case errors.Is(err, services.ErrCouponLimitExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_limit_exceeded", "coupon usage limit exceeded", http.StatusConflict))
	case errors.Is(err, services.ErrCouponCodeSpaceExhausted):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_code_generation_failed", "unable to generate a unique coupon code", http.StatusInternalServerError))
	case errors.Is(err, services.ErrCouponUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("coupon_error", "coupon operation failed", http.StatusInternalServerError))
	}
}

func filterCouponsByStatus(coupons []domain.Coupon, status string) []domain.Coupon {
	if status == "" {
		return coupons
	}
	wantActive := status == "active"
	filtered := make([]domain.Coupon, 0, len(coupons))
	for _, coupon := range coupons {
		if coupon.IsActive == wantActive {
			filtered = append(filtered, coupon)
		}
	}
	return filtered
}

// paginateCoupons applies the requested page window to the in-memory coupon
// list. The cursor resumes after the last coupon code of the previous page.
func paginateCoupons(coupons []domain.Coupon, params pagination.Params) ([]domain.Coupon, string, error) {
	start := 0
	if lastCode := params.Cursor.StartAfter; lastCode != "" {
		for i, coupon := range coupons {
			if coupon.Code == lastCode {
				start = i + 1
				break
			}
		}
	}

	if start >= len(coupons) {
		return nil, "", nil
	}

	end := start + params.PageSize
	if end >= len(coupons) {
		return coupons[start:], "", nil
	}

	token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: coupons[end-1].Code})
	if err != nil {
		return nil, "", err
	}
	return coupons[start:end], token, nil
}

func clientKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(sessionHeader)); key != "" {
		return key
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func buildCouponPayload(coupon domain.Coupon) couponPayload {
	payload := couponPayload{
		ID:                   coupon.ID,
		Code:                 coupon.Code,
		Kind:                 string(coupon.Kind),
		Value:                coupon.Value,
		UsedCount:            coupon.UsedCount,
		IsActive:             coupon.IsActive,
		ApplicableCategories: coupon.ApplicableCategories,
		ApplicableProductIDs: coupon.ApplicableProductIDs,
	}
	if coupon.MinOrderAmount != nil {
		value := *coupon.MinOrderAmount
		payload.MinOrderAmount = &value
	}
	if coupon.MaxDiscountAmount != nil {
		value := *coupon.MaxDiscountAmount
		payload.MaxDiscountAmount = &value
	}
	if coupon.UsageLimit != nil {
		value := *coupon.UsageLimit
		payload.UsageLimit = &value
	}
	if !coupon.ValidFrom.IsZero() {
		payload.ValidFrom = formatTime(coupon.ValidFrom)
	}
	if !coupon.ValidUntil.IsZero() {
		payload.ValidUntil = formatTime(coupon.ValidUntil)
	}
	if !coupon.CreatedAt.IsZero() {
		payload.CreatedAt = formatTime(coupon.CreatedAt)
	}
	if !coupon.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(coupon.UpdatedAt)
	}
	return payload
}

type couponResponse struct {
	Coupon couponPayload `json:"coupon"`
}

type couponListResponse struct {
	Coupons       []couponPayload `json:"coupons"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

type couponPayload struct {
	ID                   string   `json:"id"`
	Code                 string   `json:"code"`
	Kind                 string   `json:"kind"`
	Value                int64    `json:"value"`
	MinOrderAmount       *int64   `json:"min_order_amount,omitempty"`
	MaxDiscountAmount    *int64   `json:"max_discount_amount,omitempty"`
	UsageLimit           *int     `json:"usage_limit,omitempty"`
	UsedCount            int      `json:"used_count"`
	ValidFrom            string   `json:"valid_from,omitempty"`
	ValidUntil           string   `json:"valid_until,omitempty"`
	IsActive             bool     `json:"is_active"`
	ApplicableCategories []string `json:"applicable_categories,omitempty"`
	ApplicableProductIDs []string `json:"applicable_product_ids,omitempty"`
	CreatedAt            string   `json:"created_at,omitempty"`
	UpdatedAt            string   `json:"updated_at,omitempty"`
}

type couponValidationPayload struct {
	Valid    bool           `json:"valid"`
	Reason   string         `json:"reason,omitempty"`
	Discount int64          `json:"discount"`
	Coupon   *couponPayload `json:"coupon,omitempty"`
}

type redemptionListResponse struct {
	CouponCode  string              `json:"coupon_code"`
	Redemptions []redemptionPayload `json:"redemptions"`
}

type redemptionPayload struct {
	ID             string `json:"id"`
	CouponID       string `json:"coupon_id"`
	UserID         string `json:"user_id,omitempty"`
	OrderID        string `json:"order_id"`
	DiscountAmount int64  `json:"discount_amount"`
	RedeemedAt     string `json:"redeemed_at"`
}

type couponStatsPayload struct {
	TotalCoupons     int   `json:"total_coupons"`
	ActiveCoupons    int   `json:"active_coupons"`
	ExpiredCoupons   int   `json:"expired_coupons"`
	TotalRedemptions int   `json:"total_redemptions"`
	TotalDiscount    int64 `json:"total_discount"`
}

func parseCreateCouponRequest(body []byte) (services.CreateCouponCommand, error) {
	var cmd services.CreateCouponCommand
	cmd.IsActive = true
	if len(strings.TrimSpace(string(body))) == 0 {
		return cmd, errEmptyBody
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return cmd, errors.New("invalid JSON payload")
	}

	for key, value := range raw {
		switch key {
		case "code":
			if isJSONNull(value) {
				continue
			}
			var code string
			if err := json.Unmarshal(value, &code); err != nil {
				return cmd, errors.New("code must be a string")
			}
			cmd.Code = strings.TrimSpace(code)
		case "kind":
			if isJSONNull(value) {
				return cmd, errors.New("kind must be a string")
			}
			var kind string
			if err := json.Unmarshal(value, &kind); err != nil {
				return cmd, errors.New("kind must be a string")
			}
			cmd.Kind = domain.DiscountKind(strings.TrimSpace(strings.ToLower(kind)))
		case "value":
			if isJSONNull(value) {
				return cmd, errors.New("value must be an integer")
			}
			if err := json.Unmarshal(value, &cmd.Value); err != nil {
				return cmd, errors.New("value must be an integer")
			}
		case "min_order_amount":
			if isJSONNull(value) {
				continue
			}
			var amount int64
			if err := json.Unmarshal(value, &amount); err != nil {
				return cmd, errors.New("min_order_amount must be an integer or null")
			}
			cmd.MinOrderAmount = &amount
		case "max_discount_amount":
			if isJSONNull(value) {
				continue
			}
			var amount int64
			if err := json.Unmarshal(value, &amount); err != nil {
				return cmd, errors.New("max_discount_amount must be an integer or null")
			}
			cmd.MaxDiscountAmount = &amount
		case "usage_limit":
			if isJSONNull(value) {
				continue
			}
			var limit int
			if err := json.Unmarshal(value, &limit); err != nil {
				return cmd, errors.New("usage_limit must be an integer or null")
			}
			cmd.UsageLimit = &limit
		case "valid_from":
			if isJSONNull(value) {
				continue
			}
			var ts string
			if err := json.Unmarshal(value, &ts); err != nil {
				return cmd, errors.New("valid_from must be a string")
			}
			parsed, err := parseRFC3339(strings.TrimSpace(ts))
			if err != nil {
				return cmd, fmt.Errorf("valid_from must be RFC3339 timestamp: %w", err)
			}
			cmd.ValidFrom = parsed
		case "valid_until":
			if isJSONNull(value) {
				continue
			}
			var ts string
			if err := json.Unmarshal(value, &ts); err != nil {
				return cmd, errors.New("valid_until must be a string")
			}
			parsed, err := parseRFC3339(strings.TrimSpace(ts))
			if err != nil {
				return cmd, fmt.Errorf("valid_until must be RFC3339 timestamp: %w", err)
			}
			cmd.ValidUntil = parsed
		case "is_active":
			if isJSONNull(value) {
				return cmd, errors.New("is_active must be a boolean")
			}
			if err := json.Unmarshal(value, &cmd.IsActive); err != nil {
				return cmd, errors.New("is_active must be a boolean")
			}
		case "applicable_categories":
			if isJSONNull(value) {
				continue
			}
			if err := json.Unmarshal(value, &cmd.ApplicableCategories); err != nil {
				return cmd, errors.New("applicable_categories must be an array of strings")
			}
		case "applicable_product_ids":
			if isJSONNull(value) {
				continue
			}
			if err := json.Unmarshal(value, &cmd.ApplicableProductIDs); err != nil {
				return cmd, errors.New("applicable_product_ids must be an array of strings")
			}
		default:
			return cmd, fmt.Errorf("unknown field %q", key)
		}
	}

	if cmd.Kind == "" {
		return cmd, errors.New("kind is required")
	}
	if !cmd.Kind.Valid() {
		return cmd, fmt.Errorf("kind must be %q or %q", domain.DiscountPercentage, domain.DiscountFixed)
	}
	if cmd.Value <= 0 {
		return cmd, errors.New("value must be positive")
	}

	return cmd, nil
}

type validateCouponRequest struct {
	code        string
	orderAmount int64
	categories  []string
	productIDs  []string
}

func parseValidateCouponRequest(body []byte) (validateCouponRequest, error) {
	var req validateCouponRequest
	if len(strings.TrimSpace(string(body))) == 0 {
		return req, errEmptyBody
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return req, errors.New("invalid JSON payload")
	}

	for key, value := range raw {
		switch key {
		case "code":
			if isJSONNull(value) {
				return req, errors.New("code must be a string")
			}
			var code string
			if err := json.Unmarshal(value, &code); err != nil {
				return req, errors.New("code must be a string")
			}
			req.code = strings.TrimSpace(code)
		case "order_amount":
			if isJSONNull(value) {
				return req, errors.New("order_amount must be an integer")
			}
			if err := json.Unmarshal(value, &req.orderAmount); err != nil {
				return req, errors.New("order_amount must be an integer in minor currency units")
			}
		case "categories":
			if isJSONNull(value) {
				continue
			}
			if err := json.Unmarshal(value, &req.categories); err != nil {
				return req, errors.New("categories must be an array of strings")
			}
		case "product_ids":
			if isJSONNull(value) {
				continue
			}
			if err := json.Unmarshal(value, &req.productIDs); err != nil {
				return req, errors.New("product_ids must be an array of strings")
			}
		default:
			return req, fmt.Errorf("unknown field %q", key)
		}
	}

	if req.code == "" {
		return req, errors.New("code is required")
	}
	if req.orderAmount < 0 {
		return req, errors.New("order_amount must not be negative")
	}

	return req, nil
}
