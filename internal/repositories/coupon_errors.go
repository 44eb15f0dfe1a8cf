package repositories

import (
	"errors"
	"fmt"
)

// CouponErrorCode enumerates failure reasons for coupon mutations.
type CouponErrorCode string

const (
	// CouponErrorUnknown represents an unspecified failure.
	CouponErrorUnknown CouponErrorCode = "coupon_unknown"
	// CouponErrorInvalidInput indicates the caller supplied invalid arguments.
	CouponErrorInvalidInput CouponErrorCode = "coupon_invalid_input"
	// CouponErrorDuplicateCode indicates the coupon code is already taken.
	CouponErrorDuplicateCode CouponErrorCode = "coupon_duplicate_code"
	// CouponErrorLimitExceeded indicates the usage limit was reached before the redemption could be recorded.
	CouponErrorLimitExceeded CouponErrorCode = "coupon_limit_exceeded"
)

// CouponError wraps coupon-specific failures with machine readable codes.
type CouponError struct {
	Op      string
	Code    CouponErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *CouponError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *CouponError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCouponError constructs a typed coupon error.
func NewCouponError(code CouponErrorCode, message string, err error) *CouponError {
	if message == "" {
		message = string(code)
	}
	return &CouponError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCouponErrorCode reports whether err carries the given coupon error code.
func IsCouponErrorCode(err error, code CouponErrorCode) bool {
	var couponErr *CouponError
	if errors.As(err, &couponErr) {
		return couponErr.Code == code
	}
	return false
}
