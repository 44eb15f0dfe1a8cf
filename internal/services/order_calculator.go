package services

import (
	"errors"

	domain "github.com/clovermart/api/internal/domain"
)

// ErrCalculatorInvalidInput indicates negative monetary inputs.
var ErrCalculatorInvalidInput = errors.New("order calculator: invalid input")

// OrderCalculator derives order totals from a subtotal and a discount under a
// fixed pricing policy. It is pure: no state, no clock, no persistence, so a
// quote and the later invoice computation always agree for identical inputs.
type OrderCalculator struct {
	// TaxRateBps is the tax rate in basis points (1800 means 18%).
	TaxRateBps int64
	// ShippingFee is a flat fee in minor currency units.
	ShippingFee int64
}

// ComputeTotal applies the policy: tax is charged on the post-discount
// subtotal, shipping is added untaxed, and the grand total never drops
// below zero.
func (c OrderCalculator) ComputeTotal(subtotal, discount int64) (domain.OrderTotals, error) {
	if subtotal < 0 || discount < 0 {
		return domain.OrderTotals{}, ErrCalculatorInvalidInput
	}
	if c.TaxRateBps < 0 || c.ShippingFee < 0 {
		return domain.OrderTotals{}, ErrCalculatorInvalidInput
	}

	if discount > subtotal {
		discount = subtotal
	}
	taxable := subtotal - discount
	tax := roundHalfUp(taxable*c.TaxRateBps, 10000)

	total := taxable + tax + c.ShippingFee
	if total < 0 {
		total = 0
	}

	return domain.OrderTotals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: c.ShippingFee,
		Total:    total,
	}, nil
}

// roundHalfUp divides numerator by denominator rounding halves away from
// zero, in integer arithmetic. Both arguments must be non-negative.
func roundHalfUp(numerator, denominator int64) int64 {
	if denominator <= 0 || numerator <= 0 {
		return 0
	}
	return (numerator + denominator/2) / denominator
}
