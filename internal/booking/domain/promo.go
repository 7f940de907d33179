package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type DiscountType string

const (
	DiscountAmount  DiscountType = "amount"
	DiscountPercent DiscountType = "percent"
)

// PromoCode describes a discount code. DiscountValue is pesos for amount-type
// codes and a percentage for percent-type codes.
type PromoCode struct {
	ID            uuid.UUID    `json:"id"`
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue float64      `json:"discount_value"`
	UsageLimit    *int         `json:"usage_limit,omitempty"`
	ValidFrom     *time.Time   `json:"valid_from,omitempty"`
	ValidTo       *time.Time   `json:"valid_to,omitempty"`
	IsActive      bool         `json:"is_active"`
}

// ValidAt reports whether the code may be redeemed at t given the current
// usage count. Absent bounds are unbounded; absent limit is unlimited.
func (p PromoCode) ValidAt(t time.Time, usages int) bool {
	if !p.IsActive {
		return false
	}
	if p.ValidFrom != nil && t.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidTo != nil && t.After(*p.ValidTo) {
		return false
	}
	if p.UsageLimit != nil && usages >= *p.UsageLimit {
		return false
	}
	return true
}

// Discount computes the discount against amount, rounded to centavos.
func (p PromoCode) Discount(amount Centavos) Centavos {
	switch p.DiscountType {
	case DiscountAmount:
		d := Centavos(math.Round(p.DiscountValue * 100))
		if d > amount {
			return amount
		}
		return d
	case DiscountPercent:
		return Centavos(math.Round(float64(amount) * p.DiscountValue / 100))
	}
	return 0
}
