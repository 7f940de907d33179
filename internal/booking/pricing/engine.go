// Package pricing computes the monetary breakdown of a booking.
package pricing

import (
	"math"
	"time"

	"github.com/example/spacall/internal/booking/domain"
)

// SurchargePolicy converts travel distance into a surcharge. The default
// policy charges nothing; deployments plug in their own.
type SurchargePolicy interface {
	Surcharge(distanceKM float64) domain.Centavos
}

// ZeroSurcharge charges nothing regardless of distance.
type ZeroSurcharge struct{}

func (ZeroSurcharge) Surcharge(float64) domain.Centavos { return 0 }

// PerKMSurcharge charges a flat rate per kilometre beyond a free allowance.
type PerKMSurcharge struct {
	RatePerKM domain.Centavos
	FreeKM    float64
}

func (p PerKMSurcharge) Surcharge(distanceKM float64) domain.Centavos {
	billable := distanceKM - p.FreeKM
	if billable <= 0 {
		return 0
	}
	return domain.Centavos(math.Round(billable * float64(p.RatePerKM)))
}

// Quote is the computed breakdown. Total = Subtotal + PlatformFee −
// PromoDiscount, floored at zero.
type Quote struct {
	ServicePrice      domain.Centavos `json:"service_price_cents"`
	DistanceSurcharge domain.Centavos `json:"distance_surcharge_cents"`
	Subtotal          domain.Centavos `json:"subtotal_cents"`
	PlatformFee       domain.Centavos `json:"platform_fee_cents"`
	PromoDiscount     domain.Centavos `json:"promo_discount_cents"`
	Total             domain.Centavos `json:"total_amount_cents"`
}

// Engine prices bookings. The zero value uses a zero surcharge policy.
type Engine struct {
	policy SurchargePolicy
}

// New constructs an Engine; a nil policy falls back to ZeroSurcharge.
func New(policy SurchargePolicy) *Engine {
	if policy == nil {
		policy = ZeroSurcharge{}
	}
	return &Engine{policy: policy}
}

// Price computes the quote for svc at the given distance. feePercent is the
// platform fee as a percentage of the subtotal. A promo that is nil or
// invalid at the evaluation time contributes no discount; redemption itself
// is enforced later inside the booking transaction.
func (e *Engine) Price(svc domain.Service, distanceKM float64, feePercent float64, promo *domain.PromoCode, promoUsages int, at time.Time) Quote {
	q := Quote{
		ServicePrice:      svc.BasePrice,
		DistanceSurcharge: e.policy.Surcharge(distanceKM),
	}
	q.Subtotal = q.ServicePrice + q.DistanceSurcharge
	q.PlatformFee = domain.Centavos(math.Round(float64(q.Subtotal) * feePercent / 100))

	if promo != nil && promo.ValidAt(at, promoUsages) {
		q.PromoDiscount = promo.Discount(q.Subtotal)
	}

	q.Total = q.Subtotal + q.PlatformFee - q.PromoDiscount
	if q.Total < 0 {
		q.Total = 0
	}
	return q
}
