// Package pricing computes checkout price breakdowns.
//
// Every intermediate value keeps full precision; monetary outputs are
// rounded to two decimals only when the Breakdown is returned.
package pricing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

type PromoType string

const (
	PromoFixed      PromoType = "fixed"
	PromoPercentage PromoType = "percentage"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

type Promo struct {
	Type   PromoType
	Amount decimal.Decimal
}

// QuantityTier discounts orders of at least MinQuantity units.
type QuantityTier struct {
	MinQuantity     int
	DiscountPercent decimal.Decimal
}

type Input struct {
	// GrossPrice is the list price of one unit before plan-level discounts.
	// Zero means the plan has no separate list price.
	GrossPrice decimal.Decimal
	// BasePrice is the per-unit price after plan-level discounts.
	BasePrice decimal.Decimal

	Quantity   int
	Promo      *Promo
	Tier       *QuantityTier
	TaxPercent decimal.Decimal

	// MinimumCharge floors the pre-tax subtotal. Zero means 1.
	MinimumCharge decimal.Decimal
}

type Breakdown struct {
	Quantity         int             `json:"quantity"`
	GrossValue       decimal.Decimal `json:"grossValue"`
	PlanDiscount     decimal.Decimal `json:"planDiscount"`
	PromoDiscount    decimal.Decimal `json:"promoDiscount"`
	QuantityDiscount decimal.Decimal `json:"quantityDiscount"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	TaxPercent       decimal.Decimal `json:"taxPercent"`
	Tax              decimal.Decimal `json:"tax"`
	Total            decimal.Decimal `json:"total"`
}

var (
	ErrNegativePrice   = errors.New("price must not be negative")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidPromo    = errors.New("invalid promotion")
	ErrInvalidTax      = errors.New("tax percentage must not be negative")
)

// Compute applies, in order: promotion, quantity tier, minimum-charge floor,
// tax on the discounted subtotal.
func Compute(in Input) (Breakdown, error) {
	qty := in.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return Breakdown{}, ErrInvalidQuantity
	}
	if in.BasePrice.IsNegative() || in.GrossPrice.IsNegative() {
		return Breakdown{}, ErrNegativePrice
	}
	if in.TaxPercent.IsNegative() {
		return Breakdown{}, ErrInvalidTax
	}
	minimum := in.MinimumCharge
	if minimum.IsZero() {
		minimum = one
	}

	units := decimal.NewFromInt(int64(qty))
	value := in.BasePrice.Mul(units)

	gross := value
	if !in.GrossPrice.IsZero() {
		gross = in.GrossPrice.Mul(units)
	}
	planDiscount := gross.Sub(value)
	if planDiscount.IsNegative() {
		planDiscount = decimal.Zero
	}

	promoDiscount := decimal.Zero
	if in.Promo != nil {
		switch in.Promo.Type {
		case PromoFixed:
			if in.Promo.Amount.IsNegative() {
				return Breakdown{}, fmt.Errorf("%w: negative amount", ErrInvalidPromo)
			}
			promoDiscount = in.Promo.Amount
		case PromoPercentage:
			if in.Promo.Amount.IsNegative() || in.Promo.Amount.GreaterThan(hundred) {
				return Breakdown{}, fmt.Errorf("%w: percentage out of range", ErrInvalidPromo)
			}
			promoDiscount = value.Mul(in.Promo.Amount).Div(hundred)
		default:
			return Breakdown{}, fmt.Errorf("%w: unknown type %q", ErrInvalidPromo, in.Promo.Type)
		}
	}
	subtotal := value.Sub(promoDiscount)

	quantityDiscount := decimal.Zero
	if in.Tier != nil && in.Tier.MinQuantity > 0 && qty >= in.Tier.MinQuantity && in.Tier.DiscountPercent.IsPositive() {
		quantityDiscount = subtotal.Mul(in.Tier.DiscountPercent).Div(hundred)
		subtotal = subtotal.Sub(quantityDiscount)
	}

	if subtotal.LessThan(minimum) {
		subtotal = minimum
	}

	tax := subtotal.Mul(in.TaxPercent).Div(hundred)
	total := subtotal.Add(tax)

	return Breakdown{
		Quantity:         qty,
		GrossValue:       gross.Round(2),
		PlanDiscount:     planDiscount.Round(2),
		PromoDiscount:    promoDiscount.Round(2),
		QuantityDiscount: quantityDiscount.Round(2),
		Subtotal:         subtotal.Round(2),
		TaxPercent:       in.TaxPercent,
		Tax:              tax.Round(2),
		Total:            total.Round(2),
	}, nil
}

var ErrUnknownAddOn = errors.New("add-on feature is not sold for this package")

// ComputeAddOn prices a set of entitlement increments from per-unit prices.
func ComputeAddOn(unitPrices map[string]decimal.Decimal, deltas map[string]int, taxPercent decimal.Decimal) (Breakdown, error) {
	if len(deltas) == 0 {
		return Breakdown{}, ErrInvalidQuantity
	}
	features := make([]string, 0, len(deltas))
	for f := range deltas {
		features = append(features, f)
	}
	sort.Strings(features)

	sum := decimal.Zero
	for _, f := range features {
		n := deltas[f]
		if n <= 0 {
			return Breakdown{}, fmt.Errorf("%w: %s", ErrInvalidQuantity, f)
		}
		price, ok := unitPrices[f]
		if !ok {
			return Breakdown{}, fmt.Errorf("%w: %s", ErrUnknownAddOn, f)
		}
		sum = sum.Add(price.Mul(decimal.NewFromInt(int64(n))))
	}
	return Compute(Input{BasePrice: sum, Quantity: 1, TaxPercent: taxPercent})
}

// ToMinorUnits converts an amount to the gateway's integer minor currency
// unit (paise, cents).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
