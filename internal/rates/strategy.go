package rates

import (
	"github.com/shopspring/decimal"

	"github.com/bher20/ebill/internal/errs"
	"github.com/bher20/ebill/internal/tariff"
)

// RateSource supplies the current rate entry for a customer class.
// *tariff.Registry satisfies it.
type RateSource interface {
	GetRate(class tariff.Class) (tariff.ClassRate, error)
}

// Line is one itemized component of a base value (a tier band, a discount,
// a demand charge). Discount lines carry a negative Amount.
type Line struct {
	Label  string
	KWh    decimal.Decimal
	Rate   decimal.Decimal
	Amount decimal.Decimal
}

// Quote is the base value a strategy computed, with its itemization.
type Quote struct {
	Value decimal.Decimal
	Lines []Line
}

// Strategy maps consumption to a base monetary value for one customer class.
// Implementations hold no state between calls and read the rate source once
// per Calculate.
type Strategy interface {
	Class() tariff.Class
	Calculate(kwh decimal.Decimal) (Quote, error)
	Describe() string
}

// ForClass returns the strategy for class. An unknown class fails before the
// rate source is consulted.
func ForClass(class tariff.Class, src RateSource) (Strategy, error) {
	switch class {
	case tariff.Residential:
		return ResidentialStrategy{src: src}, nil
	case tariff.Commercial:
		return CommercialStrategy{src: src}, nil
	case tariff.Industrial:
		return IndustrialStrategy{src: src}, nil
	default:
		return nil, errs.UnknownClass(string(class))
	}
}

func checkConsumption(kwh decimal.Decimal) error {
	if kwh.IsNegative() {
		return errs.Newf(errs.KindInvalidConsumption, "consumption %s kWh is negative", kwh).
			WithContext("kwh", kwh.String())
	}
	return nil
}
