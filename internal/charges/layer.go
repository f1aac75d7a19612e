// Package charges defines the layers added on top of a bill's base value:
// tariff flag surcharges, percentage taxes, fixed fees and the municipal
// contribution.
package charges

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bher20/ebill/internal/errs"
	"github.com/bher20/ebill/internal/tariff"
)

// Kind tags a layer variant.
type Kind string

const (
	KindFlag      Kind = "flag"
	KindTax       Kind = "tax"
	KindFee       Kind = "fee"
	KindMunicipal Kind = "municipal"
)

// FlagSource supplies tariff flag entries. *tariff.Registry satisfies it.
type FlagSource interface {
	GetSurcharge(flagID string) (tariff.Flag, error)
}

// Spec describes one layer. Only the fields relevant to Kind are used.
type Spec struct {
	Kind       Kind
	Name       string
	FlagID     string
	Percentage decimal.Decimal
	Amount     decimal.Decimal
}

// Flag is a tariff flag surcharge. Its rate and mode come from the registry.
func Flag(flagID string) Spec {
	return Spec{Kind: KindFlag, FlagID: flagID}
}

// Tax adds pct of the running value. pct is a fraction in [0, 1].
func Tax(name string, pct decimal.Decimal) Spec {
	return Spec{Kind: KindTax, Name: name, Percentage: pct}
}

// Fee adds a fixed amount.
func Fee(name string, amount decimal.Decimal) Spec {
	return Spec{Kind: KindFee, Name: name, Amount: amount}
}

// Municipal adds pct of the base value, ignoring layers applied before it.
func Municipal(pct decimal.Decimal) Spec {
	return Spec{Kind: KindMunicipal, Name: "Municipal contribution", Percentage: pct}
}

// State is what a layer sees when it is applied.
type State struct {
	ConsumptionKWh decimal.Decimal
	Base           decimal.Decimal
	Current        decimal.Decimal
}

// Applied is a layer's contribution.
type Applied struct {
	Kind   Kind
	Label  string
	Amount decimal.Decimal
}

var one = decimal.NewFromInt(1)

// Validate checks the spec's own parameters. It does not consult the registry.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindFlag:
		if strings.TrimSpace(s.FlagID) == "" {
			return errs.UnknownFlag(s.FlagID)
		}
	case KindTax, KindMunicipal:
		if s.Percentage.IsNegative() || s.Percentage.GreaterThan(one) {
			return errs.Newf(errs.KindInvalidPercentage, "%s %q: %s is outside [0, 1]", s.Kind, s.Name, s.Percentage).
				WithContext("percentage", s.Percentage.String())
		}
	case KindFee:
		if s.Amount.IsNegative() {
			return errs.Newf(errs.KindInvalidAmount, "fee %q: %s is negative", s.Name, s.Amount).
				WithContext("amount", s.Amount.String())
		}
	default:
		return fmt.Errorf("charges: unknown layer kind %q", s.Kind)
	}
	return nil
}

// Apply computes the layer's contribution for st.
func (s Spec) Apply(src FlagSource, st State) (Applied, error) {
	if err := s.Validate(); err != nil {
		return Applied{}, err
	}
	switch s.Kind {
	case KindFlag:
		f, err := src.GetSurcharge(s.FlagID)
		if err != nil {
			return Applied{}, err
		}
		return Applied{Kind: KindFlag, Label: f.Label, Amount: f.Charge(st.ConsumptionKWh)}, nil
	case KindTax:
		return Applied{Kind: KindTax, Label: s.label(), Amount: st.Current.Mul(s.Percentage)}, nil
	case KindMunicipal:
		return Applied{Kind: KindMunicipal, Label: s.label(), Amount: st.Base.Mul(s.Percentage)}, nil
	default:
		return Applied{Kind: KindFee, Label: s.label(), Amount: s.Amount}, nil
	}
}

func (s Spec) label() string {
	switch s.Kind {
	case KindTax, KindMunicipal:
		return fmt.Sprintf("%s (%s%%)", s.Name, s.Percentage.Shift(2))
	default:
		return s.Name
	}
}

// String renders the spec in the form ParseSpec accepts.
func (s Spec) String() string {
	switch s.Kind {
	case KindFlag:
		return "flag:" + s.FlagID
	case KindTax:
		return fmt.Sprintf("tax:%s=%s", s.Name, s.Percentage)
	case KindFee:
		return fmt.Sprintf("fee:%s=%s", s.Name, s.Amount)
	case KindMunicipal:
		return "municipal:" + s.Percentage.String()
	}
	return string(s.Kind)
}
