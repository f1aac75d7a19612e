package rates

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bher20/ebill/internal/tariff"
)

// ResidentialStrategy bills consumption progressively across tier bands.
type ResidentialStrategy struct {
	src RateSource
}

func (ResidentialStrategy) Class() tariff.Class { return tariff.Residential }

func (ResidentialStrategy) Describe() string { return "Residential - progressive tiers" }

// Calculate bills the kWh falling inside each band at that band's rate.
// Consumption beyond the last bounded band is billed at the last rate.
func (s ResidentialStrategy) Calculate(kwh decimal.Decimal) (Quote, error) {
	if err := checkConsumption(kwh); err != nil {
		return Quote{}, err
	}
	rate, err := s.src.GetRate(tariff.Residential)
	if err != nil {
		return Quote{}, err
	}
	return tieredQuote(kwh, rate.Tiers), nil
}

func tieredQuote(kwh decimal.Decimal, tiers []tariff.Tier) Quote {
	q := Quote{Value: decimal.Zero}
	remaining := kwh
	lower := decimal.Zero

	for i, tier := range tiers {
		if !remaining.IsPositive() {
			break
		}
		last := i == len(tiers)-1

		inTier := remaining
		if !tier.Unbounded() && !last {
			inTier = decimal.Min(remaining, tier.UpTo.Sub(lower))
		}
		amount := inTier.Mul(tier.Rate)
		q.Value = q.Value.Add(amount)
		q.Lines = append(q.Lines, Line{
			Label:  tierLabel(i, lower, tier, last),
			KWh:    inTier,
			Rate:   tier.Rate,
			Amount: amount,
		})

		remaining = remaining.Sub(inTier)
		if !tier.Unbounded() {
			lower = tier.UpTo
		}
	}
	return q
}

func tierLabel(i int, lower decimal.Decimal, tier tariff.Tier, last bool) string {
	if tier.Unbounded() || last {
		return fmt.Sprintf("Tier %d (>%s kWh)", i+1, lower)
	}
	return fmt.Sprintf("Tier %d (%s-%s kWh)", i+1, lower, tier.UpTo)
}
