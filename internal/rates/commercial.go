package rates

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bher20/ebill/internal/tariff"
)

// CommercialStrategy bills a flat rate with marginal volume discounts: each
// band's percentage applies only to the kWh inside that band, so the value is
// continuous across every band start.
type CommercialStrategy struct {
	src RateSource
}

func (CommercialStrategy) Class() tariff.Class { return tariff.Commercial }

func (CommercialStrategy) Describe() string {
	return "Commercial - flat rate with marginal volume discount"
}

func (s CommercialStrategy) Calculate(kwh decimal.Decimal) (Quote, error) {
	if err := checkConsumption(kwh); err != nil {
		return Quote{}, err
	}
	rate, err := s.src.GetRate(tariff.Commercial)
	if err != nil {
		return Quote{}, err
	}

	energy := kwh.Mul(rate.Rate)
	q := Quote{
		Value: energy,
		Lines: []Line{{Label: "Energy", KWh: kwh, Rate: rate.Rate, Amount: energy}},
	}

	for i, band := range rate.Discounts {
		upper := kwh
		if i+1 < len(rate.Discounts) {
			upper = decimal.Min(kwh, rate.Discounts[i+1].From)
		}
		inBand := upper.Sub(band.From)
		if !inBand.IsPositive() || !band.Percent.IsPositive() {
			continue
		}
		discount := inBand.Mul(rate.Rate).Mul(band.Percent)
		q.Value = q.Value.Sub(discount)
		q.Lines = append(q.Lines, Line{
			Label:  fmt.Sprintf("Volume discount %s%% (>%s kWh)", band.Percent.Shift(2), band.From),
			KWh:    inBand,
			Rate:   rate.Rate,
			Amount: discount.Neg(),
		})
	}
	return q, nil
}
