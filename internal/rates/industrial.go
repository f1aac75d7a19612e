package rates

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bher20/ebill/internal/tariff"
)

// IndustrialStrategy bills a flat rate plus the demand charge. The whole total
// is then reduced by the percentage of the highest discount band consumption
// has reached, a step rather than the marginal discount Commercial uses.
type IndustrialStrategy struct {
	src RateSource
}

func (IndustrialStrategy) Class() tariff.Class { return tariff.Industrial }

func (IndustrialStrategy) Describe() string {
	return "Industrial - flat rate with step volume discount"
}

func (s IndustrialStrategy) Calculate(kwh decimal.Decimal) (Quote, error) {
	if err := checkConsumption(kwh); err != nil {
		return Quote{}, err
	}
	rate, err := s.src.GetRate(tariff.Industrial)
	if err != nil {
		return Quote{}, err
	}

	energy := kwh.Mul(rate.Rate)
	q := Quote{
		Value: energy,
		Lines: []Line{{Label: "Energy", KWh: kwh, Rate: rate.Rate, Amount: energy}},
	}
	if rate.DemandCharge.IsPositive() {
		q.Value = q.Value.Add(rate.DemandCharge)
		q.Lines = append(q.Lines, Line{Label: "Demand charge", Amount: rate.DemandCharge})
	}

	if band, ok := reachedBand(rate.Discounts, kwh); ok && band.Percent.IsPositive() {
		discount := q.Value.Mul(band.Percent)
		q.Value = q.Value.Sub(discount)
		q.Lines = append(q.Lines, Line{
			Label:  fmt.Sprintf("Volume discount %s%% (>=%s kWh)", band.Percent.Shift(2), band.From),
			KWh:    kwh,
			Amount: discount.Neg(),
		})
	}
	return q, nil
}

// reachedBand returns the last band whose start kwh has reached.
func reachedBand(bands []tariff.Discount, kwh decimal.Decimal) (tariff.Discount, bool) {
	for i := len(bands) - 1; i >= 0; i-- {
		if kwh.GreaterThanOrEqual(bands[i].From) {
			return bands[i], true
		}
	}
	return tariff.Discount{}, false
}
