package tariff

import "github.com/shopspring/decimal"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// DefaultClasses returns the rates the registry starts with.
func DefaultClasses() map[Class]ClassRate {
	return map[Class]ClassRate{
		Residential: {
			Tiers: []Tier{
				{UpTo: d("100"), Rate: d("0.50")},
				{UpTo: d("300"), Rate: d("0.65")},
				{Rate: d("0.85")},
			},
		},
		Commercial: {
			Rate: d("0.75"),
			Discounts: []Discount{
				{From: d("500"), Percent: d("0.05")},
				{From: d("1000"), Percent: d("0.10")},
			},
		},
		Industrial: {
			Rate: d("0.60"),
			Discounts: []Discount{
				{From: d("2000"), Percent: d("0.12")},
				{From: d("5000"), Percent: d("0.18")},
			},
			DemandCharge: d("25.00"),
		},
	}
}

// DefaultFlags returns the tariff flags the registry starts with. Rates are
// charged per 100 kWh.
func DefaultFlags() map[string]Flag {
	return map[string]Flag{
		"green":  {Label: "Green flag", Rate: d("0.00"), Mode: Per100KWh},
		"yellow": {Label: "Yellow flag", Rate: d("1.50"), Mode: Per100KWh},
		"red1":   {Label: "Red flag - level 1", Rate: d("4.50"), Mode: Per100KWh},
		"red2":   {Label: "Red flag - level 2", Rate: d("7.00"), Mode: Per100KWh},
	}
}
