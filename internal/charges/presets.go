package charges

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var taxPresets = map[string]Spec{
	"icms":       Tax("ICMS", decimal.RequireFromString("0.18")),
	"pis":        Tax("PIS", decimal.RequireFromString("0.0165")),
	"cofins":     Tax("COFINS", decimal.RequireFromString("0.076")),
	"pis_cofins": Tax("PIS/COFINS", decimal.RequireFromString("0.0925")),
}

// DefaultLightingFee is the monthly public lighting fee.
var DefaultLightingFee = decimal.RequireFromString("15.00")

// TaxPreset returns a named standard tax.
func TaxPreset(id string) (Spec, bool) {
	s, ok := taxPresets[strings.ToLower(id)]
	return s, ok
}

// TaxPresets lists the standard tax identifiers.
func TaxPresets() []string {
	ids := make([]string, 0, len(taxPresets))
	for id := range taxPresets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LightingFee is the public lighting fee at the default amount.
func LightingFee() Spec {
	return Fee("Public lighting fee", DefaultLightingFee)
}

// StandardLayers is the usual chain: flag surcharge, PIS/COFINS, ICMS on top
// of that, then the lighting fee.
func StandardLayers(flagID string) []Spec {
	return []Spec{
		Flag(flagID),
		taxPresets["pis_cofins"],
		taxPresets["icms"],
		LightingFee(),
	}
}

// ParseSpec parses a layer from its command-line form:
//
//	flag:<id>
//	tax:<preset> | tax:<name>=<fraction>
//	fee:lighting | fee:<name>=<amount>
//	municipal:<fraction>
func ParseSpec(s string) (Spec, error) {
	kind, arg, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || arg == "" {
		return Spec{}, fmt.Errorf("charges: invalid layer %q", s)
	}
	name, value, hasValue := strings.Cut(arg, "=")

	var spec Spec
	switch Kind(strings.ToLower(kind)) {
	case KindFlag:
		spec = Flag(arg)
	case KindTax:
		if !hasValue {
			p, found := TaxPreset(name)
			if !found {
				return Spec{}, fmt.Errorf("charges: unknown tax preset %q (known: %s)", name, strings.Join(TaxPresets(), ", "))
			}
			return p, nil
		}
		pct, err := decimal.NewFromString(value)
		if err != nil {
			return Spec{}, fmt.Errorf("charges: tax %q: %w", name, err)
		}
		spec = Tax(name, pct)
	case KindFee:
		if !hasValue {
			if strings.EqualFold(name, "lighting") {
				return LightingFee(), nil
			}
			return Spec{}, fmt.Errorf("charges: fee %q needs an amount", name)
		}
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return Spec{}, fmt.Errorf("charges: fee %q: %w", name, err)
		}
		spec = Fee(name, amount)
	case KindMunicipal:
		pct, err := decimal.NewFromString(arg)
		if err != nil {
			return Spec{}, fmt.Errorf("charges: municipal: %w", err)
		}
		spec = Municipal(pct)
	default:
		return Spec{}, fmt.Errorf("charges: unknown layer kind %q", kind)
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}
