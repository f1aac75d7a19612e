package tariff

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bher20/ebill/internal/errs"
)

// Class identifies a customer class. The set is closed.
type Class string

const (
	Residential Class = "residential"
	Commercial  Class = "commercial"
	Industrial  Class = "industrial"
)

// AllClasses lists every supported customer class.
var AllClasses = []Class{Residential, Commercial, Industrial}

// Valid reports whether c is one of the supported classes.
func (c Class) Valid() bool {
	switch c {
	case Residential, Commercial, Industrial:
		return true
	}
	return false
}

// ParseClass maps a case-insensitive class name to a Class.
func ParseClass(s string) (Class, error) {
	c := Class(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", errs.UnknownClass(s)
	}
	return c, nil
}

// Tier is one consumption band. UpTo is the band's upper bound in kWh; zero
// means unbounded and is only allowed on the last tier.
type Tier struct {
	UpTo decimal.Decimal
	Rate decimal.Decimal
}

// Unbounded reports whether the tier has no upper bound.
func (t Tier) Unbounded() bool { return t.UpTo.IsZero() }

// Discount is one volume discount band. It starts at From kWh and runs up to
// the next band's From.
type Discount struct {
	From    decimal.Decimal
	Percent decimal.Decimal
}

// ClassRate holds the figures a rate strategy needs for one customer class.
// Residential uses Tiers; Commercial and Industrial use Rate plus the
// Discounts bands, sorted by From. DemandCharge is a fixed monthly amount
// (industrial).
type ClassRate struct {
	Rate         decimal.Decimal
	Tiers        []Tier
	Discounts    []Discount
	DemandCharge decimal.Decimal
}

func (r ClassRate) clone() ClassRate {
	out := r
	if r.Tiers != nil {
		out.Tiers = make([]Tier, len(r.Tiers))
		copy(out.Tiers, r.Tiers)
	}
	if r.Discounts != nil {
		out.Discounts = make([]Discount, len(r.Discounts))
		copy(out.Discounts, r.Discounts)
	}
	return out
}

// Equal reports whether two rates hold the same figures.
func (r ClassRate) Equal(o ClassRate) bool {
	if !r.Rate.Equal(o.Rate) || !r.DemandCharge.Equal(o.DemandCharge) {
		return false
	}
	if len(r.Tiers) != len(o.Tiers) || len(r.Discounts) != len(o.Discounts) {
		return false
	}
	for i := range r.Tiers {
		if !r.Tiers[i].UpTo.Equal(o.Tiers[i].UpTo) || !r.Tiers[i].Rate.Equal(o.Tiers[i].Rate) {
			return false
		}
	}
	for i := range r.Discounts {
		if !r.Discounts[i].From.Equal(o.Discounts[i].From) || !r.Discounts[i].Percent.Equal(o.Discounts[i].Percent) {
			return false
		}
	}
	return true
}

// FlagMode says how a flag's rate turns into a charge.
type FlagMode string

const (
	PerKWh    FlagMode = "per_kwh"
	Per100KWh FlagMode = "per_100kwh"
	Fixed     FlagMode = "fixed"
)

// Valid reports whether m is a known mode.
func (m FlagMode) Valid() bool {
	switch m {
	case PerKWh, Per100KWh, Fixed:
		return true
	}
	return false
}

var hundred = decimal.NewFromInt(100)

// Flag is a tariff flag surcharge entry.
type Flag struct {
	Label string
	Rate  decimal.Decimal
	Mode  FlagMode
}

// Charge returns the surcharge owed for the given consumption.
func (f Flag) Charge(kwh decimal.Decimal) decimal.Decimal {
	switch f.Mode {
	case Fixed:
		return f.Rate
	case Per100KWh:
		return kwh.Mul(f.Rate).Div(hundred)
	default:
		return kwh.Mul(f.Rate)
	}
}

// Table is a full copy of the registry contents.
type Table struct {
	ReferenceMonth string
	UpdatedAt      time.Time
	Classes        map[Class]ClassRate
	Flags          map[string]Flag
}

func (t Table) clone() Table {
	out := Table{
		ReferenceMonth: t.ReferenceMonth,
		UpdatedAt:      t.UpdatedAt,
		Classes:        make(map[Class]ClassRate, len(t.Classes)),
		Flags:          make(map[string]Flag, len(t.Flags)),
	}
	for c, r := range t.Classes {
		out.Classes[c] = r.clone()
	}
	for id, f := range t.Flags {
		out.Flags[id] = f
	}
	return out
}

// FlagIDs returns the table's flag identifiers in sorted order.
func (t Table) FlagIDs() []string {
	ids := make([]string, 0, len(t.Flags))
	for id := range t.Flags {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var one = decimal.NewFromInt(1)

func validatePercent(what string, p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(one) {
		return errs.Newf(errs.KindInvalidPercentage, "%s: %s is outside [0, 1]", what, p)
	}
	return nil
}

func validateAmount(what string, v decimal.Decimal) error {
	if v.IsNegative() {
		return errs.Newf(errs.KindInvalidAmount, "%s: %s is negative", what, v)
	}
	return nil
}

// validateTiers checks that tiers are strictly increasing and that only the
// last tier is unbounded.
func validateTiers(class Class, tiers []Tier) error {
	prev := decimal.Zero
	for i, t := range tiers {
		if err := validateAmount(string(class)+" tier rate", t.Rate); err != nil {
			return err
		}
		if t.Unbounded() {
			if i != len(tiers)-1 {
				return errs.Newf(errs.KindInvalidTiers, "%s: unbounded tier %d is not last", class, i+1)
			}
			continue
		}
		if !t.UpTo.GreaterThan(prev) {
			return errs.Newf(errs.KindInvalidTiers, "%s: tier %d bound %s does not exceed %s", class, i+1, t.UpTo, prev)
		}
		prev = t.UpTo
	}
	return nil
}

// validateDiscounts checks that band starts are strictly increasing and each
// percentage lies in [0, 1].
func validateDiscounts(class Class, bands []Discount) error {
	for i, b := range bands {
		if err := validateAmount(string(class)+" discount start", b.From); err != nil {
			return err
		}
		if err := validatePercent(string(class)+" discount", b.Percent); err != nil {
			return err
		}
		if i > 0 && !b.From.GreaterThan(bands[i-1].From) {
			return errs.Newf(errs.KindInvalidTiers, "%s: discount band %d start %s does not exceed %s", class, i+1, b.From, bands[i-1].From)
		}
	}
	return nil
}

func validateClassRate(class Class, r ClassRate) error {
	if !class.Valid() {
		return errs.UnknownClass(string(class))
	}
	if err := validateAmount(string(class)+" rate", r.Rate); err != nil {
		return err
	}
	if err := validateAmount(string(class)+" demand charge", r.DemandCharge); err != nil {
		return err
	}
	if err := validateDiscounts(class, r.Discounts); err != nil {
		return err
	}
	if class == Residential && len(r.Tiers) == 0 {
		return errs.Newf(errs.KindInvalidTiers, "%s: at least one tier is required", class)
	}
	return validateTiers(class, r.Tiers)
}

func normalizeFlag(id string, f Flag) (Flag, error) {
	if strings.TrimSpace(id) == "" {
		return Flag{}, errs.UnknownFlag(id)
	}
	if f.Mode == "" {
		f.Mode = PerKWh
	}
	if !f.Mode.Valid() {
		return Flag{}, errs.Newf(errs.KindInvalidAmount, "flag %q: unknown mode %q", id, f.Mode)
	}
	if err := validateAmount("flag "+id, f.Rate); err != nil {
		return Flag{}, err
	}
	if f.Label == "" {
		f.Label = id
	}
	return f, nil
}
