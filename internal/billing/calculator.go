// Package billing computes electricity bills: a base value from the
// customer class's rate strategy, then each charge layer folded over it in
// the order given.
package billing

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bher20/ebill/internal/charges"
	"github.com/bher20/ebill/internal/errs"
	"github.com/bher20/ebill/internal/metrics"
	"github.com/bher20/ebill/internal/rates"
	"github.com/bher20/ebill/internal/tariff"
)

// KindBase tags the first breakdown entry.
const KindBase charges.Kind = "base"

// Source is the tariff lookup API the calculator reads. *tariff.Registry
// satisfies it.
type Source interface {
	rates.RateSource
	charges.FlagSource
}

// Entry is one breakdown line. Subtotal is the running total after Amount.
type Entry struct {
	Kind     charges.Kind
	Label    string
	Amount   decimal.Decimal
	Subtotal decimal.Decimal
}

// Result is a computed bill. Entries[0] is the base value; the rest follow
// layer order. Total equals the sum of all entry amounts.
type Result struct {
	Class          tariff.Class
	Strategy       string
	ConsumptionKWh decimal.Decimal
	Base           rates.Quote
	Entries        []Entry
	Total          decimal.Decimal
}

// Sum adds up the entry amounts.
func (r *Result) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range r.Entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}

// Calculator computes bills against a tariff source. It keeps no per-call
// state and is safe for concurrent use.
type Calculator struct {
	src Source
	log *zap.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithLogger sets the logger used for compute outcomes.
func WithLogger(l *zap.Logger) Option {
	return func(c *Calculator) {
		if l != nil {
			c.log = l
		}
	}
}

// NewCalculator returns a Calculator reading from src.
func NewCalculator(src Source, opts ...Option) *Calculator {
	c := &Calculator{src: src, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute bills kwh for class with layers applied left to right. Any failure
// aborts the computation and no result is returned.
func (c *Calculator) Compute(class tariff.Class, kwh decimal.Decimal, layers []charges.Spec) (*Result, error) {
	started := time.Now()
	res, err := c.compute(class, kwh, layers)
	if err != nil {
		kind := errs.KindOf(err)
		if kind == "" {
			kind = "UNKNOWN"
		}
		metrics.ObserveBill(string(class), started, string(kind))
		c.log.Warn("bill computation failed",
			zap.String("class", string(class)),
			zap.String("kwh", kwh.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return nil, err
	}
	metrics.ObserveBill(string(class), started, "")
	c.log.Debug("bill computed",
		zap.String("class", string(class)),
		zap.String("kwh", kwh.String()),
		zap.String("total", res.Total.String()),
		zap.Int("entries", len(res.Entries)))
	return res, nil
}

func (c *Calculator) compute(class tariff.Class, kwh decimal.Decimal, layers []charges.Spec) (*Result, error) {
	strategy, err := rates.ForClass(class, c.src)
	if err != nil {
		return nil, err
	}
	quote, err := strategy.Calculate(kwh)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Class:          class,
		Strategy:       strategy.Describe(),
		ConsumptionKWh: kwh,
		Base:           quote,
		Entries:        make([]Entry, 0, len(layers)+1),
		Total:          quote.Value,
	}
	res.Entries = append(res.Entries, Entry{
		Kind:     KindBase,
		Label:    strategy.Describe(),
		Amount:   quote.Value,
		Subtotal: quote.Value,
	})

	st := charges.State{ConsumptionKWh: kwh, Base: quote.Value, Current: quote.Value}
	for _, layer := range layers {
		applied, err := layer.Apply(c.src, st)
		if err != nil {
			return nil, err
		}
		st.Current = st.Current.Add(applied.Amount)
		res.Entries = append(res.Entries, Entry{
			Kind:     applied.Kind,
			Label:    applied.Label,
			Amount:   applied.Amount,
			Subtotal: st.Current,
		})
	}
	res.Total = st.Current
	return res, nil
}
