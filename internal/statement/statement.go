// Package statement turns a computed bill into an issued customer statement
// and renders it as text, PDF or XLSX.
package statement

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bher20/ebill/internal/billing"
	"github.com/bher20/ebill/internal/charges"
	"github.com/bher20/ebill/internal/errs"
	"github.com/bher20/ebill/internal/tariff"
)

// DueAfter is the payment window from issue date to due date.
const DueAfter = 10 * 24 * time.Hour

// Customer identifies the billed consumer.
type Customer struct {
	Code    string       `json:"code"`
	Name    string       `json:"name"`
	Class   tariff.Class `json:"class"`
	Address string       `json:"address,omitempty"`
}

// Validate checks that the customer has a code and a supported class.
func (c Customer) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return fmt.Errorf("statement: customer code is required")
	}
	if !c.Class.Valid() {
		return errs.UnknownClass(string(c.Class))
	}
	return nil
}

// Reading is a pair of meter readings for one reference month.
type Reading struct {
	Month    string          `json:"month"`
	ReadAt   time.Time       `json:"read_at"`
	Previous decimal.Decimal `json:"previous"`
	Current  decimal.Decimal `json:"current"`
}

// Validate rejects negative readings and meters that went backwards.
func (r Reading) Validate() error {
	if r.Previous.IsNegative() || r.Current.IsNegative() {
		return errs.Newf(errs.KindInvalidReading, "meter readings must not be negative (previous %s, current %s)", r.Previous, r.Current)
	}
	if r.Current.LessThan(r.Previous) {
		return errs.Newf(errs.KindInvalidReading, "current reading %s is below previous reading %s", r.Current, r.Previous).
			WithContext("previous", r.Previous.String()).
			WithContext("current", r.Current.String())
	}
	return nil
}

// KWh is the consumption between the two readings.
func (r Reading) KWh() (decimal.Decimal, error) {
	if err := r.Validate(); err != nil {
		return decimal.Zero, err
	}
	return r.Current.Sub(r.Previous), nil
}

// Computer computes bills. *billing.Calculator satisfies it.
type Computer interface {
	Compute(class tariff.Class, kwh decimal.Decimal, layers []charges.Spec) (*billing.Result, error)
}

// Statement is an issued bill.
type Statement struct {
	ID       string          `json:"id"`
	Customer Customer        `json:"customer"`
	Reading  Reading         `json:"reading"`
	Bill     *billing.Result `json:"bill"`
	IssuedAt time.Time       `json:"issued_at"`
	DueAt    time.Time       `json:"due_at"`
}

// Issue bills the customer's reading and stamps the statement at now.
func Issue(calc Computer, c Customer, r Reading, layers []charges.Spec, now time.Time) (*Statement, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	kwh, err := r.KWh()
	if err != nil {
		return nil, err
	}
	return issue(calc, c, r, kwh, layers, now)
}

// IssueConsumption bills a consumption given directly in kWh rather than as
// meter readings. The statement records it as the current reading from zero.
func IssueConsumption(calc Computer, c Customer, month string, kwh decimal.Decimal, layers []charges.Spec, now time.Time) (*Statement, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return issue(calc, c, Reading{Month: month, Current: kwh}, kwh, layers, now)
}

func issue(calc Computer, c Customer, r Reading, kwh decimal.Decimal, layers []charges.Spec, now time.Time) (*Statement, error) {
	if r.ReadAt.IsZero() {
		r.ReadAt = now
	}
	if r.Month == "" {
		r.Month = r.ReadAt.Format("01/2006")
	}

	bill, err := calc.Compute(c.Class, kwh, layers)
	if err != nil {
		return nil, fmt.Errorf("statement for customer %s: %w", c.Code, err)
	}
	return &Statement{
		ID:       uuid.New().String(),
		Customer: c,
		Reading:  r,
		Bill:     bill,
		IssuedAt: now,
		DueAt:    now.Add(DueAfter),
	}, nil
}
