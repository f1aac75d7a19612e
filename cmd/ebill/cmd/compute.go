// Package cmd - compute command
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bher20/ebill/internal/billing"
	"github.com/bher20/ebill/internal/charges"
	"github.com/bher20/ebill/internal/notification"
	"github.com/bher20/ebill/internal/statement"
	"github.com/bher20/ebill/internal/storage"
	"github.com/bher20/ebill/internal/tariff"
)

type computeOptions struct {
	class    string
	kwh      string
	previous string
	current  string
	month    string
	layers   []string
	standard string

	customer string
	name     string
	address  string

	format string
	pdf    string
	xlsx   string
	email  string
}

func newComputeCmd(a *app) *cobra.Command {
	o := &computeOptions{}
	c := &cobra.Command{
		Use:   "compute",
		Short: "Compute a bill for one consumption reading",
		Long: `Compute the bill for a customer class and a consumption.

Consumption is given directly with --kwh or as a pair of meter readings
with --previous and --current. Charge layers apply in the order given:

  flag:<id>               tariff flag surcharge
  tax:<preset>            icms, pis, cofins, pis_cofins
  tax:<name>=<fraction>   percentage of the running value
  fee:lighting            public lighting fee
  fee:<name>=<amount>     fixed fee
  municipal:<fraction>    percentage of the base value

--standard <flag> prepends the usual chain: flag, PIS/COFINS, ICMS, lighting.
A customer code turns the bill into an issued statement, which can be
exported with --pdf/--xlsx or mailed with --email.

Examples:
  ebill compute --class residential --kwh 250 --standard red1
  ebill compute --class industrial --previous 10200 --current 12800 --layer tax:icms
  ebill compute --class commercial --kwh 640 --customer C-100 --name "Acme Ltd" --pdf bill.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error { return runCompute(cmd, a, o) },
	}

	f := c.Flags()
	f.StringVarP(&o.class, "class", "c", "", "customer class (residential, commercial, industrial) [REQUIRED]")
	f.StringVar(&o.kwh, "kwh", "", "consumption in kWh")
	f.StringVar(&o.previous, "previous", "", "previous meter reading")
	f.StringVar(&o.current, "current", "", "current meter reading")
	f.StringVar(&o.month, "month", "", "reference month MM/YYYY (default: month of today)")
	f.StringArrayVarP(&o.layers, "layer", "l", nil, "charge layer, repeatable, applied in order")
	f.StringVar(&o.standard, "standard", "", "prepend the standard layer chain for this flag")
	f.StringVar(&o.customer, "customer", "", "customer code; issues a statement")
	f.StringVar(&o.name, "name", "", "customer name")
	f.StringVar(&o.address, "address", "", "customer address")
	f.StringVarP(&o.format, "format", "f", "text", "output format (text, json)")
	f.StringVar(&o.pdf, "pdf", "", "write the statement as PDF to this path")
	f.StringVar(&o.xlsx, "xlsx", "", "write the statement as XLSX to this path")
	f.StringVar(&o.email, "email", "", "mail the statement PDF to this address")
	c.MarkFlagRequired("class")
	c.MarkFlagsMutuallyExclusive("kwh", "previous")
	c.MarkFlagsMutuallyExclusive("kwh", "current")
	c.MarkFlagsRequiredTogether("previous", "current")
	return c
}

func (o *computeOptions) specs() ([]charges.Spec, error) {
	var out []charges.Spec
	if o.standard != "" {
		out = append(out, charges.StandardLayers(o.standard)...)
	}
	for _, raw := range o.layers {
		spec, err := charges.ParseSpec(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

// consumption parses the consumption flags. A direct --kwh value is returned
// as kwh with direct set; meter readings come back in r.
func (o *computeOptions) consumption() (r statement.Reading, kwh decimal.Decimal, direct bool, err error) {
	r = statement.Reading{Month: o.month}
	switch {
	case o.kwh != "":
		if kwh, err = decimal.NewFromString(o.kwh); err != nil {
			return r, kwh, false, fmt.Errorf("invalid --kwh %q: %w", o.kwh, err)
		}
		return r, kwh, true, nil
	case o.previous != "":
		prev, err := decimal.NewFromString(o.previous)
		if err != nil {
			return r, kwh, false, fmt.Errorf("invalid --previous %q: %w", o.previous, err)
		}
		cur, err := decimal.NewFromString(o.current)
		if err != nil {
			return r, kwh, false, fmt.Errorf("invalid --current %q: %w", o.current, err)
		}
		r.Previous, r.Current = prev, cur
		return r, kwh, false, nil
	default:
		return r, kwh, false, fmt.Errorf("consumption is required: use --kwh or --previous/--current")
	}
}

func (o *computeOptions) issuesStatement() bool {
	return o.customer != "" || o.pdf != "" || o.xlsx != "" || o.email != ""
}

func runCompute(cmd *cobra.Command, a *app, o *computeOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if o.format != "text" && o.format != "json" {
		return fmt.Errorf("unsupported output format %q (use text or json)", o.format)
	}
	class, err := tariff.ParseClass(o.class)
	if err != nil {
		return err
	}
	reading, kwh, direct, err := o.consumption()
	if err != nil {
		return err
	}
	specs, err := o.specs()
	if err != nil {
		return err
	}

	var st storage.Storage
	if a.cfg.TariffFile == "" {
		if st, err = a.openStorage(ctx); err != nil {
			return err
		}
		defer st.Close()
	}
	reg, err := a.registry(ctx, st)
	if err != nil {
		return err
	}
	calc := billing.NewCalculator(reg, billing.WithLogger(a.log))

	if !o.issuesStatement() {
		if !direct {
			if kwh, err = reading.KWh(); err != nil {
				return err
			}
		}
		res, err := calc.Compute(class, kwh, specs)
		if err != nil {
			return err
		}
		if o.format == "json" {
			return writeJSON(out, newBillView(res))
		}
		return printBill(out, res)
	}

	if o.customer == "" {
		return fmt.Errorf("--customer is required to issue a statement")
	}
	cust := statement.Customer{Code: o.customer, Name: o.name, Class: class, Address: o.address}
	var stmt *statement.Statement
	if direct {
		stmt, err = statement.IssueConsumption(calc, cust, o.month, kwh, specs, time.Now())
	} else {
		stmt, err = statement.Issue(calc, cust, reading, specs, time.Now())
	}
	if err != nil {
		return err
	}
	a.log.Info("statement issued",
		zap.String("id", stmt.ID),
		zap.String("customer", cust.Code),
		zap.String("total", stmt.Bill.Total.StringFixed(2)))

	if o.format == "json" {
		err = writeJSON(out, newStatementView(stmt))
	} else {
		err = statement.Render(out, stmt)
	}
	if err != nil {
		return err
	}

	if o.pdf != "" {
		if err := writeExport(o.pdf, stmt, statement.BuildPDF); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ PDF written to %s\n", o.pdf)
	}
	if o.xlsx != "" {
		if err := writeExport(o.xlsx, stmt, statement.BuildXLSX); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ XLSX written to %s\n", o.xlsx)
	}
	if o.email != "" {
		if !a.cfg.Mail.Enabled() {
			return fmt.Errorf("mail is not configured: set EBILL_MAIL_PROVIDER and EBILL_MAIL_FROM")
		}
		if err := notification.NewService(a.cfg.Mail, a.log).SendStatement(ctx, o.email, stmt); err != nil {
			return fmt.Errorf("send statement: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Statement mailed to %s\n", o.email)
	}
	return nil
}

func writeExport(path string, stmt *statement.Statement, build func(*statement.Statement) ([]byte, error)) error {
	data, err := build(stmt)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func printBill(w io.Writer, res *billing.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Class:\t%s\n", res.Class)
	fmt.Fprintf(tw, "Strategy:\t%s\n", res.Strategy)
	fmt.Fprintf(tw, "Consumption:\t%s kWh\n", res.ConsumptionKWh.StringFixed(2))
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "KIND\tDESCRIPTION\tAMOUNT\tSUBTOTAL")
	for _, e := range res.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Kind, e.Label, e.Amount.StringFixed(2), e.Subtotal.StringFixed(2))
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "TOTAL:\t\t%s\n", res.Total.StringFixed(2))
	return tw.Flush()
}

type entryView struct {
	Kind     string `json:"kind"`
	Label    string `json:"label"`
	Amount   string `json:"amount"`
	Subtotal string `json:"subtotal"`
}

type billView struct {
	Class          string      `json:"class"`
	Strategy       string      `json:"strategy"`
	ConsumptionKWh string      `json:"consumption_kwh"`
	Entries        []entryView `json:"entries"`
	Total          string      `json:"total"`
}

func newBillView(res *billing.Result) billView {
	v := billView{
		Class:          string(res.Class),
		Strategy:       res.Strategy,
		ConsumptionKWh: res.ConsumptionKWh.String(),
		Entries:        make([]entryView, 0, len(res.Entries)),
		Total:          res.Total.StringFixed(2),
	}
	for _, e := range res.Entries {
		v.Entries = append(v.Entries, entryView{
			Kind:     string(e.Kind),
			Label:    e.Label,
			Amount:   e.Amount.StringFixed(2),
			Subtotal: e.Subtotal.StringFixed(2),
		})
	}
	return v
}

type statementView struct {
	ID       string             `json:"id"`
	Customer statement.Customer `json:"customer"`
	Month    string             `json:"month"`
	IssuedAt time.Time          `json:"issued_at"`
	DueAt    time.Time          `json:"due_at"`
	Bill     billView           `json:"bill"`
}

func newStatementView(stmt *statement.Statement) statementView {
	return statementView{
		ID:       stmt.ID,
		Customer: stmt.Customer,
		Month:    stmt.Reading.Month,
		IssuedAt: stmt.IssuedAt,
		DueAt:    stmt.DueAt,
		Bill:     newBillView(stmt.Bill),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
