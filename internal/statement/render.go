package statement

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
)

const dateLayout = "02/01/2006"

func money(v decimal.Decimal) string { return v.StringFixed(2) }

func kwh(v decimal.Decimal) string { return v.StringFixed(2) + " kWh" }

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Render writes a plain-text summary of stmt.
func Render(w io.Writer, stmt *Statement) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	bill := stmt.Bill

	fmt.Fprintln(tw, "ELECTRICITY BILL")
	fmt.Fprintf(tw, "Statement:\t%s\n", stmt.ID)
	fmt.Fprintf(tw, "Customer:\t%s\n", stmt.Customer.Name)
	fmt.Fprintf(tw, "Code:\t%s\n", stmt.Customer.Code)
	fmt.Fprintf(tw, "Class:\t%s\n", title(string(stmt.Customer.Class)))
	if stmt.Customer.Address != "" {
		fmt.Fprintf(tw, "Address:\t%s\n", stmt.Customer.Address)
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Reference month:\t%s\n", stmt.Reading.Month)
	fmt.Fprintf(tw, "Previous reading:\t%s\n", kwh(stmt.Reading.Previous))
	fmt.Fprintf(tw, "Current reading:\t%s\n", kwh(stmt.Reading.Current))
	fmt.Fprintf(tw, "Consumption:\t%s\n", kwh(bill.ConsumptionKWh))
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "CHARGES")
	for _, line := range bill.Base.Lines {
		fmt.Fprintf(tw, "  %s\t%s\n", line.Label, money(line.Amount))
	}
	for _, e := range bill.Entries {
		fmt.Fprintf(tw, "%s\t%s\n", e.Label, money(e.Amount))
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "TOTAL DUE:\t%s\n", money(bill.Total))
	fmt.Fprintf(tw, "Issued:\t%s\n", stmt.IssuedAt.Format(dateLayout))
	fmt.Fprintf(tw, "Due:\t%s\n", stmt.DueAt.Format(dateLayout))
	return tw.Flush()
}
