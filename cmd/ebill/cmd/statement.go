// Package cmd - issued statement tools
package cmd

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/bher20/ebill/internal/statement"
)

func newStatementCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "statement",
		Short: "Inspect issued statements",
	}
	c.AddCommand(newStatementVerifyCmd())
	return c
}

func newStatementVerifyCmd() *cobra.Command {
	var format, total string
	c := &cobra.Command{
		Use:   "verify <pdf>",
		Short: "Read the statement ID and total back from a statement PDF",
		Long: `Read the statement ID and total due back from a PDF written by
"ebill compute --pdf". With --total the command fails unless the PDF
carries that amount.

Examples:
  ebill statement verify bill.pdf
  ebill statement verify bill.pdf --total 214.73 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("unsupported output format %q (use text or json)", format)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			sum, err := statement.ReadPDF(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if total != "" {
				want, err := decimal.NewFromString(total)
				if err != nil {
					return fmt.Errorf("invalid --total %q: %w", total, err)
				}
				if !sum.Total.Equal(want) {
					return fmt.Errorf("%s: total due is %s, expected %s", args[0], sum.Total.StringFixed(2), want.StringFixed(2))
				}
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				return writeJSON(out, struct {
					ID    string `json:"id"`
					Total string `json:"total"`
				}{sum.ID, sum.Total.StringFixed(2)})
			}
			fmt.Fprintf(out, "Statement: %s\n", sum.ID)
			fmt.Fprintf(out, "Total due: %s\n", sum.Total.StringFixed(2))
			return nil
		},
	}
	c.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json)")
	c.Flags().StringVar(&total, "total", "", "expected total due")
	return c
}
