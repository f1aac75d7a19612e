// Package cmd - tariff table management
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bher20/ebill/internal/cron"
	"github.com/bher20/ebill/internal/storage"
	"github.com/bher20/ebill/internal/tariff"
)

func newTariffsCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "tariffs",
		Short: "Inspect and update the stored tariff table",
		Long: `Tariff table management.

Every change is saved as a new snapshot of the table in the configured
storage; the latest snapshot is the table bills are computed against.
Unchanged tables are not saved again.`,
	}
	c.AddCommand(
		newTariffsShowCmd(a),
		newTariffsListCmd(a),
		newTariffsSetRateCmd(a),
		newTariffsSetFlagCmd(a),
		newTariffsSetMonthCmd(a),
		newTariffsResetCmd(a),
		newTariffsExportCmd(a),
		newTariffsImportCmd(a),
		newTariffsHistoryCmd(a),
		newTariffsScheduleCmd(a),
	)
	return c
}

// withTable opens storage, loads the current table and hands both to fn.
func (a *app) withTable(ctx context.Context, fn func(st storage.Storage, reg *tariff.Registry) error) error {
	var st storage.Storage
	if a.cfg.TariffFile == "" {
		var err error
		if st, err = a.openStorage(ctx); err != nil {
			return err
		}
		defer st.Close()
	}
	reg, err := a.registry(ctx, st)
	if err != nil {
		return err
	}
	return fn(st, reg)
}

// mutate applies change to the current table and saves the result.
func (a *app) mutate(cmd *cobra.Command, change func(reg *tariff.Registry) error) error {
	if a.cfg.TariffFile != "" {
		return fmt.Errorf("tariff document %s is read-only here; drop --tariffs to update storage", a.cfg.TariffFile)
	}
	return a.withTable(cmd.Context(), func(st storage.Storage, reg *tariff.Registry) error {
		if err := change(reg); err != nil {
			return err
		}
		snap, saved, err := storage.SaveRegistry(cmd.Context(), st, a.cfg.Table, reg)
		if err != nil {
			return err
		}
		if !saved {
			fmt.Fprintf(cmd.OutOrStdout(), "Table %q unchanged (snapshot %s)\n", a.cfg.Table, snap.ID)
			return nil
		}
		a.log.Info("tariff table saved", zap.String("table", a.cfg.Table), zap.String("snapshot", snap.ID))
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Table %q saved as snapshot %s\n", a.cfg.Table, snap.ID)
		return nil
	})
}

func newTariffsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current tariff table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTable(cmd.Context(), func(_ storage.Storage, reg *tariff.Registry) error {
				return printTable(cmd.OutOrStdout(), a.cfg.Table, reg.Snapshot())
			})
		},
	}
}

func printTable(w io.Writer, name string, t tariff.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Table:\t%s\n", name)
	if t.ReferenceMonth != "" {
		fmt.Fprintf(tw, "Reference month:\t%s\n", t.ReferenceMonth)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CLASS\tRATE\tDISCOUNT\tDEMAND\tTIERS")
	for _, class := range tariff.AllClasses {
		r, ok := t.Classes[class]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", class, dash(r.Rate), discounts(r.Discounts), dash(r.DemandCharge), tiers(r.Tiers))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "FLAG\tLABEL\tRATE\tMODE")
	for _, id := range t.FlagIDs() {
		f := t.Flags[id]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, f.Label, f.Rate, f.Mode)
	}
	return tw.Flush()
}

func dash(v decimal.Decimal) string {
	if v.IsZero() {
		return "-"
	}
	return v.String()
}

func tiers(ts []tariff.Tier) string {
	if len(ts) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ts))
	for _, t := range ts {
		if t.Unbounded() {
			parts = append(parts, "rest@"+t.Rate.String())
			continue
		}
		parts = append(parts, t.UpTo.String()+"@"+t.Rate.String())
	}
	return strings.Join(parts, " ")
}

func discounts(bands []tariff.Discount) string {
	if len(bands) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(bands))
	for _, b := range bands {
		parts = append(parts, b.Percent.Shift(2).String()+"%@"+b.From.String())
	}
	return strings.Join(parts, " ")
}

func newTariffsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored tariff tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			names, err := st.ListTables(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

// parseTier reads "<up_to>=<rate>" or a bare "<rate>" for the unbounded band.
func parseTier(s string) (tariff.Tier, error) {
	upTo, rate, bounded := strings.Cut(s, "=")
	if !bounded {
		rate, upTo = upTo, ""
	}
	var t tariff.Tier
	var err error
	if upTo != "" {
		if t.UpTo, err = decimal.NewFromString(upTo); err != nil {
			return t, fmt.Errorf("invalid tier bound %q: %w", upTo, err)
		}
	}
	if t.Rate, err = decimal.NewFromString(rate); err != nil {
		return t, fmt.Errorf("invalid tier rate %q: %w", rate, err)
	}
	return t, nil
}

// parseDiscount reads "<from>=<percent>".
func parseDiscount(raw string) (tariff.Discount, error) {
	var band tariff.Discount
	from, percent, ok := strings.Cut(raw, "=")
	if !ok {
		return band, fmt.Errorf("invalid discount %q: want <from_kwh>=<fraction>", raw)
	}
	var err error
	if band.From, err = decimal.NewFromString(strings.TrimSpace(from)); err != nil {
		return band, fmt.Errorf("invalid discount start %q: %w", from, err)
	}
	if band.Percent, err = decimal.NewFromString(strings.TrimSpace(percent)); err != nil {
		return band, fmt.Errorf("invalid discount percent %q: %w", percent, err)
	}
	return band, nil
}

func newTariffsSetRateCmd(a *app) *cobra.Command {
	var (
		rate, demand           string
		tierArgs, discountArgs []string
	)
	c := &cobra.Command{
		Use:   "set-rate <class>",
		Short: "Update the rate entry of a customer class",
		Long: `Update the rate entry of a customer class. Only the given fields change.

Residential tiers replace the whole tier list:
  ebill tariffs set-rate residential --tier 100=0.50 --tier 300=0.65 --tier 0.85

Commercial and industrial:
  ebill tariffs set-rate commercial --rate 0.78 --discount 500=0.05 --discount 1000=0.10
  ebill tariffs set-rate industrial --demand-charge 30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, err := tariff.ParseClass(args[0])
			if err != nil {
				return err
			}
			return a.mutate(cmd, func(reg *tariff.Registry) error {
				cur, err := reg.GetRate(class)
				if err != nil {
					return err
				}
				f := cmd.Flags()
				set := func(name, raw string, dst *decimal.Decimal) error {
					if !f.Changed(name) {
						return nil
					}
					v, err := decimal.NewFromString(raw)
					if err != nil {
						return fmt.Errorf("invalid --%s %q: %w", name, raw, err)
					}
					*dst = v
					return nil
				}
				if err := set("rate", rate, &cur.Rate); err != nil {
					return err
				}
				if err := set("demand-charge", demand, &cur.DemandCharge); err != nil {
					return err
				}
				if f.Changed("tier") {
					cur.Tiers = nil
					for _, raw := range tierArgs {
						t, err := parseTier(raw)
						if err != nil {
							return err
						}
						cur.Tiers = append(cur.Tiers, t)
					}
				}
				if f.Changed("discount") {
					cur.Discounts = nil
					for _, raw := range discountArgs {
						band, err := parseDiscount(raw)
						if err != nil {
							return err
						}
						cur.Discounts = append(cur.Discounts, band)
					}
				}
				return reg.UpdateRate(class, cur)
			})
		},
	}
	f := c.Flags()
	f.StringVar(&rate, "rate", "", "rate per kWh")
	f.StringArrayVar(&discountArgs, "discount", nil, "discount band as <from_kwh>=<fraction>, e.g. 500=0.05; repeatable")
	f.StringVar(&demand, "demand-charge", "", "fixed monthly demand charge")
	f.StringArrayVar(&tierArgs, "tier", nil, "tier as <up_to>=<rate>, or <rate> for the last band; repeatable")
	return c
}

func newTariffsSetFlagCmd(a *app) *cobra.Command {
	var rate, label, mode string
	c := &cobra.Command{
		Use:   "set-flag <id>",
		Short: "Add or update a tariff flag surcharge",
		Long: `Add or update a tariff flag surcharge.

Modes: per_kwh, per_100kwh, fixed.
  ebill tariffs set-flag red1 --rate 4.90
  ebill tariffs set-flag scarcity --label "Scarcity flag" --rate 14.20 --mode per_100kwh`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return a.mutate(cmd, func(reg *tariff.Registry) error {
				cur, err := reg.GetSurcharge(id)
				if err != nil {
					cur = tariff.Flag{Mode: tariff.Per100KWh}
				}
				f := cmd.Flags()
				if f.Changed("rate") {
					if cur.Rate, err = decimal.NewFromString(rate); err != nil {
						return fmt.Errorf("invalid --rate %q: %w", rate, err)
					}
				}
				if f.Changed("label") {
					cur.Label = label
				}
				if f.Changed("mode") {
					cur.Mode = tariff.FlagMode(mode)
				}
				return reg.UpdateSurcharge(id, cur)
			})
		},
	}
	c.Flags().StringVar(&rate, "rate", "", "flag rate [REQUIRED for new flags]")
	c.Flags().StringVar(&label, "label", "", "label shown on bills")
	c.Flags().StringVar(&mode, "mode", "", "charge mode (per_kwh, per_100kwh, fixed)")
	return c
}

func newTariffsSetMonthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-month <MM/YYYY>",
		Short: "Set the reference month of the tariff table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, func(reg *tariff.Registry) error {
				reg.SetReferenceMonth(args[0])
				return nil
			})
		},
	}
}

func newTariffsResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the built-in default tariff table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, func(reg *tariff.Registry) error {
				reg.Reset()
				return nil
			})
		},
	}
}

func newTariffsExportCmd(a *app) *cobra.Command {
	var format string
	c := &cobra.Command{
		Use:   "export [path]",
		Short: "Write the current table as a tariff document",
		Long: `Write the current table as a YAML or JSON tariff document. Without a path
the document goes to stdout; with one the format follows the extension
unless --format is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTable(cmd.Context(), func(_ storage.Storage, reg *tariff.Registry) error {
				f := tariff.Format(format)
				if len(args) == 1 && !cmd.Flags().Changed("format") {
					f = tariff.FormatForPath(args[0])
				}
				data, err := tariff.DocumentFromTable(reg.Snapshot()).Marshal(f)
				if err != nil {
					return err
				}
				if len(args) == 0 {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				if err := os.WriteFile(args[0], data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Table %q exported to %s\n", a.cfg.Table, args[0])
				return nil
			})
		},
	}
	c.Flags().StringVarP(&format, "format", "f", string(tariff.FormatYAML), "document format (yaml, json)")
	return c
}

func newTariffsImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Replace the stored table with a tariff document",
		Long: `Replace the stored table with the contents of a YAML or JSON tariff
document. The document is validated as a whole; nothing is saved if any
entry is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := tariff.LoadFile(args[0])
			if err != nil {
				return err
			}
			t, err := doc.Table()
			if err != nil {
				return err
			}
			return a.mutate(cmd, func(reg *tariff.Registry) error {
				return reg.Import(t)
			})
		},
	}
}

func newTariffsHistoryCmd(a *app) *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "history",
		Short: "List saved snapshots of the table, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			snaps, err := st.TableHistory(cmd.Context(), a.cfg.Table, limit)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No snapshots of table %q\n", a.cfg.Table)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SNAPSHOT\tSAVED\tCHECKSUM")
			for _, s := range snaps {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.SavedAt.Format("2006-01-02 15:04:05"), s.Checksum[:12])
			}
			return tw.Flush()
		},
	}
	c.Flags().IntVarP(&limit, "limit", "n", 10, "number of snapshots to show (0 for all)")
	return c
}

func printLastRun(w io.Writer, job *storage.ScheduledJob) {
	status := "ok"
	if job.LastSuccess == 0 {
		status = "failed: " + job.LastError
	}
	dur := time.Duration(job.LastDurationMs) * time.Millisecond
	fmt.Fprintf(w, "Last reload: %s (%s, %s)\n", job.LastRunAt.UTC().Format(time.RFC3339), dur, status)
}

func newTariffsScheduleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule [schedule]",
		Short: "Show or store the reload schedule used by watch",
		Long: `Show or store the reload schedule used by "ebill watch". The schedule is
a whole number of seconds or a cron expression such as "*/10 * * * *" or
"@every 10m". A stored schedule takes precedence over EBILL_RELOAD_SCHEDULE.

Without an argument the last recorded reload, if any, is shown as well.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStorage(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 0 {
				spec, err := cron.ResolveSchedule(ctx, st, a.cfg.ReloadSchedule)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), spec)
				js, ok := st.(storage.JobStore)
				if !ok {
					return nil
				}
				job, err := js.GetScheduledJob(ctx, cron.JobName)
				if err != nil {
					return err
				}
				if job != nil {
					printLastRun(cmd.OutOrStdout(), job)
				}
				return nil
			}
			spec, err := cron.NormalizeSchedule(args[0])
			if err != nil {
				return err
			}
			if err := st.SetSetting(ctx, cron.ScheduleSetting, spec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Reload schedule set to %s\n", strconv.Quote(spec))
			return nil
		},
	}
}
