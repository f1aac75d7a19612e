// Package cmd - watch command
package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bher20/ebill/internal/alerting"
	"github.com/bher20/ebill/internal/api"
	"github.com/bher20/ebill/internal/cron"
	"github.com/bher20/ebill/internal/storage"
	"github.com/bher20/ebill/internal/tariff"
)

func newWatchCmd(a *app) *cobra.Command {
	var schedule, listen string
	c := &cobra.Command{
		Use:   "watch",
		Short: "Keep the tariff table in sync with its source until interrupted",
		Long: `Reload the tariff table on a schedule until interrupted.

The source is the tariff document given with --tariffs, or the stored table
otherwise. Runs are coordinated across instances through an advisory lock
when the storage backend supports one, and every outcome is recorded in the
scheduled jobs table.

The schedule comes from --schedule, then the stored setting (see
"ebill tariffs schedule"), then EBILL_RELOAD_SCHEDULE.

With --listen the worker also serves /metrics, /healthz, /readyz, /livez
and POST /reload for an immediate reload.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := a.openStorage(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			var src cron.Source = cron.StorageSource{Store: st, Table: a.cfg.Table}
			if a.cfg.TariffFile != "" {
				src = cron.FileSource{Path: a.cfg.TariffFile}
			}

			spec := schedule
			if spec == "" {
				if spec, err = cron.ResolveSchedule(ctx, st, a.cfg.ReloadSchedule); err != nil {
					return err
				}
			}

			opts := []cron.Option{cron.WithLogger(a.log)}
			if js, ok := st.(storage.JobStore); ok {
				opts = append(opts, cron.WithJobStore(js))
			}
			if a.cfg.Alert.Enabled() {
				opts = append(opts, cron.WithAlerter(alerting.NewAlerter(a.cfg.Alert, a.log)))
			}
			reg := tariff.Shared()
			r := cron.NewReloader(src, reg, opts...)

			if listen != "" {
				srv := &http.Server{Addr: listen, Handler: api.NewMux(st, r, a.log), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.Error("ops server failed", zap.Error(err))
						stop()
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				a.log.Info("ops endpoints listening", zap.String("addr", listen))
			}

			a.log.Info("watching tariff table", zap.String("source", src.Name()), zap.String("schedule", spec))
			err = r.Run(ctx, spec)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	c.Flags().StringVar(&schedule, "schedule", "", "reload schedule (seconds or cron expression)")
	c.Flags().StringVar(&listen, "listen", "", "address for metrics and health endpoints, e.g. :9090")
	return c
}
