// Package cron keeps a tariff registry in sync with its source on a schedule.
package cron

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bher20/ebill/internal/alerting"
	"github.com/bher20/ebill/internal/metrics"
	"github.com/bher20/ebill/internal/storage"
	"github.com/bher20/ebill/internal/tariff"
)

const (
	// JobName labels reload metrics and the scheduled_jobs row.
	JobName = "reload_tariffs"

	// ScheduleSetting is the storage setting that overrides the reload schedule.
	ScheduleSetting = "reload_schedule"

	// DefaultSchedule is used when neither configuration nor storage sets one.
	DefaultSchedule = "@every 5m"

	lockKey int64 = 42
)

// Reloader imports the table from a Source into a Registry, skipping the
// import when the source version has not changed.
type Reloader struct {
	src   Source
	reg   *tariff.Registry
	jobs  storage.JobStore
	alert Alerter
	log   *zap.Logger

	mu          sync.Mutex
	lastVersion string
	failures    int
}

// Alerter is notified after every failed reload. *alerting.Alerter satisfies it.
type Alerter interface {
	SendReloadAlert(ctx context.Context, alert alerting.ReloadAlert) error
}

// Option configures a Reloader.
type Option func(*Reloader)

// WithJobStore coordinates runs through advisory locks and records each
// outcome in the store.
func WithJobStore(js storage.JobStore) Option {
	return func(r *Reloader) { r.jobs = js }
}

// WithAlerter reports failed runs, with the current failure streak, to a.
func WithAlerter(a Alerter) Option {
	return func(r *Reloader) { r.alert = a }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Reloader) {
		if l != nil {
			r.log = l
		}
	}
}

func NewReloader(src Source, reg *tariff.Registry, opts ...Option) *Reloader {
	r := &Reloader{src: src, reg: reg, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce performs a single reload. changed reports whether the registry was
// replaced.
func (r *Reloader) RunOnce(ctx context.Context) (changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := time.Now()
	if r.jobs != nil {
		ok, err := r.jobs.AcquireAdvisoryLock(ctx, lockKey)
		if err != nil {
			r.log.Warn("cron: acquire advisory lock failed", zap.Error(err))
			metrics.UpdateJobMetrics(JobName, started, err)
			return false, err
		}
		if !ok {
			r.log.Info("cron: advisory lock held by another worker, skipping run")
			return false, nil
		}
		defer func() {
			// Release even when ctx is already cancelled, or the session keeps the lock.
			if _, err := r.jobs.ReleaseAdvisoryLock(context.WithoutCancel(ctx), lockKey); err != nil {
				r.log.Warn("cron: release advisory lock failed", zap.Error(err))
			}
		}()
	}

	changed, err = r.reload(ctx)

	dur := time.Since(started)
	metrics.UpdateJobMetrics(JobName, started, err)
	if r.jobs != nil {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		if uerr := r.jobs.UpdateScheduledJob(ctx, JobName, started, dur, err == nil, errMsg); uerr != nil {
			r.log.Warn("cron: update scheduled_jobs failed", zap.Error(uerr))
		}
	}
	if err != nil {
		r.failures++
		r.log.Warn("cron: reload failed",
			zap.String("source", r.src.Name()),
			zap.Int("consecutive_failures", r.failures),
			zap.Duration("duration", dur),
			zap.Error(err))
		if r.alert != nil {
			alert := alerting.ReloadAlert{
				JobName:             JobName,
				Source:              r.src.Name(),
				ConsecutiveFailures: r.failures,
				Error:               err.Error(),
				Duration:            dur,
				Timestamp:           started,
			}
			if aerr := r.alert.SendReloadAlert(ctx, alert); aerr != nil {
				r.log.Warn("cron: send alert failed", zap.Error(aerr))
			}
		}
		return false, err
	}
	r.failures = 0
	r.log.Info("cron: reload completed",
		zap.String("source", r.src.Name()),
		zap.Bool("changed", changed),
		zap.Duration("duration", dur))
	return changed, nil
}

func (r *Reloader) reload(ctx context.Context) (bool, error) {
	t, version, err := r.src.Load(ctx)
	if err != nil {
		return false, err
	}
	if version != "" && version == r.lastVersion {
		return false, nil
	}
	if err := r.reg.Import(t); err != nil {
		return false, fmt.Errorf("import from %s: %w", r.src.Name(), err)
	}
	r.lastVersion = version
	return true, nil
}

// NormalizeSchedule accepts a whole number of seconds or a cron expression
// (standard five fields or a descriptor such as @every 10m) and returns the
// form robfig/cron parses.
func NormalizeSchedule(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultSchedule, nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		if v <= 0 {
			return "", fmt.Errorf("invalid reload interval %q", s)
		}
		return fmt.Sprintf("@every %ds", v), nil
	}
	if _, err := cron.ParseStandard(s); err != nil {
		return "", fmt.Errorf("invalid reload schedule %q: %w", s, err)
	}
	return s, nil
}

// ResolveSchedule prefers the schedule stored in settings over fallback.
func ResolveSchedule(ctx context.Context, st storage.Storage, fallback string) (string, error) {
	if st != nil {
		if val, err := st.GetSetting(ctx, ScheduleSetting); err == nil && val != "" {
			return NormalizeSchedule(val)
		}
	}
	return NormalizeSchedule(fallback)
}

// Run reloads once immediately and then on schedule until ctx is done.
func (r *Reloader) Run(ctx context.Context, schedule string) error {
	spec, err := NormalizeSchedule(schedule)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{r.log})))
	if _, err := c.AddFunc(spec, func() { _, _ = r.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule reload: %w", err)
	}

	r.log.Info("cron worker starting", zap.String("schedule", spec), zap.String("source", r.src.Name()))
	_, _ = r.RunOnce(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	r.log.Info("cron worker stopped")
	return ctx.Err()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ l *zap.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
