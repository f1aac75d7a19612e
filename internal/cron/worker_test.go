package cron

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/bher20/ebill/internal/alerting"
	"github.com/bher20/ebill/internal/metrics"
	"github.com/bher20/ebill/internal/storage"
	"github.com/bher20/ebill/internal/tariff"
)

const tableYAML = `
reference_month: "09/2026"
classes:
  residential:
    tiers:
      - up_to: "100"
        rate: "0.55"
      - rate: "0.80"
  commercial:
    rate: "0.70"
    discounts:
      - from: "500"
        percent: "0.05"
  industrial:
    rate: "0.58"
    discounts:
      - from: "2000"
        percent: "0.10"
    demand_charge: "30"
flags:
  green:
    rate: "0"
  red1:
    label: "Red flag 1"
    rate: "4.90"
    mode: per_100kwh
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestRunOnce_FileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tariffs.yaml")
	writeFile(t, path, tableYAML)

	reg := tariff.New()
	r := NewReloader(FileSource{Path: path}, reg)

	changed, err := r.RunOnce(context.Background())
	if err != nil || !changed {
		t.Fatalf("first RunOnce = %v, %v", changed, err)
	}
	f, err := reg.GetSurcharge("red1")
	if err != nil || !f.Rate.Equal(decimal.RequireFromString("4.90")) {
		t.Fatalf("red1 after reload = %+v, %v", f, err)
	}
	if reg.ReferenceMonth() != "09/2026" {
		t.Fatalf("reference month = %q", reg.ReferenceMonth())
	}

	changed, err = r.RunOnce(context.Background())
	if err != nil || changed {
		t.Fatalf("unchanged file triggered an import: %v, %v", changed, err)
	}

	writeFile(t, path, tableYAML+"  red2:\n    rate: \"7.10\"\n    mode: per_100kwh\n")
	changed, err = r.RunOnce(context.Background())
	if err != nil || !changed {
		t.Fatalf("edited file was not imported: %v, %v", changed, err)
	}
	if _, err := reg.GetSurcharge("red2"); err != nil {
		t.Fatalf("red2 missing after reload: %v", err)
	}
}

func TestRunOnce_InvalidSourceKeepsRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tariffs.json")
	writeFile(t, path, `{"classes":{"commercial":{"rate":"-1"}}}`)

	reg := tariff.New()
	before, _ := reg.GetRate(tariff.Commercial)
	failuresBefore := testutil.ToFloat64(metrics.ScheduledJobFailuresTotal.WithLabelValues(JobName))

	if _, err := NewReloader(FileSource{Path: path}, reg).RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error for negative rate")
	}
	after, _ := reg.GetRate(tariff.Commercial)
	if !after.Equal(before) {
		t.Fatalf("registry changed after a failed reload")
	}
	if got := testutil.ToFloat64(metrics.ScheduledJobFailuresTotal.WithLabelValues(JobName)); got != failuresBefore+1 {
		t.Fatalf("job failures = %v, want %v", got, failuresBefore+1)
	}
}

func TestRunOnce_StorageSourceRecordsJob(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()

	src := tariff.New()
	if err := src.UpdateRate(tariff.Commercial, tariff.ClassRate{Rate: decimal.RequireFromString("0.99")}); err != nil {
		t.Fatalf("UpdateRate: %v", err)
	}
	if _, _, err := storage.SaveRegistry(ctx, st, "default", src); err != nil {
		t.Fatalf("SaveRegistry: %v", err)
	}

	reg := tariff.New()
	r := NewReloader(StorageSource{Store: st, Table: "default"}, reg, WithJobStore(st))
	if changed, err := r.RunOnce(ctx); err != nil || !changed {
		t.Fatalf("RunOnce = %v, %v", changed, err)
	}
	got, _ := reg.GetRate(tariff.Commercial)
	if !got.Rate.Equal(decimal.RequireFromString("0.99")) {
		t.Fatalf("commercial rate = %s, want 0.99", got.Rate)
	}

	job, err := st.GetScheduledJob(ctx, JobName)
	if err != nil || job == nil || job.LastSuccess != 1 {
		t.Fatalf("scheduled job row = %+v, %v", job, err)
	}
}

func TestRunOnce_MissingTable(t *testing.T) {
	r := NewReloader(StorageSource{Store: storage.NewMemory(), Table: "absent"}, tariff.New())
	if _, err := r.RunOnce(context.Background()); !errors.Is(err, storage.ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
}

// busyLocks never grants the advisory lock.
type busyLocks struct {
	*storage.MemoryStorage
}

func (busyLocks) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) { return false, nil }

func TestRunOnce_SkipsWhenLockHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tariffs.yaml")
	writeFile(t, path, tableYAML)

	reg := tariff.New()
	r := NewReloader(FileSource{Path: path}, reg, WithJobStore(busyLocks{storage.NewMemory()}))
	changed, err := r.RunOnce(context.Background())
	if err != nil || changed {
		t.Fatalf("RunOnce with a held lock = %v, %v", changed, err)
	}
	if f, _ := reg.GetSurcharge("red1"); f.Rate.Equal(decimal.RequireFromString("4.90")) {
		t.Fatalf("registry was reloaded without the lock")
	}
}

func TestNormalizeSchedule(t *testing.T) {
	cases := map[string]string{
		"":            DefaultSchedule,
		"300":         "@every 300s",
		"@every 10m":  "@every 10m",
		"*/5 * * * *": "*/5 * * * *",
		"@hourly":     "@hourly",
	}
	for in, want := range cases {
		got, err := NormalizeSchedule(in)
		if err != nil || got != want {
			t.Errorf("NormalizeSchedule(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"0", "-5", "every five minutes", "* * *"} {
		if _, err := NormalizeSchedule(bad); err == nil {
			t.Errorf("NormalizeSchedule(%q): expected error", bad)
		}
	}
}

func TestResolveSchedule_PrefersStoredSetting(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	if got, _ := ResolveSchedule(ctx, st, "@every 1m"); got != "@every 1m" {
		t.Fatalf("fallback schedule = %q", got)
	}
	if err := st.SetSetting(ctx, ScheduleSetting, "60"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if got, _ := ResolveSchedule(ctx, st, "@every 1m"); got != "@every 60s" {
		t.Fatalf("stored schedule = %q, want @every 60s", got)
	}
}

func TestRun_ReloadsImmediatelyAndStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tariffs.yaml")
	writeFile(t, path, tableYAML)
	reg := tariff.New()
	r := NewReloader(FileSource{Path: path}, reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, "@every 1h") }()

	deadline := time.Now().Add(5 * time.Second)
	for reg.ReferenceMonth() != "09/2026" {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("registry was not reloaded at start")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestRun_RejectsBadSchedule(t *testing.T) {
	r := NewReloader(FileSource{Path: "unused.yaml"}, tariff.New())
	if err := r.Run(context.Background(), "never"); err == nil {
		t.Fatalf("expected error")
	}
}

type recordingAlerter struct {
	alerts []alerting.ReloadAlert
}

func (a *recordingAlerter) SendReloadAlert(ctx context.Context, alert alerting.ReloadAlert) error {
	a.alerts = append(a.alerts, alert)
	return nil
}

func TestRunOnce_AlertsWithFailureStreak(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tariffs.yaml")
	writeFile(t, path, "classes: [not, a, map]\n")

	alerts := &recordingAlerter{}
	r := NewReloader(FileSource{Path: path}, tariff.New(), WithAlerter(alerts))
	for i := 0; i < 2; i++ {
		if _, err := r.RunOnce(context.Background()); err == nil {
			t.Fatalf("run %d: expected error", i)
		}
	}
	if len(alerts.alerts) != 2 || alerts.alerts[1].ConsecutiveFailures != 2 || alerts.alerts[1].JobName != JobName {
		t.Fatalf("alerts = %+v", alerts.alerts)
	}

	writeFile(t, path, tableYAML)
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("recovered run: %v", err)
	}
	writeFile(t, path, "classes: [not, a, map]\n")
	if _, err := r.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if got := alerts.alerts[len(alerts.alerts)-1].ConsecutiveFailures; got != 1 {
		t.Fatalf("streak after recovery = %d, want 1", got)
	}
}
