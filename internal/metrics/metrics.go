package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BillsComputedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebill_bills_computed_total",
			Help: "Total number of bills computed per customer class",
		},
		[]string{"class"},
	)

	BillErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebill_bill_errors_total",
			Help: "Total number of failed bill computations per customer class and error kind",
		},
		[]string{"class", "kind"},
	)

	BillComputeDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ebill_bill_compute_duration_seconds",
			Help:    "Bill computation duration in seconds per customer class",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"class"},
	)

	TariffUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebill_tariff_updates_total",
			Help: "Total number of committed tariff table writes per operation",
		},
		[]string{"op"},
	)
)

// ObserveBill records the outcome of one bill computation. kind is empty on success.
func ObserveBill(class string, startedAt time.Time, kind string) {
	BillComputeDurationSeconds.WithLabelValues(class).Observe(time.Since(startedAt).Seconds())
	if kind != "" {
		BillErrorsTotal.WithLabelValues(class, kind).Inc()
		return
	}
	BillsComputedTotal.WithLabelValues(class).Inc()
}

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ebill_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ebill_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ebill_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
