package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for tariff table snapshots and settings.
// Lookups of absent rows return a nil value and a nil error.
type Storage interface {
	// Tariff tables. The most recent snapshot of a name is the current table.
	ListTables(ctx context.Context) ([]string, error)
	GetTable(ctx context.Context, name string) (*TableSnapshot, error)
	TableHistory(ctx context.Context, name string, limit int) ([]TableSnapshot, error)
	SaveTable(ctx context.Context, snap TableSnapshot) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	Ping(ctx context.Context) error

	// Close releases any resources (no-op for in-memory).
	Close() error
}

// JobStore is implemented by backends that coordinate scheduled jobs across
// instances.
type JobStore interface {
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error
	GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error)
}
