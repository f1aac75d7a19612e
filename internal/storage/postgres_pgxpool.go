package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bher20/ebill/internal/migrate"
)

// PostgresPoolStorage talks to Postgres through a pgx pool. Its schema is
// managed by the goose migrations in internal/migrate.
type PostgresPoolStorage struct {
	pool *pgxpool.Pool

	mu    sync.Mutex
	locks map[int64]*pgxpool.Conn
}

func OpenPostgresPool(ctx context.Context, dsn string) (*PostgresPoolStorage, error) {
	if dsn == "" {
		dsn = "postgres://localhost:5432/ebill?sslmode=disable"
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &PostgresPoolStorage{pool: pool, locks: make(map[int64]*pgxpool.Conn)}, nil
}

func (s *PostgresPoolStorage) Close() error {
	s.mu.Lock()
	for key, conn := range s.locks {
		conn.Release()
		delete(s.locks, key)
	}
	s.mu.Unlock()
	s.pool.Close()
	return nil
}

func (s *PostgresPoolStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies pending schema migrations.
func (s *PostgresPoolStorage) Migrate(ctx context.Context) error {
	return migrate.UpPool(ctx, s.pool)
}

func (s *PostgresPoolStorage) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT name FROM tariff_snapshots ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

const snapshotColumns = `id, name, payload, checksum, saved_at`

func scanSnapshot(row pgx.Row) (TableSnapshot, error) {
	var snap TableSnapshot
	err := row.Scan(&snap.ID, &snap.Name, &snap.Payload, &snap.Checksum, &snap.SavedAt)
	return snap, err
}

func (s *PostgresPoolStorage) GetTable(ctx context.Context, name string) (*TableSnapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM tariff_snapshots
		WHERE name=$1
		ORDER BY saved_at DESC
		LIMIT 1
	`, name)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

func (s *PostgresPoolStorage) TableHistory(ctx context.Context, name string, limit int) ([]TableSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM tariff_snapshots
		WHERE name=$1
		ORDER BY saved_at DESC`
	args := []any{name}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TableSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) SaveTable(ctx context.Context, snap TableSnapshot) error {
	snap.normalize()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tariff_snapshots (id, name, payload, checksum, saved_at)
		VALUES ($1,$2,$3,$4,$5)
	`, snap.ID, snap.Name, snap.Payload, snap.Checksum, snap.SavedAt)
	return err
}

func (s *PostgresPoolStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key=$1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *PostgresPoolStorage) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (key) DO UPDATE SET
			value=EXCLUDED.value,
			updated_at=EXCLUDED.updated_at
	`, key, value, time.Now())
	return err
}

// AcquireAdvisoryLock tries to take a session-level Postgres advisory lock.
// The connection that took the lock is held until ReleaseAdvisoryLock so the
// unlock runs in the same session.
func (s *PostgresPoolStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		conn.Release()
		return false, err
	}
	if !ok {
		conn.Release()
		return false, nil
	}
	s.mu.Lock()
	s.locks[key] = conn
	s.mu.Unlock()
	return true, nil
}

func (s *PostgresPoolStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	s.mu.Lock()
	conn, held := s.locks[key]
	delete(s.locks, key)
	s.mu.Unlock()
	if !held {
		return false, nil
	}
	defer conn.Release()
	var ok bool
	err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&ok)
	return ok, err
}

func (s *PostgresPoolStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	job := newScheduledJob(name, started, dur, success, errMsg)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_jobs (name, last_run_at, last_duration_ms, last_success, last_error)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (name) DO UPDATE SET
			last_run_at=EXCLUDED.last_run_at,
			last_duration_ms=EXCLUDED.last_duration_ms,
			last_success=EXCLUDED.last_success,
			last_error=EXCLUDED.last_error
	`, job.Name, job.LastRunAt, job.LastDurationMs, job.LastSuccess, job.LastError)
	return err
}

func (s *PostgresPoolStorage) GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error) {
	var job ScheduledJob
	err := s.pool.QueryRow(ctx, `
		SELECT name, last_run_at, last_duration_ms, last_success, last_error
		FROM scheduled_jobs WHERE name=$1
	`, name).Scan(&job.Name, &job.LastRunAt, &job.LastDurationMs, &job.LastSuccess, &job.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}
