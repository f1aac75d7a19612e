package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation, useful for tests and
// simple single-process deployments.
type MemoryStorage struct {
	mu       sync.RWMutex
	tables   map[string][]TableSnapshot // oldest first
	settings map[string]string
	jobs     map[string]ScheduledJob
	locks    map[int64]bool
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		tables:   make(map[string][]TableSnapshot),
		settings: make(map[string]string),
		jobs:     make(map[string]ScheduledJob),
		locks:    make(map[int64]bool),
	}
}

func (m *MemoryStorage) Close() error { return nil }

func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

func (m *MemoryStorage) ListTables(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.tables))
	for name := range m.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func copySnapshot(s TableSnapshot) TableSnapshot {
	s.Payload = append([]byte(nil), s.Payload...)
	return s
}

func (m *MemoryStorage) GetTable(ctx context.Context, name string) (*TableSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hist := m.tables[name]
	if len(hist) == 0 {
		return nil, nil
	}
	s := copySnapshot(hist[len(hist)-1])
	return &s, nil
}

func (m *MemoryStorage) TableHistory(ctx context.Context, name string, limit int) ([]TableSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hist := m.tables[name]
	out := make([]TableSnapshot, 0, len(hist))
	for i := len(hist) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, copySnapshot(hist[i]))
	}
	return out, nil
}

func (m *MemoryStorage) SaveTable(ctx context.Context, snap TableSnapshot) error {
	snap.normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[snap.Name] = append(m.tables[snap.Name], copySnapshot(snap))
	return nil
}

func (m *MemoryStorage) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[key], nil
}

func (m *MemoryStorage) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

// In-memory storage is single instance, so the lock is always granted.
func (m *MemoryStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *MemoryStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := m.locks[key]
	delete(m.locks, key)
	return held, nil
}

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[name] = newScheduledJob(name, started, dur, success, errMsg)
	return nil
}

func (m *MemoryStorage) GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[name]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func newScheduledJob(name string, started time.Time, dur time.Duration, success bool, errMsg string) ScheduledJob {
	status := 0
	if success {
		status = 1
	}
	return ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
}
