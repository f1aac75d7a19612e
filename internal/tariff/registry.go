package tariff

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bher20/ebill/internal/errs"
	"github.com/bher20/ebill/internal/metrics"
)

// Registry is the shared table of per-class rates and per-flag surcharges.
// Every accessor takes the lock for a single read or write and hands out
// copies, so callers never observe a partially written entry.
type Registry struct {
	mu        sync.RWMutex
	classes   map[Class]ClassRate
	flags     map[string]Flag
	refMonth  string
	updatedAt time.Time

	now func() time.Time
	log *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for write events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock overrides the clock used for UpdatedAt and the default reference month.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New returns a registry seeded with the default rates and flags.
func New(opts ...Option) *Registry {
	r := &Registry{now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.loadDefaults()
	return r
}

// NewFromTable returns a registry holding t. t is validated first.
func NewFromTable(t Table, opts ...Option) (*Registry, error) {
	r := New(opts...)
	if err := r.Import(t); err != nil {
		return nil, err
	}
	return r, nil
}

var (
	sharedOnce sync.Once
	shared     *Registry
)

// Shared returns the process-wide registry, creating it with defaults on
// first use. Components should still receive the registry explicitly.
func Shared() *Registry {
	sharedOnce.Do(func() {
		shared = New()
	})
	return shared
}

func (r *Registry) loadDefaults() {
	now := r.now()
	r.classes = DefaultClasses()
	r.flags = DefaultFlags()
	r.refMonth = now.Format("01/2006")
	r.updatedAt = now
}

// GetRate returns the current rate entry for class.
func (r *Registry) GetRate(class Class) (ClassRate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rate, ok := r.classes[class]
	if !ok {
		return ClassRate{}, errs.UnknownClass(string(class))
	}
	return rate.clone(), nil
}

// GetSurcharge returns the current entry for a tariff flag.
func (r *Registry) GetSurcharge(flagID string) (Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flags[flagID]
	if !ok {
		return Flag{}, errs.UnknownFlag(flagID)
	}
	return f, nil
}

// UpdateRate validates rate and replaces the entry for class.
func (r *Registry) UpdateRate(class Class, rate ClassRate) error {
	if err := validateClassRate(class, rate); err != nil {
		return err
	}
	next := rate.clone()

	r.mu.Lock()
	r.classes[class] = next
	r.updatedAt = r.now()
	r.mu.Unlock()

	metrics.TariffUpdatesTotal.WithLabelValues("rate").Inc()
	r.log.Info("tariff updated", zap.String("class", string(class)))
	return nil
}

// UpdateSurcharge validates f and creates or replaces the flag entry.
func (r *Registry) UpdateSurcharge(flagID string, f Flag) error {
	next, err := normalizeFlag(flagID, f)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.flags[flagID] = next
	r.updatedAt = r.now()
	r.mu.Unlock()

	metrics.TariffUpdatesTotal.WithLabelValues("surcharge").Inc()
	r.log.Info("tariff flag updated", zap.String("flag", flagID), zap.String("rate", next.Rate.String()))
	return nil
}

// Snapshot returns a deep copy of the table. Mutating it does not affect r.
func (r *Registry) Snapshot() Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Table{
		ReferenceMonth: r.refMonth,
		UpdatedAt:      r.updatedAt,
		Classes:        r.classes,
		Flags:          r.flags,
	}.clone()
}

// Import validates every entry of t and then replaces the whole table at
// once. On error nothing is changed.
func (r *Registry) Import(t Table) error {
	next := t.clone()
	for class, rate := range next.Classes {
		if err := validateClassRate(class, rate); err != nil {
			return err
		}
	}
	for id, f := range next.Flags {
		nf, err := normalizeFlag(id, f)
		if err != nil {
			return err
		}
		next.Flags[id] = nf
	}

	r.mu.Lock()
	r.classes = next.Classes
	r.flags = next.Flags
	if next.ReferenceMonth != "" {
		r.refMonth = next.ReferenceMonth
	}
	r.updatedAt = r.now()
	r.mu.Unlock()

	metrics.TariffUpdatesTotal.WithLabelValues("import").Inc()
	r.log.Info("tariff table imported", zap.Int("classes", len(next.Classes)), zap.Int("flags", len(next.Flags)))
	return nil
}

// Reset restores the default rates and flags.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.loadDefaults()
	r.mu.Unlock()

	metrics.TariffUpdatesTotal.WithLabelValues("reset").Inc()
	r.log.Info("tariff table reset to defaults")
}

// ReferenceMonth returns the month (MM/YYYY) the table applies to.
func (r *Registry) ReferenceMonth() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refMonth
}

// SetReferenceMonth sets the month the table applies to.
func (r *Registry) SetReferenceMonth(month string) {
	r.mu.Lock()
	r.refMonth = month
	r.updatedAt = r.now()
	r.mu.Unlock()
}

// UpdatedAt returns the time of the last committed write.
func (r *Registry) UpdatedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updatedAt
}

// Classes returns the registered classes in sorted order.
func (r *Registry) Classes() []Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Class, 0, len(r.classes))
	for c := range r.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Flags returns the registered flag identifiers in sorted order.
func (r *Registry) Flags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.flags))
	for id := range r.flags {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
