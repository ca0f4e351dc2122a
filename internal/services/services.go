// Package services implements the aviary use cases on top of storage.Store:
// record keeping, the derived views (notifications, finance, breeding,
// dashboard) and telemetry ingestion.
package services

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"aviary/internal/cache"
	"aviary/internal/core"
	"aviary/internal/log"
	"aviary/internal/observability"
	"aviary/internal/storage"
)

// LedgerPublisher announces transactions that need exporting. *amqp.Client
// satisfies it.
type LedgerPublisher interface {
	PublishLedgerSync(ctx context.Context, id string, version int64) error
}

// Deps collects what the services share. Store is required; everything else
// has a usable zero value.
type Deps struct {
	Store              storage.Store
	Publisher          LedgerPublisher
	Incubation         core.IncubationTable
	CriticalWindowDays int
	DefaultCurrency    string
	CacheTTL           time.Duration
	Clock              clockwork.Clock
	Metrics            *observability.Metrics
	Logger             *log.Logger
	NewID              func() string
}

// Services is the set of use cases the HTTP layer and the workers call.
type Services struct {
	Records       *RecordService
	Transactions  *TransactionService
	Monitoring    *MonitoringService
	Notifications *NotificationService
	Finance       *FinanceService
	Breeding      *BreedingService
	Dashboard     *DashboardService

	views *viewCache
}

// New wires every service around one store and one derived-view cache.
func New(d Deps) *Services {
	d = d.withDefaults()
	views := newViewCache(d.CacheTTL, d.Clock, d.Metrics)

	notifications := &NotificationService{deps: d, views: views}
	finance := &FinanceService{deps: d, views: views}
	s := &Services{
		Records:       &RecordService{deps: d, views: views},
		Transactions:  &TransactionService{deps: d, views: views},
		Monitoring:    &MonitoringService{deps: d, views: views},
		Notifications: notifications,
		Finance:       finance,
		Breeding:      &BreedingService{deps: d, views: views},
		views:         views,
	}
	s.Dashboard = &DashboardService{deps: d, views: views, notifications: notifications, finance: finance}
	return s
}

// Cache exposes the derived-view cache for periodic cleanup.
func (s *Services) Cache() cache.Cleaner { return s.views.lru }

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = log.New(log.Config{Handler: slog.Default().Handler(), Component: log.ComponentRecords})
	}
	if d.NewID == nil {
		d.NewID = func() string { return uuid.NewString() }
	}
	if d.Incubation.Default <= 0 {
		d.Incubation = core.DefaultIncubationTable()
	}
	if d.CriticalWindowDays < 0 {
		d.CriticalWindowDays = 0
	}
	if d.DefaultCurrency == "" {
		d.DefaultCurrency = "EUR"
	}
	if d.CacheTTL <= 0 {
		d.CacheTTL = 30 * time.Second
	}
	return d
}

func (d Deps) today() core.Date {
	return core.DateOf(d.Clock.Now())
}

func (d Deps) now() time.Time {
	return d.Clock.Now().UTC()
}

// viewCache memoises derived views. Any record write purges it and bumps
// the generation, so a view built from reads that raced a write is never
// served afterwards.
type viewCache struct {
	lru        *cache.LRUCache[view]
	generation atomic.Uint64
	metrics    *observability.Metrics
}

type view struct {
	generation uint64
	value      any
}

func newViewCache(ttl time.Duration, clock clockwork.Clock, m *observability.Metrics) *viewCache {
	return &viewCache{lru: cache.NewLRUCacheWithClock[view](64, ttl, clock), metrics: m}
}

func cached[T any](v *viewCache, key string, build func() (T, error)) (T, error) {
	gen := v.generation.Load()
	if hit, ok := v.lru.Get(key); ok && hit.generation == gen {
		if val, ok := hit.value.(T); ok {
			v.metrics.CacheLookup(cacheName(key), true)
			return val, nil
		}
	}
	v.metrics.CacheLookup(cacheName(key), false)
	val, err := build()
	if err != nil {
		return val, err
	}
	if v.generation.Load() == gen {
		v.lru.Set(key, view{generation: gen, value: val})
	}
	return val, nil
}

func cacheName(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i]
		}
	}
	return key
}

func (v *viewCache) invalidate() {
	v.generation.Add(1)
	v.lru.Purge()
}
