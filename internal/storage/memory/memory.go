// Package memory is an in-process implementation of storage.Store.
// Data lives for the lifetime of the process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"aviary/internal/core"
	"aviary/internal/storage"
)

type table[T any] struct {
	name  string
	items map[string]T
}

func newTable[T any](name string) table[T] {
	return table[T]{name: name, items: map[string]T{}}
}

func (t table[T]) create(id string, v T) error {
	if _, ok := t.items[id]; ok {
		return fmt.Errorf("create %s: duplicate id %s", t.name, id)
	}
	t.items[id] = v
	return nil
}

func (t table[T]) get(id string) (T, error) {
	v, ok := t.items[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %s: %w", t.name, id, storage.ErrNotFound)
	}
	return v, nil
}

func (t table[T]) update(id string, v T) error {
	if _, ok := t.items[id]; !ok {
		return fmt.Errorf("update %s %s: %w", t.name, id, storage.ErrNotFound)
	}
	t.items[id] = v
	return nil
}

func (t table[T]) delete(id string) error {
	if _, ok := t.items[id]; !ok {
		return fmt.Errorf("delete %s %s: %w", t.name, id, storage.ErrNotFound)
	}
	delete(t.items, id)
	return nil
}

func (t table[T]) list(keep func(T) bool, less func(a, b T) bool) []T {
	out := make([]T, 0, len(t.items))
	for _, v := range t.items {
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

type syncState struct {
	status  storage.SyncStatus
	version int64
}

// Store keeps every record in maps guarded by one RWMutex.
type Store struct {
	mu         sync.RWMutex
	birds      table[core.Bird]
	pairs      table[core.BreedingPair]
	clutches   table[core.Clutch]
	incubators table[core.Incubator]
	monitoring table[core.MonitoringEntry]
	txs        table[core.Transaction]
	permits    table[core.Permit]
	txSync     map[string]syncState
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		birds:      newTable[core.Bird]("bird"),
		pairs:      newTable[core.BreedingPair]("breeding pair"),
		clutches:   newTable[core.Clutch]("clutch"),
		incubators: newTable[core.Incubator]("incubator"),
		monitoring: newTable[core.MonitoringEntry]("monitoring entry"),
		txs:        newTable[core.Transaction]("transaction"),
		permits:    newTable[core.Permit]("permit"),
		txSync:     map[string]syncState{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error { return nil }

func newestFirst(a, b core.Bird) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Birds

func (s *Store) CreateBird(_ context.Context, b core.Bird) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.birds.create(b.ID, b)
}

func (s *Store) GetBird(_ context.Context, id string) (core.Bird, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.birds.get(id)
}

func (s *Store) ListBirds(_ context.Context, f storage.BirdFilter) ([]core.Bird, error) {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.birds.list(func(b core.Bird) bool {
		if f.Species != "" && !strings.EqualFold(b.Species, f.Species) {
			return false
		}
		if f.Status != "" && b.Status != f.Status {
			return false
		}
		if f.Gender != "" && b.Gender != f.Gender {
			return false
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(b.Name), q) &&
			!strings.Contains(strings.ToLower(b.RingNumber), q) &&
			!strings.Contains(strings.ToLower(b.Species), q) {
			return false
		}
		return true
	}, newestFirst), nil
}

func (s *Store) ListOffspring(_ context.Context, parentID string) ([]core.Bird, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.birds.list(func(b core.Bird) bool {
		return parentID != "" && (b.FatherID == parentID || b.MotherID == parentID)
	}, func(a, b core.Bird) bool {
		if !a.BirthDate.Equal(b.BirthDate) {
			return a.BirthDate.Before(b.BirthDate)
		}
		return a.ID < b.ID
	}), nil
}

func (s *Store) UpdateBird(_ context.Context, b core.Bird) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.birds.update(b.ID, b)
}

func (s *Store) DeleteBird(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.birds.delete(id)
}

// Breeding pairs

func (s *Store) CreatePair(_ context.Context, p core.BreedingPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairs.create(p.ID, p)
}

func (s *Store) GetPair(_ context.Context, id string) (core.BreedingPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pairs.get(id)
}

func (s *Store) ListPairs(context.Context) ([]core.BreedingPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pairs.list(nil, func(a, b core.BreedingPair) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	}), nil
}

func (s *Store) UpdatePair(_ context.Context, p core.BreedingPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairs.update(p.ID, p)
}

func (s *Store) DeletePair(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairs.delete(id)
}

// Clutches

func (s *Store) CreateClutch(_ context.Context, c core.Clutch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clutches.create(c.ID, c.WithSuccessRate())
}

func (s *Store) GetClutch(_ context.Context, id string) (core.Clutch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clutches.get(id)
}

func (s *Store) ListClutches(_ context.Context, pairID string) ([]core.Clutch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clutches.list(func(c core.Clutch) bool {
		return pairID == "" || c.BreedingPairID == pairID
	}, func(a, b core.Clutch) bool {
		if !a.EggLayingDate.Equal(b.EggLayingDate) {
			return a.EggLayingDate.After(b.EggLayingDate)
		}
		return a.ID < b.ID
	}), nil
}

func (s *Store) UpdateClutch(_ context.Context, c core.Clutch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clutches.update(c.ID, c.WithSuccessRate())
}

func (s *Store) DeleteClutch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clutches.delete(id)
}

// Incubators and monitoring

func (s *Store) CreateIncubator(_ context.Context, i core.Incubator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incubators.create(i.ID, i)
}

func (s *Store) GetIncubator(_ context.Context, id string) (core.Incubator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.incubators.get(id)
}

func (s *Store) ListIncubators(context.Context) ([]core.Incubator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.incubators.list(nil, func(a, b core.Incubator) bool {
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	}), nil
}

func (s *Store) UpdateIncubator(_ context.Context, i core.Incubator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incubators.update(i.ID, i)
}

func (s *Store) DeleteIncubator(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incubators.delete(id)
}

func (s *Store) CreateMonitoringEntry(_ context.Context, m core.MonitoringEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitoring.create(m.ID, m)
}

func (s *Store) ListMonitoringEntries(ctx context.Context, incubatorID string, limit int) ([]core.MonitoringEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.monitoring.list(func(m core.MonitoringEntry) bool {
		return incubatorID == "" || m.IncubatorID == incubatorID
	}, func(a, b core.MonitoringEntry) bool {
		if !a.RecordedAt.Equal(b.RecordedAt) {
			return a.RecordedAt.After(b.RecordedAt)
		}
		return a.ID > b.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) LatestMonitoringEntry(ctx context.Context, incubatorID string) (core.MonitoringEntry, error) {
	items, err := s.ListMonitoringEntries(ctx, incubatorID, 1)
	if err != nil {
		return core.MonitoringEntry{}, fmt.Errorf("latest monitoring entry: %w", err)
	}
	if len(items) == 0 {
		return core.MonitoringEntry{}, fmt.Errorf("monitoring entry for %s: %w", incubatorID, storage.ErrNotFound)
	}
	return items[0], nil
}

func (s *Store) DeleteMonitoringEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitoring.delete(id)
}

// Transactions

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.txs.create(t.ID, t); err != nil {
		return err
	}
	s.txSync[t.ID] = syncState{status: storage.SyncPending, version: 1}
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.txs.get(id)
}

func (s *Store) ListTransactions(_ context.Context, f core.DateRangeFilter) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.txs.list(func(t core.Transaction) bool {
		return f.Contains(t.Date)
	}, func(a, b core.Transaction) bool {
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	}), nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.txs.update(t.ID, t); err != nil {
		return err
	}
	st := s.txSync[t.ID]
	s.txSync[t.ID] = syncState{status: storage.SyncPending, version: st.version + 1}
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.txs.delete(id); err != nil {
		return err
	}
	delete(s.txSync, id)
	return nil
}

func (s *Store) GetPendingSyncTransactions(_ context.Context, limit int) ([]storage.PendingSync, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pending := s.txs.list(func(t core.Transaction) bool {
		st := s.txSync[t.ID].status
		return st == storage.SyncPending || st == storage.SyncError
	}, func(a, b core.Transaction) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	out := make([]storage.PendingSync, len(pending))
	for i, t := range pending {
		out[i] = storage.PendingSync{ID: t.ID, Version: s.txSync[t.ID].version, CreatedAt: t.CreatedAt}
	}
	return out, nil
}

func (s *Store) GetTransactionForSync(_ context.Context, id string) (core.Transaction, int64, storage.SyncStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.txs.get(id)
	if err != nil {
		return core.Transaction{}, 0, "", err
	}
	st := s.txSync[id]
	return t, st.version, st.status, nil
}

func (s *Store) MarkSynced(_ context.Context, id string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.txSync[id]
	if !ok {
		return fmt.Errorf("mark transaction %s: %w", id, storage.ErrNotFound)
	}
	if st.version != version {
		return fmt.Errorf("transaction %s at version %d, exported %d: %w", id, st.version, version, storage.ErrStaleVersion)
	}
	st.status = storage.SyncSynced
	s.txSync[id] = st
	return nil
}

func (s *Store) MarkSyncError(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.txSync[id]
	if !ok {
		return fmt.Errorf("mark transaction %s: %w", id, storage.ErrNotFound)
	}
	st.status = storage.SyncError
	s.txSync[id] = st
	return nil
}

// Wildlife permits

func (s *Store) CreatePermit(_ context.Context, p core.Permit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits.create(p.ID, p)
}

func (s *Store) GetPermit(_ context.Context, id string) (core.Permit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permits.get(id)
}

func (s *Store) ListPermits(context.Context) ([]core.Permit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permits.list(nil, func(a, b core.Permit) bool {
		switch {
		case a.ExpiryDate.IsEmpty() != b.ExpiryDate.IsEmpty():
			return !a.ExpiryDate.IsEmpty()
		case !a.ExpiryDate.Equal(b.ExpiryDate):
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		return a.ID < b.ID
	}), nil
}

func (s *Store) UpdatePermit(_ context.Context, p core.Permit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits.update(p.ID, p)
}

func (s *Store) DeletePermit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits.delete(id)
}
