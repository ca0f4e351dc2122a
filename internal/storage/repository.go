package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"aviary/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements Store on top of a single SQLite file.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var _ Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func lookupErr(what, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func writeErr(op, what, id string, n int64, err error) error {
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s %s: %w", op, what, id, ErrNotFound)
	}
	return nil
}

// Birds

func (r *SQLiteRepository) CreateBird(ctx context.Context, b core.Bird) error {
	if err := r.queries.CreateBird(ctx, b); err != nil {
		return fmt.Errorf("create bird: %w", err)
	}
	slog.InfoContext(ctx, "Bird saved to SQLite", "id", b.ID, "name", b.Name, "species", b.Species)
	return nil
}

func (r *SQLiteRepository) GetBird(ctx context.Context, id string) (core.Bird, error) {
	b, err := r.queries.GetBird(ctx, id)
	if err != nil {
		return core.Bird{}, lookupErr("bird", id, err)
	}
	return b, nil
}

func (r *SQLiteRepository) ListBirds(ctx context.Context, f BirdFilter) ([]core.Bird, error) {
	items, err := r.queries.ListBirds(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list birds: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) ListOffspring(ctx context.Context, parentID string) ([]core.Bird, error) {
	items, err := r.queries.ListOffspring(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("list offspring of %s: %w", parentID, err)
	}
	return items, nil
}

func (r *SQLiteRepository) UpdateBird(ctx context.Context, b core.Bird) error {
	n, err := r.queries.UpdateBird(ctx, b)
	return writeErr("update", "bird", b.ID, n, err)
}

func (r *SQLiteRepository) DeleteBird(ctx context.Context, id string) error {
	n, err := r.queries.DeleteBird(ctx, id)
	return writeErr("delete", "bird", id, n, err)
}

// Breeding pairs

func (r *SQLiteRepository) CreatePair(ctx context.Context, p core.BreedingPair) error {
	if err := r.queries.CreatePair(ctx, p); err != nil {
		return fmt.Errorf("create breeding pair: %w", err)
	}
	slog.InfoContext(ctx, "Breeding pair saved to SQLite", "id", p.ID, "male", p.MaleBirdID, "female", p.FemaleBirdID)
	return nil
}

func (r *SQLiteRepository) GetPair(ctx context.Context, id string) (core.BreedingPair, error) {
	p, err := r.queries.GetPair(ctx, id)
	if err != nil {
		return core.BreedingPair{}, lookupErr("breeding pair", id, err)
	}
	return p, nil
}

func (r *SQLiteRepository) ListPairs(ctx context.Context) ([]core.BreedingPair, error) {
	items, err := r.queries.ListPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list breeding pairs: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) UpdatePair(ctx context.Context, p core.BreedingPair) error {
	n, err := r.queries.UpdatePair(ctx, p)
	return writeErr("update", "breeding pair", p.ID, n, err)
}

func (r *SQLiteRepository) DeletePair(ctx context.Context, id string) error {
	n, err := r.queries.DeletePair(ctx, id)
	return writeErr("delete", "breeding pair", id, n, err)
}

// Clutches

func (r *SQLiteRepository) CreateClutch(ctx context.Context, c core.Clutch) error {
	if err := r.queries.CreateClutch(ctx, c); err != nil {
		return fmt.Errorf("create clutch: %w", err)
	}
	slog.InfoContext(ctx, "Clutch saved to SQLite", "id", c.ID, "pair", c.BreedingPairID, "expected_hatch", c.ExpectedHatchDate.String())
	return nil
}

func (r *SQLiteRepository) GetClutch(ctx context.Context, id string) (core.Clutch, error) {
	c, err := r.queries.GetClutch(ctx, id)
	if err != nil {
		return core.Clutch{}, lookupErr("clutch", id, err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListClutches(ctx context.Context, pairID string) ([]core.Clutch, error) {
	items, err := r.queries.ListClutches(ctx, pairID)
	if err != nil {
		return nil, fmt.Errorf("list clutches: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) UpdateClutch(ctx context.Context, c core.Clutch) error {
	n, err := r.queries.UpdateClutch(ctx, c)
	return writeErr("update", "clutch", c.ID, n, err)
}

func (r *SQLiteRepository) DeleteClutch(ctx context.Context, id string) error {
	n, err := r.queries.DeleteClutch(ctx, id)
	return writeErr("delete", "clutch", id, n, err)
}

// Incubators and monitoring

func (r *SQLiteRepository) CreateIncubator(ctx context.Context, i core.Incubator) error {
	if err := r.queries.CreateIncubator(ctx, i); err != nil {
		return fmt.Errorf("create incubator: %w", err)
	}
	slog.InfoContext(ctx, "Incubator saved to SQLite", "id", i.ID, "name", i.Name)
	return nil
}

func (r *SQLiteRepository) GetIncubator(ctx context.Context, id string) (core.Incubator, error) {
	i, err := r.queries.GetIncubator(ctx, id)
	if err != nil {
		return core.Incubator{}, lookupErr("incubator", id, err)
	}
	return i, nil
}

func (r *SQLiteRepository) ListIncubators(ctx context.Context) ([]core.Incubator, error) {
	items, err := r.queries.ListIncubators(ctx)
	if err != nil {
		return nil, fmt.Errorf("list incubators: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) UpdateIncubator(ctx context.Context, i core.Incubator) error {
	n, err := r.queries.UpdateIncubator(ctx, i)
	return writeErr("update", "incubator", i.ID, n, err)
}

func (r *SQLiteRepository) DeleteIncubator(ctx context.Context, id string) error {
	n, err := r.queries.DeleteIncubator(ctx, id)
	return writeErr("delete", "incubator", id, n, err)
}

func (r *SQLiteRepository) CreateMonitoringEntry(ctx context.Context, m core.MonitoringEntry) error {
	if err := r.queries.CreateMonitoringEntry(ctx, m); err != nil {
		return fmt.Errorf("create monitoring entry: %w", err)
	}
	slog.DebugContext(ctx, "Monitoring entry saved to SQLite", "id", m.ID, "incubator_id", m.IncubatorID)
	return nil
}

func (r *SQLiteRepository) ListMonitoringEntries(ctx context.Context, incubatorID string, limit int) ([]core.MonitoringEntry, error) {
	items, err := r.queries.ListMonitoringEntries(ctx, incubatorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list monitoring entries: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) LatestMonitoringEntry(ctx context.Context, incubatorID string) (core.MonitoringEntry, error) {
	items, err := r.queries.ListMonitoringEntries(ctx, incubatorID, 1)
	if err != nil {
		return core.MonitoringEntry{}, fmt.Errorf("latest monitoring entry: %w", err)
	}
	if len(items) == 0 {
		return core.MonitoringEntry{}, fmt.Errorf("monitoring entry for %s: %w", incubatorID, ErrNotFound)
	}
	return items[0], nil
}

func (r *SQLiteRepository) DeleteMonitoringEntry(ctx context.Context, id string) error {
	n, err := r.queries.DeleteMonitoringEntry(ctx, id)
	return writeErr("delete", "monitoring entry", id, n, err)
}

// Transactions

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	if err := r.queries.CreateTransaction(ctx, t); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"type", t.Type,
		"amount_cents", t.Amount.Cents,
		"currency", t.Currency,
		"date", t.Date.String())
	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := r.queries.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, lookupErr("transaction", id, err)
	}
	return t, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f core.DateRangeFilter) ([]core.Transaction, error) {
	items, err := r.queries.ListTransactions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	n, err := r.queries.UpdateTransaction(ctx, t)
	return writeErr("update", "transaction", t.ID, n, err)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	n, err := r.queries.DeleteTransaction(ctx, id)
	return writeErr("delete", "transaction", id, n, err)
}

// GetPendingSyncTransactions returns transactions not yet exported to the ledger.
func (r *SQLiteRepository) GetPendingSyncTransactions(ctx context.Context, limit int) ([]PendingSync, error) {
	items, err := r.queries.GetPendingSyncTransactions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) GetTransactionForSync(ctx context.Context, id string) (core.Transaction, int64, SyncStatus, error) {
	t, version, status, err := r.queries.GetTransactionForSync(ctx, id)
	if err != nil {
		return core.Transaction{}, 0, "", lookupErr("transaction", id, err)
	}
	return t, version, status, nil
}

// MarkSynced marks a transaction version as exported
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, version int64) error {
	n, err := r.queries.MarkTransactionSynced(ctx, id, version)
	if err != nil {
		return fmt.Errorf("mark synced transaction: %w", err)
	}
	if n == 0 {
		_, current, _, err := r.GetTransactionForSync(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("transaction %s at version %d, exported %d: %w", id, current, version, ErrStaleVersion)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id, "version", version)
	return nil
}

// MarkSyncError marks a transaction as failed to export
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	n, err := r.queries.MarkTransactionSyncStatus(ctx, id, SyncError)
	if err := writeErr("mark sync error", "transaction", id, n, err); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

// Wildlife permits

func (r *SQLiteRepository) CreatePermit(ctx context.Context, p core.Permit) error {
	if err := r.queries.CreatePermit(ctx, p); err != nil {
		return fmt.Errorf("create permit: %w", err)
	}
	slog.InfoContext(ctx, "Wildlife permit saved to SQLite", "id", p.ID, "number", p.PermitNumber)
	return nil
}

func (r *SQLiteRepository) GetPermit(ctx context.Context, id string) (core.Permit, error) {
	p, err := r.queries.GetPermit(ctx, id)
	if err != nil {
		return core.Permit{}, lookupErr("permit", id, err)
	}
	return p, nil
}

func (r *SQLiteRepository) ListPermits(ctx context.Context) ([]core.Permit, error) {
	items, err := r.queries.ListPermits(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permits: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) UpdatePermit(ctx context.Context, p core.Permit) error {
	n, err := r.queries.UpdatePermit(ctx, p)
	return writeErr("update", "permit", p.ID, n, err)
}

func (r *SQLiteRepository) DeletePermit(ctx context.Context, id string) error {
	n, err := r.queries.DeletePermit(ctx, id)
	return writeErr("delete", "permit", id, n, err)
}
