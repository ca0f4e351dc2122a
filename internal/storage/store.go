package storage

import (
	"context"
	"errors"
	"time"

	"aviary/internal/core"
)

var (
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStaleVersion is returned by MarkSynced when the transaction was
	// updated after the exported version was read.
	ErrStaleVersion = errors.New("stale transaction version")
)

// SyncStatus tracks whether a transaction has reached the external ledger.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// BirdFilter narrows ListBirds. Empty fields match everything; Query is a
// case-insensitive substring match on name, ring number and species.
type BirdFilter struct {
	Species string
	Status  core.BirdStatus
	Gender  core.Gender
	Query   string
}

// PendingSync is the minimal data needed to enqueue a ledger sync message.
type PendingSync struct {
	ID        string
	Version   int64
	CreatedAt time.Time
}

type BirdStore interface {
	CreateBird(ctx context.Context, b core.Bird) error
	GetBird(ctx context.Context, id string) (core.Bird, error)
	ListBirds(ctx context.Context, f BirdFilter) ([]core.Bird, error)
	UpdateBird(ctx context.Context, b core.Bird) error
	DeleteBird(ctx context.Context, id string) error
	// ListOffspring returns birds whose father or mother is parentID.
	ListOffspring(ctx context.Context, parentID string) ([]core.Bird, error)
}

type PairStore interface {
	CreatePair(ctx context.Context, p core.BreedingPair) error
	GetPair(ctx context.Context, id string) (core.BreedingPair, error)
	ListPairs(ctx context.Context) ([]core.BreedingPair, error)
	UpdatePair(ctx context.Context, p core.BreedingPair) error
	DeletePair(ctx context.Context, id string) error
}

type ClutchStore interface {
	CreateClutch(ctx context.Context, c core.Clutch) error
	GetClutch(ctx context.Context, id string) (core.Clutch, error)
	// ListClutches returns every clutch, or only the pair's when pairID is set.
	ListClutches(ctx context.Context, pairID string) ([]core.Clutch, error)
	UpdateClutch(ctx context.Context, c core.Clutch) error
	DeleteClutch(ctx context.Context, id string) error
}

type IncubatorStore interface {
	CreateIncubator(ctx context.Context, i core.Incubator) error
	GetIncubator(ctx context.Context, id string) (core.Incubator, error)
	ListIncubators(ctx context.Context) ([]core.Incubator, error)
	UpdateIncubator(ctx context.Context, i core.Incubator) error
	DeleteIncubator(ctx context.Context, id string) error
}

type MonitoringStore interface {
	CreateMonitoringEntry(ctx context.Context, m core.MonitoringEntry) error
	// ListMonitoringEntries returns newest first; limit <= 0 means no limit.
	ListMonitoringEntries(ctx context.Context, incubatorID string, limit int) ([]core.MonitoringEntry, error)
	LatestMonitoringEntry(ctx context.Context, incubatorID string) (core.MonitoringEntry, error)
	DeleteMonitoringEntry(ctx context.Context, id string) error
}

type TransactionStore interface {
	CreateTransaction(ctx context.Context, t core.Transaction) error
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, f core.DateRangeFilter) ([]core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
}

// LedgerSyncStore tracks transaction export state.
type LedgerSyncStore interface {
	GetPendingSyncTransactions(ctx context.Context, limit int) ([]PendingSync, error)
	GetTransactionForSync(ctx context.Context, id string) (core.Transaction, int64, SyncStatus, error)
	// MarkSynced marks version of the transaction as exported. A newer
	// stored version yields ErrStaleVersion and stays pending.
	MarkSynced(ctx context.Context, id string, version int64) error
	MarkSyncError(ctx context.Context, id string) error
}

type PermitStore interface {
	CreatePermit(ctx context.Context, p core.Permit) error
	GetPermit(ctx context.Context, id string) (core.Permit, error)
	ListPermits(ctx context.Context) ([]core.Permit, error)
	UpdatePermit(ctx context.Context, p core.Permit) error
	DeletePermit(ctx context.Context, id string) error
}

// Store is the full persistence port.
type Store interface {
	BirdStore
	PairStore
	ClutchStore
	IncubatorStore
	MonitoringStore
	TransactionStore
	LedgerSyncStore
	PermitStore
	Ping(ctx context.Context) error
	Close() error
}
