package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"aviary/internal/amqp"
	"aviary/internal/core"
	"aviary/internal/log"
	"aviary/internal/observability"
	"aviary/internal/sheets"
	"aviary/internal/storage"
)

// Sync outcomes, also used as metric labels.
const (
	OutcomeSynced  = "synced"
	OutcomeSkipped = "skipped"
	OutcomeStale   = "stale"
	OutcomeError   = "error"
)

// LedgerWorker exports transactions from the store to the external ledger.
type LedgerWorker struct {
	store     storage.LedgerSyncStore
	ledger    sheets.LedgerWriter
	batchSize int
	metrics   *observability.Metrics
	clock     clockwork.Clock
	logger    *log.Logger
}

// SyncSummary counts the outcomes of one batch.
type SyncSummary struct {
	Total  int
	Synced int
	Errors int
}

func NewLedgerWorker(store storage.LedgerSyncStore, ledger sheets.LedgerWriter, batchSize int, metrics *observability.Metrics, clock clockwork.Clock, logger *log.Logger) *LedgerWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = log.New(log.Config{Handler: slog.Default().Handler(), Component: log.ComponentWorker})
	}
	return &LedgerWorker{
		store:     store,
		ledger:    ledger,
		batchSize: batchSize,
		metrics:   metrics,
		clock:     clock,
		logger:    logger,
	}
}

// HandleSyncMessage processes a single ledger sync message from AMQP.
// Returning an error requeues the message.
func (w *LedgerWorker) HandleSyncMessage(ctx context.Context, msg *amqp.LedgerSyncMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message",
		log.FieldID, msg.ID,
		"version", msg.Version)

	t, version, status, err := w.store.GetTransactionForSync(ctx, msg.ID)
	if errors.Is(err, storage.ErrNotFound) {
		w.logger.InfoContext(ctx, "Transaction deleted before export, dropping message", log.FieldID, msg.ID)
		w.metrics.Sync(OutcomeSkipped, 0)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	switch {
	case msg.Version < version:
		w.logger.DebugContext(ctx, "Message is older than stored version",
			log.FieldID, msg.ID, "message_version", msg.Version, "stored_version", version)
		w.metrics.Sync(OutcomeStale, 0)
		return nil
	case status == storage.SyncSynced:
		w.logger.DebugContext(ctx, "Transaction already exported", log.FieldID, msg.ID, "version", version)
		w.metrics.Sync(OutcomeSkipped, 0)
		return nil
	}

	return w.syncTransaction(ctx, t, version)
}

// ProcessPending exports pending and errored transactions.
// This is a backup mechanism in case AMQP messages are lost.
func (w *LedgerWorker) ProcessPending(ctx context.Context) (SyncSummary, error) {
	return w.processBatch(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger sweep when the worker starts, to recover
// from missed messages or downtime.
func (w *LedgerWorker) StartupSyncCheck(ctx context.Context) error {
	sum, err := w.processBatch(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if sum.Total == 0 {
		w.logger.InfoContext(ctx, "No pending transactions found on startup")
		return nil
	}
	w.logger.InfoContext(ctx, "Startup sync completed",
		"total", sum.Total,
		"synced", sum.Synced,
		"errors", sum.Errors)
	return nil
}

func (w *LedgerWorker) processBatch(ctx context.Context, limit int) (SyncSummary, error) {
	pending, err := w.store.GetPendingSyncTransactions(ctx, limit)
	if err != nil {
		return SyncSummary{}, fmt.Errorf("get pending transactions: %w", err)
	}
	sum := SyncSummary{Total: len(pending)}
	if len(pending) == 0 {
		return sum, nil
	}

	w.logger.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	for _, p := range pending {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		t, version, _, err := w.store.GetTransactionForSync(ctx, p.ID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to get transaction", log.FieldID, p.ID, log.FieldError, err)
			sum.Errors++
			continue
		}
		if err := w.syncTransaction(ctx, t, version); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync transaction", log.FieldID, p.ID, log.FieldError, err)
			sum.Errors++
			continue
		}
		sum.Synced++
	}
	return sum, nil
}

func (w *LedgerWorker) syncTransaction(ctx context.Context, t core.Transaction, version int64) error {
	start := w.clock.Now()

	ref, err := w.ledger.Append(ctx, sheets.RowFromTransaction(t, version))
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, t.ID); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error", log.FieldID, t.ID, log.FieldError, markErr)
		}
		w.metrics.Sync(OutcomeError, 0)
		return fmt.Errorf("append to ledger: %w", err)
	}

	// The row is written; a failed mark only means a later sweep finds
	// the same version again, which the ledger deduplicates.
	switch err := w.store.MarkSynced(ctx, t.ID, version); {
	case errors.Is(err, storage.ErrStaleVersion):
		w.logger.InfoContext(ctx, "Transaction changed during export, newer version stays pending",
			log.FieldID, t.ID, "version", version)
	case err != nil:
		w.logger.ErrorContext(ctx, "Failed to mark as synced", log.FieldID, t.ID, log.FieldError, err)
	}

	w.metrics.Sync(OutcomeSynced, w.clock.Since(start))
	w.logger.InfoContext(ctx, "Successfully exported transaction",
		log.FieldID, t.ID,
		"version", version,
		log.FieldLedgerRef, ref,
		log.FieldAmountCents, t.Amount.Cents,
		log.FieldCurrency, t.Currency)
	return nil
}
