package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aviary/internal/amqp"
	"aviary/internal/core"
	"aviary/internal/log"
	"aviary/internal/observability"
	"aviary/internal/sheets"
	ledgermem "aviary/internal/sheets/memory"
	"aviary/internal/storage"
	"aviary/internal/storage/memory"
)

type failingLedger struct{ err error }

func (f failingLedger) Append(context.Context, sheets.LedgerRow) (string, error) {
	return "", f.err
}

func quietLogger() *log.Logger {
	return log.New(log.Config{Output: io.Discard, Component: log.ComponentWorker})
}

func seedTransaction(t *testing.T, st *memory.Store, id string, created time.Time) core.Transaction {
	t.Helper()
	tx := core.Transaction{
		ID:        id,
		Type:      core.Sale,
		Amount:    core.Money{Cents: 2500},
		Currency:  "EUR",
		Date:      core.NewDate(2025, 4, 2),
		CreatedAt: created,
	}
	require.NoError(t, st.CreateTransaction(context.Background(), tx))
	return tx
}

func syncStatus(t *testing.T, st storage.LedgerSyncStore, id string) (int64, storage.SyncStatus) {
	t.Helper()
	_, v, status, err := st.GetTransactionForSync(context.Background(), id)
	require.NoError(t, err)
	return v, status
}

func TestLedgerWorker_HandleSyncMessage(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ledger := ledgermem.New()
	metrics := observability.NewMetricsForTesting()
	w := NewLedgerWorker(st, ledger, 10, metrics, clockwork.NewFakeClock(), quietLogger())

	tx := seedTransaction(t, st, "t1", time.Now())

	require.NoError(t, w.HandleSyncMessage(ctx, amqp.NewLedgerSyncMessage("t1", 1)))
	assert.Equal(t, 1, ledger.Len())
	_, status := syncStatus(t, st, "t1")
	assert.Equal(t, storage.SyncSynced, status)

	// redelivery of the same message
	require.NoError(t, w.HandleSyncMessage(ctx, amqp.NewLedgerSyncMessage("t1", 1)))
	assert.Equal(t, 1, ledger.Len())

	tx.Description = "Corrected"
	require.NoError(t, st.UpdateTransaction(ctx, tx))

	require.NoError(t, w.HandleSyncMessage(ctx, amqp.NewLedgerSyncMessage("t1", 1)), "older message is dropped")
	assert.Equal(t, 1, ledger.Len())

	require.NoError(t, w.HandleSyncMessage(ctx, amqp.NewLedgerSyncMessage("t1", 2)))
	assert.Equal(t, 2, ledger.Len())
	rows, err := ledger.Rows(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, "Corrected", rows[1].Description)
	assert.Equal(t, int64(2), rows[1].Version)

	require.NoError(t, w.HandleSyncMessage(ctx, amqp.NewLedgerSyncMessage("gone", 1)), "deleted transactions are acked")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.LedgerSync.WithLabelValues(OutcomeSynced)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LedgerSync.WithLabelValues(OutcomeStale)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.LedgerSync.WithLabelValues(OutcomeSkipped)))
}

func TestLedgerWorker_FailedAppendMarksErrorAndRequeues(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedTransaction(t, st, "t1", time.Now())

	w := NewLedgerWorker(st, failingLedger{errors.New("quota exceeded")}, 10, nil, nil, quietLogger())
	err := w.HandleSyncMessage(ctx, amqp.NewLedgerSyncMessage("t1", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	_, status := syncStatus(t, st, "t1")
	assert.Equal(t, storage.SyncError, status)
}

func TestLedgerWorker_ProcessPending(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	base := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"t1", "t2", "t3"} {
		seedTransaction(t, st, id, base.Add(time.Duration(i)*time.Minute))
	}
	require.NoError(t, st.MarkSyncError(ctx, "t2"))

	ledger := ledgermem.New()
	w := NewLedgerWorker(st, ledger, 2, nil, nil, quietLogger())

	sum, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncSummary{Total: 2, Synced: 2}, sum)

	sum, err = w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncSummary{Total: 1, Synced: 1}, sum)

	sum, err = w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncSummary{}, sum)
	assert.Equal(t, 3, ledger.Len())
}

func TestLedgerWorker_ProcessPendingCountsErrors(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedTransaction(t, st, "t1", time.Now())

	w := NewLedgerWorker(st, failingLedger{errors.New("down")}, 10, nil, nil, quietLogger())
	sum, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncSummary{Total: 1, Errors: 1}, sum)

	// errored rows are retried with a working ledger
	ledger := ledgermem.New()
	require.NoError(t, NewLedgerWorker(st, ledger, 10, nil, nil, quietLogger()).StartupSyncCheck(ctx))
	assert.Equal(t, 1, ledger.Len())
	_, status := syncStatus(t, st, "t1")
	assert.Equal(t, storage.SyncSynced, status)
}

func TestLedgerWorker_StartupSyncCheckEmpty(t *testing.T) {
	w := NewLedgerWorker(memory.New(), ledgermem.New(), 10, nil, nil, quietLogger())
	assert.NoError(t, w.StartupSyncCheck(context.Background()))
}
