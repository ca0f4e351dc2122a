package services

import (
	"context"
	"fmt"
	"strings"

	"aviary/internal/core"
	"aviary/internal/log"
)

// TransactionService stores sales, purchases and expenses and announces each
// write to the ledger exporter.
type TransactionService struct {
	deps  Deps
	views *viewCache
}

func (s *TransactionService) normalize(t core.Transaction) core.Transaction {
	t.Currency = core.NormalizeCurrency(t.Currency)
	if t.Currency == "" {
		t.Currency = s.deps.DefaultCurrency
	}
	t.Category = strings.TrimSpace(t.Category)
	t.Description = strings.TrimSpace(t.Description)
	if t.Date.IsEmpty() {
		t.Date = s.deps.today()
	}
	return t
}

// CreateTransaction saves the transaction, then publishes a sync message.
// A failed publish is logged; the pending row is picked up by the worker's
// sweep later.
func (s *TransactionService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t = s.normalize(t)
	t.ID = s.deps.NewID()
	t.CreatedAt = s.deps.now()
	if err := t.Validate(); err != nil {
		return core.Transaction{}, invalid(err)
	}
	if err := s.deps.Store.CreateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	s.written(ctx, log.OpCreate, t)
	s.publish(ctx, t.ID, 1)
	return t, nil
}

func (s *TransactionService) UpdateTransaction(ctx context.Context, id string, t core.Transaction) (core.Transaction, error) {
	existing, err := s.deps.Store.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	t = s.normalize(t)
	t.ID, t.CreatedAt = existing.ID, existing.CreatedAt
	if err := t.Validate(); err != nil {
		return core.Transaction{}, invalid(err)
	}
	if err := s.deps.Store.UpdateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.written(ctx, log.OpUpdate, t)

	_, version, _, err := s.deps.Store.GetTransactionForSync(ctx, id)
	if err != nil {
		s.deps.Logger.WarnContext(ctx, "Failed to read transaction version", log.FieldID, id, log.FieldError, err)
		return t, nil
	}
	s.publish(ctx, id, version)
	return t, nil
}

func (s *TransactionService) DeleteTransaction(ctx context.Context, id string) error {
	if err := s.deps.Store.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	s.views.invalidate()
	s.deps.Metrics.RecordWrite("transaction", log.OpDelete)
	return nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.deps.Store.GetTransaction(ctx, id)
}

func (s *TransactionService) ListTransactions(ctx context.Context, f core.DateRangeFilter) ([]core.Transaction, error) {
	return s.deps.Store.ListTransactions(ctx, f)
}

func (s *TransactionService) written(ctx context.Context, op string, t core.Transaction) {
	s.views.invalidate()
	s.deps.Metrics.RecordWrite("transaction", op)
	s.deps.Logger.InfoContext(ctx, "Transaction saved",
		log.FieldOperation, op,
		log.FieldID, t.ID,
		"type", t.Type,
		log.FieldAmountCents, t.Amount.Cents,
		log.FieldCurrency, t.Currency)
}

func (s *TransactionService) publish(ctx context.Context, id string, version int64) {
	if s.deps.Publisher == nil {
		s.deps.Logger.DebugContext(ctx, "No ledger publisher configured, skipping sync message", log.FieldID, id)
		return
	}
	if err := s.deps.Publisher.PublishLedgerSync(ctx, id, version); err != nil {
		s.deps.Metrics.Publish(false)
		s.deps.Logger.ErrorContext(ctx, "Failed to publish ledger sync message",
			log.FieldID, id, "version", version, log.FieldError, err)
		return
	}
	s.deps.Metrics.Publish(true)
}
