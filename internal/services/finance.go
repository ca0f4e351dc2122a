package services

import (
	"context"
	"fmt"
	"sort"

	"aviary/internal/core"
	"aviary/internal/storage"
)

// FinanceService reports over transactions plus purchase-flagged birds.
type FinanceService struct {
	deps  Deps
	views *viewCache
}

type FinancialReport struct {
	From               core.Date             `json:"from"`
	To                 core.Date             `json:"to"`
	Summary            core.BalanceSummary   `json:"summary"`
	MixedCurrency      bool                  `json:"mixed_currency"`
	ExpensesByCategory []core.CategoryAmount `json:"expenses_by_category"`
	SalesByCategory    []core.CategoryAmount `json:"sales_by_category"`
}

// Ledger returns stored transactions and the purchase transactions derived
// from birds, newest first. Birds whose purchase is already recorded as a
// transaction referencing them are not counted twice.
func (s *FinanceService) Ledger(ctx context.Context, f core.DateRangeFilter) ([]core.Transaction, error) {
	// Unfiltered: a purchase recorded outside the range still covers its bird.
	all, err := s.deps.Store.ListTransactions(ctx, core.DateRangeFilter{})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	birds, err := s.deps.Store.ListBirds(ctx, storage.BirdFilter{})
	if err != nil {
		return nil, fmt.Errorf("list birds: %w", err)
	}

	recorded := make(map[string]bool)
	txs := make([]core.Transaction, 0, len(all))
	for _, t := range all {
		if t.Type == core.Purchase && t.BirdID != "" {
			recorded[t.BirdID] = true
		}
		if f.Contains(t.Date) {
			txs = append(txs, t)
		}
	}
	for _, b := range birds {
		if recorded[b.ID] {
			continue
		}
		if t, ok := core.PurchaseFromBird(b); ok && f.Contains(t.Date) {
			txs = append(txs, t)
		}
	}

	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		return txs[i].ID < txs[j].ID
	})
	return txs, nil
}

func (s *FinanceService) Report(ctx context.Context, f core.DateRangeFilter) (FinancialReport, error) {
	if !f.From.IsEmpty() && !f.To.IsEmpty() && f.To.Before(f.From) {
		return FinancialReport{}, invalid(fmt.Errorf("range end %s is before start %s", f.To, f.From))
	}
	key := fmt.Sprintf("finance:%s:%s", f.From, f.To)
	return cached(s.views, key, func() (FinancialReport, error) {
		txs, err := s.Ledger(ctx, f)
		if err != nil {
			return FinancialReport{}, err
		}
		summary := core.Aggregate(txs, f).WithCurrency(s.deps.DefaultCurrency)
		return FinancialReport{
			From:               f.From,
			To:                 f.To,
			Summary:            summary,
			MixedCurrency:      summary.MixedCurrency(),
			ExpensesByCategory: core.CategoryBreakdown(txs, f, core.Expense),
			SalesByCategory:    core.CategoryBreakdown(txs, f, core.Sale),
		}, nil
	})
}

// MonthToDate summarises the current calendar month up to today.
func (s *FinanceService) MonthToDate(ctx context.Context) (core.BalanceSummary, error) {
	today := s.deps.today()
	from := core.NewDate(today.Year(), int(today.Month()), 1)
	r, err := s.Report(ctx, core.DateRangeFilter{From: from, To: today})
	if err != nil {
		return core.BalanceSummary{}, err
	}
	return r.Summary, nil
}
