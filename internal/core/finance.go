package core

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DateRangeFilter bounds transactions by date, inclusive on both ends.
// A zero bound is unbounded.
type DateRangeFilter struct {
	From Date
	To   Date
}

// Contains reports whether d falls inside the filter.
func (f DateRangeFilter) Contains(d Date) bool {
	if !f.From.IsEmpty() && d.Before(f.From) {
		return false
	}
	if !f.To.IsEmpty() && d.After(f.To) {
		return false
	}
	return true
}

// PartitionSummary aggregates one transaction type.
type PartitionSummary struct {
	Count   int   `json:"count"`
	Total   Money `json:"total"`
	Average Money `json:"average"`
}

// CurrencyBalance holds the per-currency breakdown of a BalanceSummary.
type CurrencyBalance struct {
	Sales      PartitionSummary `json:"sales"`
	Purchases  PartitionSummary `json:"purchases"`
	Expenses   PartitionSummary `json:"expenses"`
	NetBalance Money            `json:"net_balance"`
}

// BalanceSummary is the result of Aggregate.
//
// The top-level totals add raw amounts without conversion. Currency is a label
// supplied by the caller; ByCurrency keeps the per-code sub-totals so mixed
// inputs stay visible.
type BalanceSummary struct {
	Currency   string                     `json:"currency"`
	Sales      PartitionSummary           `json:"sales"`
	Purchases  PartitionSummary           `json:"purchases"`
	Expenses   PartitionSummary           `json:"expenses"`
	NetBalance Money                      `json:"net_balance"`
	ByCurrency map[string]CurrencyBalance `json:"by_currency"`
}

// WithCurrency returns a copy labelled with currency.
func (s BalanceSummary) WithCurrency(currency string) BalanceSummary {
	s.Currency = currency
	return s
}

// MixedCurrency reports whether more than one currency contributed.
func (s BalanceSummary) MixedCurrency() bool {
	return len(s.ByCurrency) > 1
}

// Aggregate filters transactions by date and sums them per type.
// Averages are zero for empty partitions and rounded half away from zero to
// the cent. NetBalance is sales minus purchases minus expenses.
func Aggregate(txs []Transaction, filter DateRangeFilter) BalanceSummary {
	var all partitions
	per := map[string]*partitions{}
	for _, tx := range txs {
		if !filter.Contains(tx.Date) {
			continue
		}
		all.add(tx)
		code := NormalizeCurrency(tx.Currency)
		p, ok := per[code]
		if !ok {
			p = &partitions{}
			per[code] = p
		}
		p.add(tx)
	}

	out := BalanceSummary{ByCurrency: make(map[string]CurrencyBalance, len(per))}
	cb := all.balance()
	out.Sales, out.Purchases, out.Expenses, out.NetBalance = cb.Sales, cb.Purchases, cb.Expenses, cb.NetBalance
	for code, p := range per {
		out.ByCurrency[code] = p.balance()
	}
	return out
}

type partitions struct {
	sales, purchases, expenses partition
}

type partition struct {
	count int
	total int64
}

func (p *partitions) add(tx Transaction) {
	switch tx.Type {
	case Sale:
		p.sales.add(tx.Amount)
	case Purchase:
		p.purchases.add(tx.Amount)
	case Expense:
		p.expenses.add(tx.Amount)
	}
}

func (p *partition) add(m Money) {
	p.count++
	p.total += m.Cents
}

func (p partition) summary() PartitionSummary {
	s := PartitionSummary{Count: p.count, Total: Money{Cents: p.total}}
	if p.count == 0 {
		return s
	}
	avg := decimal.NewFromInt(p.total).Div(decimal.NewFromInt(int64(p.count))).Round(0)
	s.Average = Money{Cents: avg.IntPart()}
	return s
}

func (p partitions) balance() CurrencyBalance {
	return CurrencyBalance{
		Sales:      p.sales.summary(),
		Purchases:  p.purchases.summary(),
		Expenses:   p.expenses.summary(),
		NetBalance: Money{Cents: p.sales.total - p.purchases.total - p.expenses.total},
	}
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"category"`
	Amount Money  `json:"amount"`
	Count  int    `json:"count"`
}

// UncategorizedLabel groups transactions without a category.
const UncategorizedLabel = "uncategorized"

// CategoryBreakdown totals transactions of type typ by category, largest first.
func CategoryBreakdown(txs []Transaction, filter DateRangeFilter, typ TransactionType) []CategoryAmount {
	idx := map[string]int{}
	var out []CategoryAmount
	for _, tx := range txs {
		if tx.Type != typ || !filter.Contains(tx.Date) {
			continue
		}
		name := strings.TrimSpace(tx.Category)
		if name == "" {
			name = UncategorizedLabel
		}
		i, ok := idx[name]
		if !ok {
			i = len(out)
			idx[name] = i
			out = append(out, CategoryAmount{Name: name})
		}
		out[i].Amount = out[i].Amount.Add(tx.Amount)
		out[i].Count++
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Amount.Cents != out[b].Amount.Cents {
			return out[a].Amount.Cents > out[b].Amount.Cents
		}
		return out[a].Name < out[b].Name
	})
	return out
}

// PurchaseFromBird turns a purchase-flagged bird into a purchase transaction.
// ok is false for birds without a purchase price.
func PurchaseFromBird(b Bird) (Transaction, bool) {
	if !b.IsPurchased() {
		return Transaction{}, false
	}
	date := b.PurchaseDate
	if date.IsEmpty() {
		date = DateOf(b.CreatedAt)
	}
	return Transaction{
		ID:          "bird:" + b.ID,
		Type:        Purchase,
		Amount:      b.PurchasePrice,
		Currency:    NormalizeCurrency(b.PurchaseCurrency),
		Date:        date,
		Category:    "birds",
		Description: "Purchase of " + b.Name,
		BirdID:      b.ID,
		CreatedAt:   b.CreatedAt,
	}, true
}
