package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"aviary/internal/sheets"
)

var _ interface {
	sheets.LedgerWriter
	sheets.LedgerReader
} = (*Ledger)(nil)

// Ledger keeps exported rows in process. It backs the worker when no
// spreadsheet is configured.
type Ledger struct {
	mu    sync.Mutex
	items []sheets.LedgerRow
	refs  map[string]string
}

func New() *Ledger {
	return &Ledger{refs: map[string]string{}}
}

// Append stores the row and returns a synthetic row reference.
func (l *Ledger) Append(_ context.Context, row sheets.LedgerRow) (string, error) {
	if row.TransactionID == "" {
		return "", errors.New("ledger row has no transaction id")
	}
	key := fmt.Sprintf("%s@%d", row.TransactionID, row.Version)
	l.mu.Lock()
	defer l.mu.Unlock()
	if ref, ok := l.refs[key]; ok {
		return ref, nil
	}
	l.items = append(l.items, row)
	ref := fmt.Sprintf("mem:%d", len(l.items))
	l.refs[key] = ref
	return ref, nil
}

// Rows returns the rows dated in year, in append order.
func (l *Ledger) Rows(_ context.Context, year int) ([]sheets.LedgerRow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []sheets.LedgerRow
	for _, r := range l.items {
		if r.Date.Year() == year {
			out = append(out, r)
		}
	}
	return out, nil
}

// Len reports how many rows have been appended.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
