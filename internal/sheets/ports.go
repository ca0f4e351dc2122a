// Package sheets defines the outbound port for exporting transactions to an
// external ledger, with Google Sheets and in-memory adapters.
package sheets

import (
	"context"

	"aviary/internal/core"
)

// LedgerRow is one exported transaction as stored in the ledger.
type LedgerRow struct {
	TransactionID string
	Version       int64
	Date          core.Date
	Type          core.TransactionType
	Category      string
	Description   string
	Amount        core.Money
	Currency      string
	BirdID        string
}

// RowFromTransaction builds the ledger row for version v of t.
func RowFromTransaction(t core.Transaction, v int64) LedgerRow {
	return LedgerRow{
		TransactionID: t.ID,
		Version:       v,
		Date:          t.Date,
		Type:          t.Type,
		Category:      t.Category,
		Description:   t.Description,
		Amount:        t.Amount,
		Currency:      t.Currency,
		BirdID:        t.BirdID,
	}
}

// Ports for outbound adapters.
type (
	// LedgerWriter appends a row per transaction version. Appending a
	// (TransactionID, Version) pair that is already present returns the
	// existing reference instead of writing a duplicate.
	LedgerWriter interface {
		Append(ctx context.Context, row LedgerRow) (rowRef string, err error)
	}

	// LedgerReader lists the rows exported for a calendar year.
	LedgerReader interface {
		Rows(ctx context.Context, year int) ([]LedgerRow, error)
	}
)
