package google

import (
	"fmt"
	"strconv"
	"strings"

	"aviary/internal/core"
	"aviary/internal/sheets"
)

// ledgerHeader is written to row 1 of a new ledger sheet. Column order is
// relied on by rowValues and parseLedgerRows.
var ledgerHeader = []any{"ID", "Version", "Date", "Type", "Category", "Description", "Amount", "Currency", "Bird"}

const lastColumn = "I"

func rowValues(r sheets.LedgerRow) []any {
	return []any{
		r.TransactionID,
		r.Version,
		r.Date.String(),
		string(r.Type),
		r.Category,
		r.Description,
		r.Amount.String(),
		r.Currency,
		r.BirdID,
	}
}

// parseLedgerRows converts a values matrix (as returned by the Sheets API)
// into ledger rows. The header and rows that do not parse are skipped.
func parseLedgerRows(values [][]any) []sheets.LedgerRow {
	var out []sheets.LedgerRow
	for _, raw := range values {
		cols := toStrings(raw)
		if len(cols) < 7 {
			continue
		}
		version, err := strconv.ParseInt(cols[1], 10, 64)
		if err != nil {
			continue
		}
		date, err := core.ParseDate(cols[2])
		if err != nil {
			continue
		}
		cents, err := core.ParseDecimalToCents(cols[6])
		if err != nil {
			continue
		}
		out = append(out, sheets.LedgerRow{
			TransactionID: cols[0],
			Version:       version,
			Date:          date,
			Type:          core.TransactionType(cols[3]),
			Category:      cols[4],
			Description:   cols[5],
			Amount:        core.Money{Cents: cents},
			Currency:      safeGet(cols, 7),
			BirdID:        safeGet(cols, 8),
		})
	}
	return out
}

// findRow returns the 1-based sheet row holding id at version, or 0.
// values is column A:B starting at row 1.
func findRow(values [][]any, id string, version int64) int {
	want := strconv.FormatInt(version, 10)
	for i, raw := range values {
		cols := toStrings(raw)
		if safeGet(cols, 0) == id && safeGet(cols, 1) == want {
			return i + 1
		}
	}
	return 0
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
