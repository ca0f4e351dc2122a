package google

import (
	"testing"

	"aviary/internal/core"
	"aviary/internal/sheets"
)

func TestParseLedgerRows(t *testing.T) {
	values := [][]any{
		ledgerHeader,
		{"t1", "2", "2025-03-14", "sale", "birds", "Young cockatiel", "120.50", "EUR", ""},
		{"t2", "1", "2025-03-15", "expense", "feed", "Seed", "9,99", "EUR"},
		{"broken", "x", "2025-03-15", "expense", "", "", "1.00"},
		{"short", "1"},
		{"t3", "1", "not a date", "sale", "", "", "1.00"},
	}

	rows := parseLedgerRows(values)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].Version != 2 || rows[0].Amount.Cents != 12050 || rows[0].Type != core.Sale {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Amount.Cents != 999 || rows[1].BirdID != "" {
		t.Errorf("unexpected second row: %+v", rows[1])
	}
}

func TestRowValuesRoundTrip(t *testing.T) {
	in := sheets.LedgerRow{
		TransactionID: "t9",
		Version:       3,
		Date:          core.NewDate(2025, 1, 2),
		Type:          core.Purchase,
		Amount:        core.Money{Cents: 4500},
		Currency:      "USD",
		BirdID:        "b1",
	}
	out := parseLedgerRows([][]any{rowValues(in)})
	if len(out) != 1 || out[0] != in {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestFindRow(t *testing.T) {
	values := [][]any{ledgerHeader, {"t1", "1"}, {"t1", float64(2)}, {"t2", "1"}}
	tests := []struct {
		id      string
		version int64
		want    int
	}{
		{"t1", 1, 2},
		{"t1", 2, 3},
		{"t2", 1, 4},
		{"t2", 2, 0},
		{"t3", 1, 0},
	}
	for _, tt := range tests {
		if got := findRow(values, tt.id, tt.version); got != tt.want {
			t.Errorf("findRow(%s, %d) = %d, want %d", tt.id, tt.version, got, tt.want)
		}
	}
}
