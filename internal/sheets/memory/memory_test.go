package memory

import (
	"context"
	"testing"

	"aviary/internal/core"
	"aviary/internal/sheets"
)

func TestLedgerAppendAndRows(t *testing.T) {
	l := New()
	ctx := context.Background()

	row := sheets.LedgerRow{TransactionID: "t1", Version: 1, Date: core.NewDate(2025, 3, 1), Type: core.Sale, Amount: core.Money{Cents: 500}}
	ref, err := l.Append(ctx, row)
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	other := row
	other.TransactionID = "t2"
	other.Date = core.NewDate(2024, 12, 31)
	if ref, err = l.Append(ctx, other); err != nil || ref != "mem:2" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	rows, err := l.Rows(ctx, 2025)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 1 || rows[0].TransactionID != "t1" {
		t.Fatalf("unexpected rows for 2025: %+v", rows)
	}
}

func TestLedgerAppendIsIdempotentPerVersion(t *testing.T) {
	l := New()
	ctx := context.Background()
	row := sheets.LedgerRow{TransactionID: "t1", Version: 1, Date: core.NewDate(2025, 3, 1)}

	first, _ := l.Append(ctx, row)
	again, _ := l.Append(ctx, row)
	if first != again || l.Len() != 1 {
		t.Fatalf("duplicate append wrote a new row: %q %q len=%d", first, again, l.Len())
	}

	row.Version = 2
	if ref, _ := l.Append(ctx, row); ref != "mem:2" {
		t.Fatalf("new version should append, got %q", ref)
	}
}

func TestLedgerRejectsRowWithoutID(t *testing.T) {
	if _, err := New().Append(context.Background(), sheets.LedgerRow{}); err == nil {
		t.Fatal("expected error for missing transaction id")
	}
}
