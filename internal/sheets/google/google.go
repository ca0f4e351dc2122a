package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	ports "aviary/internal/sheets"
)

// Ensure interface conformance
var (
	_ ports.LedgerWriter = (*Client)(nil)
	_ ports.LedgerReader = (*Client)(nil)
)

// Options selects the spreadsheet and the service account used to reach it.
type Options struct {
	SpreadsheetID string
	// LedgerSheet is the base sheet name; the row's year is prefixed.
	LedgerSheet     string
	CredentialsFile string
	CredentialsJSON string
}

// Client appends ledger rows to a yearly sheet ("2025 Ledger").
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	ledgerBase    string

	// Append reads the sheet to find the next row; concurrent appends from
	// the same process would pick the same row.
	mu sync.Mutex
}

// New creates a Sheets client authenticated with a service account.
// Extra client options are passed to the Sheets service.
func New(ctx context.Context, opts Options, extra ...goption.ClientOption) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(opts.LedgerSheet)
	if base == "" {
		base = "Ledger"
	}

	svc, err := newSheetsService(ctx, opts, extra...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, spreadsheetID, base), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, ledgerBase string) *Client {
	return &Client{svc: svc, spreadsheetID: spreadsheetID, ledgerBase: ledgerBase}
}

// newSheetsService initializes a Sheets Service using Service Account credentials,
// inline JSON first, then the credentials file.
func newSheetsService(ctx context.Context, opts Options, extra ...goption.ClientOption) (*gsheet.Service, error) {
	if len(extra) > 0 {
		return gsheet.NewService(ctx, extra...)
	}

	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(opts.CredentialsJSON)
	case strings.TrimSpace(opts.CredentialsFile) != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", opts.CredentialsFile)
		raw, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = raw
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// SheetName returns the sheet a row dated in year is written to.
func (c *Client) SheetName(year int) string {
	return yearPrefixedName(c.ledgerBase, year)
}

// Append writes row at the end of its year's sheet. A row already present
// for the same transaction and version is not written again.
func (c *Client) Append(ctx context.Context, row ports.LedgerRow) (string, error) {
	if row.TransactionID == "" {
		return "", errors.New("ledger row has no transaction id")
	}
	if row.Date.IsEmpty() {
		return "", fmt.Errorf("ledger row %s has no date", row.TransactionID)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sheet := c.SheetName(row.Date.Year())
	rng := fmt.Sprintf("%s!A:B", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rng, err)
	}
	if n := findRow(resp.Values, row.TransactionID, row.Version); n > 0 {
		slog.DebugContext(ctx, "Ledger row already present", "id", row.TransactionID, "version", row.Version, "row", n)
		return fmt.Sprintf("%s!A%d:%s%d", sheet, n, lastColumn, n), nil
	}

	values := [][]any{rowValues(row)}
	first := len(resp.Values) + 1
	if len(resp.Values) == 0 {
		values = [][]any{ledgerHeader, rowValues(row)}
	}
	last := first + len(values) - 1

	dataRange := fmt.Sprintf("%s!A%d:%s%d", sheet, first, lastColumn, last)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", dataRange, err)
	}

	return fmt.Sprintf("%s!A%d:%s%d", sheet, last, lastColumn, last), nil
}

// Rows reads every parseable row from the year's sheet.
func (c *Client) Rows(ctx context.Context, year int) ([]ports.LedgerRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:%s", c.SheetName(year), lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseLedgerRows(resp.Values), nil
}
