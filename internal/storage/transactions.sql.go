package storage

import (
	"context"
	"database/sql"

	"aviary/internal/core"
)

const transactionColumns = `id, type, amount_cents, currency, tx_date, category, description, bird_id, created_at`

func scanTransaction(row scanner, extra ...any) (core.Transaction, error) {
	var (
		t                      core.Transaction
		typ, txDate, createdAt string
		cents                  int64
	)
	dest := append([]any{&t.ID, &typ, &cents, &t.Currency, &txDate, &t.Category, &t.Description, &t.BirdID, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.Amount = core.Money{Cents: cents}
	t.Date = dateCol(sql.NullString{String: txDate, Valid: true})
	t.CreatedAt = timeCol(createdAt)
	return t, nil
}

const createTransaction = `INSERT INTO transactions (` + transactionColumns + `, sync_status, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', 1)`

func (q *Queries) CreateTransaction(ctx context.Context, t core.Transaction) error {
	_, err := q.db.ExecContext(ctx, createTransaction,
		t.ID, string(t.Type), t.Amount.Cents, t.Currency, t.Date.Format(core.DateLayout), t.Category, t.Description, t.BirdID, timeArg(t.CreatedAt))
	return err
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const getTransactionForSync = `SELECT ` + transactionColumns + `, version, sync_status FROM transactions WHERE id = ?`

func (q *Queries) GetTransactionForSync(ctx context.Context, id string) (core.Transaction, int64, SyncStatus, error) {
	var (
		version int64
		status  string
	)
	t, err := scanTransaction(q.db.QueryRowContext(ctx, getTransactionForSync, id), &version, &status)
	if err != nil {
		return core.Transaction{}, 0, "", err
	}
	return t, version, SyncStatus(status), nil
}

const listTransactions = `SELECT ` + transactionColumns + ` FROM transactions
WHERE (? = '' OR tx_date >= ?) AND (? = '' OR tx_date <= ?)
ORDER BY tx_date DESC, created_at DESC, id`

func (q *Queries) ListTransactions(ctx context.Context, f core.DateRangeFilter) ([]core.Transaction, error) {
	from, to := f.From.String(), f.To.String()
	rows, err := q.db.QueryContext(ctx, listTransactions, from, from, to, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const updateTransaction = `UPDATE transactions SET type = ?, amount_cents = ?, currency = ?, tx_date = ?,
    category = ?, description = ?, bird_id = ?, sync_status = 'pending', version = version + 1
WHERE id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransaction,
		string(t.Type), t.Amount.Cents, t.Currency, t.Date.Format(core.DateLayout),
		t.Category, t.Description, t.BirdID, t.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getPendingSyncTransactions = `SELECT id, version, created_at FROM transactions
WHERE sync_status IN ('pending', 'error')
ORDER BY created_at ASC, id
LIMIT ?`

func (q *Queries) GetPendingSyncTransactions(ctx context.Context, limit int) ([]PendingSync, error) {
	rows, err := q.db.QueryContext(ctx, getPendingSyncTransactions, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PendingSync
	for rows.Next() {
		var (
			p         PendingSync
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Version, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt = timeCol(createdAt)
		items = append(items, p)
	}
	return items, rows.Err()
}

const markTransactionSynced = `UPDATE transactions SET sync_status = 'synced' WHERE id = ? AND version = ?`

func (q *Queries) MarkTransactionSynced(ctx context.Context, id string, version int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markTransactionSynced, id, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markTransactionSyncStatus = `UPDATE transactions SET sync_status = ? WHERE id = ?`

func (q *Queries) MarkTransactionSyncStatus(ctx context.Context, id string, status SyncStatus) (int64, error) {
	res, err := q.db.ExecContext(ctx, markTransactionSyncStatus, string(status), id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
