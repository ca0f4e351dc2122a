package storage

import (
	"context"
	"database/sql"

	"aviary/internal/core"
)

const permitColumns = `id, permit_number, permit_type, issuing_authority, species, issue_date, expiry_date, notes, created_at`

func scanPermit(row scanner) (core.Permit, error) {
	var (
		p             core.Permit
		issue, expiry sql.NullString
		createdAt     string
	)
	err := row.Scan(&p.ID, &p.PermitNumber, &p.PermitType, &p.IssuingAuthority, &p.Species, &issue, &expiry, &p.Notes, &createdAt)
	if err != nil {
		return core.Permit{}, err
	}
	p.IssueDate = dateCol(issue)
	p.ExpiryDate = dateCol(expiry)
	p.CreatedAt = timeCol(createdAt)
	return p, nil
}

const createPermit = `INSERT INTO wildlife_permits (` + permitColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreatePermit(ctx context.Context, p core.Permit) error {
	_, err := q.db.ExecContext(ctx, createPermit,
		p.ID, p.PermitNumber, p.PermitType, p.IssuingAuthority, p.Species, dateArg(p.IssueDate), dateArg(p.ExpiryDate), p.Notes, timeArg(p.CreatedAt))
	return err
}

const getPermit = `SELECT ` + permitColumns + ` FROM wildlife_permits WHERE id = ?`

func (q *Queries) GetPermit(ctx context.Context, id string) (core.Permit, error) {
	return scanPermit(q.db.QueryRowContext(ctx, getPermit, id))
}

const listPermits = `SELECT ` + permitColumns + ` FROM wildlife_permits ORDER BY expiry_date IS NULL, expiry_date, id`

func (q *Queries) ListPermits(ctx context.Context) ([]core.Permit, error) {
	rows, err := q.db.QueryContext(ctx, listPermits)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Permit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const updatePermit = `UPDATE wildlife_permits SET permit_number = ?, permit_type = ?, issuing_authority = ?, species = ?,
    issue_date = ?, expiry_date = ?, notes = ?
WHERE id = ?`

func (q *Queries) UpdatePermit(ctx context.Context, p core.Permit) (int64, error) {
	res, err := q.db.ExecContext(ctx, updatePermit,
		p.PermitNumber, p.PermitType, p.IssuingAuthority, p.Species,
		dateArg(p.IssueDate), dateArg(p.ExpiryDate), p.Notes, p.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deletePermit = `DELETE FROM wildlife_permits WHERE id = ?`

func (q *Queries) DeletePermit(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deletePermit, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
