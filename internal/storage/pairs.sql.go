package storage

import (
	"context"
	"database/sql"

	"aviary/internal/core"
)

const pairColumns = `id, pair_name, male_bird_id, female_bird_id, pair_date, status, license_number,
    license_expiry, notes, created_at`

func scanPair(row scanner) (core.BreedingPair, error) {
	var (
		p                 core.BreedingPair
		status, createdAt string
		pairDate, expiry  sql.NullString
	)
	err := row.Scan(&p.ID, &p.PairName, &p.MaleBirdID, &p.FemaleBirdID, &pairDate, &status, &p.LicenseNumber,
		&expiry, &p.Notes, &createdAt)
	if err != nil {
		return core.BreedingPair{}, err
	}
	p.Status = core.PairStatus(status)
	p.PairDate = dateCol(pairDate)
	p.LicenseExpiry = dateCol(expiry)
	p.CreatedAt = timeCol(createdAt)
	return p, nil
}

const createPair = `INSERT INTO breeding_pairs (` + pairColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreatePair(ctx context.Context, p core.BreedingPair) error {
	_, err := q.db.ExecContext(ctx, createPair,
		p.ID, p.PairName, p.MaleBirdID, p.FemaleBirdID, dateArg(p.PairDate), string(p.Status), p.LicenseNumber,
		dateArg(p.LicenseExpiry), p.Notes, timeArg(p.CreatedAt))
	return err
}

const getPair = `SELECT ` + pairColumns + ` FROM breeding_pairs WHERE id = ?`

func (q *Queries) GetPair(ctx context.Context, id string) (core.BreedingPair, error) {
	return scanPair(q.db.QueryRowContext(ctx, getPair, id))
}

const listPairs = `SELECT ` + pairColumns + ` FROM breeding_pairs ORDER BY created_at DESC, id`

func (q *Queries) ListPairs(ctx context.Context) ([]core.BreedingPair, error) {
	rows, err := q.db.QueryContext(ctx, listPairs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.BreedingPair
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const updatePair = `UPDATE breeding_pairs SET pair_name = ?, male_bird_id = ?, female_bird_id = ?, pair_date = ?,
    status = ?, license_number = ?, license_expiry = ?, notes = ?
WHERE id = ?`

func (q *Queries) UpdatePair(ctx context.Context, p core.BreedingPair) (int64, error) {
	res, err := q.db.ExecContext(ctx, updatePair,
		p.PairName, p.MaleBirdID, p.FemaleBirdID, dateArg(p.PairDate),
		string(p.Status), p.LicenseNumber, dateArg(p.LicenseExpiry), p.Notes,
		p.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deletePair = `DELETE FROM breeding_pairs WHERE id = ?`

func (q *Queries) DeletePair(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deletePair, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
