package storage

import (
	"context"
	"database/sql"

	"aviary/internal/core"
)

const clutchColumns = `id, breeding_pair_id, clutch_number, egg_laying_date, eggs_laid, fertile_eggs,
    hatched_count, expected_hatch_date, incubator_id, status, notes, created_at`

func scanClutch(row scanner) (core.Clutch, error) {
	var (
		c                          core.Clutch
		layDate, status, createdAt string
		expected                   sql.NullString
	)
	err := row.Scan(&c.ID, &c.BreedingPairID, &c.ClutchNumber, &layDate, &c.EggsLaid, &c.FertileEggs,
		&c.HatchedCount, &expected, &c.IncubatorID, &status, &c.Notes, &createdAt)
	if err != nil {
		return core.Clutch{}, err
	}
	c.EggLayingDate = dateCol(sql.NullString{String: layDate, Valid: true})
	c.ExpectedHatchDate = dateCol(expected)
	c.Status = core.ClutchStatus(status)
	c.CreatedAt = timeCol(createdAt)
	return c.WithSuccessRate(), nil
}

const createClutch = `INSERT INTO clutches (` + clutchColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateClutch(ctx context.Context, c core.Clutch) error {
	_, err := q.db.ExecContext(ctx, createClutch,
		c.ID, c.BreedingPairID, c.ClutchNumber, c.EggLayingDate.Format(core.DateLayout), c.EggsLaid, c.FertileEggs,
		c.HatchedCount, dateArg(c.ExpectedHatchDate), c.IncubatorID, string(c.Status), c.Notes, timeArg(c.CreatedAt))
	return err
}

const getClutch = `SELECT ` + clutchColumns + ` FROM clutches WHERE id = ?`

func (q *Queries) GetClutch(ctx context.Context, id string) (core.Clutch, error) {
	return scanClutch(q.db.QueryRowContext(ctx, getClutch, id))
}

const listClutches = `SELECT ` + clutchColumns + ` FROM clutches
WHERE (? = '' OR breeding_pair_id = ?)
ORDER BY egg_laying_date DESC, id`

func (q *Queries) ListClutches(ctx context.Context, pairID string) ([]core.Clutch, error) {
	rows, err := q.db.QueryContext(ctx, listClutches, pairID, pairID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Clutch
	for rows.Next() {
		c, err := scanClutch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const updateClutch = `UPDATE clutches SET breeding_pair_id = ?, clutch_number = ?, egg_laying_date = ?, eggs_laid = ?,
    fertile_eggs = ?, hatched_count = ?, expected_hatch_date = ?, incubator_id = ?, status = ?, notes = ?
WHERE id = ?`

func (q *Queries) UpdateClutch(ctx context.Context, c core.Clutch) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateClutch,
		c.BreedingPairID, c.ClutchNumber, c.EggLayingDate.Format(core.DateLayout), c.EggsLaid,
		c.FertileEggs, c.HatchedCount, dateArg(c.ExpectedHatchDate), c.IncubatorID, string(c.Status), c.Notes,
		c.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteClutch = `DELETE FROM clutches WHERE id = ?`

func (q *Queries) DeleteClutch(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteClutch, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
