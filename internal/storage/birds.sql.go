package storage

import (
	"context"
	"database/sql"
	"strings"

	"aviary/internal/core"
)

const birdColumns = `id, name, species, gender, birth_date, ring_number, color_mutation, status,
    father_id, mother_id, license_number, license_expiry, purchase_cents, purchase_currency,
    purchase_date, notes, created_at`

func scanBird(row scanner) (core.Bird, error) {
	var (
		b                           core.Bird
		gender, status, createdAt   string
		birth, expiry, purchaseDate sql.NullString
		father, mother              sql.NullString
		purchaseCents               int64
	)
	err := row.Scan(&b.ID, &b.Name, &b.Species, &gender, &birth, &b.RingNumber, &b.ColorMutation, &status,
		&father, &mother, &b.LicenseNumber, &expiry, &purchaseCents, &b.PurchaseCurrency,
		&purchaseDate, &b.Notes, &createdAt)
	if err != nil {
		return core.Bird{}, err
	}
	b.Gender = core.Gender(gender)
	b.Status = core.BirdStatus(status)
	b.BirthDate = dateCol(birth)
	b.FatherID = father.String
	b.MotherID = mother.String
	b.LicenseExpiry = dateCol(expiry)
	b.PurchasePrice = core.Money{Cents: purchaseCents}
	b.PurchaseDate = dateCol(purchaseDate)
	b.CreatedAt = timeCol(createdAt)
	return b, nil
}

func scanBirds(rows *sql.Rows) ([]core.Bird, error) {
	defer rows.Close()
	var items []core.Bird
	for rows.Next() {
		b, err := scanBird(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

const createBird = `INSERT INTO birds (` + birdColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateBird(ctx context.Context, b core.Bird) error {
	_, err := q.db.ExecContext(ctx, createBird,
		b.ID, b.Name, b.Species, string(b.Gender), dateArg(b.BirthDate), b.RingNumber, b.ColorMutation, string(b.Status),
		idArg(b.FatherID), idArg(b.MotherID), b.LicenseNumber, dateArg(b.LicenseExpiry), b.PurchasePrice.Cents, b.PurchaseCurrency,
		dateArg(b.PurchaseDate), b.Notes, timeArg(b.CreatedAt))
	return err
}

const getBird = `SELECT ` + birdColumns + ` FROM birds WHERE id = ?`

func (q *Queries) GetBird(ctx context.Context, id string) (core.Bird, error) {
	return scanBird(q.db.QueryRowContext(ctx, getBird, id))
}

func (q *Queries) ListBirds(ctx context.Context, f BirdFilter) ([]core.Bird, error) {
	var (
		where []string
		args  []any
	)
	if f.Species != "" {
		where = append(where, "LOWER(species) = LOWER(?)")
		args = append(args, f.Species)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Gender != "" {
		where = append(where, "gender = ?")
		args = append(args, string(f.Gender))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := likePattern(q)
		where = append(where, `(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(ring_number) LIKE ? ESCAPE '\' OR LOWER(species) LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}
	query := `SELECT ` + birdColumns + ` FROM birds`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanBirds(rows)
}

const listOffspring = `SELECT ` + birdColumns + ` FROM birds WHERE father_id = ? OR mother_id = ? ORDER BY birth_date, id`

func (q *Queries) ListOffspring(ctx context.Context, parentID string) ([]core.Bird, error) {
	rows, err := q.db.QueryContext(ctx, listOffspring, parentID, parentID)
	if err != nil {
		return nil, err
	}
	return scanBirds(rows)
}

const updateBird = `UPDATE birds SET name = ?, species = ?, gender = ?, birth_date = ?, ring_number = ?,
    color_mutation = ?, status = ?, father_id = ?, mother_id = ?, license_number = ?, license_expiry = ?,
    purchase_cents = ?, purchase_currency = ?, purchase_date = ?, notes = ?
WHERE id = ?`

func (q *Queries) UpdateBird(ctx context.Context, b core.Bird) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateBird,
		b.Name, b.Species, string(b.Gender), dateArg(b.BirthDate), b.RingNumber,
		b.ColorMutation, string(b.Status), idArg(b.FatherID), idArg(b.MotherID), b.LicenseNumber, dateArg(b.LicenseExpiry),
		b.PurchasePrice.Cents, b.PurchaseCurrency, dateArg(b.PurchaseDate), b.Notes,
		b.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteBird = `DELETE FROM birds WHERE id = ?`

func (q *Queries) DeleteBird(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteBird, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
