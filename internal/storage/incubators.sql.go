package storage

import (
	"context"
	"database/sql"

	"aviary/internal/core"
)

const incubatorColumns = `id, name, model, temperature_range, humidity_range, status, notes, created_at`

func scanIncubator(row scanner) (core.Incubator, error) {
	var (
		i                 core.Incubator
		status, createdAt string
	)
	err := row.Scan(&i.ID, &i.Name, &i.Model, &i.TemperatureRange, &i.HumidityRange, &status, &i.Notes, &createdAt)
	if err != nil {
		return core.Incubator{}, err
	}
	i.Status = core.DeviceStatus(status)
	i.CreatedAt = timeCol(createdAt)
	return i, nil
}

const createIncubator = `INSERT INTO incubators (` + incubatorColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateIncubator(ctx context.Context, i core.Incubator) error {
	_, err := q.db.ExecContext(ctx, createIncubator,
		i.ID, i.Name, i.Model, i.TemperatureRange, i.HumidityRange, string(i.Status), i.Notes, timeArg(i.CreatedAt))
	return err
}

const getIncubator = `SELECT ` + incubatorColumns + ` FROM incubators WHERE id = ?`

func (q *Queries) GetIncubator(ctx context.Context, id string) (core.Incubator, error) {
	return scanIncubator(q.db.QueryRowContext(ctx, getIncubator, id))
}

const listIncubators = `SELECT ` + incubatorColumns + ` FROM incubators ORDER BY name, id`

func (q *Queries) ListIncubators(ctx context.Context) ([]core.Incubator, error) {
	rows, err := q.db.QueryContext(ctx, listIncubators)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Incubator
	for rows.Next() {
		i, err := scanIncubator(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const updateIncubator = `UPDATE incubators SET name = ?, model = ?, temperature_range = ?, humidity_range = ?,
    status = ?, notes = ?
WHERE id = ?`

func (q *Queries) UpdateIncubator(ctx context.Context, i core.Incubator) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateIncubator,
		i.Name, i.Model, i.TemperatureRange, i.HumidityRange, string(i.Status), i.Notes, i.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteIncubator = `DELETE FROM incubators WHERE id = ?`

func (q *Queries) DeleteIncubator(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteIncubator, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const monitoringColumns = `id, incubator_id, entry_date, recorded_at, temperature, humidity, notes`

func scanMonitoringEntry(row scanner) (core.MonitoringEntry, error) {
	var (
		m                     core.MonitoringEntry
		entryDate, recordedAt string
		temp, hum             sql.NullFloat64
	)
	if err := row.Scan(&m.ID, &m.IncubatorID, &entryDate, &recordedAt, &temp, &hum, &m.Notes); err != nil {
		return core.MonitoringEntry{}, err
	}
	m.Date = dateCol(sql.NullString{String: entryDate, Valid: true})
	m.RecordedAt = timeCol(recordedAt)
	m.Temperature = floatCol(temp)
	m.Humidity = floatCol(hum)
	return m, nil
}

const createMonitoringEntry = `INSERT INTO monitoring_entries (` + monitoringColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateMonitoringEntry(ctx context.Context, m core.MonitoringEntry) error {
	_, err := q.db.ExecContext(ctx, createMonitoringEntry,
		m.ID, m.IncubatorID, m.Date.Format(core.DateLayout), timeArg(m.RecordedAt), floatArg(m.Temperature), floatArg(m.Humidity), m.Notes)
	return err
}

const listMonitoringEntries = `SELECT ` + monitoringColumns + ` FROM monitoring_entries
WHERE (? = '' OR incubator_id = ?)
ORDER BY recorded_at DESC, id DESC
LIMIT ?`

func (q *Queries) ListMonitoringEntries(ctx context.Context, incubatorID string, limit int) ([]core.MonitoringEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx, listMonitoringEntries, incubatorID, incubatorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.MonitoringEntry
	for rows.Next() {
		m, err := scanMonitoringEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const deleteMonitoringEntry = `DELETE FROM monitoring_entries WHERE id = ?`

func (q *Queries) DeleteMonitoringEntry(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteMonitoringEntry, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
