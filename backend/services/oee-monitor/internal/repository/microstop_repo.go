package repository

import (
	"context"
	"database/sql"
	"fmt"

	"plantoee/backend/services/oee-monitor/internal/models"
)

// MicrostopRepository stores microstops in Postgres.
type MicrostopRepository struct {
	db *sql.DB
}

// NewMicrostopRepository returns repository.
func NewMicrostopRepository(db *sql.DB) *MicrostopRepository {
	return &MicrostopRepository{db: db}
}

// FetchMicrostops returns the microstops of an order ordered by start time.
func (r *MicrostopRepository) FetchMicrostops(ctx context.Context, orderID int64) ([]models.MicrostopRecord, error) {
	const query = `
		SELECT microstop_id, order_id, reason, start_date, end_date
		FROM microstops
		WHERE order_id = $1
		ORDER BY start_date, microstop_id
	`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: query microstops: %w", err)
	}
	defer rows.Close()

	var out []models.MicrostopRecord
	for rows.Next() {
		var (
			rec    models.MicrostopRecord
			reason sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.OrderID, &reason, &rec.StartTime, &rec.EndTime); err != nil {
			return nil, fmt.Errorf("repository: scan microstop: %w", err)
		}
		rec.Reason = reason.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: iterate microstops: %w", err)
	}
	return out, nil
}

// CreateMicrostop inserts rec and returns it with its new id.
func (r *MicrostopRepository) CreateMicrostop(ctx context.Context, rec models.MicrostopRecord) (models.MicrostopRecord, error) {
	const query = `
		INSERT INTO microstops (order_id, reason, start_date, end_date)
		VALUES ($1, $2, $3, $4)
		RETURNING microstop_id
	`
	if err := r.db.QueryRowContext(ctx, query, rec.OrderID, rec.Reason, rec.StartTime, rec.EndTime).Scan(&rec.ID); err != nil {
		return models.MicrostopRecord{}, fmt.Errorf("repository: insert microstop: %w", err)
	}
	return rec, nil
}

// UpdateMicrostop replaces the record with rec.ID. sql.ErrNoRows reports a missing id.
func (r *MicrostopRepository) UpdateMicrostop(ctx context.Context, rec models.MicrostopRecord) (models.MicrostopRecord, error) {
	const query = `
		UPDATE microstops
		SET order_id = $2,
		    reason = $3,
		    start_date = $4,
		    end_date = $5
		WHERE microstop_id = $1
	`
	result, err := r.db.ExecContext(ctx, query, rec.ID, rec.OrderID, rec.Reason, rec.StartTime, rec.EndTime)
	if err != nil {
		return models.MicrostopRecord{}, fmt.Errorf("repository: update microstop: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return models.MicrostopRecord{}, err
	}
	return rec, nil
}

// DeleteMicrostop removes the record with id. orderID is accepted for interface parity
// with the REST client.
func (r *MicrostopRepository) DeleteMicrostop(ctx context.Context, _ int64, id int64) error {
	const query = `DELETE FROM microstops WHERE microstop_id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("repository: delete microstop: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
