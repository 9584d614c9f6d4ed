package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/arena-tournaments/models"
)

var ErrRecordNotFound = errors.New("tournament record not found")

type RecordRepository interface {
	Create(ctx context.Context, exec SQLExecutor, record *models.TournamentRecord) error
	GetByID(ctx context.Context, id int) (*models.TournamentRecord, error)
	ListByRoom(ctx context.Context, roomID string, limit, offset int) ([]*models.TournamentRecord, error)
	CountByRoom(ctx context.Context, roomID string) (int, error)
	Delete(ctx context.Context, id int) error
}

type postgresRecordRepository struct {
	db *sql.DB
}

func NewPostgresRecordRepository(db *sql.DB) RecordRepository {
	return &postgresRecordRepository{db: db}
}

func (r *postgresRecordRepository) Create(ctx context.Context, exec SQLExecutor, record *models.TournamentRecord) error {
	query := `
		INSERT INTO tournament_records
			(room_id, format, generator, player_count, results, forced, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	if exec == nil {
		exec = r.db
	}
	err := exec.QueryRowContext(ctx, query,
		record.RoomID,
		record.Format,
		record.Generator,
		record.PlayerCount,
		record.Results,
		record.Forced,
		record.EndedAt,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to insert tournament record for room %s: %w", record.RoomID, err)
	}
	return nil
}

func (r *postgresRecordRepository) GetByID(ctx context.Context, id int) (*models.TournamentRecord, error) {
	query := `
		SELECT id, room_id, format, generator, player_count, results, forced, ended_at
		FROM tournament_records
		WHERE id = $1`

	record := &models.TournamentRecord{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.RoomID,
		&record.Format,
		&record.Generator,
		&record.PlayerCount,
		&record.Results,
		&record.Forced,
		&record.EndedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament record by id %d: %w", id, err)
	}
	return record, nil
}

func (r *postgresRecordRepository) ListByRoom(ctx context.Context, roomID string, limit, offset int) ([]*models.TournamentRecord, error) {
	query := `
		SELECT id, room_id, format, generator, player_count, results, forced, ended_at
		FROM tournament_records
		WHERE room_id = $1
		ORDER BY ended_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, roomID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournament records for room %s: %w", roomID, err)
	}
	defer rows.Close()

	var records []*models.TournamentRecord
	for rows.Next() {
		record := &models.TournamentRecord{}
		if err := rows.Scan(
			&record.ID,
			&record.RoomID,
			&record.Format,
			&record.Generator,
			&record.PlayerCount,
			&record.Results,
			&record.Forced,
			&record.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tournament record row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tournament record rows: %w", err)
	}
	return records, nil
}

func (r *postgresRecordRepository) CountByRoom(ctx context.Context, roomID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tournament_records WHERE room_id = $1`, roomID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tournament records for room %s: %w", roomID, err)
	}
	return count, nil
}

func (r *postgresRecordRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tournament_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tournament record %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrRecordNotFound)
}
