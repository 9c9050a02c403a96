package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/job-tracker/internal/types"
)

// -----------------------------------------------------------------------------
// Experience Methods
// -----------------------------------------------------------------------------

const experienceColumns = `id, title, organization, type, location, start_date, COALESCE(end_date, '')`

// CreateExperience inserts an experience with its ordered bullets.
// An existing experience with the same ID is replaced, bullets included.
func (db *DB) CreateExperience(ctx context.Context, e *types.Experience) (*types.Experience, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var endDate *string
	if e.EndDate != "" {
		endDate = &e.EndDate
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO experiences (id, title, organization, type, location, start_date, end_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   title = $2, organization = $3, type = $4, location = $5, start_date = $6, end_date = $7`,
		e.ID, e.Title, e.Organization, string(e.Type), e.Location, e.StartDate, endDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert experience: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM experience_bullets WHERE experience_id = $1`, e.ID); err != nil {
		return nil, fmt.Errorf("failed to clear experience bullets: %w", err)
	}

	batch := &pgx.Batch{}
	for i, text := range e.Bullets {
		batch.Queue(`INSERT INTO experience_bullets (experience_id, position, text) VALUES ($1, $2, $3)`,
			e.ID, i, text)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return nil, fmt.Errorf("failed to insert experience bullets: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit experience: %w", err)
	}
	return e, nil
}

// GetExperience retrieves an experience and its bullets by ID
func (db *DB) GetExperience(ctx context.Context, id uuid.UUID) (*types.Experience, error) {
	var e types.Experience
	var expType string
	err := db.pool.QueryRow(ctx,
		`SELECT `+experienceColumns+` FROM experiences WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Organization, &expType, &e.Location, &e.StartDate, &e.EndDate)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get experience: %w", err)
	}
	e.Type = types.ExperienceType(expType)

	rows, err := db.pool.Query(ctx,
		`SELECT text FROM experience_bullets WHERE experience_id = $1 ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get experience bullets: %w", err)
	}
	defer rows.Close()

	e.Bullets = []string{}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("failed to scan bullet: %w", err)
		}
		e.Bullets = append(e.Bullets, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bullets: %w", err)
	}

	return &e, nil
}

// ListExperiences returns every experience with its bullets, most recent start first
func (db *DB) ListExperiences(ctx context.Context) ([]types.Experience, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+experienceColumns+` FROM experiences ORDER BY start_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiences: %w", err)
	}

	experiences := []types.Experience{}
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var e types.Experience
		var expType string
		if err := rows.Scan(&e.ID, &e.Title, &e.Organization, &expType, &e.Location, &e.StartDate, &e.EndDate); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan experience: %w", err)
		}
		e.Type = types.ExperienceType(expType)
		e.Bullets = []string{}
		index[e.ID] = len(experiences)
		experiences = append(experiences, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate experiences: %w", err)
	}

	bulletRows, err := db.pool.Query(ctx,
		`SELECT experience_id, text FROM experience_bullets ORDER BY experience_id, position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experience bullets: %w", err)
	}
	defer bulletRows.Close()

	for bulletRows.Next() {
		var expID uuid.UUID
		var text string
		if err := bulletRows.Scan(&expID, &text); err != nil {
			return nil, fmt.Errorf("failed to scan bullet: %w", err)
		}
		if i, ok := index[expID]; ok {
			experiences[i].Bullets = append(experiences[i].Bullets, text)
		}
	}
	if err := bulletRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bullets: %w", err)
	}

	return experiences, nil
}

// DeleteExperience removes an experience and its bullets
func (db *DB) DeleteExperience(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM experiences WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete experience: %w", err)
	}
	return nil
}
