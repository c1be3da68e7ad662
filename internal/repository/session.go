// Package repository provides persistence implementations for portal sessions
// and scraped student records using a PostgreSQL database.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/studentlink/portalsync/internal/models"
)

// PostgresSessionRepository implements session persistence against a
// PostgreSQL database.
type PostgresSessionRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresSessionRepository creates a new PostgresSessionRepository with
// the given database connection. db must be a valid *sql.DB connected to a
// PostgreSQL instance.
func NewPostgresSessionRepository(db *sql.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{DB: db}
}

// GetSession fetches the session row for the given user.
// Returns (nil, nil) when no session exists yet.
func (r *PostgresSessionRepository) GetSession(ctx context.Context, userID string) (*models.Session, error) {
	var s models.Session
	err := r.DB.QueryRowContext(ctx, `
		SELECT user_id, jar, consecutive_failures, locked_until, last_success_at
		  FROM sessions WHERE user_id = $1
	`, userID).Scan(&s.UserID, &s.Jar, &s.ConsecutiveFailures, &s.LockedUntil, &s.LastSuccessAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetSession: %w", err)
	}
	return &s, nil
}

// SaveSession inserts or updates the session row for s.UserID.
func (r *PostgresSessionRepository) SaveSession(ctx context.Context, s *models.Session) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO sessions (user_id, jar, consecutive_failures, locked_until, last_success_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			jar = EXCLUDED.jar,
			consecutive_failures = EXCLUDED.consecutive_failures,
			locked_until = EXCLUDED.locked_until,
			last_success_at = EXCLUDED.last_success_at
	`, s.UserID, s.Jar, s.ConsecutiveFailures, s.LockedUntil, s.LastSuccessAt)
	if err != nil {
		return fmt.Errorf("SaveSession: %w", err)
	}
	return nil
}

// DeleteSession removes the session row for the given user.
func (r *PostgresSessionRepository) DeleteSession(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}
