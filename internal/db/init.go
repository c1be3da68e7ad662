package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    user_id TEXT PRIMARY KEY,
    jar BYTEA NOT NULL,
    consecutive_failures INT NOT NULL DEFAULT 0,
    locked_until TIMESTAMPTZ,
    last_success_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS student_profiles (
    student_id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    course TEXT NOT NULL DEFAULT '',
    year_level TEXT NOT NULL DEFAULT '',
    semester TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    phone TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS schedule_items (
    student_id TEXT NOT NULL,
    position INT NOT NULL,
    subject_code TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    section TEXT NOT NULL DEFAULT '',
    units TEXT NOT NULL DEFAULT '',
    schedule TEXT NOT NULL DEFAULT '',
    room TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (student_id, position)
);

CREATE TABLE IF NOT EXISTS financial_snapshots (
    student_id TEXT PRIMARY KEY,
    total TEXT NOT NULL DEFAULT '',
    balance TEXT NOT NULL DEFAULT '',
    due_today TEXT NOT NULL DEFAULT '',
    installments JSONB NOT NULL DEFAULT '[]',
    payments JSONB NOT NULL DEFAULT '[]',
    adjustments JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS grade_reports (
    student_id TEXT NOT NULL,
    report_name TEXT NOT NULL,
    grades JSONB NOT NULL DEFAULT '[]',
    PRIMARY KEY (student_id, report_name)
);

CREATE TABLE IF NOT EXISTS prospectus_subjects (
    student_id TEXT NOT NULL,
    position INT NOT NULL,
    subject_code TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    units TEXT NOT NULL DEFAULT '',
    grade TEXT NOT NULL DEFAULT '',
    term TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (student_id, position)
);
`

func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}
