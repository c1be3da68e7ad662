// Package repository provides persistence implementations for portal sessions
// and scraped student records using a PostgreSQL database.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/studentlink/portalsync/internal/models"
)

// PostgresRecordsRepository implements persistence for scraped student
// records against a PostgreSQL database.
type PostgresRecordsRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresRecordsRepository creates a new PostgresRecordsRepository using
// the provided *sql.DB. db must be a valid connection to a PostgreSQL instance.
func NewPostgresRecordsRepository(db *sql.DB) *PostgresRecordsRepository {
	return &PostgresRecordsRepository{DB: db}
}

// ProfileExists checks whether a profile row exists for the given student.
// It returns true if the row exists, false otherwise.
func (r *PostgresRecordsRepository) ProfileExists(ctx context.Context, studentID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM student_profiles WHERE student_id = $1)`,
		studentID,
	).Scan(&exists)
	return exists, err
}

// ReplaceProfile overwrites the profile row for p.StudentID wholesale.
func (r *PostgresRecordsRepository) ReplaceProfile(ctx context.Context, p *models.StudentProfile) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO student_profiles (student_id, name, course, year_level, semester, email, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (student_id) DO UPDATE SET
			name = EXCLUDED.name,
			course = EXCLUDED.course,
			year_level = EXCLUDED.year_level,
			semester = EXCLUDED.semester,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone
	`, p.StudentID, p.Name, p.Course, p.YearLevel, p.Semester, p.Email, p.Phone)
	if err != nil {
		return fmt.Errorf("ReplaceProfile: %w", err)
	}
	return nil
}

// ReplaceSchedule replaces all schedule rows for the student within a
// transaction. The portal is authoritative, so no merging happens here.
func (r *PostgresRecordsRepository) ReplaceSchedule(ctx context.Context, studentID string, items []models.ScheduleItem) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_items WHERE student_id = $1`, studentID); err != nil {
		return fmt.Errorf("clear schedule: %w", err)
	}

	for i, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_items (student_id, position, subject_code, description, section, units, schedule, room)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, studentID, i, item.SubjectCode, item.Description, item.Section, item.Units, item.Schedule, item.Room)
		if err != nil {
			return fmt.Errorf("insert schedule item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetSchedule fetches the stored schedule rows for the student in order.
func (r *PostgresRecordsRepository) GetSchedule(ctx context.Context, studentID string) ([]models.ScheduleItem, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT subject_code, description, section, units, schedule, room
		  FROM schedule_items WHERE student_id = $1 ORDER BY position
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("GetSchedule: %w", err)
	}
	defer rows.Close()

	var items []models.ScheduleItem
	for rows.Next() {
		var it models.ScheduleItem
		if err := rows.Scan(&it.SubjectCode, &it.Description, &it.Section, &it.Units, &it.Schedule, &it.Room); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetFinancials fetches the stored financial snapshot for the student.
// Returns (nil, nil) when no snapshot has been persisted yet.
func (r *PostgresRecordsRepository) GetFinancials(ctx context.Context, studentID string) (*models.FinancialSnapshot, error) {
	var snap models.FinancialSnapshot
	var installments, payments, adjustments []byte
	err := r.DB.QueryRowContext(ctx, `
		SELECT total, balance, due_today, installments, payments, adjustments
		  FROM financial_snapshots WHERE student_id = $1
	`, studentID).Scan(&snap.Total, &snap.Balance, &snap.DueToday, &installments, &payments, &adjustments)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetFinancials: %w", err)
	}

	if err := json.Unmarshal(installments, &snap.Installments); err != nil {
		return nil, fmt.Errorf("decode installments: %w", err)
	}
	if err := json.Unmarshal(payments, &snap.Payments); err != nil {
		return nil, fmt.Errorf("decode payments: %w", err)
	}
	if err := json.Unmarshal(adjustments, &snap.Adjustments); err != nil {
		return nil, fmt.Errorf("decode adjustments: %w", err)
	}
	return &snap, nil
}

// SaveFinancials stores the merged snapshot wholesale for the student.
func (r *PostgresRecordsRepository) SaveFinancials(ctx context.Context, studentID string, snap *models.FinancialSnapshot) error {
	installments, err := json.Marshal(snap.Installments)
	if err != nil {
		return fmt.Errorf("encode installments: %w", err)
	}
	payments, err := json.Marshal(snap.Payments)
	if err != nil {
		return fmt.Errorf("encode payments: %w", err)
	}
	adjustments, err := json.Marshal(snap.Adjustments)
	if err != nil {
		return fmt.Errorf("encode adjustments: %w", err)
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO financial_snapshots (student_id, total, balance, due_today, installments, payments, adjustments)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (student_id) DO UPDATE SET
			total = EXCLUDED.total,
			balance = EXCLUDED.balance,
			due_today = EXCLUDED.due_today,
			installments = EXCLUDED.installments,
			payments = EXCLUDED.payments,
			adjustments = EXCLUDED.adjustments
	`, studentID, snap.Total, snap.Balance, snap.DueToday, installments, payments, adjustments)
	if err != nil {
		return fmt.Errorf("SaveFinancials: %w", err)
	}
	return nil
}

// SaveGradeReport upserts one grade report independently of its siblings,
// so a failure fetching one report never blocks persisting the others.
func (r *PostgresRecordsRepository) SaveGradeReport(ctx context.Context, studentID string, report models.GradeReport) error {
	grades, err := json.Marshal(report.Grades)
	if err != nil {
		return fmt.Errorf("encode grades: %w", err)
	}

	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO grade_reports (student_id, report_name, grades)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, report_name) DO UPDATE SET
			grades = EXCLUDED.grades
	`, studentID, report.Name, grades)
	if err != nil {
		return fmt.Errorf("SaveGradeReport: %w", err)
	}
	return nil
}

// GetGradeReports fetches all stored grade reports for the student.
func (r *PostgresRecordsRepository) GetGradeReports(ctx context.Context, studentID string) ([]models.GradeReport, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT report_name, grades FROM grade_reports WHERE student_id = $1 ORDER BY report_name
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("GetGradeReports: %w", err)
	}
	defer rows.Close()

	var reports []models.GradeReport
	for rows.Next() {
		var rep models.GradeReport
		var grades []byte
		if err := rows.Scan(&rep.Name, &grades); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if err := json.Unmarshal(grades, &rep.Grades); err != nil {
			return nil, fmt.Errorf("decode grades: %w", err)
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

// ReplaceProspectus replaces all prospectus rows for the student within a
// transaction.
func (r *PostgresRecordsRepository) ReplaceProspectus(ctx context.Context, studentID string, subjects []models.ProspectusSubject) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM prospectus_subjects WHERE student_id = $1`, studentID); err != nil {
		return fmt.Errorf("clear prospectus: %w", err)
	}

	for i, sub := range subjects {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO prospectus_subjects (student_id, position, subject_code, description, units, grade, term)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, studentID, i, sub.SubjectCode, sub.Description, sub.Units, sub.Grade, sub.Term)
		if err != nil {
			return fmt.Errorf("insert prospectus subject: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
