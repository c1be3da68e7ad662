package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/studentlink/portalsync/internal/models"
)

func setupRecordsMock(t *testing.T) (*PostgresRecordsRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewPostgresRecordsRepository(db)
	cleanup := func() { db.Close() }
	return repo, mock, cleanup
}

func TestProfileExists_True(t *testing.T) {
	repo, mock, cleanup := setupRecordsMock(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM student_profiles`).
		WithArgs("S100").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ProfileExists(context.Background(), "S100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected profile to exist")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestProfileExists_False(t *testing.T) {
	repo, mock, cleanup := setupRecordsMock(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM student_profiles`).
		WithArgs("S404").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.ProfileExists(context.Background(), "S404")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("expected profile to not exist")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestReplaceProfile(t *testing.T) {
	repo, mock, cleanup := setupRecordsMock(t)
	defer cleanup()

	p := &models.StudentProfile{
		StudentID: "S100",
		Name:      "DELA CRUZ, JUAN",
		Course:    "BS Computer Science",
		YearLevel: "3rd Year",
		Semester:  "1st Semester 2026-2027",
	}

	mock.ExpectExec(`INSERT INTO student_profiles`).
		WithArgs("S100", p.Name, p.Course, p.YearLevel, p.Semester, "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.ReplaceProfile(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestReplaceSchedule_Transactional(t *testing.T) {
	repo, mock, cleanup := setupRecordsMock(t)
	defer cleanup()

	items := []models.ScheduleItem{
		{SubjectCode: "CS101", Description: "Data Structures", Section: "A", Units: "3", Schedule: "MWF 9:00AM-10:00AM", Room: "R301"},
		{SubjectCode: "MATH21", Description: "Calculus I", Section: "B", Units: "4", Schedule: "TTh 1:00PM-2:30PM", Room: "R210"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM schedule_items`).
		WithArgs("S100").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO schedule_items`).
		WithArgs("S100", 0, "CS101", "Data Structures", "A", "3", "MWF 9:00AM-10:00AM", "R301").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO schedule_items`).
		WithArgs("S100", 1, "MATH21", "Calculus I", "B", "4", "TTh 1:00PM-2:30PM", "R210").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.ReplaceSchedule(context.Background(), "S100", items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestReplaceSchedule_RollbackOnInsertError(t *testing.T) {
	repo, mock, cleanup := setupRecordsMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM schedule_items`).
		WithArgs("S100").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schedule_items`).
		WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	err := repo.ReplaceSchedule(context.Background(), "S100", []models.ScheduleItem{{SubjectCode: "CS101"}})
	if err == nil {
		t.Error("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetFinancials_DecodesHistory(t *testing.T) {
	repo, mock, cleanup := setupRecordsMock(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT total, balance, due_today, installments, payments, adjustments`).
		WithArgs("S100").
		WillReturnRows(sqlmock.NewRows(
			[]string{"total", "balance", "due_today", "installments", "payments", "adjustments"},
		).AddRow(
			"45,000.00", "15,000.00", "5,000.00",
			[]byte(`[{"description":"Prelim","dueDate":"2026/07/15","assessed":"10,000.00","outstanding":"5,000.00"}]`),
			[]byte(`[{"date":"2026/06/15","reference":"OR-1001","description":"Downpayment","amount":"15,000.00"}]`),
			[]byte(`[]`),
		))

	snap, err := repo.GetFinancials(context.Background(), "S100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap == nil {
		t.Fatal("expected a snapshot")
	}
	if len(snap.Installments) != 1 || snap.Installments[0].Description != "Prelim" {
		t.Errorf("installments not decoded: %+v", snap.Installments)
	}
	if len(snap.Payments) != 1 || snap.Payments[0].Reference != "OR-1001" {
		t.Errorf("payments not decoded: %+v", snap.Payments)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetFinancials_Absent(t *testing.T) {
	repo, mock, cleanup := setupRecordsMock(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT total, balance, due_today, installments, payments, adjustments`).
		WithArgs("S404").
		WillReturnRows(sqlmock.NewRows(
			[]string{"total", "balance", "due_today", "installments", "payments", "adjustments"},
		))

	snap, err := repo.GetFinancials(context.Background(), "S404")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap != nil {
		t.Error("expected nil snapshot before the first sync")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSaveGradeReport_Upsert(t *testing.T) {
	repo, mock, cleanup := setupRecordsMock(t)
	defer cleanup()

	report := models.GradeReport{
		Name: "Report of Grades 1st Semester",
		Grades: []models.SubjectGrade{
			{SubjectCode: "CS101", Description: "Data Structures", Grade: "1.75", Remarks: "PASSED"},
		},
	}

	mock.ExpectExec(`INSERT INTO grade_reports`).
		WithArgs("S100", report.Name, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SaveGradeReport(context.Background(), "S100", report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
