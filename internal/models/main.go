// Package models defines the core data structures for portal sessions and
// the scraped student records.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Session holds the durable per-user portal session state.
type Session struct {
	// UserID is the portal student number the session belongs to.
	UserID string
	// Jar is the serialized cookie jar captured after the last handshake.
	Jar []byte
	// ConsecutiveFailures counts failed login handshakes since the last success.
	ConsecutiveFailures int
	// LockedUntil is set once ConsecutiveFailures reaches the cooldown
	// threshold; nil when the session is not in cooldown.
	LockedUntil *time.Time
	// LastSuccessAt records the last successful handshake; nil if never.
	LastSuccessAt *time.Time
}

// StudentProfile is the identity block scraped from the dashboard and EAF
// pages. It is overwritten wholesale on every sync.
type StudentProfile struct {
	// StudentID is the portal student number.
	StudentID string `json:"studentId"`
	// Name is the student's full display name.
	Name string `json:"name"`
	// Course is the degree program, e.g. "BS Computer Science".
	Course string `json:"course"`
	// YearLevel is the scraped year-level label.
	YearLevel string `json:"yearLevel"`
	// Semester is the enrollment period label for the current term.
	Semester string `json:"semester"`
	// Email is the contact email if the portal exposes one.
	Email string `json:"email"`
	// Phone is the contact number if the portal exposes one.
	Phone string `json:"phone"`
}

// ScheduleItem is one row of the class schedule table. The schedule is
// replaced wholesale per sync; the portal is authoritative.
type ScheduleItem struct {
	// SubjectCode is the short subject identifier, e.g. "CS101".
	SubjectCode string `json:"subjectCode"`
	// Description is the subject title.
	Description string `json:"description"`
	// Section is the class section label.
	Section string `json:"section"`
	// Units is the credit units as displayed.
	Units string `json:"units"`
	// Schedule is the raw day/time string exactly as the portal renders it.
	Schedule string `json:"schedule"`
	// Room is the room assignment.
	Room string `json:"room"`
}

// Installment is one assessed installment row, keyed by (Description, DueDate).
type Installment struct {
	// Description labels the installment, e.g. "Prelim".
	Description string `json:"description"`
	// DueDate is normalized to YYYY/MM/DD for key comparison.
	DueDate string `json:"dueDate"`
	// Assessed is the assessed amount, display-formatted.
	Assessed string `json:"assessed"`
	// Outstanding is the remaining balance, display-formatted.
	Outstanding string `json:"outstanding"`
}

// PaymentRecord is one payment history row. History is additive: rows already
// persisted are retained even when the portal's rolling window drops them.
type PaymentRecord struct {
	// Date is normalized to YYYY/MM/DD.
	Date string `json:"date"`
	// Reference is the official receipt or transaction number.
	Reference string `json:"reference"`
	// Description labels the payment.
	Description string `json:"description"`
	// Amount is the paid amount, display-formatted.
	Amount string `json:"amount"`
}

// AdjustmentRecord is one assessment adjustment row; additive like payments.
type AdjustmentRecord struct {
	// Date is normalized to YYYY/MM/DD.
	Date string `json:"date"`
	// Description labels the adjustment.
	Description string `json:"description"`
	// Amount is the adjustment amount, display-formatted (may be negative).
	Amount string `json:"amount"`
}

// FinancialSnapshot is the merged financial state for one student.
type FinancialSnapshot struct {
	// Total is the total assessment for the period, display-formatted.
	Total string `json:"total"`
	// Balance is the overall outstanding balance, display-formatted.
	Balance string `json:"balance"`
	// DueToday is the amount currently due, display-formatted.
	DueToday string `json:"dueToday"`
	// Installments are the assessed installment rows, in portal order.
	Installments []Installment `json:"installments"`
	// Payments is the accumulated payment history.
	Payments []PaymentRecord `json:"payments"`
	// Adjustments is the accumulated adjustment history.
	Adjustments []AdjustmentRecord `json:"adjustments"`
}

// SubjectGrade is one graded subject row inside a report.
type SubjectGrade struct {
	// SubjectCode is the short subject identifier.
	SubjectCode string `json:"subjectCode"`
	// Description is the subject title.
	Description string `json:"description"`
	// Grade is the grade exactly as displayed (may be "INC", "5.00", blank).
	Grade string `json:"grade"`
	// Remarks is the remarks column, e.g. "PASSED".
	Remarks string `json:"remarks"`
}

// GradeReport groups subject grades under the report that produced them.
// Each report is persisted independently of its siblings.
type GradeReport struct {
	// Name is the report's display text on the dashboard, e.g.
	// "Report of Grades 1st Semester 2025-2026".
	Name string `json:"name"`
	// Grades are the subject rows in portal order.
	Grades []SubjectGrade `json:"grades"`
}

// ReportLink is a grade-report anchor discovered on the dashboard.
type ReportLink struct {
	// Text is the anchor's display text, used as the report name.
	Text string `json:"text"`
	// Href is the relative URL the anchor points at.
	Href string `json:"href"`
}

// ProspectusSubject is one curriculum row from the prospectus page.
type ProspectusSubject struct {
	// SubjectCode is the short subject identifier.
	SubjectCode string `json:"subjectCode"`
	// Description is the subject title.
	Description string `json:"description"`
	// Units is the credit units as displayed.
	Units string `json:"units"`
	// Grade is the earned grade when taken, blank otherwise.
	Grade string `json:"grade"`
	// Term is the curriculum term label, e.g. "1st Year, 1st Semester".
	Term string `json:"term"`
}

// SyncResult is the consolidated view returned by a full sync.
type SyncResult struct {
	// IsNewUser is true when no profile row existed before this sync.
	IsNewUser bool `json:"isNewUser"`
	// Profile is the freshly scraped student profile.
	Profile *StudentProfile `json:"profile,omitempty"`
	// Schedule is the freshly scraped class schedule.
	Schedule []ScheduleItem `json:"schedule,omitempty"`
	// Financials is the merged financial snapshot.
	Financials *FinancialSnapshot `json:"financials,omitempty"`
	// Reports are the grade reports fetched this pass; a report that timed
	// out or failed is simply absent.
	Reports []GradeReport `json:"reports,omitempty"`
	// Prospectus is the curriculum listing when the fetch succeeded.
	Prospectus []ProspectusSubject `json:"prospectus,omitempty"`
	// PeriodCode is the enrollment period code the sync ran against.
	PeriodCode string `json:"periodCode"`
}

// LoginOutcome classifies the result of a login handshake. It is derived from
// the response document alone, since the portal answers 200 either way.
type LoginOutcome int

// The zero value is LoginRejected so an unpopulated result never reads as a
// successful handshake.
const (
	// LoginRejected means the login form is still present.
	LoginRejected LoginOutcome = iota
	// LoginSucceeded means the login button is gone from the returned page.
	LoginSucceeded
)

var (
	// ErrAuthentication indicates the portal rejected the credentials.
	ErrAuthentication = errors.New("portal rejected credentials")
	// ErrLockedOut indicates the session is in cooldown after repeated failures.
	ErrLockedOut = errors.New("session locked out, cooldown active")
	// ErrBusy indicates another handshake holds the session lock.
	ErrBusy = errors.New("session busy, handshake in progress")
)

// ParseError reports an expected structural marker missing from a portal page.
// It is scoped to a single page and never aborts sibling extractions.
type ParseError struct {
	// Page names the page being parsed, e.g. "accounts".
	Page string
	// Marker is the structural element that was not found.
	Marker string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: missing %s", e.Page, e.Marker)
}
