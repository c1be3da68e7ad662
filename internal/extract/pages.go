package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/studentlink/portalsync/internal/models"
)

// Per-field cascades for the student info block. The id-based selectors match
// the current portal build; the class-based ones cover the older theme.
var (
	studentIDRules = []Rule{
		{Selector: "#lblStudentNo"},
		{Selector: "#lblIDNumber"},
		{Selector: ".student-no"},
	}
	studentNameRules = []Rule{
		{Selector: "#lblStudentName"},
		{Selector: "#lblName"},
		{Selector: ".student-name"},
	}
	courseRules = []Rule{
		{Selector: "#lblCourse"},
		{Selector: "#lblProgram"},
		{Selector: ".student-course"},
	}
	yearLevelRules = []Rule{
		{Selector: "#lblYearLevel"},
		{Selector: "#lblYear"},
		{Selector: ".student-year"},
	}
	semesterRules = []Rule{
		{Selector: "#lblSemester"},
		{Selector: "#lblPeriod"},
		{Selector: ".student-semester"},
	}
	emailRules = []Rule{
		{Selector: "#lblEmail"},
		{Selector: ".student-email"},
	}
	phoneRules = []Rule{
		{Selector: "#lblContactNo"},
		{Selector: "#lblPhone"},
		{Selector: ".student-contact"},
	}
)

// Totals cascades for the accounts page.
var (
	totalRules = []Rule{
		{Selector: "#lblTotalAssessment"},
		{Selector: "#lblTotal"},
		{Selector: ".total-assessment"},
	}
	balanceRules = []Rule{
		{Selector: "#lblBalance"},
		{Selector: "#lblOutstandingBalance"},
		{Selector: ".outstanding-balance"},
	}
	dueTodayRules = []Rule{
		{Selector: "#lblDueToday"},
		{Selector: "#lblAmountDue"},
		{Selector: ".amount-due"},
	}
)

// ParseStudentInfo extracts the profile block. Every field fails
// independently to empty; the caller decides whether an all-empty profile is
// worth keeping.
func ParseStudentInfo(doc *goquery.Document) *models.StudentProfile {
	return &models.StudentProfile{
		StudentID: firstMatch(doc, studentIDRules),
		Name:      firstMatch(doc, studentNameRules),
		Course:    firstMatch(doc, courseRules),
		YearLevel: firstMatch(doc, yearLevelRules),
		Semester:  firstMatch(doc, semesterRules),
		Email:     firstMatch(doc, emailRules),
		Phone:     firstMatch(doc, phoneRules),
	}
}

// ParseSchedule extracts the class schedule table. Returns a ParseError when
// no schedule table exists on the page. A table with zero data rows is a
// valid result and yields an empty, non-nil slice.
func ParseSchedule(doc *goquery.Document) ([]models.ScheduleItem, error) {
	table := findTable(doc, "#grdSchedule", "table.schedule", "table.grid-schedule")
	if table.Length() == 0 {
		return nil, &models.ParseError{Page: "schedule", Marker: "schedule table"}
	}

	items := []models.ScheduleItem{}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 6 {
			return
		}
		items = append(items, models.ScheduleItem{
			SubjectCode: cellText(cells, 0),
			Description: cellText(cells, 1),
			Section:     cellText(cells, 2),
			Units:       cellText(cells, 3),
			Schedule:    cellText(cells, 4),
			Room:        cellText(cells, 5),
		})
	})
	return items, nil
}

// ParseFinancials extracts the accounts page. Totals and each table fail
// independently: a missing installments table yields a ParseError alongside
// whatever else parsed, so the caller can keep the partial snapshot.
func ParseFinancials(doc *goquery.Document) (*models.FinancialSnapshot, error) {
	snap := &models.FinancialSnapshot{
		Total:    firstMatch(doc, totalRules),
		Balance:  firstMatch(doc, balanceRules),
		DueToday: firstMatch(doc, dueTodayRules),
	}

	var parseErr error
	installments := findTable(doc, "#grdInstallments", "table.installments")
	if installments.Length() == 0 {
		parseErr = &models.ParseError{Page: "accounts", Marker: "installments table"}
	} else {
		installments.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 4 {
				return
			}
			snap.Installments = append(snap.Installments, models.Installment{
				Description: cellText(cells, 0),
				DueDate:     NormalizeDate(cellText(cells, 1)),
				Assessed:    cellText(cells, 2),
				Outstanding: cellText(cells, 3),
			})
		})
	}

	payments := findTable(doc, "#grdPayments", "table.payments")
	payments.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		snap.Payments = append(snap.Payments, models.PaymentRecord{
			Date:        NormalizeDate(cellText(cells, 0)),
			Reference:   cellText(cells, 1),
			Description: cellText(cells, 2),
			Amount:      cellText(cells, 3),
		})
	})

	adjustments := findTable(doc, "#grdAdjustments", "table.adjustments")
	adjustments.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		snap.Adjustments = append(snap.Adjustments, models.AdjustmentRecord{
			Date:        NormalizeDate(cellText(cells, 0)),
			Description: cellText(cells, 1),
			Amount:      cellText(cells, 2),
		})
	})

	return snap, parseErr
}

// ParseReportCard extracts one grade report page under the given report name.
func ParseReportCard(doc *goquery.Document, name string) (models.GradeReport, error) {
	report := models.GradeReport{Name: name}

	table := findTable(doc, "#grdGrades", "table.grades", "table.report-card")
	if table.Length() == 0 {
		return report, &models.ParseError{Page: "report card", Marker: "grades table"}
	}

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		report.Grades = append(report.Grades, models.SubjectGrade{
			SubjectCode: cellText(cells, 0),
			Description: cellText(cells, 1),
			Grade:       cellText(cells, 2),
			Remarks:     cellText(cells, 3),
		})
	})
	return report, nil
}

// ParseReportLinks discovers grade-report anchors on the dashboard. Each link
// drives one subsequent report card fetch.
func ParseReportLinks(doc *goquery.Document) []models.ReportLink {
	var links []models.ReportLink
	doc.Find(`a[href*="_dm="]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if !strings.EqualFold(u.Query().Get("_dm"), "REPORTCARD") {
			return
		}
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		links = append(links, models.ReportLink{Text: text, Href: href})
	})
	return links
}

// ParseProspectus extracts the curriculum listing. Term header rows (a single
// spanning cell) label the subject rows that follow them.
func ParseProspectus(doc *goquery.Document) ([]models.ProspectusSubject, error) {
	table := findTable(doc, "#grdProspectus", "table.prospectus", "table.curriculum")
	if table.Length() == 0 {
		return nil, &models.ParseError{Page: "prospectus", Marker: "prospectus table"}
	}

	var subjects []models.ProspectusSubject
	var term string
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 1 {
			if label := cellText(cells, 0); label != "" {
				term = label
			}
			return
		}
		if cells.Length() < 4 {
			return
		}
		subjects = append(subjects, models.ProspectusSubject{
			SubjectCode: cellText(cells, 0),
			Description: cellText(cells, 1),
			Units:       cellText(cells, 2),
			Grade:       cellText(cells, 3),
			Term:        term,
		})
	})
	return subjects, nil
}
