// Package service provides the synchronization business logic, delegating
// session state, portal access, and persistence to narrow interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/studentlink/portalsync/internal/extract"
	"github.com/studentlink/portalsync/internal/models"
	"github.com/studentlink/portalsync/internal/portal"
	"github.com/studentlink/portalsync/internal/session"
)

// SessionStore defines the session operations required by the orchestrator.
type SessionStore interface {
	// Acquire returns the cached session state without contacting the portal.
	Acquire(ctx context.Context, userID string) (*session.AcquireResult, error)
	// TryLock serializes the login handshake; returns models.ErrBusy when held.
	TryLock(ctx context.Context, userID string) (*session.LockHandle, error)
	// Persist records a handshake outcome and the resulting jar.
	Persist(ctx context.Context, userID string, jar []byte, success bool) error
}

// PortalClient is the portal protocol surface the orchestrator drives.
type PortalClient interface {
	ForceLogin(ctx context.Context, password string) (*portal.LoginResult, error)
	FetchDashboard(ctx context.Context) (*portal.Dashboard, error)
	FetchAccounts(ctx context.Context, dash *portal.Dashboard) (*portal.Page, error)
	FetchEAF(ctx context.Context, dash *portal.Dashboard) (*portal.Page, error)
	FetchProspectus(ctx context.Context, dash *portal.Dashboard) (*portal.Page, error)
	FetchReportCard(ctx context.Context, dash *portal.Dashboard, link models.ReportLink) (*portal.Page, error)
	ChangePassword(ctx context.Context, current, newPassword string) (bool, error)
	JarSnapshot() ([]byte, error)
}

// ClientFactory builds a PortalClient bound to one user's cookie jar.
type ClientFactory func(userID string, jar []byte) (PortalClient, error)

// RecordsRepository defines the persistence operations needed by the
// orchestrator.
type RecordsRepository interface {
	ProfileExists(ctx context.Context, studentID string) (bool, error)
	ReplaceProfile(ctx context.Context, p *models.StudentProfile) error
	ReplaceSchedule(ctx context.Context, studentID string, items []models.ScheduleItem) error
	GetFinancials(ctx context.Context, studentID string) (*models.FinancialSnapshot, error)
	SaveFinancials(ctx context.Context, studentID string, snap *models.FinancialSnapshot) error
	SaveGradeReport(ctx context.Context, studentID string, report models.GradeReport) error
	ReplaceProspectus(ctx context.Context, studentID string, subjects []models.ProspectusSubject) error
}

// Orchestrator drives full synchronization passes.
type Orchestrator struct {
	sessions  SessionStore
	records   RecordsRepository
	newClient ClientFactory
	timeout   time.Duration
	log       *zap.Logger
}

// NewOrchestrator constructs an Orchestrator. timeout is the wall-clock
// budget for one full sync.
func NewOrchestrator(sessions SessionStore, records RecordsRepository, newClient ClientFactory, timeout time.Duration, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		records:   records,
		newClient: newClient,
		timeout:   timeout,
		log:       log,
	}
}

// ensureActive returns a portal client with a working session, running the
// login handshake under the session lock when the cached jar is absent or
// expired. The dashboard fetch doubles as the liveness probe.
func (o *Orchestrator) ensureActive(ctx context.Context, userID, password string) (PortalClient, *portal.Dashboard, error) {
	acq, err := o.sessions.Acquire(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if acq.IsLocked {
		return nil, nil, models.ErrLockedOut
	}

	client, err := o.newClient(userID, acq.Jar)
	if err != nil {
		return nil, nil, err
	}

	if !acq.IsNew {
		dash, err := client.FetchDashboard(ctx)
		if err == nil {
			return client, dash, nil
		}
		if !errors.Is(err, models.ErrAuthentication) {
			return nil, nil, err
		}
		// Ghost session expired: the login form reappeared.
	}

	handle, err := o.sessions.TryLock(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err := handle.Release(context.WithoutCancel(ctx)); err != nil {
			o.log.Warn("failed to release handshake lock", zap.String("user", userID), zap.Error(err))
		}
	}()

	login, err := client.ForceLogin(ctx, password)
	if err != nil {
		// Network and parse failures propagate un-retried; they say nothing
		// about the credentials, so the failure counter is left alone.
		return nil, nil, err
	}

	if login.Outcome == models.LoginRejected {
		if perr := o.sessions.Persist(ctx, userID, nil, false); perr != nil {
			o.log.Error("failed to persist login failure", zap.String("user", userID), zap.Error(perr))
		}
		if login.Message != "" {
			return nil, nil, fmt.Errorf("%w: %s", models.ErrAuthentication, login.Message)
		}
		return nil, nil, models.ErrAuthentication
	}

	jar, err := client.JarSnapshot()
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot jar: %w", err)
	}
	if err := o.sessions.Persist(ctx, userID, jar, true); err != nil {
		return nil, nil, err
	}

	dash, err := client.FetchDashboard(ctx)
	if err != nil {
		return nil, nil, err
	}
	return client, dash, nil
}

// PerformFullSync authenticates if needed, fetches all tracked resources
// concurrently, merges with persisted state, and writes through. Resources
// that finish before the sync deadline are persisted even when a sibling
// fetch times out.
func (o *Orchestrator) PerformFullSync(ctx context.Context, userID, password string) (*models.SyncResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	// DB writes survive the sync deadline: a resource fetched in time is
	// persisted even if the budget expires while a sibling is in flight.
	persistCtx := context.WithoutCancel(ctx)

	client, dash, err := o.ensureActive(ctx, userID, password)
	if err != nil {
		return nil, err
	}

	existed, err := o.records.ProfileExists(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &models.SyncResult{
		IsNewUser:  !existed,
		PeriodCode: dash.PeriodCode,
	}
	var mu sync.Mutex
	var wg sync.WaitGroup

	// EAF: profile plus schedule.
	wg.Add(1)
	go func() {
		defer wg.Done()
		page, err := client.FetchEAF(ctx, dash)
		if err != nil {
			o.log.Warn("eaf fetch failed", zap.String("user", userID), zap.Error(err))
			return
		}

		profile := extract.ParseStudentInfo(page.Doc)
		fillProfile(profile, extract.ParseStudentInfo(dash.Doc))
		if profile.StudentID == "" {
			profile.StudentID = userID
		}
		if err := o.records.ReplaceProfile(persistCtx, profile); err != nil {
			o.log.Error("persist profile failed", zap.String("user", userID), zap.Error(err))
		}

		// An empty schedule is still authoritative: zero rows on the portal
		// replace whatever was persisted. Only a parse failure skips the write.
		schedule, err := extract.ParseSchedule(page.Doc)
		if err != nil {
			o.log.Warn("schedule parse degraded", zap.String("user", userID), zap.Error(err))
		} else if err := o.records.ReplaceSchedule(persistCtx, userID, schedule); err != nil {
			o.log.Error("persist schedule failed", zap.String("user", userID), zap.Error(err))
		}

		mu.Lock()
		result.Profile = profile
		result.Schedule = schedule
		mu.Unlock()
	}()

	// Accounts: scrape, merge with persisted history, write through.
	wg.Add(1)
	go func() {
		defer wg.Done()
		page, err := client.FetchAccounts(ctx, dash)
		if err != nil {
			o.log.Warn("accounts fetch failed", zap.String("user", userID), zap.Error(err))
			return
		}

		scraped, perr := extract.ParseFinancials(page.Doc)
		if perr != nil {
			o.log.Warn("financials parse degraded", zap.String("user", userID), zap.Error(perr))
		}

		prev, err := o.records.GetFinancials(ctx, userID)
		if err != nil {
			o.log.Error("load financials failed", zap.String("user", userID), zap.Error(err))
			return
		}

		merged := MergeFinancials(prev, scraped)
		if merged == nil {
			return
		}
		if err := o.records.SaveFinancials(persistCtx, userID, merged); err != nil {
			o.log.Error("persist financials failed", zap.String("user", userID), zap.Error(err))
			return
		}

		mu.Lock()
		result.Financials = merged
		mu.Unlock()
	}()

	// Grade reports: one goroutine per discovered link, each persisted as it
	// finishes so a slow report cannot hold back its siblings.
	for _, link := range extract.ParseReportLinks(dash.Doc) {
		wg.Add(1)
		go func(link models.ReportLink) {
			defer wg.Done()
			page, err := client.FetchReportCard(ctx, dash, link)
			if err != nil {
				o.log.Warn("report fetch failed", zap.String("user", userID), zap.String("report", link.Text), zap.Error(err))
				return
			}

			report, perr := extract.ParseReportCard(page.Doc, link.Text)
			if perr != nil {
				o.log.Warn("report parse degraded", zap.String("user", userID), zap.String("report", link.Text), zap.Error(perr))
				return
			}

			if err := o.records.SaveGradeReport(persistCtx, userID, report); err != nil {
				o.log.Error("persist report failed", zap.String("user", userID), zap.String("report", link.Text), zap.Error(err))
				return
			}

			mu.Lock()
			result.Reports = append(result.Reports, report)
			mu.Unlock()
		}(link)
	}

	// Prospectus.
	wg.Add(1)
	go func() {
		defer wg.Done()
		page, err := client.FetchProspectus(ctx, dash)
		if err != nil {
			o.log.Warn("prospectus fetch failed", zap.String("user", userID), zap.Error(err))
			return
		}

		subjects, perr := extract.ParseProspectus(page.Doc)
		if perr != nil {
			o.log.Warn("prospectus parse degraded", zap.String("user", userID), zap.Error(perr))
			return
		}

		if err := o.records.ReplaceProspectus(persistCtx, userID, subjects); err != nil {
			o.log.Error("persist prospectus failed", zap.String("user", userID), zap.Error(err))
			return
		}

		mu.Lock()
		result.Prospectus = subjects
		mu.Unlock()
	}()

	wg.Wait()

	// A sync that ran out of budget still returns whatever finished in time,
	// but the caller must see it failed: a near-empty result with a nil error
	// would be indistinguishable from a complete one.
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("sync budget exhausted: %w", err)
	}
	return result, nil
}

// ChangePassword runs the portal password-change flow over an active session.
func (o *Orchestrator) ChangePassword(ctx context.Context, userID, current, newPassword string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	client, _, err := o.ensureActive(ctx, userID, current)
	if err != nil {
		return false, err
	}
	return client.ChangePassword(ctx, current, newPassword)
}

// fillProfile copies fallback values into empty fields of dst. The EAF page
// is preferred; the dashboard fills whatever it left blank.
func fillProfile(dst, fallback *models.StudentProfile) {
	if dst.StudentID == "" {
		dst.StudentID = fallback.StudentID
	}
	if dst.Name == "" {
		dst.Name = fallback.Name
	}
	if dst.Course == "" {
		dst.Course = fallback.Course
	}
	if dst.YearLevel == "" {
		dst.YearLevel = fallback.YearLevel
	}
	if dst.Semester == "" {
		dst.Semester = fallback.Semester
	}
	if dst.Email == "" {
		dst.Email = fallback.Email
	}
	if dst.Phone == "" {
		dst.Phone = fallback.Phone
	}
}
