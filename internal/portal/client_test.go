package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/studentlink/portalsync/internal/models"
)

// fakePortal mimics the WebForms portal: a login page with hidden postback
// tokens, a cookie-gated dashboard, and referer-chained report pages. Like
// the real portal it answers 200 for both login outcomes.
type fakePortal struct {
	password string

	mu               sync.Mutex
	lastLoginForm    url.Values
	lastLoginReferer string
	lastReportQuery  url.Values
	lastReportRef    string
	blankLogin       bool
}

const (
	fakeViewstate  = "dDwtMTA3O=="
	fakeValidation = "/wEWAg=="
	sessionCookie  = "PORTALSESS"
	sessionToken   = "tok-123"
)

const loginPage = `<html><body>
<form name="frmLogin" action="./Login.aspx">
<input type="hidden" name="__VIEWSTATE" value="` + fakeViewstate + `" />
<input type="hidden" name="__EVENTVALIDATION" value="` + fakeValidation + `" />
<input type="text" name="otbUserID" />
<input type="password" name="otbPassword" />
<input type="submit" name="obtnLogin" value="LOGIN" />
%s
</form></body></html>`

const dashboardPage = `<html><body>
<span id="lblStudentName">DELA CRUZ, JUAN</span>
<a href="Main.aspx?_sid=S100&_pc=2026-1&_dm=ACCOUNTS">Student Accounts</a>
<a href="Main.aspx?_sid=S100&_pc=2026-1&_dm=EAF">Enrollment Assessment Form</a>
<a href="Main.aspx?_sid=S100&_pc=2026-1&_dm=REPORTCARD&_rp=1">Report of Grades 1st Semester</a>
</body></html>`

func (f *fakePortal) authed(r *http.Request) bool {
	c, err := r.Cookie(sessionCookie)
	return err == nil && c.Value == sessionToken
}

func (f *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/student/Main.aspx", func(w http.ResponseWriter, r *http.Request) {
		if !f.authed(r) {
			if f.blankLogin {
				fmt.Fprint(w, `<html><body>maintenance</body></html>`)
				return
			}
			fmt.Fprintf(w, loginPage, "")
			return
		}
		switch r.URL.Query().Get("_dm") {
		case "":
			fmt.Fprint(w, dashboardPage)
		case "REPORTCARD":
			f.mu.Lock()
			f.lastReportQuery = r.URL.Query()
			f.lastReportRef = r.Header.Get("Referer")
			f.mu.Unlock()
			fmt.Fprint(w, `<html><body><table id="grdGrades">
			<tr><th>Code</th><th>Description</th><th>Grade</th><th>Remarks</th></tr>
			<tr><td>CS101</td><td>Data Structures</td><td>1.75</td><td>PASSED</td></tr>
			</table></body></html>`)
		default:
			fmt.Fprint(w, `<html><body><div id="pnlModule">ok</div></body></html>`)
		}
	})

	mux.HandleFunc("/student/Login.aspx", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.lastLoginForm = r.PostForm
		f.lastLoginReferer = r.Header.Get("Referer")
		f.mu.Unlock()

		if r.PostFormValue("__VIEWSTATE") != fakeViewstate ||
			r.PostFormValue("otbPassword") != f.password {
			fmt.Fprintf(w, loginPage, `<span id="lblError">Invalid user ID or password.</span>`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: sessionToken, Path: "/"})
		fmt.Fprint(w, dashboardPage)
	})

	return mux
}

func newFakePortal(t *testing.T) (*fakePortal, *httptest.Server) {
	t.Helper()
	fake := &fakePortal{password: "secret"}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return fake, srv
}

func newTestClient(t *testing.T, srv *httptest.Server, jar []byte) *Client {
	t.Helper()
	client, err := NewClient(srv.URL+"/student", "S100", 5*time.Second, jar)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestForceLogin_Success(t *testing.T) {
	fake, srv := newFakePortal(t)
	client := newTestClient(t, srv, nil)

	result, err := client.ForceLogin(context.Background(), "secret")
	if err != nil {
		t.Fatalf("ForceLogin: %v", err)
	}
	if result.Outcome != models.LoginSucceeded {
		t.Fatalf("expected success, got %v (%s)", result.Outcome, result.Message)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if got := fake.lastLoginForm.Get("__EVENTVALIDATION"); got != fakeValidation {
		t.Errorf("hidden token not echoed verbatim: %q", got)
	}
	if got := fake.lastLoginForm.Get("obtnLogin"); got != "LOGIN" {
		t.Errorf("expected obtnLogin=LOGIN, got %q", got)
	}
	if got := fake.lastLoginForm.Get("otbUserID"); got != "S100" {
		t.Errorf("expected otbUserID=S100, got %q", got)
	}
	if fake.lastLoginReferer == "" {
		t.Error("login POST must carry the Referer of the preceding GET")
	}
}

func TestForceLogin_BadPassword(t *testing.T) {
	_, srv := newFakePortal(t)
	client := newTestClient(t, srv, nil)

	result, err := client.ForceLogin(context.Background(), "wrong")
	if err != nil {
		t.Fatalf("ForceLogin: %v", err)
	}
	if result.Outcome != models.LoginRejected {
		t.Fatal("expected rejection for a bad password")
	}
	if result.Message != "Invalid user ID or password." {
		t.Errorf("unexpected failure message: %q", result.Message)
	}
}

func TestForceLogin_NoForm(t *testing.T) {
	fake, srv := newFakePortal(t)
	fake.blankLogin = true
	client := newTestClient(t, srv, nil)

	_, err := client.ForceLogin(context.Background(), "secret")
	var parseErr *models.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestJarSnapshot_RoundTrip(t *testing.T) {
	_, srv := newFakePortal(t)
	client := newTestClient(t, srv, nil)

	if _, err := client.ForceLogin(context.Background(), "secret"); err != nil {
		t.Fatalf("ForceLogin: %v", err)
	}
	blob, err := client.JarSnapshot()
	if err != nil {
		t.Fatalf("JarSnapshot: %v", err)
	}
	if len(blob) == 0 {
		t.Fatal("expected a non-empty jar snapshot after login")
	}

	// A fresh client restored from the blob skips re-authentication.
	ghost := newTestClient(t, srv, blob)
	dash, err := ghost.FetchDashboard(context.Background())
	if err != nil {
		t.Fatalf("FetchDashboard with restored jar: %v", err)
	}
	if dash.PeriodCode != "2026-1" {
		t.Errorf("expected period code 2026-1, got %q", dash.PeriodCode)
	}
}

func TestFetchDashboard_ExpiredSession(t *testing.T) {
	_, srv := newFakePortal(t)
	client := newTestClient(t, srv, nil)

	_, err := client.FetchDashboard(context.Background())
	if !errors.Is(err, models.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication for an unauthenticated jar, got %v", err)
	}
}

func TestFetchReportCard_RefererChain(t *testing.T) {
	fake, srv := newFakePortal(t)
	client := newTestClient(t, srv, nil)

	if _, err := client.ForceLogin(context.Background(), "secret"); err != nil {
		t.Fatalf("ForceLogin: %v", err)
	}
	dash, err := client.FetchDashboard(context.Background())
	if err != nil {
		t.Fatalf("FetchDashboard: %v", err)
	}

	link := models.ReportLink{
		Text: "Report of Grades 1st Semester",
		Href: "Main.aspx?_sid=S100&_pc=2026-1&_dm=REPORTCARD&_rp=1",
	}
	page, err := client.FetchReportCard(context.Background(), dash, link)
	if err != nil {
		t.Fatalf("FetchReportCard: %v", err)
	}
	if page.Doc.Find("#grdGrades").Length() == 0 {
		t.Error("expected the grades table on the report page")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.lastReportRef != dash.URL {
		t.Errorf("report fetch Referer = %q, want dashboard URL %q", fake.lastReportRef, dash.URL)
	}
	if fake.lastReportQuery.Get("_pc") != "2026-1" {
		t.Errorf("report fetch must carry _pc, got %q", fake.lastReportQuery.Get("_pc"))
	}
}

func TestFetchPage_AppendsPeriodCode(t *testing.T) {
	fake, srv := newFakePortal(t)
	client := newTestClient(t, srv, nil)

	if _, err := client.ForceLogin(context.Background(), "secret"); err != nil {
		t.Fatalf("ForceLogin: %v", err)
	}
	dash, err := client.FetchDashboard(context.Background())
	if err != nil {
		t.Fatalf("FetchDashboard: %v", err)
	}

	// Link without _pc: the client must append the current period code.
	if _, err := client.FetchPage(context.Background(), "Main.aspx?_sid=S100&_dm=REPORTCARD", dash.URL, dash.PeriodCode); err != nil {
		t.Fatalf("FetchPage: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.lastReportQuery.Get("_pc") != "2026-1" {
		t.Errorf("expected appended _pc=2026-1, got %q", fake.lastReportQuery.Get("_pc"))
	}
}
