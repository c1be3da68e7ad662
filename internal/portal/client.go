// Package portal implements the protocol client for the legacy ASP.NET
// WebForms student portal: the GET-then-POST login handshake with hidden
// postback token harvesting, and the referer-chained report page fetches.
package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/studentlink/portalsync/internal/models"
)

// Client operates one (http.Client, cookie jar) pair bound to a single user's
// portal session. Methods are safe for concurrent GETs against an already
// authenticated jar; the login handshake itself must be serialized by the
// caller's session lock.
type Client struct {
	http   *http.Client
	jar    *cookiejar.Jar
	base   *url.URL
	userID string
}

// LoginResult reports the outcome of a login handshake.
type LoginResult struct {
	// Outcome classifies the handshake from the response document.
	Outcome models.LoginOutcome
	// Message is the portal's error text on rejection, "" otherwise.
	Message string
}

// Dashboard carries the navigation state discovered from the dashboard page.
// Every subsequent request must echo PeriodCode and chain its Referer from URL.
type Dashboard struct {
	// PeriodCode is the current enrollment period code (_pc query param).
	PeriodCode string
	// URL is the canonical dashboard URL as resolved after redirects.
	URL string
	// Doc is the parsed dashboard document for link discovery.
	Doc *goquery.Document
}

// Page is one fetched report page together with its resolved URL, which
// becomes the Referer for pages linked from it.
type Page struct {
	// URL is the final resolved URL after redirects.
	URL string
	// Doc is the parsed document.
	Doc *goquery.Document
}

// NewClient builds a Client for one user. jarBlob is the serialized cookie
// jar from a previous session, or nil for a fresh one.
func NewClient(baseURL, userID string, timeout time.Duration, jarBlob []byte) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse portal base url: %w", err)
	}

	jar, err := restoreJar(jarBlob, base)
	if err != nil {
		return nil, fmt.Errorf("restore cookie jar: %w", err)
	}

	return &Client{
		http:   &http.Client{Jar: jar, Timeout: timeout},
		jar:    jar,
		base:   base,
		userID: userID,
	}, nil
}

// JarSnapshot serializes the current cookie jar for persistence.
func (c *Client) JarSnapshot() ([]byte, error) {
	return snapshotJar(c.jar, c.base)
}

// sessionURL is the session-scoped entry point: Main.aspx?_sid={userID}.
func (c *Client) sessionURL() *url.URL {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/Main.aspx"
	q := u.Query()
	q.Set("_sid", c.userID)
	u.RawQuery = q.Encode()
	return &u
}

// get issues one GET with the shared jar. referer may be "" for the entry
// request; every navigated request carries the page that linked to it.
func (c *Client) get(ctx context.Context, target *url.URL, referer string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portal get %s: %w", target.Path, err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", target.Path, err)
	}
	return &Page{URL: resp.Request.URL.String(), Doc: doc}, nil
}

// postForm POSTs url-encoded fields with browser-like Referer/Origin headers
// matching the page the form came from.
func (c *Client) postForm(ctx context.Context, action *url.URL, fields url.Values, referer *url.URL) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.String(), strings.NewReader(fields.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", referer.String())
	req.Header.Set("Origin", referer.Scheme+"://"+referer.Host)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portal post %s: %w", action.Path, err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", action.Path, err)
	}
	return &Page{URL: resp.Request.URL.String(), Doc: doc}, nil
}

// ForceLogin replays the browser login handshake: GET the session entry page,
// harvest every hidden input verbatim, then POST the merged field set to the
// login form's resolved action. The outcome is read from the response
// document, never the status code.
func (c *Client) ForceLogin(ctx context.Context, password string) (*LoginResult, error) {
	entry, err := c.get(ctx, c.sessionURL(), "")
	if err != nil {
		return nil, err
	}

	entryURL, err := url.Parse(entry.URL)
	if err != nil {
		return nil, fmt.Errorf("resolve entry url: %w", err)
	}

	if entry.Doc.Find("form").Length() == 0 {
		return nil, &models.ParseError{Page: "login", Marker: "form"}
	}

	fields := url.Values{}
	for name, value := range harvestHiddenFields(entry.Doc) {
		fields.Set(name, value)
	}
	fields.Set("otbUserID", c.userID)
	fields.Set("otbPassword", password)
	fields.Set("obtnLogin", "LOGIN")

	action := resolveFormAction(entry.Doc, entryURL)
	result, err := c.postForm(ctx, action, fields, entryURL)
	if err != nil {
		return nil, err
	}

	outcome := EvaluateLogin(result.Doc)
	login := &LoginResult{Outcome: outcome}
	if outcome == models.LoginRejected {
		login.Message = LoginFailureMessage(result.Doc)
	}
	return login, nil
}

// FetchDashboard loads the session entry page with an authenticated jar and
// discovers the current enrollment period code from in-page links. The
// period code must be echoed as _pc on every subsequent request.
func (c *Client) FetchDashboard(ctx context.Context) (*Dashboard, error) {
	page, err := c.get(ctx, c.sessionURL(), "")
	if err != nil {
		return nil, err
	}

	// A login form on the dashboard means the cached jar has expired.
	if EvaluateLogin(page.Doc) == models.LoginRejected {
		return nil, models.ErrAuthentication
	}

	periodCode := discoverPeriodCode(page.Doc)
	if periodCode == "" {
		return nil, &models.ParseError{Page: "dashboard", Marker: "_pc link"}
	}

	return &Dashboard{PeriodCode: periodCode, URL: page.URL, Doc: page.Doc}, nil
}

// FetchPage GETs a report page discovered from the dashboard. href may be
// relative; it is resolved against referer, and the period code is appended
// when the link does not already carry one.
func (c *Client) FetchPage(ctx context.Context, href, referer, periodCode string) (*Page, error) {
	refURL, err := url.Parse(referer)
	if err != nil {
		return nil, fmt.Errorf("resolve referer: %w", err)
	}
	target, err := refURL.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("resolve href %q: %w", href, err)
	}
	ensurePeriodCode(target, periodCode)

	return c.get(ctx, target, referer)
}

// FetchAccounts loads the student accounts (financials) page.
func (c *Client) FetchAccounts(ctx context.Context, dash *Dashboard) (*Page, error) {
	return c.fetchModule(ctx, dash, "ACCOUNTS")
}

// FetchEAF loads the enrollment assessment form page.
func (c *Client) FetchEAF(ctx context.Context, dash *Dashboard) (*Page, error) {
	return c.fetchModule(ctx, dash, "EAF")
}

// FetchProspectus loads the curriculum prospectus page.
func (c *Client) FetchProspectus(ctx context.Context, dash *Dashboard) (*Page, error) {
	return c.fetchModule(ctx, dash, "PROSPECTUS")
}

// FetchReportCard loads one grade report page by its dashboard href.
func (c *Client) FetchReportCard(ctx context.Context, dash *Dashboard, link models.ReportLink) (*Page, error) {
	return c.FetchPage(ctx, link.Href, dash.URL, dash.PeriodCode)
}

// fetchModule loads a portal module page (_dm={module}) with the dashboard
// as referer, preferring an in-page link to the module when one exists.
func (c *Client) fetchModule(ctx context.Context, dash *Dashboard, module string) (*Page, error) {
	if href := discoverModuleHref(dash.Doc, module); href != "" {
		return c.FetchPage(ctx, href, dash.URL, dash.PeriodCode)
	}

	u := c.sessionURL()
	q := u.Query()
	q.Set("_pc", dash.PeriodCode)
	q.Set("_dm", module)
	u.RawQuery = q.Encode()
	return c.get(ctx, u, dash.URL)
}

// ensurePeriodCode appends _pc when the target URL does not already carry it.
func ensurePeriodCode(u *url.URL, periodCode string) {
	if periodCode == "" {
		return
	}
	q := u.Query()
	if q.Get("_pc") == "" {
		q.Set("_pc", periodCode)
		u.RawQuery = q.Encode()
	}
}
