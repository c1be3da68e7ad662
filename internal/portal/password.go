package portal

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/studentlink/portalsync/internal/models"
)

// passwordFormSelector matches the password-change form's submit button.
const passwordFormSelector = `input[name="obtnChange"], #obtnChange`

// ChangePassword runs the same hidden-field-harvest-then-POST pattern as the
// login handshake against the password-change form. No single response signal
// is reliable on its own, so success text, redirect target, and form
// disappearance are evaluated together.
func (c *Client) ChangePassword(ctx context.Context, current, newPassword string) (bool, error) {
	u := c.sessionURL()
	q := u.Query()
	q.Set("_dm", "PASSWORD")
	u.RawQuery = q.Encode()

	entry, err := c.get(ctx, u, "")
	if err != nil {
		return false, err
	}

	entryURL, err := url.Parse(entry.URL)
	if err != nil {
		return false, fmt.Errorf("resolve entry url: %w", err)
	}

	if entry.Doc.Find("form").Length() == 0 {
		return false, &models.ParseError{Page: "password", Marker: "form"}
	}

	fields := url.Values{}
	for name, value := range harvestHiddenFields(entry.Doc) {
		fields.Set(name, value)
	}
	fields.Set("otbOldPassword", current)
	fields.Set("otbNewPassword", newPassword)
	fields.Set("otbConfirmPassword", newPassword)
	fields.Set("obtnChange", "CHANGE")

	action := resolveFormAction(entry.Doc, entryURL)
	result, err := c.postForm(ctx, action, fields, entryURL)
	if err != nil {
		return false, err
	}

	return evaluatePasswordChange(result.Doc, result.URL), nil
}

// evaluatePasswordChange combines the three available signals: success text
// present, redirection to the login or main page, and the password form gone
// from the response. Any two agreeing signals decide the outcome.
func evaluatePasswordChange(doc *goquery.Document, finalURL string) bool {
	signals := 0

	if hasSuccessText(doc) {
		signals++
	}
	if redirectedAway(finalURL) {
		signals++
	}
	if doc.Find(passwordFormSelector).Length() == 0 {
		signals++
	}

	return signals >= 2
}

// hasSuccessText looks for affirmative text in the portal's message labels.
func hasSuccessText(doc *goquery.Document) bool {
	for _, sel := range []string{"#lblMessage", "#lblSuccess", ".text-success"} {
		text := strings.ToLower(strings.TrimSpace(doc.Find(sel).First().Text()))
		if strings.Contains(text, "success") || strings.Contains(text, "changed") {
			return true
		}
	}
	return false
}

// redirectedAway reports whether the final URL landed on the login or main
// page instead of the password form.
func redirectedAway(finalURL string) bool {
	u, err := url.Parse(finalURL)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Query().Get("_dm"), "PASSWORD") {
		return false
	}
	path := strings.ToLower(u.Path)
	return strings.HasSuffix(path, "/login.aspx") || strings.HasSuffix(path, "/main.aspx")
}
