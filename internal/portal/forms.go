package portal

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/studentlink/portalsync/internal/models"
)

// loginButtonSelector matches the portal's login button in any of the shapes
// it has appeared in across portal versions.
const loginButtonSelector = `input[name="obtnLogin"], #obtnLogin, input[value="LOGIN"]`

// failureMessageSelectors are tried in order; the first non-empty text wins.
var failureMessageSelectors = []string{
	"#lblError",
	"#lblMessage",
	".text-danger",
	".error-message",
}

// harvestHiddenFields collects every hidden input's name/value in one pass.
// The values are opaque anti-forgery state and must be echoed verbatim on the
// following POST.
func harvestHiddenFields(doc *goquery.Document) map[string]string {
	fields := make(map[string]string)
	doc.Find(`input[type="hidden"]`).Each(func(_ int, sel *goquery.Selection) {
		name, ok := sel.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := sel.Attr("value")
		fields[name] = value
	})
	return fields
}

// resolveFormAction finds the form to POST against, preferring a named form
// over the first one, and resolves its action relative to the page URL.
// A form without an action falls back to ./Login.aspx.
func resolveFormAction(doc *goquery.Document, pageURL *url.URL) *url.URL {
	form := doc.Find("form[name]").First()
	if form.Length() == 0 {
		form = doc.Find("form").First()
	}

	action := "./Login.aspx"
	if form.Length() > 0 {
		if a, ok := form.Attr("action"); ok && strings.TrimSpace(a) != "" {
			action = strings.TrimSpace(a)
		}
	}

	ref, err := url.Parse(action)
	if err != nil {
		return pageURL
	}
	return pageURL.ResolveReference(ref)
}

// EvaluateLogin classifies a login response document. The portal returns 200
// for both outcomes, so success is the absence of any login button element.
func EvaluateLogin(doc *goquery.Document) models.LoginOutcome {
	if doc.Find(loginButtonSelector).Length() == 0 {
		return models.LoginSucceeded
	}
	return models.LoginRejected
}

// LoginFailureMessage extracts the portal's error text from a rejected login
// page. Returns "" when none of the known message elements carries text.
func LoginFailureMessage(doc *goquery.Document) string {
	for _, sel := range failureMessageSelectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}
