package portal

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// discoverPeriodCode scans in-page anchors for the first href carrying a
// _pc query parameter and returns its value.
func discoverPeriodCode(doc *goquery.Document) string {
	var code string
	doc.Find(`a[href*="_pc="]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		u, err := url.Parse(href)
		if err != nil {
			return true
		}
		if pc := u.Query().Get("_pc"); pc != "" {
			code = pc
			return false
		}
		return true
	})
	return code
}

// discoverModuleHref finds an anchor pointing at the given portal module
// (_dm={module}); "" when the dashboard does not link it.
func discoverModuleHref(doc *goquery.Document, module string) string {
	var found string
	doc.Find(`a[href*="_dm="]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		u, err := url.Parse(href)
		if err != nil {
			return true
		}
		if strings.EqualFold(u.Query().Get("_dm"), module) {
			found = href
			return false
		}
		return true
	})
	return found
}
