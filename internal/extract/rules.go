// Package extract turns parsed portal HTML documents into typed records.
// The portal's markup is inconsistent across pages and versions, so every
// field is driven by an ordered rule cascade: each rule pairs a selector with
// a normalizer, rules are tried in sequence, and the first non-empty match
// wins. A field that matches nothing stays empty; fields fail independently.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Rule is one step of a field's extraction cascade.
type Rule struct {
	// Selector is the CSS selector to try.
	Selector string
	// Normalize post-processes the matched text; nil keeps it trimmed only.
	Normalize func(string) string
}

// firstMatch evaluates a cascade against the document and returns the first
// rule's non-empty, normalized text. Returns "" when no rule matches.
func firstMatch(doc *goquery.Document, rules []Rule) string {
	for _, r := range rules {
		text := strings.TrimSpace(doc.Find(r.Selector).First().Text())
		if text == "" {
			continue
		}
		if r.Normalize != nil {
			text = r.Normalize(text)
		}
		return text
	}
	return ""
}

// findTable returns the first selector candidate that matches a table with
// at least one row, or an empty selection.
func findTable(doc *goquery.Document, candidates ...string) *goquery.Selection {
	for _, sel := range candidates {
		table := doc.Find(sel).First()
		if table.Length() > 0 && table.Find("tr").Length() > 0 {
			return table
		}
	}
	return doc.Find("table.__none__")
}

// cellText returns the trimmed text of the i-th cell, "" when out of range.
func cellText(cells *goquery.Selection, i int) string {
	if i >= cells.Length() {
		return ""
	}
	return strings.TrimSpace(cells.Eq(i).Text())
}
