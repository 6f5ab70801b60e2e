package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// mainContentSelector and boilerplateSelectors mirror the cleaning heuristic
// used by the crawler's own HTML scraper: prefer an explicit content
// container, else strip chrome and ad/promo/sidebar elements in place.
const mainContentSelector = "main, article, [role=main]"

var boilerplateSelectors = []string{
	"nav, header, footer, aside, script, style, noscript",
	"[class*=ad], [id*=ad], [class*=promo], [class*=sidebar]",
}

// extractMainContent returns the HTML of the page's main content container,
// falling back to the whole document with chrome stripped out.
func extractMainContent(doc *goquery.Document) (string, error) {
	if main := doc.Find(mainContentSelector).First(); main.Length() > 0 {
		return main.Html()
	}

	for _, sel := range boilerplateSelectors {
		doc.Find(sel).Remove()
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return doc.Selection.Html()
	}
	return body.Html()
}

// textLength returns the visible text length of the page's main content,
// used to detect client-rendered pages that returned an (almost) empty
// static DOM.
func textLength(doc *goquery.Document) int {
	body := doc.Find("body")
	if body.Length() == 0 {
		return 0
	}
	clone := body.Clone()
	clone.Find("script, style, noscript").Remove()
	return len(strings.TrimSpace(clone.Text()))
}

var (
	spaceRegex   = regexp.MustCompile(`[ \t]+`)
	newlineRegex = regexp.MustCompile(`\n{3,}`)
)

// cleanWhitespace collapses runs of horizontal whitespace and excess blank
// lines left behind by markdown conversion.
func cleanWhitespace(text string) string {
	text = spaceRegex.ReplaceAllString(text, " ")
	text = newlineRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
