package interfaces

import "context"

// ScrapeFailureReason classifies why a Scraper call produced no content.
type ScrapeFailureReason string

const (
	ScrapeFailureTimeout   ScrapeFailureReason = "timeout"
	ScrapeFailureHTTPError ScrapeFailureReason = "http_error"
	ScrapeFailureBlocked   ScrapeFailureReason = "blocked"
	ScrapeFailureEmpty     ScrapeFailureReason = "empty"
)

// ScrapeResult is the outcome of a Scrape call: exactly one of Markdown or
// Failure is populated. Method records which path produced Markdown
// ("static" or "chromedp"), for the pantry's scrape_method field.
type ScrapeResult struct {
	Markdown string
	Method   string
	Failed   bool
	Reason   ScrapeFailureReason
	Detail   string
}

// Scraper fetches a URL and returns its content as a markdown-shaped text
// blob, stripped of HTML structure and scripts (spec §4.2).
type Scraper interface {
	Scrape(ctx context.Context, url string) ScrapeResult
}
