package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/quaero/internal/interfaces"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// minRenderedTextLength below this threshold after a static fetch is
// treated as evidence the page is client-rendered and needs chromedp.
const minRenderedTextLength = 200

// Scraper implements interfaces.Scraper: a plain HTTP GET + goquery +
// html-to-markdown primary path, with a single headless-Chrome retry when
// the static fetch looks client-rendered or bot-challenged (spec §4.2).
type Scraper struct {
	httpClient *http.Client
	pool       *browserPool
	timeout    time.Duration
	userAgent  string
	logger     arbor.ILogger
}

var _ interfaces.Scraper = (*Scraper)(nil)

// New builds a Scraper. timeout is the total per-URL budget (spec §4.2,
// default config.Discovery.ScrapeTimeout). poolSize bounds the number of
// concurrently held headless-Chrome contexts used by the fallback path.
func New(timeout time.Duration, poolSize int, logger arbor.ILogger) *Scraper {
	userAgent := defaultUserAgent
	return &Scraper{
		httpClient: &http.Client{Timeout: timeout},
		pool:       newBrowserPool(poolSize, userAgent, logger),
		timeout:    timeout,
		userAgent:  userAgent,
		logger:     logger,
	}
}

func (s *Scraper) Close() {
	s.pool.close()
}

func (s *Scraper) Scrape(ctx context.Context, url string) interfaces.ScrapeResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	html, status, err := s.fetchStatic(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return failure(interfaces.ScrapeFailureTimeout, err.Error())
		}
		return failure(interfaces.ScrapeFailureHTTPError, err.Error())
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return failure(interfaces.ScrapeFailureHTTPError, fmt.Sprintf("failed to parse HTML: %v", err))
	}

	method := "static"
	if looksBotChallenged(status) || textLength(doc) < minRenderedTextLength {
		renderedHTML, renderErr := s.fetchRendered(ctx, url)
		if renderErr != nil {
			s.logger.Debug().Err(renderErr).Str("url", url).Msg("headless fallback render failed")
			if looksBotChallenged(status) {
				return failure(interfaces.ScrapeFailureBlocked, renderErr.Error())
			}
		} else if renderedDoc, parseErr := goquery.NewDocumentFromReader(strings.NewReader(renderedHTML)); parseErr == nil {
			doc = renderedDoc
			method = "chromedp"
		}
	}

	contentHTML, err := extractMainContent(doc)
	if err != nil {
		return failure(interfaces.ScrapeFailureHTTPError, fmt.Sprintf("failed to extract content: %v", err))
	}

	converter := md.NewConverter(url, true, nil)
	markdown, err := converter.ConvertString(contentHTML)
	if err != nil {
		return failure(interfaces.ScrapeFailureHTTPError, fmt.Sprintf("failed to convert to markdown: %v", err))
	}

	markdown = cleanWhitespace(markdown)
	if markdown == "" {
		return failure(interfaces.ScrapeFailureEmpty, "no content after extraction")
	}

	return interfaces.ScrapeResult{Markdown: markdown, Method: method}
}

func (s *Scraper) fetchStatic(ctx context.Context, url string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 && !looksBotChallenged(resp.StatusCode) {
		return "", resp.StatusCode, fmt.Errorf("request returned status %d", resp.StatusCode)
	}

	return string(body), resp.StatusCode, nil
}

func (s *Scraper) fetchRendered(ctx context.Context, url string) (string, error) {
	browserCtx, err := s.pool.get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire browser: %w", err)
	}

	tabCtx, cancel := chromedp.NewContext(browserCtx)
	defer cancel()

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("headless render failed: %w", err)
	}
	return html, nil
}

func looksBotChallenged(status int) bool {
	return status == http.StatusForbidden || status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

func failure(reason interfaces.ScrapeFailureReason, detail string) interfaces.ScrapeResult {
	return interfaces.ScrapeResult{Failed: true, Reason: reason, Detail: detail}
}
