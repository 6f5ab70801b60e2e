package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// browserPool holds a small, fixed-size set of headless Chrome browser
// contexts allocated round-robin, so concurrent scrape jobs don't each pay
// the cost of launching a fresh Chrome process for the fallback render path.
type browserPool struct {
	mu       sync.Mutex
	browsers []context.Context
	cancels  []context.CancelFunc
	next     int
	size     int
	userAgent string
	logger   arbor.ILogger
}

func newBrowserPool(size int, userAgent string, logger arbor.ILogger) *browserPool {
	if size < 1 {
		size = 1
	}
	return &browserPool{size: size, userAgent: userAgent, logger: logger}
}

// get lazily allocates up to size browser contexts and returns the next one
// round-robin. Allocation is lazy so a deployment that never needs the
// headless fallback never launches a browser.
func (p *browserPool) get(ctx context.Context) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.browsers) < p.size {
		browserCtx, cancel, err := p.launch()
		if err != nil {
			return nil, err
		}
		p.browsers = append(p.browsers, browserCtx)
		p.cancels = append(p.cancels, cancel)
	}

	browserCtx := p.browsers[p.next]
	p.next = (p.next + 1) % len(p.browsers)
	return browserCtx, nil
}

func (p *browserPool) launch() (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(p.userAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(func(s string, i ...interface{}) {
			p.logger.Debug().Msgf("chromedp: "+s, i...)
		}),
	)

	testCtx, testCancel := context.WithTimeout(browserCtx, 15*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	return browserCtx, func() { browserCancel(); allocatorCancel() }, nil
}

func (p *browserPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cancel := range p.cancels {
		cancel()
	}
	p.browsers = nil
	p.cancels = nil
	p.next = 0
}
