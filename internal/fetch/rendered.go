package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserRenderer fetches pages through headless Chrome. It exists for the
// minority of pages that refuse plain HTTP clients outright.
type BrowserRenderer struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	headless bool
	timeout  time.Duration
}

// NewBrowserRenderer creates a renderer; call Start before use.
func NewBrowserRenderer(headless bool) *BrowserRenderer {
	return &BrowserRenderer{
		headless: headless,
		timeout:  45 * time.Second,
	}
}

// Start initializes the browser allocator.
func (r *BrowserRenderer) Start() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", r.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		// Anti-detection flags
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(defaultUserAgents[0]),
	)

	r.allocCtx, r.cancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return nil
}

// Stop closes the browser.
func (r *BrowserRenderer) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Render navigates to a URL in a fresh tab and returns the page HTML after
// scripts have settled.
func (r *BrowserRenderer) Render(ctx context.Context, url string) (string, error) {
	if r.allocCtx == nil {
		return "", fmt.Errorf("renderer not started")
	}

	taskCtx, cancel := chromedp.NewContext(r.allocCtx)
	defer cancel()

	taskCtx, cancel = context.WithTimeout(taskCtx, r.timeout)
	defer cancel()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(`Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`, nil),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("navigation failed: %w", err)
	}

	return html, nil
}
