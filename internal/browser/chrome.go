package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"sjsage522/feedharvester/logger"
)

// ChromeOptions configures the browser session behind a ChromePage.
// RemoteURL attaches to a running browser's DevTools websocket instead of
// launching one. ExecPath selects the browser binary; chromedp searches the
// usual names when it is empty.
type ChromeOptions struct {
	RemoteURL    string
	ExecPath     string
	Headless     bool
	NoSandbox    bool
	UserAgent    string
	WindowWidth  int
	WindowHeight int
}

// ChromePage implements Page with a chromedp-controlled tab
type ChromePage struct {
	ctx         context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
	log         *logger.Logger
}

// Ensure ChromePage implements Page
var _ Page = (*ChromePage)(nil)

// renderedElement is what queryAllScript returns for each match
type renderedElement struct {
	HTML   string  `json:"html"`
	Text   string  `json:"text"`
	Height float64 `json:"height"`
}

const queryAllScript = `Array.from(document.querySelectorAll(%s)).map(el => ({
	html: el.outerHTML,
	text: el.innerText || "",
	height: el.getBoundingClientRect().height
}))`

// NewChromePage launches (or attaches to) a browser and opens a blank tab
func NewChromePage(parent context.Context, opts ChromeOptions) (*ChromePage, error) {
	if opts.WindowWidth <= 0 {
		opts.WindowWidth = 1280
	}
	if opts.WindowHeight <= 0 {
		opts.WindowHeight = 800
	}

	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(parent, opts.RemoteURL)
	} else {
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
		)
		if opts.UserAgent != "" {
			execOpts = append(execOpts, chromedp.UserAgent(opts.UserAgent))
		}
		if opts.ExecPath != "" {
			execOpts = append(execOpts, chromedp.ExecPath(opts.ExecPath))
		}
		if opts.NoSandbox {
			execOpts = append(execOpts, chromedp.NoSandbox)
		}
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(parent, execOpts...)
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// The first Run starts the browser
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log := logger.ForBrowser()
	log.Info().
		Bool("remote", opts.RemoteURL != "").
		Bool("headless", opts.Headless).
		Msg("Browser session started")

	return &ChromePage{
		ctx:         tabCtx,
		cancelAlloc: cancelAlloc,
		cancelTab:   cancelTab,
		log:         log,
	}, nil
}

// run executes actions on the tab, bounded by ctx cancellation and timeout
func (p *ChromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx := p.ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}
	defer cancel()

	// Propagate cancellation of the caller's context to the tab action
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate opens url and waits for the DOM to be ready
func (p *ChromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	p.log.Info().Str("url", url).Msg("Opening feed")
	if err := p.run(ctx, timeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// WaitForAny waits for the first element matching any of selectors. A zero
// timeout checks once without waiting.
func (p *ChromePage) WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) bool {
	joined := strings.Join(selectors, ", ")
	if timeout <= 0 {
		quoted, err := json.Marshal(joined)
		if err != nil {
			return false
		}
		var found bool
		err = p.run(ctx, 0, chromedp.Evaluate(fmt.Sprintf("document.querySelector(%s) !== null", quoted), &found))
		return err == nil && found
	}
	err := p.run(ctx, timeout, chromedp.WaitReady(joined, chromedp.ByQuery))
	return err == nil
}

// QueryAll snapshots every element matching selector together with its layout
func (p *ChromePage) QueryAll(ctx context.Context, selector string) ([]Node, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to quote selector: %w", err)
	}

	var rendered []renderedElement
	script := fmt.Sprintf(queryAllScript, quoted)
	if err := p.run(ctx, 0, chromedp.Evaluate(script, &rendered)); err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", selector, err)
	}

	nodes := make([]Node, 0, len(rendered))
	for i, el := range rendered {
		n, err := ParseNode(el.HTML)
		if err != nil {
			p.log.Debug().Err(err).Int("index", i).Str("selector", selector).Msg("Skipping unparsable element")
			continue
		}
		nodes = append(nodes, withLayout(n, el.Text, el.Height))
	}
	return nodes, nil
}

// ScrollBy scrolls the window down by amount pixels
func (p *ChromePage) ScrollBy(ctx context.Context, amount float64) error {
	script := fmt.Sprintf("window.scrollBy(0, %f)", amount)
	if err := p.run(ctx, 0, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

// Evaluate runs script in the tab
func (p *ChromePage) Evaluate(ctx context.Context, script string, res interface{}) error {
	return p.run(ctx, 0, chromedp.Evaluate(script, res))
}

// Close shuts down the tab and the browser (or detaches from a remote one)
func (p *ChromePage) Close() error {
	p.cancelTab()
	p.cancelAlloc()
	p.log.Info().Msg("Browser session closed")
	return nil
}
