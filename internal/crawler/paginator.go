package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sjsage522/feedharvester/internal/browser"
	"sjsage522/feedharvester/logger"
	errs "sjsage522/feedharvester/pkg/errors"
)

// State is the position of the paginator in its scroll loop
type State int

const (
	StateIdle State = iota
	StateLoading
	StateExtractingPage
	StateAdvancing
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateExtractingPage:
		return "extracting_page"
	case StateAdvancing:
		return "advancing"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultScrollStep is used until the first item height has been measured
const DefaultScrollStep = 800.0

// elementHeightScript measures the index-th match of a selector in the page
const elementHeightScript = `(() => { const el = document.querySelectorAll(%s)[%d]; return el ? el.getBoundingClientRect().height : 0; })()`

// PaginatorConfig contains configuration for a paginator
type PaginatorConfig struct {
	Username    string
	ProfileURL  string
	ScrollPause time.Duration
	MaxScrolls  int
	WaitTimeout time.Duration
	NavTimeout  time.Duration
	BatchSize   int
	Selectors   Selectors
}

// RunStats summarizes one scroll loop
type RunStats struct {
	Iterations int
	ItemsSeen  int
	Unusable   int
	Duplicates int
	Accepted   int
	Batches    int
}

// Paginator drives the scroll loop over one feed page
type Paginator struct {
	cfg       PaginatorConfig
	page      browser.Page
	extractor *Extractor
	seen      *SeenSet
	log       *logger.Logger

	// now is the run clock, replaceable in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	state        State
	heightSum    float64
	heightCount  int
	stats        RunStats
	itemSelector string
}

// NewPaginator creates a paginator. seen is the run-scoped dedup set; the
// caller keeps the reference to inspect it after the run.
func NewPaginator(cfg PaginatorConfig, page browser.Page, seen *SeenSet) *Paginator {
	p := &Paginator{
		cfg:       cfg,
		page:      page,
		extractor: NewExtractor(cfg.Selectors),
		seen:      seen,
		now:       time.Now,
		sleep:     sleepContext,
		state:     StateIdle,
	}
	p.SetLogger(logger.ForPaginator(cfg.Username))
	return p
}

// SetLogger replaces the paginator's logger, which the extractor shares
func (p *Paginator) SetLogger(l *logger.Logger) {
	p.log = l
	p.extractor.SetLogger(l)
}

// SetClock replaces the clock used to stamp the ingestion date
func (p *Paginator) SetClock(now func() time.Time) {
	p.now = now
}

// State returns the current state
func (p *Paginator) State() State {
	return p.state
}

// Stats returns the counters of the last run
func (p *Paginator) Stats() RunStats {
	return p.stats
}

// ScrollStep returns the current adaptive scroll distance
func (p *Paginator) ScrollStep() float64 {
	if p.heightCount == 0 {
		return DefaultScrollStep
	}
	return p.heightSum / float64(p.heightCount)
}

func (p *Paginator) transition(to State) {
	p.log.Debug().Str("from", p.state.String()).Str("to", to.String()).Msg("State transition")
	p.state = to
}

// Run navigates to the feed, scrolls it MaxScrolls times and sends batches of
// new records on out. out is not closed by Run.
func (p *Paginator) Run(ctx context.Context, out chan<- Batch) error {
	batcher, err := NewBatcher(p.cfg.BatchSize, out)
	if err != nil {
		return errs.NewConfiguration("invalid batch size", err)
	}

	p.stats = RunStats{}
	defer func() { p.stats.Batches = batcher.Emitted() }()
	ingestedAt := runDate(p.now())

	p.transition(StateLoading)
	if err := p.page.Navigate(ctx, p.cfg.ProfileURL, p.cfg.NavTimeout); err != nil {
		return errs.NewNavigation("paginator", "failed to open "+p.cfg.ProfileURL, err)
	}

	for scroll := 0; scroll < p.cfg.MaxScrolls; scroll++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.stats.Iterations++
		p.log.Info().Int("iteration", scroll).Msg("Scroll")

		if scroll > 0 {
			p.transition(StateLoading)
		}
		p.waitForItems(ctx)

		p.transition(StateExtractingPage)
		items, err := p.queryItems(ctx)
		if err != nil {
			p.log.Warn().Err(err).Int("iteration", scroll).Msg("Failed to enumerate feed items")
		}
		p.log.Info().Int("iteration", scroll).Int("items", len(items)).Msg("Found feed item containers")

		for _, item := range items {
			p.stats.ItemsSeen++
			rec, ok := p.accept(item, ingestedAt)
			if !ok {
				continue
			}
			if err := batcher.Accept(ctx, rec); err != nil {
				return err
			}
		}

		p.transition(StateAdvancing)
		if err := p.advance(ctx, items); err != nil {
			return err
		}
	}

	p.transition(StateExhausted)
	if err := batcher.Flush(ctx); err != nil {
		return err
	}

	p.log.Info().
		Int("iterations", p.stats.Iterations).
		Int("items_seen", p.stats.ItemsSeen).
		Int("accepted", p.stats.Accepted).
		Int("batches", batcher.Emitted()).
		Msg("Feed exhausted")
	return nil
}

func (p *Paginator) waitForItems(ctx context.Context) {
	p.log.Debug().Msg("Waiting for feed items to load")
	if p.page.WaitForAny(ctx, p.cfg.Selectors.WaitMarkers, p.cfg.WaitTimeout) {
		p.log.Debug().Msg("Feed items detected")
		return
	}
	p.log.Warn().
		Err(errs.NewRenderingTimeout("paginator", p.cfg.WaitTimeout)).
		Msg("Timeout waiting for feed items, page may require login or consent")
}

// queryItems enumerates items with the primary selector, falling back to the
// looser one only when the primary finds nothing
func (p *Paginator) queryItems(ctx context.Context) ([]browser.Node, error) {
	p.itemSelector = p.cfg.Selectors.Items
	items, err := p.page.QueryAll(ctx, p.itemSelector)
	if len(items) > 0 || p.cfg.Selectors.FallbackItems == "" {
		return items, err
	}
	if err != nil {
		p.log.Warn().
			Err(err).
			Str("selector", p.itemSelector).
			Str("fallback", p.cfg.Selectors.FallbackItems).
			Msg("Primary item query failed, trying fallback selector")
	}
	p.itemSelector = p.cfg.Selectors.FallbackItems
	return p.page.QueryAll(ctx, p.itemSelector)
}

func (p *Paginator) accept(item browser.Node, ingestedAt time.Time) (Record, bool) {
	cand, ok := p.extractor.Extract(item)
	if !ok {
		p.stats.Unusable++
		return Record{}, false
	}
	if !p.seen.Add(cand.ID) {
		p.stats.Duplicates++
		return Record{}, false
	}
	p.stats.Accepted++

	rec := cand.Stamp(p.cfg.Username, ingestedAt)
	ev := p.log.Info().Int64("post_id", rec.ID).Str("content", preview(rec.Content, 60))
	if rec.CreatedAt != nil {
		ev = ev.Time("created_at", *rec.CreatedAt)
	}
	ev.Msg("Extracted post")
	return rec, true
}

// advance scrolls by the mean height of every item measured so far in the
// run. An iteration without items keeps the previous mean.
func (p *Paginator) advance(ctx context.Context, items []browser.Node) error {
	for i, item := range items {
		h, ok := item.BoundingHeight()
		if !ok {
			h = p.evaluateHeight(ctx, i)
		}
		if h <= 0 {
			continue
		}
		p.heightSum += h
		p.heightCount++
	}

	step := p.ScrollStep()
	p.log.Debug().Float64("scroll_step", step).Int("samples", p.heightCount).Msg("Advancing")
	if err := p.page.ScrollBy(ctx, step); err != nil {
		p.log.Warn().Err(err).Msg("Failed to scroll")
	}
	return p.sleep(ctx, p.cfg.ScrollPause)
}

func (p *Paginator) evaluateHeight(ctx context.Context, index int) float64 {
	quoted, err := json.Marshal(p.itemSelector)
	if err != nil {
		return 0
	}
	var h float64
	if err := p.page.Evaluate(ctx, fmt.Sprintf(elementHeightScript, quoted, index), &h); err != nil {
		p.log.Debug().Err(err).Int("index", index).Msg("Failed to measure item height")
		return 0
	}
	return h
}

// runDate truncates t to its calendar date in its own location
func runDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
