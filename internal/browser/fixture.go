package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// FixturePage replays recorded snapshots of a feed. Frame i is what the page
// renders after i scrolls; scrolling past the last frame keeps showing it.
type FixturePage struct {
	mu     sync.Mutex
	frames []string
	frame  int
	docs   map[int]*goquery.Document

	// FallbackHeight is the result of every Evaluate call
	FallbackHeight float64

	URL       string
	Scrolls   []float64
	Evaluated []string
}

// Ensure FixturePage implements Page
var _ Page = (*FixturePage)(nil)

// NewFixturePage creates a page from in-memory HTML frames
func NewFixturePage(frames ...string) *FixturePage {
	return &FixturePage{
		frames: frames,
		docs:   make(map[int]*goquery.Document),
	}
}

// LoadFixtureDir reads every *.html file in dir, in name order, as one frame
func LoadFixtureDir(dir string) (*FixturePage, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("failed to list fixtures: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .html fixtures in %s", dir)
	}
	sort.Strings(paths)

	frames := make([]string, 0, len(paths))
	for _, path := range paths {
		frame, err := readFrame(path)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return NewFixturePage(frames...), nil
}

// readFrame reads a snapshot and converts it to UTF-8 when it declares another charset
func readFrame(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read fixture %s: %w", path, err)
	}

	encoding, name, _ := charset.DetermineEncoding(data, "text/html")
	if name == "utf-8" || name == "UTF-8" {
		return string(data), nil
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, encoding.NewDecoder().Reader(bytes.NewReader(data))); err != nil {
		return "", fmt.Errorf("failed to decode fixture %s: %w", path, err)
	}
	return buf.String(), nil
}

// Navigate resets the page to its first frame
func (p *FixturePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.frames) == 0 {
		return fmt.Errorf("fixture has no frames")
	}
	p.URL = url
	p.frame = 0
	return ctx.Err()
}

// WaitForAny reports whether the current frame matches one of selectors
func (p *FixturePage) WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) bool {
	doc, err := p.current()
	if err != nil {
		return false
	}
	return doc.Find(strings.Join(selectors, ", ")).Length() > 0
}

// QueryAll returns the matches of selector in the current frame
func (p *FixturePage) QueryAll(ctx context.Context, selector string) ([]Node, error) {
	doc, err := p.current()
	if err != nil {
		return nil, err
	}

	var nodes []Node
	doc.Find(selector).Each(func(i int, s *goquery.Selection) {
		nodes = append(nodes, &domNode{sel: s})
	})
	return nodes, nil
}

// ScrollBy records amount and advances to the next frame
func (p *FixturePage) ScrollBy(ctx context.Context, amount float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Scrolls = append(p.Scrolls, amount)
	if p.frame < len(p.frames)-1 {
		p.frame++
	}
	return nil
}

// Evaluate records script and answers with FallbackHeight
func (p *FixturePage) Evaluate(ctx context.Context, script string, res interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Evaluated = append(p.Evaluated, script)
	switch out := res.(type) {
	case nil:
		return nil
	case *float64:
		*out = p.FallbackHeight
		return nil
	default:
		return fmt.Errorf("fixture cannot evaluate into %T", res)
	}
}

// Close is a no-op
func (p *FixturePage) Close() error {
	return nil
}

// Frame returns the index of the frame currently shown
func (p *FixturePage) Frame() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}

func (p *FixturePage) current() (*goquery.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.frames) == 0 {
		return nil, fmt.Errorf("fixture has no frames")
	}
	if doc, ok := p.docs[p.frame]; ok {
		return doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.frames[p.frame]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse frame %d: %w", p.frame, err)
	}
	p.docs[p.frame] = doc
	return doc, nil
}
