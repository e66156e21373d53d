package crawler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"sjsage522/feedharvester/internal/browser"
	"sjsage522/feedharvester/logger"
	errs "sjsage522/feedharvester/pkg/errors"
)

var (
	statusIDRegex  = regexp.MustCompile(`/status/(\d+)`)
	lineBreakRegex = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockEndRegex  = regexp.MustCompile(`(?i)</(div|p|li)>`)
	tagRegex       = regexp.MustCompile(`<[^>]+>`)
)

// naiveLayouts are tried when the datetime attribute carries no offset
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Extractor turns feed item nodes into candidates
type Extractor struct {
	Selectors   Selectors
	IDExtractor IDExtractorFunc

	log *logger.Logger
}

// NewExtractor creates an extractor for the given selectors
func NewExtractor(sel Selectors) *Extractor {
	return &Extractor{
		Selectors:   sel,
		IDExtractor: StatusID,
		log:         logger.Nop(),
	}
}

// SetLogger sets where field extraction failures are reported, at debug level
func (e *Extractor) SetLogger(l *logger.Logger) {
	e.log = l
}

func (e *Extractor) fieldFailed(field, message string, err error) {
	if e.log == nil {
		return
	}
	e.log.Debug().
		Err(errs.NewExtraction("extractor", message, err)).
		Str("field", field).
		Msg("Field extraction failed")
}

// StatusID extracts the numeric suffix of a /status/ permalink
func StatusID(href string) (int64, error) {
	m := statusIDRegex.FindStringSubmatch(href)
	if m == nil {
		return 0, fmt.Errorf("no status id in %q", href)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("status id out of range in %q: %w", href, err)
	}
	return id, nil
}

// Extract reads one feed item. The second result is false when the item has
// no usable identifier and must be skipped.
func (e *Extractor) Extract(item browser.Node) (Candidate, bool) {
	if item == nil {
		return Candidate{}, false
	}

	id, ok := e.extractID(item)
	if !ok {
		return Candidate{}, false
	}

	return Candidate{
		ID:         id,
		CreatedAt:  e.extractTime(item),
		Content:    e.extractContent(item),
		ReplyCount: e.extractCount(item, e.Selectors.Reply),
		ShareCount: e.extractCount(item, e.Selectors.Share),
		LikeCount:  e.extractCount(item, e.Selectors.Like),
	}, true
}

func (e *Extractor) extractID(item browser.Node) (int64, bool) {
	link := item.Query(e.Selectors.StatusLink)
	if link == nil {
		e.fieldFailed("id", "no status link", nil)
		return 0, false
	}
	href, ok := link.Attribute("href")
	if !ok || href == "" {
		e.fieldFailed("id", "status link has no href", nil)
		return 0, false
	}

	extract := e.IDExtractor
	if extract == nil {
		extract = StatusID
	}
	id, err := extract(href)
	if err != nil {
		e.fieldFailed("id", "unreadable status link", err)
		return 0, false
	}
	return id, true
}

func (e *Extractor) extractTime(item browser.Node) *time.Time {
	if e.Selectors.Time == "" {
		return nil
	}
	timeEl := item.Query(e.Selectors.Time)
	if timeEl == nil {
		return nil
	}
	raw, ok := timeEl.Attribute("datetime")
	if !ok {
		return nil
	}
	t, ok := ParseTimestamp(raw)
	if !ok {
		e.fieldFailed("created_at", fmt.Sprintf("unparseable datetime %q", raw), nil)
		return nil
	}
	return &t
}

// ParseTimestamp parses an ISO-8601 instant and drops its offset, keeping the
// wall clock. The result is in UTC only as a carrier for the naive value.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	raw = strings.Replace(raw, "Z", "+00:00", 1)

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		parsed := false
		for _, layout := range naiveLayouts {
			if t, err = time.Parse(layout, raw); err == nil {
				parsed = true
				break
			}
		}
		if !parsed {
			return time.Time{}, false
		}
	}

	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), true
}

// extractContent prefers the markup of the language-tagged body, which keeps
// line structure, and falls back to the rendered text
func (e *Extractor) extractContent(item browser.Node) string {
	node := item
	if e.Selectors.Content != "" {
		if content := item.Query(e.Selectors.Content); content != nil {
			node = content
		}
	}

	markup, err := node.InnerHTML()
	if err != nil {
		e.fieldFailed("content", "markup unavailable, using rendered text", err)
		return strings.TrimSpace(item.InnerText())
	}
	return MarkupToText(markup)
}

// MarkupToText renders line breaks and block ends as newlines, strips the
// remaining tags and decodes entities
func MarkupToText(markup string) string {
	text := lineBreakRegex.ReplaceAllString(markup, "\n")
	text = blockEndRegex.ReplaceAllString(text, "\n")
	text = tagRegex.ReplaceAllString(text, "")
	return strings.TrimSpace(html.UnescapeString(text))
}

func (e *Extractor) extractCount(item browser.Node, selector string) *int64 {
	if selector == "" {
		return nil
	}
	widget := item.Query(selector)
	if widget == nil {
		return nil
	}
	txt := strings.ReplaceAll(strings.TrimSpace(widget.InnerText()), ",", "")
	n, ok := ParseMetric(txt)
	if !ok {
		if txt != "" {
			e.fieldFailed("count", fmt.Sprintf("unparseable count %q at %s", txt, selector), nil)
		}
		return nil
	}
	return &n
}
