package browser

import (
	"context"
	"time"
)

// Page is the capability the scroll controller drives. Implementations are
// the live Chrome page and a recorded fixture.
type Page interface {
	// Navigate opens url, giving up after timeout
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// WaitForAny blocks until one of selectors matches or timeout elapses
	WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) bool

	// QueryAll returns every currently rendered element matching selector
	QueryAll(ctx context.Context, selector string) ([]Node, error)

	// ScrollBy scrolls the viewport down by amount pixels
	ScrollBy(ctx context.Context, amount float64) error

	// Evaluate runs script in the page and decodes its result into res
	Evaluate(ctx context.Context, script string, res interface{}) error

	// Close releases the page
	Close() error
}

// Node is one rendered element. Lookups on a Node never block.
type Node interface {
	// Query returns the first descendant matching selector, or nil
	Query(selector string) Node

	// Attribute returns the value of the named attribute
	Attribute(name string) (string, bool)

	// InnerHTML returns the markup of the element's children
	InnerHTML() (string, error)

	// InnerText returns the rendered text of the element
	InnerText() string

	// BoundingHeight returns the layout height, false when it was not measured
	BoundingHeight() (float64, bool)
}
