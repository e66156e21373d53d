package browser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HeightAttr carries a recorded layout height on fixture items
const HeightAttr = "data-height"

// domNode implements Node on top of a goquery selection
type domNode struct {
	sel       *goquery.Selection
	text      string
	hasText   bool
	height    float64
	hasHeight bool
}

// NewNode wraps the first element of sel
func NewNode(sel *goquery.Selection) Node {
	if sel == nil || sel.Length() == 0 {
		return nil
	}
	return &domNode{sel: sel.First()}
}

// ParseNode parses the outer HTML of a single element
func ParseNode(outerHTML string) (Node, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(outerHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse element: %w", err)
	}
	root := doc.Find("body").Children().First()
	if root.Length() == 0 {
		return nil, fmt.Errorf("no element in markup")
	}
	return &domNode{sel: root}, nil
}

// withLayout attaches browser-measured text and height to a parsed node
func withLayout(n Node, text string, height float64) Node {
	dn, ok := n.(*domNode)
	if !ok {
		return n
	}
	dn.text, dn.hasText = text, true
	dn.height, dn.hasHeight = height, height > 0
	return dn
}

func (n *domNode) Query(selector string) Node {
	return NewNode(n.sel.Find(selector))
}

func (n *domNode) Attribute(name string) (string, bool) {
	return n.sel.Attr(name)
}

func (n *domNode) InnerHTML() (string, error) {
	return n.sel.Html()
}

func (n *domNode) InnerText() string {
	if n.hasText {
		return n.text
	}
	return n.sel.Text()
}

func (n *domNode) BoundingHeight() (float64, bool) {
	if n.hasHeight {
		return n.height, true
	}
	// Recorded fixtures carry their layout height as an attribute
	if raw, ok := n.sel.Attr(HeightAttr); ok {
		h, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err == nil && h > 0 {
			return h, true
		}
	}
	return 0, false
}
