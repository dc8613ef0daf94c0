package selector

import (
	"strings"

	"golang.org/x/net/html"
)

// Walk visits n and all descendants in document order until fn returns false.
func Walk(n *html.Node, fn func(*html.Node) bool) bool {
	if n == nil {
		return true
	}
	if n.Type == html.ElementNode && !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !Walk(c, fn) {
			return false
		}
	}
	return true
}

// Query returns the first element under root (inclusive) matching the
// selector, or nil.
func Query(root *html.Node, sel Selector) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if sel.Match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// QueryAll returns every element under root (inclusive) matching the selector
// in document order.
func QueryAll(root *html.Node, sel Selector) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) bool {
		if sel.Match(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Closest returns the nearest ancestor of n (inclusive) matching the
// selector, or nil.
func Closest(n *html.Node, sel Selector) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && sel.Match(p) {
			return p
		}
	}
	return nil
}

// Text returns the concatenated text content of n with runs of whitespace
// collapsed, roughly matching what a renderer would show for inline content.
func Text(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	if n != nil {
		visit(n)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// AttrValue returns the value of the named attribute, or "".
func AttrValue(n *html.Node, name string) string { return attrValue(n, name) }

func attrValue(n *html.Node, name string) string {
	v, _ := lookupAttr(n, name)
	return v
}

func lookupAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}
