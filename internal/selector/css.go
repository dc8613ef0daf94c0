// Package selector locates semantically-equivalent UI elements across a page
// structure that changes shape without notice. Each logical role carries an
// ordered list of lookup strategies; resolution tries them top to bottom and
// treats absence as a normal outcome, never an error.
package selector

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Selector is a parsed CSS selector covering the subset the strategy tables
// need: tag, #id, .class, [attr], [attr=v], [attr^=v], [attr$=v], [attr*=v],
// :not([...]), compounds of those, and the descendant combinator.
type Selector struct {
	raw   string
	parts []compound
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
	nots    []attrMatch
}

type attrMatch struct {
	name string
	op   byte // 0 = presence, '=', '^', '$', '*'
	val  string
}

// Parse parses a selector string.
func Parse(s string) (Selector, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Selector{}, fmt.Errorf("empty selector")
	}
	sel := Selector{raw: s}
	for _, f := range fields {
		c, err := parseCompound(f)
		if err != nil {
			return Selector{}, fmt.Errorf("selector %q: %w", s, err)
		}
		sel.parts = append(sel.parts, c)
	}
	return sel, nil
}

// MustParse parses a selector and panics on error. Used for the package-level
// strategy tables, which are validated by tests.
func MustParse(s string) Selector {
	sel, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sel
}

// String returns the original selector text.
func (s Selector) String() string { return s.raw }

func parseCompound(src string) (compound, error) {
	var c compound
	i := 0
	// Leading tag name.
	for i < len(src) && (isNameByte(src[i]) || src[i] == '*') {
		i++
	}
	if i > 0 {
		if src[:i] != "*" {
			c.tag = strings.ToLower(src[:i])
		}
	}
	for i < len(src) {
		switch src[i] {
		case '#':
			j := i + 1
			for j < len(src) && isNameByte(src[j]) {
				j++
			}
			if j == i+1 {
				return c, fmt.Errorf("empty id at %d", i)
			}
			c.id = src[i+1 : j]
			i = j
		case '.':
			j := i + 1
			for j < len(src) && isNameByte(src[j]) {
				j++
			}
			if j == i+1 {
				return c, fmt.Errorf("empty class at %d", i)
			}
			c.classes = append(c.classes, src[i+1:j])
			i = j
		case '[':
			a, n, err := parseAttr(src[i:])
			if err != nil {
				return c, err
			}
			c.attrs = append(c.attrs, a)
			i += n
		case ':':
			if !strings.HasPrefix(src[i:], ":not(") {
				return c, fmt.Errorf("unsupported pseudo-class at %d", i)
			}
			rest := src[i+len(":not("):]
			end := strings.IndexByte(rest, ')')
			if end < 0 {
				return c, fmt.Errorf("unterminated :not at %d", i)
			}
			inner := rest[:end]
			if !strings.HasPrefix(inner, "[") {
				return c, fmt.Errorf(":not supports attribute selectors only")
			}
			a, n, err := parseAttr(inner)
			if err != nil {
				return c, err
			}
			if n != len(inner) {
				return c, fmt.Errorf("trailing bytes in :not(%s)", inner)
			}
			c.nots = append(c.nots, a)
			i += len(":not(") + end + 1
		default:
			return c, fmt.Errorf("unexpected byte %q at %d", src[i], i)
		}
	}
	return c, nil
}

// parseAttr parses one [attr...] group starting at src[0]=='[' and returns the
// match plus the number of bytes consumed.
func parseAttr(src string) (attrMatch, int, error) {
	end := strings.IndexByte(src, ']')
	if end < 0 {
		return attrMatch{}, 0, fmt.Errorf("unterminated attribute selector")
	}
	body := src[1:end]

	var m attrMatch
	opIdx := strings.IndexAny(body, "=^$*")
	if opIdx < 0 {
		m.name = strings.ToLower(body)
		if m.name == "" {
			return m, 0, fmt.Errorf("empty attribute name")
		}
		return m, end + 1, nil
	}

	m.name = strings.ToLower(body[:opIdx])
	rest := body[opIdx:]
	switch {
	case strings.HasPrefix(rest, "^="):
		m.op, rest = '^', rest[2:]
	case strings.HasPrefix(rest, "$="):
		m.op, rest = '$', rest[2:]
	case strings.HasPrefix(rest, "*="):
		m.op, rest = '*', rest[2:]
	case strings.HasPrefix(rest, "="):
		m.op, rest = '=', rest[1:]
	default:
		return m, 0, fmt.Errorf("malformed attribute operator in [%s]", body)
	}
	m.val = strings.Trim(rest, `"'`)
	if m.name == "" {
		return m, 0, fmt.Errorf("empty attribute name in [%s]", body)
	}
	return m, end + 1, nil
}

func isNameByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '-' || b == '_'
}

// Match reports whether n matches the selector, considering ancestors for
// descendant combinators.
func (s Selector) Match(n *html.Node) bool {
	if len(s.parts) == 0 || n == nil || n.Type != html.ElementNode {
		return false
	}
	last := s.parts[len(s.parts)-1]
	if !last.match(n) {
		return false
	}
	// Remaining compounds must match some chain of ancestors, nearest-last.
	idx := len(s.parts) - 2
	for p := n.Parent; p != nil && idx >= 0; p = p.Parent {
		if p.Type == html.ElementNode && s.parts[idx].match(p) {
			idx--
		}
	}
	return idx < 0
}

func (c compound) match(n *html.Node) bool {
	if c.tag != "" && c.tag != n.Data {
		return false
	}
	if c.id != "" && attrValue(n, "id") != c.id {
		return false
	}
	for _, cls := range c.classes {
		if !hasClass(n, cls) {
			return false
		}
	}
	for _, a := range c.attrs {
		if !a.match(n) {
			return false
		}
	}
	for _, a := range c.nots {
		if a.match(n) {
			return false
		}
	}
	return true
}

func (a attrMatch) match(n *html.Node) bool {
	val, ok := lookupAttr(n, a.name)
	if !ok {
		return false
	}
	switch a.op {
	case 0:
		return true
	case '=':
		return val == a.val
	case '^':
		return a.val != "" && strings.HasPrefix(val, a.val)
	case '$':
		return a.val != "" && strings.HasSuffix(val, a.val)
	case '*':
		return a.val != "" && strings.Contains(val, a.val)
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attrValue(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}
