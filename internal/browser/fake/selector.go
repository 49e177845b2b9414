package fake

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// selector is the supported CSS subset: one compound selector made of an
// optional tag, #id, .classes and at most one [attr] or [attr=value] part.
// Combinators are not supported.
type selector struct {
	tag      string
	id       string
	classes  []string
	attrKey  string
	attrVal  string
	hasAttr  bool
	wantsVal bool
}

func parseSelector(raw string) (*selector, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty selector")
	}
	if strings.ContainsAny(raw, " >+~:,") {
		return nil, fmt.Errorf("unsupported selector %q: only simple compound selectors", raw)
	}

	sel := &selector{}
	rest := raw
	if i := strings.IndexAny(rest, "#.["); i != 0 {
		if i < 0 {
			sel.tag = rest
			return sel, nil
		}
		sel.tag = rest[:i]
		rest = rest[i:]
	}

	for rest != "" {
		switch rest[0] {
		case '#':
			value, next := untilDelim(rest[1:])
			if value == "" {
				return nil, fmt.Errorf("invalid selector %q: empty id", raw)
			}
			sel.id = value
			rest = next

		case '.':
			value, next := untilDelim(rest[1:])
			if value == "" {
				return nil, fmt.Errorf("invalid selector %q: empty class", raw)
			}
			sel.classes = append(sel.classes, value)
			rest = next

		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("invalid selector %q: unterminated attribute", raw)
			}
			body := rest[1:end]
			rest = rest[end+1:]

			key, value, found := strings.Cut(body, "=")
			if key == "" {
				return nil, fmt.Errorf("invalid selector %q: empty attribute name", raw)
			}
			sel.hasAttr = true
			sel.attrKey = key
			sel.wantsVal = found
			sel.attrVal = strings.Trim(value, `"'`)

		default:
			return nil, fmt.Errorf("invalid selector %q", raw)
		}
	}

	return sel, nil
}

func untilDelim(s string) (value, rest string) {
	i := strings.IndexAny(s, "#.[")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}

func (s *selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && n.Data != s.tag {
		return false
	}
	if s.id != "" && attrValue(n, "id") != s.id {
		return false
	}
	for _, class := range s.classes {
		if !hasClass(n, class) {
			return false
		}
	}
	if s.hasAttr {
		got, ok := lookupAttr(n, s.attrKey)
		if !ok {
			return false
		}
		if s.wantsVal && got != s.attrVal {
			return false
		}
	}
	return true
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrValue(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// textContent returns the trimmed text of the node's subtree.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// findFirst returns the first element in document order accepted by match.
func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if got := findFirst(c, match); got != nil {
			return got
		}
	}
	return nil
}
