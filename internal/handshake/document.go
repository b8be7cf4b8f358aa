package handshake

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Document is a parsed host page.
type Document struct {
	root *html.Node
}

func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse host page: %w", err)
	}
	return &Document{root: root}, nil
}

func ParseDocumentString(s string) (*Document, error) {
	return ParseDocument(strings.NewReader(s))
}

// ElementByID returns the first element whose id attribute equals id.
func (d *Document) ElementByID(id string) *html.Node {
	return d.find(func(n *html.Node) bool {
		v, ok := attr(n, "id")
		return ok && v == id
	})
}

// FirstWithAttr returns the first element in document order carrying a
// non-blank name attribute.
func (d *Document) FirstWithAttr(name string) *html.Node {
	return d.find(func(n *html.Node) bool {
		return attrValue(n, name) != ""
	})
}

func (d *Document) find(match func(*html.Node) bool) *html.Node {
	if d == nil || d.root == nil {
		return nil
	}
	var walk func(*html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && match(n) {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(d.root)
}

func attr(n *html.Node, name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// attrValue returns the trimmed attribute value, "" when missing or blank.
func attrValue(n *html.Node, name string) string {
	v, _ := attr(n, name)
	return strings.TrimSpace(v)
}
