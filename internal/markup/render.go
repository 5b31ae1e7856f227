package markup

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a rendered, inert page.
type Document struct {
	Root   *html.Node
	HTML   string
	CSS    string
	styler *Styler
}

// Render parses markup with scripting disabled, strips everything that
// could execute or navigate, injects css as a trailing <style> in <head>,
// and prepares the cascade.
func Render(markup, css string) (*Document, error) {
	root, err := html.ParseWithOptions(strings.NewReader(markup), html.ParseOptionEnableScripting(false))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	sanitize(root)
	if strings.TrimSpace(css) != "" {
		injectStyle(root, css)
	}
	styler, err := NewStyler(root)
	if err != nil {
		return nil, err
	}
	return &Document{Root: root, HTML: markup, CSS: css, styler: styler}, nil
}

func injectStyle(root *html.Node, css string) {
	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: css})

	if head := findElement(root, atom.Head); head != nil {
		head.AppendChild(style)
		return
	}
	root.AppendChild(style)
}

// sanitize removes script elements, inline event handlers, javascript:
// URLs and meta refresh directives.
func sanitize(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && (c.DataAtom == atom.Script || isMetaRefresh(c)) {
			n.RemoveChild(c)
		} else {
			sanitize(c)
		}
		c = next
	}
	if n.Type != html.ElementNode {
		return
	}
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") || key == "srcdoc" {
			continue
		}
		if urlAttrs[key] && strings.HasPrefix(strings.ToLower(strings.TrimSpace(a.Val)), "javascript:") {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

var urlAttrs = map[string]bool{"href": true, "src": true, "action": true, "formaction": true, "xlink:href": true}

func isMetaRefresh(n *html.Node) bool {
	return n.DataAtom == atom.Meta && strings.EqualFold(attr(n, "http-equiv"), "refresh")
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// QueryAll returns every element matching a selector group in document
// order.
func (d *Document) QueryAll(selector string) ([]*html.Node, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return cascadia.QueryAll(d.Root, sel), nil
}

// Query returns the first matching element, or nil.
func (d *Document) Query(selector string) (*html.Node, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return cascadia.Query(d.Root, sel), nil
}

// ComputedStyle returns the computed style of n.
func (d *Document) ComputedStyle(n *html.Node) Style {
	return d.styler.Computed(n)
}

// Serialize renders the parsed tree back to markup.
func (d *Document) Serialize() string {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.Root); err != nil {
		return d.HTML
	}
	return buf.String()
}

// Text returns the trimmed text of n with runs of whitespace collapsed.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	return strings.Join(strings.Fields(textContent(n)), " ")
}
