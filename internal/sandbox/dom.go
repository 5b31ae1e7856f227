package sandbox

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/felixgeelhaar/verdict/internal/markup"
)

// fragmentData marks a DocumentNode created by createDocumentFragment.
const fragmentData = "#document-fragment"

// dom exposes a document tree to a goja runtime. Wrappers are cached so
// the same node always maps to the same JS object.
type dom struct {
	vm       *goja.Runtime
	loop     *eventLoop
	document *html.Node
	// window is the event target behind the global object.
	window *html.Node

	wrappers  map[*html.Node]*goja.Object
	nodes     map[*goja.Object]*html.Node
	expandos  map[*html.Node]map[string]goja.Value
	listeners map[*html.Node]map[string][]*listener
	active    *html.Node
}

func newDOM(vm *goja.Runtime, loop *eventLoop) *dom {
	return &dom{
		vm:        vm,
		loop:      loop,
		window:    &html.Node{Type: html.DocumentNode, Data: "#window"},
		wrappers:  make(map[*html.Node]*goja.Object),
		nodes:     make(map[*goja.Object]*html.Node),
		expandos:  make(map[*html.Node]map[string]goja.Value),
		listeners: make(map[*html.Node]map[string][]*listener),
	}
}

// register installs document, window and friends, seeding the body with
// markup.
func (d *dom) register(markup string) error {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("parse provided html: %w", err)
	}
	d.document = doc

	global := d.vm.GlobalObject()
	d.vm.Set("window", global)
	d.vm.Set("self", global)
	d.vm.Set("document", d.wrap(doc))
	d.vm.Set("getComputedStyle", d.getComputedStyle)
	d.vm.Set("DOMParser", d.domParser)
	d.vm.Set("addEventListener", d.addEventListener(d.window))
	d.vm.Set("removeEventListener", d.removeEventListener(d.window))
	d.vm.Set("dispatchEvent", d.dispatchEventFunc(d.window))
	d.vm.Set("requestAnimationFrame", d.requestAnimationFrame)
	d.vm.Set("cancelAnimationFrame", d.loop.clear)
	d.vm.Set("Node", map[string]any{
		"ELEMENT_NODE":           1,
		"TEXT_NODE":              3,
		"COMMENT_NODE":           8,
		"DOCUMENT_NODE":          9,
		"DOCUMENT_FRAGMENT_NODE": 11,
	})
	d.vm.Set("innerWidth", 1280)
	d.vm.Set("innerHeight", 720)

	_, err = d.vm.RunString(eventClasses)
	return err
}

func (d *dom) wrap(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if n == d.window {
		return d.vm.GlobalObject()
	}
	if obj, ok := d.wrappers[n]; ok {
		return obj
	}
	obj := d.vm.NewDynamicObject(&nodeAccessor{d: d, n: n})
	d.wrappers[n] = obj
	d.nodes[obj] = n
	return obj
}

func (d *dom) unwrap(v goja.Value) *html.Node {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	if obj == d.vm.GlobalObject() {
		return d.window
	}
	if n, ok := d.nodes[obj]; ok {
		return n
	}
	for n, cached := range d.wrappers {
		if cached.SameAs(obj) {
			return n
		}
	}
	return nil
}

// mustNode unwraps v or throws a TypeError naming the method.
func (d *dom) mustNode(v goja.Value, method string) *html.Node {
	n := d.unwrap(v)
	if n == nil || n == d.window {
		panic(d.vm.NewTypeError(fmt.Sprintf("%s: parameter is not of type 'Node'", method)))
	}
	return n
}

func (d *dom) array(nodes []*html.Node) goja.Value {
	items := make([]any, len(nodes))
	for i, n := range nodes {
		items[i] = d.wrap(n)
	}
	return d.vm.NewArray(items...)
}

// throw raises a DOMException-like error with the given name.
func (d *dom) throw(name, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	obj, err := d.vm.New(d.vm.Get("Error"), d.vm.ToValue(msg))
	if err != nil {
		panic(d.vm.NewTypeError(msg))
	}
	obj.Set("name", name)
	panic(obj)
}

func (d *dom) compile(selector string) cascadia.SelectorGroup {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		d.throw("SyntaxError", "'%s' is not a valid selector", selector)
	}
	return sel
}

func (d *dom) expando(n *html.Node, key string) (goja.Value, bool) {
	v, ok := d.expandos[n][key]
	return v, ok
}

func (d *dom) setExpando(n *html.Node, key string, v goja.Value) {
	if d.expandos[n] == nil {
		d.expandos[n] = make(map[string]goja.Value)
	}
	d.expandos[n][key] = v
}

func (d *dom) getComputedStyle(call goja.FunctionCall) goja.Value {
	n := d.mustNode(call.Argument(0), "getComputedStyle")
	styler, err := markup.NewStyler(root(n))
	if err != nil {
		panic(d.vm.NewGoError(err))
	}
	return d.vm.NewDynamicObject(&computedStyle{vm: d.vm, style: styler.Computed(n)})
}

func (d *dom) domParser(call goja.ConstructorCall) *goja.Object {
	call.This.Set("parseFromString", func(c goja.FunctionCall) goja.Value {
		doc, err := html.Parse(strings.NewReader(c.Argument(0).String()))
		if err != nil {
			panic(d.vm.NewGoError(err))
		}
		return d.wrap(doc)
	})
	return nil
}

func (d *dom) requestAnimationFrame(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(d.vm.NewTypeError("requestAnimationFrame: callback must be a function"))
	}
	start := time.Now()
	id := d.loop.add(func(this goja.Value, _ ...goja.Value) (goja.Value, error) {
		return fn(this, d.vm.ToValue(float64(time.Since(start).Microseconds())/1000))
	}, 16*time.Millisecond, false)
	return d.vm.ToValue(id)
}

// Tree helpers.

func root(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

func isFragment(n *html.Node) bool {
	return n.Type == html.DocumentNode && n.Data == fragmentData
}

func contains(ancestor, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// insert places child under parent before ref, or last when ref is nil.
// Fragments contribute their children.
func (d *dom) insert(parent, child, ref *html.Node) {
	if parent.Type != html.ElementNode && parent.Type != html.DocumentNode {
		d.throw("HierarchyRequestError", "this node type does not support children")
	}
	if contains(child, parent) {
		d.throw("HierarchyRequestError", "the new child contains the parent")
	}
	if ref != nil && ref.Parent != parent {
		d.throw("NotFoundError", "the node before which to insert is not a child of this node")
	}
	if ref == child {
		ref = child.NextSibling
	}
	if isFragment(child) {
		for c := child.FirstChild; c != nil; {
			next := c.NextSibling
			child.RemoveChild(c)
			parent.InsertBefore(c, ref)
			c = next
		}
		return
	}
	detach(child)
	parent.InsertBefore(child, ref)
}

func (d *dom) removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

// toNodes converts append/prepend style arguments, turning strings into
// text nodes.
func (d *dom) toNodes(args []goja.Value) []*html.Node {
	out := make([]*html.Node, 0, len(args))
	for _, arg := range args {
		if n := d.unwrap(arg); n != nil && n != d.window {
			out = append(out, n)
			continue
		}
		out = append(out, &html.Node{Type: html.TextNode, Data: arg.String()})
	}
	return out
}

func (d *dom) setHTML(n *html.Node, markup string) {
	context := n
	if n.Type != html.ElementNode {
		context = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		d.throw("SyntaxError", "failed to parse markup: %v", err)
	}
	d.removeChildren(n)
	for _, c := range nodes {
		n.AppendChild(c)
	}
}

func (d *dom) setText(n *html.Node, text string) {
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		n.Data = text
		return
	}
	d.removeChildren(n)
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

func textOf(n *html.Node) string {
	switch n.Type {
	case html.TextNode, html.CommentNode:
		return n.Data
	}
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
	return b.String()
}

func serialize(n *html.Node) string {
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	return buf.String()
}

func innerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func childNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func nextElement(n *html.Node) *html.Node {
	for c := n.NextSibling; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func previousElement(n *html.Node) *html.Node {
	for c := n.PrevSibling; c != nil; c = c.PrevSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	found := findAll(n, func(c *html.Node) bool { return c.DataAtom == a })
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func newElement(tag string) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

func cloneNode(n *html.Node, deep bool) *html.Node {
	clone := &html.Node{
		Type:      n.Type,
		Data:      n.Data,
		DataAtom:  n.DataAtom,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	if deep {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			clone.AppendChild(cloneNode(c, true))
		}
	}
	return clone
}
