package sandbox

import (
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// reflected maps element properties onto the attributes they mirror.
var reflected = map[string]string{
	"id":          "id",
	"className":   "class",
	"href":        "href",
	"src":         "src",
	"alt":         "alt",
	"title":       "title",
	"name":        "name",
	"type":        "type",
	"placeholder": "placeholder",
	"htmlFor":     "for",
	"rel":         "rel",
	"target":      "target",
	"lang":        "lang",
	"role":        "role",
	"action":      "action",
	"method":      "method",
	"min":         "min",
	"max":         "max",
	"step":        "step",
	"pattern":     "pattern",
}

// booleanReflected maps boolean properties onto presence attributes.
var booleanReflected = map[string]string{
	"disabled":  "disabled",
	"checked":   "checked",
	"hidden":    "hidden",
	"required":  "required",
	"readOnly":  "readonly",
	"multiple":  "multiple",
	"selected":  "selected",
	"autofocus": "autofocus",
	"open":      "open",
}

// nodeAccessor implements goja.DynamicObject over one html.Node. The same
// accessor serves documents, fragments, elements, text and comments.
type nodeAccessor struct {
	d *dom
	n *html.Node
}

func (a *nodeAccessor) fn(f func(goja.FunctionCall) goja.Value) goja.Value {
	return a.d.vm.ToValue(f)
}

func (a *nodeAccessor) Get(key string) goja.Value {
	d, n, vm := a.d, a.n, a.d.vm

	if n.Type == html.DocumentNode && !isFragment(n) {
		if v, ok := a.documentGet(key); ok {
			return v
		}
	}
	if v, ok := a.eventGet(key); ok {
		return v
	}

	switch key {
	case "nodeType":
		return vm.ToValue(nodeType(n))
	case "nodeName":
		return vm.ToValue(nodeName(n))
	case "tagName", "localName":
		if n.Type != html.ElementNode {
			return goja.Undefined()
		}
		if key == "localName" {
			return vm.ToValue(n.Data)
		}
		return vm.ToValue(strings.ToUpper(n.Data))
	case "nodeValue", "data":
		if n.Type == html.TextNode || n.Type == html.CommentNode {
			return vm.ToValue(n.Data)
		}
		return goja.Null()
	case "textContent":
		if n.Type == html.DocumentNode && !isFragment(n) {
			return goja.Null()
		}
		return vm.ToValue(textOf(n))
	case "innerText":
		return vm.ToValue(textOf(n))
	case "innerHTML":
		return vm.ToValue(innerHTML(n))
	case "outerHTML":
		return vm.ToValue(serialize(n))
	case "value":
		return vm.ToValue(formValue(n))
	case "style":
		if n.Type != html.ElementNode {
			return goja.Undefined()
		}
		return vm.NewDynamicObject(&inlineStyle{d: d, n: n})
	case "classList":
		if n.Type != html.ElementNode {
			return goja.Undefined()
		}
		return vm.NewDynamicObject(&classList{d: d, n: n})
	case "dataset":
		if n.Type != html.ElementNode {
			return goja.Undefined()
		}
		return vm.NewDynamicObject(&dataset{d: d, n: n})
	case "attributes":
		attrs := make([]any, len(n.Attr))
		for i, at := range n.Attr {
			attrs[i] = map[string]any{"name": at.Key, "value": at.Val}
		}
		return vm.NewArray(attrs...)

	case "parentNode":
		if n.Parent == nil {
			return goja.Null()
		}
		return d.wrap(n.Parent)
	case "parentElement":
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			return goja.Null()
		}
		return d.wrap(n.Parent)
	case "children":
		return d.array(elementChildren(n))
	case "childNodes":
		return d.array(childNodes(n))
	case "childElementCount":
		return vm.ToValue(len(elementChildren(n)))
	case "firstChild":
		return d.wrap(n.FirstChild)
	case "lastChild":
		return d.wrap(n.LastChild)
	case "firstElementChild":
		kids := elementChildren(n)
		if len(kids) == 0 {
			return goja.Null()
		}
		return d.wrap(kids[0])
	case "lastElementChild":
		kids := elementChildren(n)
		if len(kids) == 0 {
			return goja.Null()
		}
		return d.wrap(kids[len(kids)-1])
	case "nextSibling":
		return d.wrap(n.NextSibling)
	case "previousSibling":
		return d.wrap(n.PrevSibling)
	case "nextElementSibling":
		return d.wrap(nextElement(n))
	case "previousElementSibling":
		return d.wrap(previousElement(n))
	case "ownerDocument":
		if n == d.document {
			return goja.Null()
		}
		if r := root(n); r.Type == html.DocumentNode && !isFragment(r) {
			return d.wrap(r)
		}
		return d.wrap(d.document)
	case "isConnected":
		return vm.ToValue(root(n) == d.document)

	case "getAttribute":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			if v, ok := getAttr(n, strings.ToLower(call.Argument(0).String())); ok {
				return vm.ToValue(v)
			}
			return goja.Null()
		})
	case "setAttribute":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			setAttr(n, strings.ToLower(call.Argument(0).String()), call.Argument(1).String())
			return goja.Undefined()
		})
	case "hasAttribute":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			_, ok := getAttr(n, strings.ToLower(call.Argument(0).String()))
			return vm.ToValue(ok)
		})
	case "removeAttribute":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			removeAttr(n, strings.ToLower(call.Argument(0).String()))
			return goja.Undefined()
		})
	case "toggleAttribute":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			name := strings.ToLower(call.Argument(0).String())
			_, present := getAttr(n, name)
			on := !present
			if force := call.Argument(1); !goja.IsUndefined(force) {
				on = force.ToBoolean()
			}
			if on {
				if !present {
					setAttr(n, name, "")
				}
			} else {
				removeAttr(n, name)
			}
			return vm.ToValue(on)
		})
	case "getAttributeNames":
		return a.fn(func(goja.FunctionCall) goja.Value {
			names := make([]any, len(n.Attr))
			for i, at := range n.Attr {
				names[i] = at.Key
			}
			return vm.NewArray(names...)
		})

	case "appendChild":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			child := d.mustNode(call.Argument(0), "appendChild")
			d.insert(n, child, nil)
			return call.Argument(0)
		})
	case "insertBefore":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			child := d.mustNode(call.Argument(0), "insertBefore")
			d.insert(n, child, d.unwrap(call.Argument(1)))
			return call.Argument(0)
		})
	case "removeChild":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			child := d.mustNode(call.Argument(0), "removeChild")
			if child.Parent != n {
				d.throw("NotFoundError", "the node to be removed is not a child of this node")
			}
			n.RemoveChild(child)
			return call.Argument(0)
		})
	case "replaceChild":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			replacement := d.mustNode(call.Argument(0), "replaceChild")
			old := d.mustNode(call.Argument(1), "replaceChild")
			if old.Parent != n {
				d.throw("NotFoundError", "the node to be replaced is not a child of this node")
			}
			if replacement != old {
				d.insert(n, replacement, old)
				n.RemoveChild(old)
			}
			return call.Argument(1)
		})
	case "append":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			for _, c := range d.toNodes(call.Arguments) {
				d.insert(n, c, nil)
			}
			return goja.Undefined()
		})
	case "prepend":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			first := n.FirstChild
			for _, c := range d.toNodes(call.Arguments) {
				d.insert(n, c, first)
			}
			return goja.Undefined()
		})
	case "before", "after", "replaceWith":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			parent := n.Parent
			if parent == nil {
				return goja.Undefined()
			}
			ref := n
			if key != "before" {
				ref = n.NextSibling
			}
			for _, c := range d.toNodes(call.Arguments) {
				if c == ref {
					ref = ref.NextSibling
				}
				d.insert(parent, c, ref)
			}
			if key == "replaceWith" && n.Parent == parent {
				parent.RemoveChild(n)
			}
			return goja.Undefined()
		})
	case "remove":
		return a.fn(func(goja.FunctionCall) goja.Value {
			detach(n)
			return goja.Undefined()
		})
	case "cloneNode":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			return d.wrap(cloneNode(n, call.Argument(0).ToBoolean()))
		})
	case "contains":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			other := d.unwrap(call.Argument(0))
			return vm.ToValue(other != nil && contains(n, other))
		})
	case "hasChildNodes":
		return a.fn(func(goja.FunctionCall) goja.Value {
			return vm.ToValue(n.FirstChild != nil)
		})

	case "querySelector":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			return d.wrap(cascadia.Query(n, d.compile(call.Argument(0).String())))
		})
	case "querySelectorAll":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			return d.array(cascadia.QueryAll(n, d.compile(call.Argument(0).String())))
		})
	case "matches":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(n.Type == html.ElementNode && d.compile(call.Argument(0).String()).Match(n))
		})
	case "closest":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			sel := d.compile(call.Argument(0).String())
			for c := n; c != nil; c = c.Parent {
				if c.Type == html.ElementNode && sel.Match(c) {
					return d.wrap(c)
				}
			}
			return goja.Null()
		})
	case "getElementsByTagName":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			tag := strings.ToLower(call.Argument(0).String())
			return d.array(findAll(n, func(c *html.Node) bool { return tag == "*" || c.Data == tag }))
		})
	case "getElementsByClassName":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			want := strings.Fields(call.Argument(0).String())
			return d.array(findAll(n, func(c *html.Node) bool { return hasClasses(c, want) }))
		})

	case "focus":
		return a.fn(func(goja.FunctionCall) goja.Value {
			if d.active != n {
				d.active = n
				d.fire(n, "focus", false)
			}
			return goja.Undefined()
		})
	case "blur":
		return a.fn(func(goja.FunctionCall) goja.Value {
			if d.active == n {
				d.active = nil
				d.fire(n, "blur", false)
			}
			return goja.Undefined()
		})
	case "click":
		return a.fn(func(goja.FunctionCall) goja.Value {
			d.click(n)
			return goja.Undefined()
		})
	case "getBoundingClientRect":
		return a.fn(func(goja.FunctionCall) goja.Value {
			return vm.ToValue(map[string]any{
				"x": 0, "y": 0, "top": 0, "left": 0, "right": 0, "bottom": 0, "width": 0, "height": 0,
			})
		})
	case "offsetWidth", "offsetHeight", "clientWidth", "clientHeight", "scrollTop", "scrollLeft":
		return vm.ToValue(0)
	}

	if n.Type == html.ElementNode {
		if attr, ok := reflected[key]; ok {
			v, _ := getAttr(n, attr)
			return vm.ToValue(v)
		}
		if attr, ok := booleanReflected[key]; ok {
			_, present := getAttr(n, attr)
			return vm.ToValue(present)
		}
	}
	if v, ok := d.expando(n, key); ok {
		return v
	}
	return nil
}

func (a *nodeAccessor) documentGet(key string) (goja.Value, bool) {
	d, n, vm := a.d, a.n, a.d.vm
	switch key {
	case "documentElement":
		return d.wrap(findElement(n, atom.Html)), true
	case "head":
		return d.wrap(findElement(n, atom.Head)), true
	case "body":
		return d.wrap(findElement(n, atom.Body)), true
	case "title":
		if t := findElement(n, atom.Title); t != nil {
			return vm.ToValue(strings.TrimSpace(textOf(t))), true
		}
		return vm.ToValue(""), true
	case "readyState":
		return vm.ToValue("complete"), true
	case "defaultView":
		return vm.GlobalObject(), true
	case "activeElement":
		if d.active != nil && root(d.active) == n {
			return d.wrap(d.active), true
		}
		return d.wrap(findElement(n, atom.Body)), true
	case "getElementById":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			id := call.Argument(0).String()
			found := findAll(n, func(c *html.Node) bool {
				v, ok := getAttr(c, "id")
				return ok && v == id
			})
			if len(found) == 0 {
				return goja.Null()
			}
			return d.wrap(found[0])
		}), true
	case "createElement", "createElementNS":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			tag := call.Argument(0)
			if key == "createElementNS" {
				tag = call.Argument(1)
			}
			return d.wrap(newElement(tag.String()))
		}), true
	case "createTextNode":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			return d.wrap(&html.Node{Type: html.TextNode, Data: call.Argument(0).String()})
		}), true
	case "createComment":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			return d.wrap(&html.Node{Type: html.CommentNode, Data: call.Argument(0).String()})
		}), true
	case "createDocumentFragment":
		return a.fn(func(goja.FunctionCall) goja.Value {
			return d.wrap(&html.Node{Type: html.DocumentNode, Data: fragmentData})
		}), true
	case "createEvent":
		return a.fn(func(call goja.FunctionCall) goja.Value {
			obj, err := vm.New(vm.Get("Event"), vm.ToValue(""))
			if err != nil {
				panic(err)
			}
			return obj
		}), true
	}
	return nil, false
}

func (a *nodeAccessor) Set(key string, val goja.Value) bool {
	d, n := a.d, a.n
	switch key {
	case "textContent", "innerText", "nodeValue", "data":
		d.setText(n, val.String())
		return true
	case "innerHTML":
		d.setHTML(n, val.String())
		return true
	case "outerHTML":
		if parent := n.Parent; parent != nil {
			holder := &html.Node{Type: html.DocumentNode, Data: fragmentData}
			d.setHTML(holder, val.String())
			d.insert(parent, holder, n)
			parent.RemoveChild(n)
		}
		return true
	case "value":
		setFormValue(n, val.String())
		return true
	case "style":
		setAttr(n, "style", val.String())
		return true
	case "title":
		if n.Type == html.DocumentNode {
			if t := findElement(n, atom.Title); t != nil {
				d.setText(t, val.String())
			}
			return true
		}
	}
	if n.Type == html.ElementNode {
		if attr, ok := reflected[key]; ok {
			setAttr(n, attr, val.String())
			return true
		}
		if attr, ok := booleanReflected[key]; ok {
			if val.ToBoolean() {
				setAttr(n, attr, "")
			} else {
				removeAttr(n, attr)
			}
			return true
		}
	}
	d.setExpando(n, key, val)
	return true
}

func (a *nodeAccessor) Has(key string) bool {
	if _, ok := a.d.expando(a.n, key); ok {
		return true
	}
	v := a.Get(key)
	return v != nil && !goja.IsUndefined(v)
}

func (a *nodeAccessor) Delete(key string) bool {
	delete(a.d.expandos[a.n], key)
	return true
}

func (a *nodeAccessor) Keys() []string {
	keys := make([]string, 0, len(a.d.expandos[a.n]))
	for k := range a.d.expandos[a.n] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nodeType(n *html.Node) int {
	switch n.Type {
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	case html.DocumentNode:
		if isFragment(n) {
			return 11
		}
		return 9
	case html.DoctypeNode:
		return 10
	default:
		return 1
	}
}

func nodeName(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		if isFragment(n) {
			return fragmentData
		}
		return "#document"
	case html.DoctypeNode:
		return n.Data
	default:
		return strings.ToUpper(n.Data)
	}
}

func hasClasses(n *html.Node, want []string) bool {
	if len(want) == 0 {
		return false
	}
	have := strings.Fields(attrValue(n, "class"))
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func attrValue(n *html.Node, key string) string {
	v, _ := getAttr(n, key)
	return v
}

func formValue(n *html.Node) string {
	switch n.DataAtom {
	case atom.Textarea:
		return textOf(n)
	case atom.Select:
		options := findAll(n, func(c *html.Node) bool { return c.DataAtom == atom.Option })
		for _, o := range options {
			if _, ok := getAttr(o, "selected"); ok {
				return optionValue(o)
			}
		}
		if len(options) > 0 {
			return optionValue(options[0])
		}
		return ""
	case atom.Option:
		return optionValue(n)
	}
	return attrValue(n, "value")
}

func optionValue(n *html.Node) string {
	if v, ok := getAttr(n, "value"); ok {
		return v
	}
	return strings.TrimSpace(textOf(n))
}

func setFormValue(n *html.Node, v string) {
	switch n.DataAtom {
	case atom.Textarea:
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		n.AppendChild(&html.Node{Type: html.TextNode, Data: v})
	case atom.Select:
		for _, o := range findAll(n, func(c *html.Node) bool { return c.DataAtom == atom.Option }) {
			if optionValue(o) == v {
				setAttr(o, "selected", "")
			} else {
				removeAttr(o, "selected")
			}
		}
	default:
		setAttr(n, "value", v)
	}
}
