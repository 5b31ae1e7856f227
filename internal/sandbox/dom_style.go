package sandbox

import (
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/felixgeelhaar/verdict/internal/markup"
)

type declaration struct {
	property string
	value    string
}

// inlineStyle is element.style, backed by the style attribute.
type inlineStyle struct {
	d *dom
	n *html.Node
}

func (s *inlineStyle) declarations() []declaration {
	decls := markup.ParseDeclarations(attrValue(s.n, "style"))
	out := make([]declaration, 0, len(decls))
	for _, decl := range decls {
		value := decl.Value
		if decl.Important {
			value += " !important"
		}
		out = append(out, declaration{property: strings.ToLower(decl.Property), value: value})
	}
	return out
}

func (s *inlineStyle) write(decls []declaration) {
	if len(decls) == 0 {
		removeAttr(s.n, "style")
		return
	}
	parts := make([]string, len(decls))
	for i, decl := range decls {
		parts[i] = decl.property + ": " + decl.value + ";"
	}
	setAttr(s.n, "style", strings.Join(parts, " "))
}

func (s *inlineStyle) lookup(property string) string {
	for _, decl := range s.declarations() {
		if decl.property == property {
			return strings.TrimSuffix(decl.value, " !important")
		}
	}
	return ""
}

func (s *inlineStyle) set(property, value string) {
	decls := s.declarations()
	out := decls[:0]
	replaced := false
	for _, decl := range decls {
		if decl.property != property {
			out = append(out, decl)
			continue
		}
		if value != "" && !replaced {
			out = append(out, declaration{property: property, value: value})
			replaced = true
		}
	}
	if value != "" && !replaced {
		out = append(out, declaration{property: property, value: value})
	}
	s.write(out)
}

func (s *inlineStyle) Get(key string) goja.Value {
	vm := s.d.vm
	switch key {
	case "cssText":
		return vm.ToValue(attrValue(s.n, "style"))
	case "length":
		return vm.ToValue(len(s.declarations()))
	case "getPropertyValue":
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(s.lookup(markup.PropertyName(call.Argument(0).String())))
		})
	case "setProperty":
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			value := call.Argument(1).String()
			if goja.IsUndefined(call.Argument(1)) || goja.IsNull(call.Argument(1)) {
				value = ""
			}
			s.set(markup.PropertyName(call.Argument(0).String()), value)
			return goja.Undefined()
		})
	case "removeProperty":
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			name := markup.PropertyName(call.Argument(0).String())
			old := s.lookup(name)
			s.set(name, "")
			return vm.ToValue(old)
		})
	}
	if i, err := strconv.Atoi(key); err == nil {
		decls := s.declarations()
		if i >= 0 && i < len(decls) {
			return vm.ToValue(decls[i].property)
		}
		return goja.Undefined()
	}
	return vm.ToValue(s.lookup(markup.PropertyName(key)))
}

func (s *inlineStyle) Set(key string, val goja.Value) bool {
	if key == "cssText" {
		setAttr(s.n, "style", val.String())
		return true
	}
	value := val.String()
	if goja.IsNull(val) || goja.IsUndefined(val) {
		value = ""
	}
	s.set(markup.PropertyName(key), value)
	return true
}

func (s *inlineStyle) Has(key string) bool {
	return true
}

func (s *inlineStyle) Delete(key string) bool {
	s.set(markup.PropertyName(key), "")
	return true
}

func (s *inlineStyle) Keys() []string {
	decls := s.declarations()
	keys := make([]string, len(decls))
	for i, decl := range decls {
		keys[i] = decl.property
	}
	return keys
}

// computedStyle is the read-only result of getComputedStyle.
type computedStyle struct {
	vm    *goja.Runtime
	style markup.Style
}

func (c *computedStyle) Get(key string) goja.Value {
	switch key {
	case "getPropertyValue":
		return c.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return c.vm.ToValue(c.style.Get(call.Argument(0).String()))
		})
	case "length":
		return c.vm.ToValue(len(c.style))
	}
	return c.vm.ToValue(c.style.Get(key))
}

func (c *computedStyle) Set(string, goja.Value) bool { return false }
func (c *computedStyle) Has(string) bool             { return true }
func (c *computedStyle) Delete(string) bool          { return false }

func (c *computedStyle) Keys() []string {
	keys := make([]string, 0, len(c.style))
	for k := range c.style {
		keys = append(keys, k)
	}
	return keys
}

// classList is element.classList, backed by the class attribute.
type classList struct {
	d *dom
	n *html.Node
}

func (c *classList) tokens() []string {
	return strings.Fields(attrValue(c.n, "class"))
}

func (c *classList) write(tokens []string) {
	setAttr(c.n, "class", strings.Join(tokens, " "))
}

func (c *classList) has(token string) bool {
	for _, t := range c.tokens() {
		if t == token {
			return true
		}
	}
	return false
}

func (c *classList) add(token string) {
	if !c.has(token) {
		c.write(append(c.tokens(), token))
	}
}

func (c *classList) remove(token string) {
	tokens := c.tokens()
	out := tokens[:0]
	for _, t := range tokens {
		if t != token {
			out = append(out, t)
		}
	}
	c.write(out)
}

func (c *classList) Get(key string) goja.Value {
	vm := c.d.vm
	switch key {
	case "length":
		return vm.ToValue(len(c.tokens()))
	case "value":
		return vm.ToValue(attrValue(c.n, "class"))
	case "add":
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			for _, arg := range call.Arguments {
				c.add(c.validToken(arg.String()))
			}
			return goja.Undefined()
		})
	case "remove":
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			for _, arg := range call.Arguments {
				c.remove(c.validToken(arg.String()))
			}
			return goja.Undefined()
		})
	case "contains":
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(c.has(call.Argument(0).String()))
		})
	case "toggle":
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			token := c.validToken(call.Argument(0).String())
			on := !c.has(token)
			if force := call.Argument(1); !goja.IsUndefined(force) {
				on = force.ToBoolean()
			}
			if on {
				c.add(token)
			} else {
				c.remove(token)
			}
			return vm.ToValue(on)
		})
	case "replace":
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			old, repl := call.Argument(0).String(), c.validToken(call.Argument(1).String())
			if !c.has(old) {
				return vm.ToValue(false)
			}
			tokens := c.tokens()
			for i, t := range tokens {
				if t == old {
					tokens[i] = repl
				}
			}
			c.write(tokens)
			return vm.ToValue(true)
		})
	case "item":
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			tokens := c.tokens()
			i := int(call.Argument(0).ToInteger())
			if i < 0 || i >= len(tokens) {
				return goja.Null()
			}
			return vm.ToValue(tokens[i])
		})
	case "toString":
		return vm.ToValue(func(goja.FunctionCall) goja.Value {
			return vm.ToValue(attrValue(c.n, "class"))
		})
	case "forEach":
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(0))
			if !ok {
				panic(vm.NewTypeError("classList.forEach: callback must be a function"))
			}
			for i, t := range c.tokens() {
				if _, err := fn(goja.Undefined(), vm.ToValue(t), vm.ToValue(i)); err != nil {
					panic(err)
				}
			}
			return goja.Undefined()
		})
	}
	if i, err := strconv.Atoi(key); err == nil {
		tokens := c.tokens()
		if i >= 0 && i < len(tokens) {
			return vm.ToValue(tokens[i])
		}
	}
	return goja.Undefined()
}

func (c *classList) validToken(token string) string {
	if token == "" || strings.ContainsAny(token, " \t\n\f\r") {
		c.d.throw("InvalidCharacterError", "the token %q contains whitespace or is empty", token)
	}
	return token
}

func (c *classList) Set(key string, val goja.Value) bool {
	if key == "value" {
		setAttr(c.n, "class", val.String())
		return true
	}
	return false
}

func (c *classList) Has(key string) bool {
	switch key {
	case "length", "value", "add", "remove", "contains", "toggle", "replace", "item", "toString", "forEach":
		return true
	}
	i, err := strconv.Atoi(key)
	return err == nil && i >= 0 && i < len(c.tokens())
}

func (c *classList) Delete(string) bool { return false }

func (c *classList) Keys() []string {
	tokens := c.tokens()
	keys := make([]string, len(tokens))
	for i := range tokens {
		keys[i] = strconv.Itoa(i)
	}
	return keys
}

// dataset is element.dataset over data-* attributes.
type dataset struct {
	d *dom
	n *html.Node
}

func (s *dataset) Get(key string) goja.Value {
	if v, ok := getAttr(s.n, "data-"+markup.PropertyName(key)); ok {
		return s.d.vm.ToValue(v)
	}
	return goja.Undefined()
}

func (s *dataset) Set(key string, val goja.Value) bool {
	setAttr(s.n, "data-"+markup.PropertyName(key), val.String())
	return true
}

func (s *dataset) Has(key string) bool {
	_, ok := getAttr(s.n, "data-"+markup.PropertyName(key))
	return ok
}

func (s *dataset) Delete(key string) bool {
	removeAttr(s.n, "data-"+markup.PropertyName(key))
	return true
}

func (s *dataset) Keys() []string {
	var keys []string
	for _, a := range s.n.Attr {
		if name, ok := strings.CutPrefix(a.Key, "data-"); ok {
			keys = append(keys, camelCase(name))
		}
	}
	return keys
}

func camelCase(kebab string) string {
	parts := strings.Split(kebab, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
