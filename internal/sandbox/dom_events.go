package sandbox

import (
	"errors"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// eventClasses defines the Event constructors. Propagation flags live on
// the event object where the Go dispatcher reads them.
const eventClasses = `(function () {
	class Event {
		constructor(type, init) {
			if (arguments.length === 0) throw new TypeError("Event requires a type");
			init = init || {};
			this.type = String(type);
			this.bubbles = !!init.bubbles;
			this.cancelable = !!init.cancelable;
			this.defaultPrevented = false;
			this.target = null;
			this.currentTarget = null;
			this.timeStamp = Date.now();
			this.__stop = false;
			this.__stopNow = false;
		}
		initEvent(type, bubbles, cancelable) {
			this.type = String(type);
			this.bubbles = !!bubbles;
			this.cancelable = !!cancelable;
		}
		preventDefault() { if (this.cancelable) this.defaultPrevented = true; }
		stopPropagation() { this.__stop = true; }
		stopImmediatePropagation() { this.__stop = true; this.__stopNow = true; }
	}
	class CustomEvent extends Event {
		constructor(type, init) {
			super(type, init);
			this.detail = init && init.detail !== undefined ? init.detail : null;
		}
	}
	class UIEvent extends Event {}
	class MouseEvent extends UIEvent {
		constructor(type, init) {
			super(type, init);
			init = init || {};
			this.button = init.button || 0;
			this.clientX = init.clientX || 0;
			this.clientY = init.clientY || 0;
		}
	}
	class KeyboardEvent extends UIEvent {
		constructor(type, init) {
			super(type, init);
			init = init || {};
			this.key = init.key || "";
			this.code = init.code || "";
		}
	}
	Object.assign(globalThis, {
		Event, CustomEvent, UIEvent, MouseEvent, KeyboardEvent,
		FocusEvent: UIEvent, InputEvent: UIEvent,
	});
})();`

type listener struct {
	value goja.Value
	fn    goja.Callable
	once  bool
}

func (a *nodeAccessor) eventGet(key string) (goja.Value, bool) {
	switch key {
	case "addEventListener":
		return a.d.vm.ToValue(a.d.addEventListener(a.n)), true
	case "removeEventListener":
		return a.d.vm.ToValue(a.d.removeEventListener(a.n)), true
	case "dispatchEvent":
		return a.d.vm.ToValue(a.d.dispatchEventFunc(a.n)), true
	}
	return nil, false
}

func (d *dom) addEventListener(target *html.Node) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		typ := call.Argument(0).String()
		handler := call.Argument(1)
		fn, ok := goja.AssertFunction(handler)
		if !ok {
			obj, isObj := handler.(*goja.Object)
			if !isObj {
				return goja.Undefined()
			}
			method, ok := goja.AssertFunction(obj.Get("handleEvent"))
			if !ok {
				return goja.Undefined()
			}
			fn = func(_ goja.Value, args ...goja.Value) (goja.Value, error) {
				return method(obj, args...)
			}
		}
		once := false
		if opts, ok := call.Argument(2).(*goja.Object); ok {
			if v := opts.Get("once"); v != nil {
				once = v.ToBoolean()
			}
		}
		for _, l := range d.listeners[target][typ] {
			if l.value.SameAs(handler) {
				return goja.Undefined()
			}
		}
		if d.listeners[target] == nil {
			d.listeners[target] = make(map[string][]*listener)
		}
		d.listeners[target][typ] = append(d.listeners[target][typ], &listener{value: handler, fn: fn, once: once})
		return goja.Undefined()
	}
}

func (d *dom) removeEventListener(target *html.Node) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		d.removeListener(target, call.Argument(0).String(), call.Argument(1))
		return goja.Undefined()
	}
}

func (d *dom) removeListener(target *html.Node, typ string, handler goja.Value) {
	list := d.listeners[target][typ]
	for i, l := range list {
		if l.value.SameAs(handler) {
			d.listeners[target][typ] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (d *dom) dispatchEventFunc(target *html.Node) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		event, ok := call.Argument(0).(*goja.Object)
		if !ok {
			panic(d.vm.NewTypeError("dispatchEvent: parameter is not of type 'Event'"))
		}
		return d.vm.ToValue(d.dispatch(target, event))
	}
}

// path is the propagation path from target outwards.
func (d *dom) path(target *html.Node) []*html.Node {
	if target == d.window {
		return []*html.Node{d.window}
	}
	var path []*html.Node
	for n := target; n != nil; n = n.Parent {
		path = append(path, n)
	}
	if path[len(path)-1] == d.document {
		path = append(path, d.window)
	}
	return path
}

// dispatch runs the bubble phase and reports whether the default action
// should proceed.
func (d *dom) dispatch(target *html.Node, event *goja.Object) bool {
	typ := event.Get("type").String()
	bubbles := event.Get("bubbles").ToBoolean()
	event.Set("target", d.wrap(target))

	for i, n := range d.path(target) {
		if i > 0 && !bubbles {
			break
		}
		this := d.wrap(n)
		event.Set("currentTarget", this)

		for _, l := range append([]*listener(nil), d.listeners[n][typ]...) {
			if l.once {
				d.removeListener(n, typ, l.value)
			}
			d.invoke(l.fn, this, event)
			if event.Get("__stopNow").ToBoolean() {
				break
			}
		}
		if handler, ok := d.handler(n, "on"+typ); ok {
			ret := d.invoke(handler, this, event)
			if ret != nil && ret.StrictEquals(d.vm.ToValue(false)) && event.Get("cancelable").ToBoolean() {
				event.Set("defaultPrevented", true)
			}
		}
		if event.Get("__stop").ToBoolean() {
			break
		}
	}
	event.Set("currentTarget", goja.Null())
	return !event.Get("defaultPrevented").ToBoolean()
}

func (d *dom) handler(n *html.Node, key string) (goja.Callable, bool) {
	if n == d.window {
		return goja.AssertFunction(d.vm.GlobalObject().Get(key))
	}
	v, ok := d.expando(n, key)
	if !ok {
		return nil, false
	}
	return goja.AssertFunction(v)
}

// invoke calls a listener. Exceptions are reported and do not stop
// propagation; an interrupt does.
func (d *dom) invoke(fn goja.Callable, this goja.Value, event *goja.Object) goja.Value {
	ret, err := fn(this, event)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			panic(interrupted)
		}
		if console, ok := d.vm.Get("console").(*goja.Object); ok {
			if report, ok := goja.AssertFunction(console.Get("error")); ok {
				_, _ = report(console, d.vm.ToValue("uncaught in listener: "+err.Error()))
			}
		}
		return nil
	}
	return ret
}

// fire dispatches a fresh event of the given type.
func (d *dom) fire(target *html.Node, typ string, bubbles bool) bool {
	return d.dispatch(target, d.newEvent("Event", typ, bubbles))
}

func (d *dom) newEvent(ctor, typ string, bubbles bool) *goja.Object {
	init := d.vm.NewObject()
	init.Set("bubbles", bubbles)
	init.Set("cancelable", true)
	event, err := d.vm.New(d.vm.Get(ctor), d.vm.ToValue(typ), init)
	if err != nil {
		panic(err)
	}
	return event
}

// click simulates a user click, including the checkbox toggle default
// action and its revert when the click is canceled.
func (d *dom) click(n *html.Node) {
	if _, disabled := getAttr(n, "disabled"); disabled {
		return
	}
	toggles := n.DataAtom == atom.Input && (attrValue(n, "type") == "checkbox" || attrValue(n, "type") == "radio")
	_, wasChecked := getAttr(n, "checked")
	if toggles {
		if wasChecked && attrValue(n, "type") == "checkbox" {
			removeAttr(n, "checked")
		} else {
			setAttr(n, "checked", "")
		}
	}

	proceed := d.dispatch(n, d.newEvent("MouseEvent", "click", true))
	if !proceed && toggles {
		if wasChecked {
			setAttr(n, "checked", "")
		} else {
			removeAttr(n, "checked")
		}
		return
	}
	if proceed && toggles {
		d.fire(n, "input", true)
		d.fire(n, "change", true)
	}
}
