package sandbox

import (
	"time"

	"github.com/dop251/goja"
)

// minInterval keeps a zero-delay setInterval from spinning the loop.
const minInterval = time.Millisecond

type timer struct {
	id       int64
	due      time.Time
	fn       goja.Callable
	args     []goja.Value
	interval time.Duration
}

// eventLoop is the timer queue of one unit. Promise jobs are drained by
// goja itself whenever a call returns; the loop only has to fire timers.
// It is driven from the unit's goroutine and is not safe for concurrent use.
type eventLoop struct {
	vm     *goja.Runtime
	stop   <-chan struct{}
	timers map[int64]*timer
	nextID int64
}

func newEventLoop(vm *goja.Runtime, stop <-chan struct{}) *eventLoop {
	return &eventLoop{vm: vm, stop: stop, timers: make(map[int64]*timer)}
}

func (l *eventLoop) register() error {
	l.vm.Set("setTimeout", l.schedule(false))
	l.vm.Set("setInterval", l.schedule(true))
	l.vm.Set("clearTimeout", l.clear)
	l.vm.Set("clearInterval", l.clear)
	_, err := l.vm.RunString(`globalThis.queueMicrotask = function (fn) {
	if (typeof fn !== "function") throw new TypeError("queueMicrotask requires a function");
	Promise.resolve().then(fn);
};`)
	return err
}

func (l *eventLoop) schedule(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(l.vm.NewTypeError("callback must be a function"))
		}
		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		if delay < 0 {
			delay = 0
		}
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}
		return l.vm.ToValue(l.add(fn, delay, repeat, args...))
	}
}

func (l *eventLoop) add(fn goja.Callable, delay time.Duration, repeat bool, args ...goja.Value) int64 {
	l.nextID++
	t := &timer{id: l.nextID, due: time.Now().Add(delay), fn: fn, args: args}
	if repeat {
		t.interval = max(delay, minInterval)
	}
	l.timers[t.id] = t
	return t.id
}

func (l *eventLoop) clear(call goja.FunctionCall) goja.Value {
	delete(l.timers, call.Argument(0).ToInteger())
	return goja.Undefined()
}

// next returns the earliest due timer, ties broken by creation order.
func (l *eventLoop) next() *timer {
	var earliest *timer
	for _, t := range l.timers {
		if earliest == nil || t.due.Before(earliest.due) || (t.due.Equal(earliest.due) && t.id < earliest.id) {
			earliest = t
		}
	}
	return earliest
}

// runOnce sleeps until the next timer is due and fires it.
func (l *eventLoop) runOnce() error {
	t := l.next()
	if t == nil {
		return ErrNeverSettled
	}
	if wait := time.Until(t.due); wait > 0 {
		sleep := time.NewTimer(wait)
		select {
		case <-sleep.C:
		case <-l.stop:
			sleep.Stop()
			return ErrTerminated
		}
	}
	select {
	case <-l.stop:
		return ErrTerminated
	default:
	}

	if t.interval > 0 {
		t.due = time.Now().Add(t.interval)
	} else {
		delete(l.timers, t.id)
	}
	_, err := t.fn(goja.Undefined(), t.args...)
	return err
}

// await drives the loop until v settles. Non-promise values are returned
// unchanged.
func (l *eventLoop) await(v goja.Value) (goja.Value, error) {
	promise, ok := asPromise(v)
	if !ok {
		return v, nil
	}
	for {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			return promise.Result(), nil
		case goja.PromiseStateRejected:
			return nil, &rejection{value: promise.Result()}
		}
		if err := l.runOnce(); err != nil {
			return nil, err
		}
	}
}

func asPromise(v goja.Value) (*goja.Promise, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	promise, ok := obj.Export().(*goja.Promise)
	return promise, ok
}

// rejection is a promise that settled as rejected.
type rejection struct {
	value goja.Value
}

func (r *rejection) Error() string {
	return valueMessage(r.value)
}

// valueMessage extracts the message a thrown or rejected value carries.
func valueMessage(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "unknown error"
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			if s := msg.String(); s != "" {
				return s
			}
		}
	}
	return v.String()
}
