package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/felixgeelhaar/verdict/internal/domain"
)

// GojaBackend creates in-process units, each a fresh goja runtime on its
// own goroutine.
type GojaBackend struct {
	maxCallStack int
	logger       *slog.Logger
}

// NewGojaBackend creates the in-process backend.
func NewGojaBackend(maxCallStack int, logger *slog.Logger) *GojaBackend {
	if maxCallStack <= 0 {
		maxCallStack = DefaultMaxCallStack
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GojaBackend{maxCallStack: maxCallStack, logger: logger}
}

func (b *GojaBackend) Name() string {
	return BackendGoja
}

func (b *GojaBackend) NewUnit(ctx context.Context) (Unit, error) {
	return NewGojaWorker(b.maxCallStack, b.logger), nil
}

// GojaWorker is a single-use unit backed by one goja runtime. Nothing from
// the host is visible to the code it runs besides the globals it installs.
type GojaWorker struct {
	vm           *goja.Runtime
	maxCallStack int
	logger       *slog.Logger

	posted   atomic.Bool
	reply    chan Message
	stop     chan struct{}
	stopOnce sync.Once
}

// NewGojaWorker creates an idle worker.
func NewGojaWorker(maxCallStack int, logger *slog.Logger) *GojaWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &GojaWorker{
		vm:           goja.New(),
		maxCallStack: maxCallStack,
		logger:       logger,
		reply:        make(chan Message, 1),
		stop:         make(chan struct{}),
	}
}

func (w *GojaWorker) Post(job Job) <-chan Message {
	if !w.posted.CompareAndSwap(false, true) {
		busy := make(chan Message, 1)
		busy <- domain.Failed(ErrUnitBusy.Error())
		return busy
	}
	go w.run(job)
	return w.reply
}

func (w *GojaWorker) Terminate() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.vm.Interrupt(ErrTerminated)
	})
}

// settle delivers msg unless another path already did.
func (w *GojaWorker) settle(msg Message) {
	select {
	case w.reply <- msg:
	default:
	}
}

func (w *GojaWorker) run(job Job) {
	budget := job.Budget()
	timeout := TimeoutMessage(budget)

	inner := time.AfterFunc(budget, func() {
		w.settle(domain.Failed(timeout))
		w.Terminate()
	})
	defer inner.Stop()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker panicked", "panic", r)
			w.settle(domain.Failed(fmt.Sprintf("internal error: %v", r)))
		}
	}()

	results, err := w.execute(job)
	if err != nil {
		w.settle(domain.Failed(w.errorMessage(err, timeout)))
		return
	}
	w.settle(domain.Completed(results))
}

func (w *GojaWorker) execute(job Job) ([]domain.TestResult, error) {
	w.vm.SetMaxCallStackSize(w.maxCallStack)

	loop := newEventLoop(w.vm, w.stop)
	if err := loop.register(); err != nil {
		return nil, err
	}
	(&consoleAPI{logger: w.logger}).register(w.vm)
	if job.DOM {
		if err := newDOM(w.vm, loop).register(job.HTML); err != nil {
			return nil, err
		}
	}

	runner, err := NewEvaluator(w.vm).Evaluate(job.TestRunnerStr, "")
	if err != nil {
		return nil, err
	}
	value, err := runner(job.Code)
	if err != nil {
		return nil, err
	}
	if value, err = loop.await(value); err != nil {
		return nil, err
	}
	return w.collect(loop, value)
}

// collect awaits and normalizes each array entry in order.
func (w *GojaWorker) collect(loop *eventLoop, value goja.Value) ([]domain.TestResult, error) {
	arr, ok := value.(*goja.Object)
	if !ok || arr.ClassName() != "Array" {
		return nil, ErrNotArray
	}
	n := int(arr.Get("length").ToInteger())
	results := make([]domain.TestResult, 0, n)
	for i := 0; i < n; i++ {
		entry, err := loop.await(arr.Get(strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		result, err := w.toResult(entry)
		if err != nil {
			return nil, fmt.Errorf("result %d: %w", i, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (w *GojaWorker) toResult(entry goja.Value) (domain.TestResult, error) {
	obj, ok := entry.(*goja.Object)
	if !ok {
		return domain.TestResult{}, errors.New("test result is not an object")
	}
	var result domain.TestResult
	if pass := obj.Get("pass"); pass != nil {
		result.Pass = pass.ToBoolean()
	}
	if desc := obj.Get("description"); desc != nil && !goja.IsUndefined(desc) && !goja.IsNull(desc) {
		result.Description = desc.String()
	}
	result.Got = w.export(obj.Get("got"))
	return result, nil
}

// export converts a JS value into JSON-safe Go data.
func (w *GojaWorker) export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	if _, ok := goja.AssertFunction(v); ok {
		return v.String()
	}
	stringify, ok := goja.AssertFunction(w.vm.Get("JSON").ToObject(w.vm).Get("stringify"))
	if !ok {
		return v.String()
	}
	encoded, err := stringify(goja.Undefined(), v)
	if err != nil || goja.IsUndefined(encoded) {
		return v.String()
	}
	var out any
	if err := json.Unmarshal([]byte(encoded.String()), &out); err != nil {
		return v.String()
	}
	return out
}

func (w *GojaWorker) errorMessage(err error, timeout string) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) || errors.Is(err, ErrTerminated) {
		return timeout
	}
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return "Maximum call stack size exceeded"
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return valueMessage(exception.Value())
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return syntax.Message
	}
	return err.Error()
}
