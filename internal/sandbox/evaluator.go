package sandbox

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/dop251/goja"
)

// Callable invokes an evaluated function with Go arguments.
type Callable func(args ...any) (goja.Value, error)

// Evaluator turns source text into a callable function.
//
// With an empty entryPoint the source must itself be a function expression
// and is evaluated wrapped in parentheses. Otherwise the source is run as a
// script body and the binding named entryPoint is returned.
type Evaluator interface {
	Evaluate(source, entryPoint string) (Callable, error)
}

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

type gojaEvaluator struct {
	vm *goja.Runtime
}

// NewEvaluator returns an Evaluator bound to vm.
func NewEvaluator(vm *goja.Runtime) Evaluator {
	return &gojaEvaluator{vm: vm}
}

func (e *gojaEvaluator) Evaluate(source, entryPoint string) (Callable, error) {
	name := "testRunner"
	program := "(" + source + "\n)"
	if entryPoint != "" {
		if !identifier.MatchString(entryPoint) {
			return nil, fmt.Errorf("invalid entry point %q", entryPoint)
		}
		name = entryPoint
		program = "(function () {\n" + source + "\n;return " + entryPoint + ";\n})()"
	}

	compiled, err := goja.Compile(name+".js", program, false)
	if err != nil {
		return nil, err
	}
	value, err := e.vm.RunProgram(compiled)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(value)
	if !ok {
		return nil, errors.New(name + " is not a function")
	}

	return func(args ...any) (goja.Value, error) {
		values := make([]goja.Value, len(args))
		for i, arg := range args {
			values[i] = e.vm.ToValue(arg)
		}
		return fn(goja.Undefined(), values...)
	}, nil
}
