package sandbox

import (
	"log/slog"
	"strings"

	"github.com/dop251/goja"
)

// consoleAPI routes console output from learner code to the host logger.
type consoleAPI struct {
	logger *slog.Logger
}

func (c *consoleAPI) register(vm *goja.Runtime) {
	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug", "trace"} {
		console.Set(level, c.method(level))
	}
	vm.Set("console", console)
}

func (c *consoleAPI) method(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		c.logger.Debug("console", "level", level, "message", formatArgs(call.Arguments))
		return goja.Undefined()
	}
}

func formatArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = arg.String()
	}
	return strings.Join(parts, " ")
}
