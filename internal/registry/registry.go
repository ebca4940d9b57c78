package registry

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
)

// Module is the interface that all runner modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// RegisteredRunner holds the compiled Go parts of a task type.
type RegisteredRunner struct {
	// NewInput returns a pointer to the input struct, pre-filled with defaults.
	NewInput func() any
	// Fn is the runner function; see the package documentation for its shape.
	Fn any
	// Description is shown in logs and help output.
	Description string
}

// Registry holds all registered runners for a single application instance.
type Registry struct {
	Runners map[string]*RegisteredRunner
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		Runners: make(map[string]*RegisteredRunner),
	}
}

// RegisterRunner registers the Go implementation of a task type. Registering
// the same type twice is a programmer error and panics.
func (r *Registry) RegisterRunner(taskType string, runner *RegisteredRunner) {
	if _, exists := r.Runners[taskType]; exists {
		panic(fmt.Sprintf("runner for task type '%s' already registered", taskType))
	}
	slog.Debug("Registering runner.", "type", taskType)
	r.Runners[taskType] = runner
}

// Types returns the registered task types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.Runners))
	for t := range r.Runners {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// OutputType returns the Go struct type a runner returns, or nil when the
// task type is unknown.
func (r *Registry) OutputType(taskType string) reflect.Type {
	runner, ok := r.Runners[taskType]
	if !ok || runner.Fn == nil {
		return nil
	}
	fnType := reflect.TypeOf(runner.Fn)
	if fnType.Kind() != reflect.Func || fnType.NumOut() != 2 {
		return nil
	}
	out := fnType.Out(0)
	if out.Kind() == reflect.Ptr {
		out = out.Elem()
	}
	return out
}
