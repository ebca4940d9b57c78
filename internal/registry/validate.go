package registry

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/pagegrid/internal/config"
	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/site"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	siteType    = reflect.TypeOf((*site.Site)(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// ValidateRunners checks that every registered runner has the expected
// function shape and that its input constructor matches the function.
func (r *Registry) ValidateRunners(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []string

	for _, taskType := range r.Types() {
		runner := r.Runners[taskType]
		if err := checkRunner(runner); err != nil {
			errs = append(errs, fmt.Sprintf("runner '%s': %v", taskType, err))
			continue
		}
		logger.Debug("Runner signature validated.", "type", taskType)
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ValidateModel checks that every task in the model names a registered runner.
func (r *Registry) ValidateModel(model *config.Model) error {
	var errs []string
	for _, task := range model.Tasks {
		if _, ok := r.Runners[task.Type]; !ok {
			errs = append(errs, fmt.Sprintf("task '%s': unknown task type '%s' (known: %s)", task.ID(), task.Type, strings.Join(r.Types(), ", ")))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("pipeline validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// HasOutput reports whether the runner for taskType declares an output
// field with the given cty name.
func (r *Registry) HasOutput(taskType, name string) bool {
	out := r.OutputType(taskType)
	if out == nil || out.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < out.NumField(); i++ {
		if tag := out.Field(i).Tag.Get("cty"); tag == name {
			return true
		}
	}
	return false
}

func checkRunner(runner *RegisteredRunner) error {
	if runner.Fn == nil {
		return fmt.Errorf("missing runner function")
	}
	if runner.NewInput == nil {
		return fmt.Errorf("missing input constructor")
	}

	fnType := reflect.TypeOf(runner.Fn)
	if fnType.Kind() != reflect.Func {
		return fmt.Errorf("Fn must be a function, got %s", fnType)
	}
	if fnType.NumIn() != 3 || fnType.NumOut() != 2 {
		return fmt.Errorf("Fn must take (context.Context, *site.Site, *Input) and return (*Output, error), got %s", fnType)
	}
	if fnType.In(0) != contextType {
		return fmt.Errorf("first parameter must be context.Context, got %s", fnType.In(0))
	}
	if fnType.In(1) != siteType {
		return fmt.Errorf("second parameter must be *site.Site, got %s", fnType.In(1))
	}

	inputType := reflect.TypeOf(runner.NewInput())
	if inputType != fnType.In(2) {
		return fmt.Errorf("input constructor returns %s but Fn expects %s", inputType, fnType.In(2))
	}
	if inputType.Kind() != reflect.Ptr || inputType.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("input must be a pointer to a struct, got %s", inputType)
	}

	out := fnType.Out(0)
	if out.Kind() != reflect.Ptr || out.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("output must be a pointer to a struct, got %s", out)
	}
	if fnType.Out(1) != errorType {
		return fmt.Errorf("second return value must be error, got %s", fnType.Out(1))
	}
	return nil
}
