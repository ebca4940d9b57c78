package dag

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/vk/pagegrid/internal/config"
	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// runNode decodes a task's arguments, calls its runner and records the
// output.
func (e *Executor) runNode(ctx context.Context, node *Node) error {
	ctx = ctxlog.With(ctx, "task", node.ID)
	logger := ctxlog.FromContext(ctx)
	logger.Info("▶️ Starting task")
	start := time.Now()

	runner, ok := e.registry.Runners[node.Task.Type]
	if !ok {
		return fmt.Errorf("unknown task type '%s'", node.Task.Type)
	}

	input := runner.NewInput()
	if diags := gohcl.DecodeBody(node.Task.Arguments, e.evalContext(node), input); diags.HasErrors() {
		return diags
	}
	logger.Debug("Task input:", "data", formatValueForLogs(input))

	fn := reflect.ValueOf(runner.Fn)
	results := fn.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(e.site), reflect.ValueOf(input)})
	if errResult := results[1].Interface(); errResult != nil {
		return errResult.(error)
	}

	output, err := outputValue(results[0])
	if err != nil {
		return fmt.Errorf("task %s returned an unusable output: %w", node.ID, err)
	}
	node.Result = results[0].Interface()
	node.Output = output
	logger.Debug("Task output:", "data", formatValueForLogs(output))

	logger.Info("✅ Finished task", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// outputValue converts a runner's *Output into a cty object.
func outputValue(v reflect.Value) (cty.Value, error) {
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return cty.EmptyObjectVal, nil
	}
	out := v.Interface()
	ty, err := gocty.ImpliedType(out)
	if err != nil {
		return cty.NilVal, err
	}
	return gocty.ToCtyValue(out, ty)
}

// evalContext exposes the outputs of finished dependencies as
// task.<type>.<name>.output, next to the site and git variables.
func (e *Executor) evalContext(node *Node) *hcl.EvalContext {
	byType := make(map[string]map[string]cty.Value)
	for _, id := range sortedIDs(node.Deps) {
		dep := node.Deps[id]
		if dep.GetState() != Done {
			continue
		}
		output := dep.Output
		if output == cty.NilVal {
			output = cty.EmptyObjectVal
		}
		if byType[dep.Task.Type] == nil {
			byType[dep.Task.Type] = make(map[string]cty.Value)
		}
		byType[dep.Task.Type][dep.Task.Name] = cty.ObjectVal(map[string]cty.Value{"output": output})
	}
	tasks := make(map[string]cty.Value, len(byType))
	for taskType, names := range byType {
		tasks[taskType] = cty.ObjectVal(names)
	}

	vars := map[string]cty.Value{
		"task": cty.ObjectVal(tasks),
	}
	if e.site != nil {
		cfg := e.site.Config
		vars["site"] = cty.ObjectVal(map[string]cty.Value{
			"root":        cty.StringVal(cfg.Root),
			"source":      cty.StringVal(cfg.Source),
			"dest":        cty.StringVal(cfg.Dest),
			"common_dir":  cty.StringVal(cfg.CommonDir),
			"partner_dir": cty.StringVal(cfg.PartnerDir),
			"repository":  cty.StringVal(cfg.Repository),
			"url_root":    cty.StringVal(e.site.URLRoot),
			"build_id":    cty.StringVal(e.site.BuildID),
			"debug":       cty.BoolVal(cfg.Debug),
		})
		vars["git"] = cty.ObjectVal(map[string]cty.Value{
			"branch": cty.StringVal(e.site.Git.Branch),
			"commit": cty.StringVal(e.site.Git.Commit),
		})
	}

	return &hcl.EvalContext{
		Variables: vars,
		Functions: config.Functions(),
	}
}

// formatValueForLogs converts a value to its loggable representation.
// For cty.Value, it's converted to a Go interface. Other types are passed through.
func formatValueForLogs(v any) any {
	if ctyVal, ok := v.(cty.Value); ok {
		converted, err := ctyValueToInterface(ctyVal)
		if err != nil {
			return fmt.Sprintf("[unloggable cty.Value: %v]", err)
		}
		return converted
	}
	return v
}

// ctyValueToInterface converts a cty.Value to a Go interface{}.
func ctyValueToInterface(val cty.Value) (any, error) {
	if val == cty.NilVal || !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return f, nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			converted, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = converted
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := []any{}
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			converted, err := ctyValueToInterface(v)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", ty.FriendlyName())
}
