package dag

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/pagegrid/internal/config"
	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/registry"
)

// Build constructs a complete, validated dependency graph from a config model.
func Build(ctx context.Context, model *config.Model, r *registry.Registry) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.")
	graph := New()

	// First pass: one node per task.
	for _, task := range model.Tasks {
		if _, err := graph.AddNode(task); err != nil {
			return nil, err
		}
	}
	logger.Debug("Build: Node creation complete.", "node_count", len(graph.Nodes))

	// Second pass: link dependencies.
	for _, task := range model.Tasks {
		if err := linkExplicit(ctx, graph, task); err != nil {
			return nil, err
		}
		if err := linkImplicit(ctx, graph, task, r); err != nil {
			return nil, err
		}
	}

	if err := graph.DetectCycles(); err != nil {
		return nil, err
	}
	logger.Debug("Build: Graph construction complete.")
	return graph, nil
}

// linkExplicit links the entries of a task's depends_on list.
func linkExplicit(ctx context.Context, g *Graph, task *config.Task) error {
	logger := ctxlog.FromContext(ctx)
	for _, dep := range task.DependsOn {
		if _, ok := g.Nodes[dep]; !ok {
			return fmt.Errorf("task '%s' depends on unknown task '%s'", task.ID(), dep)
		}
		logger.Debug("Linking explicit dependency.", "from", dep, "to", task.ID())
		if err := g.AddEdge(dep, task.ID()); err != nil {
			return err
		}
	}
	return nil
}

// linkImplicit links the tasks referenced as task.<type>.<name> inside the
// task's arguments.
func linkImplicit(ctx context.Context, g *Graph, task *config.Task, r *registry.Registry) error {
	logger := ctxlog.FromContext(ctx)
	for _, ref := range taskReferences(task.Arguments) {
		dep, field, err := parseReference(ref)
		if err != nil {
			return fmt.Errorf("task '%s': %w", task.ID(), err)
		}
		depNode, ok := g.Nodes[dep]
		if !ok {
			return fmt.Errorf("task '%s' references unknown task '%s'", task.ID(), dep)
		}
		if field != "" && !r.HasOutput(depNode.Task.Type, field) {
			return fmt.Errorf("task '%s' references undeclared output '%s' of task '%s'", task.ID(), field, dep)
		}
		logger.Debug("Linking implicit dependency.", "from", dep, "to", task.ID(), "field", field)
		if err := g.AddEdge(dep, task.ID()); err != nil {
			return err
		}
	}
	return nil
}

// taskReferences returns every traversal rooted at `task` in body,
// including nested blocks.
func taskReferences(body hcl.Body) []hcl.Traversal {
	var refs []hcl.Traversal
	collect := func(vars []hcl.Traversal) {
		for _, v := range vars {
			if v.RootName() == "task" {
				refs = append(refs, v)
			}
		}
	}

	if body == nil {
		return nil
	}
	syntaxBody, ok := body.(*hclsyntax.Body)
	if !ok {
		attrs, _ := body.JustAttributes()
		for _, attr := range attrs {
			collect(attr.Expr.Variables())
		}
		return refs
	}

	var walk func(b *hclsyntax.Body)
	walk = func(b *hclsyntax.Body) {
		for _, attr := range b.Attributes {
			collect(attr.Expr.Variables())
		}
		for _, block := range b.Blocks {
			walk(block.Body)
		}
	}
	walk(syntaxBody)
	return refs
}

// parseReference splits task.<type>.<name>[.output[.<field>]] into the task
// ID and the referenced output field.
func parseReference(t hcl.Traversal) (id, field string, err error) {
	var parts []string
	for _, step := range t[1:] {
		attr, ok := step.(hcl.TraverseAttr)
		if !ok {
			break
		}
		parts = append(parts, attr.Name)
	}
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid task reference at %s: expected task.<type>.<name>", t.SourceRange())
	}
	id = parts[0] + "." + parts[1]
	if len(parts) > 2 && parts[2] != "output" {
		return "", "", fmt.Errorf("invalid task reference at %s: only 'output' can be read from task '%s'", t.SourceRange(), id)
	}
	if len(parts) > 3 {
		field = parts[3]
	}
	return id, field, nil
}
