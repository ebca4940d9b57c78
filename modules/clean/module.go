// Package clean removes the build directory before a build.
package clean

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/registry"
	"github.com/vk/pagegrid/internal/site"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	// Path defaults to the site's dest directory.
	Path string `hcl:"path,optional"`
}

// Output defines the data structure returned by the runner.
type Output struct {
	Removed string `cty:"removed"`
}

// Run removes the target directory. Removing the source tree or the site
// root is refused.
func Run(ctx context.Context, s *site.Site, in *Input) (*Output, error) {
	logger := ctxlog.FromContext(ctx)

	target := s.Config.Dest
	if in.Path != "" {
		target = in.Path
		if !filepath.IsAbs(target) {
			target = filepath.Join(s.Config.Root, target)
		}
	}
	target = filepath.Clean(target)

	if contains(target, s.Config.Source) || (s.Config.Root != "" && contains(target, s.Config.Root)) {
		return nil, fmt.Errorf("refusing to remove %s: it contains the site sources", target)
	}

	logger.Info("Removing directory", "path", target)
	if err := os.RemoveAll(target); err != nil {
		return nil, fmt.Errorf("failed to remove %s: %w", target, err)
	}
	return &Output{Removed: target}, nil
}

// contains reports whether dir is path or one of its parents.
func contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Register registers the runner with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("clean", &registry.RegisteredRunner{
		NewInput:    func() any { return new(Input) },
		Fn:          Run,
		Description: "remove the build directory",
	})
}
