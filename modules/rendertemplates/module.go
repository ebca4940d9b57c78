// Package rendertemplates renders the page templates of the source tree to
// HTML. Pages can call every layout of the common directory.
package rendertemplates

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/fsutil"
	"github.com/vk/pagegrid/internal/registry"
	"github.com/vk/pagegrid/internal/site"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	Include []string `hcl:"include,optional"`
	Exclude []string `hcl:"exclude,optional"`
}

// Run renders every selected template to <name>.html.
func Run(ctx context.Context, s *site.Site, in *Input) (*site.FilesOutput, error) {
	logger := ctxlog.FromContext(ctx)

	set, err := s.Templates(ctx)
	if err != nil {
		return nil, err
	}
	files, err := s.Select(fsutil.Selection{Include: in.Include, Exclude: in.Exclude})
	if err != nil {
		return nil, err
	}
	logger.Debug("Rendering templates.", "count", len(files), "layouts", len(set.Layouts()))

	return s.ForEachFile(ctx, files, func(ctx context.Context, rel string) (string, error) {
		src, err := os.ReadFile(s.SourcePath(rel))
		if err != nil {
			return "", fmt.Errorf("failed to read template: %w", err)
		}
		html, err := set.RenderPage(rel, src, s.PageData(rel))
		if err != nil {
			return "", err
		}
		html, err = s.FinishPage(html, rel)
		if err != nil {
			return "", err
		}
		return s.WriteFile(fsutil.ReplaceExt(rel, ".html"), html)
	})
}

// Register registers the runner with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("render_templates", &registry.RegisteredRunner{
		NewInput:    func() any { return &Input{Include: []string{"**/*.tmpl"}} },
		Fn:          Run,
		Description: "render page templates to HTML",
	})
}
