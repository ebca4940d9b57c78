// Package rendermarkdown renders Markdown pages into the Markdown wrapper
// layout.
package rendermarkdown

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"sort"

	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/fsutil"
	"github.com/vk/pagegrid/internal/registry"
	"github.com/vk/pagegrid/internal/site"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// DefaultLayout wraps every rendered Markdown page.
const DefaultLayout = "md-wrapper.tmpl"

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	Include []string `hcl:"include,optional"`
	Exclude []string `hcl:"exclude,optional"`
	Layout  string   `hcl:"layout,optional"`
	// HighlightCSS, when set, is the dest-relative path the code
	// highlighting stylesheet is written to.
	HighlightCSS string `hcl:"highlight_css,optional"`
}

// Run renders every selected Markdown file to <name>.html.
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
	logger.Debug("Rendering Markdown.", "count", len(files), "layout", in.Layout)

	out, err := s.ForEachFile(ctx, files, func(ctx context.Context, rel string) (string, error) {
		src, err := os.ReadFile(s.SourcePath(rel))
		if err != nil {
			return "", fmt.Errorf("failed to read page: %w", err)
		}
		content, err := s.Markdown().Render(src)
		if err != nil {
			return "", fmt.Errorf("failed to render Markdown of %s: %w", rel, err)
		}

		data := s.PageData(rel)
		data.Content = template.HTML(content)
		html, err := set.RenderLayout(in.Layout, data)
		if err != nil {
			return "", fmt.Errorf("page %s: %w", rel, err)
		}
		html, err = s.FinishPage(html, rel)
		if err != nil {
			return "", err
		}
		return s.WriteFile(fsutil.ReplaceExt(rel, ".html"), html)
	})
	if err != nil || in.HighlightCSS == "" {
		return out, err
	}

	var css bytes.Buffer
	if err := s.Markdown().WriteCSS(&css); err != nil {
		return nil, fmt.Errorf("failed to generate highlight stylesheet: %w", err)
	}
	path, err := s.WriteFile(in.HighlightCSS, css.Bytes())
	if err != nil {
		return nil, err
	}
	out.Files = append(out.Files, path)
	sort.Strings(out.Files)
	out.FilesWritten = len(out.Files)
	return out, nil
}

// Register registers the runner with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("render_markdown", &registry.RegisteredRunner{
		NewInput: func() any {
			return &Input{
				Include: []string{"**/*.md"},
				Exclude: []string{"**/partner/*.md"},
				Layout:  DefaultLayout,
			}
		},
		Fn:          Run,
		Description: "render Markdown pages",
	})
}
