// Package partnerpages renders partner profile pages. Each page carries its
// profile as YAML in a partner-info script tag; the tag is removed, the rest
// is rendered as Markdown into the profile layout.
package partnerpages

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/fsutil"
	"github.com/vk/pagegrid/internal/partner"
	"github.com/vk/pagegrid/internal/registry"
	"github.com/vk/pagegrid/internal/site"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// DefaultLayout renders a single profile.
const DefaultLayout = "partner-profile-page.tmpl"

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	Include []string `hcl:"include,optional"`
	Exclude []string `hcl:"exclude,optional"`
	Layout  string   `hcl:"layout,optional"`
	// IndexJSON, when set, is the dest-relative path of a JSON list of all
	// profiles.
	IndexJSON string `hcl:"index_json,optional"`
}

// Output defines the data structure returned by the runner.
type Output struct {
	FilesWritten int      `cty:"files_written"`
	Files        []string `cty:"files"`
	// Partners are the names of the rendered profiles.
	Partners []string `cty:"partners"`
}

// Run renders every selected partner page. The application page has no
// profile and is rendered without one.
func Run(ctx context.Context, s *site.Site, in *Input) (*Output, error) {
	logger := ctxlog.FromContext(ctx)

	set, err := s.Templates(ctx)
	if err != nil {
		return nil, err
	}
	files, err := s.Select(fsutil.Selection{Include: in.Include, Exclude: in.Exclude})
	if err != nil {
		return nil, err
	}
	logger.Debug("Rendering partner pages.", "count", len(files))

	var mu sync.Mutex
	var names []string

	rendered, err := s.ForEachFile(ctx, files, func(ctx context.Context, rel string) (string, error) {
		src, err := os.ReadFile(s.SourcePath(rel))
		if err != nil {
			return "", fmt.Errorf("failed to read partner page: %w", err)
		}

		var info *partner.Info
		if path.Base(rel) != partner.ApplyPage {
			info, err = partner.Parse(ctx, src, rel)
			if err != nil {
				return "", err
			}
			mu.Lock()
			names = append(names, info.Name)
			mu.Unlock()
		}

		content, err := s.Markdown().Render(partner.Strip(src))
		if err != nil {
			return "", fmt.Errorf("failed to render Markdown of %s: %w", rel, err)
		}
		data := s.PageData(rel)
		data.Content = template.HTML(content)
		data.Partner = info
		html, err := set.RenderLayout(in.Layout, data)
		if err != nil {
			return "", fmt.Errorf("page %s: %w", rel, err)
		}
		html, err = s.RemapLinks(html, rel)
		if err != nil {
			return "", err
		}
		return s.WriteFile(fsutil.ReplaceExt(rel, ".html"), html)
	})
	if err != nil {
		return nil, err
	}

	out := &Output{Files: rendered.Files}
	if in.IndexJSON != "" {
		written, err := writeIndex(ctx, s, in.IndexJSON)
		if err != nil {
			return nil, err
		}
		out.Files = append(out.Files, written)
		sort.Strings(out.Files)
	}
	sort.Strings(names)
	out.Partners = names
	out.FilesWritten = len(out.Files)
	return out, nil
}

// writeIndex writes every profile of the partner directory as JSON.
func writeIndex(ctx context.Context, s *site.Site, rel string) (string, error) {
	infos, err := s.Partners(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode partner index: %w", err)
	}
	return s.WriteFile(rel, data)
}

// Register registers the runner with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("partner_pages", &registry.RegisteredRunner{
		NewInput: func() any {
			return &Input{
				Include: []string{"**/partner/*.md"},
				Layout:  DefaultLayout,
			}
		},
		Fn:          Run,
		Description: "render partner profile pages",
	})
}
