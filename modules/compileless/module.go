// Package compileless compiles the site's LESS stylesheets to CSS.
package compileless

import (
	"context"
	"path/filepath"

	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/fsutil"
	"github.com/vk/pagegrid/internal/less"
	"github.com/vk/pagegrid/internal/registry"
	"github.com/vk/pagegrid/internal/site"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	Include []string `hcl:"include,optional"`
	Exclude []string `hcl:"exclude,optional"`
	// IncludePaths are searched for imports, relative to the site root.
	IncludePaths []string `hcl:"include_paths,optional"`
	// Compress defaults to true unless the site is in debug mode.
	Compress *bool `hcl:"compress,optional"`
}

// Run compiles every selected stylesheet to <name>.css.
func Run(ctx context.Context, s *site.Site, in *Input) (*site.FilesOutput, error) {
	logger := ctxlog.FromContext(ctx)

	opts := less.Options{Compress: !s.Config.Debug}
	if in.Compress != nil {
		opts.Compress = *in.Compress
	}
	for _, p := range in.IncludePaths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.Config.Root, p)
		}
		opts.IncludePaths = append(opts.IncludePaths, p)
	}

	files, err := s.Select(fsutil.Selection{Include: in.Include, Exclude: in.Exclude})
	if err != nil {
		return nil, err
	}
	logger.Debug("Compiling stylesheets.", "count", len(files), "compress", opts.Compress)

	return s.ForEachFile(ctx, files, func(ctx context.Context, rel string) (string, error) {
		css, err := less.Compile(s.SourcePath(rel), opts)
		if err != nil {
			return "", err
		}
		return s.WriteFile(fsutil.ReplaceExt(rel, ".css"), css)
	})
}

// Register registers the runner with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("compile_less", &registry.RegisteredRunner{
		NewInput: func() any {
			return &Input{Include: []string{"**/css/*.less", "**/font/**/*.less"}}
		},
		Fn:          Run,
		Description: "compile LESS stylesheets",
	})
}
