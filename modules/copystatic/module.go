// Package copystatic copies every source file that no renderer handles into
// the build directory unchanged.
package copystatic

import (
	"context"

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

// DefaultExclude skips the files other runners compile.
var DefaultExclude = []string{"**/*.tmpl", "**/*.md", "**/*.less"}

// Run copies the selected files.
func Run(ctx context.Context, s *site.Site, in *Input) (*site.FilesOutput, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := s.Select(fsutil.Selection{Include: in.Include, Exclude: in.Exclude})
	if err != nil {
		return nil, err
	}
	logger.Debug("Copying static files.", "count", len(files))

	return s.ForEachFile(ctx, files, func(ctx context.Context, rel string) (string, error) {
		dst := s.DestPath(rel, "")
		if err := fsutil.CopyFile(s.SourcePath(rel), dst); err != nil {
			return "", err
		}
		return dst, nil
	})
}

// Register registers the runner with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("copy_static", &registry.RegisteredRunner{
		NewInput: func() any {
			return &Input{
				Include: []string{"**"},
				Exclude: append([]string(nil), DefaultExclude...),
			}
		},
		Fn:          Run,
		Description: "copy static content",
	})
}
