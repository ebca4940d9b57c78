package site

import (
	"context"
	"sort"
	"sync"

	"github.com/vk/pagegrid/internal/fsutil"
	"golang.org/x/sync/errgroup"
)

// Select returns the source files matching sel, relative to the source
// root. Files under the common directory are never selected.
func (s *Site) Select(sel fsutil.Selection) ([]string, error) {
	common, err := s.Config.Rel(s.Config.CommonDir)
	if err == nil && common != "." && common != "" {
		sel.Exclude = append(append([]string(nil), sel.Exclude...), common+"/**")
	}
	return sel.Find(s.Config.Source)
}

// ForEachFile calls fn for every file with at most Workers calls in flight.
// fn returns the destination path it wrote, or "" when it wrote nothing.
// The first error cancels the remaining calls.
func (s *Site) ForEachFile(ctx context.Context, files []string, fn func(ctx context.Context, rel string) (string, error)) (*FilesOutput, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)

	var mu sync.Mutex
	written := make([]string, 0, len(files))

	for _, rel := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dst, err := fn(gctx, rel)
			if err != nil {
				return err
			}
			if dst != "" {
				mu.Lock()
				written = append(written, dst)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Strings(written)
	return &FilesOutput{FilesWritten: len(written), Files: written}, nil
}
