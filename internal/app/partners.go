package app

import (
	"context"
	"path/filepath"

	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/partner"
)

// Partners parses the partner profiles of the pipeline's site, or of
// Config.PartnerDir when set.
func (a *App) Partners(ctx context.Context) ([]*partner.Info, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	if dir := a.config.PartnerDir; dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		return partner.LoadAll(ctx, abs, filepath.Dir(abs))
	}
	s := a.Model().Site
	return partner.LoadAll(ctx, s.PartnerDir, s.Source)
}
