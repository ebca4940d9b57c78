// Package site holds the build context shared by every runner: resolved
// configuration, revision info, URL root and lazily created services.
package site

import (
	"context"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vk/pagegrid/internal/config"
	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/fsutil"
	"github.com/vk/pagegrid/internal/gitinfo"
	"github.com/vk/pagegrid/internal/links"
	"github.com/vk/pagegrid/internal/markdown"
	"github.com/vk/pagegrid/internal/partner"
	"github.com/vk/pagegrid/internal/templates"
)

// FilesOutput is the output shared by runners that write files.
type FilesOutput struct {
	FilesWritten int      `cty:"files_written"`
	Files        []string `cty:"files"`
}

// Site is created once per build and is safe for concurrent use.
type Site struct {
	Config  *config.Site
	Git     gitinfo.Info
	URLRoot string
	BuildID string
	// Workers bounds per-task file concurrency.
	Workers int

	remapper *links.Remapper

	mdOnce sync.Once
	md     *markdown.Renderer

	tmplOnce sync.Once
	tmpl     *templates.Set
	tmplErr  error

	partnersOnce sync.Once
	partners     []*partner.Info
	partnersErr  error
}

// New creates the build context. The URL root comes from the configuration
// when set, otherwise from the revision.
func New(cfg *config.Site, git gitinfo.Info, buildID string, workers int) *Site {
	urlRoot := git.URLRoot(cfg.ProductionBranch)
	if cfg.URLRootSet {
		urlRoot = strings.TrimSuffix(cfg.URLRoot, "/")
	}
	if workers < 1 {
		workers = 1
	}
	return &Site{
		Config:  cfg,
		Git:     git,
		URLRoot: urlRoot,
		BuildID: buildID,
		Workers: workers,
		remapper: &links.Remapper{
			URLRoot:       urlRoot,
			InternalHosts: cfg.InternalHosts,
		},
	}
}

// SourcePath returns the absolute path of a source-relative path.
func (s *Site) SourcePath(rel string) string {
	return filepath.Join(s.Config.Source, filepath.FromSlash(rel))
}

// DestPath returns the output path for a source-relative path. A non-empty
// newExt replaces the extension.
func (s *Site) DestPath(rel, newExt string) string {
	if newExt != "" {
		rel = fsutil.ReplaceExt(rel, newExt)
	}
	return filepath.Join(s.Config.Dest, filepath.FromSlash(rel))
}

// WriteFile writes data below the destination directory and returns the
// path written.
func (s *Site) WriteFile(rel string, data []byte) (string, error) {
	path := s.DestPath(rel, "")
	return path, fsutil.WriteFile(path, data)
}

// URLPath returns the served URL of an output path.
func (s *Site) URLPath(rel string) string {
	return strings.ReplaceAll(s.URLRoot+"/"+rel, "//", "/")
}

// URLPathDir returns the URL directory of a page, ending in a slash.
func (s *Site) URLPathDir(rel string) string {
	return s.remapper.PageDir(rel)
}

// EditLink returns the repository link that edits a source file.
func (s *Site) EditLink(rel string) string {
	source, err := filepath.Rel(s.Config.Root, s.Config.Source)
	if err != nil {
		source = filepath.Base(s.Config.Source)
	}
	parts := []string{
		strings.TrimSuffix(s.Config.EditBase, "/"),
		s.Config.Repository,
		"edit",
		s.Git.Branch,
		filepath.ToSlash(source),
		rel,
	}
	return strings.Join(parts, "/")
}

// FinishPage applies the final HTML passes to a rendered page: bare code
// blocks are unwrapped and links are remapped.
func (s *Site) FinishPage(doc []byte, rel string) ([]byte, error) {
	out, err := s.remapper.Remap(markdown.UnwrapCode(doc), rel)
	if err != nil {
		return nil, fmt.Errorf("failed to remap links of %s: %w", rel, err)
	}
	return out, nil
}

// RemapLinks rewrites the links of a rendered page without touching its
// code blocks.
func (s *Site) RemapLinks(doc []byte, rel string) ([]byte, error) {
	out, err := s.remapper.Remap(doc, rel)
	if err != nil {
		return nil, fmt.Errorf("failed to remap links of %s: %w", rel, err)
	}
	return out, nil
}

// Markdown returns the shared Markdown renderer.
func (s *Site) Markdown() *markdown.Renderer {
	s.mdOnce.Do(func() {
		s.md = markdown.New()
	})
	return s.md
}

// Partners returns every partner profile, parsed once per build.
func (s *Site) Partners(ctx context.Context) ([]*partner.Info, error) {
	s.partnersOnce.Do(func() {
		s.partners, s.partnersErr = partner.LoadAll(ctx, s.Config.PartnerDir, s.Config.Source)
	})
	return s.partners, s.partnersErr
}

// Templates returns the layouts of the common directory, parsed once per
// build.
func (s *Site) Templates(ctx context.Context) (*templates.Set, error) {
	s.tmplOnce.Do(func() {
		ctxlog.FromContext(ctx).Debug("Loading layouts.", "dir", s.Config.CommonDir)
		s.tmpl, s.tmplErr = templates.Load(s.Config.CommonDir, templates.Funcs{
			Partners: func() ([]*partner.Info, error) { return s.Partners(ctx) },
			Markdown: func(src string) (template.HTML, error) {
				out, err := s.Markdown().Render([]byte(src))
				return template.HTML(out), err
			},
			URL:  func(p string) string { return s.URLPath(p) },
			Edit: s.EditLink,
		})
	})
	return s.tmpl, s.tmplErr
}

// PageData returns the template data of the page at rel.
func (s *Site) PageData(rel string) *templates.Data {
	return &templates.Data{
		URLRoot:    s.URLRoot,
		GithubLink: s.EditLink(rel),
		Path:       rel,
		Git:        s.Git,
		BuildID:    s.BuildID,
	}
}
