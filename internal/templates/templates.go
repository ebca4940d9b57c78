// Package templates renders pages and layouts written as Go html templates.
//
// Layouts are every *.tmpl file in the site's common directory, named by
// their path relative to it ("md-wrapper.tmpl"). Pages are parsed on top of
// a private copy of the layouts, so a page may call any layout and may
// redefine the blocks a layout declares.
package templates

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sync"

	"github.com/vk/pagegrid/internal/fsutil"
	"github.com/vk/pagegrid/internal/gitinfo"
	"github.com/vk/pagegrid/internal/partner"
)

// Data is passed to every template.
type Data struct {
	URLRoot    string
	GithubLink string
	// Path is the page's source path relative to the source root.
	Path    string
	Content template.HTML
	Partner *partner.Info
	Git     gitinfo.Info
	BuildID string
}

// Funcs are the site services templates can call.
type Funcs struct {
	// Partners returns every partner profile.
	Partners func() ([]*partner.Info, error)
	// Markdown renders a Markdown string to trusted HTML.
	Markdown func(string) (template.HTML, error)
	// URL prefixes a site-absolute path with the URL root.
	URL func(string) string
	// Edit returns the repository edit link for a source path.
	Edit func(string) string
}

func (f Funcs) funcMap() template.FuncMap {
	m := template.FuncMap{
		"partners": func() ([]*partner.Info, error) { return nil, nil },
		"markdown": func(s string) template.HTML { return template.HTML(template.HTMLEscapeString(s)) },
		"url":      func(s string) string { return s },
		"edit":     func(s string) string { return "" },
	}
	if f.Partners != nil {
		m["partners"] = f.Partners
	}
	if f.Markdown != nil {
		m["markdown"] = f.Markdown
	}
	if f.URL != nil {
		m["url"] = f.URL
	}
	if f.Edit != nil {
		m["edit"] = f.Edit
	}
	return m
}

// Set holds the parsed layouts. It is safe for concurrent use.
type Set struct {
	mu      sync.Mutex
	base    *template.Template
	layouts []string
}

// Load parses every *.tmpl file below dir as a layout. A missing directory
// yields an empty set.
func Load(dir string, funcs Funcs) (*Set, error) {
	base := template.New("").Funcs(funcs.funcMap())
	names, err := fsutil.Selection{Include: []string{"**/*.tmpl"}}.Find(dir)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		src, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			return nil, fmt.Errorf("failed to read layout: %w", err)
		}
		if _, err := base.New(name).Parse(string(src)); err != nil {
			return nil, fmt.Errorf("failed to parse layout %s: %w", name, err)
		}
	}
	return &Set{base: base, layouts: names}, nil
}

// Layouts returns the names of the loaded layouts.
func (s *Set) Layouts() []string {
	return s.layouts
}

// clone returns a private copy of the layouts. The shared set is never
// executed, which keeps it clonable.
func (s *Set) clone() (*template.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.Clone()
}

// RenderLayout executes the named layout with data.
func (s *Set) RenderLayout(name string, data *Data) ([]byte, error) {
	t, err := s.clone()
	if err != nil {
		return nil, err
	}
	if t.Lookup(name) == nil {
		return nil, fmt.Errorf("layout %q not found", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("failed to render layout %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// RenderPage parses src as the page called name and executes it with data.
func (s *Set) RenderPage(name string, src []byte, data *Data) ([]byte, error) {
	t, err := s.clone()
	if err != nil {
		return nil, err
	}
	page, err := t.New(name).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render page %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
