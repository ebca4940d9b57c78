package templates

import (
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pagegrid/internal/partner"
)

func writeLayouts(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return dir
}

func testFuncs() Funcs {
	return Funcs{
		Partners: func() ([]*partner.Info, error) {
			return []*partner.Info{{Name: "ACME"}, {Name: "Bolt"}}, nil
		},
		Markdown: func(s string) (template.HTML, error) {
			return template.HTML("<em>" + template.HTMLEscapeString(s) + "</em>"), nil
		},
		URL:  func(s string) string { return "/branch/x" + s },
		Edit: func(s string) string { return "https://github.com/o/r/edit/x/src/" + s },
	}
}

func TestRenderLayout(t *testing.T) {
	dir := writeLayouts(t, map[string]string{
		"md-wrapper.tmpl":   `{{define "title"}}Docs{{end}}<title>{{template "title" .}}</title><main>{{.Content}}</main><a href="{{edit .Path}}">edit</a>`,
		"partials/nav.tmpl": `<nav>{{range partners}}{{.Name}};{{end}}</nav>`,
		"not-a-layout.html": `ignored`,
	})
	set, err := Load(dir, testFuncs())
	require.NoError(t, err)
	assert.Equal(t, []string{"md-wrapper.tmpl", "partials/nav.tmpl"}, set.Layouts())

	out, err := set.RenderLayout("md-wrapper.tmpl", &Data{
		Path:    "docs/intro.md",
		Content: template.HTML("<p>hi</p>"),
	})
	require.NoError(t, err)
	assert.Equal(t, `<title>Docs</title><main><p>hi</p></main><a href="https://github.com/o/r/edit/x/src/docs/intro.md">edit</a>`, string(out))

	out, err = set.RenderLayout("partials/nav.tmpl", &Data{})
	require.NoError(t, err)
	assert.Equal(t, "<nav>ACME;Bolt;</nav>", string(out))

	_, err = set.RenderLayout("missing.tmpl", &Data{})
	assert.ErrorContains(t, err, `layout "missing.tmpl" not found`)
}

func TestRenderPage(t *testing.T) {
	dir := writeLayouts(t, map[string]string{
		"base.tmpl": `<h1>{{block "title" .}}Default{{end}}</h1>{{block "body" .}}{{end}}`,
	})
	set, err := Load(dir, testFuncs())
	require.NoError(t, err)

	page := `{{define "title"}}Home{{end}}{{define "body"}}<a href="{{url "/docs/"}}">docs</a>{{markdown "a<b"}}{{end}}{{template "base.tmpl" .}}`
	out, err := set.RenderPage("index.tmpl", []byte(page), &Data{})
	require.NoError(t, err)
	assert.Equal(t, `<h1>Home</h1><a href="/branch/x/docs/">docs</a><em>a&lt;b</em>`, string(out))

	t.Run("pages do not leak into each other", func(t *testing.T) {
		out, err := set.RenderPage("other.tmpl", []byte(`{{template "base.tmpl" .}}`), &Data{})
		require.NoError(t, err)
		assert.Equal(t, "<h1>Default</h1>", string(out))
	})

	t.Run("parse errors name the page", func(t *testing.T) {
		_, err := set.RenderPage("broken.tmpl", []byte(`{{if}}`), &Data{})
		assert.ErrorContains(t, err, "failed to parse page broken.tmpl")
	})

	t.Run("concurrent renders", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				out, err := set.RenderPage("index.tmpl", []byte(page), &Data{})
				assert.NoError(t, err)
				assert.True(t, strings.HasPrefix(string(out), "<h1>Home</h1>"))
			}()
		}
		wg.Wait()
	})
}

func TestLoadMissingDirAndDefaults(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "none"), Funcs{})
	require.NoError(t, err)
	assert.Empty(t, set.Layouts())

	out, err := set.RenderPage("p.tmpl", []byte(`{{url "/a"}}|{{markdown "<x>"}}|{{len partners}}`), &Data{})
	require.NoError(t, err)
	assert.Equal(t, "/a|&lt;x&gt;|0", string(out))
}
