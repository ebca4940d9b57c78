package hcl

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pagegrid/internal/config"
	"github.com/vk/pagegrid/internal/ctxlog"
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestLoadSiteDefaults(t *testing.T) {
	dir := writeFiles(t, map[string]string{"site.hcl": `task "clean" "build_dir" {}`})

	model, err := NewLoader().Load(testContext(), dir)
	require.NoError(t, err)

	want := &config.Site{
		Root:             dir,
		Source:           filepath.Join(dir, "src"),
		Dest:             filepath.Join(dir, "build"),
		CommonDir:        filepath.Join(dir, "src", "_common"),
		PartnerDir:       filepath.Join(dir, "src", "partner"),
		EditBase:         DefaultEditBase,
		BranchEnv:        DefaultBranchEnv,
		ProductionBranch: DefaultProductionBranch,
		InternalHosts:    DefaultInternalHosts,
	}
	if diff := cmp.Diff(want, model.Site); diff != "" {
		t.Errorf("site mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{filepath.Join(dir, "site.hcl")}, model.Files)
}

func TestLoadSiteBlock(t *testing.T) {
	t.Setenv("PAGEGRID_TEST_REPO", "example/docs")
	dir := writeFiles(t, map[string]string{"site.hcl": `
site {
  source            = "content"
  dest              = "/tmp/pagegrid-out"
  common_dir        = "layouts"
  repository        = env("PAGEGRID_TEST_REPO")
  url_root          = "/preview/"
  production_branch = lower("MAIN")
  internal_hosts    = ["https://example.com"]
  debug             = true
}
`})

	model, err := NewLoader().Load(testContext(), dir)
	require.NoError(t, err)
	s := model.Site
	assert.Equal(t, filepath.Join(dir, "content"), s.Source)
	assert.Equal(t, filepath.Clean("/tmp/pagegrid-out"), s.Dest)
	assert.Equal(t, filepath.Join(dir, "content", "layouts"), s.CommonDir)
	assert.Equal(t, "example/docs", s.Repository)
	assert.True(t, s.URLRootSet)
	assert.Equal(t, "/preview/", s.URLRoot)
	assert.Equal(t, "main", s.ProductionBranch)
	assert.Equal(t, []string{"https://example.com"}, s.InternalHosts)
	assert.True(t, s.Debug)
	assert.Empty(t, model.Tasks)
}

func TestLoadMergesFiles(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.hcl": `
task "clean" "build_dir" {}
`,
		"nested/b.hcl": `
task "copy_static" "content" {
  depends_on = ["clean.build_dir"]
  arguments {
    exclude = ["**/*.psd"]
  }
}
`,
		"notes.txt": "ignored",
	})

	model, err := NewLoader().Load(testContext(), dir)
	require.NoError(t, err)
	require.Len(t, model.Tasks, 2)
	assert.Equal(t, "clean.build_dir", model.Tasks[0].ID())
	assert.Equal(t, "copy_static.content", model.Tasks[1].ID())
	assert.Equal(t, []string{"clean.build_dir"}, model.Tasks[1].DependsOn)

	attrs, diags := model.Tasks[1].Arguments.JustAttributes()
	require.False(t, diags.HasErrors())
	assert.Contains(t, attrs, "exclude")
}

func TestLoadDefaultPipeline(t *testing.T) {
	model, err := NewLoader().Load(testContext())
	require.NoError(t, err)
	assert.Empty(t, model.Files)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, model.Site.Root)
	assert.Equal(t, "archilogic-com/3d-io-website", model.Site.Repository)

	ids := make([]string, 0, len(model.Tasks))
	for _, task := range model.Tasks {
		ids = append(ids, task.ID())
	}
	want := []string{
		"clean.build_dir", "copy_static.content", "render_templates.pages",
		"render_markdown.docs", "partner_pages.profiles", "compile_less.styles",
	}
	if diff := cmp.Diff(want, ids, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("tasks mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{"syntax", map[string]string{"a.hcl": `task "clean" {`}, "failed to parse HCL file"},
		{"missing label", map[string]string{"a.hcl": `task "clean" {}`}, "failed to decode HCL file"},
		{"duplicate task", map[string]string{
			"a.hcl": `task "clean" "x" {}`,
			"b.hcl": `task "clean" "x" {}`,
		}, `duplicate task "clean.x"`},
		{"duplicate site", map[string]string{
			"a.hcl": `site {}`,
			"b.hcl": `site {}`,
		}, "duplicate site block"},
		{"unknown site attribute", map[string]string{"a.hcl": `site { colour = "red" }`}, "failed to decode site block"},
		{"same source and dest", map[string]string{"a.hcl": `site {
  source = "out"
  dest   = "out"
}`}, "source and dest must differ"},
		{"no files", map[string]string{"a.txt": "x"}, "no .hcl pipeline files found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeFiles(t, tc.files)
			_, err := NewLoader().Load(testContext(), dir)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}

	_, err := NewLoader().Load(testContext(), filepath.Join(t.TempDir(), "missing.hcl"))
	assert.ErrorContains(t, err, "error accessing path")
}
