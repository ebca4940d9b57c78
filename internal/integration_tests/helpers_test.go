package integration_tests

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/pagegrid/internal/app"
	"github.com/vk/pagegrid/internal/hcl"
	"github.com/vk/pagegrid/internal/testutil"
)

// layouts are the common templates every site fixture shares.
var layouts = map[string]string{
	"src/_common/header.tmpl":               `{{define "header"}}<header><a href="/">home</a></header>{{end}}`,
	"src/_common/md-wrapper.tmpl":           `<html><body>{{template "header" .}}<main>{{.Content}}</main></body></html>`,
	"src/_common/partner-profile-page.tmpl": `<html><body>{{with .Partner}}<h1>{{.Name}}</h1>{{end}}{{.Content}}<nav>{{range partners}}<a href="{{url .URL}}">{{.Name}}</a>{{end}}</nav></body></html>`,
}

// buildSite writes the pipeline and files below a temporary root, runs one
// build through the app and returns the root.
func buildSite(t *testing.T, pipeline string, files map[string]string) (string, *app.BuildResult, *testutil.SafeBuffer, error) {
	t.Helper()
	t.Setenv("TRAVIS_BRANCH", "")

	root := t.TempDir()
	testutil.WriteFiles(t, root, layouts)
	testutil.WriteFiles(t, root, files)
	testutil.WriteFiles(t, root, map[string]string{"pipeline.hcl": pipeline})

	cfg, err := app.NewConfig(app.Config{
		PipelinePath: filepath.Join(root, "pipeline.hcl"),
		LogLevel:     "debug",
		Workers:      4,
	})
	require.NoError(t, err)

	logs := &testutil.SafeBuffer{}
	t.Cleanup(func() {
		if os.Getenv("PAGEGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})

	a, err := app.NewApp(logs, cfg, hcl.NewLoader())
	require.NoError(t, err)
	res, err := a.Build(context.Background())
	return root, res, logs, err
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}
