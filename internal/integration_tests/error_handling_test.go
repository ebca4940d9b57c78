package integration_tests

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test for: a failing task fails the build, its dependents are skipped and
// no build info is written.
func TestErrorHandling_FailureSkipsDependents(t *testing.T) {
	root, res, logs, err := buildSite(t, `
task "compile_less" "styles" {}

task "copy_static" "content" {
  depends_on = ["compile_less.styles"]
}
`, map[string]string{
		"src/css/main.less": ".a { color: @missing; }\n",
		"src/a.txt":         "a",
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "execution failed for compile_less.styles")
	assert.NotContains(t, err.Error(), "copy_static.content,")
	assert.Equal(t, err, res.Err)

	assert.NoFileExists(t, filepath.Join(root, "build", "a.txt"))
	assert.NoFileExists(t, filepath.Join(root, "build", "build-info.json"))
	assert.Contains(t, logs.String(), "Skipping dependent task due to upstream failure.")
	assert.Contains(t, logs.String(), "dependency=compile_less.styles")
}

// Test for: references to unknown tasks or undeclared outputs are rejected
// before anything runs.
func TestErrorHandling_InvalidReferences(t *testing.T) {
	tests := []struct {
		name     string
		pipeline string
		wantErr  string
	}{
		{"unknown task", `
task "render_markdown" "docs" {
  arguments {
    layout = task.copy_static.missing.output.files
  }
}`, "references unknown task 'copy_static.missing'"},
		{"undeclared output", `
task "copy_static" "content" {}
task "render_markdown" "docs" {
  arguments {
    layout = task.copy_static.content.output.nope
  }
}`, "undeclared output 'nope'"},
		{"cycle", `
task "copy_static" "a" {
  depends_on = ["copy_static.b"]
}
task "copy_static" "b" {
  depends_on = ["copy_static.a"]
}`, "cycle detected"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := buildSite(t, tc.pipeline, nil)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}
