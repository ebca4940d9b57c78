package integration_tests

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test for: a task argument referencing another task's output creates an
// implicit dependency and receives the value.
func TestTaskOutputs_ReferenceCreatesDependency(t *testing.T) {
	root, res, _, err := buildSite(t, `
task "copy_static" "content" {}

task "render_markdown" "docs" {
  arguments {
    highlight_css = format("css/highlight-%d.css", task.copy_static.content.output.files_written)
  }
}
`, map[string]string{
		"src/a.txt":  "a",
		"src/b.txt":  "b",
		"src/doc.md": "# doc\n",
	})
	require.NoError(t, err)
	assert.Len(t, res.Tasks, 2)
	assert.FileExists(t, filepath.Join(root, "build", "css", "highlight-2.css"))
}

// Test for: site attributes and git metadata are visible to task arguments.
func TestTaskOutputs_SiteAndGitVariables(t *testing.T) {
	root, _, _, err := buildSite(t, `
site {
  dest = "public"
}

task "render_markdown" "docs" {
  arguments {
    highlight_css = format("%s.css", lower(git.branch))
    exclude       = [site.dest]
  }
}
`, map[string]string{"src/doc.md": "# doc\n"})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "public", "unknown.css"))
	assert.FileExists(t, filepath.Join(root, "public", "doc.html"))
}
