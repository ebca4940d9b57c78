package clean

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pagegrid/internal/testutil"
)

func TestRun(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s := testutil.NewSite(t, map[string]string{
		"src/index.md":       "# home",
		"build/old.html":     "stale",
		"build/docs/a.html":  "stale",
		"tmp/cache/file.bin": "x",
	})

	out, err := Run(ctx, s, &Input{})
	require.NoError(t, err)
	assert.Equal(t, s.Config.Dest, out.Removed)
	assert.NoDirExists(t, s.Config.Dest)
	assert.FileExists(t, filepath.Join(s.Config.Source, "index.md"))

	out, err = Run(ctx, s, &Input{Path: "tmp/cache"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Config.Root, "tmp", "cache"), out.Removed)
	assert.NoDirExists(t, out.Removed)
	assert.DirExists(t, filepath.Join(s.Config.Root, "tmp"))
}

func TestRunMissingDirIsFine(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s := testutil.NewSite(t, nil)
	_, err := Run(ctx, s, &Input{})
	assert.NoError(t, err)
}

func TestRunRefusesSources(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s := testutil.NewSite(t, map[string]string{"src/index.md": "# home"})

	for _, path := range []string{"src", ".", s.Config.Root, filepath.Dir(s.Config.Root)} {
		_, err := Run(ctx, s, &Input{Path: path})
		assert.ErrorContains(t, err, "refusing to remove", path)
	}
	_, err := os.Stat(filepath.Join(s.Config.Source, "index.md"))
	assert.NoError(t, err)
}
