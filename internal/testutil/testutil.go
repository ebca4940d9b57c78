// Package testutil provides fixtures for runner and app tests: a site tree in
// a temporary directory and a context carrying a captured logger.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/pagegrid/internal/config"
	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/gitinfo"
	"github.com/vk/pagegrid/internal/site"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Context returns a context whose debug logger writes into the returned
// buffer. The log is printed when PAGEGRID_TEST_LOGS is "true".
func Context(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() {
		if os.Getenv("PAGEGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String())
		}
	})
	return ctxlog.WithLogger(context.Background(), logger), buf
}

// WriteFiles writes files, keyed by slash-separated path, below root.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// SiteConfig returns the configuration of a site rooted at root with the
// default layout: src, build, src/_common and src/partner.
func SiteConfig(root string) *config.Site {
	source := filepath.Join(root, "src")
	return &config.Site{
		Root:             root,
		Source:           source,
		Dest:             filepath.Join(root, "build"),
		CommonDir:        filepath.Join(source, "_common"),
		PartnerDir:       filepath.Join(source, "partner"),
		Repository:       "example/website",
		EditBase:         "https://github.com",
		ProductionBranch: "master",
		InternalHosts:    []string{"http://3d.io", "https://3d.io"},
	}
}

// NewSite writes files below a fresh site root and returns its build
// context. File keys are relative to the root, e.g. "src/index.md".
func NewSite(t *testing.T, files map[string]string) *site.Site {
	t.Helper()
	root := t.TempDir()
	WriteFiles(t, root, files)
	return site.New(SiteConfig(root), gitinfo.Info{Branch: "master", Commit: "0123abc"}, "test-build", 4)
}

// ReadDest returns the content of a file below the site's dest directory.
func ReadDest(t *testing.T, s *site.Site, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(s.Config.Dest, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}
