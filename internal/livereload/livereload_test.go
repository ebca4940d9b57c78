package livereload

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pagegrid/internal/ctxlog"
)

func TestInject(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{"before body", "<html><body><p>x</p></body></html>", "<html><body><p>x</p>" + string(Snippet) + "</body></html>"},
		{"upper case", "<BODY>x</BODY>", "<BODY>x" + string(Snippet) + "</BODY>"},
		{"no body", "<p>x</p>", "<p>x</p>" + string(Snippet)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, string(Inject([]byte(tc.page))))
		})
	}
}

func TestHandler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<body>home</body>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "index.html"), []byte("<body>docs</body>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.css"), []byte("a{}"), 0o644))

	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	s := New(ctx, dir)
	t.Cleanup(s.Close)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	get := func(path string) (*http.Response, string) {
		t.Helper()
		client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
		resp, err := client.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(body)
	}

	resp, body := get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<body>home"+string(Snippet)+"</body>", body)

	resp, _ = get("/docs")
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/docs/", resp.Header.Get("Location"))

	_, body = get("/docs/")
	assert.Contains(t, body, "docs"+string(Snippet))

	_, body = get("/main.css")
	assert.Equal(t, "a{}", body)

	resp, _ = get("/missing.html")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = get(ScriptPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `socket.on("reload"`)

	assert.Equal(t, int64(0), s.Clients())
	s.Reload(ctx, Reload{BuildID: "b1"})
}
