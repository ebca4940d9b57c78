package publish

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pagegrid/internal/registry"
	"github.com/vk/pagegrid/internal/testutil"
)

type received struct {
	method, contentType, auth, body string
}

func bucket(t *testing.T) (*httptest.Server, map[string]received, *sync.Mutex) {
	t.Helper()
	var mu sync.Mutex
	got := map[string]received{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.URL.Path == "/site/deny.txt" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		mu.Lock()
		got[r.URL.Path] = received{r.Method, r.Header.Get("Content-Type"), r.Header.Get("Authorization"), string(body)}
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, got, &mu
}

func defaultInput(t *testing.T) *Input {
	t.Helper()
	r := registry.New()
	(&Module{}).Register(r)
	return r.Runners["publish"].NewInput().(*Input)
}

func TestRun(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s := testutil.NewSite(t, map[string]string{
		"build/index.html":    "<p>home</p>",
		"build/css/main.css":  ".a{}",
		"build/data/raw.blob": "0101",
		"build/secret.env":    "KEY=1",
	})
	srv, got, _ := bucket(t)

	in := defaultInput(t)
	in.Endpoint = srv.URL + "/"
	in.Prefix = "site"
	in.Exclude = []string{"*.env"}
	in.Headers = map[string]string{"Authorization": "Bearer token"}
	out, err := Run(ctx, s, in)
	require.NoError(t, err)

	assert.Equal(t, []string{
		srv.URL + "/site/css/main.css",
		srv.URL + "/site/data/raw.blob",
		srv.URL + "/site/index.html",
	}, out.Files)
	require.Len(t, got, 3)
	assert.Equal(t, received{"PUT", "text/html; charset=utf-8", "Bearer token", "<p>home</p>"}, got["/site/index.html"])
	assert.Equal(t, "text/css; charset=utf-8", got["/site/css/main.css"].contentType)
	assert.Equal(t, "application/octet-stream", got["/site/data/raw.blob"].contentType)
}

func TestRunRejectedUpload(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s := testutil.NewSite(t, map[string]string{"build/deny.txt": "x"})
	srv, _, _ := bucket(t)

	in := defaultInput(t)
	in.Endpoint = srv.URL
	in.Prefix = "site"
	_, err := Run(ctx, s, in)
	assert.ErrorContains(t, err, "403 Forbidden")
}

func TestRunRequiresEndpoint(t *testing.T) {
	ctx, _ := testutil.Context(t)
	_, err := Run(ctx, testutil.NewSite(t, nil), defaultInput(t))
	assert.ErrorContains(t, err, "endpoint must not be empty")
}
