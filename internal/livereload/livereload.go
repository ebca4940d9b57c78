// Package livereload serves a build directory and tells connected browsers
// to reload after a rebuild. Browsers connect over socket.io; every HTML page
// served gets the client snippet injected before </body>.
package livereload

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/zishang520/socket.io/v2/socket"
)

const (
	// ReloadEvent is emitted to every client after a rebuild.
	ReloadEvent = "reload"
	// ScriptPath serves the reload client.
	ScriptPath = "/__livereload.js"
	// ClientLibURL is the socket.io browser client the snippet loads.
	ClientLibURL = "https://cdn.socket.io/4.7.5/socket.io.min.js"
)

const clientScript = `(function () {
  var socket = io({ path: "/socket.io/" });
  socket.on("reload", function () { window.location.reload(); });
})();
`

// Snippet is injected into every served HTML page.
var Snippet = []byte(`<script src="` + ClientLibURL + `"></script><script src="` + ScriptPath + `"></script>`)

// Reload describes the rebuild that triggers a reload.
type Reload struct {
	BuildID string
	Paths   []string
}

// Server serves dir and broadcasts reloads.
type Server struct {
	dir     string
	io      *socket.Server
	clients atomic.Int64
}

// New creates a server for the build directory dir.
func New(ctx context.Context, dir string) *Server {
	logger := ctxlog.FromContext(ctx)
	s := &Server{
		dir: dir,
		io:  socket.NewServer(nil, nil),
	}
	s.io.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		n := s.clients.Add(1)
		logger.Debug("Live reload client connected.", "sid", client.Id(), "clients", n)
		client.On("disconnect", func(...any) {
			n := s.clients.Add(-1)
			logger.Debug("Live reload client disconnected.", "sid", client.Id(), "clients", n)
		})
	})
	return s
}

// Clients returns the number of connected browsers.
func (s *Server) Clients() int64 {
	return s.clients.Load()
}

// Handler returns the HTTP handler for the site, the reload client and the
// socket.io endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", s.io.ServeHandler(nil))
	mux.HandleFunc(ScriptPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		_, _ = w.Write([]byte(clientScript))
	})
	mux.HandleFunc("/", s.serveFile)
	return mux
}

// Reload tells every connected browser to reload.
func (s *Server) Reload(ctx context.Context, r Reload) {
	ctxlog.FromContext(ctx).Info("🔄 Reloading browsers", "clients", s.clients.Load(), "build_id", r.BuildID)
	s.io.Emit(ReloadEvent, map[string]any{"build_id": r.BuildID, "paths": r.Paths})
}

// Close disconnects all clients.
func (s *Server) Close() {
	s.io.Close(nil)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)
	full := filepath.Join(s.dir, filepath.FromSlash(name))

	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		full = filepath.Join(full, "index.html")
		info, err = os.Stat(full)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if !strings.EqualFold(filepath.Ext(full), ".html") {
		http.ServeFile(w, r, full)
		return
	}

	data, err := os.ReadFile(full)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, info.Name(), time.Time{}, bytes.NewReader(Inject(data)))
}

// Inject inserts Snippet before the last </body>, or appends it when the
// page has none.
func Inject(page []byte) []byte {
	idx := lastIndexFold(page, []byte("</body>"))
	if idx < 0 {
		return append(append([]byte{}, page...), Snippet...)
	}
	out := make([]byte, 0, len(page)+len(Snippet))
	out = append(out, page[:idx]...)
	out = append(out, Snippet...)
	return append(out, page[idx:]...)
}

func lastIndexFold(s, sep []byte) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		if bytes.EqualFold(s[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}
