package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"

	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/livereload"
	"github.com/vk/pagegrid/internal/watch"
	"golang.org/x/sync/errgroup"
)

// Serve builds the site, serves the dest directory with live reload and
// rebuilds whenever a source or pipeline file changes, until ctx is done.
// The site directories are fixed for the lifetime of the server.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", a.config.Port, err)
	}
	var healthLn net.Listener
	if a.config.HealthcheckPort > 0 {
		healthLn, err = net.Listen("tcp", fmt.Sprintf(":%d", a.config.HealthcheckPort))
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("failed to listen on health check port %d: %w", a.config.HealthcheckPort, err)
		}
	}
	return a.serve(ctx, ln, healthLn)
}

func (a *App) serve(ctx context.Context, ln, healthLn net.Listener) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	logger := a.logger
	a.staged = true

	if _, err := a.Build(ctx); err != nil {
		logger.Error("Initial build failed, serving previous output.", "error", err)
	}

	closeListeners := func() {
		_ = ln.Close()
		if healthLn != nil {
			_ = healthLn.Close()
		}
	}
	dest := a.Model().Site.Dest
	if err := os.MkdirAll(dest, 0o755); err != nil {
		closeListeners()
		return fmt.Errorf("failed to create dest directory: %w", err)
	}
	w, err := watch.New(ctx, a.watchPaths(), watch.Options{
		Ignore: []string{dest, dest + stagingSuffix, dest + previousSuffix},
	})
	if err != nil {
		closeListeners()
		return fmt.Errorf("failed to watch sources: %w", err)
	}

	lr := livereload.New(ctx, dest)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.Handle("/", lr.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveHTTP(gctx, "🌐 Development server", ln, mux)
	})
	if healthLn != nil {
		healthMux := http.NewServeMux()
		healthMux.HandleFunc("/health", a.healthHandler)
		g.Go(func() error {
			return serveHTTP(gctx, "🩺 Health check server", healthLn, healthMux)
		})
	}
	g.Go(func() error {
		return w.Run(gctx, func(ctx context.Context, paths []string) {
			a.rebuild(ctx, lr, paths)
		})
	})
	g.Go(func() error {
		<-gctx.Done()
		lr.Close()
		return nil
	})
	return g.Wait()
}

// watchPaths returns the source directory and every pipeline file.
func (a *App) watchPaths() []string {
	model := a.Model()
	return append([]string{model.Site.Source}, model.Files...)
}

// rebuild reloads the pipeline when one of its files changed, builds, and
// tells the browsers to reload. Failures are logged and the server keeps
// running.
func (a *App) rebuild(ctx context.Context, lr *livereload.Server, paths []string) {
	logger := ctxlog.FromContext(ctx)

	if a.pipelineChanged(paths) {
		model, err := a.loadModel(ctx)
		if err != nil {
			logger.Error("Pipeline reload failed, keeping previous pipeline.", "error", err)
			return
		}
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		logger.Info("Pipeline reloaded.", "tasks", len(model.Tasks))
	}

	res, err := a.Build(ctx)
	if err != nil {
		logger.Error("Rebuild failed.", "error", err)
		return
	}
	lr.Reload(ctx, livereload.Reload{BuildID: res.BuildID, Paths: a.relPaths(paths)})
}

func (a *App) pipelineChanged(paths []string) bool {
	for _, f := range a.Model().Files {
		abs, err := filepath.Abs(f)
		if err == nil && slices.Contains(paths, abs) {
			return true
		}
	}
	return false
}

// relPaths makes paths relative to the site root where possible.
func (a *App) relPaths(paths []string) []string {
	root := a.Model().Site.Root
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if rel, err := filepath.Rel(root, p); err == nil {
			p = filepath.ToSlash(rel)
		}
		out = append(out, p)
	}
	return out
}
