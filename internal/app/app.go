package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/vk/pagegrid/internal/config"
	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/gitinfo"
	"github.com/vk/pagegrid/internal/registry"
	"github.com/vk/pagegrid/internal/site"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	loader   config.Loader
	registry *registry.Registry

	// mu guards model, which Serve replaces when pipeline files change.
	mu    sync.RWMutex
	model *config.Model

	// detectGit resolves the revision; tests replace it.
	detectGit func(ctx context.Context, opts gitinfo.Options) gitinfo.Info
	// newBuildID returns a fresh build identifier.
	newBuildID func() string

	// staged makes builds write to a staging directory that replaces dest
	// only when the build succeeds. Serve sets it.
	staged bool

	last atomic.Pointer[BuildResult]
}

// NewApp creates an App: it configures the logger, loads the pipeline,
// registers the runners and validates both against each other. With no
// modules the core runners are registered.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("Runner modules registered.", "count", len(modules))

	if err := reg.ValidateRunners(ctx); err != nil {
		// Registration is compiled in; a mismatch is a programming error.
		panic(err)
	}

	a := &App{
		outW:       outW,
		logger:     logger,
		config:     cfg,
		loader:     loader,
		registry:   reg,
		detectGit:  gitinfo.Detect,
		newBuildID: uuid.NewString,
	}
	model, err := a.loadModel(ctx)
	if err != nil {
		return nil, err
	}
	a.model = model
	return a, nil
}

// loadModel loads and validates the pipeline.
func (a *App) loadModel(ctx context.Context) (*config.Model, error) {
	var paths []string
	if a.config.PipelinePath != "" {
		paths = append(paths, a.config.PipelinePath)
	}
	model, err := a.loader.Load(ctx, paths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline: %w", err)
	}
	if err := a.registry.ValidateModel(model); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Pipeline loaded.", "tasks", len(model.Tasks), "files", len(model.Files))
	return model, nil
}

// Model returns the loaded pipeline.
func (a *App) Model() *config.Model {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// LastBuild returns the result of the most recent build, or nil.
func (a *App) LastBuild() *BuildResult {
	return a.last.Load()
}

// newSite creates the build context for one build. Every build gets fresh
// template, Markdown and partner caches.
func (a *App) newSite(ctx context.Context, cfg *config.Site) *site.Site {
	git := a.detectGit(ctx, gitinfo.Options{
		Dir:       cfg.Root,
		BranchEnv: cfg.BranchEnv,
	})
	return site.New(cfg, git, a.newBuildID(), a.config.Workers)
}
