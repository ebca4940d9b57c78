package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/dag"
	"github.com/vk/pagegrid/internal/fsutil"
)

// BuildInfoFile is written to the dest directory after a successful build.
const BuildInfoFile = "build-info.json"

// BuildResult describes one build.
type BuildResult struct {
	BuildID  string        `json:"build_id"`
	Branch   string        `json:"branch"`
	Commit   string        `json:"commit"`
	URLRoot  string        `json:"url_root"`
	Tasks    []string      `json:"tasks"`
	Duration time.Duration `json:"-"`
	Err      error         `json:"-"`
}

// Build runs the pipeline once.
func (a *App) Build(ctx context.Context) (*BuildResult, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	res, err := a.build(ctx)
	if res != nil {
		a.last.Store(res)
	}
	return res, err
}

func (a *App) build(ctx context.Context) (*BuildResult, error) {
	start := time.Now()

	model := a.Model()
	siteCfg := model.Site
	if a.staged {
		staged := *model.Site
		staged.Dest = model.Site.Dest + stagingSuffix
		if err := os.RemoveAll(staged.Dest); err != nil {
			return nil, fmt.Errorf("failed to clear staging directory: %w", err)
		}
		defer os.RemoveAll(staged.Dest)
		siteCfg = &staged
	}
	s := a.newSite(ctx, siteCfg)
	ctx = ctxlog.With(ctx, "build_id", s.BuildID)
	logger := ctxlog.FromContext(ctx)

	res := &BuildResult{
		BuildID: s.BuildID,
		Branch:  s.Git.Branch,
		Commit:  s.Git.Commit,
		URLRoot: s.URLRoot,
	}

	graph, err := dag.Build(ctx, model, a.registry)
	if err != nil {
		res.Err = fmt.Errorf("failed to build dependency graph: %w", err)
		return res, res.Err
	}
	res.Tasks = graph.IDs()
	logger.Debug("Dependency graph built.", "node_count", len(graph.Nodes))

	if len(graph.Nodes) == 0 {
		logger.Warn("No tasks found in pipeline, execution not required.")
	} else {
		logger.Info("🚀 Starting concurrent execution...", "tasks", len(graph.Nodes), "workers", a.config.Workers, "url_root", s.URLRoot)
		exec := dag.NewExecutor(graph, a.config.Workers, a.registry, s)
		if err := exec.Run(ctx); err != nil {
			res.Duration = time.Since(start)
			res.Err = err
			return res, err
		}
	}

	res.Duration = time.Since(start)
	if err := writeBuildInfo(filepath.Join(s.Config.Dest, BuildInfoFile), res); err != nil {
		res.Err = err
		return res, err
	}
	if a.staged {
		if err := swapDir(s.Config.Dest, model.Site.Dest); err != nil {
			res.Err = fmt.Errorf("failed to publish staged build: %w", err)
			return res, res.Err
		}
		logger.Debug("Staged build published.", "dest", model.Site.Dest)
	}
	logger.Info("🏁 Execution finished.", "duration", res.Duration.Round(time.Millisecond).String())
	return res, nil
}

const (
	stagingSuffix  = ".staging"
	previousSuffix = ".previous"
)

// swapDir replaces dest with staged. The old dest is moved aside first and
// removed once staged is in place.
func swapDir(staged, dest string) error {
	previous := dest + previousSuffix
	if err := os.RemoveAll(previous); err != nil {
		return err
	}
	hadDest := true
	if err := os.Rename(dest, previous); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		hadDest = false
	}
	if err := os.Rename(staged, dest); err != nil {
		if hadDest {
			_ = os.Rename(previous, dest)
		}
		return err
	}
	return os.RemoveAll(previous)
}

func writeBuildInfo(path string, res *BuildResult) error {
	data, err := json.MarshalIndent(struct {
		*BuildResult
		Duration string `json:"duration"`
	}{res, res.Duration.Round(time.Millisecond).String()}, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFile(path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write build info: %w", err)
	}
	return nil
}
