// Package gitinfo resolves the branch and commit a site is built from and
// derives the URL root that branch deployments are served under.
package gitinfo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/vk/pagegrid/internal/ctxlog"
)

// Unknown is reported when git metadata cannot be determined.
const Unknown = "unknown"

// Info describes the revision being built.
type Info struct {
	Branch string
	Commit string
	// FromEnv is true when the branch came from the CI environment variable.
	FromEnv bool
}

// Options controls how Detect resolves the revision.
type Options struct {
	// Dir is the working tree to query.
	Dir string
	// BranchEnv names the CI variable holding the deployed branch.
	BranchEnv string
	// Run executes git; tests replace it. Defaults to RunGit.
	Run func(ctx context.Context, dir string, args ...string) (string, error)
}

// Detect returns the branch and commit. The CI branch variable wins over the
// checked-out branch. Failures fall back to Unknown with a warning, so a
// build outside a git checkout still works.
func Detect(ctx context.Context, opts Options) Info {
	logger := ctxlog.FromContext(ctx)
	run := opts.Run
	if run == nil {
		run = RunGit
	}

	info := Info{Branch: Unknown, Commit: Unknown}

	if opts.BranchEnv != "" {
		if branch := os.Getenv(opts.BranchEnv); branch != "" {
			info.Branch = branch
			info.FromEnv = true
		}
	}
	if !info.FromEnv {
		branch, err := run(ctx, opts.Dir, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			logger.Warn("Could not determine git branch.", "dir", opts.Dir, "error", err)
		} else {
			info.Branch = branch
		}
	}

	commit, err := run(ctx, opts.Dir, "rev-parse", "HEAD")
	if err != nil {
		logger.Warn("Could not determine git commit.", "dir", opts.Dir, "error", err)
	} else {
		info.Commit = commit
	}

	logger.Debug("Git revision detected.", "branch", info.Branch, "commit", info.Commit, "from_env", info.FromEnv)
	return info
}

// URLRoot returns the path prefix a build is served under. Only branches
// deployed by CI get a prefix; local builds and the production branch are
// served from the root.
func (i Info) URLRoot(productionBranch string) string {
	if i.FromEnv && i.Branch != productionBranch {
		return "/branch/" + i.Branch
	}
	return ""
}

// RunGit runs git in dir and returns its trimmed standard output.
func RunGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
