package config

import (
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
)

// Model is the unified representation of a pipeline: one site and the tasks
// that build it.
type Model struct {
	Site  *Site
	Tasks []*Task
	// Files lists the configuration files the model was loaded from. Empty
	// when the embedded default pipeline is used.
	Files []string
}

// Site holds the settings shared by every task of a pipeline. All paths are
// absolute once the loader has resolved them.
type Site struct {
	// Root is the directory relative paths in the pipeline are resolved against.
	Root       string
	Source     string
	Dest       string
	CommonDir  string
	PartnerDir string

	Repository string
	EditBase   string

	// URLRoot overrides the computed URL root when URLRootSet is true.
	URLRoot    string
	URLRootSet bool

	BranchEnv        string
	ProductionBranch string
	InternalHosts    []string
	Debug            bool
}

// Rel returns path relative to the source directory, using forward slashes.
func (s *Site) Rel(path string) (string, error) {
	rel, err := filepath.Rel(s.Source, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Task is the format-agnostic representation of a `task` block.
type Task struct {
	Type      string
	Name      string
	Arguments hcl.Body
	DependsOn []string
}

// ID returns the task's graph address, "<type>.<name>".
func (t *Task) ID() string {
	return t.Type + "." + t.Name
}
