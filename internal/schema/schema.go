// Package schema holds the gohcl decoding targets for pipeline files.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// --- Pipeline file structures ---

// TaskArgs represents the content of the 'arguments' block within a task.
// It is decoded lazily, once the outputs of upstream tasks are known.
type TaskArgs struct {
	Body hcl.Body `hcl:",remain"`
}

// Task represents a `task` block: a runnable instance of a registered
// runner type.
type Task struct {
	Type      string    `hcl:"type,label"`
	Name      string    `hcl:"name,label"`
	Arguments *TaskArgs `hcl:"arguments,block"`
	DependsOn []string  `hcl:"depends_on,optional"`
}

// SiteBlock represents the `site` block. Its attributes may call functions,
// so the body is decoded in a second pass into SiteAttributes.
type SiteBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// SiteAttributes are the attributes accepted inside a `site` block.
type SiteAttributes struct {
	Source           string   `hcl:"source,optional"`
	Dest             string   `hcl:"dest,optional"`
	CommonDir        string   `hcl:"common_dir,optional"`
	PartnerDir       string   `hcl:"partner_dir,optional"`
	Repository       string   `hcl:"repository,optional"`
	EditBase         string   `hcl:"edit_base,optional"`
	URLRoot          *string  `hcl:"url_root,optional"`
	BranchEnv        string   `hcl:"branch_env,optional"`
	ProductionBranch string   `hcl:"production_branch,optional"`
	InternalHosts    []string `hcl:"internal_hosts,optional"`
	Debug            bool     `hcl:"debug,optional"`
}

// PipelineFile is the top-level structure of a pipeline file.
type PipelineFile struct {
	Site   *SiteBlock `hcl:"site,block"`
	Tasks  []*Task    `hcl:"task,block"`
	Remain hcl.Body   `hcl:",remain"`
}
