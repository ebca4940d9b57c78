package hcl

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/vk/pagegrid/internal/config"
	"github.com/vk/pagegrid/internal/schema"
)

// Site defaults, matching the layout of the website repository.
const (
	DefaultSource           = "src"
	DefaultDest             = "build"
	DefaultCommonDir        = "_common"
	DefaultPartnerDir       = "partner"
	DefaultEditBase         = "https://github.com"
	DefaultBranchEnv        = "TRAVIS_BRANCH"
	DefaultProductionBranch = "master"
)

// DefaultInternalHosts are link prefixes that stay in the current tab.
var DefaultInternalHosts = []string{"http://3d.io", "https://3d.io"}

// translateTask converts the HCL-specific task schema into the agnostic model.
func translateTask(t *schema.Task) *config.Task {
	var body hcl.Body = hcl.EmptyBody()
	if t.Arguments != nil && t.Arguments.Body != nil {
		body = t.Arguments.Body
	}
	return &config.Task{
		Type:      t.Type,
		Name:      t.Name,
		Arguments: body,
		DependsOn: t.DependsOn,
	}
}

// translateSite evaluates the site block and fills in defaults. Paths are
// made absolute against rootDir; common and partner directories are
// relative to the source directory.
func translateSite(block *schema.SiteBlock, rootDir string) (*config.Site, error) {
	attrs := schema.SiteAttributes{
		Source:           DefaultSource,
		Dest:             DefaultDest,
		EditBase:         DefaultEditBase,
		BranchEnv:        DefaultBranchEnv,
		ProductionBranch: DefaultProductionBranch,
	}
	if block != nil && block.Body != nil {
		evalCtx := &hcl.EvalContext{Functions: config.Functions()}
		if diags := gohcl.DecodeBody(block.Body, evalCtx, &attrs); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode site block: %w", diags)
		}
	}

	site := &config.Site{
		Root:             rootDir,
		Source:           resolve(rootDir, attrs.Source),
		Dest:             resolve(rootDir, attrs.Dest),
		Repository:       attrs.Repository,
		EditBase:         attrs.EditBase,
		BranchEnv:        attrs.BranchEnv,
		ProductionBranch: attrs.ProductionBranch,
		InternalHosts:    attrs.InternalHosts,
		Debug:            attrs.Debug,
	}
	if site.InternalHosts == nil {
		site.InternalHosts = append([]string(nil), DefaultInternalHosts...)
	}
	if attrs.URLRoot != nil {
		site.URLRoot = *attrs.URLRoot
		site.URLRootSet = true
	}

	commonDir := attrs.CommonDir
	if commonDir == "" {
		commonDir = DefaultCommonDir
	}
	site.CommonDir = resolve(site.Source, commonDir)

	partnerDir := attrs.PartnerDir
	if partnerDir == "" {
		partnerDir = DefaultPartnerDir
	}
	site.PartnerDir = resolve(site.Source, partnerDir)

	if site.Source == site.Dest {
		return nil, fmt.Errorf("site source and dest must differ, both are %s", site.Source)
	}
	return site, nil
}

func resolve(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}
