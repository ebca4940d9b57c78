package hcl

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/pagegrid/internal/config"
	"github.com/vk/pagegrid/internal/ctxlog"
	"github.com/vk/pagegrid/internal/schema"
)

// DefaultPipelineName is the synthetic filename used in diagnostics for the
// built-in pipeline.
const DefaultPipelineName = "default.hcl"

//go:embed default.hcl
var defaultPipeline []byte

// DefaultPipeline returns the source of the built-in pipeline.
func DefaultPipeline() []byte {
	return defaultPipeline
}

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL pipeline loader.
func NewLoader() *Loader {
	return &Loader{}
}

// parsedFile pairs a decoded pipeline file with its origin.
type parsedFile struct {
	path string
	root schema.PipelineFile
}

// Load parses every .hcl file reachable from paths and merges them into one
// model. Relative site paths resolve against the directory of the first
// file, or the working directory for the built-in pipeline.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	parser := hclparse.NewParser()
	var files []parsedFile
	var rootDir string

	if len(paths) == 0 {
		logger.Debug("No pipeline path given, using built-in pipeline.")
		f, diags := parser.ParseHCL(defaultPipeline, DefaultPipelineName)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse built-in pipeline: %w", diags)
		}
		parsed, err := decodeFile(f, DefaultPipelineName)
		if err != nil {
			return nil, err
		}
		files = append(files, *parsed)
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		rootDir = wd
	} else {
		hclFiles, err := l.findAllHCLFiles(paths)
		if err != nil {
			return nil, err
		}
		if len(hclFiles) == 0 {
			return nil, fmt.Errorf("no .hcl pipeline files found in %v", paths)
		}
		logger.Debug("Discovered HCL files.", "count", len(hclFiles))

		for _, path := range hclFiles {
			f, diags := parser.ParseHCLFile(path)
			if diags.HasErrors() {
				return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
			}
			parsed, err := decodeFile(f, path)
			if err != nil {
				return nil, err
			}
			files = append(files, *parsed)
		}
		abs, err := filepath.Abs(filepath.Dir(hclFiles[0]))
		if err != nil {
			return nil, err
		}
		rootDir = abs
	}

	model := &config.Model{}
	seen := make(map[string]string)
	var siteBlock *schema.SiteBlock
	var siteFile string

	for _, f := range files {
		if f.path != DefaultPipelineName {
			model.Files = append(model.Files, f.path)
		}
		if f.root.Site != nil {
			if siteBlock != nil {
				return nil, fmt.Errorf("duplicate site block in %s (first declared in %s)", f.path, siteFile)
			}
			siteBlock, siteFile = f.root.Site, f.path
		}
		for _, t := range f.root.Tasks {
			task := translateTask(t)
			if prev, ok := seen[task.ID()]; ok {
				return nil, fmt.Errorf("duplicate task %q in %s (first declared in %s)", task.ID(), f.path, prev)
			}
			seen[task.ID()] = f.path
			model.Tasks = append(model.Tasks, task)
		}
	}

	site, err := translateSite(siteBlock, rootDir)
	if err != nil {
		return nil, err
	}
	model.Site = site

	logger.Debug("HCL loading complete.", "tasks", len(model.Tasks), "source", site.Source, "dest", site.Dest)
	return model, nil
}

// decodeFile decodes the structural part of a pipeline file. Attribute
// expressions stay unevaluated until the executor runs the task.
func decodeFile(f *hcl.File, path string) (*parsedFile, error) {
	parsed := &parsedFile{path: path}
	if diags := gohcl.DecodeBody(f.Body, nil, &parsed.root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	return parsed, nil
}

// findAllHCLFiles walks all given paths and returns a sorted, de-duplicated
// list of .hcl files. A missing path is an error.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}

		var dirFiles []string
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(p) == ".hcl" {
				dirFiles = append(dirFiles, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(dirFiles)
		for _, p := range dirFiles {
			add(p)
		}
	}
	return allFiles, nil
}
