// Package fsutil provides the file selection and writing helpers shared by
// the pipeline runners.
package fsutil

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Selection is a set of include and exclude glob patterns evaluated against
// slash-separated paths relative to a root directory. Patterns support `**`.
type Selection struct {
	Include []string
	Exclude []string
}

// Match reports whether rel is selected: it must match at least one include
// pattern and no exclude pattern.
func (s Selection) Match(rel string) (bool, error) {
	included := false
	for _, pattern := range s.Include {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		if ok {
			included = true
			break
		}
	}
	if !included {
		return false, nil
	}
	for _, pattern := range s.Exclude {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return false, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}

// Find walks root and returns the sorted relative paths of all regular files
// matched by the selection. A missing root yields no files.
func (s Selection) Find(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errorsIsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		ok, err := s.Match(rel)
		if err != nil {
			return err
		}
		if ok {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// FindFilesByExtension recursively searches root for files ending with the
// given extension and returns their full paths.
func FindFilesByExtension(root string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}
	rels, err := Selection{Include: []string{"**/*" + extension}}.Find(root)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(rels))
	for i, rel := range rels {
		paths[i] = filepath.Join(root, filepath.FromSlash(rel))
	}
	return paths, nil
}
