// Package less compiles the subset of LESS used by the site's stylesheets
// to CSS.
//
// Supported: variables with block scope and lazy evaluation, nested rules
// with the parent selector '&', @import of .less files, parameterless
// mixins, ~"escaped" strings, '//' comments, arithmetic on numbers with
// units, and @media bubbling. Guards, parametric mixins and colour
// functions are not supported.
package less

import (
	"fmt"
	"os"
	"path/filepath"
)

// Options controls compilation.
type Options struct {
	// IncludePaths are searched for imports that are not found next to the
	// importing file.
	IncludePaths []string
	// Compress emits minimal whitespace.
	Compress bool
}

// Error is a compile error with its source position.
type Error struct {
	File   string
	Line   int
	Column int
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Msg)
}

// Compile reads and compiles the LESS file at path.
func Compile(path string, opts Options) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stylesheet: %w", err)
	}
	return CompileString(string(src), path, opts)
}

// CompileString compiles src. filename anchors relative imports and is
// used in error messages.
func CompileString(src, filename string, opts Options) ([]byte, error) {
	c := &compiler{
		opts:     opts,
		imported: make(map[string]bool),
	}
	if abs, err := filepath.Abs(filename); err == nil {
		c.imported[abs] = true
	}

	nodes, err := c.parse(src, filename, false)
	if err != nil {
		return nil, err
	}

	e := &evaluator{compress: opts.Compress, resolving: make(map[*varDef]bool)}
	decls, out, err := e.evalBody(nodes, newScope(nodes, nil), nil)
	if err != nil {
		return nil, err
	}
	if len(decls) > 0 {
		return nil, decls[0].pos.errorf("properties must be inside selector blocks")
	}
	return e.render(out), nil
}

type compiler struct {
	opts     Options
	imported map[string]bool
}
