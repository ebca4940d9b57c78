package less

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gorilla/css/scanner"
)

type tokenKind int

const (
	tkWS tokenKind = iota
	tkNum
	tkAt
	tkString
	tkChar
	tkFunc
	tkWord
)

type position struct {
	file      string
	line, col int
}

func (p position) errorf(format string, args ...any) *Error {
	return &Error{File: p.file, Line: p.line, Column: p.col, Msg: fmt.Sprintf(format, args...)}
}

type token struct {
	kind tokenKind
	text string
	pos  position
}

func (t token) is(char string) bool {
	return t.kind == tkChar && t.text == char
}

// Nodes of a parsed stylesheet.
type (
	node interface{}

	varDef struct {
		pos   position
		name  string
		value []token
	}

	declaration struct {
		pos      position
		property string
		value    []token
	}

	ruleset struct {
		pos       position
		selectors []string
		mixinDef  bool
		reference bool
		body      []node
	}

	atRule struct {
		pos       position
		name      string
		prelude   []token
		block     bool
		reference bool
		body      []node
	}

	mixinCall struct {
		pos  position
		name string
	}
)

// stripLineComments removes '//' comments, leaving strings, block comments
// and url() arguments intact. Newlines are kept so positions stay valid.
func stripLineComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '"' || c == '\'':
			j := i + 1
			for j < len(src) && src[j] != c && src[j] != '\n' {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			j = min(j+1, len(src))
			b.WriteString(src[i:j])
			i = j
		case strings.HasPrefix(src[i:], "/*"):
			j := strings.Index(src[i+2:], "*/")
			if j < 0 {
				b.WriteString(src[i:])
				return b.String()
			}
			end := i + 2 + j + 2
			b.WriteString(src[i:end])
			i = end
		case strings.HasPrefix(src[i:], "//"):
			j := strings.IndexByte(src[i:], '\n')
			if j < 0 {
				return b.String()
			}
			i += j
		case (c == 'u' || c == 'U') && len(src)-i >= 4 && strings.EqualFold(src[i:i+4], "url("):
			j := strings.IndexByte(src[i:], ')')
			if j < 0 {
				b.WriteString(src[i:])
				return b.String()
			}
			b.WriteString(src[i : i+j+1])
			i += j + 1
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func tokenize(file, src string) ([]token, error) {
	s := scanner.New(stripLineComments(src))
	var toks []token
	for {
		t := s.Next()
		pos := position{file: file, line: t.Line, col: t.Column}
		var kind tokenKind
		switch t.Type {
		case scanner.TokenEOF:
			return toks, nil
		case scanner.TokenError:
			return nil, pos.errorf("unexpected input %q", t.Value)
		case scanner.TokenComment, scanner.TokenBOM, scanner.TokenCDO, scanner.TokenCDC:
			continue
		case scanner.TokenS:
			kind = tkWS
		case scanner.TokenNumber, scanner.TokenPercentage, scanner.TokenDimension:
			kind = tkNum
		case scanner.TokenAtKeyword:
			kind = tkAt
		case scanner.TokenString:
			kind = tkString
		case scanner.TokenChar:
			kind = tkChar
		case scanner.TokenFunction:
			kind = tkFunc
		default:
			kind = tkWord
		}
		toks = append(toks, token{kind: kind, text: t.Value, pos: pos})
	}
}

type parser struct {
	c         *compiler
	file      string
	toks      []token
	pos       int
	depth     int
	reference bool
}

func (c *compiler) parse(src, file string, reference bool) ([]node, error) {
	toks, err := tokenize(file, src)
	if err != nil {
		return nil, err
	}
	p := &parser{c: c, file: file, toks: toks, reference: reference}
	return p.parseBlock()
}

func (p *parser) eofPos() position {
	if len(p.toks) == 0 {
		return position{file: p.file, line: 1, col: 1}
	}
	return p.toks[len(p.toks)-1].pos
}

// parseBlock reads statements up to the closing brace of the current block,
// or to the end of input at the top level.
func (p *parser) parseBlock() ([]node, error) {
	var nodes []node
	for {
		for p.pos < len(p.toks) && p.toks[p.pos].kind == tkWS {
			p.pos++
		}
		if p.pos >= len(p.toks) {
			if p.depth > 0 {
				return nil, p.eofPos().errorf("missing closing '}'")
			}
			return nodes, nil
		}
		if t := p.toks[p.pos]; t.is("}") {
			if p.depth == 0 {
				return nil, t.pos.errorf("unexpected '}'")
			}
			p.pos++
			return nodes, nil
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, stmt...)
	}
}

func (p *parser) parseStatement() ([]node, error) {
	start := p.pos
	parens := 0
	for p.pos < len(p.toks) {
		t := p.toks[p.pos]
		switch {
		case t.kind == tkFunc || t.is("("):
			parens++
		case t.is(")"):
			parens--
			if parens < 0 {
				return nil, t.pos.errorf("unexpected ')'")
			}
		case parens == 0 && t.is(";"):
			stmt := p.toks[start:p.pos]
			p.pos++
			return p.statement(stmt)
		case parens == 0 && t.is("}"):
			return p.statement(p.toks[start:p.pos])
		case parens == 0 && t.is("{"):
			prelude := p.toks[start:p.pos]
			p.pos++
			top := p.depth == 0
			p.depth++
			body, err := p.parseBlock()
			p.depth--
			if err != nil {
				return nil, err
			}
			return p.blockStatement(prelude, body, top)
		}
		p.pos++
	}
	if parens != 0 {
		return nil, p.toks[start].pos.errorf("missing closing ')'")
	}
	return p.statement(p.toks[start:])
}

func trimWS(toks []token) []token {
	for len(toks) > 0 && toks[0].kind == tkWS {
		toks = toks[1:]
	}
	for len(toks) > 0 && toks[len(toks)-1].kind == tkWS {
		toks = toks[:len(toks)-1]
	}
	return toks
}

// indexTop returns the index of the first char token outside parentheses.
func indexTop(toks []token, char string) int {
	parens := 0
	for i, t := range toks {
		switch {
		case t.kind == tkFunc || t.is("("):
			parens++
		case t.is(")"):
			parens--
		case parens == 0 && t.is(char):
			return i
		}
	}
	return -1
}

// splitTop splits toks at every char token outside parentheses.
func splitTop(toks []token, char string) [][]token {
	var parts [][]token
	for {
		i := indexTop(toks, char)
		if i < 0 {
			return append(parts, toks)
		}
		parts = append(parts, toks[:i])
		toks = toks[i+1:]
	}
}

// joinTokens serializes tokens, collapsing whitespace to single spaces.
func joinTokens(toks []token) string {
	var b strings.Builder
	toks = trimWS(toks)
	for i, t := range toks {
		if t.kind == tkWS {
			if i > 0 && toks[i-1].kind != tkWS {
				b.WriteByte(' ')
			}
			continue
		}
		b.WriteString(t.text)
	}
	return b.String()
}

// joinCompact serializes tokens like joinTokens but drops whitespace next
// to commas.
func joinCompact(toks []token) string {
	toks = trimWS(toks)
	var b strings.Builder
	for i, t := range toks {
		if t.kind == tkWS {
			if toks[i-1].kind == tkWS || toks[i-1].is(",") || toks[i+1].is(",") {
				continue
			}
			b.WriteByte(' ')
			continue
		}
		b.WriteString(t.text)
	}
	return b.String()
}

var simpleMixinRegex = regexp.MustCompile(`^[.#][A-Za-z0-9_-]+$`)

func (p *parser) statement(toks []token) ([]node, error) {
	toks = trimWS(toks)
	if len(toks) == 0 {
		return nil, nil
	}
	first := toks[0]

	if first.kind == tkAt {
		rest := trimWS(toks[1:])
		name := strings.ToLower(first.text)
		switch {
		case name == "@import":
			return p.importStatement(first, rest)
		case len(rest) > 0 && rest[0].is(":"):
			return []node{&varDef{pos: first.pos, name: first.text, value: trimWS(rest[1:])}}, nil
		default:
			return []node{&atRule{pos: first.pos, name: name, prelude: rest}}, nil
		}
	}

	if colon := indexTop(toks, ":"); colon >= 0 {
		property := joinTokens(toks[:colon])
		if property == "" {
			return nil, first.pos.errorf("missing property name")
		}
		return []node{&declaration{pos: first.pos, property: property, value: trimWS(toks[colon+1:])}}, nil
	}

	if first.is(".") || (first.kind == tkWord && strings.HasPrefix(first.text, "#")) {
		name := mixinName(joinTokens(toks))
		if !simpleMixinRegex.MatchString(name) {
			return nil, first.pos.errorf("unsupported mixin call %q", joinTokens(toks))
		}
		return []node{&mixinCall{pos: first.pos, name: name}}, nil
	}

	return nil, first.pos.errorf("unrecognised statement %q", joinTokens(toks))
}

// mixinName drops whitespace and a trailing empty argument list.
func mixinName(s string) string {
	s = strings.Join(strings.Fields(s), "")
	return strings.TrimSuffix(s, "()")
}

func (p *parser) blockStatement(prelude []token, body []node, top bool) ([]node, error) {
	prelude = trimWS(prelude)
	if len(prelude) == 0 {
		return nil, p.eofPos().errorf("missing selector before '{'")
	}
	first := prelude[0]
	reference := p.reference && top

	if first.kind == tkAt {
		return []node{&atRule{
			pos:       first.pos,
			name:      strings.ToLower(first.text),
			prelude:   trimWS(prelude[1:]),
			block:     true,
			reference: reference,
			body:      body,
		}}, nil
	}

	rs := &ruleset{pos: first.pos, reference: reference, body: body}
	text := joinTokens(prelude)
	if name := strings.Join(strings.Fields(text), ""); strings.HasSuffix(name, "()") {
		rs.mixinDef = true
		rs.selectors = []string{mixinName(name)}
		return []node{rs}, nil
	}
	for _, part := range splitTop(prelude, ",") {
		sel := joinTokens(part)
		if sel == "" {
			return nil, first.pos.errorf("empty selector in %q", text)
		}
		rs.selectors = append(rs.selectors, sel)
	}
	return []node{rs}, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func (p *parser) importStatement(at token, rest []token) ([]node, error) {
	options := map[string]bool{}
	if len(rest) > 0 && rest[0].is("(") {
		end := -1
		for i, t := range rest {
			if t.is(")") {
				end = i
				break
			}
			if t.kind == tkWord {
				options[strings.ToLower(t.text)] = true
			}
		}
		if end < 0 {
			return nil, at.pos.errorf("malformed @import options")
		}
		rest = trimWS(rest[end+1:])
	}
	if len(rest) == 0 {
		return nil, at.pos.errorf("@import without a target")
	}

	target := rest[0]
	passthrough := &atRule{pos: at.pos, name: "@import", prelude: rest}
	if target.kind != tkString {
		// url(...) imports are plain CSS.
		return []node{passthrough}, nil
	}
	name := unquote(target.text)
	ext := strings.ToLower(filepath.Ext(name))
	if options["css"] || ext == ".css" || strings.Contains(name, "://") {
		return []node{passthrough}, nil
	}
	if ext == "" {
		name += ".less"
	}

	path, ok := p.resolveImport(name)
	if !ok {
		if options["optional"] {
			return nil, nil
		}
		return nil, target.pos.errorf("file '%s' wasn't found", name)
	}
	if p.c.imported[path] {
		return nil, nil
	}
	p.c.imported[path] = true

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, target.pos.errorf("failed to read import: %v", err)
	}
	return p.c.parse(string(src), path, p.reference || options["reference"])
}

func (p *parser) resolveImport(name string) (string, bool) {
	candidates := []string{filepath.Join(filepath.Dir(p.file), name)}
	if filepath.IsAbs(name) {
		candidates = []string{name}
	}
	for _, dir := range p.c.opts.IncludePaths {
		candidates = append(candidates, filepath.Join(dir, name))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			if abs, err := filepath.Abs(c); err == nil {
				return abs, true
			}
			return c, true
		}
	}
	return "", false
}
