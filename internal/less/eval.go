package less

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const maxMixinDepth = 64

type scope struct {
	vars   map[string]*varDef
	mixins map[string][]*ruleset
	parent *scope
}

// newScope collects the variables and mixins declared directly in body.
// Later definitions replace earlier ones.
func newScope(body []node, parent *scope) *scope {
	s := &scope{
		vars:   make(map[string]*varDef),
		mixins: make(map[string][]*ruleset),
		parent: parent,
	}
	for _, n := range body {
		switch n := n.(type) {
		case *varDef:
			s.vars[n.name] = n
		case *ruleset:
			for _, sel := range n.selectors {
				if simpleMixinRegex.MatchString(sel) {
					s.mixins[sel] = append(s.mixins[sel], n)
				}
			}
		}
	}
	return s
}

// lookupVar returns the closest definition of name and the scope holding it.
func (s *scope) lookupVar(name string) (*varDef, *scope) {
	for ; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, s
		}
	}
	return nil, nil
}

func (s *scope) lookupMixin(name string) []*ruleset {
	for ; s != nil; s = s.parent {
		if m, ok := s.mixins[name]; ok {
			return m
		}
	}
	return nil
}

// Evaluated CSS.
type (
	cssDecl struct {
		pos      position
		property string
		value    string
	}

	cssRule struct {
		selectors []string
		decls     []cssDecl
	}

	cssAtRule struct {
		prelude  string
		block    bool
		decls    []cssDecl
		children []any
	}
)

type evaluator struct {
	compress   bool
	resolving  map[*varDef]bool
	hoisted    []*cssAtRule
	mixinDepth int
}

// evalBody evaluates the statements of one block. sels are the selectors of
// the enclosing rule, empty at the top level and directly inside at-rules
// that do not inherit them. The block's own declarations are returned
// separately from the rules and at-rules it produces.
func (e *evaluator) evalBody(body []node, sc *scope, sels []string) ([]cssDecl, []any, error) {
	var decls []cssDecl
	var out []any

	for _, n := range body {
		switch n := n.(type) {
		case *varDef:
			continue

		case *declaration:
			value, err := e.evalValue(n.value, sc)
			if err != nil {
				return nil, nil, err
			}
			decls = append(decls, cssDecl{pos: n.pos, property: n.property, value: value})

		case *mixinCall:
			mixins := sc.lookupMixin(n.name)
			if len(mixins) == 0 {
				return nil, nil, n.pos.errorf("%s is undefined", n.name)
			}
			if e.mixinDepth >= maxMixinDepth {
				return nil, nil, n.pos.errorf("mixin %s nests too deeply", n.name)
			}
			e.mixinDepth++
			for _, m := range mixins {
				d, children, err := e.evalBody(m.body, newScope(m.body, sc), sels)
				if err != nil {
					e.mixinDepth--
					return nil, nil, err
				}
				decls = append(decls, d...)
				out = append(out, children...)
			}
			e.mixinDepth--

		case *ruleset:
			if n.mixinDef || n.reference {
				continue
			}
			childSels := combineSelectors(sels, n.selectors)
			d, children, err := e.evalBody(n.body, newScope(n.body, sc), childSels)
			if err != nil {
				return nil, nil, err
			}
			if len(d) > 0 {
				out = append(out, &cssRule{selectors: childSels, decls: d})
			}
			out = append(out, children...)

		case *atRule:
			if n.reference {
				continue
			}
			nodes, err := e.evalAtRule(n, sc, sels)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, nodes...)
		}
	}
	return decls, out, nil
}

func (e *evaluator) evalAtRule(n *atRule, sc *scope, sels []string) ([]any, error) {
	prelude := n.name
	if len(n.prelude) > 0 {
		value, err := e.evalText(n.prelude, sc, false)
		if err != nil {
			return nil, err
		}
		prelude += " " + value
	}

	if !n.block {
		at := &cssAtRule{prelude: prelude}
		if n.name == "@charset" || n.name == "@import" {
			e.hoisted = append(e.hoisted, at)
			return nil, nil
		}
		return []any{at}, nil
	}

	inner := newScope(n.body, sc)
	switch n.name {
	case "@media", "@supports":
		decls, children, err := e.evalBody(n.body, inner, sels)
		if err != nil {
			return nil, err
		}
		var content []any
		if len(decls) > 0 {
			if len(sels) == 0 {
				return nil, decls[0].pos.errorf("properties must be inside selector blocks")
			}
			content = append(content, &cssRule{selectors: sels, decls: decls})
		}
		content = append(content, children...)
		return bubbleMedia(&cssAtRule{prelude: prelude, block: true, children: content}), nil

	default:
		decls, children, err := e.evalBody(n.body, inner, nil)
		if err != nil {
			return nil, err
		}
		return []any{&cssAtRule{prelude: prelude, block: true, decls: decls, children: children}}, nil
	}
}

// bubbleMedia lifts @media rules nested in at's children out to siblings
// with the combined query.
func bubbleMedia(at *cssAtRule) []any {
	outer := &cssAtRule{prelude: at.prelude, block: true, decls: at.decls}
	result := []any{outer}
	for _, child := range at.children {
		nested, ok := child.(*cssAtRule)
		if !ok || !strings.HasPrefix(at.prelude, "@media") || !strings.HasPrefix(nested.prelude, "@media") {
			outer.children = append(outer.children, child)
			continue
		}
		query := strings.TrimSpace(strings.TrimPrefix(nested.prelude, "@media"))
		combined := &cssAtRule{
			prelude:  at.prelude + " and " + query,
			block:    true,
			decls:    nested.decls,
			children: nested.children,
		}
		result = append(result, bubbleMedia(combined)...)
	}
	return result
}

// combineSelectors nests child selectors inside their parents, replacing
// '&' with the parent or prefixing the parent and a space.
func combineSelectors(parents, children []string) []string {
	if len(parents) == 0 {
		return children
	}
	out := make([]string, 0, len(parents)*len(children))
	for _, p := range parents {
		for _, c := range children {
			if strings.Contains(c, "&") {
				out = append(out, strings.ReplaceAll(c, "&", p))
			} else {
				out = append(out, p+" "+c)
			}
		}
	}
	return out
}

func (e *evaluator) evalValue(toks []token, sc *scope) (string, error) {
	return e.evalText(toks, sc, true)
}

// evalText substitutes variables, applies escapes and, when withMath is
// set, arithmetic, and returns the CSS text.
func (e *evaluator) evalText(toks []token, sc *scope, withMath bool) (string, error) {
	toks, err := e.substitute(toks, sc)
	if err != nil {
		return "", err
	}
	toks = escape(toks)
	if withMath {
		if toks, err = evalMath(toks, false); err != nil {
			return "", err
		}
	}
	if e.compress {
		return joinCompact(toks), nil
	}
	return joinTokens(toks), nil
}

func (e *evaluator) substitute(toks []token, sc *scope) ([]token, error) {
	var out []token
	for _, t := range toks {
		if t.kind != tkAt {
			out = append(out, t)
			continue
		}
		v, defScope := sc.lookupVar(t.text)
		if v == nil {
			return nil, t.pos.errorf("variable %s is undefined", t.text)
		}
		if e.resolving[v] {
			return nil, t.pos.errorf("recursive variable definition for %s", t.text)
		}
		e.resolving[v] = true
		resolved, err := e.substitute(v.value, defScope)
		delete(e.resolving, v)
		if err != nil {
			return nil, err
		}
		out = append(out, trimWS(resolved)...)
	}
	return out, nil
}

// escape turns ~"text" into text.
func escape(toks []token) []token {
	out := make([]token, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.is("~") && i+1 < len(toks) && toks[i+1].kind == tkString {
			next := toks[i+1]
			out = append(out, token{kind: tkWord, text: unquote(next.text), pos: next.pos})
			i++
			continue
		}
		out = append(out, t)
	}
	return out
}

var numberRegex = regexp.MustCompile(`^([+-]?(?:[0-9]*\.)?[0-9]+)(%|[A-Za-z]*)$`)

type number struct {
	value float64
	unit  string
}

func parseNumber(t token) (number, bool) {
	if t.kind != tkNum {
		return number{}, false
	}
	m := numberRegex.FindStringSubmatch(t.text)
	if m == nil {
		return number{}, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return number{}, false
	}
	return number{value: v, unit: m[2]}, true
}

func (n number) String() string {
	v := math.Round(n.value*1e8) / 1e8
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64) + n.unit
}

// matchParen returns the index of the ')' closing the group opened at
// toks[open].
func matchParen(toks []token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.kind == tkFunc || t.is("("):
			depth++
		case t.is(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// evalMath evaluates arithmetic. Division is only performed inside
// parentheses, and '-' is only an operator when surrounded by spaces.
func evalMath(toks []token, allowDiv bool) ([]token, error) {
	grouped := make([]token, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind != tkFunc && !t.is("(") {
			grouped = append(grouped, t)
			continue
		}
		end := matchParen(toks, i)
		if end < 0 {
			return nil, t.pos.errorf("missing closing ')'")
		}
		inner := toks[i+1 : end]
		switch {
		case t.kind == tkFunc && strings.EqualFold(t.text, "calc("):
			// calc() is left to the browser; a single word keeps the
			// operator pass away from its operands.
			grouped = append(grouped, token{kind: tkWord, text: joinTokens(toks[i : end+1]), pos: t.pos})
		case t.kind == tkFunc:
			evaluated, err := evalMath(inner, false)
			if err != nil {
				return nil, err
			}
			grouped = append(grouped, t)
			grouped = append(grouped, evaluated...)
			grouped = append(grouped, toks[end])
		default:
			evaluated, err := evalMath(inner, true)
			if err != nil {
				return nil, err
			}
			if trimmed := trimWS(evaluated); len(trimmed) == 1 && trimmed[0].kind == tkNum {
				grouped = append(grouped, trimmed[0])
			} else {
				grouped = append(grouped, t)
				grouped = append(grouped, evaluated...)
				grouped = append(grouped, toks[end])
			}
		}
		i = end
	}
	return applyOperators(grouped, allowDiv)
}

type mathItem struct {
	tok      token
	wsBefore bool
}

func applyOperators(toks []token, allowDiv bool) ([]token, error) {
	var items []mathItem
	ws := false
	for _, t := range toks {
		if t.kind == tkWS {
			ws = true
			continue
		}
		items = append(items, mathItem{tok: t, wsBefore: ws})
		ws = false
	}

	// Unary minus directly attached to a number.
	for i := 0; i+1 < len(items); i++ {
		minus, next := items[i], items[i+1]
		if !minus.tok.is("-") || next.wsBefore || next.tok.kind != tkNum {
			continue
		}
		if i > 0 && !minus.wsBefore && !isOperator(items[i-1].tok) {
			continue
		}
		text := "-" + next.tok.text
		if strings.HasPrefix(next.tok.text, "-") {
			text = next.tok.text[1:]
		}
		items[i] = mathItem{tok: token{kind: tkNum, text: text, pos: minus.tok.pos}, wsBefore: minus.wsBefore}
		items = append(items[:i+1], items[i+2:]...)
	}

	apply := func(ops string) error {
		for i := 1; i+1 < len(items); {
			op := items[i]
			left, lok := parseNumber(items[i-1].tok)
			right, rok := parseNumber(items[i+1].tok)
			if !lok || !rok || op.tok.kind != tkChar || !strings.Contains(ops, op.tok.text) {
				i++
				continue
			}
			if op.tok.text == "/" && !allowDiv {
				i++
				continue
			}
			if op.tok.text == "-" && (!op.wsBefore || !items[i+1].wsBefore) {
				i++
				continue
			}
			result, err := operate(op.tok, left, right)
			if err != nil {
				return err
			}
			merged := mathItem{
				tok:      token{kind: tkNum, text: result.String(), pos: items[i-1].tok.pos},
				wsBefore: items[i-1].wsBefore,
			}
			items = append(append(items[:i-1], merged), items[i+2:]...)
		}
		return nil
	}
	if err := apply("*/"); err != nil {
		return nil, err
	}
	if err := apply("+-"); err != nil {
		return nil, err
	}

	out := make([]token, 0, len(items)*2)
	for _, it := range items {
		if it.wsBefore {
			out = append(out, token{kind: tkWS, text: " "})
		}
		out = append(out, it.tok)
	}
	return out, nil
}

func isOperator(t token) bool {
	if t.kind != tkChar {
		return false
	}
	switch t.text {
	case "*", "/", "+", "-", "(", ",":
		return true
	}
	return false
}

func operate(op token, left, right number) (number, error) {
	unit := left.unit
	if unit == "" {
		unit = right.unit
	}
	switch op.text {
	case "*":
		return number{left.value * right.value, unit}, nil
	case "/":
		if right.value == 0 {
			return number{}, op.pos.errorf("division by zero")
		}
		return number{left.value / right.value, unit}, nil
	case "+":
		return number{left.value + right.value, unit}, nil
	default:
		return number{left.value - right.value, unit}, nil
	}
}
