package less

import (
	"bytes"
	"strings"
)

func (e *evaluator) render(nodes []any) []byte {
	var buf bytes.Buffer
	for _, at := range e.hoisted {
		e.writeNode(&buf, at, 0)
	}
	for _, n := range nodes {
		e.writeNode(&buf, n, 0)
	}
	return buf.Bytes()
}

func (e *evaluator) writeNode(buf *bytes.Buffer, n any, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n := n.(type) {
	case *cssRule:
		sels := n.selectors
		if e.compress {
			sels = make([]string, len(n.selectors))
			for i, s := range n.selectors {
				sels[i] = compactSelector(s)
			}
			buf.WriteString(strings.Join(sels, ","))
		} else {
			buf.WriteString(indent + strings.Join(sels, ",\n"+indent))
		}
		e.writeBlock(buf, n.decls, nil, depth)

	case *cssAtRule:
		if !n.block {
			if e.compress {
				buf.WriteString(n.prelude + ";")
			} else {
				buf.WriteString(indent + n.prelude + ";\n")
			}
			return
		}
		if len(n.decls) == 0 && len(n.children) == 0 {
			return
		}
		if e.compress {
			buf.WriteString(compactPrelude(n.prelude))
		} else {
			buf.WriteString(indent + n.prelude)
		}
		e.writeBlock(buf, n.decls, n.children, depth)
	}
}

func (e *evaluator) writeBlock(buf *bytes.Buffer, decls []cssDecl, children []any, depth int) {
	if e.compress {
		buf.WriteByte('{')
		for i, d := range decls {
			if i > 0 {
				buf.WriteByte(';')
			}
			buf.WriteString(d.property + ":" + d.value)
		}
		for _, c := range children {
			e.writeNode(buf, c, depth+1)
		}
		buf.WriteByte('}')
		return
	}

	inner := strings.Repeat("  ", depth+1)
	buf.WriteString(" {\n")
	for _, d := range decls {
		buf.WriteString(inner + d.property + ": " + d.value + ";\n")
	}
	for _, c := range children {
		e.writeNode(buf, c, depth+1)
	}
	buf.WriteString(strings.Repeat("  ", depth) + "}\n")
}

// compactSelector removes the spaces around combinators outside of quotes,
// brackets and parentheses.
func compactSelector(sel string) string {
	var b strings.Builder
	nesting := 0
	var quote byte
	for i := 0; i < len(sel); i++ {
		c := sel[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[':
			nesting++
		case c == ')' || c == ']':
			nesting--
		case c == ' ' && nesting == 0:
			prev := byte(0)
			if b.Len() > 0 {
				prev = b.String()[b.Len()-1]
			}
			next := byte(0)
			if i+1 < len(sel) {
				next = sel[i+1]
			}
			if isCombinator(prev) || isCombinator(next) {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isCombinator(c byte) bool {
	return c == '>' || c == '+' || c == '~'
}

// compactPrelude removes optional spaces from an at-rule prelude.
func compactPrelude(prelude string) string {
	return strings.NewReplacer(": ", ":", ", ", ",").Replace(prelude)
}
