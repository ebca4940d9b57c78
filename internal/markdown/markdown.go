// Package markdown renders GitHub-flavoured Markdown to HTML with
// server-side syntax highlighting of fenced code blocks.
package markdown

import (
	"bytes"
	"fmt"
	"io"
	"regexp"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// DefaultStyle is the chroma style used for the highlight stylesheet.
const DefaultStyle = "github"

// Renderer converts Markdown documents to HTML. It is safe for concurrent use.
type Renderer struct {
	md        goldmark.Markdown
	formatter *chromahtml.Formatter
	style     *chroma.Style
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithStyle selects the chroma style by name. Unknown names fall back to
// chroma's default style.
func WithStyle(name string) Option {
	return func(r *Renderer) {
		r.style = styles.Get(name)
	}
}

// New creates a Renderer. Raw HTML in documents is passed through untouched.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		formatter: chromahtml.New(chromahtml.WithClasses(true)),
		style:     styles.Get(DefaultStyle),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.md = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(&codeBlockRenderer{
				formatter: r.formatter,
				style:     r.style,
			}, 200)),
		),
	)
	return r
}

// Render converts a Markdown document to an HTML fragment.
func (r *Renderer) Render(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteCSS writes the stylesheet for the highlighting classes.
func (r *Renderer) WriteCSS(w io.Writer) error {
	return r.formatter.WriteCSS(w, r.style)
}

var (
	preOpenRegex  = regexp.MustCompile(`(?i)<pre>\s*<code`)
	preCloseRegex = regexp.MustCompile(`(?i)</code>\s*</pre>`)
)

// UnwrapCode removes bare <pre> wrappers around <code> elements along with
// their matching closing tag. Highlighted blocks carry attributes on their
// <pre> and are left alone. The site's stylesheets style <code> blocks
// directly.
func UnwrapCode(doc []byte) []byte {
	var out bytes.Buffer
	for {
		open := preOpenRegex.FindIndex(doc)
		if open == nil {
			break
		}
		closing := preCloseRegex.FindIndex(doc[open[1]:])
		if closing == nil {
			break
		}
		out.Write(doc[:open[0]])
		out.WriteString("<code")
		out.Write(doc[open[1] : open[1]+closing[0]])
		out.WriteString("</code>")
		doc = doc[open[1]+closing[1]:]
	}
	out.Write(doc)
	return out.Bytes()
}

// codeBlockRenderer highlights fenced code blocks that name a language
// chroma knows. Other code blocks render as escaped plain code.
type codeBlockRenderer struct {
	formatter *chromahtml.Formatter
	style     *chroma.Style
}

func (c *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, c.renderFencedCodeBlock)
}

func (c *codeBlockRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	var code bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	lang := string(n.Language(source))
	var lexer chroma.Lexer
	if lang != "" {
		lexer = lexers.Get(lang)
	}
	if lexer == nil {
		if lang != "" {
			fmt.Fprintf(w, `<pre><code class="language-%s">`, util.EscapeHTML([]byte(lang)))
		} else {
			_, _ = w.WriteString("<pre><code>")
		}
		_, _ = w.Write(util.EscapeHTML(code.Bytes()))
		_, _ = w.WriteString("</code></pre>\n")
		return ast.WalkSkipChildren, nil
	}

	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code.String())
	if err != nil {
		return ast.WalkStop, fmt.Errorf("failed to tokenise %s code block: %w", lang, err)
	}
	if err := c.formatter.Format(w, c.style, iterator); err != nil {
		return ast.WalkStop, fmt.Errorf("failed to highlight %s code block: %w", lang, err)
	}
	_, _ = w.WriteString("\n")
	return ast.WalkSkipChildren, nil
}
