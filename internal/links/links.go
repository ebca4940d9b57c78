// Package links rewrites the anchors of rendered pages so that they work
// when the site is served under a URL root: relative links get the page's
// directory, Markdown targets point at their rendered HTML, and external
// links open in a new tab.
package links

import (
	"bytes"
	"errors"
	"io"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Remapper rewrites anchors for one site.
type Remapper struct {
	// URLRoot is prefixed to every site-absolute link, e.g. "/branch/x".
	URLRoot string
	// InternalHosts are URL prefixes that are part of the site family and
	// stay in the current tab.
	InternalHosts []string
}

// PageDir returns the URL directory of the page at rel, always ending in a
// slash.
func (m *Remapper) PageDir(rel string) string {
	urlPath := m.URLRoot + "/" + rel
	return strings.ReplaceAll(path.Dir(urlPath)+"/", "//", "/")
}

// Remap rewrites every <a href> in doc, which is the rendered page at rel
// (a slash-separated path relative to the source root). Everything except
// the rewritten start tags is copied byte for byte.
func (m *Remapper) Remap(doc []byte, rel string) ([]byte, error) {
	dir := m.PageDir(rel)
	z := html.NewTokenizer(bytes.NewReader(doc))
	var out bytes.Buffer
	out.Grow(len(doc))

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, err
			}
			return out.Bytes(), nil
		}
		raw := z.Raw()
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(raw)
			continue
		}

		// Token() reads from the same buffer as Raw(), so copy first.
		rawCopy := append([]byte(nil), raw...)
		tok := z.Token()
		if tok.DataAtom != atom.A || !m.rewrite(&tok, dir) {
			out.Write(rawCopy)
			continue
		}
		out.WriteString(tok.String())
	}
}

// rewrite updates the anchor in place and reports whether it changed.
func (m *Remapper) rewrite(tok *html.Token, dir string) bool {
	hrefIdx := -1
	hasTarget := false
	for i, attr := range tok.Attr {
		switch attr.Key {
		case "href":
			hrefIdx = i
		case "target":
			hasTarget = true
		}
	}
	if hrefIdx < 0 {
		return false
	}
	url := tok.Attr[hrefIdx].Val

	switch {
	case url == "", strings.HasPrefix(url, "mailto:"), strings.HasPrefix(url, "#"):
		return false
	case strings.HasPrefix(url, "http"):
		if hasTarget || m.isInternal(url) {
			return false
		}
		tok.Attr = append([]html.Attribute{{Key: "target", Val: "_blank"}}, tok.Attr...)
		return true
	default:
		tok.Attr[hrefIdx].Val = m.rewriteLocal(url, dir)
		return true
	}
}

func (m *Remapper) isInternal(url string) bool {
	for _, host := range m.InternalHosts {
		if strings.HasPrefix(url, host) {
			return true
		}
	}
	return false
}

var mdExtensionRegex = regexp.MustCompile(`(?i)\.md([?#]|$)`)

// rewriteLocal prefixes site-absolute links with the URL root and relative
// links with the page directory, then points Markdown targets at HTML.
func (m *Remapper) rewriteLocal(url, dir string) string {
	if strings.HasPrefix(url, "/") {
		url = m.URLRoot + url
	} else {
		url = dir + url
	}
	return mdExtensionRegex.ReplaceAllString(url, ".html$1")
}
