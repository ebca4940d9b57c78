package links

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageDir(t *testing.T) {
	testCases := []struct {
		root string
		rel  string
		want string
	}{
		{root: "", rel: "index.html", want: "/"},
		{root: "", rel: "docs/intro.md", want: "/docs/"},
		{root: "/branch/preview", rel: "docs/intro.md", want: "/branch/preview/docs/"},
		{root: "/branch/preview", rel: "index.html", want: "/branch/preview/"},
	}
	for _, tc := range testCases {
		m := &Remapper{URLRoot: tc.root}
		assert.Equal(t, tc.want, m.PageDir(tc.rel), "root=%q rel=%q", tc.root, tc.rel)
	}
}

func TestRemap(t *testing.T) {
	m := &Remapper{
		URLRoot:       "/branch/preview",
		InternalHosts: []string{"http://3d.io", "https://3d.io"},
	}

	testCases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "relative markdown link",
			in:   `<p><a href="setup.md">setup</a></p>`,
			want: `<p><a href="/branch/preview/docs/setup.html">setup</a></p>`,
		},
		{
			name: "relative link with anchor",
			in:   `<a href="../api.md#auth">auth</a>`,
			want: `<a href="/branch/preview/docs/../api.html#auth">auth</a>`,
		},
		{
			name: "site absolute link",
			in:   `<a href="/partner/acme.md">acme</a>`,
			want: `<a href="/branch/preview/partner/acme.html">acme</a>`,
		},
		{
			name: "md inside a name is kept",
			in:   `<a href="guide.mdx">x</a>`,
			want: `<a href="/branch/preview/docs/guide.mdx">x</a>`,
		},
		{
			name: "external link opens in new tab",
			in:   `<a href="https://example.com" class="ext">x</a>`,
			want: `<a target="_blank" href="https://example.com" class="ext">x</a>`,
		},
		{
			name: "internal host stays",
			in:   `<a href="https://3d.io/docs">x</a>`,
			want: `<a href="https://3d.io/docs">x</a>`,
		},
		{
			name: "explicit target stays",
			in:   `<a target="_self" href="https://example.com">x</a>`,
			want: `<a target="_self" href="https://example.com">x</a>`,
		},
		{
			name: "mailto stays",
			in:   `<a href="mailto:hi@example.com">mail</a>`,
			want: `<a href="mailto:hi@example.com">mail</a>`,
		},
		{
			name: "empty href and fragments stay",
			in:   `<a href="">x</a><a href="#top">top</a><a name="n">n</a>`,
			want: `<a href="">x</a><a href="#top">top</a><a name="n">n</a>`,
		},
		{
			name: "other markup is untouched",
			in:   "<!DOCTYPE html>\n<html><HEAD><script>if (a<b) {}</script></HEAD><body><img src=\"x.md\"></body></html>",
			want: "<!DOCTYPE html>\n<html><HEAD><script>if (a<b) {}</script></HEAD><body><img src=\"x.md\"></body></html>",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := m.Remap([]byte(tc.in), "docs/intro.md")
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(out))
		})
	}
}
