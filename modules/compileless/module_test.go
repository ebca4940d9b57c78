package compileless

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pagegrid/internal/less"
	"github.com/vk/pagegrid/internal/registry"
	"github.com/vk/pagegrid/internal/testutil"
)

func defaultInput(t *testing.T) *Input {
	t.Helper()
	r := registry.New()
	(&Module{}).Register(r)
	return r.Runners["compile_less"].NewInput().(*Input)
}

func TestRun(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s := testutil.NewSite(t, map[string]string{
		"less/includes/vars.less":       "@brand: #0af;\n",
		"src/css/main.less":             "@import \"vars\";\n.a { color: @brand; }\n",
		"src/css/partials/skip.less":    ".b { color: red; }\n",
		"src/font/icons/icons.less":     ".icon { width: 2px * 8; }\n",
		"src/docs/css/nested/deep.less": ".c {}\n",
		"src/landing/css/landing.less":  ".d { margin: 0 auto; }\n",
	})

	in := defaultInput(t)
	in.IncludePaths = []string{"less/includes"}
	out, err := Run(ctx, s, in)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(s.Config.Dest, "css", "main.css"),
		filepath.Join(s.Config.Dest, "font", "icons", "icons.css"),
		filepath.Join(s.Config.Dest, "landing", "css", "landing.css"),
	}, out.Files)
	assert.Equal(t, ".a{color:#0af}", testutil.ReadDest(t, s, "css/main.css"))
	assert.Equal(t, ".icon{width:16px}", testutil.ReadDest(t, s, "font/icons/icons.css"))
}

func TestRunDebugDoesNotCompress(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s := testutil.NewSite(t, map[string]string{"src/css/main.less": ".a { color: red; }\n"})
	s.Config.Debug = true

	_, err := Run(ctx, s, defaultInput(t))
	require.NoError(t, err)
	assert.Equal(t, ".a {\n  color: red;\n}\n", testutil.ReadDest(t, s, "css/main.css"))

	compress := true
	in := defaultInput(t)
	in.Compress = &compress
	_, err = Run(ctx, s, in)
	require.NoError(t, err)
	assert.Equal(t, ".a{color:red}", testutil.ReadDest(t, s, "css/main.css"))
}

func TestRunCompileError(t *testing.T) {
	ctx, _ := testutil.Context(t)
	s := testutil.NewSite(t, map[string]string{"src/css/main.less": ".a {\n  color: @nope;\n}\n"})

	_, err := Run(ctx, s, defaultInput(t))
	var lessErr *less.Error
	require.ErrorAs(t, err, &lessErr)
	assert.Equal(t, 2, lessErr.Line)
	assert.Equal(t, filepath.Join(s.Config.Source, "css", "main.less"), lessErr.File)
}
