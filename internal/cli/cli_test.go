package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/pagegrid/internal/app"
	"github.com/vk/pagegrid/internal/partner"
)

type fakeRunner struct {
	buildErr error
	serveErr error
	served   bool
	partners []*partner.Info
}

func (f *fakeRunner) Build(context.Context) (*app.BuildResult, error) {
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	return &app.BuildResult{BuildID: "b1", Tasks: []string{"clean.build_dir"}, Duration: 1500 * time.Millisecond}, nil
}

func (f *fakeRunner) Serve(context.Context) error {
	f.served = true
	return f.serveErr
}

func (f *fakeRunner) Partners(context.Context) ([]*partner.Info, error) {
	return f.partners, nil
}

// execute runs args against runner and returns the config the factory saw.
func execute(t *testing.T, runner *fakeRunner, factoryErr error, args ...string) (*app.Config, string, error) {
	t.Helper()
	var got *app.Config
	out := &bytes.Buffer{}
	err := Execute(context.Background(), args, out, func(_ io.Writer, cfg *app.Config) (Runner, error) {
		got = cfg
		if factoryErr != nil {
			return nil, factoryErr
		}
		return runner, nil
	})
	return got, out.String(), err
}

func TestBuild(t *testing.T) {
	cfg, out, err := execute(t, &fakeRunner{}, nil, "build", "--log-level", "DEBUG", "--workers", "3", "site.hcl")
	require.NoError(t, err)
	assert.Equal(t, &app.Config{PipelinePath: "site.hcl", LogLevel: "debug", LogFormat: "text", Workers: 3}, cfg)
	assert.Equal(t, "Build b1 finished in 1.5s (1 tasks).\n", out)
}

func TestBuildDefaults(t *testing.T) {
	cfg, _, err := execute(t, &fakeRunner{}, nil, "build")
	require.NoError(t, err)
	assert.Equal(t, "", cfg.PipelinePath)
	assert.Equal(t, app.DefaultWorkers, cfg.Workers)
}

func TestServe(t *testing.T) {
	runner := &fakeRunner{}
	cfg, _, err := execute(t, runner, nil, "serve", "--port", "9000", "--healthcheck-port", "9001")
	require.NoError(t, err)
	assert.True(t, runner.served)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 9001, cfg.HealthcheckPort)
}

func TestPartners(t *testing.T) {
	runner := &fakeRunner{partners: []*partner.Info{
		{Name: "Acme", Website: "https://acme.example", URL: "/partner/acme.html", Samples: []partner.Sample{{Title: "Chair"}}},
	}}

	cfg, out, err := execute(t, runner, nil, "partners", "--dir", "src/partner")
	require.NoError(t, err)
	assert.Equal(t, "src/partner", cfg.PartnerDir)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Acme  https://acme.example  1        /partner/acme.html")

	_, out, err = execute(t, runner, nil, "partners", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Acme"`)
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name       string
		runner     *fakeRunner
		factoryErr error
		args       []string
		wantCode   int
		wantMsg    string
	}{
		{"unknown flag", &fakeRunner{}, nil, []string{"build", "--nope"}, ExitUsage, "unknown flag: --nope"},
		{"too many args", &fakeRunner{}, nil, []string{"build", "a", "b"}, ExitUsage, "accepts at most 1 arg(s)"},
		{"bad log level", &fakeRunner{}, nil, []string{"build", "--log-level", "loud"}, ExitUsage, "invalid log-level"},
		{"bad log format", &fakeRunner{}, nil, []string{"build", "--log-format", "xml"}, ExitUsage, "invalid log-format"},
		{"pipeline error", &fakeRunner{}, errors.New("failed to load pipeline"), []string{"build"}, ExitFailure, "failed to load pipeline"},
		{"build failure", &fakeRunner{buildErr: errors.New("execution failed for a.b")}, nil, []string{"build"}, ExitFailure, "build failed: execution failed for a.b"},
		{"serve failure", &fakeRunner{serveErr: errors.New("address in use")}, nil, []string{"serve"}, ExitFailure, "address in use"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := execute(t, tc.runner, tc.factoryErr, tc.args...)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, tc.wantCode, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.wantMsg)
		})
	}
}

func TestHelp(t *testing.T) {
	_, out, err := execute(t, &fakeRunner{}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "serve")
}
