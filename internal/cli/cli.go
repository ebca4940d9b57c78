package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vk/pagegrid/internal/app"
	"github.com/vk/pagegrid/internal/partner"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Exit codes.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// Runner is the part of the application the commands drive.
type Runner interface {
	Build(ctx context.Context) (*app.BuildResult, error)
	Serve(ctx context.Context) error
	Partners(ctx context.Context) ([]*partner.Info, error)
}

// AppFactory creates the application for a validated configuration. Log
// output goes to w.
type AppFactory func(w io.Writer, cfg *app.Config) (Runner, error)

type options struct {
	logLevel  string
	logFormat string
	workers   int
}

// Execute runs the command line described by args. Every failure is
// returned as an *ExitError.
func Execute(ctx context.Context, args []string, outW io.Writer, newApp AppFactory) error {
	root := NewRootCommand(outW, newApp)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Flag and argument errors come straight from cobra.
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// NewRootCommand builds the command tree.
func NewRootCommand(outW io.Writer, newApp AppFactory) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "pagegrid",
		Short: "pagegrid builds a static website from an HCL task pipeline",
		Long: `pagegrid builds a static website by running the tasks of an HCL pipeline
as a dependency graph: independent tasks run concurrently.

Without a PIPELINE_PATH the built-in website pipeline is used, resolved
against the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(outW)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	flags.IntVar(&opts.workers, "workers", app.DefaultWorkers, "Number of concurrent workers for tasks and files.")

	root.AddCommand(
		newBuildCommand(opts, newApp),
		newServeCommand(opts, newApp),
		newPartnersCommand(opts, newApp),
	)
	return root
}

// setup validates the flags and creates the application.
func setup(cmd *cobra.Command, opts *options, args []string, newApp AppFactory, fill func(*app.Config)) (Runner, error) {
	cfg := app.Config{
		LogLevel:  opts.logLevel,
		LogFormat: opts.logFormat,
		Workers:   opts.workers,
	}
	if len(args) > 0 {
		cfg.PipelinePath = args[0]
	}
	if fill != nil {
		fill(&cfg)
	}
	validated, err := app.NewConfig(cfg)
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	runner, err := newApp(cmd.ErrOrStderr(), validated)
	if err != nil {
		return nil, &ExitError{Code: ExitFailure, Message: err.Error()}
	}
	return runner, nil
}

func newBuildCommand(opts *options, newApp AppFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "build [PIPELINE_PATH]",
		Short: "Run the pipeline once",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := setup(cmd, opts, args, newApp, nil)
			if err != nil {
				return err
			}
			res, err := runner.Build(cmd.Context())
			if err != nil {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("build failed: %v", err)}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Build %s finished in %s (%d tasks).\n", res.BuildID, res.Duration.Round(time.Millisecond), len(res.Tasks))
			return nil
		},
	}
}

func newServeCommand(opts *options, newApp AppFactory) *cobra.Command {
	var port, healthPort int
	cmd := &cobra.Command{
		Use:   "serve [PIPELINE_PATH]",
		Short: "Build, serve the result with live reload and rebuild on change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := setup(cmd, opts, args, newApp, func(cfg *app.Config) {
				cfg.Port = port
				cfg.HealthcheckPort = healthPort
			})
			if err != nil {
				return err
			}
			if err := runner.Serve(cmd.Context()); err != nil {
				return &ExitError{Code: ExitFailure, Message: err.Error()}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "Port of the development server.")
	cmd.Flags().IntVar(&healthPort, "healthcheck-port", 0, "Port for a separate HTTP health check server. 0 is disabled.")
	return cmd
}

func newPartnersCommand(opts *options, newApp AppFactory) *cobra.Command {
	var dir string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "partners [PIPELINE_PATH]",
		Short: "List the partner profiles",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := setup(cmd, opts, args, newApp, func(cfg *app.Config) {
				cfg.PartnerDir = dir
			})
			if err != nil {
				return err
			}
			infos, err := runner.Partners(cmd.Context())
			if err != nil {
				return &ExitError{Code: ExitFailure, Message: err.Error()}
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			return printPartners(cmd.OutOrStdout(), infos)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Read profiles from this directory instead of the pipeline's partner directory.")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the profiles as JSON.")
	return cmd
}

func printPartners(w io.Writer, infos []*partner.Info) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tWEBSITE\tSAMPLES\tPAGE")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", info.Name, info.Website, len(info.Samples), info.URL)
	}
	return tw.Flush()
}
