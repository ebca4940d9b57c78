package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/pagegrid/internal/app"
	"github.com/vk/pagegrid/internal/cli"
	"github.com/vk/pagegrid/internal/hcl"
)

// main is the entrypoint for the pagegrid application.
func main() {
	// Use a minimal logger until the app configures its own.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()
	if err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires the HCL loader into the command line.
func run(ctx context.Context, outW io.Writer, args []string) error {
	return cli.Execute(ctx, args, outW, func(w io.Writer, cfg *app.Config) (cli.Runner, error) {
		a, err := app.NewApp(w, cfg, hcl.NewLoader())
		if err != nil {
			return nil, err
		}
		return a, nil
	})
}
