// Package main is the entry point for the oscar-runner CLI.
//
// This binary prepares inputs for the OSCAR climate model, runs it for the
// historical and scenario periods and writes the outputs. It delegates all
// functionality to the internal/cli package, which defines cobra commands.
//
// Build-time variables (version, commit, date) are injected via ldflags.
// During development, they default to "dev", "none", and "unknown"
// respectively.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmr-tortoise/oscar-runner/internal/cli"
)

// version, commit, and date are set at build time via ldflags. They
// provide binary identification for the --version flag output.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// Ctrl-C cancels the running model invocation; the backends clean up
	// their work directories and containers before returning.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := cli.NewRootCommand()
	rootCmd.SetContext(ctx)
	code := cli.Execute(rootCmd)
	stop()
	os.Exit(code)
}
