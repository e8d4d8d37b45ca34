// Package model defines the domain types and value objects for the
// oscar-runner CLI.
//
// This package contains pure data structures with no external dependencies.
// Run labels, simulation periods and prognostic variable declarations are
// shared by the pipeline, the model backends and the CLI.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
