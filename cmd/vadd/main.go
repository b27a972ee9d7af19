// Package main provides the vadd CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/notargets/vadd/device"
	_ "github.com/notargets/vadd/device/host"
	"github.com/notargets/vadd/device/occa"
	_ "github.com/notargets/vadd/device/opencl"
	"github.com/notargets/vadd/runner"
	"github.com/notargets/vadd/runner/builder"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

// Exit statuses for failures outside the dispatch itself. Dispatch failures
// exit with runner.Kind.ExitCode.
const (
	exitUsage    = 2
	exitIO       = 3
	exitMismatch = 4
)

// exitError attaches a process exit status to an error
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode maps a command error to the process exit status. Errors that
// carry no status come from cobra's argument parsing.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var re *runner.Error
	if errors.As(err, &re) {
		return runner.KindOf(err).ExitCode()
	}
	return exitUsage
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vadd",
		Short: "vadd - elementwise vector addition on a compute device",
		Long: `vadd adds two float32 vectors on an OpenCL, OCCA or host device.

Input and output vectors use a text format whose first token is the element
count, or raw little-endian float32 for .raw and .bin files. Append .zst or
.lz4 to any file name to compress it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vadd v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newDevicesCmd())
	return rootCmd
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// openRuntime opens the configured backend. For OCCA, explicit property
// strings replace the default mode list.
func openRuntime(cfg builder.Config) (device.Runtime, error) {
	if cfg.Backend == "occa" && len(cfg.BackendProps) > 0 {
		modes := make([]occa.Mode, 0, len(cfg.BackendProps))
		for _, props := range cfg.BackendProps {
			m, err := occa.ParseMode(props)
			if err != nil {
				return nil, withCode(exitUsage, err)
			}
			modes = append(modes, m)
		}
		return occa.New(modes...), nil
	}
	rt, err := device.Open(cfg.Backend)
	if err != nil {
		return nil, &runner.Error{Kind: runner.KindResolution, Step: runner.StepResolve, Err: err}
	}
	return rt, nil
}
