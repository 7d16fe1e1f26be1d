package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// exitError pairs a command failure with the process exit code it
// should produce: a bad or invalid configuration is distinguished
// from a runtime startup failure so callers (systemd units, CI
// checks) can tell the two apart.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

const (
	exitConfigError  = 1
	exitRuntimeError = 2
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agent",
		Short:         "Host agent: control-plane loop, data-plane pipeline, and introspection server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newStartCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// run executes the command tree and returns the process exit code.
func run() int {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Error())
			return exitErr.code
		}
		fmt.Fprintln(os.Stderr, err)
		return exitRuntimeError
	}
	return 0
}
