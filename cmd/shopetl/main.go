// Command shopetl reconciles exported shop documents into a relational store.
//
//	shopetl validate -c job.yaml
//	shopetl run -c job.yaml [--since 2024-03-01]
//	shopetl schedule -c job.yaml
//	shopetl watch -c job.yaml
//	shopetl entities
//
// Exit status: 0 success, 1 configuration or fatal error, 2 some records
// failed, 3 the store could not be reached.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"shopetl/internal/runner"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "shopetl/internal/storage/all"
)

var Version = "dev"

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		err = fmt.Errorf("exit status %d", code)
	}
	return &exitError{code: code, err: err}
}

// execute runs the CLI with args and returns the exit status.
func execute(args []string, stdout, stderr io.Writer) int {
	root := rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return runner.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.code != runner.ExitOK && ee.err != nil {
			fmt.Fprintln(stderr, "shopetl:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(stderr, "shopetl:", err)
	return runner.ExitFatal
}

func rootCmd() *cobra.Command {
	var opts globalOptions
	root := &cobra.Command{
		Use:           "shopetl",
		Short:         "Reconcile shop export documents into a relational store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "shopetl.yaml", "job config file (YAML or JSON)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		validateCmd(&opts),
		runCmd(&opts),
		scheduleCmd(&opts),
		watchCmd(&opts),
		entitiesCmd(),
	)
	return root
}
