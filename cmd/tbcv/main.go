// Command tbcv is the CLI front end for the TBCV validation and enhancement
// pipeline. Every subcommand goes through the same JSON-RPC dispatch layer a
// remote client would use.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var usage *usageError
		if errors.As(err, &usage) {
			fmt.Fprintln(os.Stderr, "error:", usage.msg)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// usageError marks invocation mistakes, which exit 2 instead of 1.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

// silenceUsage keeps cobra from dumping help text on runtime errors.
func silenceUsage(cmd *cobra.Command) {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
}
