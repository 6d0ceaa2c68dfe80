package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newCallCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Call any registered RPC method directly",
		Long: `Calls a method by name with raw JSON parameters. Useful for methods
without a dedicated subcommand and for scripting:

  tbcv call list_validations '{"status":"pending","limit":10}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params map[string]any
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
					return &usageError{msg: fmt.Sprintf("params must be a JSON object: %v", err)}
				}
			}
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, args[0], params)
		},
	}
	silenceUsage(cmd)
	return cmd
}
