package main

import (
	"os"

	"github.com/spf13/cobra"

	"tbcv/internal/rpc"
)

func newServeCmd(c *cli) *cobra.Command {
	var stdio bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC server",
		Long: `Runs the server until EOF on stdin or an interrupt. With --stdio,
requests are newline-delimited JSON-RPC 2.0 on stdin and responses
on stdout; all diagnostics go to the log files and stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stdio {
				return &usageError{msg: "serve requires --stdio (the only transport)"}
			}
			ctx, cancel := signalContext()
			defer cancel()

			c.watch = true
			if err := c.ensureApp(ctx); err != nil {
				return err
			}
			c.log.Infow("serving", "transport", "stdio",
				"methods", len(c.app.Server.Registry().List()))

			transport := rpc.NewStdioTransport(c.app.Server.Dispatcher(), os.Stdout)
			err := transport.Serve(ctx, os.Stdin)
			c.log.Infow("server stopped", "err", err)
			return err
		},
	}
	silenceUsage(cmd)
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve JSON-RPC over stdin/stdout")
	return cmd
}
