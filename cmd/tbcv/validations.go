package main

import (
	"github.com/spf13/cobra"
)

func newValidationsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validations",
		Short: "Inspect and review stored validations",
	}
	silenceUsage(cmd)

	var status, family, filePath string
	var limit int

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List validations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			params := map[string]any{"limit": limit}
			if status != "" {
				params["status"] = status
			}
			if family != "" {
				params["family"] = family
			}
			if filePath != "" {
				params["file_path"] = filePath
			}
			return c.call(ctx, "list_validations", params)
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "filter by status")
	listCmd.Flags().StringVar(&family, "family", "", "filter by family")
	listCmd.Flags().StringVar(&filePath, "file", "", "filter by file path")
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	getCmd := &cobra.Command{
		Use:   "get <validation-id>",
		Short: "Show one validation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, "get_validation", map[string]any{"validation_id": args[0]})
		},
	}

	approveCmd := &cobra.Command{
		Use:   "approve <validation-id>...",
		Short: "Approve one or more validations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			if len(args) == 1 {
				return c.call(ctx, "approve", map[string]any{"validation_id": args[0]})
			}
			return c.call(ctx, "bulk_approve", map[string]any{"validation_ids": args})
		},
	}

	rejectCmd := &cobra.Command{
		Use:   "reject <validation-id>...",
		Short: "Reject one or more validations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			if len(args) == 1 {
				return c.call(ctx, "reject", map[string]any{"validation_id": args[0]})
			}
			return c.call(ctx, "bulk_reject", map[string]any{"validation_ids": args})
		},
	}

	revalidateCmd := &cobra.Command{
		Use:   "revalidate <validation-id>",
		Short: "Run a fresh validation of the same file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, "revalidate", map[string]any{"validation_id": args[0]})
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history <file-path>",
		Short: "Show validation history for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, "get_validation_history", map[string]any{"file_path": args[0]})
		},
	}

	for _, sub := range []*cobra.Command{listCmd, getCmd, approveCmd, rejectCmd, revalidateCmd, historyCmd} {
		silenceUsage(sub)
		cmd.AddCommand(sub)
	}
	return cmd
}
