package main

import (
	"github.com/spf13/cobra"
)

func newEnhanceCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enhance",
		Short: "Preview, apply and roll back enhancements",
	}
	silenceUsage(cmd)

	var force bool

	previewCmd := &cobra.Command{
		Use:   "preview <validation-id> [recommendation-id]...",
		Short: "Preview the edits for approved recommendations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			params := map[string]any{"validation_id": args[0]}
			if len(args) > 1 {
				params["recommendation_ids"] = args[1:]
			}
			return c.call(ctx, "enhance_preview", params)
		},
	}

	applyCmd := &cobra.Command{
		Use:   "apply <preview-id>",
		Short: "Apply a previewed enhancement to the file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, "enhance", map[string]any{
				"preview_id": args[0],
				"force":      force,
			})
		},
	}
	applyCmd.Flags().BoolVar(&force, "force", false, "bypass the safety gate")

	autoCmd := &cobra.Command{
		Use:   "auto <validation-id>",
		Short: "Preview and apply in one step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, "enhance_auto_apply", map[string]any{
				"validation_id": args[0],
				"force":         force,
			})
		},
	}
	autoCmd.Flags().BoolVar(&force, "force", false, "bypass the safety gate")

	rollbackCmd := &cobra.Command{
		Use:   "rollback <enhancement-id>",
		Short: "Restore the pre-enhancement file content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, "rollback_enhancement", map[string]any{
				"enhancement_id": args[0],
				"force":          force,
			})
		},
	}
	rollbackCmd.Flags().BoolVar(&force, "force", false, "restore even if the file changed since")

	diffCmd := &cobra.Command{
		Use:   "diff <enhancement-id>",
		Short: "Show the original/enhanced comparison",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, "get_enhancement_comparison", map[string]any{
				"enhancement_id": args[0],
			})
		},
	}

	for _, sub := range []*cobra.Command{previewCmd, applyCmd, autoCmd, rollbackCmd, diffCmd} {
		silenceUsage(sub)
		cmd.AddCommand(sub)
	}
	return cmd
}
