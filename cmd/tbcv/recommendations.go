package main

import (
	"github.com/spf13/cobra"
)

func newRecommendationsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommendations",
		Short: "List and review enhancement recommendations",
	}
	silenceUsage(cmd)

	var status string

	listCmd := &cobra.Command{
		Use:   "list <validation-id>",
		Short: "List recommendations for a validation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			params := map[string]any{"validation_id": args[0]}
			if status != "" {
				params["status"] = status
			}
			return c.call(ctx, "get_recommendations", params)
		},
	}
	listCmd.Flags().StringVar(&status, "status", "", "filter by status")

	approveCmd := &cobra.Command{
		Use:   "approve <recommendation-id>...",
		Short: "Approve recommendations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reviewRecs(c, args, "approve")
		},
	}

	rejectCmd := &cobra.Command{
		Use:   "reject <recommendation-id>...",
		Short: "Reject recommendations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reviewRecs(c, args, "reject")
		},
	}

	rebuildCmd := &cobra.Command{
		Use:   "rebuild <validation-id>",
		Short: "Regenerate recommendations from the stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, "rebuild_recommendations", map[string]any{"validation_id": args[0]})
		},
	}

	for _, sub := range []*cobra.Command{listCmd, approveCmd, rejectCmd, rebuildCmd} {
		silenceUsage(sub)
		cmd.AddCommand(sub)
	}
	return cmd
}

func reviewRecs(c *cli, ids []string, decision string) error {
	ctx, cancel := signalContext()
	defer cancel()
	if len(ids) == 1 {
		return c.call(ctx, "review_recommendation", map[string]any{
			"recommendation_id": ids[0],
			"decision":          decision,
		})
	}
	return c.call(ctx, "bulk_review_recommendations", map[string]any{
		"recommendation_ids": ids,
		"decision":           decision,
	})
}
