package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"tbcv/internal/events"
	"tbcv/internal/types"
)

func newWorkflowsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "Manage long-running batch workflows",
	}
	silenceUsage(cmd)

	var state string
	var limit int

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			params := map[string]any{"limit": limit}
			if state != "" {
				params["state"] = state
			}
			return c.call(ctx, "list_workflows", params)
		},
	}
	listCmd.Flags().StringVar(&state, "state", "", "filter by state")
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	getCmd := &cobra.Command{
		Use:   "get <workflow-id>",
		Short: "Show one workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, "get_workflow", map[string]any{"workflow_id": args[0]})
		},
	}

	reportCmd := &cobra.Command{
		Use:   "report <workflow-id>",
		Short: "Show the workflow report with checkpoint info",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, "get_workflow_report", map[string]any{"workflow_id": args[0]})
		},
	}

	controlCmd := &cobra.Command{
		Use:       "control <workflow-id> <pause|resume|cancel>",
		Short:     "Pause, resume or cancel a workflow",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"pause", "resume", "cancel"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, "control_workflow", map[string]any{
				"workflow_id": args[0],
				"action":      args[1],
			})
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch <workflow-id>",
		Short: "Stream progress events until the workflow finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.watchWorkflow(args[0])
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <workflow-id>...",
		Short: "Delete finished workflows",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			if len(args) == 1 {
				return c.call(ctx, "delete_workflow", map[string]any{"workflow_id": args[0]})
			}
			return c.call(ctx, "bulk_delete_workflows", map[string]any{"workflow_ids": args})
		},
	}

	for _, sub := range []*cobra.Command{listCmd, getCmd, reportCmd, controlCmd, watchCmd, deleteCmd} {
		silenceUsage(sub)
		cmd.AddCommand(sub)
	}
	return cmd
}

// watchWorkflow subscribes to the in-process bus and prints progress lines
// until the workflow reaches a terminal state or the user interrupts.
func (c *cli) watchWorkflow(id string) error {
	ctx, cancel := signalContext()
	defer cancel()
	if err := c.ensureApp(ctx); err != nil {
		return err
	}

	sub := c.app.Bus.Subscribe(events.TopicProgress)
	defer sub.Unsubscribe()

	// Print the current state first; the workflow may already be done.
	w, err := c.app.Store.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %.1f%%\n", w.ID, w.State, w.ProgressPercent)
	if w.State.Terminal() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			if wid, _ := ev.Payload["workflow_id"].(string); wid != id {
				continue
			}
			line, _ := json.Marshal(ev.Payload)
			fmt.Println(string(line))
			if st, _ := ev.Payload["state"].(string); st != "" &&
				types.WorkflowState(st).Terminal() {
				return nil
			}
		}
	}
}
