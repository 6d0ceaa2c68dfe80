package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newValidateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate files, folders or stdin content",
	}
	silenceUsage(cmd)

	var family string

	fileCmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Validate one Markdown file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, "validate_file", map[string]any{
				"file_path": args[0],
				"family":    family,
			})
		},
	}

	folderCmd := &cobra.Command{
		Use:   "folder <path>",
		Short: "Validate a folder tree as a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, "validate_folder", map[string]any{
				"folder_path": args[0],
				"family":      family,
			})
		},
	}

	contentCmd := &cobra.Command{
		Use:   "content [path-label]",
		Short: "Validate Markdown read from stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			params := map[string]any{
				"content": string(data),
				"family":  family,
			}
			if len(args) == 1 {
				params["file_path"] = args[0]
			}
			ctx, cancel := signalContext()
			defer cancel()
			return c.call(ctx, "validate_content", params)
		},
	}

	for _, sub := range []*cobra.Command{fileCmd, folderCmd, contentCmd} {
		silenceUsage(sub)
		sub.Flags().StringVar(&family, "family", "generic", "content family for rule resolution")
		cmd.AddCommand(sub)
	}
	return cmd
}
