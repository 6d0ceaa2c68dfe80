package main

import (
	"github.com/spf13/cobra"
)

func newAdminCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operational commands: status, cache, maintenance, exports",
	}
	silenceUsage(cmd)

	simple := func(use, short, method string) *cobra.Command {
		sub := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := signalContext()
				defer cancel()
				return c.call(ctx, method, nil)
			},
		}
		silenceUsage(sub)
		return sub
	}

	cmd.AddCommand(
		simple("status", "Show system status", "get_system_status"),
		simple("health", "Probe subsystem health", "get_health_report"),
		simple("stats", "Show entity and cache statistics", "get_stats"),
		simple("performance", "Show per-method dispatch timings", "get_performance_report"),
		simple("validators", "List registered validators", "get_available_validators"),
		simple("gc", "Expire rollbacks and clean cache entries", "run_gc"),
		simple("reload", "Reload rules and truth data", "reload_agent"),
		simple("rebuild-cache", "Clear caches and reload config", "rebuild_cache"),
	)

	maintenanceCmd := &cobra.Command{
		Use:       "maintenance <on|off>",
		Short:     "Toggle maintenance mode",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			switch args[0] {
			case "on":
				return c.call(ctx, "enable_maintenance_mode", nil)
			case "off":
				return c.call(ctx, "disable_maintenance_mode", nil)
			default:
				return &usageError{msg: "maintenance takes on or off"}
			}
		},
	}

	var ns string
	clearCacheCmd := &cobra.Command{
		Use:   "clear-cache",
		Short: "Clear cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			params := map[string]any{}
			if ns != "" {
				params["namespace"] = ns
			}
			return c.call(ctx, "clear_cache", params)
		},
	}
	clearCacheCmd.Flags().StringVar(&ns, "namespace", "", "limit to one namespace")

	var auditMethod string
	var auditLimit int
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			params := map[string]any{"limit": auditLimit}
			if auditMethod != "" {
				params["method"] = auditMethod
			}
			return c.call(ctx, "get_audit_log", params)
		},
	}
	auditCmd.Flags().StringVar(&auditMethod, "method", "", "filter by method")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 100, "maximum entries")

	var exportFormat string
	exportCmd := &cobra.Command{
		Use:       "export <validation|recommendations|workflow> <id>",
		Short:     "Export an entity as json or yaml",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"validation", "recommendations", "workflow"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			switch args[0] {
			case "validation":
				return c.call(ctx, "export_validation", map[string]any{
					"validation_id": args[1], "format": exportFormat,
				})
			case "recommendations":
				return c.call(ctx, "export_recommendations", map[string]any{
					"validation_id": args[1], "format": exportFormat,
				})
			case "workflow":
				return c.call(ctx, "export_workflow", map[string]any{
					"workflow_id": args[1], "format": exportFormat,
				})
			default:
				return &usageError{msg: "export takes validation, recommendations or workflow"}
			}
		},
	}
	exportCmd.Flags().StringVar(&exportFormat, "export-format", "json", "json or yaml")

	for _, sub := range []*cobra.Command{maintenanceCmd, clearCacheCmd, auditCmd, exportCmd} {
		silenceUsage(sub)
		cmd.AddCommand(sub)
	}
	return cmd
}
