package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tbcv/internal/app"
	"tbcv/internal/rpc"
)

// cli holds per-invocation state shared by all subcommands.
type cli struct {
	configPath string
	format     string
	watch      bool

	log *zap.SugaredLogger
	app *app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "tbcv",
		Short: "Validate and enhance Markdown corpora",
		Long: `tbcv validates Markdown files against structural, analytical and
semantic rules, generates reviewable recommendations and applies
approved edits surgically with rollback support.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			c.log = logger.Sugar()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.app != nil {
				c.app.Close()
			}
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}
	silenceUsage(root)

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to tbcv.yaml")
	root.PersistentFlags().StringVar(&c.format, "format", "text", "output format: text or json")

	root.AddCommand(
		newServeCmd(c),
		newValidateCmd(c),
		newValidationsCmd(c),
		newRecommendationsCmd(c),
		newEnhanceCmd(c),
		newWorkflowsCmd(c),
		newAdminCmd(c),
		newCallCmd(c),
	)
	return root
}

// ensureApp assembles the application once per invocation.
func (c *cli) ensureApp(ctx context.Context) error {
	if c.app != nil {
		return nil
	}
	a, err := app.New(ctx, app.Options{ConfigPath: c.configPath, Watch: c.watch})
	if err != nil {
		return fmt.Errorf("starting tbcv: %w", err)
	}
	c.app = a
	return nil
}

// call dispatches one method in-process and renders the result.
func (c *cli) call(ctx context.Context, method string, params map[string]any) error {
	if err := c.ensureApp(ctx); err != nil {
		return err
	}
	resp := rpc.Call(ctx, c.app.Server.Dispatcher(), method, params)
	if resp.Error != nil {
		data, _ := json.Marshal(resp.Error)
		return fmt.Errorf("%s", data)
	}
	return c.render(resp.Result)
}

// render prints a result. Text mode is indented JSON too; the structured
// payloads have no natural tabular form, but --format json guarantees the
// raw single-line result for scripting.
func (c *cli) render(result any) error {
	switch c.format {
	case "json":
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "text", "":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	default:
		return &usageError{msg: fmt.Sprintf("unknown format %q", c.format)}
	}
	return nil
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
