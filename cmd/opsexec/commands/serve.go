package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seetharamtessell/opsexec/config"
	"github.com/seetharamtessell/opsexec/logger"
	"github.com/seetharamtessell/opsexec/server"
)

var serveWatch bool

// ServeCmd runs the engine as a local daemon with an HTTP API and a
// websocket event stream.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the execution engine as a local daemon",
	Long: `Run the engine as a daemon serving an HTTP API and a live
websocket event stream on localhost.

The daemon is what 'opsexec list', 'opsexec logs', and 'opsexec cancel'
talk to. SIGINT or SIGTERM drains in-flight executions before exit.

Endpoints:
  POST /api/execute            submit a command
  POST /api/plans              submit a plan
  GET  /api/executions         list executions
  GET  /api/executions/{id}    execution status
  GET  /ws                     live event stream

Examples:
  opsexec serve
  opsexec serve --watch        # reload limits when opsexec.toml changes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cfg, err := newEngine()
		if err != nil {
			return err
		}

		if serveWatch {
			if path := config.FindProjectConfig(); path != "" {
				watcher, err := config.NewWatcher(path)
				if err != nil {
					logger.Warnw("Config watcher unavailable", "error", err)
				} else {
					watcher.OnReload(func(updated *config.Config) error {
						logger.Infow("Configuration reloaded",
							"max_concurrent", updated.Engine.MaxConcurrent,
							"default_timeout_seconds", updated.Engine.DefaultTimeoutSeconds)
						return nil
					})
					watcher.Start()
					defer watcher.Stop()
				}
			} else {
				logger.Warnw("No opsexec.toml found to watch")
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(orch, cfg.Server)
		return srv.Start(ctx)
	},
}

func init() {
	ServeCmd.Flags().BoolVar(&serveWatch, "watch", false, "watch the config file and reload on change")
}
