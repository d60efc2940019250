package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seetharamtessell/opsexec/cmd/opsexec/commands"
	"github.com/seetharamtessell/opsexec/logger"
)

var logJSON bool

var rootCmd = &cobra.Command{
	Use:   "opsexec",
	Short: "opsexec - Local command-execution engine",
	Long: `opsexec - Asynchronous local command-execution engine.

Runs shell commands, programs, scripts, and cloud CLI operations with
streaming output, timeouts, cancellation, and multi-command plans.

Available commands:
  run    - Execute a program directly
  shell  - Execute a command string through a shell
  script - Execute a script file
  cloud  - Execute a cloud-provider CLI operation
  plan   - Execute a plan of commands from a YAML file
  serve  - Run the engine as a local daemon (HTTP API + websocket)
  list   - List executions on the running daemon
  logs   - Print the output log of an execution
  cancel - Cancel an execution on the running daemon

Examples:
  opsexec run kubectl get pods
  opsexec shell "df -h | grep /data"
  opsexec plan nightly.yaml
  opsexec serve`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(logJSON); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "structured JSON log output")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ShellCmd)
	rootCmd.AddCommand(commands.ScriptCmd)
	rootCmd.AddCommand(commands.CloudCmd)
	rootCmd.AddCommand(commands.PlanCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ListCmd)
	rootCmd.AddCommand(commands.LogsCmd)
	rootCmd.AddCommand(commands.CancelCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
