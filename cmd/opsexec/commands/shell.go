package commands

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seetharamtessell/opsexec/command"
	"github.com/seetharamtessell/opsexec/engine"
)

var shellInterpreter string

// ShellCmd executes a raw command string through a shell.
var ShellCmd = &cobra.Command{
	Use:   "shell COMMAND",
	Short: "Execute a command string through a shell",
	Long: `Execute a raw command string through a shell interpreter.

Pipes, redirection, and variable expansion work as they would in the
chosen shell (default: sh). Supported interpreters: ` + strings.Join(command.SupportedInterpreters(), ", ") + `.

Examples:
  opsexec shell "df -h | grep /data"
  opsexec shell --interpreter bash "set -o pipefail; make test 2>&1 | tee build.log"
  opsexec shell --timeout 5m "pg_dump mydb > backup.sql"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, _, err := newEngine()
		if err != nil {
			return err
		}

		req, err := buildRequest(engine.Request{
			Command: command.NewShell(args[0], shellInterpreter),
		})
		if err != nil {
			return err
		}

		code, err := runForeground(orch, req)
		if err != nil {
			return err
		}
		if code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	addExecutionFlags(ShellCmd.Flags())
	ShellCmd.Flags().StringVar(&shellInterpreter, "interpreter", "", "shell to run the command with (default sh)")
}
