package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/seetharamtessell/opsexec/command"
	"github.com/seetharamtessell/opsexec/engine"
)

var scriptInterpreter string

// ScriptCmd executes a script file.
var ScriptCmd = &cobra.Command{
	Use:   "script PATH",
	Short: "Execute a script file",
	Long: `Execute a script file, optionally through an interpreter.

Without --interpreter the file is executed directly and must be
executable. The path must exist and be readable; this is checked before
the execution is accepted.

Examples:
  opsexec script ./deploy.sh
  opsexec script --interpreter python3 ./migrate.py
  opsexec script --timeout 10m --workdir /srv/app ./rollout.sh`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, _, err := newEngine()
		if err != nil {
			return err
		}

		req, err := buildRequest(engine.Request{
			Command: command.NewScript(args[0], scriptInterpreter),
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
	addExecutionFlags(ScriptCmd.Flags())
	ScriptCmd.Flags().StringVar(&scriptInterpreter, "interpreter", "", "interpreter to run the script with")
}
