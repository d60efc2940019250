package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/seetharamtessell/opsexec/command"
	"github.com/seetharamtessell/opsexec/engine"
)

// RunCmd executes a program directly, without a shell.
var RunCmd = &cobra.Command{
	Use:   "run PROGRAM [ARGS...]",
	Short: "Execute a program directly",
	Long: `Execute a program with arguments, without shell interpretation.

Output streams live; the command's exit code becomes opsexec's exit code.

Examples:
  opsexec run kubectl get pods
  opsexec run --timeout 30s terraform plan
  opsexec run --env AWS_PROFILE=prod --workdir /srv/deploy ./release.sh`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, _, err := newEngine()
		if err != nil {
			return err
		}

		req, err := buildRequest(engine.Request{
			Command: command.NewExec(args[0], args[1:]...),
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
	addExecutionFlags(RunCmd.Flags())
	// Stop flag parsing at the first positional so target-program flags
	// pass through untouched.
	RunCmd.Flags().SetInterspersed(false)
}
