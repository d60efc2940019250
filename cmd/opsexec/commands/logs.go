package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// LogsCmd prints the accumulated output log of an execution.
var LogsCmd = &cobra.Command{
	Use:   "logs EXECUTION_ID",
	Short: "Print the output log of an execution",
	Long: `Print the accumulated stdout and stderr of an execution, in
arrival order, from the daemon's log store. Works for running and
finished executions alike.

Examples:
  opsexec logs 4f1c21b8-7b22-4c55-9d71-03a2f1b6f9aa`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		text, err := client.readLogs(args[0])
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	},
}
