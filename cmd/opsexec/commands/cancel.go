package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// CancelCmd cancels an execution on the running daemon.
var CancelCmd = &cobra.Command{
	Use:   "cancel EXECUTION_ID",
	Short: "Cancel an execution on the running daemon",
	Long: `Request cancellation of an execution. A running process is
killed; one still waiting for an execution slot never starts.
Cancelling an already finished execution is a no-op.

Examples:
  opsexec cancel 4f1c21b8-7b22-4c55-9d71-03a2f1b6f9aa`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.cancel(args[0]); err != nil {
			return err
		}
		pterm.Success.Printfln("cancellation requested for %s", args[0])
		return nil
	},
}
