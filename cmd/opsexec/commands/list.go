package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var listJSON bool

// ListCmd lists executions known to the serve daemon.
var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "List executions on the running daemon",
	Long: `List all executions known to the local serve daemon, newest
first. Records live in memory on the daemon; restarting it clears the
listing (log files on disk remain).

Examples:
  opsexec list
  opsexec list --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		executions, err := client.listExecutions()
		if err != nil {
			return err
		}

		if listJSON {
			printJSON(executions)
			return nil
		}
		if len(executions) == 0 {
			pterm.Info.Println("no executions")
			return nil
		}

		rows := pterm.TableData{{"ID", "STATUS", "COMMAND", "SOURCE", "DURATION", "CREATED"}}
		for _, s := range executions {
			cmdText := s.Command
			if len(cmdText) > 48 {
				cmdText = cmdText[:45] + "..."
			}
			rows = append(rows, []string{
				s.ID,
				statusStyled(s.Status),
				cmdText,
				s.Source,
				(time.Duration(s.DurationMS) * time.Millisecond).String(),
				s.CreatedAt.Format(time.TimeOnly),
			})
		}
		pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
		fmt.Printf("%d execution(s)\n", len(executions))
		return nil
	},
}

func init() {
	ListCmd.Flags().BoolVar(&listJSON, "json", false, "print the listing as JSON")
}
