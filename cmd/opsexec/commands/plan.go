package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/seetharamtessell/opsexec/engine"
)

var (
	planJSON    bool
	planVerbose bool
)

// PlanCmd executes a multi-command plan from a YAML file.
var PlanCmd = &cobra.Command{
	Use:   "plan FILE",
	Short: "Execute a plan of commands from a YAML file",
	Long: `Execute a plan: multiple commands scheduled serially, in
parallel, or as a dependency graph.

Plan file format (YAML):

  description: nightly maintenance
  strategy:
    kind: serial           # serial | parallel | graph
    stop_on_error: true    # serial only
    # max_concurrency: 4   # parallel only
    # depends_on:          # graph only: member index -> dependencies
    #   1: [0]
  members:
    - command:
        kind: shell
        shell: {command: "pg_dump mydb > /backups/mydb.sql"}
      timeout_ms: 600000
    - command:
        kind: exec
        exec: {program: rsync, args: ["-a", "/backups/", "remote:/backups/"]}

Examples:
  opsexec plan nightly.yaml
  opsexec plan --verbose deploy.yaml
  opsexec plan --json checks.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPlanCommand,
}

func init() {
	PlanCmd.Flags().BoolVar(&planJSON, "json", false, "print the plan result as JSON")
	PlanCmd.Flags().BoolVar(&planVerbose, "verbose", false, "stream member output while the plan runs")
}

func runPlanCommand(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read plan file: %w", err)
	}
	var plan engine.Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return fmt.Errorf("failed to parse plan file: %w", err)
	}

	orch, _, err := newEngine()
	if err != nil {
		return err
	}

	if !planJSON {
		orch.Notifier().Register(engine.ObserverFunc(func(e engine.Event) {
			switch e.Type {
			case engine.EventPlanProgress:
				pterm.Info.Printfln("progress: %d/%d members finished", e.Completed, e.Total)
			case engine.EventStdout, engine.EventStderr:
				if planVerbose {
					fmt.Println(pterm.Gray(e.Line))
				}
			}
		}))
	}

	planID, err := orch.ExecutePlan(plan)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		orch.CancelPlan(planID)
	}()

	pr, err := orch.WaitPlan(context.Background(), planID)
	if err != nil {
		return err
	}

	if planJSON {
		printJSON(pr)
	} else {
		printPlanResult(pr)
	}

	if pr.Status != engine.StatusCompleted {
		os.Exit(1)
	}
	return nil
}

func printPlanResult(pr *engine.PlanResult) {
	rows := pterm.TableData{{"#", "STATUS", "EXIT", "DURATION", "ERROR"}}
	for i, res := range pr.Results {
		errMsg := res.Error
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i),
			statusStyled(res.Status),
			fmt.Sprintf("%d", res.ExitCode),
			(time.Duration(res.DurationMS) * time.Millisecond).String(),
			errMsg,
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(rows).Render()

	summary := fmt.Sprintf("%d completed, %d failed, %d timed out, %d cancelled in %s",
		pr.Stats.Completed, pr.Stats.Failed, pr.Stats.TimedOut, pr.Stats.Cancelled,
		time.Duration(pr.DurationMS)*time.Millisecond)
	if pr.Status == engine.StatusCompleted {
		pterm.Success.Printfln("plan completed: %s", summary)
	} else {
		pterm.Error.Printfln("plan %s: %s", pr.Status, summary)
	}
}
