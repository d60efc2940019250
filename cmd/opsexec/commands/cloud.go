package commands

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seetharamtessell/opsexec/command"
	"github.com/seetharamtessell/opsexec/engine"
)

var (
	cloudProfile string
	cloudRegion  string
)

// CloudCmd executes a cloud-provider CLI operation.
var CloudCmd = &cobra.Command{
	Use:   "cloud SERVICE OPERATION...",
	Short: "Execute a cloud-provider CLI operation",
	Long: `Execute an operation through a cloud provider CLI (aws, az,
gcloud, or any CLI on PATH).

--profile and --region lower to the provider's standard flags and the
operation is passed through otherwise untouched.

Examples:
  opsexec cloud aws "ec2 describe-instances" --profile prod --region us-east-1
  opsexec cloud gcloud "compute instances list"
  opsexec cloud az "vm list" --json`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, _, err := newEngine()
		if err != nil {
			return err
		}

		operation := strings.Join(args[1:], " ")
		req, err := buildRequest(engine.Request{
			Command: command.NewProvider(args[0], operation, nil, cloudProfile, cloudRegion),
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
	addExecutionFlags(CloudCmd.Flags())
	CloudCmd.Flags().StringVar(&cloudProfile, "profile", "", "credential profile to use")
	CloudCmd.Flags().StringVar(&cloudRegion, "region", "", "region to target")
}
