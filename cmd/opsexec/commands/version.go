package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seetharamtessell/opsexec/version"
)

var versionJSON bool

// VersionCmd prints build information.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		if versionJSON {
			printJSON(info)
			return
		}
		fmt.Println(info.String())
	},
}

func init() {
	VersionCmd.Flags().BoolVar(&versionJSON, "json", false, "print as JSON")
}
