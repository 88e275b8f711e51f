// internal/cli/show.go
package ragask

import (
	"github.com/spf13/cobra"
)

// showCmd represents the 'show' command group for displaying resolved settings.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Group commands for displaying settings",
	Long:  `The 'show' command groups subcommands that display information about how ragask is configured.`,
}

func init() {
	rootCmd.AddCommand(showCmd)
}
