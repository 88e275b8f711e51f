// internal/cli/show_config.go
package ragask

import (
	"github.com/k0kubun/pp"
	"github.com/mwiater/ragask/internal/appconfig"
	"github.com/spf13/cobra"
)

// showConfigCmd implements 'show config', which prints the configuration after flags, the
// config file and defaults have been merged.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON configs are loaded properly and overriden by flags accordingly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		out := cmd.OutOrStdout()

		dump, _ := cmd.Flags().GetBool("dump")
		if dump {
			pp.ColoringEnabled = false
			_, err := pp.Fprintln(out, cfg)
			return err
		}

		appconfig.ShowConfig(out, loadedFile, cfg)
		return nil
	},
}

func init() {
	showConfigCmd.Flags().Bool("dump", false, "pretty-print the full config struct")
	showCmd.AddCommand(showConfigCmd)
}
