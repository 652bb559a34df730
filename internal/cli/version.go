package cli

import (
	"fmt"

	"github.com/emonklabs/emonk/internal/cli/ui"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print Emonk version",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOut(cmd) {
			printJSON(map[string]string{
				"version": buildVersion,
				"commit":  buildCommit,
				"date":    buildDate,
			})
			return
		}
		fmt.Printf("%s emonk %s (commit: %s, built: %s)\n", ui.BrandEmoji, buildVersion, buildCommit, buildDate)
	},
}
