package cli

import (
	"fmt"
	"os"

	"github.com/emonklabs/emonk/internal/cli/ui"
	"github.com/emonklabs/emonk/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default emonk.toml",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = "emonk.toml"
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.GenerateDefault(path); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Printf("%s wrote %s\n", ui.StyleSuccess.Render(ui.SymbolCheck), path)
		return nil
	},
}

func init() {
	initCmd.Flags().String("config", "", "Path to write (default emonk.toml)")
}
