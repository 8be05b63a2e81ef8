package cli

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		printf(cmd, "guardian version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
