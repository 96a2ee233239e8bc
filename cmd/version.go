package cmd

import (
	"fmt"

	"github.com/metal-toolbox/devicesync/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the devicesync build information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.Current().String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
