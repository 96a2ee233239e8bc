package cmd

import (
	"fmt"
	"log/slog"

	"github.com/metal-toolbox/devicesync/internal/configuration"
	"github.com/metal-toolbox/devicesync/internal/records"
	"github.com/spf13/cobra"
)

// validateCmd checks the configuration and records file without calling Jamf
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and records file",
	RunE: func(_ *cobra.Command, _ []string) error {
		config, err := configuration.Load(args)
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			return err
		}

		batch, err := records.NewLoader(config.RecordsOptions.File).Load()
		if err != nil {
			slog.Error("Failed to load device records", "file", config.RecordsOptions.File, "error", err)
			return err
		}

		slog.Debug("Device records loaded", "file", config.RecordsOptions.File, "serials", batch.Serials())

		fmt.Printf("%s: %d device records\n", config.RecordsOptions.File, len(batch))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
