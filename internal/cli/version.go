package cli

import (
	"github.com/spf13/cobra"

	"github.com/kinecosystem/kinmigrate/internal/version"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the kinmigrate build",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, f, err := settings(cmd)
		if err != nil {
			return err
		}
		info := version.Get()
		if f.IsJSON() {
			return f.Print(info)
		}
		return f.Print(info.String())
	},
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(versionCmd)
}
