package cmd

import (
	"github.com/spf13/cobra"

	"github.com/coullessi/arcdefender/internal/message"
	"github.com/coullessi/arcdefender/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of arcdefender",
	Long:  `All software has versions. This is arcdefender's`,
	Run: func(cmd *cobra.Command, args []string) {
		message.Info("%s", version.FullVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
