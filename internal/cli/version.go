package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackscythe123/track-my-crypto/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("trackmycrypto %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildDate)
	},
}
