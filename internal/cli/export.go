package cli

import (
	"github.com/spf13/cobra"

	"github.com/blackscythe123/track-my-crypto/internal/app"
)

var (
	exportUser string
	exportCSV  string
	exportPNG  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a user's valued portfolio as CSV and/or a PNG allocation chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			CliqUser: exportUser,
			CSVPath:  exportCSV,
			PNGPath:  exportPNG,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportUser, "user", "", "Chat user id to export")
	exportCmd.Flags().StringVar(&exportCSV, "csv", "", "CSV output path")
	exportCmd.Flags().StringVar(&exportPNG, "png", "", "PNG output path")
}
