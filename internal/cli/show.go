package cli

import (
	"github.com/spf13/cobra"

	"github.com/blackscythe123/track-my-crypto/internal/app"
)

var (
	showLimit int
	showUser  string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recent alerts, or one user's portfolio with --user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{
			Limit:    showLimit,
			CliqUser: showUser,
		})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of recent alerts to show")
	showCmd.Flags().StringVar(&showUser, "user", "", "Chat user id to show the portfolio for")
}
