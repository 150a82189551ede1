package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hackdesk/triage/internal/api"
	"github.com/hackdesk/triage/internal/slack"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	Long: `Start the HTTP server for the dashboard API.
By default it listens on port 8080. Use --port to change it.

Callers identify themselves with the X-Triage-User header. Status
changes post a notification back to the originating Slack thread when
a bot token is configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		var notifier api.Notifier
		if token := viper.GetString("slack.bot_token"); token != "" {
			notifier = slack.New(nil, viper.GetString("slack.base_url"), token, viper.GetString("slack.app_token"))
		}

		srv := api.NewServer(s, getResolver(s), notifier, newLogger())

		port := viper.GetInt("port")
		addr := fmt.Sprintf(":%d", port)
		ui.Info("Serving API at http://localhost%s", addr)
		return http.ListenAndServe(addr, srv.Router())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}
