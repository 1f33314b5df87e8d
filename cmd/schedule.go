package cmd

import (
	"github.com/spf13/cobra"
)

// newScheduleCmd creates the 'schedule' subcommand, a daemon that crawls
// once a day at schedule.daily_at.
func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Runs a crawl every day at the configured time",
		Long: `Starts the daily trigger and blocks until interrupted. A trigger that fires
while the previous crawl is still running is skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			appInstance.StartServer(cmd.Context())
			return appInstance.Schedule(cmd.Context())
		},
	}
}
