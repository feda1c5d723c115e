package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solvaholic/rally/internal/api"
	"github.com/solvaholic/rally/internal/normalize"
)

var joinCmd = &cobra.Command{
	Use:   "join ID",
	Short: "Join an activity",
	Long: `Join signs the configured user up for an activity and stores the updated
activity. When the backend only acknowledges the join, the activity is
fetched again.`,
	Args: cobra.ExactArgs(1),
	RunE: runJoin,
}

func init() {
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	b, err := newBackend(cmd)
	if err != nil {
		return err
	}
	defer b.close()

	id := args[0]

	var resp *api.Response[*normalize.Activity]
	err = b.guard("POST /activities/:id/join", func() error {
		resp, err = b.client.JoinActivity(b.ctx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to join activity %s: %w", id, err)
	}

	activity := resp.Records
	if activity == nil {
		b.log.Debug("join acknowledged without a record, refetching", "id", id)
		var fresh *api.Response[*normalize.Activity]
		err = b.guard("/activities/:id", func() error {
			fresh, err = b.client.GetActivity(b.ctx, id)
			return err
		})
		if err != nil {
			return fmt.Errorf("joined activity %s but failed to refetch it: %w", id, err)
		}
		b.saveRaw("activity", id, fresh.Raw)
		activity = fresh.Records
	}

	if err := b.database.SaveActivity(activity); err != nil {
		b.log.Warn("failed to store activity", "id", activity.ID, "err", err)
	}
	b.log.Info("joined activity", "id", activity.ID, "players", activity.CurrentParticipants)

	return outputRecords([]*normalize.Activity{activity}, activitiesTable)
}
