package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Continue an existing practice session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		page, _ := cmd.Flags().GetInt("page")

		ctx := cmd.Context()
		rt, err := setup(ctx, nil)
		if err != nil {
			return err
		}
		defer rt.Close()

		if page < 1 {
			snap, err := rt.store.SnapshotRepo().Latest(ctx, sessionID)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			page = 1
			if snap != nil {
				if snap.Completed {
					fmt.Fprintf(cmd.OutOrStdout(), "Session %s is already completed. Run 'mathdrill results %s'.\n", sessionID, sessionID)
					return nil
				}
				page = snap.CurrentPage
			}
		}

		return rt.practice(ctx, sessionID, page)
	},
}

func init() {
	resumeCmd.Flags().Int("page", 0, "Page to open (default: where you left off)")
}
