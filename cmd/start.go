package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/mathdrill/internal/delivery"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Create a new practice session and start it",
	RunE: func(cmd *cobra.Command, args []string) error {
		concepts, _ := cmd.Flags().GetStringSlice("concepts")
		minutes, _ := cmd.Flags().GetInt("minutes")
		grade, _ := cmd.Flags().GetInt("grade")

		ctx := cmd.Context()
		rt, err := setup(ctx, nil)
		if err != nil {
			return err
		}
		defer rt.Close()

		resp, err := rt.client.CreateSession(ctx, delivery.CreateSessionRequest{
			ConceptIDs:       concepts,
			StudyTimeMinutes: minutes,
			GradeLevel:       grade,
		})
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		rt.logger.Info("session created", zap.String("session_id", resp.SessionID), zap.Strings("concepts", concepts))
		fmt.Fprintf(cmd.ErrOrStderr(), "Session %s created.\n", resp.SessionID)

		return rt.practice(ctx, resp.SessionID, 1)
	},
}

func init() {
	startCmd.Flags().StringSlice("concepts", []string{"arithmetic"}, "Concept ids to practice (comma separated)")
	startCmd.Flags().Int("minutes", 20, "Study time in minutes")
	startCmd.Flags().Int("grade", 4, "Grade level")
}
