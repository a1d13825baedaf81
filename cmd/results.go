package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/mathdrill/internal/delivery"
)

var resultsCmd = &cobra.Command{
	Use:   "results <session-id>",
	Short: "Print the graded results of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := setup(ctx, nil)
		if err != nil {
			return err
		}
		defer rt.Close()

		d, err := rt.client.GetSessionDetails(ctx, delivery.DetailsRequest{SessionID: args[0]})
		if err != nil {
			return fmt.Errorf("get session details: %w", err)
		}

		out := cmd.OutOrStdout()
		if d.Celebration.Title != "" {
			fmt.Fprintln(out, d.Celebration.Title)
		}
		fmt.Fprintf(out, "Score: %d/%d (%.0f%%)\n\n", d.Score.Correct, d.Score.Total, d.Score.Percentage)

		fmt.Fprintf(out, "%-4s  %-4s  %-36s  %-10s  %-10s  %s\n", "Page", "#", "Question", "Yours", "Correct", "OK")
		fmt.Fprintln(out, strings.Repeat("─", 80))
		for _, p := range d.Problems {
			ok := "✓"
			if !p.IsCorrect {
				ok = "✗"
			}
			question := p.Question
			if len(question) > 36 {
				question = question[:33] + "..."
			}
			fmt.Fprintf(out, "%-4d  %-4d  %-36s  %-10s  %-10s  %s\n",
				p.PageNumber, p.SequenceNumber, question, p.UserAnswer, p.CorrectAnswer, ok)
		}
		return nil
	},
}
