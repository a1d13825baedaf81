package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/mathdrill/internal/delivery"
	"github.com/abhisek/mathdrill/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Show the local journal for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dbPath, err := resolveDBPath(cfg)
		if err != nil {
			return fmt.Errorf("resolve DB path: %w", err)
		}
		s, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		sep := strings.Repeat("─", 60)

		snap, err := s.SnapshotRepo().Latest(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		fmt.Fprintf(out, "Session:   %s\n", sessionID)
		if snap != nil {
			status := "in progress"
			if snap.Completed {
				status = "completed"
			}
			fmt.Fprintf(out, "Position:  page %d of %d (%s)\n", snap.CurrentPage, snap.TotalPages, status)
			fmt.Fprintf(out, "Updated:   %s\n", snap.Timestamp.Local().Format("2006-01-02 15:04:05"))
		} else {
			fmt.Fprintln(out, "Position:  no snapshot recorded")
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Requests")
		fmt.Fprintln(out, sep)
		for _, op := range []string{
			delivery.OpCreateSession,
			delivery.OpGetSessionProblems,
			delivery.OpSubmitAnswer,
			delivery.OpSubmitPage,
			delivery.OpCompleteSession,
			delivery.OpGetSessionDetails,
		} {
			ok, failed, err := s.EventRepo().RequestCount(ctx, sessionID, op)
			if err != nil {
				return fmt.Errorf("count %s requests: %w", op, err)
			}
			if ok+failed == 0 {
				continue
			}
			fmt.Fprintf(out, "%-20s  %5d ok  %5d failed\n", op, ok, failed)
		}

		stats, err := s.EventRepo().AutosaveStats(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("autosave stats: %w", err)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Autosave")
		fmt.Fprintln(out, sep)
		fmt.Fprintf(out, "sent %d   failed %d   dropped %d   total %d\n", stats.Sent, stats.Failed, stats.Dropped, stats.Total())

		unsaved, err := s.EventRepo().UnsavedFields(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("unsaved fields: %w", err)
		}
		if len(unsaved) == 0 {
			return nil
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Fields whose last save did not reach the server")
		fmt.Fprintln(out, sep)
		for _, e := range unsaved {
			fmt.Fprintf(out, "page %-3d #%-3d  %-8s  %-12q  %s\n", e.PageNumber, e.SequenceNumber, e.Outcome, e.Value, e.ErrorMessage)
		}
		return nil
	},
}
