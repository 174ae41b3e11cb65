package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/lockbox/internal/session"
	"github.com/sweeney/lockbox/internal/store"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, _, _, err := loadSettings(*configPath)
			if err != nil {
				return err
			}
			st, err := store.Open(filepath.Join(settings.Device.DataDir, dbFile))
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := st.ListSessions(context.Background(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), recs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of sessions to list")
	return cmd
}

func printHistory(w io.Writer, recs []store.SessionRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return
	}
	out := newOutput(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tOUTCOME\tLOCK\tPENALTY\tID")
	for _, r := range recs {
		outcome := r.Outcome
		if r.EndedAt.IsZero() {
			outcome = session.OutcomeUnknown
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			paint(out, outcomeColor(outcome), string(outcome)),
			session.FormatSeconds(r.LockDuration),
			session.FormatSeconds(r.PenaltySeconds),
			r.ID)
	}
	tw.Flush()
}
