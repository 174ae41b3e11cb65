package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sweeney/lockbox/internal/session"
	"github.com/sweeney/lockbox/internal/store"
)

func newStateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the persisted controller state and exit",
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

			snap, found, err := st.LoadSnapshot(context.Background())
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved state.")
				return nil
			}
			printState(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

func printState(w io.Writer, snap session.Snapshot) {
	out := newOutput(w)
	t := snap.Timers

	fmt.Fprintf(w, "State: %s\n", paint(out, stateColor(snap.State), snap.State.String()))
	switch snap.State {
	case session.StateArmed, session.StateLocked:
		if snap.Config.HideTimer {
			fmt.Fprintln(w, "Lock:  hidden")
		} else {
			fmt.Fprintf(w, "Lock:  %s of %s remaining\n", session.FormatSeconds(t.LockRemaining), session.FormatSeconds(t.LockDuration))
		}
	case session.StateAborted:
		fmt.Fprintf(w, "Penalty: %s remaining\n", session.FormatSeconds(t.PenaltyRemaining))
	case session.StateTesting:
		fmt.Fprintf(w, "Test:  %s remaining\n", session.FormatSeconds(t.TestRemaining))
	}
	s := snap.Stats
	fmt.Fprintf(w, "Streak: %d  Completed: %d  Aborted: %d\n", s.Streaks, s.Completed, s.Aborted)
	fmt.Fprintf(w, "Payback debt: %s  Total locked: %s\n", session.FormatSeconds(s.PaybackAccumulated), session.FormatSeconds(s.TotalLockedTime))
}
