package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sweeney/lockbox/internal/config"
	"github.com/sweeney/lockbox/internal/session"
)

func newCheckConfigCmd(configPath *string) *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the settings file and print its fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, fixes, fp, err := loadSettings(*configPath)
			if err != nil {
				return err
			}
			if err := reportConfig(cmd.OutOrStdout(), settings, fixes, fp); err != nil {
				return err
			}
			if write && len(fixes) > 0 {
				if err := settings.SaveTo(*configPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote corrected settings to %s\n", *configPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "write corrected settings back to the file")
	return cmd
}

func reportConfig(w io.Writer, s config.Settings, fixes []string, fp string) error {
	out := newOutput(w)
	if len(fixes) == 0 {
		fmt.Fprintln(w, paint(out, colorGreen, "Settings OK"))
	} else {
		fmt.Fprintln(w, paint(out, colorYellow, fmt.Sprintf("%d correction(s):", len(fixes))))
		for _, f := range fixes {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
	if err := session.CheckSettings(s.SessionPresets(), s.DeterrentConfig()); err != nil {
		fmt.Fprintln(w, paint(out, colorRed, "Settings check failed: "+err.Error()))
		return fmt.Errorf("check settings: %w", err)
	}
	fmt.Fprintf(w, "Fingerprint: %s\n", fp)
	return nil
}
