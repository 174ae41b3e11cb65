package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/sweeney/lockbox/internal/config"
)

// DefaultConfigPath is where the settings file lives on the device.
const DefaultConfigPath = "/etc/lockbox/settings.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "lockbox",
		Short:         "Lock session controller",
		Long:          "lockbox drives up to four lock channels through timed sessions with a safety interlock, a failsafe timer and abort deterrents.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", DefaultConfigPath, "settings file (YAML)")

	rootCmd.AddCommand(
		newRunCmd(&configPath),
		newStateCmd(&configPath),
		newHistoryCmd(&configPath),
		newCheckConfigCmd(&configPath),
	)
	return rootCmd
}

// loadSettings reads, overrides and normalises the settings. Corrections are
// logged and never fatal.
func loadSettings(path string) (config.Settings, []string, string, error) {
	s, err := config.Load(path)
	if err != nil {
		return s, nil, "", err
	}
	fixes := s.Normalize()
	for _, f := range fixes {
		log.Printf("config: corrected %s", f)
	}
	fp, err := s.Fingerprint()
	if err != nil {
		return s, fixes, "", fmt.Errorf("fingerprint settings: %w", err)
	}
	return s, fixes, fp, nil
}
