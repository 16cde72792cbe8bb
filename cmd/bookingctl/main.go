package main

import (
	"fmt"
	"os"

	"github.com/prohmpiriya/event-booking-saga/pkg/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "bookingctl",
		Short:         "Operate the event booking databases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "read configuration from this .env file instead of the environment")

	loadConfig := func() (*config.Config, error) {
		if envFile != "" {
			return config.LoadWithPath(envFile)
		}
		return config.Load()
	}

	root.AddCommand(
		newMigrateCommand(loadConfig),
		newSeedCommand(loadConfig),
	)
	return root
}
