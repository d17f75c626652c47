package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ltrnp/internal/config"
	"ltrnp/internal/logging"
)

func newCheckConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration without starting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			path := *configPath
			if path == "" {
				path = config.ConfigPath()
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			for _, w := range cfg.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			apps, appsErr := config.LoadAppDB(cfg.Profiles.AppDB)
			if appsErr != nil {
				fmt.Fprintf(out, "warning: application database: %v\n", appsErr)
			} else {
				for _, w := range apps.Warnings() {
					fmt.Fprintf(out, "warning: %s: %s\n", cfg.Profiles.AppDB, w)
				}
			}

			fmt.Fprintf(out, "config:       %s\n", path)
			fmt.Fprintf(out, "engine:       %s (settle %s)\n", cfg.Engine.Backend, cfg.SettleDelay())
			fmt.Fprintf(out, "keys:         recenter=%q pause=%q\n", cfg.Keys.Recenter, cfg.Keys.Pause)
			if appsErr == nil {
				fmt.Fprintf(out, "applications: %d in %s\n", apps.Len(), cfg.Profiles.AppDB)
			}
			fmt.Fprintf(out, "socket:       %s\n", cfg.Bridge.SocketPath)
			lc := cfg.LogConfig()
			fmt.Fprintf(out, "logging:      %s to %s\n", logging.LevelString(lc.Level), lc.FilePath)
			fmt.Fprintln(out, "ok")
			return nil
		},
	}
}
