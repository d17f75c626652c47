// ltrnpd serves TrackIR host calls from a linuxtrack head tracker.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ltrnp/internal/config"
	"ltrnp/internal/logging"
	"ltrnp/internal/shim"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	root := &cobra.Command{
		Use:   "ltrnpd",
		Short: "TrackIR bridge daemon for linuxtrack",
		Long: `ltrnpd owns the head-tracking engine, the recenter and pause hotkeys and
the bridge socket the game-side NPClient stub talks to.

SIGHUP re-reads the application database. SIGINT and SIGTERM detach
cleanly and exit.`,
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, configPath, logLevel)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default is ~/.ltrdll/config.toml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(newCheckConfigCmd(&configPath))
	return root
}

func runDaemon(cmd *cobra.Command, configPath, logLevel string) error {
	dm := shim.NewDaemonManager(config.Dir())
	if err := dm.WritePID(); err != nil {
		if errors.Is(err, shim.ErrAlreadyRunning) {
			pid, _ := dm.ReadPID()
			return fmt.Errorf("%w (PID %d)", err, pid)
		}
		return fmt.Errorf("write PID file: %w", err)
	}
	defer dm.Cleanup()

	s, err := shim.Attach(cmd.Context(), shim.Options{
		ConfigPath: configPath,
		LogLevel:   logLevel,
		Version:    Version,
	})
	if err != nil {
		return err
	}
	logging.SetDefault(s.Logger())
	log := s.Logger().WithComponent("ltrnpd")

	if err := s.ServeBridge(); err != nil {
		log.Error("bridge socket unavailable", "error", err)
		s.Detach()
		return fmt.Errorf("start bridge: %w", err)
	}

	if err := dm.WriteState(&shim.DaemonState{
		PID:        os.Getpid(),
		StartedAt:  time.Now(),
		Version:    Version,
		SocketPath: s.Config().Bridge.SocketPath,
	}); err != nil {
		log.Warn("cannot write state file", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			n, err := s.ReloadApps()
			if err != nil {
				log.Warn("reload application database", "error", err)
				continue
			}
			log.Info("application database reloaded", "entries", n)
			continue
		}

		log.Info("shutting down", "signal", sig.String())
		if err := s.Detach(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "ltrnpd: detach: %v\n", err)
		}
		return nil
	}
	return nil
}
