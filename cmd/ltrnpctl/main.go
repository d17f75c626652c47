// ltrnpctl is the operator CLI for ltrnpd.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ltrnp/internal/config"
	"ltrnp/internal/ipc"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globals holds the persistent flags.
type globals struct {
	configPath string
	socketPath string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "ltrnpctl",
		Short: "Control a running ltrnpd",
		Long: `ltrnpctl talks to ltrnpd over its bridge socket. Besides the operator
commands it can issue any host call, which is useful for checking a
tracker setup without starting a game.

Examples:
  # Show daemon, engine and hotkey state
  ltrnpctl status

  # Act as a game: register profile 2025, start and read poses
  ltrnpctl profile 2025
  ltrnpctl start
  ltrnpctl data --count 10 --interval 100ms`,
		Version:      Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default is ~/.ltrdll/config.toml)")
	root.PersistentFlags().StringVarP(&g.socketPath, "socket", "s", "", "bridge socket (default from config)")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		newStatusCmd(g),
		newRecenterCmd(g),
		newPauseCmd(g),
		newStartCmd(g),
		newStopCmd(g),
		newProfileCmd(g),
		newDataCmd(g),
		newSignatureCmd(g),
		newHistoryCmd(g),
		newReloadCmd(g),
		newMetricsCmd(g),
		newShutdownCmd(g),
	)
	return root
}

// socket returns the bridge socket path from the flag or the
// configuration.
func (g *globals) socket() string {
	if g.socketPath != "" {
		return g.socketPath
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return config.DefaultConfig().Bridge.SocketPath
	}
	return cfg.Bridge.SocketPath
}

// connect opens a client to the daemon.
func (g *globals) connect() (*ipc.Client, error) {
	cfg := ipc.DefaultClientConfig(g.socket())
	cfg.ClientVersion = Version
	if g.timeout > 0 {
		cfg.RequestTimeout = g.timeout
	}

	client := ipc.NewClient(cfg)
	if err := client.Connect(); err != nil {
		if errors.Is(err, ipc.ErrDaemonNotRunning) {
			return nil, fmt.Errorf("%w (start it with: ltrnpd)", err)
		}
		return nil, fmt.Errorf("cannot connect to daemon: %w", err)
	}
	return client, nil
}

// withClient runs fn with a connected client.
func (g *globals) withClient(fn func(*ipc.Client) error) error {
	client, err := g.connect()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}
