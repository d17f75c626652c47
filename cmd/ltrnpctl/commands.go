package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ltrnp/internal/config"
	"ltrnp/internal/ipc"
	"ltrnp/internal/npclient"
	"ltrnp/internal/shim"
)

func newStatusCmd(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(func(c *ipc.Client) error {
				st, err := c.Status()
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(st)
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status as JSON")
	return cmd
}

func newRecenterCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "recenter",
		Short: "Recenter the tracker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(func(c *ipc.Client) error {
				if err := c.Recenter(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "recentered")
				return nil
			})
		},
	}
}

func newPauseCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause or resume tracking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(func(c *ipc.Client) error {
				mode, err := c.TogglePause()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "mode: %s\n", mode)
				return nil
			})
		},
	}
}

func newStartCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start data transmission (NP_StartDataTransmission)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(func(c *ipc.Client) error {
				code, err := c.StartDataTransmission()
				if err != nil {
					return err
				}
				return printResult(cmd, "NP_StartDataTransmission", code)
			})
		},
	}
}

func newStopCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop data transmission (NP_StopDataTransmission)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(func(c *ipc.Client) error {
				code, err := c.StopDataTransmission()
				if err != nil {
					return err
				}
				return printResult(cmd, "NP_StopDataTransmission", code)
			})
		},
	}
}

func newProfileCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "profile <id>",
		Short: "Register a program profile id (NP_RegisterProgramProfileID)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 16)
			if err != nil {
				return fmt.Errorf("invalid profile id %q: %w", args[0], err)
			}
			return g.withClient(func(c *ipc.Client) error {
				code, err := c.RegisterProgramProfileID(int16(id))
				if err != nil {
					return err
				}
				return printResult(cmd, "NP_RegisterProgramProfileID", code)
			})
		},
	}
}

func newDataCmd(g *globals) *cobra.Command {
	var (
		count    int
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Read data records (NP_GetData)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(func(c *ipc.Client) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%6s %10s %10s %10s %10s %10s %10s\n",
					"frame", "yaw", "pitch", "roll", "tx", "ty", "tz")
				for i := 0; i < count; i++ {
					if i > 0 {
						time.Sleep(interval)
					}
					d, err := c.GetData()
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%6d %10.1f %10.1f %10.1f %10.1f %10.1f %10.1f\n",
						d.Frame, d.Yaw, d.Pitch, d.Roll, d.TX, d.TY, d.TZ)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of records to read")
	cmd.Flags().DurationVar(&interval, "interval", 50*time.Millisecond, "delay between reads")
	return cmd
}

func newSignatureCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "signature",
		Short: "Show the client signature and version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(func(c *ipc.Client) error {
				sig, err := c.GetSignature()
				if err != nil {
					return err
				}
				v, err := c.QueryVersion()
				if err != nil {
					return err
				}
				dll, app := sig.Strings()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "dll:     %s\n", dll)
				fmt.Fprintf(out, "app:     %s\n", app)
				fmt.Fprintf(out, "version: 0x%04x\n", v)
				return nil
			})
		},
	}
}

func newHistoryCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent profile registrations and sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(func(c *ipc.Client) error {
				hist, err := c.History(limit)
				if err != nil {
					return err
				}
				printHistory(cmd.OutOrStdout(), hist)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", ipc.DefaultHistoryLimit, "entries per list")
	return cmd
}

func newReloadCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Re-read the application database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(func(c *ipc.Client) error {
				n, err := c.ReloadApps()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "application database: %d entries\n", n)
				return nil
			})
		},
	}
}

func newMetricsCmd(g *globals) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print the daemon's metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(func(c *ipc.Client) error {
				text, err := c.Metrics(format)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "prometheus", "output format: prometheus or json")
	return cmd
}

func newShutdownCmd(g *globals) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Stop the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dm := shim.NewDaemonManager(config.Dir())
			st := dm.Status()
			if !st.Running {
				return fmt.Errorf("ltrnpd is not running")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopping ltrnpd (PID %d, up %s)\n", st.PID, st.Uptime.Round(time.Second))
			if err := dm.SignalStop(); err != nil {
				return err
			}
			if err := dm.WaitForStop(wait); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ltrnpd stopped")
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "how long to wait for the daemon to exit")
	return cmd
}

func printResult(cmd *cobra.Command, call string, code int32) error {
	if code != npclient.ResultOK {
		return fmt.Errorf("%s returned %d", call, code)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", call)
	return nil
}
