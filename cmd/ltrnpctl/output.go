package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"ltrnp/internal/ipc"
)

// printSection prints a section heading.
func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n", title)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printStatus(w io.Writer, st *ipc.StatusResponse) {
	printSection(w, "DAEMON")
	fmt.Fprintf(w, "  Version        %s\n", st.Version)
	fmt.Fprintf(w, "  Started        %s\n", st.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  Uptime         %s\n", st.Uptime.Round(time.Second))
	fmt.Fprintf(w, "  Clients        %d\n", st.Clients)

	printSection(w, "ENGINE")
	fmt.Fprintf(w, "  Backend        %s\n", st.Engine)
	fmt.Fprintf(w, "  Phase          %s\n", st.Phase)
	fmt.Fprintf(w, "  Mode           %s\n", st.Mode)
	if st.Profile != "" {
		fmt.Fprintf(w, "  Profile        %s\n", st.Profile)
	}
	fmt.Fprintf(w, "  Generation     %d\n", st.Generation)
	if st.Probe != nil {
		fmt.Fprintf(w, "  Calls          %d (max concurrent %d, violations %d)\n",
			st.Probe.Calls, st.Probe.MaxConcurrent, st.Probe.Violations)
	}

	printSection(w, "HOTKEYS")
	fmt.Fprintf(w, "  Listener       %s (%s)\n", st.Listener.Phase, st.Listener.Strategy)
	fmt.Fprintf(w, "  Recenter       %q bound=%s\n", st.Listener.RecenterKey, yesNo(st.Listener.RecenterBound))
	fmt.Fprintf(w, "  Pause          %q bound=%s\n", st.Listener.PauseKey, yesNo(st.Listener.PauseBound))

	printSection(w, "PROFILES")
	fmt.Fprintf(w, "  App database   %s (%d entries)\n", st.AppDB.Path, st.AppDB.Entries)
	fmt.Fprintf(w, "  Journal        %s\n", yesNo(st.Journal))

	if len(st.Metrics) > 0 {
		printSection(w, "METRICS")
		names := make([]string, 0, len(st.Metrics))
		for name := range st.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %-40s %g\n", name, st.Metrics[name])
		}
	}
	fmt.Fprintln(w)
}

func printHistory(w io.Writer, hist *ipc.HistoryResponse) {
	printSection(w, "REGISTRATIONS")
	if len(hist.Registrations) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, r := range hist.Registrations {
		result := "ok"
		if !r.OK {
			result = "FAILED"
		}
		fmt.Fprintf(w, "  %s  %6d  %-30s %s\n", r.At.Format(time.DateTime), r.ProfileID, r.Name, result)
	}

	printSection(w, "SESSIONS")
	if len(hist.Sessions) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, s := range hist.Sessions {
		state := s.Duration.Round(time.Second).String()
		if s.Open {
			state += " (open)"
		}
		fmt.Fprintf(w, "  %s  %-30s %-16s %d frames\n", s.StartedAt.Format(time.DateTime), s.Profile, state, s.Frames)
	}
	fmt.Fprintln(w)
}
