package status

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/simonsavoca/bitburner/internal/lock"
	"github.com/simonsavoca/bitburner/internal/model"
	"github.com/simonsavoca/bitburner/internal/uds"
	yamlutil "github.com/simonsavoca/bitburner/internal/yaml"
)

// Report is what `hwgw status` prints.
type Report struct {
	Daemon DaemonState         `json:"daemon"`
	Live   *model.DaemonStatus `json:"live,omitempty"`
	// LastKnown is read from state/metrics.yaml when the daemon does not answer.
	LastKnown *model.Metrics `json:"last_known,omitempty"`
}

type DaemonState struct {
	Running bool `json:"running"`
	PID     int  `json:"pid,omitempty"`
}

// Run collects the report and writes it to stdout.
func Run(stateDir string, jsonOutput bool) error {
	r := Collect(stateDir)
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	Print(os.Stdout, r)
	return nil
}

// Collect queries the daemon, falling back to the files it last wrote.
func Collect(stateDir string) Report {
	var r Report
	client := uds.NewClient(filepath.Join(stateDir, uds.DefaultSocketName), 2*time.Second)

	var live model.DaemonStatus
	if err := client.Call("status", nil, &live); err == nil {
		r.Daemon = DaemonState{Running: true, PID: live.PID}
		r.Live = &live
		return r
	}

	r.Daemon.PID = lock.HolderPID(filepath.Join(stateDir, "locks", "daemon.lock"))
	var m model.Metrics
	if err := yamlutil.Load(filepath.Join(stateDir, "state", "metrics.yaml"), &m); err == nil && m.FileType != "" {
		r.LastKnown = &m
	}
	return r
}

// Print renders r as plain text.
func Print(w io.Writer, r Report) {
	if r.Daemon.Running {
		fmt.Fprintf(w, "Daemon: running (pid %d)\n", r.Daemon.PID)
	} else {
		fmt.Fprintln(w, "Daemon: stopped")
	}

	switch {
	case r.Live != nil:
		printLive(w, *r.Live)
	case r.LastKnown != nil:
		printLastKnown(w, *r.LastKnown)
	}
}

func printLive(w io.Writer, d model.DaemonStatus) {
	s := d.Status
	phase := string(s.Phase)
	if s.ResumePhase != "" {
		phase += " (after " + string(s.ResumePhase) + ")"
	}
	fmt.Fprintf(w, "\nMode:         %s\n", s.Mode)
	fmt.Fprintf(w, "Phase:        %s\n", phase)
	fmt.Fprintf(w, "Target:       %s\n", dash(s.Target))
	fmt.Fprintf(w, "Iteration:    %d\n", s.Iteration)
	fmt.Fprintf(w, "Fleet:        %d nodes, %d free threads\n", s.FleetNodes, s.FreeThreads)
	fmt.Fprintf(w, "Uptime:       %s\n", time.Since(d.StartedAt).Truncate(time.Second))

	if p := s.LastPartition; p != nil {
		fmt.Fprintf(w, "\nLast batch:   H:%d W:%d G:%d W:%d (unused %d)\n",
			p.Extract, p.Penalty1, p.Yield, p.Penalty2, p.Remainder())
	}
	if r := s.LastRound; r != nil {
		letters := make([]string, 0, len(r.Kinds))
		for _, k := range r.Kinds {
			letters = append(letters, k.Letter())
		}
		fmt.Fprintf(w, "Last round:   %s placed %d/%d, %d failed, wait %s\n",
			strings.Join(letters, ""), r.Placed, r.Requested, r.Failures, r.Wait)
	}
	printCounters(w, d.Counters)
}

func printLastKnown(w io.Writer, m model.Metrics) {
	fmt.Fprintln(w, "\nLast known state:")
	fmt.Fprintf(w, "  phase=%s target=%s fleet=%d updated=%s\n",
		m.Phase, dash(m.Target), m.FleetNodes, derefOr(m.UpdatedAt, "never"))
	printCounters(w, m.Counters)
}

func printCounters(w io.Writer, c model.MetricsCounters) {
	fmt.Fprintln(w, "\nCounters:")
	fmt.Fprintf(w, "  %-20s %8d\n", "iterations", c.Iterations)
	fmt.Fprintf(w, "  %-20s %8d\n", "batches", c.Batches)
	fmt.Fprintf(w, "  %-20s %8d\n", "skipped batches", c.SkippedBatches)
	fmt.Fprintf(w, "  %-20s %8d\n", "prepare rounds", c.PenaltyRounds+c.YieldRounds+c.CorrectiveRounds)
	fmt.Fprintf(w, "  %-20s %8d\n", "simple actions", c.SimpleActions)
	fmt.Fprintf(w, "  %-20s %8d\n", "threads placed", c.ThreadsPlaced)
	fmt.Fprintf(w, "  %-20s %8d\n", "placement failures", c.PlacementFailures)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
