package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/playback/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Task     string // optional - filter to one task's transitions
}

// TraceStats summarizes a recording.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Transitions int `json:"transitions"`
	StateRounds int `json:"state_rounds"`
	Tasks       int `json:"tasks"`
}

// TraceReport holds the complete trace output.
type TraceReport struct {
	Timeline []trace.Event `json:"timeline"`
	Stats    TraceStats    `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect a recorded trace",
		Long: `Print the timeline of a recorded run: task transitions and state
change rounds in logical-clock order, with summary statistics.

Examples:
  playback trace --db ./run.db
  playback trace --db ./run.db --task setVolume
  playback trace --db ./run.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Task, "task", "", "show only this task's transitions")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	ts, err := trace.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace database", err)
	}
	defer ts.Close()

	var events []trace.Event
	if opts.Task != "" {
		events, err = ts.Transitions(ctx, opts.Task)
	} else {
		events, err = ts.Events(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	report := TraceReport{Timeline: events, Stats: statsFor(events)}

	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: report})
	}
	return outputTraceText(cmd, report)
}

func statsFor(events []trace.Event) TraceStats {
	stats := TraceStats{TotalEvents: len(events)}
	tasks := map[string]struct{}{}
	for _, ev := range events {
		switch ev.Kind {
		case trace.KindTransition:
			stats.Transitions++
			tasks[ev.Task] = struct{}{}
		case trace.KindState:
			stats.StateRounds++
		}
	}
	stats.Tasks = len(tasks)
	return stats
}

func outputTraceText(cmd *cobra.Command, report TraceReport) error {
	w := cmd.OutOrStdout()

	if len(report.Timeline) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return nil
	}

	for _, ev := range report.Timeline {
		switch ev.Kind {
		case trace.KindTransition:
			line := fmt.Sprintf("%4d  task   %s → %s", ev.Seq, ev.Task, ev.Status)
			if ev.Error != "" {
				line += fmt.Sprintf(" (%s)", ev.Error)
			}
			if ev.InvocationID != "" {
				line += fmt.Sprintf("  [%s]", ev.InvocationID)
			}
			fmt.Fprintln(w, line)
		case trace.KindState:
			fmt.Fprintf(w, "%4d  state  changed: %s\n", ev.Seq, strings.Join(ev.Changed, ", "))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d events: %d transitions across %d task(s), %d state round(s)\n",
		report.Stats.TotalEvents, report.Stats.Transitions, report.Stats.Tasks, report.Stats.StateRounds)
	return nil
}

// sortedKeys returns map keys in stable order for text output.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
