package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/playback/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// RunReport is the JSON payload for a single scenario run.
type RunReport struct {
	Name   string         `json:"name"`
	Pass   bool           `json:"pass"`
	Events int            `json:"events"`
	State  map[string]any `json:"state"`
	Errors []string       `json:"errors,omitempty"`
	Routed []string       `json:"routed,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a single scenario",
		Long: `Run one scenario against a fake media element and report the
outcome. With --db the full trace is persisted to a SQLite database
for later inspection with the trace command.

Examples:
  playback run ./scenarios/volume-roundtrip.yaml
  playback run ./scenarios/volume-roundtrip.yaml --db ./run.db
  playback run ./scenarios/volume-roundtrip.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the trace to this SQLite database")

	return cmd
}

func runScenario(opts *RunOptions, scenarioFile string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	logger.Debug("scenario loaded", "name", scenario.Name, "steps", len(scenario.Flow))

	var result *harness.Result
	if opts.Database != "" {
		logger.Debug("recording trace", "path", opts.Database)
		result, err = harness.RunRecorded(scenario, opts.Database)
	} else {
		result, err = harness.Run(scenario)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	report := RunReport{
		Name:   scenario.Name,
		Pass:   result.Pass,
		Events: len(result.Trace),
		State:  result.State,
		Errors: result.Errors,
		Routed: result.Routed,
	}
	if opts.Format == "json" {
		return outputRunJSON(cmd, report)
	}
	return outputRunText(cmd, opts, report)
}

func outputRunJSON(cmd *cobra.Command, report RunReport) error {
	formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	if !report.Pass {
		if err := formatter.Error("E_SCENARIO_FAILED", fmt.Sprintf("scenario %s failed", report.Name), report); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", report.Name))
	}
	return formatter.Success(report)
}

func outputRunText(cmd *cobra.Command, opts *RunOptions, report RunReport) error {
	w := cmd.OutOrStdout()

	if report.Pass {
		fmt.Fprintf(w, "✓ %s (%d events)\n", report.Name, report.Events)
	} else {
		fmt.Fprintf(w, "✗ %s (%d events)\n", report.Name, report.Events)
		for _, e := range report.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	if opts.Verbose {
		fmt.Fprintln(w, "Final state:")
		for _, k := range sortedKeys(report.State) {
			fmt.Fprintf(w, "  %s = %v\n", k, report.State[k])
		}
		for _, r := range report.Routed {
			fmt.Fprintf(w, "  routed: %s\n", r)
		}
	}

	if opts.Database != "" {
		if _, err := os.Stat(opts.Database); err == nil {
			fmt.Fprintf(w, "Trace recorded to %s\n", opts.Database)
		}
	}

	if !report.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", report.Name))
	}
	return nil
}
