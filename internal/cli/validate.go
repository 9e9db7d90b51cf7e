package cli

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/spf13/cobra"

	"github.com/roach88/playback/internal/harness"
)

//go:embed schema.cue
var scenarioSchema string

// ValidationError describes one problem found in a scenario file.
type ValidationError struct {
	File    string `json:"file"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results across all files.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenarios-dir>",
		Short: "Validate scenarios without running them",
		Long: `Validate scenario YAML files against the scenario schema.

Each file is checked twice: against the CUE schema (field names, enum
values, shapes) and by the scenario loader (cross-field rules like
invoke/event exclusivity). Nothing is executed.

Examples:
  playback validate ./scenarios
  playback validate ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		_ = formatter.Error("E_NOT_FOUND", fmt.Sprintf("scenarios directory not found: %s", scenariosDir), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	files, err := findScenarioFiles(scenariosDir, "")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if len(files) == 0 {
		_ = formatter.Error("E_NO_SCENARIOS", fmt.Sprintf("no scenario files in %s", scenariosDir), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenario files in %s", scenariosDir))
	}

	schema, err := compileSchema()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile scenario schema", err)
	}

	var allErrors []ValidationError
	for _, file := range files {
		formatter.VerboseLog("Validating %s", file)
		allErrors = append(allErrors, validateScenarioFile(schema, file)...)
	}

	result := ValidationResult{
		Valid:  len(allErrors) == 0,
		Files:  len(files),
		Errors: allErrors,
	}
	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// compileSchema builds the embedded schema and resolves #Scenario.
func compileSchema() (cue.Value, error) {
	cuectx := cuecontext.New()
	v := cuectx.CompileString(scenarioSchema, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, err
	}
	def := v.LookupPath(cue.ParsePath("#Scenario"))
	if err := def.Err(); err != nil {
		return cue.Value{}, err
	}
	return def, nil
}

// validateScenarioFile checks one file against the schema and the
// loader's cross-field rules.
func validateScenarioFile(schema cue.Value, path string) []ValidationError {
	var errs []ValidationError
	base := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return []ValidationError{{File: base, Message: err.Error()}}
	}

	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return []ValidationError{{File: base, Message: fmt.Sprintf("not valid YAML: %v", err)}}
	}

	doc := schema.Context().BuildFile(file)
	if err := doc.Err(); err != nil {
		return append(errs, cueErrorsFor(base, err)...)
	}

	unified := schema.Unify(doc)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		errs = append(errs, cueErrorsFor(base, err)...)
	}

	// The loader enforces what the schema's shape alone cannot, e.g.
	// that code on an expect clause requires status error.
	if _, err := harness.ParseScenario(data); err != nil {
		errs = append(errs, ValidationError{File: base, Message: err.Error()})
	}
	return errs
}

// cueErrorsFor flattens a CUE error into one entry per message, with
// source line numbers where CUE provides them.
func cueErrorsFor(file string, err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{File: file, Message: e.Error()}
		if pos := e.Position(); pos.IsValid() {
			ve.Line = pos.Line()
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{File: file, Message: err.Error()})
	}
	return out
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %d scenario file(s) valid\n", result.Files)
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    "E_INVALID_SCENARIO",
				Message: result.Errors[0].Message,
			},
		}
		enc := json.NewEncoder(formatter.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range result.Errors {
		if e.Line > 0 {
			fmt.Fprintf(formatter.Writer, "  %s:%d: %s\n", e.File, e.Line, e.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", e.File, e.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}

// ValidateScenariosDir validates every scenario under dir. Helper for
// callers outside the command path.
func ValidateScenariosDir(dir string) ([]ValidationError, error) {
	files, err := findScenarioFiles(dir, "")
	if err != nil {
		return nil, err
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	var out []ValidationError
	for _, file := range files {
		out = append(out, validateScenarioFile(schema, file)...)
	}
	return out, nil
}
