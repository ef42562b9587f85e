package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/onboarding"
)

// ValidationIssue is one profile that failed to load.
type ValidationIssue struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Profiles []ProfileSummary  `json:"profiles,omitempty"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
}

// ProfileSummary describes a profile that passed validation.
type ProfileSummary struct {
	File      string `json:"file"`
	AgentName string `json:"agent_name"`
	ChainID   int64  `json:"chain_id"`
	Steps     int    `json:"onboarding_steps"`
	Pools     int    `json:"pools"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [profile.yaml...]",
		Short: "Validate agent profiles",
		Long: `Validate agent profile YAML files without opening a database.

Each file is decoded strictly (unknown keys are errors) and checked the
way the workflow will use it. With no arguments the --config profile is
validated.

Examples:
  agentflow validate ./agents/clmm.yaml ./agents/gmx.yaml
  agentflow validate --config ./agent.yaml --format json`,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, files []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if len(files) == 0 {
		if opts.Config == "" {
			return outputValidateError(formatter, ErrCodeProfile, "no profile given: pass a file or set --config", nil)
		}
		files = []string{opts.Config}
	}

	var result ValidationResult
	for _, file := range files {
		formatter.VerboseLog("Validating profile: %s", file)

		p, err := LoadProfile(file)
		if err != nil {
			result.Errors = append(result.Errors, ValidationIssue{File: file, Message: err.Error()})
			continue
		}
		result.Profiles = append(result.Profiles, ProfileSummary{
			File:      file,
			AgentName: p.AgentName,
			ChainID:   p.ChainID,
			Steps:     len(onboarding.Steps(p.Variant)),
			Pools:     len(p.Pools),
		})
	}
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	for _, p := range result.Profiles {
		fmt.Fprintf(formatter.Writer, "✓ %s: %s on chain %d, %d onboarding step(s)\n", p.File, p.AgentName, p.ChainID, p.Steps)
	}
	fmt.Fprintln(formatter.Writer, "✓ All profiles valid")
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Usage errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every failed profile.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeProfile,
				Message: result.Errors[0].Message,
			},
		}
		if err := formatter.JSON(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range result.Errors {
		fmt.Fprintf(formatter.Writer, "%s\n", issue.File)
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", ErrCodeProfile, issue.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}
