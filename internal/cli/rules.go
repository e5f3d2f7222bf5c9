package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sluicedb/sluice/internal/gate"
)

// RuleReport holds rule validation results.
type RuleReport struct {
	Valid  bool        `json:"valid"`
	Rules  []RuleEntry `json:"rules,omitempty"`
	Errors []RuleIssue `json:"errors,omitempty"`
}

// RuleEntry is one validated rule in the report.
type RuleEntry struct {
	Type      string `json:"type"`
	DependsOn string `json:"depends_on,omitempty"`
}

// RuleIssue is one validation error in the report.
type RuleIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules <rules-dir>",
		Short: "Validate a directory of CUE rule files",
		Long: `Validate a directory of CUE rule files.

Loads every .cue file, checks the rules list against the rule set
constraints (unique types, counterparts declared, no self-dependency),
and prints the effective scan order.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runRules(opts *RootOptions, rulesDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, loadErrors := LoadRules(rulesDir, LoadModeCollectAll)

	// Directory-level failures (missing dir, no files, CUE build errors)
	if result == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return NewExitError(ExitCommandError, loadErr.Error())
		}
		_ = formatter.Error(ErrCodeGeneric, loadErrors[0].Error(), nil)
		return NewExitError(ExitCommandError, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, rulesDir)

	report := RuleReport{}
	for _, err := range loadErrors {
		report.Errors = append(report.Errors, toRuleIssue(err))
	}

	// Element errors aside, the set itself must hold together.
	if len(report.Errors) == 0 {
		if _, err := gate.NewRuleSet(result.Rules); err != nil {
			report.Errors = append(report.Errors, RuleIssue{Code: ErrCodeRuleSet, Message: err.Error()})
		}
	}

	if len(report.Errors) > 0 {
		return outputRuleErrors(formatter, report)
	}

	report.Valid = true
	for _, rule := range result.Rules {
		report.Rules = append(report.Rules, RuleEntry{
			Type:      string(rule.Type),
			DependsOn: string(rule.DependsOn),
		})
	}

	return outputRuleSuccess(formatter, report)
}

func toRuleIssue(err error) RuleIssue {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return RuleIssue{Code: loadErr.Code, Message: loadErr.Message}
	}
	return RuleIssue{Code: ErrCodeGeneric, Message: err.Error()}
}

func outputRuleSuccess(formatter *OutputFormatter, report RuleReport) error {
	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✓ %d rule(s) valid\n", len(report.Rules))
	for _, rule := range report.Rules {
		if rule.DependsOn != "" {
			fmt.Fprintf(&b, "  %s -> %s\n", rule.Type, rule.DependsOn)
		} else {
			fmt.Fprintf(&b, "  %s\n", rule.Type)
		}
	}
	fmt.Fprint(formatter.Writer, b.String())
	return nil
}

func outputRuleErrors(formatter *OutputFormatter, report RuleReport) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   report,
			Error: &CLIError{
				Code:    report.Errors[0].Code,
				Message: report.Errors[0].Message,
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("rule validation failed with %d error(s)", len(report.Errors)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Rule validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range report.Errors {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", issue.Code, issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("rule validation failed with %d error(s)", len(report.Errors)))
}
