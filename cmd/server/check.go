package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/liamcoop/rulevalidator/rules"
)

// errValidationFailed makes `check` exit non-zero when the rule does not hold.
var errValidationFailed = errors.New("validation failed")

// CheckOptions holds the flags of the check command.
type CheckOptions struct {
	Field             string
	Condition         string
	Value             string
	Data              string
	LegacyComparisons bool
}

// NewCheckCommand creates the check command, which evaluates one inline
// rule offline and prints the same envelope the HTTP API returns.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate one rule against a JSON payload",
		Long: `Evaluate one rule against a JSON payload without starting the server.

The payload is read from --data, or from stdin when --data is empty or "-".
--value is parsed as JSON when it is a number or a quoted string and used
verbatim otherwise, so --value 30 is a number and --value '"30"' a string.`,
		Example:       `  rulevalidator check --field missions --condition gte --value 30 --data '{"missions":45}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Field, "field", "", "field path, at most two segments (required)")
	cmd.Flags().StringVar(&opts.Condition, "condition", "", fmt.Sprintf("one of %v (required)", rules.Conditions()))
	cmd.Flags().StringVar(&opts.Value, "value", "", "condition value (required)")
	cmd.Flags().StringVar(&opts.Data, "data", "", "JSON payload; stdin when empty or -")
	cmd.Flags().BoolVar(&opts.LegacyComparisons, "legacy-comparisons", false, "use the legacy loose comparison policy")
	cmd.MarkFlagRequired("field")
	cmd.MarkFlagRequired("condition")
	cmd.MarkFlagRequired("value")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *CheckOptions) error {
	raw := opts.Data
	if raw == "" || raw == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read payload: %w", err)
		}
		raw = string(b)
	}

	// The CLI goes through the same request checks as the HTTP API.
	body := map[string]any{
		"rule": map[string]any{
			"field":           opts.Field,
			"condition":       opts.Condition,
			"condition_value": parseFlagValue(opts.Value),
		},
	}
	if strings.TrimSpace(raw) != "" {
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return writeCheck(cmd.OutOrStdout(), Envelope{Message: msgInvalidJSON, Status: statusError}, err)
		}
		body["data"] = data
	}

	spec, data, err := parseValidateRequest(body)
	if err != nil {
		return writeCheck(cmd.OutOrStdout(), Envelope{Message: err.Error(), Status: statusError}, err)
	}

	result, err := rules.Validate(data, spec, rules.Options{LegacyComparisons: opts.LegacyComparisons})
	if err != nil {
		return writeCheck(cmd.OutOrStdout(), Envelope{Message: err.Error(), Status: statusError}, err)
	}

	_, env := validationEnvelope(spec, result)
	if !result.Result {
		return writeCheck(cmd.OutOrStdout(), env, errValidationFailed)
	}
	return writeCheck(cmd.OutOrStdout(), env, nil)
}

func parseFlagValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		switch v.(type) {
		case float64, string:
			return v
		}
	}
	return s
}

func writeCheck(w io.Writer, env Envelope, result error) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return err
	}
	return result
}
