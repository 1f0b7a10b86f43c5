package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"qcflags/internal/errs"
)

// writeOutput renders value as json or yaml, or calls table for the default format.
// yaml goes through the json encoding so field names match the API.
func writeOutput(cmd *cobra.Command, value any, table func(w io.Writer) error) error {
	out := cmd.OutOrStdout()

	switch strings.ToLower(strings.TrimSpace(outputFormat)) {
	case "", "table":
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		if err := table(tw); err != nil {
			return errs.Wrap(err, "write table output")
		}
		return tw.Flush()
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(value); err != nil {
			return errs.Wrap(err, "write json output")
		}
		return nil
	case "yaml":
		raw, err := json.Marshal(value)
		if err != nil {
			return errs.Wrap(err, "encode output")
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return errs.Wrap(err, "decode output")
		}
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(generic); err != nil {
			return errs.Wrap(err, "write yaml output")
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unsupported output format %q", outputFormat)
	}
}

func formatFraction(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *v)
}

func formatMillis(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

// optionalInt64 returns nil when the flag was not set on the command line.
func optionalInt64(cmd *cobra.Command, name string) *int64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt64(name)
	return &v
}

func optionalString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func optionalBool(cmd *cobra.Command, name string) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetBool(name)
	return &v
}
