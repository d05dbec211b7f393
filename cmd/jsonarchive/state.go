package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/peoplesgrocers/jsonarchive/pkg/archive"
	"github.com/peoplesgrocers/jsonarchive/pkg/diag"
)

func newStateCmd() *cobra.Command {
	var (
		byID    string
		byIndex int
		asOf    string
		before  string
		after   string
		latest  bool
	)

	cmd := &cobra.Command{
		Use:   "state <archive>",
		Short: "Print the document state at a chosen observation",
		Long: `Prints the reconstructed JSON document at one point in the archive's
history. Choose the point with exactly one of --id, --index, --as-of,
--before, --after, or --latest; with no selector the latest state is
printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, err := parseSelector(cmd, byID, byIndex, asOf, before, after, latest)
			if err != nil {
				return err
			}

			idx, diags, err := archive.BuildIndex(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if diags != nil && diags.HasFatal() {
				printDiagnostics(diags.Items())
				return failOnFatal(diags)
			}

			entry, d := selector(idx)
			if d != nil {
				printDiagnostics([]*diag.Diagnostic{d})
				return fmt.Errorf("no matching observation")
			}

			b, err := json.MarshalIndent(entry.State, "", "  ")
			if err != nil {
				return fmt.Errorf("encode state: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}

	cmd.Flags().StringVar(&byID, "id", "", "select by observation ID")
	cmd.Flags().IntVar(&byIndex, "index", 0, "select by 0-based observation index (0 = initial state)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "most recent observation at or before this ISO-8601 time")
	cmd.Flags().StringVar(&before, "before", "", "most recent observation strictly before this ISO-8601 time")
	cmd.Flags().StringVar(&after, "after", "", "earliest observation strictly after this ISO-8601 time")
	cmd.Flags().BoolVar(&latest, "latest", false, "select the most recent observation (default)")
	return cmd
}

type entrySelector func(*archive.Index) (*archive.Entry, *diag.Diagnostic)

// parseSelector validates that exactly one access method was chosen, before
// any file I/O happens.
func parseSelector(cmd *cobra.Command, byID string, byIndex int, asOf, before, after string, latest bool) (entrySelector, error) {
	var selectors []entrySelector

	if cmd.Flags().Changed("id") {
		id := byID
		selectors = append(selectors, func(x *archive.Index) (*archive.Entry, *diag.Diagnostic) {
			return x.ByID(id)
		})
	}
	if cmd.Flags().Changed("index") {
		i := byIndex
		selectors = append(selectors, func(x *archive.Index) (*archive.Entry, *diag.Diagnostic) {
			return x.ByIndex(i)
		})
	}
	for _, tf := range []struct {
		name  string
		value string
		pick  func(*archive.Index, time.Time) (*archive.Entry, *diag.Diagnostic)
	}{
		{"as-of", asOf, (*archive.Index).AsOf},
		{"before", before, (*archive.Index).RightBefore},
		{"after", after, (*archive.Index).After},
	} {
		if !cmd.Flags().Changed(tf.name) {
			continue
		}
		ts, err := time.Parse(time.RFC3339, tf.value)
		if err != nil {
			return nil, fmt.Errorf(
				"couldn't parse the timestamp %q; use ISO-8601 format like 2025-01-15T10:05:00Z", tf.value)
		}
		pick := tf.pick
		selectors = append(selectors, func(x *archive.Index) (*archive.Entry, *diag.Diagnostic) {
			return pick(x, ts)
		})
	}
	if latest {
		selectors = append(selectors, (*archive.Index).Latest)
	}

	switch len(selectors) {
	case 0:
		return (*archive.Index).Latest, nil
	case 1:
		return selectors[0], nil
	default:
		return nil, fmt.Errorf(
			"specify only one access method (--id, --index, --as-of, --before, --after, or --latest)")
	}
}
