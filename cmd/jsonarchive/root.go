package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/peoplesgrocers/jsonarchive/pkg/archive"
	"github.com/peoplesgrocers/jsonarchive/pkg/diag"
	"github.com/peoplesgrocers/jsonarchive/pkg/otel"
)

var (
	flagVerbose bool
	flagTrace   bool

	flagOutput           string
	flagSource           string
	flagSnapshotInterval int

	cfg Config

	otelShutdown func(context.Context) error
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jsonarchive [files...]",
		Short: "Track JSON file changes over time in an append-only archive",
		Long: `jsonarchive records successive states of a JSON document as an
append-only event log. The first file seeds the archive; each further file
becomes one observation holding the diff against the previous state.

When the first argument is an existing archive, the remaining files are
appended to it instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCreate,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if flagVerbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			var err error
			cfg, err = loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("source") && cfg.Source != "" {
				flagSource = cfg.Source
			}
			if !cmd.Flags().Changed("snapshot-interval") && cfg.SnapshotInterval > 0 {
				flagSnapshotInterval = cfg.SnapshotInterval
			}

			otelShutdown, err = otel.Init(cmd.Context(), otel.Config{
				ServiceName: "jsonarchive",
				UseStdout:   flagTrace || cfg.Trace,
			})
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if otelShutdown != nil {
				return otelShutdown(cmd.Context())
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&flagTrace, "trace", false, "emit OpenTelemetry spans to stdout")

	root.Flags().StringVarP(&flagOutput, "output", "o", "", "archive file to write (default derived from the first input)")
	root.Flags().StringVar(&flagSource, "source", "", "source label recorded in the archive header")
	root.Flags().IntVar(&flagSnapshotInterval, "snapshot-interval", 0, "write a full snapshot after every N observations (0 disables)")

	root.AddCommand(newInfoCmd())
	root.AddCommand(newStateCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newExportCmd())
	return root
}

// runCreate implements the bare invocation: create an archive from state
// files, or append to one when the first argument already is an archive.
func runCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	first := args[0]

	isArchive, err := archive.IsArchive(first)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", first, err)
	}

	if isArchive {
		if len(args) < 2 {
			return fmt.Errorf("%s is an archive; pass at least one JSON state file to append", first)
		}
		output := flagOutput
		if output == "" {
			output = first
		}
		slog.Debug("appending to archive", "archive", first, "inputs", len(args)-1, "output", output)
		diags, err := archive.AppendToArchive(ctx, first, args[1:], output, flagSource, flagSnapshotInterval)
		if diags != nil {
			printDiagnostics(diags.Items())
		}
		if err != nil {
			return err
		}
		return failOnFatal(diags)
	}

	output := flagOutput
	if output == "" {
		output = archive.DefaultOutputFilename(first)
	}
	slog.Debug("creating archive", "inputs", len(args), "output", output)
	return archive.CreateFromFiles(ctx, args, output, flagSource, flagSnapshotInterval)
}

// printDiagnostics renders findings to stderr in the full report form.
func printDiagnostics(ds []*diag.Diagnostic) {
	for _, d := range ds {
		fmt.Fprintln(os.Stderr, d.String())
	}
}

func failOnFatal(c *diag.Collector) error {
	if c != nil && c.HasFatal() {
		return fmt.Errorf("archive contains fatal errors")
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
