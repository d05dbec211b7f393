package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/peoplesgrocers/jsonarchive/pkg/archive"
)

type jsonObservation struct {
	Index     int    `json:"index"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Changes   int    `json:"changes"`
	JSONSize  int    `json:"json_size"`
}

type jsonInfoOutput struct {
	Archive           string            `json:"archive"`
	Created           string            `json:"created"`
	FileSize          int64             `json:"file_size"`
	SnapshotCount     int               `json:"snapshot_count"`
	Observations      []jsonObservation `json:"observations"`
	TotalJSONSize     int64             `json:"total_json_size"`
	EfficiencyPercent float64           `json:"efficiency_percent"`
}

func newInfoCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "info <archive>",
		Short: "Summarize an archive's observations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			idx, diags, err := archive.BuildIndex(cmd.Context(), file)
			if err != nil {
				return err
			}
			if diags != nil && diags.HasFatal() {
				printDiagnostics(diags.Items())
				return failOnFatal(diags)
			}

			var fileSize int64
			if st, err := os.Stat(file); err == nil {
				fileSize = st.Size()
			}
			var totalJSON int64
			for _, e := range idx.Entries {
				totalJSON += int64(e.JSONSize)
			}
			if n := len(idx.Entries); n > 1 {
				totalJSON += int64(n - 1) // newline separators in the JSON Lines comparison
			}
			efficiency := 0.0
			if totalJSON > 0 {
				efficiency = float64(fileSize) / float64(totalJSON) * 100.0
			}

			if outputFormat == "json" {
				return printInfoJSON(cmd, file, idx, fileSize, totalJSON, efficiency)
			}
			printInfoTable(cmd, file, idx, fileSize, totalJSON, efficiency)
			return nil
		},
	}
	cmd.Flags().StringVar(&outputFormat, "output", "", "output format: json")
	return cmd
}

func printInfoJSON(cmd *cobra.Command, file string, idx *archive.Index, fileSize, totalJSON int64, efficiency float64) error {
	out := jsonInfoOutput{
		Archive:           file,
		Created:           idx.Created.Format("2006-01-02T15:04:05Z07:00"),
		FileSize:          fileSize,
		SnapshotCount:     idx.SnapshotCount,
		Observations:      []jsonObservation{},
		TotalJSONSize:     totalJSON,
		EfficiencyPercent: efficiency,
	}
	for _, e := range idx.Entries {
		out.Observations = append(out.Observations, jsonObservation{
			Index:     e.Index,
			ID:        e.ID,
			Timestamp: e.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			Changes:   e.ChangeCount,
			JSONSize:  e.JSONSize,
		})
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

var (
	infoHeaderStyle = lipgloss.NewStyle().Bold(true)
	infoDimStyle    = lipgloss.NewStyle().Faint(true)
)

func printInfoTable(cmd *cobra.Command, file string, idx *archive.Index, fileSize, totalJSON int64, efficiency float64) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Archive: %s\n", file)
	if len(idx.Entries) == 0 {
		fmt.Fprintln(w, "No observations found")
		return
	}

	first := idx.Entries[0].Timestamp
	last := idx.Entries[len(idx.Entries)-1].Timestamp
	fmt.Fprintf(w, "Created: %s\n\n", formatInfoTime(first))
	if len(idx.Entries) == 1 {
		fmt.Fprintf(w, "1 observation on %s\n\n", formatInfoTime(first))
	} else {
		fmt.Fprintf(w, "%d observations from %s to %s\n\n",
			len(idx.Entries), formatInfoTime(first), formatInfoTime(last))
	}

	fmt.Fprintln(w, infoHeaderStyle.Render(
		fmt.Sprintf("  %2s  %-32s  %-25s  %7s  %9s", "#", "Observation ID", "Date & Time", "Changes", "JSON Size")))
	fmt.Fprintln(w, infoDimStyle.Render(strings.Repeat("─", 88)))

	for _, e := range idx.Entries {
		id := e.ID
		changes := fmt.Sprintf("%d", e.ChangeCount)
		if e.Index == 0 {
			id = "(initial)"
			changes = "-"
		} else if len(id) > 20 {
			id = id[:20] + "..."
		}
		fmt.Fprintf(w, "  %2d  %-32s  %-25s  %7s  %9s\n",
			e.Index, id, formatInfoTime(e.Timestamp), changes, formatSize(int64(e.JSONSize)))
	}

	comparison := fmt.Sprintf("%.1f%% smaller", 100.0-efficiency)
	if efficiency >= 100.0 {
		comparison = fmt.Sprintf("%.1f%% larger", efficiency-100.0)
	}
	fmt.Fprintf(w, "\nArchive size: %s (%d snapshots, %s than JSON Lines)\n",
		formatSize(fileSize), idx.SnapshotCount, comparison)
	fmt.Fprintf(w, "Data size: %s\n", formatSize(totalJSON))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "To get the JSON value at a specific observation:")
	fmt.Fprintf(w, "  jsonarchive state --index <#> %s\n", file)
	fmt.Fprintf(w, "  jsonarchive state --id <observation-id> %s\n", file)
}

func formatInfoTime(t time.Time) string {
	return t.Format("Mon 15:04:05 02-Jan-2006")
}

func formatSize(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d bytes", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024.0)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024.0*1024.0))
	}
}
