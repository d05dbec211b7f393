package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/peoplesgrocers/jsonarchive/pkg/archive"
	"github.com/peoplesgrocers/jsonarchive/pkg/event"
	"github.com/peoplesgrocers/jsonarchive/pkg/jsonval"
)

func newWatchCmd() *cobra.Command {
	var (
		output   string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <file.json>",
		Short: "Record an observation every time a JSON file changes",
		Long: `Watches a JSON document and appends one observation to the archive for
every write that parses as JSON and differs from the last recorded state.
Editors often fire several events per save, so changes are debounced.
Interrupt with Ctrl-C to stop; the archive is flushed after every
observation, so stopping never loses recorded history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			if output == "" {
				output = archive.DefaultOutputFilename(target)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, target, output, debounce)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "archive file to append to (default derived from the input)")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before a change is recorded")
	return cmd
}

func runWatch(ctx context.Context, target, output string, debounce time.Duration) error {
	state, err := readDocument(target)
	if err != nil {
		return err
	}

	// Seed or reopen the archive.
	var w *archive.Writer
	builder := archive.NewBuilder(archive.WithSource(target), archive.WithSnapshotInterval(flagSnapshotInterval))
	if _, statErr := os.Stat(output); statErr == nil {
		result, err := archive.NewReader(output, archive.AppendSeek).Read(ctx)
		if err != nil {
			return err
		}
		if result.Diagnostics.HasFatal() {
			printDiagnostics(result.Diagnostics.Items())
			return fmt.Errorf("existing archive contains fatal errors")
		}
		builder.AddState(result.FinalState)
		w, err = archive.NewAppendWriter(output, flagSnapshotInterval, result.ObservationCount)
		if err != nil {
			return err
		}
	} else {
		builder.AddState(state)
		w, err = archive.NewWriter(output, flagSnapshotInterval)
		if err != nil {
			return err
		}
		if err := w.WriteHeader(event.NewHeader(state, target)); err != nil {
			w.Close()
			return err
		}
	}
	defer w.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Close()
	// Watch the directory: editors that replace the file via rename drop
	// a direct file watch.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", target, err)
	}

	slog.Info("watching", "file", target, "archive", output)

	var timer *time.Timer
	var timerC <-chan time.Time
	targetBase := filepath.Base(target)

	record := func() {
		next, err := readDocument(target)
		if err != nil {
			slog.Warn("skipping unreadable state", "file", target, "err", err)
			return
		}
		obs := builder.AddState(next)
		if obs == nil || len(obs.Events) == 0 {
			slog.Debug("no changes", "file", target)
			return
		}
		if err := w.WriteObservation(obs); err != nil {
			slog.Error("write observation", "err", err)
			return
		}
		if w.ShouldSnapshot() {
			if err := w.WriteSnapshot(next); err != nil {
				slog.Error("write snapshot", "err", err)
			}
		}
		if err := w.Flush(); err != nil {
			slog.Error("flush archive", "err", err)
			return
		}
		slog.Info("recorded observation", "id", obs.ID, "changes", len(obs.Events))
	}

	for {
		select {
		case <-ctx.Done():
			return w.Close()
		case ev, ok := <-watcher.Events:
			if !ok {
				return w.Close()
			}
			if filepath.Base(ev.Name) != targetBase {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}
		case <-timerC:
			record()
		case err, ok := <-watcher.Errors:
			if !ok {
				return w.Close()
			}
			slog.Warn("watch error", "err", err)
		}
	}
}

func readDocument(path string) (any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("parse %s as JSON: %w", path, err)
	}
	return jsonval.Clone(v), nil
}
