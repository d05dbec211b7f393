package archive

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/peoplesgrocers/jsonarchive/pkg/diag"
	"github.com/peoplesgrocers/jsonarchive/pkg/event"
	"github.com/peoplesgrocers/jsonarchive/pkg/jsonval"
)

// Entry is one point-in-time view of the document: the state after a whole
// observation (or snapshot) has been applied. Entry 0 is the initial state
// from the header, with the pseudo-ID "initial".
type Entry struct {
	Index       int
	ID          string
	Timestamp   time.Time
	State       any
	ChangeCount int
	JSONSize    int
}

// Index holds the per-observation history of an archive, for point-in-time
// queries and the info listing.
type Index struct {
	Created       time.Time
	Entries       []Entry
	SnapshotCount int
}

// BuildIndex replays the archive once and records the document state at every
// observation boundary. It reads in AppendSeek mode: history inspection
// should work even on archives a strict validator would reject.
func BuildIndex(ctx context.Context, filename string) (*Index, *diag.Collector, error) {
	tr := otel.Tracer("archive/index")
	_, span := tr.Start(ctx, "BuildIndex", trace.WithAttributes(
		attribute.String("archive.file", filename),
	))
	defer span.End()

	scanner, err := NewReader(filename, AppendSeek).Events()
	if err != nil {
		return nil, nil, err
	}
	defer scanner.Close()
	if scanner.Diagnostics.HasFatal() {
		return nil, scanner.Diagnostics, nil
	}

	state := jsonval.Clone(scanner.Header.Initial)
	idx := &Index{Created: scanner.Header.Created}
	idx.Entries = append(idx.Entries, Entry{
		Index:     0,
		ID:        "initial",
		Timestamp: scanner.Header.Created,
		State:     jsonval.Clone(state),
		JSONSize:  len(jsonval.Canonical(state)),
	})

	refreshLast := func() {
		last := &idx.Entries[len(idx.Entries)-1]
		if last.ID == "initial" {
			return
		}
		last.State = jsonval.Clone(state)
		last.JSONSize = len(jsonval.Canonical(state))
	}

	for {
		ev, ok := scanner.Next()
		if !ok {
			break
		}
		switch e := ev.(type) {
		case event.Observe:
			idx.Entries = append(idx.Entries, Entry{
				Index:       len(idx.Entries),
				ID:          e.ObservationID,
				Timestamp:   e.Timestamp,
				State:       jsonval.Clone(state),
				ChangeCount: e.ChangeCount,
				JSONSize:    len(jsonval.Canonical(state)),
			})
		case event.Add:
			ApplyAdd(&state, e.Path, e.Value)
			refreshLast()
		case event.Change:
			ApplyChange(&state, e.Path, e.NewValue)
			refreshLast()
		case event.Remove:
			ApplyRemove(&state, e.Path)
			refreshLast()
		case event.Move:
			ApplyMove(&state, e.Path, e.Moves)
			refreshLast()
		case event.Snapshot:
			state = jsonval.Clone(e.Object)
			idx.SnapshotCount++
			refreshLast()
		}
	}
	span.SetAttributes(attribute.Int("archive.observations", len(idx.Entries)))
	return idx, scanner.Diagnostics, nil
}

// ByID returns the entry for an observation ID.
func (x *Index) ByID(id string) (*Entry, *diag.Diagnostic) {
	for i := range x.Entries {
		if x.Entries[i].ID == id {
			return &x.Entries[i], nil
		}
	}
	return nil, diag.New(diag.Fatal, diag.NonExistentObservationId,
		fmt.Sprintf("I couldn't find an observation with ID '%s'", id)).
		WithAdvice("Use the info command to see available observation IDs")
}

// ByIndex returns the entry at a 0-based position; 0 is the initial state.
func (x *Index) ByIndex(i int) (*Entry, *diag.Diagnostic) {
	if i < 0 || i >= len(x.Entries) {
		return nil, diag.New(diag.Fatal, diag.ArrayIndexOutOfBounds,
			fmt.Sprintf("Index %d is out of bounds. The archive has %d observations (0-%d)",
				i, len(x.Entries), len(x.Entries)-1)).
			WithAdvice("Use the info command to see available observation indices")
	}
	return &x.Entries[i], nil
}

// AsOf returns the most recent entry whose timestamp is at or before t.
func (x *Index) AsOf(t time.Time) (*Entry, *diag.Diagnostic) {
	e := x.pickLatest(func(ts time.Time) bool { return !ts.After(t) })
	if e == nil {
		return nil, diag.New(diag.Fatal, diag.PathNotFound,
			fmt.Sprintf("No observations found as of %s", t.UTC().Format(time.RFC3339))).
			WithAdvice("Try using --after to find the first observation after this time")
	}
	return e, nil
}

// RightBefore returns the most recent entry strictly before t.
func (x *Index) RightBefore(t time.Time) (*Entry, *diag.Diagnostic) {
	e := x.pickLatest(func(ts time.Time) bool { return ts.Before(t) })
	if e == nil {
		return nil, diag.New(diag.Fatal, diag.PathNotFound,
			fmt.Sprintf("No observations found before %s", t.UTC().Format(time.RFC3339))).
			WithAdvice("Try using --as-of to include observations at exactly this time")
	}
	return e, nil
}

// After returns the earliest entry strictly after t.
func (x *Index) After(t time.Time) (*Entry, *diag.Diagnostic) {
	var best *Entry
	for i := range x.Entries {
		e := &x.Entries[i]
		if !e.Timestamp.After(t) {
			continue
		}
		if best == nil || e.Timestamp.Before(best.Timestamp) {
			best = e
		}
	}
	if best == nil {
		return nil, diag.New(diag.Fatal, diag.PathNotFound,
			fmt.Sprintf("No observations found after %s", t.UTC().Format(time.RFC3339))).
			WithAdvice("Try using --as-of to find the most recent observation before or at this time")
	}
	return best, nil
}

// Latest returns the entry with the greatest timestamp.
func (x *Index) Latest() (*Entry, *diag.Diagnostic) {
	e := x.pickLatest(func(time.Time) bool { return true })
	if e == nil {
		return nil, diag.New(diag.Fatal, diag.EmptyFile,
			"No observations found in the archive")
	}
	return e, nil
}

func (x *Index) pickLatest(accept func(time.Time) bool) *Entry {
	var best *Entry
	for i := range x.Entries {
		e := &x.Entries[i]
		if !accept(e.Timestamp) {
			continue
		}
		if best == nil || !e.Timestamp.Before(best.Timestamp) {
			best = e
		}
	}
	return best
}
