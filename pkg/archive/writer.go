package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/peoplesgrocers/jsonarchive/pkg/diag"
	"github.com/peoplesgrocers/jsonarchive/pkg/diff"
	"github.com/peoplesgrocers/jsonarchive/pkg/event"
	"github.com/peoplesgrocers/jsonarchive/pkg/jsonval"
)

// Writer emits archive lines to an output file. It tracks how many
// observations it has written so periodic snapshots land on the configured
// interval.
type Writer struct {
	w                *bufio.Writer
	f                *os.File
	closed           bool
	observationCount int
	snapshotInterval int // 0 disables snapshots
}

// NewWriter creates (truncating) the output file.
func NewWriter(path string, snapshotInterval int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	return &Writer{w: bufio.NewWriter(f), f: f, snapshotInterval: snapshotInterval}, nil
}

// NewAppendWriter opens an existing archive for appending.
// currentObservationCount seeds the snapshot cadence with what the file
// already holds.
func NewAppendWriter(path string, snapshotInterval, currentObservationCount int) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open archive for append: %w", err)
	}
	return &Writer{
		w:                bufio.NewWriter(f),
		f:                f,
		snapshotInterval: snapshotInterval,
		observationCount: currentObservationCount,
	}, nil
}

// WriteHeader writes the header line. It must be the first write on a fresh
// archive.
func (w *Writer) WriteHeader(h event.Header) error {
	b, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	return w.writeLine(b)
}

// WriteComment writes a "# ..." line. Comments are for humans; readers skip
// them.
func (w *Writer) WriteComment(comment string) error {
	_, err := fmt.Fprintf(w.w, "# %s\n", comment)
	if err != nil {
		return fmt.Errorf("write comment: %w", err)
	}
	return nil
}

// WriteObservation serializes the observe line followed by its child events.
func (w *Writer) WriteObservation(obs *event.Observation) error {
	for _, ev := range obs.ToEvents() {
		b, err := event.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode %s event: %w", ev.Tag(), err)
		}
		if err := w.writeLine(b); err != nil {
			return err
		}
	}
	w.observationCount++
	return nil
}

// WriteSnapshot writes a full-state checkpoint with a fresh snapshot ID.
func (w *Writer) WriteSnapshot(state any) error {
	b, err := event.Marshal(event.Snapshot{
		ObservationID: "snapshot-" + uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Object:        state,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return w.writeLine(b)
}

// ShouldSnapshot reports whether the observation count has reached the next
// snapshot interval.
func (w *Writer) ShouldSnapshot() bool {
	return w.snapshotInterval > 0 &&
		w.observationCount > 0 &&
		w.observationCount%w.snapshotInterval == 0
}

// Flush pushes buffered lines to the file without closing it. Long-running
// writers call it after each observation so a killed process loses nothing.
func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}
	return nil
}

// Close flushes and closes the output file. It is safe to call twice.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("flush archive: %w", err)
	}
	return w.f.Close()
}

func (w *Writer) writeLine(b []byte) error {
	if _, err := w.w.Write(b); err != nil {
		return fmt.Errorf("write archive line: %w", err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write archive line: %w", err)
	}
	return nil
}

// Builder turns a sequence of full document states into observations. The
// first state becomes the header's initial state; each later state is diffed
// against its predecessor.
type Builder struct {
	initial          any
	hasInitial       bool
	current          any
	source           string
	snapshotInterval int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithSource records where the observed states come from.
func WithSource(source string) BuilderOption {
	return func(b *Builder) { b.source = source }
}

// WithSnapshotInterval enables a snapshot after every n observations.
func WithSnapshotInterval(n int) BuilderOption {
	return func(b *Builder) { b.snapshotInterval = n }
}

// NewBuilder returns an empty builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddState feeds the next observed document state. The first call seeds the
// initial state and returns nil; later calls return the observation holding
// the diff against the previous state (possibly with zero events).
func (b *Builder) AddState(state any) *event.Observation {
	if !b.hasInitial {
		b.initial = jsonval.Clone(state)
		b.current = state
		b.hasInitial = true
		return nil
	}
	obsID := "obs-" + uuid.NewString()
	obs := event.NewObservation(obsID, time.Now().UTC())
	for _, ev := range diff.Diff(b.current, state, "", obsID) {
		obs.Append(ev)
	}
	b.current = state
	return obs
}

// Header returns the archive header for the states seen so far.
func (b *Builder) Header() event.Header {
	return event.NewHeader(b.initial, b.source)
}

// Initial returns the initial state, if one has been seeded.
func (b *Builder) Initial() (any, bool) {
	return b.initial, b.hasInitial
}

// DefaultOutputFilename derives the archive filename for an input document:
// x.json becomes x.json.archive, x.ext becomes x.ext.json.archive, a bare
// name gets .json.archive appended. A name already ending in .json.archive
// passes through.
func DefaultOutputFilename(input string) string {
	if strings.HasSuffix(filepath.Base(input), ".json.archive") {
		return input
	}
	if strings.HasSuffix(input, ".json") {
		return input + ".archive"
	}
	return input + ".json.archive"
}

// CreateFromFiles builds a fresh archive from a sequence of JSON document
// files. The first file becomes the initial state; each later file becomes
// one observation.
func CreateFromFiles(ctx context.Context, inputs []string, output, source string, snapshotInterval int) error {
	tr := otel.Tracer("archive/writer")
	_, span := tr.Start(ctx, "CreateFromFiles", trace.WithAttributes(
		attribute.Int("archive.inputs", len(inputs)),
		attribute.String("archive.output", output),
	))
	defer span.End()

	if len(inputs) == 0 {
		return fmt.Errorf("no input files")
	}
	builder := NewBuilder(WithSource(source), WithSnapshotInterval(snapshotInterval))

	first, err := readJSONFile(inputs[0])
	if err != nil {
		return err
	}
	builder.AddState(first)

	w, err := NewWriter(output, snapshotInterval)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.WriteHeader(builder.Header()); err != nil {
		return err
	}
	for _, input := range inputs[1:] {
		if err := w.WriteComment("Processing file: " + input); err != nil {
			return err
		}
		state, err := readJSONFile(input)
		if err != nil {
			return err
		}
		obs := builder.AddState(state)
		if obs == nil {
			continue
		}
		if err := w.WriteObservation(obs); err != nil {
			return err
		}
		if w.ShouldSnapshot() {
			if err := w.WriteSnapshot(state); err != nil {
				return err
			}
		}
	}
	return w.Close()
}

// AppendToArchive replays an existing archive, then appends one observation
// per new input file. When output differs from the archive path the archive
// is copied first and the original left untouched. Diagnostics from the
// replay are returned alongside any I/O error; a corrupt archive refuses the
// append.
func AppendToArchive(ctx context.Context, archivePath string, newFiles []string, output, source string, snapshotInterval int) (*diag.Collector, error) {
	tr := otel.Tracer("archive/writer")
	ctx, span := tr.Start(ctx, "AppendToArchive", trace.WithAttributes(
		attribute.String("archive.file", archivePath),
		attribute.Int("archive.inputs", len(newFiles)),
	))
	defer span.End()

	reader := NewReader(archivePath, AppendSeek)
	result, err := reader.Read(ctx)
	if err != nil {
		return nil, err
	}
	if result.Diagnostics.HasFatal() {
		return result.Diagnostics, fmt.Errorf("existing archive contains fatal errors; refusing to append")
	}

	if output != archivePath {
		if err := copyFile(archivePath, output); err != nil {
			return result.Diagnostics, err
		}
	}

	w, err := NewAppendWriter(output, snapshotInterval, result.ObservationCount)
	if err != nil {
		return result.Diagnostics, err
	}
	defer w.Close()

	builder := NewBuilder(WithSource(source), WithSnapshotInterval(snapshotInterval))
	builder.AddState(result.FinalState)

	for _, input := range newFiles {
		if err := w.WriteComment("Processing file: " + input); err != nil {
			return result.Diagnostics, err
		}
		state, err := readJSONFile(input)
		if err != nil {
			return result.Diagnostics, err
		}
		obs := builder.AddState(state)
		if obs == nil {
			continue
		}
		if err := w.WriteObservation(obs); err != nil {
			return result.Diagnostics, err
		}
		if w.ShouldSnapshot() {
			if err := w.WriteSnapshot(state); err != nil {
				return result.Diagnostics, err
			}
		}
	}
	return result.Diagnostics, w.Close()
}

func readJSONFile(path string) (any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("parse %s as JSON: %w", path, err)
	}
	return v, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("copy archive: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("copy archive: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy archive: %w", err)
	}
	return out.Close()
}
