// Package archive reads and writes JSON archive files: an append-only,
// line-oriented log of observations about a JSON document. The first line is
// a header object carrying the initial state; every following line is a
// comment, a blank, or one positional-array event. Reading replays the event
// log to reconstruct the document while collecting diagnostics about
// everything questionable it passes on the way.
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/peoplesgrocers/jsonarchive/pkg/diag"
	"github.com/peoplesgrocers/jsonarchive/pkg/event"
	"github.com/peoplesgrocers/jsonarchive/pkg/jsonval"
)

// Mode selects how strictly a read validates the archive.
type Mode int

const (
	// FullValidation verifies observation back-references, failed removes,
	// and snapshot consistency as fatal findings. Use it for audit-grade
	// replay.
	FullValidation Mode = iota

	// AppendSeek reads just well enough to recover the final state for
	// appending: unknown observation references are ignored and remove or
	// snapshot disagreements degrade to warnings.
	AppendSeek
)

// Reader replays archive files in a fixed validation mode.
type Reader struct {
	mode     Mode
	filename string
}

// NewReader returns a reader for the named archive file.
func NewReader(filename string, mode Mode) *Reader {
	return &Reader{mode: mode, filename: filename}
}

// ReadResult is the outcome of a full replay.
type ReadResult struct {
	Header           event.Header
	FinalState       any
	Diagnostics      *diag.Collector
	ObservationCount int
}

// Scanner streams events out of one archive file. Diagnostics accumulate on
// the embedded collector as lines are consumed; a fatal header problem leaves
// the scanner empty rather than erroring.
type Scanner struct {
	r        *bufio.Reader
	closer   func() error
	filename string
	line     int
	done     bool

	Header      event.Header
	Diagnostics *diag.Collector
}

// Events opens the archive and returns a streaming scanner positioned after
// the header. The caller owns Close. I/O failures return an error; content
// problems surface as diagnostics on the scanner.
func (r *Reader) Events() (*Scanner, error) {
	f, err := os.Open(r.filename)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	plain, closeStream, err := openDecompressed(r.filename, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s := &Scanner{
		r:        bufio.NewReader(plain),
		filename: r.filename,
		closer: func() error {
			cerr := closeStream()
			if err := f.Close(); err != nil {
				return err
			}
			return cerr
		},
		Diagnostics: diag.NewCollector(),
	}
	s.readHeader()
	return s, nil
}

// Close releases the underlying file.
func (s *Scanner) Close() error { return s.closer() }

// Line returns the 1-based line number of the most recently returned event.
func (s *Scanner) Line() int { return s.line }

func (s *Scanner) readHeader() {
	line, _, ok := s.nextLine()
	if !ok {
		if s.Diagnostics.Len() == 0 {
			s.Diagnostics.Add(diag.New(diag.Fatal, diag.EmptyFile,
				"I found an empty file, but I need at least a header line.").
				WithLocation(s.filename, 1).
				WithAdvice("See the file format specification for header structure."))
		}
		s.done = true
		return
	}
	header, ok := parseHeader(line, s.filename, s.line, s.Diagnostics)
	if !ok {
		s.done = true
		return
	}
	s.Header = header
}

// nextLine reads one physical line without its newline. The second return is
// true when the file ended on this line without a trailing newline; the third
// is false at end of input.
func (s *Scanner) nextLine() (string, bool, bool) {
	if s.done {
		return "", false, false
	}
	line, err := s.r.ReadString('\n')
	if err != nil && err != io.EOF {
		s.done = true
		return "", false, false
	}
	if line == "" {
		s.done = true
		return "", false, false
	}
	s.line++
	if !utf8.ValidString(line) {
		s.done = true
		s.Diagnostics.Add(diag.New(diag.Fatal, diag.InvalidUtf8,
			fmt.Sprintf("I found invalid UTF-8 bytes at line %d.", s.line)).
			WithLocation(s.filename, s.line).
			WithAdvice("The JSON Archive format requires UTF-8 encoding. Make sure the file "+
				"was saved with UTF-8 encoding, not Latin-1, Windows-1252, or another encoding."))
		return "", false, false
	}
	atEOF := err == io.EOF
	if atEOF {
		s.done = true
	}
	return strings.TrimRight(line, "\r\n"), atEOF, true
}

// Next returns the next decoded event. It skips comments, blanks, and
// malformed lines (recording diagnostics for the latter) and returns false at
// end of input.
func (s *Scanner) Next() (event.Event, bool) {
	for {
		line, atEOF, ok := s.nextLine()
		if !ok {
			return nil, false
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		ev, ds := event.DecodeLine([]byte(trimmed))
		for _, d := range ds {
			if atEOF && ev == nil && d.Code == diag.InvalidEventJson {
				// Unparseable final line with no trailing newline: the
				// last write was probably cut off mid-value.
				d.Code = diag.TruncatedJson
				d.Description = "The file ends in the middle of a JSON value. The last write may have been interrupted."
				d.Advice = "Remove the truncated final line or restore it from the writer that produced it."
			}
			s.Diagnostics.Add(d.WithLocation(s.filename, s.line).
				WithSnippet(fmt.Sprintf("%d | %s", s.line, trimmed)))
		}
		if ev != nil {
			return ev, true
		}
	}
}

// Read replays the whole archive and returns the reconstructed final state
// together with every diagnostic encountered.
func (r *Reader) Read(ctx context.Context) (*ReadResult, error) {
	tr := otel.Tracer("archive/reader")
	_, span := tr.Start(ctx, "Reader.Read", trace.WithAttributes(
		attribute.String("archive.file", r.filename),
		attribute.Int("archive.mode", int(r.mode)),
	))
	defer span.End()

	scanner, err := r.Events()
	if err != nil {
		return nil, err
	}
	defer scanner.Close()

	result := &ReadResult{
		Header:      scanner.Header,
		Diagnostics: scanner.Diagnostics,
	}
	if scanner.Diagnostics.HasFatal() {
		span.SetAttributes(attribute.Int("archive.diagnostics", scanner.Diagnostics.Len()))
		return result, nil
	}

	state := jsonval.Clone(scanner.Header.Initial)
	seen := make(map[string]bool)
	var current *openObservation
	var lastObserved time.Time

	for {
		ev, ok := scanner.Next()
		if !ok {
			break
		}
		line := scanner.Line()

		switch e := ev.(type) {
		case event.Observe:
			r.closeObservation(current, scanner.Diagnostics)
			if seen[e.ObservationID] {
				scanner.Diagnostics.Add(diag.New(diag.Warning, diag.DuplicateObservationId,
					fmt.Sprintf("I found a duplicate observation ID: '%s'", e.ObservationID)).
					WithLocation(r.filename, line).
					WithAdvice("Each observation ID should be unique within the archive. "+
						"Consider using UUIDs or timestamps to ensure uniqueness."))
			}
			seen[e.ObservationID] = true
			current = &openObservation{id: e.ObservationID, line: line, declared: e.ChangeCount}
			lastObserved = e.Timestamp
			result.ObservationCount++

		case event.Add:
			if current != nil {
				current.applied++
			}
			if d := r.checkReference(e.ObservationID, seen, line); d != nil {
				scanner.Diagnostics.Add(d)
				continue
			}
			if d := ApplyAdd(&state, e.Path, e.Value); d != nil {
				scanner.Diagnostics.Add(d.WithLocation(r.filename, line))
			}

		case event.Change:
			if current != nil {
				current.applied++
			}
			if d := r.checkReference(e.ObservationID, seen, line); d != nil {
				scanner.Diagnostics.Add(d)
				continue
			}
			if d := ApplyChange(&state, e.Path, e.NewValue); d != nil {
				scanner.Diagnostics.Add(d.WithLocation(r.filename, line))
			}

		case event.Remove:
			if current != nil {
				current.applied++
			}
			if d := r.checkReference(e.ObservationID, seen, line); d != nil {
				scanner.Diagnostics.Add(d)
				continue
			}
			if d := ApplyRemove(&state, e.Path); d != nil {
				if r.mode == AppendSeek {
					// A remove of something already gone does not change
					// the recovered state.
					d.Level = diag.Warning
				}
				scanner.Diagnostics.Add(d.WithLocation(r.filename, line))
			}

		case event.Move:
			if current != nil {
				current.applied++
			}
			if d := r.checkReference(e.ObservationID, seen, line); d != nil {
				scanner.Diagnostics.Add(d)
				continue
			}
			if d := ApplyMove(&state, e.Path, e.Moves); d != nil {
				scanner.Diagnostics.Add(d.WithLocation(r.filename, line))
			}

		case event.Snapshot:
			if !jsonval.Equal(state, e.Object) {
				level := diag.Fatal
				if r.mode == AppendSeek {
					level = diag.Warning
				}
				scanner.Diagnostics.Add(diag.New(level, diag.SnapshotStateMismatch,
					"I found a snapshot whose state doesn't match the replayed state up to this point.").
					WithLocation(r.filename, line).
					WithAdvice("This could indicate corruption or that events were applied incorrectly. "+
						"The snapshot state should exactly match the result of replaying all events "+
						"from the initial state."))
			}
			if !lastObserved.IsZero() && e.Timestamp.Before(lastObserved) {
				scanner.Diagnostics.Add(diag.New(diag.Warning, diag.SnapshotTimestampOrder,
					fmt.Sprintf("The snapshot timestamp %s is earlier than the preceding observation at %s.",
						e.Timestamp.Format(time.RFC3339), lastObserved.Format(time.RFC3339))).
					WithLocation(r.filename, line))
			}
			// The snapshot is authoritative either way.
			state = jsonval.Clone(e.Object)
		}
	}
	r.closeObservation(current, scanner.Diagnostics)

	result.FinalState = state
	span.SetAttributes(
		attribute.Int("archive.observations", result.ObservationCount),
		attribute.Int("archive.diagnostics", scanner.Diagnostics.Len()),
	)
	return result, nil
}

type openObservation struct {
	id       string
	line     int
	declared int
	applied  int
}

func (r *Reader) closeObservation(obs *openObservation, c *diag.Collector) {
	if obs == nil || obs.applied == obs.declared {
		return
	}
	c.Add(diag.New(diag.Warning, diag.ChangeCountMismatch,
		fmt.Sprintf("The observe event at line %d declared %d changes, but I found %d.",
			obs.line, obs.declared, obs.applied)).
		WithLocation(r.filename, obs.line).
		WithAdvice("Make sure the change_count in the observe event matches the number of "+
			"add/change/remove/move events that follow it."))
}

func (r *Reader) checkReference(obsID string, seen map[string]bool, line int) *diag.Diagnostic {
	if r.mode != FullValidation || seen[obsID] {
		return nil
	}
	return diag.New(diag.Fatal, diag.NonExistentObservationId,
		fmt.Sprintf("I found a reference to observation '%s', but I haven't seen an observe event with that ID yet.", obsID)).
		WithLocation(r.filename, line).
		WithAdvice("Each add/change/remove/move event must reference an observation ID from a preceding observe event.")
}

func parseHeader(line, filename string, lineNo int, c *diag.Collector) (event.Header, bool) {
	var raw any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		c.Add(diag.New(diag.Fatal, diag.MissingHeader,
			fmt.Sprintf("I couldn't parse the header as JSON: %v", err)).
			WithLocation(filename, lineNo).
			WithSnippet(fmt.Sprintf("%d | %s", lineNo, line)).
			WithAdvice("The first line must be a JSON object containing the archive header.\n"+
				"Required fields: type, version, created, initial"))
		return event.Header{}, false
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		c.Add(diag.New(diag.Fatal, diag.MissingHeader,
			fmt.Sprintf("I expected the header to be a JSON object, but found %s.", jsonval.TypeName(raw))).
			WithLocation(filename, lineNo).
			WithSnippet(fmt.Sprintf("%d | %s", lineNo, line)))
		return event.Header{}, false
	}

	headerAdvice := "The header must contain:\n" +
		"- type: \"" + event.FileType + "\"\n" +
		"- version: 1\n" +
		"- created: an ISO-8601 timestamp\n" +
		"- initial: the initial state object"

	fileType, ok := obj["type"].(string)
	if !ok {
		c.Add(diag.New(diag.Fatal, diag.MissingHeaderField,
			"The header is missing the required 'type' field.").
			WithLocation(filename, lineNo).WithAdvice(headerAdvice))
		return event.Header{}, false
	}
	versionNum, ok := obj["version"].(float64)
	if !ok {
		c.Add(diag.New(diag.Fatal, diag.MissingHeaderField,
			"The header is missing the required numeric 'version' field.").
			WithLocation(filename, lineNo).WithAdvice(headerAdvice))
		return event.Header{}, false
	}
	if int(versionNum) != event.Version {
		c.Add(diag.New(diag.Fatal, diag.UnsupportedVersion,
			fmt.Sprintf("I found version %v, but I only support version %d.", versionNum, event.Version)).
			WithLocation(filename, lineNo).
			WithAdvice("This archive was created with a newer or older version of the format. "+
				"You may need to upgrade your tools or convert the archive."))
		return event.Header{}, false
	}
	createdRaw, ok := obj["created"].(string)
	if !ok {
		c.Add(diag.New(diag.Fatal, diag.MissingHeaderField,
			"The header is missing the required 'created' timestamp field.").
			WithLocation(filename, lineNo).WithAdvice(headerAdvice))
		return event.Header{}, false
	}
	initial, ok := obj["initial"]
	if !ok {
		c.Add(diag.New(diag.Fatal, diag.InvalidInitialState,
			"The header is missing the required 'initial' state field.").
			WithLocation(filename, lineNo).WithAdvice(headerAdvice))
		return event.Header{}, false
	}

	created, err := time.Parse(time.RFC3339, createdRaw)
	if err != nil {
		// Not fatal: the timestamp is informational, the state machine
		// doesn't depend on it.
		c.Add(diag.New(diag.Warning, diag.InvalidTimestamp,
			fmt.Sprintf("I couldn't parse the header 'created' timestamp '%s' as ISO-8601.", createdRaw)).
			WithLocation(filename, lineNo))
	}

	h := event.Header{
		FileType: fileType,
		Version:  int(versionNum),
		Created:  created,
		Initial:  initial,
	}
	if src, ok := obj["source"].(string); ok {
		h.Source = src
	}
	if meta, ok := obj["metadata"]; ok {
		h.Metadata = meta
	}
	return h, true
}
