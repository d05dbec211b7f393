// Package diag defines the structured findings the archive tooling reports
// instead of failing fast. A Diagnostic is pure data: severity, a stable code,
// a human description, and optional location/advice. Content problems are
// accumulated in a Collector so one pass over a file surfaces every
// independent issue; I/O failures stay on the ordinary error channel.
package diag

import (
	"fmt"
	"strings"
)

// Level is the severity of a diagnostic.
type Level int

const (
	Fatal Level = iota
	Warning
	Info
)

func (l Level) String() string {
	switch l {
	case Fatal:
		return "error"
	case Warning:
		return "warning"
	default:
		return "info"
	}
}

// Code identifies a diagnostic in the closed taxonomy. The numeric IDs are
// part of the tool's output contract; scripts grep for them.
type Code int

const (
	EmptyFile Code = iota
	MissingHeader
	InvalidUtf8
	TruncatedJson

	MissingHeaderField
	UnsupportedVersion
	InvalidTimestamp
	InvalidInitialState

	InvalidEventJson
	UnknownEventType
	WrongFieldCount
	WrongFieldType

	NonExistentObservationId
	DuplicateObservationId

	ChangeCountMismatch
	InvalidChangeCount

	InvalidPointerSyntax
	PathNotFound
	InvalidArrayIndex
	ArrayIndexOutOfBounds
	ParentPathNotFound

	TypeMismatch
	OldValueMismatch

	MoveOnNonArray
	MoveIndexOutOfBounds
	InvalidMoveIndex

	SnapshotStateMismatch
	SnapshotTimestampOrder
)

var codeIDs = map[Code]string{
	EmptyFile:     "E001",
	MissingHeader: "E002",
	InvalidUtf8:   "E003",
	TruncatedJson: "E004",

	MissingHeaderField:  "E010",
	UnsupportedVersion:  "E011",
	InvalidTimestamp:    "W012",
	InvalidInitialState: "E013",

	InvalidEventJson: "E020",
	UnknownEventType: "W021",
	WrongFieldCount:  "E022",
	WrongFieldType:   "E023",

	NonExistentObservationId: "E030",
	DuplicateObservationId:   "W031",

	ChangeCountMismatch: "W040",
	InvalidChangeCount:  "E041",

	InvalidPointerSyntax:  "E050",
	PathNotFound:          "E051",
	InvalidArrayIndex:     "E052",
	ArrayIndexOutOfBounds: "E053",
	ParentPathNotFound:    "E054",

	TypeMismatch:     "E060",
	OldValueMismatch: "W061",

	MoveOnNonArray:       "E070",
	MoveIndexOutOfBounds: "E071",
	InvalidMoveIndex:     "E072",

	SnapshotStateMismatch:  "W080",
	SnapshotTimestampOrder: "W081",
}

var codeTitles = map[Code]string{
	EmptyFile:     "Empty file",
	MissingHeader: "Missing header",
	InvalidUtf8:   "Invalid UTF-8 encoding",
	TruncatedJson: "Truncated JSON",

	MissingHeaderField:  "Missing required header field",
	UnsupportedVersion:  "Unsupported version",
	InvalidTimestamp:    "Invalid timestamp",
	InvalidInitialState: "Invalid initial state",

	InvalidEventJson: "Invalid event JSON",
	UnknownEventType: "Unknown event type",
	WrongFieldCount:  "Wrong field count",
	WrongFieldType:   "Wrong field type",

	NonExistentObservationId: "Non-existent observation ID",
	DuplicateObservationId:   "Duplicate observation ID",

	ChangeCountMismatch: "Change count mismatch",
	InvalidChangeCount:  "Invalid change count",

	InvalidPointerSyntax:  "Invalid JSON Pointer syntax",
	PathNotFound:          "Path not found",
	InvalidArrayIndex:     "Invalid array index",
	ArrayIndexOutOfBounds: "Array index out of bounds",
	ParentPathNotFound:    "Parent path not found",

	TypeMismatch:     "Type mismatch",
	OldValueMismatch: "Old value mismatch",

	MoveOnNonArray:       "Move operation on non-array",
	MoveIndexOutOfBounds: "Move index out of bounds",
	InvalidMoveIndex:     "Invalid move index",

	SnapshotStateMismatch:  "Snapshot state mismatch",
	SnapshotTimestampOrder: "Snapshot timestamp out of order",
}

// ID returns the stable short identifier, e.g. "E051".
func (c Code) ID() string { return codeIDs[c] }

// Title returns the one-line human title for the code.
func (c Code) Title() string { return codeTitles[c] }

// Diagnostic is one finding about archive content. It implements error so it
// can ride ordinary return values, but callers are expected to collect rather
// than branch on it.
type Diagnostic struct {
	Filename    string
	Line        int
	Column      int
	Level       Level
	Code        Code
	Description string
	Snippet     string
	Advice      string
}

// New constructs a diagnostic with no location attached yet.
func New(level Level, code Code, description string) *Diagnostic {
	return &Diagnostic{Level: level, Code: code, Description: description}
}

// WithLocation attaches the filename and 1-based line number.
func (d *Diagnostic) WithLocation(filename string, line int) *Diagnostic {
	d.Filename = filename
	d.Line = line
	return d
}

// WithColumn attaches a 1-based column.
func (d *Diagnostic) WithColumn(col int) *Diagnostic {
	d.Column = col
	return d
}

// WithSnippet attaches the offending source text.
func (d *Diagnostic) WithSnippet(snippet string) *Diagnostic {
	d.Snippet = snippet
	return d
}

// WithAdvice attaches remediation advice.
func (d *Diagnostic) WithAdvice(advice string) *Diagnostic {
	d.Advice = advice
	return d
}

// IsFatal reports whether the diagnostic is fatal.
func (d *Diagnostic) IsFatal() bool { return d.Level == Fatal }

// Error satisfies the error interface with the compact one-line form.
func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s %s: %s", d.Level, d.Code.ID(), d.Description)
}

// String renders the full multi-line report form.
func (d *Diagnostic) String() string {
	var b strings.Builder
	if d.Filename != "" && d.Line > 0 {
		if d.Column > 0 {
			fmt.Fprintf(&b, "%s:%d:%d - ", d.Filename, d.Line, d.Column)
		} else {
			fmt.Fprintf(&b, "%s:%d - ", d.Filename, d.Line)
		}
	}
	fmt.Fprintf(&b, "%s %s: %s\n\n%s\n", d.Level, d.Code.ID(), d.Code.Title(), d.Description)
	if d.Snippet != "" {
		fmt.Fprintf(&b, "\n%s\n", d.Snippet)
	}
	if d.Advice != "" {
		fmt.Fprintf(&b, "\n%s\n", d.Advice)
	}
	return b.String()
}

// Collector accumulates diagnostics in order of discovery.
type Collector struct {
	diags []*Diagnostic
}

// NewCollector returns an empty collector.
func NewCollector() *Collector { return &Collector{} }

// Add appends a diagnostic. Nil diagnostics are ignored so call sites can
// forward conditional results without branching.
func (c *Collector) Add(d *Diagnostic) {
	if d != nil {
		c.diags = append(c.diags, d)
	}
}

// AddAll appends every diagnostic in order.
func (c *Collector) AddAll(ds []*Diagnostic) {
	for _, d := range ds {
		c.Add(d)
	}
}

// HasFatal reports whether any collected diagnostic is fatal.
func (c *Collector) HasFatal() bool {
	for _, d := range c.diags {
		if d.IsFatal() {
			return true
		}
	}
	return false
}

// Items returns the collected diagnostics in discovery order.
func (c *Collector) Items() []*Diagnostic { return c.diags }

// Len returns the number of collected diagnostics.
func (c *Collector) Len() int { return len(c.diags) }
