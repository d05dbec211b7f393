// Package event defines the archive header, the closed set of event variants,
// and the positional-array wire codec. Decoded lines become typed values so
// downstream logic is an exhaustive type switch instead of index arithmetic
// over raw arrays.
package event

import (
	"time"
)

// FileType is the magic value carried in the header's type field. It doubles
// as a file signature: the header serializes it as the first key, so archive
// detection works even when a build system renames the file to something
// like .tmp.
const FileType = "@peoplesgrocers/json-archive"

// Version is the only archive format version this implementation supports.
const Version = 1

// Header is the first line of every archive.
type Header struct {
	FileType string    `json:"type"`
	Version  int       `json:"version"`
	Created  time.Time `json:"created"`
	Source   string    `json:"source,omitempty"`
	Initial  any       `json:"initial"`
	Metadata any       `json:"metadata,omitempty"`
}

// NewHeader builds a version-1 header around an initial state.
func NewHeader(initial any, source string) Header {
	return Header{
		FileType: FileType,
		Version:  Version,
		Created:  time.Now().UTC(),
		Source:   source,
		Initial:  initial,
	}
}

// Event is one wire-encoded mutation or marker line. The implementations are
// exactly the six variants of the format; consumers type-switch over them.
type Event interface {
	// Tag returns the wire tag ("observe", "add", ...).
	Tag() string
}

// Observe marks the start of a logical change-set and declares how many
// mutating events follow it.
type Observe struct {
	ObservationID string
	Timestamp     time.Time
	ChangeCount   int
}

// Add sets a new key or index. The parent of Path must exist; an array index
// equal to the array length appends.
type Add struct {
	Path          string
	Value         any
	ObservationID string
}

// Change replaces the value at an existing path.
type Change struct {
	Path          string
	NewValue      any
	ObservationID string
}

// Remove deletes the value at an existing path.
type Remove struct {
	Path          string
	ObservationID string
}

// MovePair is one (from, to) reordering within a Move batch.
type MovePair struct {
	From int
	To   int
}

// Move reorders elements of the array at Path. One Move event carries every
// reordering detected in the array for one observation.
type Move struct {
	Path          string
	Moves         []MovePair
	ObservationID string
}

// Snapshot is a full-state checkpoint. On replay it is authoritative: the
// embedded object replaces the replayed state even when the two disagree.
type Snapshot struct {
	ObservationID string
	Timestamp     time.Time
	Object        any
}

func (Observe) Tag() string  { return "observe" }
func (Add) Tag() string      { return "add" }
func (Change) Tag() string   { return "change" }
func (Remove) Tag() string   { return "remove" }
func (Move) Tag() string     { return "move" }
func (Snapshot) Tag() string { return "snapshot" }

// Observation is the writer-side batch: one Observe line followed by its
// child events. It is discarded after serialization.
type Observation struct {
	ID        string
	Timestamp time.Time
	Events    []Event
}

// NewObservation starts an empty observation.
func NewObservation(id string, ts time.Time) *Observation {
	return &Observation{ID: id, Timestamp: ts}
}

// Append adds a child event.
func (o *Observation) Append(e Event) {
	o.Events = append(o.Events, e)
}

// ToEvents returns the Observe line (with change_count set to the number of
// children) followed by the children in order.
func (o *Observation) ToEvents() []Event {
	out := make([]Event, 0, len(o.Events)+1)
	out = append(out, Observe{
		ObservationID: o.ID,
		Timestamp:     o.Timestamp,
		ChangeCount:   len(o.Events),
	})
	return append(out, o.Events...)
}
