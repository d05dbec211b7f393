package event

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/peoplesgrocers/jsonarchive/pkg/diag"
)

// Marshal encodes an event as its positional JSON array. Field order and
// arity are the wire contract: ["observe", id, ts, count],
// ["add", path, value, id], ["change", path, value, id],
// ["remove", path, id], ["move", path, [[from,to],...], id],
// ["snapshot", id, ts, object].
func Marshal(e Event) ([]byte, error) {
	var arr []any
	switch ev := e.(type) {
	case Observe:
		arr = []any{"observe", ev.ObservationID, encodeTime(ev.Timestamp), ev.ChangeCount}
	case Add:
		arr = []any{"add", ev.Path, ev.Value, ev.ObservationID}
	case Change:
		arr = []any{"change", ev.Path, ev.NewValue, ev.ObservationID}
	case Remove:
		arr = []any{"remove", ev.Path, ev.ObservationID}
	case Move:
		pairs := make([]any, len(ev.Moves))
		for i, m := range ev.Moves {
			pairs[i] = []any{m.From, m.To}
		}
		arr = []any{"move", ev.Path, pairs, ev.ObservationID}
	case Snapshot:
		arr = []any{"snapshot", ev.ObservationID, encodeTime(ev.Timestamp), ev.Object}
	default:
		return nil, fmt.Errorf("unknown event type %T", e)
	}
	return json.Marshal(arr)
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Decode interprets one raw positional array as an event, collecting
// diagnostics instead of failing. A malformed line yields a nil event plus
// one diagnostic; validation stops at the first bad field of the line. An
// unrecognized tag is a warning, not an error: the line is skippable without
// corrupting the rest of the file.
func Decode(elements []any) (Event, []*diag.Diagnostic) {
	if len(elements) == 0 {
		return nil, one(diag.Fatal, diag.WrongFieldCount,
			"I found an empty array, but events must have at least a string type field as first element.")
	}
	tag, ok := elements[0].(string)
	if !ok {
		return nil, one(diag.Fatal, diag.WrongFieldType,
			"I expected the first element of an event to be a string event type.")
	}

	switch tag {
	case "observe":
		if len(elements) != 4 {
			return nil, wrongCount("an observe", 4, len(elements))
		}
		id, ok := elements[1].(string)
		if !ok {
			return nil, one(diag.Fatal, diag.WrongFieldType, "I expected the observation ID to be a string.")
		}
		ts, ds := decodeTime(elements[2])
		if ds != nil {
			return nil, ds
		}
		count, ds := asChangeCount(elements[3])
		if ds != nil {
			return nil, ds
		}
		return Observe{ObservationID: id, Timestamp: ts, ChangeCount: count}, nil

	case "add":
		if len(elements) != 4 {
			return nil, wrongCount("an add", 4, len(elements))
		}
		path, ok := elements[1].(string)
		if !ok {
			return nil, one(diag.Fatal, diag.WrongFieldType, "I expected the path to be a string.")
		}
		id, ok := elements[3].(string)
		if !ok {
			return nil, one(diag.Fatal, diag.WrongFieldType, "I expected the observation ID to be a string.")
		}
		return Add{Path: path, Value: elements[2], ObservationID: id}, nil

	case "change":
		if len(elements) != 4 {
			return nil, wrongCount("a change", 4, len(elements))
		}
		path, ok := elements[1].(string)
		if !ok {
			return nil, one(diag.Fatal, diag.WrongFieldType, "I expected the path to be a string.")
		}
		id, ok := elements[3].(string)
		if !ok {
			return nil, one(diag.Fatal, diag.WrongFieldType, "I expected the observation ID to be a string.")
		}
		return Change{Path: path, NewValue: elements[2], ObservationID: id}, nil

	case "remove":
		if len(elements) != 3 {
			return nil, wrongCount("a remove", 3, len(elements))
		}
		path, ok := elements[1].(string)
		if !ok {
			return nil, one(diag.Fatal, diag.WrongFieldType, "I expected the path to be a string.")
		}
		id, ok := elements[2].(string)
		if !ok {
			return nil, one(diag.Fatal, diag.WrongFieldType, "I expected the observation ID to be a string.")
		}
		return Remove{Path: path, ObservationID: id}, nil

	case "move":
		if len(elements) != 4 {
			return nil, wrongCount("a move", 4, len(elements))
		}
		path, ok := elements[1].(string)
		if !ok {
			return nil, one(diag.Fatal, diag.WrongFieldType, "I expected the path to be a string.")
		}
		moves, ds := decodeMoves(elements[2])
		if ds != nil {
			return nil, ds
		}
		id, ok := elements[3].(string)
		if !ok {
			return nil, one(diag.Fatal, diag.WrongFieldType, "I expected the observation ID to be a string.")
		}
		return Move{Path: path, Moves: moves, ObservationID: id}, nil

	case "snapshot":
		if len(elements) != 4 {
			return nil, wrongCount("a snapshot", 4, len(elements))
		}
		id, ok := elements[1].(string)
		if !ok {
			return nil, one(diag.Fatal, diag.WrongFieldType, "I expected the observation ID to be a string.")
		}
		ts, ds := decodeTime(elements[2])
		if ds != nil {
			return nil, ds
		}
		return Snapshot{ObservationID: id, Timestamp: ts, Object: elements[3]}, nil

	default:
		return nil, []*diag.Diagnostic{diag.New(diag.Warning, diag.UnknownEventType,
			fmt.Sprintf("I found an unknown event type: '%s'", tag))}
	}
}

func one(level diag.Level, code diag.Code, msg string) []*diag.Diagnostic {
	return []*diag.Diagnostic{diag.New(level, code, msg)}
}

func wrongCount(article string, want, got int) []*diag.Diagnostic {
	return one(diag.Fatal, diag.WrongFieldCount,
		fmt.Sprintf("I expected %s event to have %d fields, but found %d.", article, want, got))
}

func decodeTime(v any) (time.Time, []*diag.Diagnostic) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, one(diag.Fatal, diag.WrongFieldType, "I expected the timestamp to be a string.")
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, one(diag.Fatal, diag.WrongFieldType,
			"I expected the timestamp to be a valid ISO-8601 datetime string.")
	}
	return ts, nil
}

// asMoveIndex distinguishes a wrong JSON type from a number that cannot be
// an index (negative or fractional).
func asMoveIndex(v any, which string) (int, []*diag.Diagnostic) {
	f, ok := v.(float64)
	if !ok {
		return 0, one(diag.Fatal, diag.WrongFieldType,
			fmt.Sprintf("I expected the '%s' index to be a number.", which))
	}
	if f < 0 || f != math.Trunc(f) {
		return 0, one(diag.Fatal, diag.InvalidMoveIndex,
			fmt.Sprintf("I expected the '%s' index to be a non-negative integer.", which))
	}
	return int(f), nil
}

// asChangeCount distinguishes a wrong JSON type from a number that cannot be
// a count (negative or fractional), mirroring the move-index split.
func asChangeCount(v any) (int, []*diag.Diagnostic) {
	f, ok := v.(float64)
	if !ok {
		return 0, one(diag.Fatal, diag.WrongFieldType, "I expected the change count to be a number.")
	}
	if f < 0 || f != math.Trunc(f) {
		return 0, one(diag.Fatal, diag.InvalidChangeCount, "I expected the change count to be a non-negative integer.")
	}
	return int(f), nil
}

func decodeMoves(v any) ([]MovePair, []*diag.Diagnostic) {
	arr, ok := v.([]any)
	if !ok {
		return nil, one(diag.Fatal, diag.WrongFieldType,
			"I expected the moves to be an array of [from, to] pairs.")
	}
	moves := make([]MovePair, 0, len(arr))
	for _, raw := range arr {
		pair, ok := raw.([]any)
		if !ok || len(pair) != 2 {
			return nil, one(diag.Fatal, diag.WrongFieldType,
				"I expected each move to be a [from, to] pair.")
		}
		from, d := asMoveIndex(pair[0], "from")
		if d != nil {
			return nil, d
		}
		to, d := asMoveIndex(pair[1], "to")
		if d != nil {
			return nil, d
		}
		moves = append(moves, MovePair{From: from, To: to})
	}
	return moves, nil
}

// DecodeLine parses one raw archive line. A line that is not valid JSON, or
// whose top-level value is not an array, yields InvalidEventJson; otherwise
// the array is handed to Decode.
func DecodeLine(line []byte) (Event, []*diag.Diagnostic) {
	var raw any
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, []*diag.Diagnostic{diag.New(diag.Fatal, diag.InvalidEventJson,
			fmt.Sprintf("I couldn't parse this line as JSON: %v", err)).WithAdvice(
			"Each line after the header must be either:\n" +
				"- A comment starting with #\n" +
				"- A valid JSON array representing an event\n\n" +
				"Check for missing commas, quotes, or brackets.")}
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, []*diag.Diagnostic{diag.New(diag.Fatal, diag.InvalidEventJson,
			"I expected this line to be a JSON array representing an event.")}
	}
	return Decode(arr)
}
