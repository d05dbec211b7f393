package diff

import (
	"encoding/json"
	"testing"

	"github.com/peoplesgrocers/jsonarchive/pkg/event"
	"github.com/peoplesgrocers/jsonarchive/pkg/jsonval"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestNoChanges(t *testing.T) {
	doc := decode(t, `{"a":1,"b":[1,2,{"c":true}]}`)
	if events := Diff(doc, jsonval.Clone(doc), "", "obs-1"); len(events) != 0 {
		t.Fatalf("expected no events, got %v", events)
	}
}

func TestScalarChange(t *testing.T) {
	events := Diff(decode(t, `{"name":"old"}`), decode(t, `{"name":"new"}`), "", "obs-1")
	if len(events) != 1 {
		t.Fatalf("got %v", events)
	}
	ch, ok := events[0].(event.Change)
	if !ok || ch.Path != "/name" || ch.NewValue != "new" || ch.ObservationID != "obs-1" {
		t.Fatalf("got %#v", events[0])
	}
}

func TestObjectAddAndRemoveSorted(t *testing.T) {
	old := decode(t, `{"z":1,"a":1}`)
	new := decode(t, `{"z":1,"c":2,"b":3}`)
	events := Diff(old, new, "", "obs-1")
	if len(events) != 3 {
		t.Fatalf("got %v", events)
	}
	rm, ok := events[0].(event.Remove)
	if !ok || rm.Path != "/a" {
		t.Fatalf("events[0] = %#v", events[0])
	}
	// added keys in sorted order
	b, ok := events[1].(event.Add)
	if !ok || b.Path != "/b" {
		t.Fatalf("events[1] = %#v", events[1])
	}
	c, ok := events[2].(event.Add)
	if !ok || c.Path != "/c" {
		t.Fatalf("events[2] = %#v", events[2])
	}
}

func TestNestedRecursion(t *testing.T) {
	old := decode(t, `{"outer":{"inner":{"leaf":1}}}`)
	new := decode(t, `{"outer":{"inner":{"leaf":2}}}`)
	events := Diff(old, new, "", "obs-1")
	if len(events) != 1 {
		t.Fatalf("got %v", events)
	}
	ch := events[0].(event.Change)
	if ch.Path != "/outer/inner/leaf" {
		t.Fatalf("path = %s", ch.Path)
	}
}

func TestTypeChangeIsOneEvent(t *testing.T) {
	events := Diff(decode(t, `{"v":[1,2]}`), decode(t, `{"v":{"a":1}}`), "", "obs-1")
	if len(events) != 1 {
		t.Fatalf("got %v", events)
	}
	ch := events[0].(event.Change)
	if ch.Path != "/v" || !jsonval.Equal(ch.NewValue, decode(t, `{"a":1}`)) {
		t.Fatalf("got %#v", ch)
	}
}

func TestKeyEscaping(t *testing.T) {
	events := Diff(decode(t, `{}`), decode(t, `{"a/b":1,"c~d":2}`), "", "obs-1")
	if len(events) != 2 {
		t.Fatalf("got %v", events)
	}
	if p := events[0].(event.Add).Path; p != "/a~1b" {
		t.Fatalf("slash escape: %s", p)
	}
	if p := events[1].(event.Add).Path; p != "/c~0d" {
		t.Fatalf("tilde escape: %s", p)
	}
}

func TestArrayRotationIsSingleMove(t *testing.T) {
	events := Diff(decode(t, `["a","b","c"]`), decode(t, `["c","a","b"]`), "", "obs-1")
	if len(events) != 1 {
		t.Fatalf("got %v", events)
	}
	mv, ok := events[0].(event.Move)
	if !ok || mv.Path != "" {
		t.Fatalf("got %#v", events[0])
	}
	// One backward pair pulls "c" to the front; everything else shifts.
	if len(mv.Moves) != 1 || mv.Moves[0] != (event.MovePair{From: 2, To: 0}) {
		t.Fatalf("moves = %v", mv.Moves)
	}
}

func TestArrayMovePairsAreBackward(t *testing.T) {
	// Every emitted pair must have from > to so the batch replays under
	// the insert-then-remove application.
	events := Diff(decode(t, `["a","b","c","d"]`), decode(t, `["b","a","d","c"]`), "", "obs-1")
	if len(events) != 1 {
		t.Fatalf("got %v", events)
	}
	mv := events[0].(event.Move)
	if len(mv.Moves) == 0 {
		t.Fatal("expected move pairs")
	}
	for _, p := range mv.Moves {
		if p.From <= p.To {
			t.Fatalf("forward pair %v in %v", p, mv.Moves)
		}
	}
}

func TestArrayRemoveHighestFirst(t *testing.T) {
	events := Diff(decode(t, `["a","b","c"]`), decode(t, `["b"]`), "", "obs-1")
	if len(events) != 2 {
		t.Fatalf("got %v", events)
	}
	// Removes descend so each index is valid on the array as it stood.
	if p := events[0].(event.Remove).Path; p != "/2" {
		t.Fatalf("events[0] path = %s", p)
	}
	if p := events[1].(event.Remove).Path; p != "/0" {
		t.Fatalf("events[1] path = %s", p)
	}
}

func TestArrayReorderAndShrink(t *testing.T) {
	// Removes come first against the old indices; the move reorders what
	// survives.
	events := Diff(decode(t, `["a","b","c","d"]`), decode(t, `["d","b"]`), "", "obs-1")
	if len(events) != 3 {
		t.Fatalf("got %v", events)
	}
	if p := events[0].(event.Remove).Path; p != "/2" {
		t.Fatalf("events[0] path = %s", p)
	}
	if p := events[1].(event.Remove).Path; p != "/0" {
		t.Fatalf("events[1] path = %s", p)
	}
	mv := events[2].(event.Move)
	if len(mv.Moves) != 1 || mv.Moves[0] != (event.MovePair{From: 1, To: 0}) {
		t.Fatalf("moves = %v", mv.Moves)
	}
}

func TestArrayAddsAscending(t *testing.T) {
	events := Diff(decode(t, `["b"]`), decode(t, `["a","b","c"]`), "", "obs-1")
	if len(events) != 2 {
		t.Fatalf("got %v", events)
	}
	a0 := events[0].(event.Add)
	a2 := events[1].(event.Add)
	if a0.Path != "/0" || a0.Value != "a" || a2.Path != "/2" || a2.Value != "c" {
		t.Fatalf("adds = %#v, %#v", a0, a2)
	}
}

func TestArrayOfObjectsMatchedByContent(t *testing.T) {
	old := decode(t, `[{"id":1,"v":"x"},{"id":2,"v":"y"}]`)
	new := decode(t, `[{"id":2,"v":"y"},{"id":1,"v":"x"}]`)
	events := Diff(old, new, "", "obs-1")
	if len(events) != 1 {
		t.Fatalf("got %v", events)
	}
	if _, ok := events[0].(event.Move); !ok {
		t.Fatalf("got %#v", events[0])
	}
}

func TestArrayElementEdit(t *testing.T) {
	// An edited element no longer content-matches, so it surfaces as a
	// remove plus add at the same index.
	old := decode(t, `[{"id":1,"v":"x"}]`)
	new := decode(t, `[{"id":1,"v":"y"}]`)
	events := Diff(old, new, "", "obs-1")
	if len(events) != 2 {
		t.Fatalf("got %v", events)
	}
	if _, ok := events[0].(event.Remove); !ok {
		t.Fatalf("events[0] = %#v", events[0])
	}
	if _, ok := events[1].(event.Add); !ok {
		t.Fatalf("events[1] = %#v", events[1])
	}
}

func TestBasePathPrefixesEveryEvent(t *testing.T) {
	events := Diff(decode(t, `{"a":1}`), decode(t, `{"a":2}`), "/nested/doc", "obs-1")
	if len(events) != 1 {
		t.Fatalf("got %v", events)
	}
	if p := events[0].(event.Change).Path; p != "/nested/doc/a" {
		t.Fatalf("path = %s", p)
	}
}
