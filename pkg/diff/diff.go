// Package diff computes a minimal event script that transforms one JSON tree
// into another. Object diffs recurse key by key; array diffs match elements
// by content to detect reordering and emit a single Move event per array.
package diff

import (
	"sort"
	"strconv"
	"strings"

	"github.com/peoplesgrocers/jsonarchive/pkg/event"
	"github.com/peoplesgrocers/jsonarchive/pkg/jsonval"
)

// Diff returns the ordered events that turn old into new. Paths are rooted at
// basePath ("" for the document root) and every event references
// observationID. Applying the result in order to a copy of old yields new.
func Diff(old, new any, basePath, observationID string) []event.Event {
	var out []event.Event
	walk(old, new, basePath, observationID, &out)
	return out
}

func walk(old, new any, path, obsID string, out *[]event.Event) {
	switch o := old.(type) {
	case map[string]any:
		if n, ok := new.(map[string]any); ok {
			diffObjects(o, n, path, obsID, out)
			return
		}
	case []any:
		if n, ok := new.([]any); ok {
			diffArrays(o, n, path, obsID, out)
			return
		}
	}
	// Mixed or scalar types: one Change with the full new value. No deep
	// diffing across a type boundary.
	if !jsonval.Equal(old, new) {
		*out = append(*out, event.Change{Path: path, NewValue: new, ObservationID: obsID})
	}
}

func diffObjects(old, new map[string]any, basePath, obsID string, out *[]event.Event) {
	var removed, added, common []string
	for k := range old {
		if _, ok := new[k]; ok {
			common = append(common, k)
		} else {
			removed = append(removed, k)
		}
	}
	for k := range new {
		if _, ok := old[k]; !ok {
			added = append(added, k)
		}
	}
	// Sorted order keeps the script deterministic across runs; removes go
	// first so sibling array indices stay meaningful.
	sort.Strings(removed)
	sort.Strings(added)
	sort.Strings(common)

	for _, k := range removed {
		*out = append(*out, event.Remove{Path: childPath(basePath, k), ObservationID: obsID})
	}
	for _, k := range added {
		*out = append(*out, event.Add{Path: childPath(basePath, k), Value: new[k], ObservationID: obsID})
	}
	for _, k := range common {
		if !jsonval.Equal(old[k], new[k]) {
			walk(old[k], new[k], childPath(basePath, k), obsID, out)
		}
	}
}

// diffArrays emits a script that replays exactly: removes first (descending,
// valid against the untouched old array), then one Move event reordering the
// surviving elements, then adds ascending into their final positions. Move
// pairs are computed against the array as the preceding pairs leave it, by
// simulating the replay's own insert-then-remove semantics, so every pair
// moves an element backward (from > to) and the batch composes correctly.
func diffArrays(old, new []any, basePath, obsID string, out *[]event.Event) {
	oldByContent := make(map[string]int, len(old))
	for i, v := range old {
		oldByContent[jsonval.Canonical(v)] = i
	}
	newByContent := make(map[string]int, len(new))
	for i, v := range new {
		newByContent[jsonval.Canonical(v)] = i
	}

	type match struct{ oldIdx, newIdx int }
	var matches []match
	matchedOld := make(map[int]bool, len(old))
	matchedNew := make(map[int]bool, len(new))
	for i, v := range old {
		key := jsonval.Canonical(v)
		if oldByContent[key] != i {
			continue // duplicate content, represented by its last occurrence
		}
		j, ok := newByContent[key]
		if !ok {
			continue
		}
		matches = append(matches, match{oldIdx: i, newIdx: j})
		matchedOld[i] = true
		matchedNew[j] = true
	}

	// Unmatched old elements are removed from highest index to lowest so
	// earlier removals don't shift later ones.
	for i := len(old) - 1; i >= 0; i-- {
		if !matchedOld[i] {
			*out = append(*out, event.Remove{
				Path:          basePath + "/" + strconv.Itoa(i),
				ObservationID: obsID,
			})
		}
	}

	// After the removes only matched elements remain, in old order. target
	// maps each match to its rank among the matched new indices: the
	// position it must occupy before the adds go in.
	target := make([]int, len(matches))
	byNew := make([]int, len(matches))
	for i := range byNew {
		byNew[i] = i
	}
	sort.Slice(byNew, func(a, b int) bool {
		return matches[byNew[a]].newIdx < matches[byNew[b]].newIdx
	})
	for rank, mi := range byNew {
		target[mi] = rank
	}

	cur := make([]int, len(matches))
	for i := range cur {
		cur[i] = i
	}
	var moves []event.MovePair
	for t := 0; t < len(cur); t++ {
		f := t
		for target[cur[f]] != t {
			f++
		}
		if f == t {
			continue
		}
		moves = append(moves, event.MovePair{From: f, To: t})
		item := cur[f]
		cur = append(cur[:f], cur[f+1:]...)
		cur = append(cur[:t:t], append([]int{item}, cur[t:]...)...)
	}
	if len(moves) > 0 {
		*out = append(*out, event.Move{Path: basePath, Moves: moves, ObservationID: obsID})
	}

	// Adds ascend so each new element lands at its final index.
	for j := 0; j < len(new); j++ {
		if !matchedNew[j] {
			*out = append(*out, event.Add{
				Path:          basePath + "/" + strconv.Itoa(j),
				Value:         new[j],
				ObservationID: obsID,
			})
		}
	}

	// Content keys are exact serializations, so matched pairs are equal by
	// construction; a collision is still reported as a change rather than a
	// silent move with the wrong content. Emitted last, when the new index
	// is valid.
	for _, m := range matches {
		if !jsonval.Equal(old[m.oldIdx], new[m.newIdx]) {
			*out = append(*out, event.Change{
				Path:          basePath + "/" + strconv.Itoa(m.newIdx),
				NewValue:      new[m.newIdx],
				ObservationID: obsID,
			})
		}
	}
}

func childPath(base, key string) string {
	escaped := strings.ReplaceAll(key, "~", "~0")
	escaped = strings.ReplaceAll(escaped, "/", "~1")
	return base + "/" + escaped
}
