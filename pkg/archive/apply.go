package archive

import (
	"fmt"

	"github.com/peoplesgrocers/jsonarchive/pkg/diag"
	"github.com/peoplesgrocers/jsonarchive/pkg/event"
	"github.com/peoplesgrocers/jsonarchive/pkg/jsonval"
	"github.com/peoplesgrocers/jsonarchive/pkg/pointer"
)

// ApplyAdd sets value at path. The parent must already exist; an array index
// equal to the current length appends.
func ApplyAdd(state *any, path string, value any) *diag.Diagnostic {
	ptr, d := pointer.Parse(path)
	if d != nil {
		return d.WithAdvice(
			"JSON Pointer paths must start with '/' and use '/' to separate segments.\n" +
				"Special characters: use ~0 for ~ and ~1 for /")
	}
	if d := ptr.Set(state, value); d != nil {
		return d.WithAdvice(
			"For add operations, the parent path must exist. " +
				"For example, to add /a/b/c, the paths /a and /a/b must already exist.")
	}
	return nil
}

// ApplyChange replaces the value at path.
func ApplyChange(state *any, path string, newValue any) *diag.Diagnostic {
	ptr, d := pointer.Parse(path)
	if d != nil {
		return d
	}
	return ptr.Set(state, newValue)
}

// ApplyRemove deletes the value at path.
func ApplyRemove(state *any, path string) *diag.Diagnostic {
	ptr, d := pointer.Parse(path)
	if d != nil {
		return d
	}
	_, d = ptr.Remove(state)
	return d
}

// ApplyMove reorders the array at path. Each pair inserts the element at its
// destination first and then removes the stale copy, so pairs later in the
// batch see the indices left by earlier ones.
func ApplyMove(state *any, path string, moves []event.MovePair) *diag.Diagnostic {
	ptr, d := pointer.Parse(path)
	if d != nil {
		return d
	}
	target, d := ptr.Get(*state)
	if d != nil {
		return d
	}
	arr, ok := target.([]any)
	if !ok {
		return diag.New(diag.Fatal, diag.MoveOnNonArray,
			fmt.Sprintf("I can't apply move operations to '%s' because it's not an array (found %s).",
				path, jsonval.TypeName(target))).
			WithAdvice("Move operations can only reorder elements within an array. " +
				"The path must point to an array value.")
	}

	out := make([]any, len(arr))
	copy(out, arr)
	for _, m := range moves {
		if m.From >= len(out) {
			return diag.New(diag.Fatal, diag.MoveIndexOutOfBounds,
				fmt.Sprintf("The 'from' index %d is out of bounds (array length is %d).", m.From, len(out)))
		}
		if m.To > len(out) {
			return diag.New(diag.Fatal, diag.MoveIndexOutOfBounds,
				fmt.Sprintf("The 'to' index %d is out of bounds (array length is %d).", m.To, len(out)))
		}
		elem := out[m.From]
		out = append(out[:m.To:m.To], append([]any{elem}, out[m.To:]...)...)
		removeIdx := m.From
		if m.From > m.To {
			removeIdx = m.From + 1
		}
		out = append(out[:removeIdx:removeIdx], out[removeIdx+1:]...)
	}
	return ptr.Set(state, out)
}
