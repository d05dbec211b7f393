package archive

import (
	"context"
	"testing"
	"time"

	"github.com/peoplesgrocers/jsonarchive/pkg/diag"
	"github.com/peoplesgrocers/jsonarchive/pkg/jsonval"
)

func buildTestIndex(t *testing.T) *Index {
	t.Helper()
	path := writeArchive(t,
		testHeader,
		`["observe","obs-1","2025-01-01T01:00:00Z",1]`,
		`["change","/count",1,"obs-1"]`,
		`["observe","obs-2","2025-01-01T02:00:00Z",2]`,
		`["change","/count",2,"obs-2"]`,
		`["add","/flag",true,"obs-2"]`,
	)
	idx, diags, err := BuildIndex(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if diags.HasFatal() {
		t.Fatalf("diagnostics: %v", diags.Items())
	}
	return idx
}

func TestIndexEntries(t *testing.T) {
	idx := buildTestIndex(t)
	if len(idx.Entries) != 3 {
		t.Fatalf("entries = %d", len(idx.Entries))
	}
	if idx.Entries[0].ID != "initial" {
		t.Fatalf("entry 0 ID = %s", idx.Entries[0].ID)
	}
	if !jsonval.Equal(idx.Entries[0].State, map[string]any{"count": 0.0}) {
		t.Fatalf("entry 0 state = %v", idx.Entries[0].State)
	}
	if !jsonval.Equal(idx.Entries[1].State, map[string]any{"count": 1.0}) {
		t.Fatalf("entry 1 state = %v", idx.Entries[1].State)
	}
	want := map[string]any{"count": 2.0, "flag": true}
	if !jsonval.Equal(idx.Entries[2].State, want) {
		t.Fatalf("entry 2 state = %v", idx.Entries[2].State)
	}
	if idx.Entries[2].ChangeCount != 2 {
		t.Fatalf("entry 2 change count = %d", idx.Entries[2].ChangeCount)
	}
	if idx.Entries[1].JSONSize == 0 {
		t.Fatal("entry 1 should have a JSON size")
	}
}

func TestIndexByID(t *testing.T) {
	idx := buildTestIndex(t)
	e, d := idx.ByID("obs-1")
	if d != nil || e.Index != 1 {
		t.Fatalf("got %v, %v", e, d)
	}
	_, d = idx.ByID("obs-404")
	if d == nil || d.Code != diag.NonExistentObservationId {
		t.Fatalf("got %v", d)
	}
}

func TestIndexByIndex(t *testing.T) {
	idx := buildTestIndex(t)
	e, d := idx.ByIndex(0)
	if d != nil || e.ID != "initial" {
		t.Fatalf("got %v, %v", e, d)
	}
	_, d = idx.ByIndex(9)
	if d == nil || d.Code != diag.ArrayIndexOutOfBounds {
		t.Fatalf("got %v", d)
	}
	_, d = idx.ByIndex(-1)
	if d == nil {
		t.Fatal("negative index must fail")
	}
}

func TestIndexTimeSelectors(t *testing.T) {
	idx := buildTestIndex(t)
	at := func(s string) time.Time {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			t.Fatal(err)
		}
		return ts
	}

	// AsOf includes an exact match.
	e, d := idx.AsOf(at("2025-01-01T01:00:00Z"))
	if d != nil || e.ID != "obs-1" {
		t.Fatalf("got %v, %v", e, d)
	}
	// RightBefore excludes it.
	e, d = idx.RightBefore(at("2025-01-01T01:00:00Z"))
	if d != nil || e.ID != "initial" {
		t.Fatalf("got %v, %v", e, d)
	}
	// After picks the earliest later entry.
	e, d = idx.After(at("2025-01-01T01:00:00Z"))
	if d != nil || e.ID != "obs-2" {
		t.Fatalf("got %v, %v", e, d)
	}
	// Out of range on both ends.
	if _, d = idx.RightBefore(at("2024-12-01T00:00:00Z")); d == nil || d.Code != diag.PathNotFound {
		t.Fatalf("got %v", d)
	}
	if _, d = idx.After(at("2025-02-01T00:00:00Z")); d == nil || d.Code != diag.PathNotFound {
		t.Fatalf("got %v", d)
	}

	e, d = idx.Latest()
	if d != nil || e.ID != "obs-2" {
		t.Fatalf("got %v, %v", e, d)
	}
}

func TestIndexCountsSnapshots(t *testing.T) {
	path := writeArchive(t,
		testHeader,
		`["observe","obs-1","2025-01-01T01:00:00Z",1]`,
		`["change","/count",5,"obs-1"]`,
		`["snapshot","snap-1","2025-01-01T01:30:00Z",{"count":5}]`,
	)
	idx, diags, err := BuildIndex(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if diags.HasFatal() {
		t.Fatalf("diagnostics: %v", diags.Items())
	}
	if idx.SnapshotCount != 1 {
		t.Fatalf("snapshot count = %d", idx.SnapshotCount)
	}
}
