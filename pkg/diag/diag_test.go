package diag

import (
	"strings"
	"testing"
)

func TestCodeIDsStable(t *testing.T) {
	cases := map[Code]string{
		EmptyFile:                "E001",
		MissingHeader:            "E002",
		InvalidUtf8:              "E003",
		UnsupportedVersion:       "E011",
		InvalidEventJson:         "E020",
		UnknownEventType:         "W021",
		WrongFieldCount:          "E022",
		WrongFieldType:           "E023",
		NonExistentObservationId: "E030",
		DuplicateObservationId:   "W031",
		ChangeCountMismatch:      "W040",
		PathNotFound:             "E051",
		MoveOnNonArray:           "E070",
		SnapshotStateMismatch:    "W080",
	}
	for code, want := range cases {
		if got := code.ID(); got != want {
			t.Fatalf("%s: ID = %q, want %q", code.Title(), got, want)
		}
	}
}

func TestStringIncludesLocationAndAdvice(t *testing.T) {
	d := New(Fatal, PathNotFound, "I couldn't find the key 'count'").
		WithLocation("data.json.archive", 7).
		WithSnippet(`7 | ["remove","/count","obs-1"]`).
		WithAdvice("Check the path against the current state.")
	s := d.String()
	for _, want := range []string{"data.json.archive:7", "error E051", "Path not found", "obs-1", "Check the path"} {
		if !strings.Contains(s, want) {
			t.Fatalf("rendered diagnostic missing %q:\n%s", want, s)
		}
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	if c.HasFatal() || c.Len() != 0 {
		t.Fatal("new collector should be empty")
	}
	c.Add(New(Warning, DuplicateObservationId, "dup"))
	c.Add(nil)
	if c.HasFatal() {
		t.Fatal("warning should not count as fatal")
	}
	c.Add(New(Fatal, EmptyFile, "empty"))
	if !c.HasFatal() {
		t.Fatal("expected fatal")
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if c.Items()[0].Code != DuplicateObservationId {
		t.Fatal("order not preserved")
	}
}
