package main

import (
	"testing"
)

func selectorFor(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newStateCmd()
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatal(err)
	}
	byID, _ := cmd.Flags().GetString("id")
	byIndex, _ := cmd.Flags().GetInt("index")
	asOf, _ := cmd.Flags().GetString("as-of")
	before, _ := cmd.Flags().GetString("before")
	after, _ := cmd.Flags().GetString("after")
	latest, _ := cmd.Flags().GetBool("latest")
	_, err := parseSelector(cmd, byID, byIndex, asOf, before, after, latest)
	return err
}

func TestParseSelectorDefaultsToLatest(t *testing.T) {
	if err := selectorFor(t); err != nil {
		t.Fatal(err)
	}
}

func TestParseSelectorRejectsTwoMethods(t *testing.T) {
	if err := selectorFor(t, "--id", "obs-1", "--latest"); err == nil {
		t.Fatal("two selectors must be rejected")
	}
	if err := selectorFor(t, "--index", "2", "--as-of", "2025-01-01T00:00:00Z"); err == nil {
		t.Fatal("two selectors must be rejected")
	}
}

func TestParseSelectorRejectsBadTimestamp(t *testing.T) {
	if err := selectorFor(t, "--as-of", "yesterday"); err == nil {
		t.Fatal("bad timestamp must be rejected")
	}
}

func TestParseSelectorIndexZeroIsValid(t *testing.T) {
	// --index 0 addresses the initial state; flag presence matters, not
	// the zero value.
	if err := selectorFor(t, "--index", "0"); err != nil {
		t.Fatal(err)
	}
}
