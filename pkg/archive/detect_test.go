package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func writeNamed(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIsArchiveByExtension(t *testing.T) {
	path := writeNamed(t, "data.json.archive", `{"some":"json"}`+"\n")
	ok, err := IsArchive(path)
	if err != nil || !ok {
		t.Fatalf("got %v, %v", ok, err)
	}
}

func TestIsArchiveByMagicHeader(t *testing.T) {
	// Build systems rename outputs; the first-line signature still
	// identifies the file.
	for _, name := range []string{"data.weird", "data.json.tmp"} {
		path := writeNamed(t, name, `{"type":"@peoplesgrocers/json-archive","version":1}`+"\n")
		ok, err := IsArchive(path)
		if err != nil || !ok {
			t.Fatalf("%s: got %v, %v", name, ok, err)
		}
	}
}

func TestIsArchiveRejectsPlainJSON(t *testing.T) {
	path := writeNamed(t, "data.json", `{"some":"json"}`+"\n")
	ok, err := IsArchive(path)
	if err != nil || ok {
		t.Fatalf("got %v, %v", ok, err)
	}
}

func TestIsArchiveRejectsWrongType(t *testing.T) {
	path := writeNamed(t, "data.tmp", `{"type":"something-else","version":1}`+"\n")
	ok, err := IsArchive(path)
	if err != nil || ok {
		t.Fatalf("got %v, %v", ok, err)
	}
}

func TestIsArchiveRequiresTypeAsFirstKey(t *testing.T) {
	path := writeNamed(t, "data.tmp", `{"version":1,"type":"@peoplesgrocers/json-archive"}`+"\n")
	ok, err := IsArchive(path)
	if err != nil || ok {
		t.Fatalf("type must be the first key: got %v, %v", ok, err)
	}
}

func TestIsArchiveEmptyAndInvalid(t *testing.T) {
	empty := writeNamed(t, "empty.tmp", "")
	if ok, err := IsArchive(empty); err != nil || ok {
		t.Fatalf("empty: got %v, %v", ok, err)
	}
	bad := writeNamed(t, "bad.tmp", "not valid json\n")
	if ok, err := IsArchive(bad); err != nil || ok {
		t.Fatalf("invalid: got %v, %v", ok, err)
	}
}
