package archive

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/peoplesgrocers/jsonarchive/pkg/event"
)

// IsArchive reports whether path names a JSON archive, so the CLI can infer
// intent from bare filenames. A .json.archive suffix is trusted outright;
// otherwise the first line is inspected for a JSON object whose first key is
// "type" with the archive magic value. The content check covers build systems
// that rename outputs to suffixes like .tmp.
func IsArchive(path string) (bool, error) {
	if strings.HasSuffix(filepath.Base(path), ".json.archive") {
		return true, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	firstLine, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && firstLine == "" {
		return false, nil // empty file
	}

	// Maps don't preserve key order, so walk tokens to see the first key.
	dec := json.NewDecoder(strings.NewReader(firstLine))
	tok, err := dec.Token()
	if err != nil {
		return false, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return false, nil
	}
	keyTok, err := dec.Token()
	if err != nil {
		return false, nil
	}
	if key, ok := keyTok.(string); !ok || key != "type" {
		return false, nil
	}
	valTok, err := dec.Token()
	if err != nil {
		return false, nil
	}
	val, ok := valTok.(string)
	return ok && val == event.FileType, nil
}
