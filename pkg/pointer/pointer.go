// Package pointer implements RFC 6901-style JSON Pointer addressing over the
// generic JSON tree. A Pointer is a parsed recipe for traversal: it owns
// nothing and is resolved fresh against whatever tree it is handed, because
// the replay engine rebuilds the tree between applications and cached
// references would dangle.
package pointer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/peoplesgrocers/jsonarchive/pkg/diag"
	"github.com/peoplesgrocers/jsonarchive/pkg/jsonval"
)

// Pointer is an immutable sequence of unescaped reference tokens.
// The empty sequence addresses the document root.
type Pointer struct {
	tokens []string
}

// Parse parses a JSON Pointer. The empty string is the root pointer; any
// other path must start with '/'.
func Parse(path string) (Pointer, *diag.Diagnostic) {
	if path == "" {
		return Pointer{}, nil
	}
	if !strings.HasPrefix(path, "/") {
		return Pointer{}, diag.New(diag.Fatal, diag.InvalidPointerSyntax,
			fmt.Sprintf("I couldn't parse the path '%s': Path must start with '/'", path))
	}
	raw := strings.Split(path[1:], "/")
	tokens := make([]string, len(raw))
	for i, tok := range raw {
		tokens[i] = unescape(tok)
	}
	return Pointer{tokens: tokens}, nil
}

func unescape(tok string) string {
	tok = strings.ReplaceAll(tok, "~1", "/")
	return strings.ReplaceAll(tok, "~0", "~")
}

func escape(tok string) string {
	tok = strings.ReplaceAll(tok, "~", "~0")
	return strings.ReplaceAll(tok, "/", "~1")
}

// IsRoot reports whether the pointer addresses the document root.
func (p Pointer) IsRoot() bool { return len(p.tokens) == 0 }

// String re-escapes the tokens back into pointer syntax. Round-trips with
// Parse for any pointer this package produced.
func (p Pointer) String() string {
	if len(p.tokens) == 0 {
		return ""
	}
	escaped := make([]string, len(p.tokens))
	for i, tok := range p.tokens {
		escaped[i] = escape(tok)
	}
	return "/" + strings.Join(escaped, "/")
}

// Get resolves the pointer against a tree and returns the addressed value.
func (p Pointer) Get(tree any) (any, *diag.Diagnostic) {
	current := tree
	for _, tok := range p.tokens {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[tok]
			if !ok {
				return nil, diag.New(diag.Fatal, diag.PathNotFound,
					fmt.Sprintf("I couldn't find the key '%s'", tok))
			}
			current = next
		case []any:
			idx, d := parseIndex(tok)
			if d != nil {
				return nil, d
			}
			if idx >= len(node) {
				return nil, diag.New(diag.Fatal, diag.PathNotFound,
					fmt.Sprintf("I couldn't find index %d (array length is %d)", idx, len(node)))
			}
			current = node[idx]
		default:
			return nil, diag.New(diag.Fatal, diag.TypeMismatch,
				fmt.Sprintf("I can't index into %s with '%s'", jsonval.TypeName(current), tok))
		}
	}
	return current, nil
}

// Set writes newValue at the pointer's location. The root pointer replaces
// the whole tree. For the final token: an object parent inserts or
// overwrites the key; an array parent overwrites in place, or appends when
// the index equals the length.
func (p Pointer) Set(tree *any, newValue any) *diag.Diagnostic {
	updated, d := setNode(*tree, p.tokens, newValue)
	if d != nil {
		return d
	}
	*tree = updated
	return nil
}

func setNode(node any, tokens []string, newValue any) (any, *diag.Diagnostic) {
	if len(tokens) == 0 {
		return newValue, nil
	}
	tok := tokens[0]
	last := len(tokens) == 1

	switch n := node.(type) {
	case map[string]any:
		if last {
			n[tok] = newValue
			return n, nil
		}
		child, ok := n[tok]
		if !ok {
			return nil, diag.New(diag.Fatal, diag.PathNotFound,
				fmt.Sprintf("I couldn't find the key '%s'", tok))
		}
		updated, d := setNode(child, tokens[1:], newValue)
		if d != nil {
			return nil, d
		}
		n[tok] = updated
		return n, nil

	case []any:
		idx, d := parseIndex(tok)
		if d != nil {
			return nil, d
		}
		if last {
			switch {
			case idx == len(n):
				return append(n, newValue), nil
			case idx < len(n):
				n[idx] = newValue
				return n, nil
			default:
				return nil, diag.New(diag.Fatal, diag.PathNotFound,
					fmt.Sprintf("I couldn't set index %d (array length is %d)", idx, len(n)))
			}
		}
		if idx >= len(n) {
			return nil, diag.New(diag.Fatal, diag.PathNotFound,
				fmt.Sprintf("I couldn't find index %d (array length is %d)", idx, len(n)))
		}
		updated, d := setNode(n[idx], tokens[1:], newValue)
		if d != nil {
			return nil, d
		}
		n[idx] = updated
		return n, nil

	default:
		if last {
			return nil, diag.New(diag.Fatal, diag.TypeMismatch,
				fmt.Sprintf("I can't set property '%s' on %s", tok, jsonval.TypeName(node)))
		}
		return nil, diag.New(diag.Fatal, diag.TypeMismatch,
			fmt.Sprintf("I can't index into %s with '%s'", jsonval.TypeName(node), tok))
	}
}

// Remove deletes the addressed value and returns it. Removing the root is
// always an error.
func (p Pointer) Remove(tree *any) (any, *diag.Diagnostic) {
	if len(p.tokens) == 0 {
		return nil, diag.New(diag.Fatal, diag.InvalidPointerSyntax,
			"I can't remove the root value")
	}
	updated, removed, d := removeNode(*tree, p.tokens)
	if d != nil {
		return nil, d
	}
	*tree = updated
	return removed, nil
}

func removeNode(node any, tokens []string) (any, any, *diag.Diagnostic) {
	tok := tokens[0]
	last := len(tokens) == 1

	switch n := node.(type) {
	case map[string]any:
		child, ok := n[tok]
		if !ok {
			if last {
				return nil, nil, diag.New(diag.Fatal, diag.PathNotFound,
					fmt.Sprintf("I couldn't find the key '%s' to remove", tok))
			}
			return nil, nil, diag.New(diag.Fatal, diag.PathNotFound,
				fmt.Sprintf("I couldn't find the key '%s'", tok))
		}
		if last {
			delete(n, tok)
			return n, child, nil
		}
		updated, removed, d := removeNode(child, tokens[1:])
		if d != nil {
			return nil, nil, d
		}
		n[tok] = updated
		return n, removed, nil

	case []any:
		idx, d := parseIndex(tok)
		if d != nil {
			return nil, nil, d
		}
		if idx >= len(n) {
			if last {
				return nil, nil, diag.New(diag.Fatal, diag.PathNotFound,
					fmt.Sprintf("I couldn't remove index %d (array length is %d)", idx, len(n)))
			}
			return nil, nil, diag.New(diag.Fatal, diag.PathNotFound,
				fmt.Sprintf("I couldn't find index %d (array length is %d)", idx, len(n)))
		}
		if last {
			removed := n[idx]
			return append(n[:idx:idx], n[idx+1:]...), removed, nil
		}
		updated, removed, d := removeNode(n[idx], tokens[1:])
		if d != nil {
			return nil, nil, d
		}
		n[idx] = updated
		return n, removed, nil

	default:
		if last {
			return nil, nil, diag.New(diag.Fatal, diag.TypeMismatch,
				fmt.Sprintf("I can't remove property '%s' from %s", tok, jsonval.TypeName(node)))
		}
		return nil, nil, diag.New(diag.Fatal, diag.TypeMismatch,
			fmt.Sprintf("I can't index into %s with '%s'", jsonval.TypeName(node), tok))
	}
}

func parseIndex(tok string) (int, *diag.Diagnostic) {
	idx, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return 0, diag.New(diag.Fatal, diag.InvalidArrayIndex,
			fmt.Sprintf("I couldn't parse '%s' as an array index", tok))
	}
	return int(idx), nil
}
