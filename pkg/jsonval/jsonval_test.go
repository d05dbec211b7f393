package jsonval

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestTypeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`null`, "null"},
		{`true`, "boolean"},
		{`3.5`, "number"},
		{`"x"`, "string"},
		{`[1]`, "array"},
		{`{"a":1}`, "object"},
	}
	for _, c := range cases {
		if got := TypeName(decode(t, c.in)); got != c.want {
			t.Fatalf("TypeName(%s) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEqualIgnoresKeyOrder(t *testing.T) {
	a := decode(t, `{"a":1,"b":[1,2,{"c":null}]}`)
	b := decode(t, `{"b":[1,2,{"c":null}],"a":1}`)
	if !Equal(a, b) {
		t.Fatal("expected equal trees")
	}
	c := decode(t, `{"a":1,"b":[1,2,{"c":0}]}`)
	if Equal(a, c) {
		t.Fatal("expected unequal trees")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := decode(t, `{"items":["a","b"],"n":1}`)
	cp := Clone(orig)
	cp.(map[string]any)["items"].([]any)[0] = "mutated"
	if orig.(map[string]any)["items"].([]any)[0] != "a" {
		t.Fatal("clone aliased the original array")
	}
}
