package css_test

import (
	"testing"

	"cssmc/css"
)

func TestMapIdents(t *testing.T) {
	repl := map[string]string{"primary": "#f00", "gap": "4px"}
	fn := func(ident string) (string, bool) {
		v, ok := repl[ident]
		return v, ok
	}

	tests := []struct {
		in, want string
	}{
		{"primary", "#f00"},
		{"1px solid  primary", "1px solid  #f00"},
		{`"primary" url(primary.png)`, `"primary" url(primary.png)`},
		{"calc(gap * 2)", "calc(4px * 2)"},
		{"primary-dark", "primary-dark"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := css.MapIdents(tt.in, fn); got != tt.want {
			t.Errorf("MapIdents(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlaceholder(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"$color", "$color", true},
		{".text-$name", "$name", true},
		{`"$quoted"`, "", false},
		{"red", "", false},
		{"$ 1", "", false},
	}
	for _, tt := range tests {
		got, ok := css.Placeholder(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Placeholder(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestJoin(t *testing.T) {
	tokens, err := css.Lex("  a /* c */  b\n\tc  ")
	if err != nil {
		t.Fatal(err)
	}
	if got := css.Join(tokens); got != "a b c" {
		t.Errorf("Join() = %q", got)
	}
}

func TestUnquote(t *testing.T) {
	for in, want := range map[string]string{`"a"`: "a", `'b'`: "b", `c`: "c", `"`: `"`, ` "d" `: "d"} {
		if got := css.Unquote(in); got != want {
			t.Errorf("Unquote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUnescapeIdent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{`sm\:flex`, "sm:flex"},
		{`w-1\/2`, "w-1/2"},
		{`\31 0`, "10"},
		{`\000031x`, "1x"},
		{`a\e9 b`, "a\u00e9b"},
		{`\0`, "\ufffd"},
		{`trailing\`, `trailing\`},
	}
	for _, tt := range tests {
		if got := css.UnescapeIdent(tt.in); got != tt.want {
			t.Errorf("UnescapeIdent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeIdent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain-name_1", "plain-name_1"},
		{"sm:flex", `sm\:flex`},
		{"w-1/2", `w-1\/2`},
		{"10", `\31 0`},
		{"caf\u00e9", "caf\u00e9"},
	}
	for _, tt := range tests {
		got := css.EscapeIdent(tt.in)
		if got != tt.want {
			t.Errorf("EscapeIdent(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if back := css.UnescapeIdent(got); back != tt.in {
			t.Errorf("UnescapeIdent(EscapeIdent(%q)) = %q", tt.in, back)
		}
	}
}
