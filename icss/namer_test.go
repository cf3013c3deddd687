package icss_test

import (
	"errors"
	"strings"
	"testing"

	"cssmc/icss"
)

func TestNamerTemplate(t *testing.T) {
	n, err := icss.NewNamer(`{{ .Name }}__{{ .Local }}`)
	if err != nil {
		t.Fatalf("NewNamer() error = %v", err)
	}
	got, err := n.Scope("src/Card.Module.css", "title", "")
	if err != nil {
		t.Fatalf("Scope() error = %v", err)
	}
	if got != "card__title" {
		t.Errorf("Scope() = %q", got)
	}
}

func TestNamerContentHash(t *testing.T) {
	n, err := icss.NewNamer("")
	if err != nil {
		t.Fatal(err)
	}
	a, err := n.Scope("a.css", "foo", icss.ContentHash([]byte("one")))
	if err != nil {
		t.Fatal(err)
	}
	m, err := icss.NewNamer("")
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Scope("a.css", "foo", icss.ContentHash([]byte("two")))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Errorf("content hash does not affect name: %q", a)
	}
}

func TestNamerCollision(t *testing.T) {
	n, err := icss.NewNamer(`{{ .Local }}`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := n.Scope("a.css", "foo", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Scope("a.css", "foo", ""); err != nil {
		t.Errorf("repeated scope of the same name failed: %v", err)
	}
	_, err = n.Scope("b.css", "foo", "")
	if err == nil || !strings.Contains(err.Error(), "collides") {
		t.Errorf("error = %v, want collision", err)
	}
}

func TestNamerEscapedLocal(t *testing.T) {
	n, err := icss.NewNamer(`{{ .Local }}`)
	if err != nil {
		t.Fatal(err)
	}
	for local, want := range map[string]string{"sm:flex": "sm_3a_flex", "w-1/2": "w-1_2f_2", "caf\u00e9": "caf\u00e9"} {
		got, err := n.Scope("a.css", local, "")
		if err != nil || got != want {
			t.Errorf("Scope(%q) = %q, %v, want %q", local, got, err, want)
		}
	}

	raw, err := icss.NewNamer(`x_{{ .Original }}`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Scope("a.css", "sm:flex", ""); err == nil || !strings.Contains(err.Error(), "invalid identifier") {
		t.Errorf("expected invalid identifier error, got %v", err)
	}
}

func TestNamerInvalidTemplate(t *testing.T) {
	for _, tmpl := range []string{`{{ .Name `, `{{ .Missing }}`, `1{{ .Local }}`, `{{ .Local }} x`} {
		if _, err := icss.NewNamer(tmpl); err == nil {
			t.Errorf("NewNamer(%q) expected error", tmpl)
		}
	}
}

func TestParseMode(t *testing.T) {
	for name, want := range map[string]icss.Mode{"local": icss.ModeLocal, "GLOBAL": icss.ModeGlobal, "Pure": icss.ModePure} {
		got, err := icss.ParseMode(name)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := icss.ParseMode("scoped"); !errors.Is(err, icss.ErrInvalidMode) {
		t.Errorf("ParseMode(scoped) error = %v, want %v", err, icss.ErrInvalidMode)
	}
}

func TestMustParseMode(t *testing.T) {
	if got := icss.MustParseMode("pure"); got != icss.ModePure {
		t.Errorf("MustParseMode(pure) = %v", got)
	}
	defer func() {
		if recover() == nil {
			t.Error("MustParseMode should have panicked")
		}
	}()
	icss.MustParseMode("invalid")
}

func TestMode_Text(t *testing.T) {
	var m icss.Mode
	if err := m.UnmarshalText([]byte("global")); err != nil || m != icss.ModeGlobal {
		t.Errorf("UnmarshalText(global) = %v, %v", m, err)
	}
	if data, err := icss.ModePure.MarshalText(); err != nil || string(data) != "pure" {
		t.Errorf("MarshalText() = %q, %v", data, err)
	}
	if icss.Mode(9).IsValid() || icss.Mode(9).String() != "Mode(9)" {
		t.Errorf("Mode(9) should be invalid, String() = %s", icss.Mode(9))
	}
	if got := strings.Join(icss.ModeNames(), ","); got != "local,global,pure" {
		t.Errorf("ModeNames() = %s", got)
	}
}
